// Package reset provides the factory-reset command, used to wipe a device
// without starting the full appliance.
package reset

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/storage"
)

// Command creates the reset command.
func Command(cfg *conf.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Factory-reset the storage medium",
		Long:  "Delete all identities, templates, ledgers and settings, then recreate the empty layout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cfg, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")
	return cmd
}

func runReset(cfg *conf.Config, force bool) error {
	if !force {
		fmt.Printf("This wipes all data under %s. Continue? [y/N] ", cfg.Storage.Root)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("aborted")
			return nil
		}
	}

	gateway := storage.New(cfg.Storage, storage.NewDirMedium(cfg.Storage.Root))
	if err := gateway.Open(); err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	if err := gateway.FactoryReset(); err != nil {
		return fmt.Errorf("factory reset failed: %w", err)
	}

	fmt.Println("device reset to factory defaults")
	return nil
}
