package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/facegate/facegate-go/cmd/realtime"
	"github.com/facegate/facegate-go/cmd/reset"
	"github.com/facegate/facegate-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(cfg *conf.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "facegate",
		Short: "FaceGate attendance appliance",
	}

	setupFlags(rootCmd, cfg)

	rootCmd.AddCommand(
		realtime.Command(cfg),
		reset.Command(cfg),
	)

	return rootCmd
}

// setupFlags defines the global flags, backed by viper so the config file
// and the command line stay in sync.
func setupFlags(cmd *cobra.Command, cfg *conf.Config) {
	cmd.PersistentFlags().BoolVarP(&cfg.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	cmd.PersistentFlags().StringVar(&cfg.Storage.Root, "storage-root", viper.GetString("storage.root"), "Storage medium mount point")

	_ = viper.BindPFlags(cmd.PersistentFlags())
}
