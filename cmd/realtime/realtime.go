package realtime

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/facegate/facegate-go/internal/appliance"
	"github.com/facegate/facegate-go/internal/conf"
)

// Command creates the realtime command that runs the full appliance.
func Command(cfg *conf.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run the attendance appliance",
		Long:  "Start the recognition loop, supervision tasks and the HTTP control plane.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return appliance.Run(cfg)
		},
	}

	if err := setupFlags(cmd, cfg); err != nil {
		panic(fmt.Sprintf("error setting up flags: %v", err))
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, cfg *conf.Config) error {
	cmd.Flags().BoolVar(&cfg.WebServer.Enabled, "webserver", viper.GetBool("webserver.enabled"), "Enable the HTTP control plane")
	cmd.Flags().StringVar(&cfg.WebServer.Port, "port", viper.GetString("webserver.port"), "Control plane port")
	cmd.Flags().DurationVar(&cfg.Recognition.AttemptCooldown, "attempt-cooldown", viper.GetDuration("recognition.attemptcooldown"), "Delay between recognition cycles")
	cmd.Flags().DurationVar(&cfg.Recognition.RecognitionCooldown, "recognition-cooldown", viper.GetDuration("recognition.recognitioncooldown"), "Suppression window after a successful match")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
