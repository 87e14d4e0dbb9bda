package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pneumoscan/config"
	"pneumoscan/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pneumoscan",
	Short: "Chest X-ray pneumonia decision support",
	Long: `pneumoscan checks that an image is a chest radiograph, classifies it for
pneumonia, explains the prediction with a Grad-CAM overlay, optionally fuses a
symptom description and writes a report with a recommendation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
		return nil
	},
}

// Execute запускает CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
