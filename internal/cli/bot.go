package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pneumoscan/internal/api/telegram"
	"pneumoscan/internal/container"
	"pneumoscan/internal/logging"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}

	c, err := container.Build(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	bot, err := telegram.NewBot(cfg.TelegramToken, c.UserService, c.Consultation)
	if err != nil {
		return err
	}

	logging.New("bot").Info("bot is running")
	return bot.Run(cmd.Context())
}
