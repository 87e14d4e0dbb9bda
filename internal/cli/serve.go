package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pneumoscan/internal/api/httpapi"
	"pneumoscan/internal/api/telegram"
	"pneumoscan/internal/container"
	"pneumoscan/internal/logging"
)

var serveWithBot bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWithBot, "with-bot", false, "Also run the Telegram bot (requires TELEGRAM_TOKEN)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.New("serve")

	c, err := container.Build(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	handler := httpapi.NewHandler(c.Diagnosis, c.Assistant, c.Files, c.Metrics.Registry)
	server := httpapi.NewServer(cfg.HTTPAddr, handler)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if serveWithBot {
		bot, err := telegram.NewBot(cfg.TelegramToken, c.UserService, c.Consultation)
		if err != nil {
			return err
		}
		g.Go(func() error { return bot.Run(ctx) })
	}

	return g.Wait()
}
