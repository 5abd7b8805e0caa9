package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxgrab/maxgrab/internal/config"
	"github.com/maxgrab/maxgrab/internal/logger"
	"github.com/maxgrab/maxgrab/internal/maxapi"
)

// newSetWebhookCommand registers a webhook subscription so the platform
// pushes updates instead of being long-polled.
func newSetWebhookCommand() *cobra.Command {
	var webhookURL string
	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Subscribe the bot to webhook delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Bot.Token == "" {
				return fmt.Errorf("bot token is required (config bot.token or BOT_TOKEN)")
			}
			if webhookURL == "" {
				return fmt.Errorf("--url is required")
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client := maxapi.NewClient(logger.L, cfg.Bot.APIBaseURL, cfg.Bot.Token, cfg.Delivery.SendRatePerSecond, cfg.Delivery.SendBurst)
			if err := client.SubscribeWebhook(ctx, webhookURL); err != nil {
				return fmt.Errorf("subscribe webhook: %w", err)
			}
			fmt.Printf("webhook registered: %s\n", webhookURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&webhookURL, "url", "", "Public webhook URL, including the secret path segment")
	return cmd
}
