package main

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/maxgrab/maxgrab/internal/bot"
	"github.com/maxgrab/maxgrab/internal/config"
	"github.com/maxgrab/maxgrab/internal/deliver"
	"github.com/maxgrab/maxgrab/internal/fallback"
	"github.com/maxgrab/maxgrab/internal/fetch"
	"github.com/maxgrab/maxgrab/internal/logger"
	"github.com/maxgrab/maxgrab/internal/maxapi"
	"github.com/maxgrab/maxgrab/internal/reaper"
	"github.com/maxgrab/maxgrab/internal/resolver"
	"github.com/maxgrab/maxgrab/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Run: func(cmd *cobra.Command, args []string) {
			fx.New(
				fx.Provide(
					provideConfig,
					provideLogger,

					provideMaxClient,
					provideResolver,
					provideFetcher,
					provideFallbackRouter,
					provideDeliveryChain,
					provideReaper,
					provideCoordinator,
					provideBot,
					provideServer,
				),
				fx.Invoke(
					startReaper,
					startBot,
					startServer,
				),
				fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
					return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
				}),
			).Run()
		},
	}
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.Bot.Token == "" {
		return config.Config{}, fmt.Errorf("bot token is required (config bot.token or BOT_TOKEN)")
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideMaxClient(log *slog.Logger, cfg config.Config) *maxapi.Client {
	return maxapi.NewClient(log, cfg.Bot.APIBaseURL, cfg.Bot.Token, cfg.Delivery.SendRatePerSecond, cfg.Delivery.SendBurst)
}

func provideResolver(log *slog.Logger, cfg config.Config) *resolver.Service {
	return resolver.NewService(log, resolver.ExecRunner{Binary: cfg.Bot.YTDLPBinary})
}

func provideFetcher(log *slog.Logger, cfg config.Config, svc *resolver.Service) *fetch.Fetcher {
	return fetch.NewFetcher(log, cfg.Downloads.Dir, svc)
}

// provideFallbackRouter assembles the secondary hosting chain from whatever
// backends are configured. An empty router is valid: the link strategy then
// always reports exhaustion.
func provideFallbackRouter(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*fallback.Router, error) {
	var backends []fallback.Backend
	if cfg.Fallback.Disk.Token != "" {
		backends = append(backends, fallback.NewDiskBackend(log, cfg.Fallback.Disk.BaseURL, cfg.Fallback.Disk.Token, cfg.Fallback.Disk.Folder))
	}
	if cfg.Fallback.GCS.Bucket != "" {
		client, err := storage.NewClient(context.Background())
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		backends = append(backends, fallback.NewGCSBackend(log, client, cfg.Fallback.GCS.Bucket))
	}
	if cfg.Fallback.AnonHost.BaseURL != "" {
		backends = append(backends, fallback.NewAnonHostBackend(log, cfg.Fallback.AnonHost.BaseURL))
	}
	return fallback.NewRouter(log, backends...), nil
}

func provideDeliveryChain(log *slog.Logger, cfg config.Config, client *maxapi.Client, router *fallback.Router) *deliver.Chain {
	poller := deliver.NewPoller(log, cfg.Delivery.RetrySchedule())
	return deliver.NewChain(log,
		deliver.NewNativeStrategy(client, client, poller),
		deliver.NewDocumentStrategy(client, client, poller),
		deliver.NewLinkStrategy(router, client),
	)
}

func provideReaper(log *slog.Logger, cfg config.Config) *reaper.Service {
	return reaper.NewService(log, cfg.Downloads.Dir, cfg.Downloads.Retention())
}

func provideCoordinator(log *slog.Logger, fetcher *fetch.Fetcher, chain *deliver.Chain, client *maxapi.Client, releaser *reaper.Service) *deliver.Coordinator {
	return deliver.NewCoordinator(log, fetcher, chain, client, releaser)
}

func provideBot(log *slog.Logger, cfg config.Config, client *maxapi.Client, svc *resolver.Service, coordinator *deliver.Coordinator) *bot.Service {
	return bot.NewService(log, client, svc, coordinator, cfg.Bot.PollTimeoutSeconds)
}

// provideServer builds the webhook receiver, or nil when webhook mode is not
// configured and long polling is in effect.
func provideServer(log *slog.Logger, cfg config.Config, botService *bot.Service) *server.Server {
	if cfg.Bot.WebhookSecret == "" {
		return nil
	}
	return server.NewServer(log, cfg.Server.Addr, cfg.Bot.WebhookSecret, botService)
}

func startReaper(lc fx.Lifecycle, svc *reaper.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Start()
		},
		OnStop: func(ctx context.Context) error {
			svc.Stop()
			return nil
		},
	})
}

// startBot runs the long-poll loop unless webhook mode is configured.
func startBot(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, botService *bot.Service) {
	if cfg.Bot.WebhookSecret != "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := botService.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("poll loop stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	if srv == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("http server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}
