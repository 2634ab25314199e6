package cli

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gitopia/gitopia-discord-bot/internal/adapters/gitopia"
	"github.com/gitopia/gitopia-discord-bot/internal/adapters/notifiers"
	"github.com/gitopia/gitopia-discord-bot/internal/adapters/stream"
	"github.com/gitopia/gitopia-discord-bot/internal/config"
	"github.com/gitopia/gitopia-discord-bot/internal/infra/httpserver"
	"github.com/gitopia/gitopia-discord-bot/internal/logging"
	"github.com/gitopia/gitopia-discord-bot/internal/mapping"
	"github.com/gitopia/gitopia-discord-bot/internal/metrics"
	"github.com/gitopia/gitopia-discord-bot/internal/services"
)

func (a *App) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the node and relay notifications until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger := logging.New(logging.Config{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Output: a.errOut,
			})
			return run(cmd.Context(), cfg, logger)
		},
	}
}

func (a *App) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return config.Config{}, err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// run wires the relay and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var (
		deliverAPI notifiers.BotAPI
		updatesAPI services.UpdatesAPI
	)
	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
		logger.Info().Str("account", bot.Self.UserName).Msg("telegram bot authorized")
		deliverAPI, updatesAPI = bot, bot
	} else {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN is empty, notifications will not be delivered")
	}

	registry := services.NewRegistry(m)
	resolver := gitopia.NewResolver(gitopia.NewClient(cfg.GitopiaAPIURL, cfg.LookupTimeout, m))
	mapper := mapping.NewMapper(resolver, mapping.NewFormatter(cfg.GitopiaWebURL, nil), cfg.LookupTimeout)
	dispatcher := services.NewDispatcher(registry, notifiers.NewTelegramNotifier(deliverAPI, cfg.SendRate, cfg.SendBurst), logger, m)
	pipeline := services.NewPipeline(mapper, dispatcher, logger, m)

	supervisor := stream.NewSupervisor(stream.Config{
		URL:              cfg.WSAddr,
		ReconnectDelay:   cfg.ReconnectDelay,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, pipeline, logger, m)
	bot := services.NewTelegramBotService(updatesAPI, services.NewCommands(registry), logger)
	srv := httpserver.NewServer(cfg, supervisor, registry, reg, logger)

	logger.Info().
		Str("ws_addr", cfg.WSAddr).
		Str("api_url", cfg.GitopiaAPIURL).
		Msg("relay starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervisor.Run(ctx) })
	g.Go(func() error { return bot.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	err := g.Wait()

	logger.Info().Msg("relay stopped")
	return err
}
