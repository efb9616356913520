package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rtmbot/pkg/channel"
	"rtmbot/pkg/channel/rtm"
	"rtmbot/pkg/channel/telegram"
	"rtmbot/pkg/command"
	commandbuiltin "rtmbot/pkg/command/builtin"
	"rtmbot/pkg/config"
	"rtmbot/pkg/gateway"
	"rtmbot/pkg/logger"
	"rtmbot/pkg/metrics"
	"rtmbot/pkg/session"
	"rtmbot/pkg/webhook"
	webhookbuiltin "rtmbot/pkg/webhook/builtin"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the gateway and start dispatching",
	Long:  "Initialises a gateway session, connects every enabled transport, and serves webhooks when a webserver port is configured.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.run")

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runBot(runCtx, cfg, log); err != nil {
			log.Error("Bot stopped", "error", err)
			return err
		}
		log.Info("Bot stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	sc, err := session.Initialize(ctx, session.NewHTTPInitiator(cfg.Bot.SessionURL), session.Credentials{Token: cfg.Bot.Token})
	if err != nil {
		return err
	}
	log.Info("Session initialised", "self_id", sc.SelfID())

	commands, err := commandRegistry(cfg, log)
	if err != nil {
		return err
	}
	webhooks, err := webhookRegistry(cfg, log)
	if err != nil {
		return err
	}

	adapters, err := enabledAdapters(cfg, sc, log)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	svc, err := gateway.NewService(cfg, gateway.Dependencies{
		Session:  sc,
		Commands: commands,
		Webhooks: webhooks,
		Adapters: adapters,
		Metrics:  collector,
	}, log)
	if err != nil {
		return fmt.Errorf("initialize service: %w", err)
	}

	log.Info("Bot started",
		"channels", enabledChannelNames(adapters),
		"commands", strings.Join(commands.Names(), ","),
		"webhooks", strings.Join(webhooks.Names(), ","),
		"webserver", cfg.Webserver.Enabled(),
	)
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// commandRegistry loads the built-in commands that are not disabled.
func commandRegistry(cfg *config.Config, log *slog.Logger) (*command.Registry, error) {
	registry := command.NewRegistry()

	var defaults []command.Handler
	for _, h := range commandbuiltin.Defaults() {
		if cfg.CommandEnabled(h.Name()) {
			defaults = append(defaults, h)
		}
	}

	loaded, err := registry.LoadDefaults(defaults...)
	if err != nil {
		return nil, fmt.Errorf("load built-in commands: %w", err)
	}
	log.Debug("Loaded built-in commands", "names", loaded)
	return registry, nil
}

// webhookRegistry loads the built-in webhooks that are not disabled.
func webhookRegistry(cfg *config.Config, log *slog.Logger) (*webhook.Registry, error) {
	registry := webhook.NewRegistry()

	var defaults []webhook.Handler
	for _, h := range webhookbuiltin.Defaults() {
		if cfg.WebhookEnabled(h.Name()) {
			defaults = append(defaults, h)
		}
	}

	loaded, err := registry.LoadDefaults(defaults...)
	if err != nil {
		return nil, fmt.Errorf("load built-in webhooks: %w", err)
	}
	log.Debug("Loaded built-in webhooks", "names", loaded)
	return registry, nil
}

// enabledAdapters returns the gateway stream first so it becomes the primary
// transport, followed by any optional transports.
func enabledAdapters(cfg *config.Config, sc *session.Context, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	stream, err := rtm.NewAdapter(sc.URL(), log)
	if err != nil {
		return nil, fmt.Errorf("configure gateway stream: %w", err)
	}
	adapters = append(adapters, stream)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
