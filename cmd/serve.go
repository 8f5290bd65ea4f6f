package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rincondev/warelay/internal/arbiter"
	"github.com/rincondev/warelay/internal/bus"
	"github.com/rincondev/warelay/internal/carrier"
	"github.com/rincondev/warelay/internal/carrier/telegram"
	"github.com/rincondev/warelay/internal/carrier/twilio"
	"github.com/rincondev/warelay/internal/config"
	httpapi "github.com/rincondev/warelay/internal/http"
	"github.com/rincondev/warelay/internal/prompt"
	"github.com/rincondev/warelay/internal/providers"
	"github.com/rincondev/warelay/internal/store"
	"github.com/rincondev/warelay/internal/store/pg"
	"github.com/rincondev/warelay/internal/store/sqlite"
	"github.com/rincondev/warelay/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// First run in Docker / CI: env vars provide the secrets, so write
	// the config non-interactively instead of requiring `onboard`.
	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) && canAutoOnboard() {
		if runAutoOnboard(cfgPath) {
			cfg, _ = config.Load(cfgPath)
		}
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Telemetry first so everything below can emit spans.
	telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry.Enabled, cfg.Telemetry.Endpoint)
	if err != nil {
		slog.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryShutdown(context.Background())

	// Message store: sqlite by default, postgres when configured.
	var messages store.MessageStore
	switch cfg.Database.Driver {
	case "postgres":
		messages, err = pg.New(cfg.Database.PostgresDSN)
	default:
		messages, err = sqlite.Open(cfg.Database.Path)
	}
	if err != nil {
		slog.Error("failed to open message store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer messages.Close()

	// System prompt: inline config text, or a file watched for edits.
	var prompts *prompt.Source
	if cfg.Assistant.SystemPromptFile != "" {
		prompts, err = prompt.FromFile(cfg.Assistant.SystemPromptFile)
		if err != nil {
			slog.Error("failed to load system prompt file", "path", cfg.Assistant.SystemPromptFile, "error", err)
			os.Exit(1)
		}
		if err := prompts.Watch(ctx); err != nil {
			slog.Warn("prompt file watch unavailable, edits require restart", "error", err)
		}
	} else {
		prompts = prompt.Static(cfg.Assistant.SystemPrompt)
	}

	provider := providers.NewOpenAIProvider(
		cfg.Assistant.Provider,
		cfg.Assistant.APIKey,
		cfg.Assistant.APIBase,
		cfg.Assistant.Model,
	)

	twilioCarrier, err := twilio.New(cfg.Carriers.Twilio)
	if err != nil {
		slog.Error("failed to init twilio carrier", "error", err)
		os.Exit(1)
	}
	router := carrier.NewRouter(twilioCarrier)

	events := bus.New()

	arb := arbiter.New(messages, router, provider, prompts, events, arbiter.Options{
		PauseWindow:              cfg.Assistant.PauseWindow(),
		CompletionTimeout:        cfg.Assistant.CompletionTimeout(),
		MaxConcurrentCompletions: cfg.Assistant.MaxConcurrentCompletions,
		CompletionRPM:            cfg.Assistant.CompletionRPM,
	})

	// Telegram is optional; its inbound messages flow through the same
	// arbiter as Twilio webhooks.
	var tg *telegram.Carrier
	if cfg.Carriers.Telegram.Enabled {
		tg, err = telegram.New(cfg.Carriers.Telegram, func(ctx context.Context, chatID, text string) {
			if _, err := arb.HandleInbound(ctx, chatID, text); err != nil {
				slog.Error("telegram inbound handling failed", "chat", chatID, "error", err)
			}
		})
		if err != nil {
			slog.Error("failed to init telegram carrier", "error", err)
			os.Exit(1)
		}
		router.Register(telegram.Prefix, tg)
		if err := tg.Start(ctx); err != nil {
			slog.Error("failed to start telegram polling", "error", err)
			os.Exit(1)
		}
	}

	server := httpapi.NewServer(cfg, arb, messages, events)

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		if tg != nil {
			tg.Stop()
		}
		cancel()
	}()

	slog.Info("warelay starting",
		"version", Version,
		"driver", storageDriver(cfg),
		"model", provider.DefaultModel(),
		"telegram", cfg.Carriers.Telegram.Enabled,
	)

	// Tailscale listener: build the mux first, then pass it to
	// initTailscale so the same routes are served on both listeners.
	// Compiled via build tags: `go build -tags tsnet` to enable.
	mux := server.BuildMux()
	tsCleanup := initTailscale(ctx, cfg, mux)
	if tsCleanup != nil {
		defer tsCleanup()
	}

	if cfg.Tailscale.Hostname != "" && cfg.Server.Host == "0.0.0.0" {
		slog.Info("Tailscale enabled. Consider setting WARELAY_HOST=127.0.0.1 for localhost-only + Tailscale access")
	}

	if err := server.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func storageDriver(cfg *config.Config) string {
	if cfg.Database.Driver == "postgres" {
		return "postgres"
	}
	return "sqlite"
}
