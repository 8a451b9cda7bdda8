package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amira/goalflow/internal/config"
	"github.com/amira/goalflow/internal/logger"
	"github.com/amira/goalflow/pkg/backend"
	"github.com/amira/goalflow/pkg/digest"
	"github.com/amira/goalflow/pkg/flow"
	"github.com/amira/goalflow/pkg/gateway"
	"github.com/amira/goalflow/pkg/identity"
	"github.com/amira/goalflow/pkg/routine"
	"github.com/amira/goalflow/pkg/store"
	"github.com/amira/goalflow/pkg/tooldispatch"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GoalFlow server",
	Long: `Start the GoalFlow websocket server. Clients authenticate, then hold a
conversation or exchange request envelopes with the assistant.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	zlog := log.GetZerolog()

	db, err := store.Open(cfg.Database.Path, zlog)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	provider, err := backend.New(backend.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create llm backend: %w", err)
	}

	callTimeout := time.Duration(cfg.LLM.TimeoutSecs) * time.Second

	routines, err := routine.NewGenerator(routine.Config{
		Backend: provider,
		Logger:  zlog,
		Timeout: callTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create routine generator: %w", err)
	}

	dispatcher, err := tooldispatch.New(tooldispatch.Config{
		Store:    db,
		Routines: routines,
		Logger:   zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create tool dispatcher: %w", err)
	}

	clients := gateway.NewClientRegistry()

	executor, err := flow.NewExecutor(flow.Config{
		Backend:     provider,
		Dispatcher:  dispatcher,
		Channels:    clients,
		Logger:      zlog,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		CallTimeout: callTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	verifier, err := buildVerifier(cfg, zlog)
	if err != nil {
		return err
	}

	server, err := gateway.NewServer(gateway.Config{
		Port:     cfg.Server.Port,
		Verifier: verifier,
		Executor: executor,
		Sessions: flow.NewSessionStore(),
		Clients:  clients,
		Logger:   zlog,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	var digests *digest.Service
	if cfg.Digest.Enabled {
		digests, err = digest.NewService(digest.Config{
			Store:    db,
			Channels: clients,
			Logger:   zlog,
		})
		if err != nil {
			return fmt.Errorf("failed to create digest service: %w", err)
		}
		digests.Start()
	}

	watcher, err := config.NewWatcher(loader, func(next *config.Config) {
		log.SetLevel(next.Logging.Level)
	}, zlog)
	if err != nil {
		zlog.Warn().Err(err).Msg("Config hot reload disabled")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	zlog.Info().
		Int("port", cfg.Server.Port).
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Msg("GoalFlow server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zlog.Info().Str("signal", sig.String()).Msg("Shutting down")

	if digests != nil {
		digests.Stop()
	}
	if err := server.Stop(); err != nil {
		zlog.Error().Err(err).Msg("Gateway shutdown failed")
	}

	return nil
}

func buildVerifier(cfg *config.Config, zlog zerolog.Logger) (identity.Verifier, error) {
	switch cfg.Auth.Provider {
	case "google":
		return identity.NewGoogleVerifier(identity.GoogleConfig{
			Audience: cfg.Auth.Audience,
			Logger:   zlog,
		})
	case "static":
		zlog.Warn().Msg("Static token verification enabled, use google auth in production")
		return identity.StaticVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown auth provider: %s", cfg.Auth.Provider)
	}
}
