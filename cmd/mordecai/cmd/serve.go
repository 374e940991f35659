package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iliagerman/mordecai-sub000/internal/adapters/delivery"
	"github.com/iliagerman/mordecai-sub000/internal/adapters/reasoner"
	"github.com/iliagerman/mordecai-sub000/internal/adapters/store"
	"github.com/iliagerman/mordecai-sub000/internal/api"
	"github.com/iliagerman/mordecai-sub000/internal/config"
	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/events"
	"github.com/iliagerman/mordecai-sub000/internal/logging"
	"github.com/iliagerman/mordecai-sub000/internal/metrics"
	"github.com/iliagerman/mordecai-sub000/internal/service/conversation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversation engine and HTTP API",
	Long: `Start the conversation engine with its HTTP API.

Examples:
  # Start with defaults (localhost:8080, sqlite store)
  mordecai serve

  # Listen on all interfaces
  mordecai serve --addr 0.0.0.0:3000`,
	RunE: runServe,
}

var serveAddr string

const shutdownGrace = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides server.addr)")
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

func openStore(cfg *config.Config) (core.ConversationStore, error) {
	return store.New(store.Options{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Redis: store.RedisConfig{
			Addr:      cfg.Store.Redis.Addr,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		},
	})
}

func newReasoner(cfg *config.Config, logger *logging.Logger) (*reasoner.CLIReasoner, error) {
	overrides := make(map[string]string, len(cfg.Reasoner.Agents))
	for uid, agent := range cfg.Reasoner.Agents {
		overrides[uid] = agent.Command
	}
	return reasoner.New(reasoner.Config{
		Command:            cfg.Reasoner.Command,
		Overrides:          overrides,
		Timeout:            cfg.Reasoner.TimeoutDuration(0),
		RateLimitPerMinute: cfg.Reasoner.RateLimitPerMinute,
	}, logger)
}

func newMessenger(cfg *config.Config, logger *logging.Logger) (*delivery.Messenger, error) {
	book, err := delivery.LoadAddressBook(cfg.Delivery.AddressBook, logger)
	if err != nil {
		return nil, fmt.Errorf("loading address book: %w", err)
	}

	var sender delivery.Sender
	switch cfg.Delivery.Mode {
	case "webhook":
		sender = delivery.NewWebhookSender(cfg.Delivery.WebhookURL, nil)
	default:
		sender = delivery.NewLogSender(logger)
	}
	return delivery.NewMessenger(book, sender), nil
}

func engineConfig(cfg *config.Config) conversation.Config {
	ec := conversation.DefaultConfig()
	if cfg.Conversation.DefaultMaxIterations > 0 {
		ec.DefaultMaxIterations = cfg.Conversation.DefaultMaxIterations
	}
	ec.InstructionTimeout = cfg.Conversation.InstructionWindow(ec.InstructionTimeout)
	ec.ClarificationTimeout = cfg.Conversation.ClarificationWindow(ec.ClarificationTimeout)
	ec.DeliveryTimeout = cfg.Conversation.DeliveryWindow(ec.DeliveryTimeout)
	if cfg.Conversation.ManagerUserID != "" {
		ec.ManagerUserID = cfg.Conversation.ManagerUserID
	}
	return ec
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn("failed to close store", "error", closeErr)
		}
	}()
	logger.Info("store opened", "backend", cfg.Store.Backend, "path", cfg.Store.Path)

	rsn, err := newReasoner(cfg, logger)
	if err != nil {
		return fmt.Errorf("configuring reasoner: %w", err)
	}

	messenger, err := newMessenger(cfg, logger)
	if err != nil {
		return err
	}
	if err := messenger.Book().Watch(); err != nil {
		logger.Warn("address book will not reload on change", "error", err)
	}
	defer messenger.Book().Close()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	bus := events.New(100)
	defer bus.Close()

	svc := conversation.New(st, rsn, messenger,
		conversation.WithConfig(engineConfig(cfg)),
		conversation.WithLogger(logger),
		conversation.WithEventBus(bus),
		conversation.WithMetrics(collector),
	)

	server := api.NewServer(svc, st,
		api.WithLogger(logger),
		api.WithEventBus(bus),
		api.WithMetrics(collector),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
	)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down conversations", "active", len(svc.ListActive()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return svc.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
