package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/oriys/novacore/cli/reader"
	"github.com/oriys/novacore/config"
	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/guard"
	"github.com/oriys/novacore/kv"
	kvredis "github.com/oriys/novacore/kv/redis"
	"github.com/oriys/novacore/log"
	"github.com/oriys/novacore/metrics"
	"github.com/oriys/novacore/reminder"
	"github.com/oriys/novacore/transport"
	"github.com/oriys/novacore/webhook"
)

// App holds the wired components commands act on. Commands build it
// lazily so version and help never touch a backend.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Metrics  *metrics.Collector
	Store    kv.Store
	Guard    *guard.Guard
	Fetcher  *transport.Fetcher
	Webhooks *webhook.Store
	Reader   *reader.Reader
}

// buildApp loads configuration and wires the components. Configuration
// problems exit with ExitConfig, an unreachable backend with
// ExitBackend.
func buildApp(c *cli.Context) (*App, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("configuration error: %v", err), ExitConfig)
	}

	logger := log.New(cfg.LoggerConfig("cli"))
	collector := metrics.NewCollector()

	store, err := openStore(c.Context, cfg, collector)
	if err != nil {
		return nil, err
	}

	g := guard.New(cfg.GuardConfig(), guard.Options{
		Store:   store,
		Logger:  logger,
		Metrics: collector,
	})
	client := transport.NewClient(cfg.TransportConfig(), transport.Options{
		Logger:  logger,
		Metrics: collector,
	})

	hooks := webhook.NewStore(store, nil)
	reminders := reminder.NewScheduler(cfg.SchedulerConfig(), store, nil, nil, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  collector,
		Store:    store,
		Guard:    g,
		Fetcher:  transport.NewFetcher(g, client, logger),
		Webhooks: hooks,
		Reader:   reader.New(hooks, reminders, nil),
	}, nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

// openStore selects the backend: Redis when a URL is configured, the
// in-process memory store otherwise. A configured Redis that does not
// answer a ping is a backend failure, not a config failure.
func openStore(ctx context.Context, cfg *config.Config, rec kv.OpRecorder) (kv.Store, error) {
	if cfg.Redis.URL == "" {
		return kv.Instrument(kv.NewMemory(nil), rec), nil
	}

	store, err := kvredis.New(kvredis.Config{URL: cfg.Redis.URL})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("configuration error: %v", err), ExitConfig)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, cli.Exit(fmt.Sprintf("backend unreachable: %v", err), ExitBackend)
	}
	return kv.Instrument(store, rec), nil
}

// exitErr maps an operation error onto the CLI exit codes.
func exitErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fault.ErrBackendUnavailable) {
		return cli.Exit(err.Error(), ExitBackend)
	}
	return cli.Exit(err.Error(), ExitFailure)
}
