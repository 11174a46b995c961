// Package main provides the novacore-worker daemon entrypoint.
//
// The daemon runs the webhook delivery pool, the stale-delivery
// reaper, and the reminder loop, and serves Prometheus metrics.
// SIGINT and SIGTERM drain in-flight work before exit.
//
// Exit codes:
//   - 0: clean
//   - 1: runtime failure
//   - 2: configuration error
//   - 3: backend unreachable
//   - 4: signal-induced termination (after drain)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/oriys/novacore/config"
	"github.com/oriys/novacore/events"
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

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitBackend = 3
	exitSignal  = 4
)

func main() {
	app := &cli.App{
		Name:    "novacore-worker",
		Usage:   "Novacore delivery and reminder daemon",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (environment overrides it)",
				EnvVars: []string{"NOVACORE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Listen address for the Prometheus /metrics endpoint",
				Value: ":9090",
			},
			&cli.DurationFlag{
				Name:  "reminder-interval",
				Usage: "How often to scan for due reminders",
				Value: 30 * time.Second,
			},
		},
		Action:         runAction,
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitFailure)
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitFailure)
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("configuration error: %v", err), exitConfig)
	}

	logger := log.New(cfg.LoggerConfig("worker"))
	collector := metrics.NewCollector()
	clock := clockwork.NewRealClock()

	store, err := openStore(c.Context, cfg, collector)
	if err != nil {
		return err
	}

	g := guard.New(cfg.GuardConfig(), guard.Options{
		Store:   store,
		Clock:   clock,
		Logger:  logger,
		Metrics: collector,
	})
	client := transport.NewClient(cfg.TransportConfig(), transport.Options{
		Clock:   clock,
		Logger:  logger,
		Metrics: collector,
	})

	hooks := webhook.NewStore(store, clock)
	engine := webhook.NewEngine(hooks, clock, logger)
	worker := webhook.NewWorker(cfg.WorkerConfig(), hooks,
		webhook.NewGuardedSender(g, client), clock, logger, collector)
	reaper := webhook.NewReaper(hooks, clock, logger, 0)

	notifier := &webhookNotifier{
		engine:  engine,
		factory: events.NewFactory(cfg.Environment, clock),
	}
	reminders := reminder.NewScheduler(cfg.SchedulerConfig(), store, notifier, clock, logger)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grp, gctx := errgroup.WithContext(ctx)

	if cfg.Features.WebhooksEnabled {
		grp.Go(func() error { return worker.Run(gctx) })
		grp.Go(func() error { return reaper.Run(gctx) })
		logger.Info("webhook delivery enabled", map[string]any{
			"workers": cfg.Webhook.Workers,
		})
	}
	if cfg.Features.RemindersEnabled {
		interval := c.Duration("reminder-interval")
		grp.Go(func() error {
			return reminderLoop(gctx, reminders, clock, interval, logger, collector)
		})
		logger.Info("reminder loop enabled", map[string]any{
			"interval": interval.String(),
		})
	}
	if !cfg.Features.WebhooksEnabled && !cfg.Features.RemindersEnabled {
		logger.Warn("no features enabled; serving metrics only", nil)
	}

	srv := metricsServer(c.String("metrics-addr"), collector)
	grp.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("worker started", map[string]any{
		"metricsAddr": c.String("metrics-addr"),
		"environment": cfg.Environment,
	})

	err = grp.Wait()

	if ctx.Err() != nil {
		// Root cancellation only happens on SIGINT/SIGTERM; the group
		// has drained by the time Wait returns.
		logger.Info("drained after signal", nil)
		return cli.Exit("", exitSignal)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		code := exitFailure
		if errors.Is(err, fault.ErrBackendUnavailable) {
			code = exitBackend
		}
		return cli.Exit(err.Error(), code)
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

func openStore(ctx context.Context, cfg *config.Config, rec kv.OpRecorder) (kv.Store, error) {
	if cfg.Redis.URL == "" {
		return kv.Instrument(kv.NewMemory(nil), rec), nil
	}

	store, err := kvredis.New(kvredis.Config{URL: cfg.Redis.URL})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("configuration error: %v", err), exitConfig)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, cli.Exit(fmt.Sprintf("backend unreachable: %v", err), exitBackend)
	}
	return kv.Instrument(store, rec), nil
}

func metricsServer(addr string, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

// reminderLoop scans for due reminders until the context ends.
func reminderLoop(ctx context.Context, s *reminder.Scheduler, clock clockwork.Clock, interval time.Duration, logger *log.Logger, collector *metrics.Collector) error {
	for {
		stats, err := s.ProcessPending(ctx, clock.Now())
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			logger.Warn("reminder pass failed", map[string]any{"error": err.Error()})
		default:
			collector.ReminderOutcome("sent", stats.Sent)
			collector.ReminderOutcome("failed", stats.Failed)
			collector.ReminderOutcome("skipped", stats.Skipped)
			collector.ReminderOutcome("deferred", stats.Deferred)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(interval):
		}
	}
}

// webhookNotifier dispatches reminders as domain events through the
// webhook engine. A user without a subscribed webhook receives
// nothing; that still counts as a successful dispatch.
type webhookNotifier struct {
	engine  *webhook.Engine
	factory *events.Factory
}

var _ reminder.Notifier = (*webhookNotifier)(nil)

func (n *webhookNotifier) Notify(ctx context.Context, channel string, r *reminder.Reminder) error {
	ev := n.factory.ReminderTriggered(r.UserID, r.ID, channel, r.Title)
	_, err := n.engine.Publish(ctx, ev)
	return err
}
