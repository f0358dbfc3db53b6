// keyed-jobs serves the order simulation API over HTTP.
//
// Configuration comes from defaults, an optional YAML file (--config),
// KEYED_JOBS_* environment variables and finally the flags below.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/keyed-jobs/pkg/api"
	"github.com/jdziat/keyed-jobs/pkg/config"
	"github.com/jdziat/keyed-jobs/pkg/orders"
	"github.com/jdziat/keyed-jobs/pkg/queue"
	"github.com/jdziat/keyed-jobs/pkg/schedule"
	"github.com/jdziat/keyed-jobs/pkg/storage"
	"github.com/jdziat/keyed-jobs/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("keyed-jobs", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	addr := flags.String("addr", "", "listen address (overrides config)")
	driver := flags.String("db-driver", "", "storage driver: memory, sqlite or postgres")
	dsn := flags.String("db-dsn", "", "storage data source name")
	latency := flags.Duration("latency", 0, "simulated work per order job")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = *addr
	}
	if flags.Changed("db-driver") {
		cfg.Database.Driver = *driver
	}
	if flags.Changed("db-dsn") {
		cfg.Database.DSN = *dsn
	}
	if flags.Changed("latency") {
		cfg.Jobs.Latency = *latency
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := storage.Connect(ctx, cfg.Database.Driver, cfg.Database.DSN,
		storage.MaxOpenConns(cfg.Database.MaxOpenConns),
		storage.MaxIdleConns(cfg.Database.MaxIdleConns),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("failed to close storage", "error", err)
		}
	}()

	q := queue.New(store, queue.WithLogger(logger))
	if n, err := q.FailInterrupted(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("marked jobs from a previous run as failed", "count", n)
	}
	svc := orders.NewService(q, store,
		orders.WithLatency(cfg.Jobs.Latency),
		orders.WithAdmissionTimeout(cfg.Jobs.AdmissionTimeout),
	)

	for _, sc := range cfg.Schedules {
		sched, err := schedule.Parse(sc.Schedule)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", sc.Job, err)
		}
		q.Schedule(sc.Job, sc.Key, sched, sc.Args)
	}

	w := worker.NewWorker(q,
		worker.WithScheduler(len(cfg.Schedules) > 0),
		worker.WithMonitor(true),
		worker.MonitorInterval(cfg.Jobs.MonitorInterval),
		worker.StuckAfter(cfg.Jobs.StuckAfter),
	)

	srv := api.NewServer(q, svc, api.WithRateLimit(cfg.Server.SubmitRate, cfg.Server.SubmitBurst))
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr, "driver", cfg.Database.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := w.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if err := q.Wait(shutdownCtx); err != nil {
			logger.Warn("jobs still running at shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}
