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

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/taskline/taskline/internal/config"
	"github.com/taskline/taskline/internal/handlers"
	"github.com/taskline/taskline/internal/monitor"
	"github.com/taskline/taskline/internal/queue"
	"github.com/taskline/taskline/internal/ratelimit"
	"github.com/taskline/taskline/internal/rest"
	"github.com/taskline/taskline/internal/store"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job queue and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	envErr := godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	backend, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}
	defer backend.Close()

	reporter, flush, err := newReporter(cfg.Monitoring)
	if err != nil {
		return err
	}
	defer flush()

	q := queue.New(backend, cfg.QueueConfig(), queue.WithReporter(reporter))
	handlers.Register(q, nil)
	if err := q.Start(); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	api := rest.NewServer(q, ratelimit.NewLimiter(cfg.RateLimit))
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Str("storage", cfg.Storage.Backend).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return runCleanup(gctx, q, cfg.Queue.CleanupSchedule)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	if err := q.Shutdown(); err != nil {
		log.Error().Err(err).Msg("final persist failed")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// runCleanup calls ClearCompleted on the cron schedule until ctx ends.
// An empty schedule disables cleanup.
func runCleanup(ctx context.Context, q *queue.JobQueue, schedule string) error {
	if schedule == "" {
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() { q.ClearCompleted() }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	c.Start()
	log.Info().Str("schedule", schedule).Msg("completed job cleanup scheduled")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// newReporter picks Sentry when a DSN is configured and the log otherwise.
func newReporter(cfg config.MonitoringConfig) (monitor.Reporter, func(), error) {
	if cfg.SentryDSN == "" {
		return monitor.LogReporter{}, func() {}, nil
	}

	r, err := monitor.NewSentryReporter(monitor.SentryOptions{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("environment", cfg.Environment).Msg("reporting dead jobs to sentry")
	return r, func() { r.Flush(2 * time.Second) }, nil
}
