package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/resibo/internal"
	"github.com/dukerupert/resibo/internal/app"
	"github.com/dukerupert/resibo/internal/email"
	"github.com/dukerupert/resibo/internal/handler"
	"github.com/dukerupert/resibo/internal/middleware"
	"github.com/dukerupert/resibo/internal/router"
	"github.com/dukerupert/resibo/internal/routes"
	"github.com/dukerupert/resibo/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	flush, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Enabled:     cfg.Sentry.Enabled,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
		Debug:       cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flush()

	logger.Info("Connecting to database...")
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	logger.Info("Database connection established")

	// A failed check is logged; the worker retries delivery on its own schedule.
	verifyTimeout := cfg.Email.Timeout
	if verifyTimeout <= 0 {
		verifyTimeout = email.DefaultSMTPTimeout
	}
	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	_ = a.Worker.Verify(verifyCtx)
	cancel()

	// ==========================================================================
	// Scheduler
	// ==========================================================================

	sched, err := a.Scheduler()
	if err != nil {
		return fmt.Errorf("scheduler configuration failed: %w", err)
	}
	if cfg.Scheduler.Enabled {
		logger.Info("Starting scheduler",
			"recurrence_cron", cfg.Scheduler.RecurrenceCron,
			"timezone", cfg.Scheduler.TimeZone,
			"worker_id", a.Worker.WorkerID(),
		)
		sched.Start(ctx)
	} else {
		logger.Warn("Scheduler disabled; recurrence runs only via API or CLI")
	}

	// ==========================================================================
	// HTTP
	// ==========================================================================

	httpMetrics := middleware.NewMetrics(app.MetricsNamespace, prometheus.DefaultRegisterer)

	r := router.New(
		router.Recovery(logger),
		telemetry.SentryMiddleware,
		middleware.RequestID,
		middleware.WithRequestLogger(logger),
		httpMetrics.Middleware,
		router.Logger(logger),
	)

	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		DB:             a.Pool,
		MetricsHandler: promhttp.Handler(),
	})
	routes.RegisterAPIRoutes(r, routes.APIDeps{
		RecurringHandler: handler.NewRecurringHandler(a.Recurrence, a.Clock, cfg.Scheduler.Location, logger),
		APIToken:         cfg.APIToken,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			sched.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}

	// In-flight task runs finish before the pool closes.
	sched.Wait()
	logger.Info("Shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
