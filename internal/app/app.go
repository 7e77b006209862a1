// Package app assembles the stores, services and workers shared by the
// server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/resibo/internal"
	"github.com/dukerupert/resibo/internal/clock"
	"github.com/dukerupert/resibo/internal/domain"
	"github.com/dukerupert/resibo/internal/email"
	"github.com/dukerupert/resibo/internal/jobs"
	"github.com/dukerupert/resibo/internal/postgres"
	"github.com/dukerupert/resibo/internal/scheduler"
	"github.com/dukerupert/resibo/internal/service"
	"github.com/dukerupert/resibo/internal/telemetry"
	"github.com/dukerupert/resibo/internal/worker"
)

// MetricsNamespace prefixes every Prometheus metric the process exports.
const MetricsNamespace = "resibo"

// App holds the wired components. Close releases the pool.
type App struct {
	Config  *internal.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Pool    *pgxpool.Pool
	Metrics *telemetry.Metrics

	Outbox     *postgres.OutboxStore
	Recurrence domain.RecurrenceService
	Worker     *worker.OutboxWorker
	Cleanup    *jobs.OutboxCleanup
}

// Options adjust New. The zero value uses the system clock and the default
// Prometheus registerer.
type Options struct {
	Clock      clock.Clock
	Registerer prometheus.Registerer

	// SkipMigrations leaves the schema alone. The operator CLI sets it for
	// commands other than "migrate up".
	SkipMigrations bool
}

// Migrate opens a database/sql handle, applies pending migrations and
// closes it again.
func Migrate(ctx context.Context, dsn string, logger *slog.Logger) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")
	return nil
}

// New connects to the database and builds every component.
func New(ctx context.Context, cfg *internal.Config, logger *slog.Logger, opts Options) (*App, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	if !opts.SkipMigrations {
		if err := Migrate(ctx, cfg.DatabaseUrl, logger); err != nil {
			return nil, err
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseUrl, postgres.PoolConfig{
		MaxConns:        10,
		MaxConnIdleTime: 5 * time.Minute,
	})
	if err != nil {
		return nil, err
	}

	sender, err := NewSender(cfg.Email, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	metrics := telemetry.NewMetrics(MetricsNamespace, reg)
	outbox := postgres.NewOutboxStore(pool, logger)

	recurrenceOpts := []service.RecurrenceOption{service.WithMetrics(metrics)}
	if cfg.Notify.Email != "" {
		renderer, err := email.NewRenderer()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to load email templates: %w", err)
		}
		notifier := jobs.NewInvoiceNotifier(outbox, renderer, metrics, cfg.Notify.Email, cfg.Notify.CompanyName, logger)
		recurrenceOpts = append(recurrenceOpts, service.WithGeneratedHook(notifier))
	}

	recurrence := service.NewRecurrenceService(
		postgres.NewRecurrenceStore(pool, logger),
		logger,
		recurrenceOpts...,
	)

	w := worker.NewOutboxWorker(outbox, sender, clk, metrics, worker.Config{
		WorkerID:     cfg.Scheduler.WorkerID,
		LeaseTimeout: cfg.Scheduler.LeaseTimeout,
		MaxAttempts:  cfg.Scheduler.MaxAttempts,
	}, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Clock:      clk,
		Pool:       pool,
		Metrics:    metrics,
		Outbox:     outbox,
		Recurrence: recurrence,
		Worker:     w,
		Cleanup:    jobs.NewOutboxCleanup(outbox, clk, cfg.Scheduler.OutboxRetention, logger),
	}, nil
}

// Close releases the connection pool.
func (a *App) Close() {
	a.Pool.Close()
}

// NewSender picks the mail transport named by cfg.Provider.
func NewSender(cfg internal.EmailConfig, logger *slog.Logger) (email.Sender, error) {
	switch cfg.Provider {
	case "postmark":
		return email.NewPostmarkSender(cfg.PostmarkToken, formatFrom(cfg)), nil
	case "smtp", "":
		return email.NewSMTPSender(&email.SMTPConfig{
			Host:     cfg.Host,
			Port:     int(cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			FromName: cfg.FromName,
			Timeout:  cfg.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

func formatFrom(cfg internal.EmailConfig) string {
	if cfg.FromName == "" {
		return cfg.From
	}
	return fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
}

// Tasks returns the scheduler tasks for this configuration: the daily
// recurrence run, the outbox poller and, when retention is set, body pruning.
func (a *App) Tasks() ([]scheduler.Task, error) {
	sc := a.Config.Scheduler

	daily, err := scheduler.DailySchedule(sc.RecurrenceCron, sc.TimeZone)
	if err != nil {
		return nil, err
	}

	tasks := []scheduler.Task{
		{
			Name:     "recurrence",
			Schedule: daily,
			// The recurrence service captures its own failures.
			ReportsErrors: true,
			Run: func(ctx context.Context, firedAt time.Time) error {
				// firedAt is already in the recurrence zone; its calendar
				// date is the run date.
				res, err := a.Recurrence.RunMonthlyRecurringInvoices(ctx, firedAt)
				if err != nil {
					return err
				}
				a.Logger.InfoContext(ctx, "scheduled recurrence run finished",
					"run_date", res.TodayISO,
					"due", res.DueTemplateCount,
					"generated", res.GeneratedCount,
				)
				return nil
			},
		},
		{
			Name:     "outbox",
			Schedule: scheduler.Interval{Every: sc.PollInterval, Jitter: sc.PollJitter},
			Run: func(ctx context.Context, _ time.Time) error {
				return a.Worker.Run(ctx)
			},
		},
	}

	if sc.OutboxRetention > 0 {
		tasks = append(tasks, scheduler.Task{
			Name:     "outbox-cleanup",
			Schedule: scheduler.Interval{Every: time.Hour, Jitter: 5 * time.Minute},
			Run: func(ctx context.Context, _ time.Time) error {
				return a.Cleanup.Run(ctx)
			},
		})
	}

	return tasks, nil
}

// Scheduler builds a scheduler loaded with Tasks.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	tasks, err := a.Tasks()
	if err != nil {
		return nil, err
	}
	s := scheduler.New(a.Clock, a.Metrics, a.Logger)
	for _, t := range tasks {
		s.Add(t)
	}
	return s, nil
}
