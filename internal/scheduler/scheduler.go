// Package scheduler runs periodic tasks on an injectable clock.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/resibo/internal/clock"
	"github.com/dukerupert/resibo/internal/telemetry"
)

// TaskFunc does one unit of work. firedAt is the scheduled time, in the
// schedule's location for cron schedules.
type TaskFunc func(ctx context.Context, firedAt time.Time) error

// Task pairs work with its schedule.
type Task struct {
	Name     string
	Schedule Schedule
	Run      TaskFunc

	// ReportsErrors marks tasks that send their own failures to Sentry.
	// The scheduler still logs and counts them.
	ReportsErrors bool
}

// Scheduler runs each task in its own loop. A task never overlaps itself:
// the next fire time is computed only after the previous run returns.
type Scheduler struct {
	clock   clock.Clock
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	tasks []Task
	wg    sync.WaitGroup
}

// New creates a Scheduler. metrics may be nil.
func New(clk clock.Clock, metrics *telemetry.Metrics, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Scheduler{clock: clk, metrics: metrics, logger: logger}
}

// Add registers a task. Tasks added after Start are not run.
func (s *Scheduler) Add(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
}

// Start launches every task loop. They stop when ctx is cancelled; call
// Wait to block until they have returned.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()

	for _, t := range tasks {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, t)
		}()
		s.logger.Info("scheduled task started", "task", t.Name, "next", t.Schedule.Next(s.clock.Now()).Format(time.RFC3339))
	}
}

// Wait blocks until all task loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	for {
		now := s.clock.Now()
		next := t.Schedule.Next(now)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduled task stopped", "task", t.Name)
			return
		case <-s.clock.After(next.Sub(now)):
		}

		s.run(ctx, t, next)
	}
}

// run executes one firing; errors and panics are logged and the loop goes on.
func (s *Scheduler) run(ctx context.Context, t Task, firedAt time.Time) {
	start := s.clock.Now()
	var err error

	func() {
		defer func() {
			if p := recover(); p != nil {
				s.logger.ErrorContext(ctx, "scheduled task panicked", "task", t.Name, "panic", p)
				err = errPanic
			}
		}()
		err = t.Run(ctx, firedAt)
	}()

	elapsed := s.clock.Now().Sub(start)
	s.metrics.ObserveTask(t.Name, elapsed, err)

	if err != nil && !errors.Is(err, errPanic) {
		s.logger.ErrorContext(ctx, "scheduled task failed", "task", t.Name, "error", err)
		if !t.ReportsErrors {
			captureError(err, map[string]string{"component": "scheduler", "task": t.Name}, nil)
		}
	}
}

var errPanic = errors.New("task panicked")

var captureError = telemetry.CaptureError
