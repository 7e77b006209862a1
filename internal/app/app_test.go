package app

import (
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/resibo/internal"
	"github.com/dukerupert/resibo/internal/email"
)

func testApp(sc internal.SchedulerConfig) *App {
	return &App{
		Config: &internal.Config{Scheduler: sc},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func taskNames(t *testing.T, a *App) []string {
	t.Helper()
	tasks, err := a.Tasks()
	require.NoError(t, err)
	var names []string
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	return names
}

func TestTasks(t *testing.T) {
	sc := internal.SchedulerConfig{
		RecurrenceCron:  "0 1 * * *",
		TimeZone:        "Asia/Manila",
		PollInterval:    10 * time.Second,
		OutboxRetention: 30 * 24 * time.Hour,
	}
	assert.Equal(t, []string{"recurrence", "outbox", "outbox-cleanup"}, taskNames(t, testApp(sc)))

	tasks, err := testApp(sc).Tasks()
	require.NoError(t, err)
	assert.True(t, tasks[0].ReportsErrors, "recurrence failures are captured once, by the service")
	assert.False(t, tasks[1].ReportsErrors)

	sc.OutboxRetention = 0
	assert.Equal(t, []string{"recurrence", "outbox"}, taskNames(t, testApp(sc)))
}

func TestTasks_RecurrenceFiresInZone(t *testing.T) {
	a := testApp(internal.SchedulerConfig{
		RecurrenceCron: "0 1 * * *",
		TimeZone:       "Asia/Manila",
		PollInterval:   time.Second,
	})
	tasks, err := a.Tasks()
	require.NoError(t, err)

	// 18:00 UTC is 02:00 the next day in Manila; the next 01:00 is a day later.
	next := tasks[0].Schedule.Next(time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-03-16T01:00:00+08:00", next.Format(time.RFC3339))
}

func TestTasks_InvalidCron(t *testing.T) {
	a := testApp(internal.SchedulerConfig{RecurrenceCron: "every day", TimeZone: "UTC", PollInterval: time.Second})
	_, err := a.Tasks()
	assert.Error(t, err)
}

func TestNewSender(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewSender(internal.EmailConfig{Provider: "smtp", Host: "localhost", Port: 1025, From: "a@b.c"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &email.SMTPSender{}, s)

	s, err = NewSender(internal.EmailConfig{Provider: "postmark", PostmarkToken: "tok", From: "a@b.c"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &email.PostmarkSender{}, s)

	_, err = NewSender(internal.EmailConfig{Provider: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}

func TestFormatFrom(t *testing.T) {
	assert.Equal(t, "billing@example.com", formatFrom(internal.EmailConfig{From: "billing@example.com"}))
	assert.Equal(t, "Resibo Billing <billing@example.com>",
		formatFrom(internal.EmailConfig{From: "billing@example.com", FromName: "Resibo Billing"}))
}
