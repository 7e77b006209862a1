package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for invoice generation and email
// delivery. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Recurrence
	RecurrenceRuns    *prometheus.CounterVec
	InvoicesGenerated prometheus.Counter
	DueTemplates      prometheus.Gauge

	// Outbox
	OutboxDeliveries *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	EmailsEnqueued   *prometheus.CounterVec

	// Scheduler
	TaskRuns     *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "resibo"
	}
	factory := promauto.With(reg)

	return &Metrics{
		RecurrenceRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recurrence",
				Name:      "runs_total",
				Help:      "Monthly recurrence batches by result",
			},
			[]string{"result"}, // ok, error
		),
		InvoicesGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "recurrence",
				Name:      "invoices_generated_total",
				Help:      "Invoices created from recurring templates",
			},
		),
		DueTemplates: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "recurrence",
				Name:      "due_templates",
				Help:      "Templates found due by the last batch",
			},
		),
		OutboxDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "deliveries_total",
				Help:      "Outbox delivery attempts by outcome and failure category",
			},
			[]string{"outcome", "category"},
		),
		DeliveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "delivery_duration_seconds",
				Help:      "Time spent in the mail transport per attempt",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		EmailsEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "enqueued_total",
				Help:      "Emails added to the outbox by kind",
			},
			[]string{"kind"},
		),
		TaskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "task_runs_total",
				Help:      "Scheduled task executions by result",
			},
			[]string{"task", "result"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "task_duration_seconds",
				Help:      "Scheduled task duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task"},
		),
	}
}

// ObserveRecurrence records one batch.
func (m *Metrics) ObserveRecurrence(due, generated int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RecurrenceRuns.WithLabelValues("error").Inc()
		return
	}
	m.RecurrenceRuns.WithLabelValues("ok").Inc()
	m.DueTemplates.Set(float64(due))
	m.InvoicesGenerated.Add(float64(generated))
}

// ObserveDelivery records one transport attempt. category is empty on success.
func (m *Metrics) ObserveDelivery(outcome, category string, d time.Duration) {
	if m == nil {
		return
	}
	m.OutboxDeliveries.WithLabelValues(outcome, category).Inc()
	m.DeliveryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveEnqueue records an email added to the outbox.
func (m *Metrics) ObserveEnqueue(kind string) {
	if m == nil {
		return
	}
	m.EmailsEnqueued.WithLabelValues(kind).Inc()
}

// ObserveTask records one scheduler task execution.
func (m *Metrics) ObserveTask(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TaskRuns.WithLabelValues(task, result).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}
