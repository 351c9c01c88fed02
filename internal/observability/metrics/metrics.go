// Package metrics exposes prometheus signals for the lifecycle engine and the
// recurring scheduler.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config carries the constant labels attached to every metric.
type Config struct {
	ServiceName string
	Environment string
}

// EngineMetrics captures lifecycle and scheduler health signals.
type EngineMetrics struct {
	transitions  *prometheus.CounterVec
	recomputes   *prometheus.CounterVec
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobErrors    *prometheus.CounterVec
	recurrences  *prometheus.CounterVec
	outboxEvents *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the singleton engine metrics registry.
func Engine() *EngineMetrics {
	return EngineWithConfig(Config{})
}

// EngineWithConfig returns the singleton engine metrics registry using config labels.
func EngineWithConfig(cfg Config) *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

// ResetEngineMetricsForTest resets the engine metrics singleton for tests.
func ResetEngineMetricsForTest() {
	engineMetricsOnce = sync.Once{}
	engineMetrics = nil
}

func newEngineMetrics(reg prometheus.Registerer, cfg Config) *EngineMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "billora"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	factory := promauto.With(reg)
	return &EngineMetrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "billora_invoice_transitions_total",
			Help:        "Successful invoice lifecycle transitions by emitted event.",
			ConstLabels: constLabels,
		}, []string{"event"}),
		recomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "billora_client_recomputes_total",
			Help:        "Client aggregate recomputations by resulting health tier.",
			ConstLabels: constLabels,
		}, []string{"health"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "billora_scheduler_job_runs_total",
			Help:        "Scheduler job executions.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "billora_scheduler_job_duration_seconds",
			Help:        "Scheduler job wall time.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"job"}),
		jobErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "billora_scheduler_job_errors_total",
			Help:        "Scheduler job failures.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		recurrences: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "billora_recurrences_total",
			Help:        "Recurring invoice outcomes (generated or deactivated).",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		outboxEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "billora_outbox_events_total",
			Help:        "Billing events appended to the outbox.",
			ConstLabels: constLabels,
		}, []string{"event_type"}),
	}
}

func (m *EngineMetrics) IncTransition(event string) {
	m.transitions.WithLabelValues(event).Inc()
}

func (m *EngineMetrics) IncRecompute(health string) {
	m.recomputes.WithLabelValues(health).Inc()
}

func (m *EngineMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *EngineMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *EngineMetrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *EngineMetrics) IncRecurrence(outcome string) {
	m.recurrences.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) IncOutboxEvent(eventType string) {
	m.outboxEvents.WithLabelValues(eventType).Inc()
}

const (
	RecurrenceOutcomeGenerated   = "generated"
	RecurrenceOutcomeDeactivated = "deactivated"
)
