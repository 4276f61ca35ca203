package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes.
const (
	OutcomeSent             = "sent"
	OutcomeFailed           = "failed"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeNotFound         = "not_found"
	OutcomeStoreError       = "store_error"
)

var (
	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsalert_alerts_created_total",
			Help: "Alerts materialized by condition evaluators",
		},
		[]string{"rule"},
	)

	EvaluatorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsalert_evaluator_failures_total",
			Help: "Condition evaluator invocations that returned an error or panicked",
		},
		[]string{"rule"},
	)

	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsalert_dispatches_total",
			Help: "Alert dispatch attempts by alert type and outcome",
		},
		[]string{"alert_type", "outcome"},
	)

	// SecondaryFailures counts best-effort phase activation calls that failed.
	SecondaryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "opsalert_phase_activation_failures_total",
			Help: "Failed best-effort phase activation deliveries",
		},
	)

	// StoreWriteFailures is the one to page on: the recorded status of an
	// alert no longer matches what was delivered.
	StoreWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "opsalert_status_write_failures_total",
			Help: "Alert status writes that failed after the webhook outcome was known",
		},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opsalert_batch_run_duration_seconds",
			Help:    "Duration of batch runs",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var once sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(AlertsCreated, EvaluatorFailures, Dispatches,
			SecondaryFailures, StoreWriteFailures, RunDuration)
	})
}
