package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Dispatch related metrics
	RemindersSent        prometheus.Counter
	RemindersFailed      prometheus.Counter
	RemindersRescheduled prometheus.Counter
	DispatchDuration     prometheus.Histogram
	DueQueueSize         prometheus.Gauge
	SendRetries          prometheus.Counter

	// Reconciliation metrics
	RemindersCreated  prometheus.Counter
	RemindersDeleted  prometheus.Counter
	ReconcileDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		RemindersSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_sent_total",
			Help:      "Total number of reminders delivered successfully",
		}),
		RemindersFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_failed_total",
			Help:      "Total number of reminders that exhausted their retry budget",
		}),
		RemindersRescheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_rescheduled_total",
			Help:      "Total number of reminders pushed to a later dispatch pass",
		}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent running one dispatch pass",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		DueQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "due_reminders",
			Help:      "Number of due reminders found by the last dispatch pass",
		}),
		SendRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_retry_attempts_total",
			Help:      "Total number of immediate in-pass send retries",
		}),
		RemindersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_created_total",
			Help:      "Total number of reminders created by reconciliation",
		}),
		RemindersDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_deleted_total",
			Help:      "Total number of scheduled reminders removed by reconciliation",
		}),
		ReconcileDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent in reconciliation operations",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
	}
}

// NewForTest builds unregistered metrics so tests can construct services
// without touching the global prometheus registry.
func NewForTest() *Metrics {
	return &Metrics{
		RemindersSent:        prometheus.NewCounter(prometheus.CounterOpts{Name: "test_reminders_sent_total"}),
		RemindersFailed:      prometheus.NewCounter(prometheus.CounterOpts{Name: "test_reminders_failed_total"}),
		RemindersRescheduled: prometheus.NewCounter(prometheus.CounterOpts{Name: "test_reminders_rescheduled_total"}),
		DispatchDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_dispatch_duration_seconds"}),
		DueQueueSize:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_due_reminders"}),
		SendRetries:          prometheus.NewCounter(prometheus.CounterOpts{Name: "test_send_retry_attempts_total"}),
		RemindersCreated:     prometheus.NewCounter(prometheus.CounterOpts{Name: "test_reminders_created_total"}),
		RemindersDeleted:     prometheus.NewCounter(prometheus.CounterOpts{Name: "test_reminders_deleted_total"}),
		ReconcileDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_reconcile_duration_seconds"}, []string{"operation"}),
	}
}
