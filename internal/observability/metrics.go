package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Queue metrics
	QueueDepth     prometheus.Gauge
	QueueEnqueued  prometheus.Counter
	QueueDequeued  prometheus.Counter
	QueueCompleted prometheus.Counter
	QueueFailed    prometheus.Counter

	// Exclusion application metrics
	ExclusionRunsTotal   prometheus.Counter
	ExclusionRunsFailed  prometheus.Counter
	ExclusionRunDuration prometheus.Histogram
	FindingsProcessed    prometheus.Counter
	ExclusionsApplied    *prometheus.CounterVec

	// Policy metrics
	PolicyPassed prometheus.Counter
	PolicyFailed prometheus.Counter

	// Exclusion write metrics
	ExclusionWrites *prometheus.CounterVec

	// Remediation metrics
	RemediationsTotal   *prometheus.CounterVec
	RemediationDuration prometheus.Histogram

	// Worker metrics
	WorkerTasksProcessed prometheus.Counter
	WorkerErrors         prometheus.Counter

	// Notification metrics
	NotificationsFailed prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			// Queue metrics
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "scorecard_queue_depth",
				Help: "Current number of tasks in the queue",
			}),
			QueueEnqueued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_queue_enqueued_total",
				Help: "Total number of tasks enqueued",
			}),
			QueueDequeued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_queue_dequeued_total",
				Help: "Total number of tasks dequeued",
			}),
			QueueCompleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_queue_completed_total",
				Help: "Total number of tasks completed successfully",
			}),
			QueueFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_queue_failed_total",
				Help: "Total number of tasks that failed",
			}),

			// Exclusion application metrics
			ExclusionRunsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_exclusion_runs_total",
				Help: "Total number of exclusion application runs",
			}),
			ExclusionRunsFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_exclusion_runs_failed_total",
				Help: "Total number of exclusion application runs that failed",
			}),
			ExclusionRunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "scorecard_exclusion_run_duration_seconds",
				Help:    "Duration of exclusion application runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			}),
			FindingsProcessed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_findings_processed_total",
				Help: "Total number of findings evaluated against exclusions",
			}),
			ExclusionsApplied: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scorecard_exclusions_applied_total",
					Help: "Total number of findings stamped with an exclusion, by status",
				},
				[]string{"status"},
			),

			// Policy metrics
			PolicyPassed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_policy_passed_total",
				Help: "Total number of accounts that passed policy evaluation",
			}),
			PolicyFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_policy_failed_total",
				Help: "Total number of accounts that failed policy evaluation",
			}),

			ExclusionWrites: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scorecard_exclusion_writes_total",
					Help: "Total number of exclusion writes by role",
				},
				[]string{"role"}, // admin, user
			),

			// Remediation metrics
			RemediationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scorecard_remediations_total",
					Help: "Total number of remediation runs by outcome status",
				},
				[]string{"status"},
			),
			RemediationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "scorecard_remediation_duration_seconds",
				Help:    "Duration of remediation runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
			}),

			// Worker metrics
			WorkerTasksProcessed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_worker_tasks_processed_total",
				Help: "Total number of tasks processed by workers",
			}),
			WorkerErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_worker_errors_total",
				Help: "Total number of worker errors",
			}),

			NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scorecard_notifications_failed_total",
				Help: "Total number of remediation notifications that could not be delivered",
			}),
		}
	})
	return metricsInstance
}
