// Package observability declares every Prometheus metric emitted by the
// scheduling core. Grouped here, as in the teacher repo, so every component
// registers against one consistent naming scheme.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskQueueDepth tracks pending job count per named queue.
	TaskQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskcore_queue_depth",
		Help: "Current number of jobs pending in a named queue",
	}, []string{"queue"})

	// SchedulerDecisions tracks scheduling admission/dispatch decisions.
	SchedulerDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskcore_scheduler_decisions_total",
		Help: "Total number of scheduling decisions made",
	}, []string{"decision", "reason"})

	// WorkerLoopDuration tracks the duration of one worker poll iteration.
	WorkerLoopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskcore_worker_loop_duration_seconds",
		Help:    "Duration of one worker dequeue-execute iteration",
		Buckets: prometheus.DefBuckets,
	})

	// QueueOldestJobAge tracks the age of the oldest un-acked job per queue.
	QueueOldestJobAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskcore_queue_oldest_job_age_seconds",
		Help: "Age in seconds of the oldest pending job in a queue",
	}, []string{"queue"})

	// TaskExecutionSeconds tracks end-to-end task execution time.
	TaskExecutionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskcore_task_execution_seconds",
		Help:    "Task execution time distribution",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"task_type"})

	// TaskOutcomes tracks completed/failed/timed-out tasks.
	TaskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskcore_task_outcomes_total",
		Help: "Total number of task executions by outcome",
	}, []string{"task_type", "outcome"})

	// TaskRetries tracks retry attempts issued by workers.
	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskcore_task_retries_total",
		Help: "Total number of task retry attempts",
	})

	// AdmissionWaitSeconds tracks time a job waits in queue before dispatch.
	AdmissionWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskcore_admission_wait_seconds",
		Help:    "Time a job waits in queue before a worker picks it up",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// AlertsFired tracks alert rule firings by rule name and severity.
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskcore_alerts_fired_total",
		Help: "Total number of alerts fired",
	}, []string{"rule", "severity"})

	// NotificationOutcomes tracks notification dispatch outcomes per channel.
	NotificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskcore_notification_outcomes_total",
		Help: "Total number of notification send attempts by channel and outcome",
	}, []string{"channel", "outcome"})

	// WorkerConcurrency tracks the configured concurrency per queue.
	WorkerConcurrency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taskcore_worker_concurrency",
		Help: "Configured worker concurrency for a queue",
	}, []string{"queue"})

	// SystemCPUPercent tracks the most recent system CPU sample.
	SystemCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskcore_system_cpu_percent",
		Help: "Most recent system CPU utilisation sample (0-100)",
	})

	// SystemMemoryPercent tracks the most recent system memory sample.
	SystemMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskcore_system_memory_percent",
		Help: "Most recent system memory utilisation sample (0-100)",
	})

	// StoreOperationLatency tracks TaskStore operation round-trip latency.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskcore_store_operation_latency_seconds",
		Help:    "TaskStore operation latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation"})

	// DependencyCycleRejections tracks cycle-detected rejections.
	DependencyCycleRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskcore_dependency_cycle_rejections_total",
		Help: "Total number of add_dependency calls rejected due to a cycle",
	})
)
