// Package broker implements the priority-aware, at-least-once FIFO queues
// (C9) the scheduling core dispatches work through. Grounded on the
// teacher's Redis-backed store (lock/lease idiom in store/redis.go and the
// two-phase LOCKED/RESULT pattern in store/redis_idempotency.go), adapted
// from HTTP-request idempotency to job visibility-timeout redelivery.
package broker

import "time"

// QueueName is one of the five stable, wire-format queue names from spec §6.
// These MUST NOT change — they are referenced by name across the wire.
type QueueName string

const (
	QueueAITasks      QueueName = "ai_tasks"
	QueueSyncTasks     QueueName = "sync_tasks"
	QueueEmailTasks    QueueName = "email_tasks"
	QueueFileTasks     QueueName = "file_tasks"
	QueueMaintenance   QueueName = "maintenance_tasks"
)

// DefaultPriorities maps every stable queue name to its default priority,
// higher runs first. Per spec §6 / §9.
var DefaultPriorities = map[QueueName]int{
	QueueAITasks:    10,
	QueueSyncTasks:  7,
	QueueEmailTasks: 5,
	QueueFileTasks:  3,
	QueueMaintenance: 1,
}

// AllQueues lists every queue in a stable order, for iteration (e.g.
// queue-length sampling by MetricsCollector/PerformanceOptimizer).
var AllQueues = []QueueName{QueueAITasks, QueueSyncTasks, QueueEmailTasks, QueueFileTasks, QueueMaintenance}

// Job is the unit the Broker transports: a named task and its payload,
// plus delivery bookkeeping the core surfaces to aid idempotency (spec §4.9).
// TaskID is a weak, opaque reference to the AITask a job executes on
// behalf of (spec §3's "referenced by weak id-only from DependencyScheduler
// and MetricsCollector"); it is zero for maintenance jobs with no backing
// AITask.
type Job struct {
	ID         string
	Queue      QueueName
	TaskName   string
	Payload    []byte
	Priority   int
	ETA        time.Time // zero means "ready now"
	RetryCount int
	EnqueuedAt time.Time
	TaskID     int64
}

// TaskIDOrZero returns j.TaskID, or 0 if j is nil.
func (j *Job) TaskIDOrZero() int64 {
	if j == nil {
		return 0
	}
	return j.TaskID
}

// Broker is the contract every queue backend implements (C9).
type Broker interface {
	Enqueue(queue QueueName, taskName string, payload []byte, priority int, eta time.Time) (*Job, error)

	// Dequeue blocks up to timeout for a ready job on queue, or returns nil
	// if none became ready in time. visibility is the duration the job stays
	// invisible to other dequeuers until Ack/Nack.
	Dequeue(queue QueueName, workerID string, timeout, visibility time.Duration) (*Job, error)

	Ack(jobID string) error

	// Nack returns a job to visibility. If requeue is false the job is
	// dropped (caller has already recorded terminal failure).
	Nack(jobID string, requeue bool) error

	// QueueLength reports the number of ready+in-flight jobs, for
	// backpressure (§5) and metrics sampling (§4.6/§4.8).
	QueueLength(queue QueueName) (int, error)
}
