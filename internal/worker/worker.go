// Package worker implements the Worker (C10): concurrent execution slots
// that dequeue jobs, resolve a handler, run it, and resolve success/failure
// exactly per spec §4.10. Grounded on the teacher's scheduler.worker loop
// shape (ticker-driven poll, observability hooks, panic recovery) adapted
// from a single reconciliation queue to N named broker queues with
// independent concurrent slots.
package worker

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/alert"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/broker"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/depgraph"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/metrics"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/notify"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/observability"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/runner"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/schedule"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/store"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
)

// Default retry backoff parameters (spec §4.10): base x 2^retry, capped.
const (
	defaultRetryBase       = 60 * time.Second
	defaultRetryCap        = 3600 * time.Second
	defaultPollTimeout     = 5 * time.Second
	defaultGracefulTimeout = 30 * time.Second
)

// HandlerResult is what a Handler reports back. Task is non-nil only for
// `execute_task` jobs backed by an AITask — the Worker uses it to drive
// the schedule/store/notify side of spec §4.10 step 4. Maintenance jobs
// leave Task nil and the Worker skips that side entirely.
type HandlerResult struct {
	Result runner.ExecutionResult
	Task   *task.AITask
}

// Handler resolves a job's payload into a runnable unit of work. AI task
// execution is handled by TaskHandler (wrapping a runner.Runner);
// maintenance jobs (cleanup, sync, optimize) register their own Handler.
type Handler interface {
	Handle(ctx context.Context, job *broker.Job) HandlerResult
}

// Config configures one Worker: queues, concurrency, max_tasks_per_child,
// task_timeout, the graceful-shutdown timeout and the retry limit. There is
// no separate soft_timeout.
type Config struct {
	Queues           []broker.QueueName
	Concurrency      int
	MaxTasksPerChild int // 0 disables the respawn bound
	TaskTimeout      time.Duration
	GracefulTimeout  time.Duration
	MaxRetries       int
}

// slotCeilingFactor bounds how far PerformanceOptimizer can scale a
// Worker's concurrency up at runtime: Run spawns slotCeilingFactor times
// the initial concurrency as idle-capable goroutines up front, since
// goroutines can't be added to a running errgroup later — only woken via
// activeSlots.
const slotCeilingFactor = 4

// Worker is the Worker (C10) component.
type Worker struct {
	cfg      Config
	broker   broker.Broker
	store    store.Store
	deps     *depgraph.Graph
	metrics  *metrics.Collector
	alerts   *alert.Manager
	notify   *notify.Dispatcher
	handlers map[string]Handler

	maxSlots    int
	activeSlots int32 // atomic; slots with index >= this idle instead of dequeuing

	id  string
	log *zap.SugaredLogger
}

// New builds a Worker. handlers maps task_name -> Handler; any job whose
// TaskName has no registered handler is nacked without requeue and logged.
func New(id string, cfg Config, b broker.Broker, st store.Store, deps *depgraph.Graph, mc *metrics.Collector, am *alert.Manager, nd *notify.Dispatcher, handlers map[string]Handler) *Worker {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 60 * time.Second
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	w := &Worker{
		cfg: cfg, broker: b, store: st, deps: deps, metrics: mc, alerts: am, notify: nd,
		handlers: handlers, id: id, log: logging.Component("worker").With("worker_id", id),
		maxSlots: cfg.Concurrency * slotCeilingFactor,
	}
	atomic.StoreInt32(&w.activeSlots, int32(cfg.Concurrency))
	return w
}

// SetConcurrency adjusts how many of the worker's slots actively dequeue,
// clamped to [1, maxSlots]. Called by the orchestrator's monitoring loop
// after PerformanceOptimizer.OptimizeWorkerConfiguration (spec §4.8); takes
// effect on every slot's next poll iteration without tearing down or
// respawning goroutines.
func (w *Worker) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	if n > w.maxSlots {
		n = w.maxSlots
	}
	atomic.StoreInt32(&w.activeSlots, int32(n))
}

// ActiveSlots reports the worker's current applied concurrency, for tests
// and diagnostics.
func (w *Worker) ActiveSlots() int32 {
	return atomic.LoadInt32(&w.activeSlots)
}

// Run starts maxSlots slots, each independently dequeuing from cfg.Queues,
// until ctx is cancelled. Only the first activeSlots of them dequeue at any
// moment (initially cfg.Concurrency); the rest idle until SetConcurrency
// raises the limit, which lets concurrency scale up at runtime without a
// fixed-size errgroup needing to grow. On cancellation, slots stop
// dequeuing, and in-flight handlers see their context cancelled at once;
// each such job then resolves through the normal success/failure path.
// cfg.GracefulTimeout is not consulted and no job is nacked on shutdown.
// Cancellation arrives through ctx; signal handling belongs to the
// Orchestrator.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for slot := 0; slot < w.maxSlots; slot++ {
		slotID := slot
		g.Go(func() error {
			w.runSlot(gctx, slotID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runSlot(ctx context.Context, slot int) {
	completions := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if int32(slot) >= atomic.LoadInt32(&w.activeSlots) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(defaultPollTimeout):
			}
			continue
		}
		if w.cfg.MaxTasksPerChild > 0 && completions >= w.cfg.MaxTasksPerChild {
			w.log.Infow("slot exiting for respawn", "slot", slot, "completions", completions)
			return
		}

		job := w.dequeueAny(ctx)
		if job == nil {
			continue
		}

		w.processJob(ctx, job)
		completions++
	}
}

// dequeueAny polls every configured queue once per loop, in priority order,
// returning the first ready job found or nil if nothing was ready within
// defaultPollTimeout. This keeps higher-priority queues from starving while
// still giving every queue a turn each sweep.
func (w *Worker) dequeueAny(ctx context.Context) *broker.Job {
	perQueueTimeout := defaultPollTimeout
	if n := len(w.cfg.Queues); n > 0 {
		perQueueTimeout = defaultPollTimeout / time.Duration(n)
	}
	for _, q := range w.cfg.Queues {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		job, err := w.broker.Dequeue(q, w.id, perQueueTimeout, w.visibilityFor())
		if err != nil {
			w.log.Warnw("dequeue failed", "queue", q, "error", err)
			continue
		}
		if job != nil {
			return job
		}
	}
	return nil
}

func (w *Worker) visibilityFor() time.Duration {
	return w.cfg.TaskTimeout + 30*time.Second
}

func (w *Worker) processJob(ctx context.Context, job *broker.Job) {
	queuedFor := time.Since(job.EnqueuedAt)
	w.metrics.StartTask(metricsTaskID(job, nil), job.TaskName, w.id, string(job.Queue), job.Priority, queuedFor, 0, 0)
	if w.deps != nil {
		w.deps.RecordStatus(job.TaskIDOrZero(), depgraph.StatusPending)
	}

	handler, ok := w.handlers[job.TaskName]
	if !ok {
		w.log.Errorw("no handler registered for task", "task_name", job.TaskName)
		w.metrics.EndTask(metricsTaskID(job, nil), "failed", nil, 0, 0)
		_ = w.broker.Nack(job.ID, false)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	handled := handler.Handle(taskCtx, job)
	cancel()

	if handled.Result.Success {
		w.onSuccess(ctx, job, handled)
	} else {
		w.onFailure(ctx, job, handled)
	}
}

func (w *Worker) onSuccess(ctx context.Context, job *broker.Job, handled HandlerResult) {
	w.metrics.EndTask(metricsTaskID(job, handled.Task), "completed", nil, 0, 0)
	observability.TaskOutcomes.WithLabelValues(job.TaskName, "success").Inc()

	t := handled.Task
	if t != nil {
		if w.deps != nil {
			w.deps.RecordStatus(t.ID, depgraph.StatusCompleted)
		}
		if len(t.NotificationChannels) > 0 && w.notify != nil {
			w.notify.Dispatch(ctx, t.NotificationChannels, notify.Message{
				UserID:  t.UserID,
				Subject: t.Title,
				Body:    handled.Result.Message,
				Context: map[string]any{"task_id": t.ID},
			})
		}

		nextRun, err := schedule.NextRun(t.ScheduleType, t.ScheduleConfig, time.Now().UTC())
		if err != nil {
			w.log.Errorw("next-run calculation failed", "task_id", t.ID, "error", err)
		}
		if t.ScheduleType == task.ScheduleOnce {
			// A one-shot task is terminal once it has run, even if it ran before run_at.
			nextRun = nil
		}
		status := task.StatusActive
		if nextRun == nil {
			status = task.StatusCompleted
		}
		if err := w.store.UpdateAfterRun(ctx, t.ID, task.RunUpdate{Status: status, LastRunAt: time.Now().UTC(), NextRunAt: nextRun}); err != nil {
			w.log.Errorw("update_after_run failed", "task_id", t.ID, "error", err)
		}
	}

	if err := w.broker.Ack(job.ID); err != nil {
		w.log.Warnw("ack failed", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) onFailure(ctx context.Context, job *broker.Job, handled HandlerResult) {
	observability.TaskOutcomes.WithLabelValues(job.TaskName, "failure").Inc()

	if job.RetryCount < w.cfg.MaxRetries {
		delay := backoffFor(job.RetryCount)
		job.RetryCount++
		if _, err := w.broker.Enqueue(job.Queue, job.TaskName, job.Payload, job.Priority, time.Now().UTC().Add(delay)); err != nil {
			w.log.Errorw("requeue after failure failed", "job_id", job.ID, "error", err)
		}
		observability.TaskRetries.Inc()
		_ = w.broker.Ack(job.ID)
		w.metrics.EndTask(metricsTaskID(job, handled.Task), "retrying", nil, 0, 0)
		return
	}

	w.metrics.EndTask(metricsTaskID(job, handled.Task), "failed", nil, 0, 0)
	_ = w.broker.Ack(job.ID)

	t := handled.Task
	if t != nil {
		if w.deps != nil {
			w.deps.RecordStatus(t.ID, depgraph.StatusFailed)
		}
		if err := w.store.UpdateAfterRun(ctx, t.ID, task.RunUpdate{Status: task.StatusFailed, LastRunAt: time.Now().UTC(), Error: handled.Result.Message}); err != nil {
			w.log.Errorw("update_after_run(failed) failed", "task_id", t.ID, "error", err)
		}
	}

	if w.alerts != nil {
		w.alerts.Evaluate(time.Now().UTC(), map[alert.Condition]float64{alert.ConditionTaskFailureRate: 1.0})
	}
}

// backoffFor computes base*2^retry capped at defaultRetryCap (spec §4.10).
func backoffFor(retryCount int) time.Duration {
	d := time.Duration(float64(defaultRetryBase) * math.Pow(2, float64(retryCount)))
	if d > defaultRetryCap {
		d = defaultRetryCap
	}
	return d
}

// metricsTaskID prefers the resolved AITask's id; maintenance jobs with no
// backing task fall back to hashing the job id isn't useful for ring-buffer
// keys, so they use 0 (MetricsCollector treats task_id as opaque for these).
func metricsTaskID(job *broker.Job, t *task.AITask) int64 {
	if t != nil {
		return t.ID
	}
	return job.TaskIDOrZero()
}
