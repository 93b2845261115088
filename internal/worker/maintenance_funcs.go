package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/broker"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/runner"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/store"
)

// defaultClaimBatch bounds how many due tasks one process_due_ai_tasks tick
// claims and fans out, so a single Beat tick can't flood ai_tasks past
// queue_block_length in one sweep.
const defaultClaimBatch = 100

// DefaultMaintenanceFuncs wires the Beat-seeded jobs (spec §6) against st
// and b. process_due_ai_tasks is the pipeline's actual seed: it claims due
// tasks from TaskStore and fans each one out as an execute_task job, which
// is what TaskHandler then picks up. The calendar/notion sync and
// db-optimize jobs have no external integration named anywhere in scope,
// so they're recorded as logged completions rather than invented against
// an API this core doesn't otherwise touch; cleanup_old_logs and
// cleanup_old_sessions are likewise logged completions — this core has no
// log or session store of its own to sweep.
func DefaultMaintenanceFuncs(st store.Store, b broker.Broker) map[string]MaintenanceFunc {
	log := logging.Component("maintenance")
	return map[string]MaintenanceFunc{
		"process_due_ai_tasks": claimAndEnqueueDueTasks(log, st, b),
		"cleanup_old_logs":     noopMaintenance(log, "cleanup_old_logs"),
		"sync_calendar_events": noopMaintenance(log, "sync_calendar_events"),
		"sync_notion_pages":    noopMaintenance(log, "sync_notion_pages"),
		"optimize_database":    noopMaintenance(log, "optimize_database"),
		"cleanup_old_sessions": noopMaintenance(log, "cleanup_old_sessions"),
	}
}

func noopMaintenance(log *zap.SugaredLogger, name string) MaintenanceFunc {
	return func(ctx context.Context, job *broker.Job) runner.ExecutionResult {
		log.Infow("maintenance job ran", "job", name)
		return runner.ExecutionResult{Success: true, Message: name + " completed"}
	}
}

// claimAndEnqueueDueTasks implements the process_due_ai_tasks seed job:
// TaskStore.claim_due_tasks (active -> processing under the store's own
// locking) followed by one execute_task enqueue per claimed task, at the
// ai_tasks queue's default priority.
func claimAndEnqueueDueTasks(log *zap.SugaredLogger, st store.Store, b broker.Broker) MaintenanceFunc {
	return func(ctx context.Context, job *broker.Job) runner.ExecutionResult {
		due, err := st.ClaimDueTasks(ctx, defaultClaimBatch, time.Now().UTC())
		if err != nil {
			return runner.ExecutionResult{Success: false, Message: "claim_due_tasks failed: " + err.Error(), Retryable: true}
		}

		enqueued := 0
		for _, t := range due {
			payload, err := json.Marshal(ExecuteTaskPayload{TaskID: t.ID})
			if err != nil {
				log.Errorw("failed to marshal execute_task payload", "task_id", t.ID, "error", err)
				continue
			}
			if _, err := b.Enqueue(broker.QueueAITasks, "execute_task", payload, broker.DefaultPriorities[broker.QueueAITasks], time.Time{}); err != nil {
				log.Errorw("failed to enqueue execute_task", "task_id", t.ID, "error", err)
				continue
			}
			enqueued++
		}

		log.Infow("process_due_ai_tasks tick", "claimed", len(due), "enqueued", enqueued)
		return runner.ExecutionResult{Success: true, Message: "enqueued due tasks"}
	}
}
