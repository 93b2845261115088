package worker

import (
	"context"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/broker"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/runner"
)

// MaintenanceFunc performs one maintenance job's work (cleanup_old_logs,
// sync_calendar_events, sync_notion_pages, optimize_database,
// cleanup_old_sessions). It follows TaskRunner's no-raise convention: a
// failure is reported through ExecutionResult, not a Go error, so the
// Worker's generic retry/backoff path handles it identically to a failed
// execute_task job.
type MaintenanceFunc func(ctx context.Context, job *broker.Job) runner.ExecutionResult

// MaintenanceHandler implements Handler for the Beat-seeded maintenance
// jobs (spec §6's beat schedule). These have no backing AITask, so
// HandlerResult.Task is always left nil — the Worker skips the
// schedule/store/notify side of onSuccess for them entirely.
type MaintenanceHandler struct {
	Funcs map[string]MaintenanceFunc
}

func (h *MaintenanceHandler) Handle(ctx context.Context, job *broker.Job) HandlerResult {
	fn, ok := h.Funcs[job.TaskName]
	if !ok {
		return HandlerResult{Result: runner.ExecutionResult{Success: false, Message: "no maintenance function for " + job.TaskName}}
	}
	return HandlerResult{Result: fn(ctx, job)}
}
