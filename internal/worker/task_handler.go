package worker

import (
	"context"
	"encoding/json"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/broker"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/depgraph"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/runner"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/store"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
)

// ExecuteTaskPayload is the wire payload for `execute_task` jobs: just
// enough to look the AITask back up from the store at execution time,
// rather than shipping the whole record through the broker.
type ExecuteTaskPayload struct {
	TaskID int64 `json:"task_id"`
}

// TaskHandler implements Handler for `execute_task` jobs: it loads the
// AITask, checks DependencyScheduler readiness, and invokes a TaskRunner.
type TaskHandler struct {
	Store store.Store
	Deps  *depgraph.Graph
	Run   runner.Runner
}

func (h *TaskHandler) Handle(ctx context.Context, job *broker.Job) HandlerResult {
	var payload ExecuteTaskPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return HandlerResult{Result: runner.ExecutionResult{Success: false, Message: "malformed execute_task payload: " + err.Error()}}
	}

	t, err := h.Store.Get(ctx, payload.TaskID)
	if err != nil {
		return HandlerResult{Result: runner.ExecutionResult{Success: false, Message: "task lookup failed: " + err.Error()}}
	}
	if t == nil {
		return HandlerResult{Result: runner.ExecutionResult{Success: false, Message: "task not found", Retryable: false}}
	}

	if h.Deps != nil && !h.Deps.CanExecute(t.ID) {
		return HandlerResult{
			Result: runner.ExecutionResult{Success: false, Message: "dependencies not satisfied", Retryable: true},
			Task:   t,
		}
	}

	result := h.Run.Execute(ctx, t)
	return HandlerResult{Result: result, Task: t}
}
