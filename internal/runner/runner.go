// Package runner implements the TaskRunner port (C4): the scheduling core
// never embeds LLM/agent logic itself (that's an explicit non-goal) — it
// only defines the contract a collaborator executes against, plus one
// reference adapter for exercising it end to end. Grounded on the pack's
// openai/openai-go usage (dmitrymomot-foundation/pkg/vectorizer) for the
// client wiring idiom.
package runner

import (
	"context"
	"time"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
)

// defaultExecutionTimeout bounds a single execute() call (spec §4.4):
// 60 seconds unless the caller overrides it.
const defaultExecutionTimeout = 60 * time.Second

// ExecutionResult is what a TaskRunner reports back. Failures (timeout,
// upstream error, malformed response) are reported as Success=false with a
// diagnostic Message — they never surface as a Go error, since a Runner
// must not raise for expected execution failures.
type ExecutionResult struct {
	Success    bool
	Message    string
	Artefacts  map[string]any
	AIResponse string
	Retryable  bool
	Duration   time.Duration
}

// Runner is the TaskRunner port. Implementations are collaborators — the
// scheduling core has none of its own beyond the reference adapter below.
type Runner interface {
	Execute(ctx context.Context, t *task.AITask) ExecutionResult
}

// WithTimeout wraps a Runner so every Execute call is bounded by timeout,
// cooperatively cancelling ctx rather than forcibly killing the
// implementation's own goroutines — the implementation must itself respect
// ctx.Done() for this to have effect (spec §4.4's "cooperative cancellation").
func WithTimeout(r Runner, timeout time.Duration) Runner {
	if timeout <= 0 {
		timeout = defaultExecutionTimeout
	}
	return &timeoutRunner{inner: r, timeout: timeout}
}

type timeoutRunner struct {
	inner   Runner
	timeout time.Duration
}

func (t *timeoutRunner) Execute(ctx context.Context, tk *task.AITask) ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	result := t.inner.Execute(ctx, tk)
	result.Duration = time.Since(start)
	if ctx.Err() == context.DeadlineExceeded {
		result.Success = false
		result.Retryable = true
		if result.Message == "" {
			result.Message = "execution timed out"
		}
	}
	return result
}
