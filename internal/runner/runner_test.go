package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
)

type slowRunner struct {
	delay time.Duration
}

func (s *slowRunner) Execute(ctx context.Context, t *task.AITask) ExecutionResult {
	select {
	case <-time.After(s.delay):
		return ExecutionResult{Success: true, Message: "done"}
	case <-ctx.Done():
		return ExecutionResult{Success: false, Message: ctx.Err().Error()}
	}
}

func TestWithTimeout_CompletesWithinBudget(t *testing.T) {
	r := WithTimeout(&slowRunner{delay: 10 * time.Millisecond}, 100*time.Millisecond)
	result := r.Execute(context.Background(), &task.AITask{ID: 1})
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Message)
}

func TestWithTimeout_MarksRetryableOnDeadlineExceeded(t *testing.T) {
	r := WithTimeout(&slowRunner{delay: 50 * time.Millisecond}, 5*time.Millisecond)
	result := r.Execute(context.Background(), &task.AITask{ID: 1})
	assert.False(t, result.Success)
	assert.True(t, result.Retryable)
}

func TestWithTimeout_DefaultsWhenZero(t *testing.T) {
	r := WithTimeout(&slowRunner{delay: time.Millisecond}, 0)
	result := r.Execute(context.Background(), &task.AITask{ID: 1})
	assert.True(t, result.Success)
}
