package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
)

// OpenAIRunner is a reference TaskRunner adapter: it turns an AITask's
// title/description/ai_context into a chat completion request and reports
// the model's reply as the execution output. Real deployments are expected
// to bring their own domain-specific Runner; this one exists so the
// scheduling core can be exercised end to end without a bespoke agent.
type OpenAIRunner struct {
	client openai.Client
	model  string
}

// NewOpenAIRunner builds an OpenAIRunner. model defaults to "gpt-4o-mini"
// when empty, matching internal/config's OpenAIConfig default.
func NewOpenAIRunner(apiKey, model string) *OpenAIRunner {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIRunner{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (r *OpenAIRunner) Execute(ctx context.Context, t *task.AITask) ExecutionResult {
	start := time.Now()

	prompt := t.Description
	if prompt == "" {
		prompt = t.Title
	}
	if ctxNote := t.AIContext; ctxNote != "" {
		prompt = fmt.Sprintf("%s\n\n%s", prompt, ctxNote)
	}

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: r.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return ExecutionResult{Success: false, Message: err.Error(), Retryable: isRetryable(err), Duration: time.Since(start)}
	}
	if len(resp.Choices) == 0 {
		msg := fmt.Sprintf("runner: openai returned no choices for task %d", t.ID)
		return ExecutionResult{Success: false, Message: msg, Retryable: false, Duration: time.Since(start)}
	}

	return ExecutionResult{
		Success:    true,
		Message:    "execution completed",
		AIResponse: resp.Choices[0].Message.Content,
		Duration:   time.Since(start),
	}
}

// isRetryable classifies upstream failures per spec §7's transient/permanent
// split: 5xx and rate-limit responses are transient, 4xx (bad request, auth,
// not-found) are permanent.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	// Connection/timeout errors with no structured status: assume transient.
	return true
}
