// Package store durably persists AITask records and implements the atomic
// claim-due-tasks operation the scheduling core relies on to avoid double
// dispatch across concurrent Workers. Grounded on the teacher's store.Store
// interface, generalized from desired-state reconciliation to AITask
// scheduling.
package store

import (
	"context"
	"time"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
)

// Store is the durable persistence contract for AITask records (C1).
type Store interface {
	Create(ctx context.Context, spec task.Spec) (*task.AITask, error)

	// ClaimDueTasks selects at most limit tasks where status=active and
	// next_run_at<=now, ordered by next_run_at ascending, and atomically
	// transitions each to processing before returning them. Safe against
	// concurrent callers: two Workers calling ClaimDueTasks concurrently
	// never observe the same task id.
	ClaimDueTasks(ctx context.Context, limit int, now time.Time) ([]*task.AITask, error)

	UpdateAfterRun(ctx context.Context, id int64, update task.RunUpdate) error

	ListForUser(ctx context.Context, userID int64, filter task.ListFilter) ([]*task.AITask, error)

	Delete(ctx context.Context, id int64, userID int64) error

	Get(ctx context.Context, id int64) (*task.AITask, error)

	// SetPaused flips a task between active and paused; the only transition
	// an external user action may trigger directly (spec §3 Lifecycle).
	SetPaused(ctx context.Context, id int64, paused bool) error

	// Health implements the health() endpoint contract (spec §6).
	Health(ctx context.Context) Health
}

// HealthStatus is the closed set of values a health() check may report,
// per spec §6.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthError     HealthStatus = "error"
)

// Health is the health() endpoint contract response from spec §6.
type Health struct {
	Status       HealthStatus
	ResponseTime time.Duration
	PoolStats    map[string]any
}
