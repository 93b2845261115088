package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/schedule"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// MemoryStore is an in-process Store implementation. It backs unit tests and
// single-node deployments that don't need durability across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[int64]*task.AITask
	nextID int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[int64]*task.AITask)}
}

func (s *MemoryStore) Create(_ context.Context, spec task.Spec) (*task.AITask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextRunAt, err := schedule.NextRun(spec.ScheduleType, spec.ScheduleConfig, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.nextID++
	now := time.Now().UTC()
	t := &task.AITask{
		ID:                   s.nextID,
		UserID:               spec.UserID,
		Title:                spec.Title,
		Description:          spec.Description,
		TaskType:             spec.TaskType,
		ScheduleType:         spec.ScheduleType,
		ScheduleConfig:       spec.ScheduleConfig,
		Status:               task.StatusActive,
		NextRunAt:            nextRunAt,
		AIContext:            spec.AIContext,
		NotificationChannels: spec.NotificationChannels,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.tasks[t.ID] = t
	return copyTask(t), nil
}

func (s *MemoryStore) ClaimDueTasks(_ context.Context, limit int, now time.Time) ([]*task.AITask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	var due []*task.AITask
	for _, t := range s.tasks {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*task.AITask, 0, len(due))
	for _, t := range due {
		t.Status = task.StatusProcessing
		t.UpdatedAt = time.Now().UTC()
		claimed = append(claimed, copyTask(t))
	}
	return claimed, nil
}

func (s *MemoryStore) UpdateAfterRun(_ context.Context, id int64, update task.RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return taskerr.Wrap(taskerr.ErrNotFound, "task not found")
	}
	if !task.CanTransition(t.Status, update.Status) {
		return taskerr.Wrapf(taskerr.ErrInvalidStateTransition, "%s -> %s", t.Status, update.Status)
	}
	lastRunAt := update.LastRunAt
	t.LastRunAt = &lastRunAt
	t.NextRunAt = update.NextRunAt
	t.Status = update.Status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListForUser(_ context.Context, userID int64, filter task.ListFilter) ([]*task.AITask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*task.AITask
	for _, t := range s.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.TaskType != "" && t.TaskType != filter.TaskType {
			continue
		}
		result = append(result, copyTask(t))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return taskerr.Wrap(taskerr.ErrNotFound, "task not found")
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*task.AITask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return copyTask(t), nil
}

func (s *MemoryStore) SetPaused(_ context.Context, id int64, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return taskerr.Wrap(taskerr.ErrNotFound, "task not found")
	}
	target := task.StatusActive
	if paused {
		target = task.StatusPaused
	}
	if !task.CanTransition(t.Status, target) {
		return taskerr.Wrapf(taskerr.ErrInvalidStateTransition, "%s -> %s", t.Status, target)
	}
	t.Status = target
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Health always reports healthy: MemoryStore has no connection pool or
// backing service that could degrade.
func (s *MemoryStore) Health(_ context.Context) Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Health{
		Status:       HealthHealthy,
		ResponseTime: 0,
		PoolStats:    map[string]any{"task_count": len(s.tasks)},
	}
}

func copyTask(t *task.AITask) *task.AITask {
	cp := *t
	if t.NextRunAt != nil {
		v := *t.NextRunAt
		cp.NextRunAt = &v
	}
	if t.LastRunAt != nil {
		v := *t.LastRunAt
		cp.LastRunAt = &v
	}
	cp.NotificationChannels = append([]string(nil), t.NotificationChannels...)
	return &cp
}
