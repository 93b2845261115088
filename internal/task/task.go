// Package task defines the AITask record and its lifecycle, the unit of
// work the scheduling core persists, claims, executes, and reschedules.
package task

import "time"

// Type is the kind of work an AITask represents.
type Type string

const (
	TypeReminder      Type = "reminder"
	TypeAutomatedTask Type = "automated_task"
	TypePeriodicTask  Type = "periodic_task"
)

// ScheduleType selects which ScheduleCalculator policy computes next_run_at.
type ScheduleType string

const (
	ScheduleOnce    ScheduleType = "once"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleCustom  ScheduleType = "custom"
)

// Status is the AITask lifecycle state, see spec §3 Invariants/Lifecycle.
type Status string

const (
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ScheduleConfig is the semi-structured per-type schedule configuration
// from spec §6. Only the fields relevant to ScheduleType are populated;
// unused fields are left zero.
type ScheduleConfig struct {
	RunAt           time.Time `json:"run_at,omitempty"`
	Hour            int       `json:"hour,omitempty"`
	Minute          int       `json:"minute,omitempty"`
	Weekdays        []int     `json:"weekdays,omitempty"` // 0=Monday .. 6=Sunday
	Day             int       `json:"day,omitempty"`
	IntervalMinutes int       `json:"interval_minutes,omitempty"`
}

// AITask is the unit of deferred or recurring work, see spec §3.
type AITask struct {
	ID                    int64
	UserID                int64
	Title                 string
	Description           string
	TaskType              Type
	ScheduleType          ScheduleType
	ScheduleConfig        ScheduleConfig
	NextRunAt             *time.Time
	LastRunAt             *time.Time
	Status                Status
	AIContext             string
	NotificationChannels  []string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsDue reports whether the task is eligible for claim right now.
func (t *AITask) IsDue(now time.Time) bool {
	return t.Status == StatusActive && t.NextRunAt != nil && !t.NextRunAt.After(now)
}

// Spec is the caller-supplied payload for TaskStore.create; server-assigned
// fields (ID, CreatedAt, UpdatedAt, Status) are filled in by the store.
type Spec struct {
	UserID               int64
	Title                string
	Description          string
	TaskType             Type
	ScheduleType         ScheduleType
	ScheduleConfig       ScheduleConfig
	AIContext            string
	NotificationChannels []string
}

// ListFilter narrows TaskStore.list_for_user results.
type ListFilter struct {
	Status   Status // empty means "any"
	TaskType Type   // empty means "any"
}

// RunUpdate is the atomic patch applied by TaskStore.update_after_run.
type RunUpdate struct {
	Status    Status
	LastRunAt time.Time
	NextRunAt *time.Time
	Error     string
}

// validTransitions enumerates the status state machine from spec §4.1.
var validTransitions = map[Status]map[Status]bool{
	StatusActive:     {StatusProcessing: true, StatusPaused: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true, StatusActive: true},
	StatusPaused:     {StatusActive: true},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
