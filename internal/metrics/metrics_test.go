package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_StartUpdateEnd_RecordsLifecycle(t *testing.T) {
	c := NewCollector(nil)
	c.StartTask(1, "reminder", "worker-1", "ai_tasks", 10, 5*time.Millisecond, 10, 20)
	c.UpdateTask(1, 50, 60)
	c.EndTask(1, "completed", nil, 15, 25)

	history := c.TaskHistory()
	require.Len(t, history, 1)
	rec := history[0]
	assert.Equal(t, int64(1), rec.TaskID)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, float64(50), rec.CPUPeak)
	assert.Equal(t, float64(60), rec.MemPeak)
	assert.True(t, rec.ExecutionTime >= 0)
}

func TestCollector_EndTask_RecordsErrorMessage(t *testing.T) {
	c := NewCollector(nil)
	c.StartTask(2, "task", "w", "q", 1, 0, 0, 0)
	c.EndTask(2, "failed", errors.New("upstream timeout"), 0, 0)

	history := c.TaskHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "upstream timeout", history[0].Error)
}

func TestCollector_RingBufferEvictsOldest(t *testing.T) {
	c := NewCollector(nil)
	c.taskCap = 3
	c.tasks = make([]TaskRecord, 3)

	for i := int64(1); i <= 5; i++ {
		c.StartTask(i, "t", "w", "q", 1, 0, 0, 0)
		c.EndTask(i, "completed", nil, 0, 0)
	}

	history := c.TaskHistory()
	require.Len(t, history, 3)
	assert.Equal(t, int64(3), history[0].TaskID)
	assert.Equal(t, int64(5), history[2].TaskID)
}

func TestCollector_Summary_ComputesPercentilesKeyedByTaskName(t *testing.T) {
	c := NewCollector(nil)
	for i := int64(1); i <= 10; i++ {
		c.StartTask(i, "reminder", "w", "q", 1, 0, 0, 0)
		c.EndTask(i, "completed", nil, 0, 0)
	}
	c.StartTask(100, "digest", "w", "q", 1, 0, 0, 0)
	c.EndTask(100, "completed", nil, 0, 0)

	summary := c.Summary("reminder")
	assert.Equal(t, 10, summary.Count)
	assert.True(t, summary.P99 >= summary.P50)
	assert.True(t, summary.Max >= summary.Min)
	assert.Equal(t, summary.Avg, summary.Total/time.Duration(summary.Count))

	assert.Equal(t, 1, c.Summary("digest").Count)
	assert.Equal(t, 0, c.Summary("unknown-task").Count)
}

type stubProbe struct{ calls int }

func (s *stubProbe) Sample(ctx context.Context) (SystemSnapshot, error) {
	s.calls++
	return SystemSnapshot{Timestamp: time.Now().UTC(), CPUPercent: 42, MemPercent: 55}, nil
}

func TestRunSampler_RecordsSnapshotsUntilCancelled(t *testing.T) {
	probe := &stubProbe{}
	c := NewCollector(probe)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c.RunSampler(ctx, 5*time.Millisecond)

	snapshots := c.SnapshotHistory()
	assert.NotEmpty(t, snapshots)
	assert.Equal(t, float64(42), snapshots[0].CPUPercent)
}
