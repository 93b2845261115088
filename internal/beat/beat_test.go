package beat

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/broker"
)

func TestDefaultSchedule_HasAllSixEntries(t *testing.T) {
	entries := DefaultSchedule()
	require.Len(t, entries, 6)

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name] = true
		_, err := cron.ParseStandard(e.CronExpr)
		assert.NoError(t, err, e.Name)
	}
	for _, want := range []string{"process_due_ai_tasks", "cleanup_old_logs", "sync_calendar_events", "sync_notion_pages", "optimize_database", "cleanup_old_sessions"} {
		assert.True(t, names[want], want)
	}
}

func TestBeat_CatchesUpMissedTickOnStart(t *testing.T) {
	b := broker.NewMemoryBroker()
	ticks := NewMemoryTickStore()
	// Simulate a process that died 2 hours ago, for an hourly entry.
	require.NoError(t, ticks.SetLastTick(context.Background(), "sync_calendar_events", time.Now().UTC().Add(-2*time.Hour)))

	beat := New(b, ticks, []Entry{{Name: "sync_calendar_events", CronExpr: "0 * * * *", Priority: 7, Queue: broker.QueueSyncTasks}})
	require.NoError(t, beat.Start(context.Background()))

	length, err := b.QueueLength(broker.QueueSyncTasks)
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestBeat_DoesNotCatchUpWhenWithinDriftGuard(t *testing.T) {
	b := broker.NewMemoryBroker()
	ticks := NewMemoryTickStore()
	require.NoError(t, ticks.SetLastTick(context.Background(), "cleanup_old_logs", time.Now().UTC()))

	beat := New(b, ticks, []Entry{{Name: "cleanup_old_logs", CronExpr: "0 2 * * *", Priority: 1, Queue: broker.QueueMaintenance}})
	require.NoError(t, beat.Start(context.Background()))

	length, err := b.QueueLength(broker.QueueMaintenance)
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

func TestBeat_FirstRunNeverCatchesUp(t *testing.T) {
	b := broker.NewMemoryBroker()
	ticks := NewMemoryTickStore() // no prior tick recorded

	beat := New(b, ticks, []Entry{{Name: "optimize_database", CronExpr: "0 3 * * 0", Priority: 1, Queue: broker.QueueMaintenance}})
	require.NoError(t, beat.Start(context.Background()))

	length, err := b.QueueLength(broker.QueueMaintenance)
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

func TestMemoryTickStore_RoundTrips(t *testing.T) {
	ts := NewMemoryTickStore()
	_, ok, err := ts.LastTick(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Now().UTC()
	require.NoError(t, ts.SetLastTick(context.Background(), "entry", now))
	got, ok, err := ts.LastTick(context.Background(), "entry")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(now))
}
