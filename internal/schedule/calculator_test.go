package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
)

func utc(y int, m time.Month, d, h, min int, sec ...int) time.Time {
	s := 0
	if len(sec) > 0 {
		s = sec[0]
	}
	return time.Date(y, m, d, h, min, s, 0, time.UTC)
}

func TestNextRun_Once(t *testing.T) {
	now := utc(2026, time.January, 1, 8, 0)
	future := now.Add(time.Hour)
	next, err := NextRun(task.ScheduleOnce, task.ScheduleConfig{RunAt: future}, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(future))

	// Already past: terminal.
	past := now.Add(-time.Hour)
	next, err = NextRun(task.ScheduleOnce, task.ScheduleConfig{RunAt: past}, now)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextRun_Daily(t *testing.T) {
	// 08:55, 09:00 schedule not yet passed today.
	now := utc(2025, time.January, 1, 8, 55, 0).Add(0)
	next, err := NextRun(task.ScheduleDaily, task.ScheduleConfig{Hour: 9, Minute: 0}, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(utc(2025, time.January, 1, 9, 0, 0)))

	// 09:00:01, schedule passed -> next day.
	now2 := utc(2025, time.January, 1, 9, 0, 1)
	next2, err := NextRun(task.ScheduleDaily, task.ScheduleConfig{Hour: 9, Minute: 0}, now2)
	require.NoError(t, err)
	assert.True(t, next2.Equal(utc(2025, time.January, 2, 9, 0, 0)))
}

func TestNextRun_Weekly_WrapsToNextWeek(t *testing.T) {
	// Today is Wednesday (2=index with Monday=0), schedule is Wednesday 08:00,
	// now is past that time -> expect next Wednesday.
	now := utc(2026, time.February, 4, 9, 0, 0) // a Wednesday
	require.Equal(t, time.Wednesday, now.Weekday())

	next, err := NextRun(task.ScheduleWeekly, task.ScheduleConfig{Weekdays: []int{2}, Hour: 8, Minute: 0}, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Wednesday, next.Weekday())
	assert.True(t, next.After(now))
	assert.True(t, next.Equal(utc(2026, time.February, 11, 8, 0, 0))) // same weekday next week, 08:00
}

func TestNextRun_Weekly_EmptyListIsInvalid(t *testing.T) {
	now := utc(2026, time.February, 4, 9, 0, 0)
	_, err := NextRun(task.ScheduleWeekly, task.ScheduleConfig{Weekdays: nil, Hour: 8, Minute: 0}, now)
	require.Error(t, err)
}

func TestNextRun_Monthly_ClampsFebruary(t *testing.T) {
	now := utc(2026, time.January, 1, 0, 0, 0)
	next, err := NextRun(task.ScheduleMonthly, task.ScheduleConfig{Day: 31, Hour: 10, Minute: 0}, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.January, next.Month())
	assert.Equal(t, 31, next.Day())

	// Advance to after January's occurrence: next should clamp into February 28.
	now2 := utc(2026, time.January, 31, 11, 0, 0)
	next2, err := NextRun(task.ScheduleMonthly, task.ScheduleConfig{Day: 31, Hour: 10, Minute: 0}, now2)
	require.NoError(t, err)
	assert.Equal(t, time.February, next2.Month())
	assert.Equal(t, 28, next2.Day())
}

func TestNextRun_Custom(t *testing.T) {
	now := utc(2026, time.January, 1, 0, 0, 0)
	next, err := NextRun(task.ScheduleCustom, task.ScheduleConfig{IntervalMinutes: 15}, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(now.Add(15*time.Minute)))

	_, err = NextRun(task.ScheduleCustom, task.ScheduleConfig{IntervalMinutes: 0}, now)
	assert.Error(t, err)
}

func TestNextRun_MonotonicAdvance(t *testing.T) {
	now := utc(2026, time.January, 1, 0, 0, 0)
	cfg := task.ScheduleConfig{IntervalMinutes: 5}
	prev := now
	for i := 0; i < 10; i++ {
		next, err := NextRun(task.ScheduleCustom, cfg, prev)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.True(t, next.After(prev))
		prev = *next
	}
}
