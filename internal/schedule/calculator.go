// Package schedule computes the next execution instant for an AITask from
// its schedule descriptor. Every function here is pure: given the same
// inputs it always returns the same output, which keeps it trivially
// testable and lets callers recompute a missed tick without side effects.
package schedule

import (
	"sort"
	"time"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// NextRun computes next_run_at for a schedule descriptor, or nil if the
// schedule is terminal (a `once` task whose run_at has already passed).
// All computation happens in UTC per spec §4.2.
func NextRun(scheduleType task.ScheduleType, cfg task.ScheduleConfig, now time.Time) (*time.Time, error) {
	now = now.UTC()
	switch scheduleType {
	case task.ScheduleOnce:
		return nextOnce(cfg, now)
	case task.ScheduleDaily:
		return nextDaily(cfg, now)
	case task.ScheduleWeekly:
		return nextWeekly(cfg, now)
	case task.ScheduleMonthly:
		return nextMonthly(cfg, now)
	case task.ScheduleCustom:
		return nextCustom(cfg, now)
	default:
		return nil, taskerr.Wrapf(taskerr.ErrInvalidSpec, "unknown schedule_type %q", scheduleType)
	}
}

func nextOnce(cfg task.ScheduleConfig, now time.Time) (*time.Time, error) {
	if cfg.RunAt.IsZero() {
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, "once schedule requires run_at")
	}
	runAt := cfg.RunAt.UTC()
	if runAt.After(now) {
		return &runAt, nil
	}
	return nil, nil // terminal: already ran or run_at is in the past
}

func nextDaily(cfg task.ScheduleConfig, now time.Time) (*time.Time, error) {
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, "daily schedule requires hour 0-23 and minute 0-59")
	}
	candidate := atTime(now, now.Year(), now.Month(), now.Day(), cfg.Hour, cfg.Minute)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return &candidate, nil
}

func nextWeekly(cfg task.ScheduleConfig, now time.Time) (*time.Time, error) {
	if len(cfg.Weekdays) == 0 {
		// Open question resolved per spec §9: empty weekday list is invalid,
		// not "never" and not "today".
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, "weekly schedule requires a non-empty weekdays list")
	}
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, "weekly schedule requires hour 0-23 and minute 0-59")
	}
	for _, wd := range cfg.Weekdays {
		if wd < 0 || wd > 6 {
			return nil, taskerr.Wrapf(taskerr.ErrInvalidSpec, "weekday %d out of range 0-6", wd)
		}
	}

	weekdays := append([]int(nil), cfg.Weekdays...)
	sort.Ints(weekdays)

	today := mondayZero(now.Weekday())
	for offset := 0; offset < 8; offset++ {
		day := (today + offset) % 7
		if !contains(weekdays, day) {
			continue
		}
		candidateDate := now.AddDate(0, 0, offset)
		candidate := atTime(now, candidateDate.Year(), candidateDate.Month(), candidateDate.Day(), cfg.Hour, cfg.Minute)
		if candidate.After(now) {
			return &candidate, nil
		}
	}
	// Every listed weekday today has passed this minute: wrap to next week's
	// earliest listed weekday.
	day := weekdays[0]
	deltaToNextWeek := 7 - today + day
	candidateDate := now.AddDate(0, 0, deltaToNextWeek)
	candidate := atTime(now, candidateDate.Year(), candidateDate.Month(), candidateDate.Day(), cfg.Hour, cfg.Minute)
	return &candidate, nil
}

func nextMonthly(cfg task.ScheduleConfig, now time.Time) (*time.Time, error) {
	if cfg.Day < 1 || cfg.Day > 31 {
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, "monthly schedule requires day 1-31")
	}
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, "monthly schedule requires hour 0-23 and minute 0-59")
	}

	candidate := clampedMonthDay(now.Year(), now.Month(), cfg.Day, cfg.Hour, cfg.Minute)
	if !candidate.After(now) {
		y, m := now.Year(), now.Month()+1
		if m > 12 {
			m = 1
			y++
		}
		candidate = clampedMonthDay(y, m, cfg.Day, cfg.Hour, cfg.Minute)
	}
	return &candidate, nil
}

func nextCustom(cfg task.ScheduleConfig, now time.Time) (*time.Time, error) {
	if cfg.IntervalMinutes <= 0 {
		return nil, taskerr.Wrap(taskerr.ErrInvalidSpec, "custom schedule requires interval_minutes > 0")
	}
	next := now.Add(time.Duration(cfg.IntervalMinutes) * time.Minute)
	return &next, nil
}

// clampedMonthDay builds a UTC instant for (year, month, day, hour, minute),
// clamping day to the last valid day of the target month — handles
// February/day-31 per spec §4.2.
func clampedMonthDay(year int, month time.Month, day, hour, minute int) time.Time {
	lastDay := lastDayOfMonth(year, month)
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	lastOfThis := firstOfNext.AddDate(0, 0, -1)
	return lastOfThis.Day()
}

// atTime builds today's (hour, minute) instant in UTC. Spec §4.2 asks that
// an hour/minute which does not exist on a given local day (DST) fall back
// to the next existing minute; since all computation here is UTC — which
// has no DST transitions — every (hour, minute) always exists, so this is
// a direct construction.
func atTime(_ time.Time, year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func mondayZero(wd time.Weekday) int {
	// time.Weekday: Sunday=0 .. Saturday=6. Spec wants Monday=0 .. Sunday=6.
	return (int(wd) + 6) % 7
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
