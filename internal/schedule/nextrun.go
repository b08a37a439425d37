package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"casare-orchestrator/internal/models"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun computes the next instant strictly greater than after at which
// sched fires, per the per-frequency rules in spec §4.6. A nil result means
// the schedule has no further occurrences (ONCE, after firing).
func NextRun(sched models.Schedule, after time.Time) (*time.Time, error) {
	switch sched.Frequency {
	case models.FrequencyOnce:
		return nil, nil

	case models.FrequencyInterval:
		interval := time.Duration(sched.IntervalSeconds) * time.Second
		if interval <= 0 {
			return nil, fmt.Errorf("schedule: interval_seconds must be positive")
		}
		next := after.Add(interval)
		return &next, nil

	case models.FrequencyHourly:
		next := nextAtMinute(after, sched.Minute)
		return &next, nil

	case models.FrequencyDaily:
		next := nextDailyAt(after, sched.Hour, sched.Minute)
		return &next, nil

	case models.FrequencyWeekly:
		next := nextWeeklyAt(after, time.Weekday(sched.DayOfWeek), sched.Hour, sched.Minute)
		return &next, nil

	case models.FrequencyMonthly:
		next := nextMonthlyAt(after, sched.DayOfMonth, sched.Hour, sched.Minute)
		return &next, nil

	case models.FrequencyCron:
		expr, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("schedule: invalid cron_expr %q: %w", sched.CronExpr, err)
		}
		next := expr.Next(after)
		return &next, nil

	default:
		return nil, fmt.Errorf("schedule: unknown frequency %q", sched.Frequency)
	}
}

// nextAtMinute returns the next HH:minute:00 strictly after t, for HOURLY.
func nextAtMinute(t time.Time, minute int) time.Time {
	candidate := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
	if !candidate.After(t) {
		candidate = candidate.Add(time.Hour)
	}
	return candidate
}

// nextDailyAt returns the next hour:minute instant strictly after t.
func nextDailyAt(t time.Time, hour, minute int) time.Time {
	candidate := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// nextWeeklyAt returns the next occurrence of dayOfWeek at hour:minute
// strictly after t.
func nextWeeklyAt(t time.Time, dayOfWeek time.Weekday, hour, minute int) time.Time {
	candidate := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
	daysUntil := (int(dayOfWeek) - int(candidate.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysUntil)
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// nextMonthlyAt returns the next occurrence of dayOfMonth at hour:minute
// strictly after t. If a target month is shorter than dayOfMonth, the last
// day of that month is used, per spec §4.6.
func nextMonthlyAt(t time.Time, dayOfMonth, hour, minute int) time.Time {
	candidate := monthlyInstant(t.Year(), t.Month(), dayOfMonth, hour, minute, t.Location())
	if !candidate.After(t) {
		year, month := t.Year(), t.Month()+1
		if month > 12 {
			month = 1
			year++
		}
		candidate = monthlyInstant(year, month, dayOfMonth, hour, minute, t.Location())
	}
	return candidate
}

func monthlyInstant(year int, month time.Month, dayOfMonth, hour, minute int, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	day := dayOfMonth
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}
