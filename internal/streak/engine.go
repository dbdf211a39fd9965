// Package streak rebuilds the per-user global streak record from raw
// daily progress. Stored streak counters are never trusted: the engine
// walks the full date range and recomputes from first principles.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/cadence/internal/types"
)

// ExceptionList answers whether a day is a vacation/exception day for a
// user. Exception days neither break nor extend a streak.
type ExceptionList interface {
	IsExceptionDay(ctx context.Context, userID, day string) (bool, error)
}

// NoExceptions is an ExceptionList with no exception days.
type NoExceptions struct{}

func (NoExceptions) IsExceptionDay(context.Context, string, string) (bool, error) {
	return false, nil
}

// Recompute walks day by day from the earliest recorded activity through
// today and rebuilds current/longest streaks and the total count of fully
// complete days. A day counts as complete only when every habit scheduled
// that day was fulfilled to its goal. Days with nothing scheduled are
// skipped: they neither extend nor break a run. The walk is O(days x
// habits) on purpose; correctness over incremental cleverness, since this
// is the independent check against any stored counter.
func Recompute(ctx context.Context, userID string, habits []types.HabitRecord, progress []types.DailyProgress, exceptions ExceptionList, today string) (types.StreakSummary, error) {
	summary := types.StreakSummary{UserID: userID, ComputedAt: time.Now().UTC()}

	todayT, err := types.ParseDay(today)
	if err != nil {
		return summary, fmt.Errorf("parse today %q: %w", today, err)
	}

	// progress indexed by habit then day
	byHabit := make(map[string]map[string]types.DailyProgress)
	var earliest time.Time
	for _, p := range progress {
		dayT, err := types.ParseDay(p.Day)
		if err != nil {
			continue
		}
		if earliest.IsZero() || dayT.Before(earliest) {
			earliest = dayT
		}
		m := byHabit[p.HabitID]
		if m == nil {
			m = make(map[string]types.DailyProgress)
			byHabit[p.HabitID] = m
		}
		m[p.Day] = p
	}
	if earliest.IsZero() {
		return summary, nil
	}

	run := 0
	var lastComplete time.Time

	for day := earliest; !day.After(todayT); day = day.AddDate(0, 0, 1) {
		dayKey := types.FormatDay(day)

		skip, err := exceptions.IsExceptionDay(ctx, userID, dayKey)
		if err != nil {
			return summary, fmt.Errorf("exception lookup for %s: %w", dayKey, err)
		}
		if skip {
			continue
		}

		scheduled := scheduledHabits(habits, byHabit, day, dayKey)
		if len(scheduled) == 0 {
			continue
		}

		if allFulfilled(scheduled, byHabit, dayKey) {
			run++
			summary.TotalCompleteDays++
			if run > summary.Longest {
				summary.Longest = run
			}
			lastComplete = day
		} else {
			run = 0
		}
	}

	if !lastComplete.IsZero() {
		summary.LastCompleteDate = types.FormatDay(lastComplete)
		// A gap of two or more days zeroes the current streak even though
		// longest and total remain valid history.
		if todayT.Sub(lastComplete) <= 24*time.Hour {
			summary.Current = run
		}
	}
	return summary, nil
}

// scheduledHabits returns the habits that appear on the given day. Pinned
// schedules (daily, every-N-days, weekday sets) are evaluated against the
// calendar; quota schedules count only on days with recorded activity.
func scheduledHabits(habits []types.HabitRecord, byHabit map[string]map[string]types.DailyProgress, day time.Time, dayKey string) []types.HabitRecord {
	var out []types.HabitRecord
	for _, h := range habits {
		if h.Deleted {
			continue
		}
		start, err := types.ParseDay(h.StartDate)
		if err != nil || day.Before(start) {
			continue
		}
		if h.EndDate != nil {
			if end, err := types.ParseDay(*h.EndDate); err == nil && day.After(end) {
				continue
			}
		}
		if h.Schedule.Pinned() {
			if h.Schedule.OccursOn(day, start) {
				out = append(out, h)
			}
			continue
		}
		if _, ok := byHabit[h.ID][dayKey]; ok {
			out = append(out, h)
		}
	}
	return out
}

func allFulfilled(scheduled []types.HabitRecord, byHabit map[string]map[string]types.DailyProgress, dayKey string) bool {
	for _, h := range scheduled {
		rec, ok := byHabit[h.ID][dayKey]
		if !ok {
			return false
		}
		if !fulfilled(h, rec) {
			return false
		}
	}
	return true
}

// fulfilled checks a single habit's goal against its recorded progress for
// one day, using the goal count snapshot taken when the row was created.
// Build habits must reach the goal; quit habits must stay at or under it.
func fulfilled(h types.HabitRecord, rec types.DailyProgress) bool {
	if h.Type == types.HabitQuit {
		return rec.Progress <= rec.GoalCount
	}
	return rec.Progress >= rec.GoalCount
}
