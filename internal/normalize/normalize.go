// Package normalize converts the date-keyed history maps of a decoded
// legacy habit into discrete daily progress rows.
package normalize

import (
	"sort"
	"time"

	"github.com/hyperengineering/cadence/internal/types"
	"github.com/oklog/ulid/v2"
)

// Result carries the normalized rows for one habit plus the count of
// history keys skipped because they did not parse as calendar dates.
type Result struct {
	Records     []types.DailyProgress
	SkippedDays int
}

// Records produces one DailyProgress per date key in the habit's
// completion history (usage history for quit habits). Each row snapshots
// the habit's current goal count, and picks up the difficulty rating for
// that day when one was recorded. Malformed date keys are skipped and
// counted, never fatal.
func Records(habit *types.HabitRecord, now time.Time) Result {
	source := habit.CompletionHistory
	if habit.Type == types.HabitQuit {
		source = habit.UsageHistory
	}

	res := Result{Records: make([]types.DailyProgress, 0, len(source))}
	for day, count := range source {
		if _, err := types.ParseDay(day); err != nil {
			res.SkippedDays++
			continue
		}
		rec := types.DailyProgress{
			ID:        ulid.Make().String(),
			HabitID:   habit.ID,
			Day:       day,
			Progress:  count,
			GoalCount: habit.Goal.Count,
			CreatedAt: now.UTC(),
		}
		if rating, ok := habit.DifficultyHistory[day]; ok {
			r := rating
			rec.Difficulty = &r
		}
		res.Records = append(res.Records, rec)
	}

	// Map iteration order is random; keep output deterministic.
	sort.Slice(res.Records, func(i, j int) bool {
		return res.Records[i].Day < res.Records[j].Day
	})
	return res
}
