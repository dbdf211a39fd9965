// Package validation provides the invariant check set run after migration
// and before commit. Checks accumulate; validation never stops at the
// first finding.
package validation

import (
	"fmt"

	"github.com/hyperengineering/cadence/internal/types"
)

// Violation describes a single failed invariant.
type Violation struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// Collector accumulates violations without failing on first.
type Collector struct {
	violations []Violation
}

// Add appends a violation to the collector if non-nil.
func (c *Collector) Add(v *Violation) {
	if v != nil {
		c.violations = append(c.violations, *v)
	}
}

// HasViolations returns true if any invariant failed.
func (c *Collector) HasViolations() bool {
	return len(c.violations) > 0
}

// Violations returns all accumulated violations.
func (c *Collector) Violations() []Violation {
	return c.violations
}

// Err converts the collected violations into a single error, or nil.
func (c *Collector) Err() error {
	if len(c.violations) == 0 {
		return nil
	}
	return fmt.Errorf("%d invariant violation(s), first: %s: %s",
		len(c.violations), c.violations[0].Check, c.violations[0].Message)
}

// CheckStreakMonotonic enforces current <= longest <= totalCompleteDays.
// A violation here is always a bug, never valid input.
func CheckStreakMonotonic(s types.StreakSummary) *Violation {
	if s.Current > s.Longest || s.Longest > s.TotalCompleteDays {
		return &Violation{
			Check: "streak_monotonic",
			Message: fmt.Sprintf("require current <= longest <= total, got %d <= %d <= %d",
				s.Current, s.Longest, s.TotalCompleteDays),
		}
	}
	if s.Current < 0 || s.Longest < 0 || s.TotalCompleteDays < 0 {
		return &Violation{
			Check:   "streak_monotonic",
			Message: fmt.Sprintf("negative streak counter: %+v", s),
		}
	}
	return nil
}

// CheckLedgerConservation enforces that the point total equals the sum of
// all transaction amounts.
func CheckLedgerConservation(progress types.UserProgress, txs []types.PointTransaction) *Violation {
	sum := 0
	for _, t := range txs {
		sum += t.Amount
	}
	if sum != progress.TotalPoints {
		return &Violation{
			Check:   "ledger_conservation",
			Message: fmt.Sprintf("total points %d != transaction sum %d", progress.TotalPoints, sum),
		}
	}
	return nil
}

// CheckLevelDerived enforces that the stored level matches the pure
// formula for the stored total.
func CheckLevelDerived(progress types.UserProgress, levelFor func(int) int) *Violation {
	if want := levelFor(progress.TotalPoints); progress.Level != want {
		return &Violation{
			Check:   "level_derived",
			Message: fmt.Sprintf("level %d does not match derived level %d for %d points", progress.Level, want, progress.TotalPoints),
		}
	}
	return nil
}

// CheckProgressRecords enforces structural sanity of normalized rows:
// parseable days, a known parent habit, and non-negative counts.
func CheckProgressRecords(habits []types.HabitRecord, records []types.DailyProgress) *Violation {
	ids := make(map[string]bool, len(habits))
	for _, h := range habits {
		ids[h.ID] = true
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if _, err := types.ParseDay(r.Day); err != nil {
			return &Violation{
				Check:   "progress_records",
				Message: fmt.Sprintf("record %s has malformed day %q", r.ID, r.Day),
			}
		}
		if !ids[r.HabitID] {
			return &Violation{
				Check:   "progress_records",
				Message: fmt.Sprintf("record %s references unknown habit %s", r.ID, r.HabitID),
			}
		}
		if r.Progress < 0 || r.GoalCount < 0 {
			return &Violation{
				Check:   "progress_records",
				Message: fmt.Sprintf("record %s has negative counts", r.ID),
			}
		}
		key := r.HabitID + "|" + r.Day
		if seen[key] {
			return &Violation{
				Check:   "progress_records",
				Message: fmt.Sprintf("duplicate record for habit %s on %s", r.HabitID, r.Day),
			}
		}
		seen[key] = true
	}
	return nil
}

// CheckSchedules enforces that every migrated habit carries a valid
// structured schedule and goal.
func CheckSchedules(habits []types.HabitRecord) *Violation {
	for _, h := range habits {
		if err := h.Schedule.Validate(); err != nil {
			return &Violation{
				Check:   "schedules",
				Message: fmt.Sprintf("habit %s: %v", h.ID, err),
			}
		}
		if h.Goal.Count < 1 || h.Goal.Unit == "" {
			return &Violation{
				Check:   "schedules",
				Message: fmt.Sprintf("habit %s has invalid goal %+v", h.ID, h.Goal),
			}
		}
	}
	return nil
}
