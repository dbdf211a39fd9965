package migrate

import (
	"github.com/hyperengineering/cadence/internal/points"
	"github.com/hyperengineering/cadence/internal/types"
	"github.com/hyperengineering/cadence/internal/validation"
)

// checkRun applies the full invariant set to a migrated data set. All
// checks run; the collector gathers every violation.
func checkRun(habits []types.HabitRecord, rows []types.DailyProgress, streak types.StreakSummary, progress types.UserProgress, txs []types.PointTransaction) *validation.Collector {
	var c validation.Collector
	c.Add(validation.CheckSchedules(habits))
	c.Add(validation.CheckProgressRecords(habits, rows))
	c.Add(validation.CheckStreakMonotonic(streak))
	c.Add(validation.CheckLedgerConservation(progress, txs))
	c.Add(validation.CheckLevelDerived(progress, points.LevelForPoints))
	return &c
}
