package validation

import (
	"testing"

	"github.com/hyperengineering/cadence/internal/types"
)

func TestCheckStreakMonotonic(t *testing.T) {
	ok := types.StreakSummary{Current: 2, Longest: 5, TotalCompleteDays: 9}
	if v := CheckStreakMonotonic(ok); v != nil {
		t.Errorf("expected pass, got %+v", v)
	}

	bad := []types.StreakSummary{
		{Current: 6, Longest: 5, TotalCompleteDays: 9},
		{Current: 2, Longest: 10, TotalCompleteDays: 9},
		{Current: -1, Longest: 0, TotalCompleteDays: 0},
	}
	for _, s := range bad {
		if v := CheckStreakMonotonic(s); v == nil {
			t.Errorf("expected violation for %+v", s)
		}
	}
}

func TestCheckLedgerConservation(t *testing.T) {
	txs := []types.PointTransaction{{Amount: 100}, {Amount: -20}}

	if v := CheckLedgerConservation(types.UserProgress{TotalPoints: 80}, txs); v != nil {
		t.Errorf("expected pass, got %+v", v)
	}
	if v := CheckLedgerConservation(types.UserProgress{TotalPoints: 100}, txs); v == nil {
		t.Error("expected violation for mismatched total")
	}
}

func TestCheckLevelDerived(t *testing.T) {
	levelFor := func(total int) int { return total/100 + 1 }

	if v := CheckLevelDerived(types.UserProgress{TotalPoints: 250, Level: 3}, levelFor); v != nil {
		t.Errorf("expected pass, got %+v", v)
	}
	if v := CheckLevelDerived(types.UserProgress{TotalPoints: 250, Level: 9}, levelFor); v == nil {
		t.Error("expected violation for stored level mismatch")
	}
}

func TestCheckProgressRecords(t *testing.T) {
	habits := []types.HabitRecord{{ID: "h1"}}

	good := []types.DailyProgress{
		{ID: "r1", HabitID: "h1", Day: "2024-02-01", Progress: 1, GoalCount: 1},
		{ID: "r2", HabitID: "h1", Day: "2024-02-02", Progress: 0, GoalCount: 1},
	}
	if v := CheckProgressRecords(habits, good); v != nil {
		t.Errorf("expected pass, got %+v", v)
	}

	cases := []struct {
		name string
		rows []types.DailyProgress
	}{
		{"malformed day", []types.DailyProgress{{ID: "r1", HabitID: "h1", Day: "bad"}}},
		{"unknown habit", []types.DailyProgress{{ID: "r1", HabitID: "ghost", Day: "2024-02-01"}}},
		{"negative progress", []types.DailyProgress{{ID: "r1", HabitID: "h1", Day: "2024-02-01", Progress: -1}}},
		{"duplicate day", []types.DailyProgress{
			{ID: "r1", HabitID: "h1", Day: "2024-02-01"},
			{ID: "r2", HabitID: "h1", Day: "2024-02-01"},
		}},
	}
	for _, tc := range cases {
		if v := CheckProgressRecords(habits, tc.rows); v == nil {
			t.Errorf("%s: expected violation", tc.name)
		}
	}
}

func TestCheckSchedules(t *testing.T) {
	good := []types.HabitRecord{{
		ID:       "h1",
		Goal:     types.Goal{Count: 1, Unit: "time"},
		Schedule: types.Daily(),
	}}
	if v := CheckSchedules(good); v != nil {
		t.Errorf("expected pass, got %+v", v)
	}

	badSchedule := []types.HabitRecord{{
		ID:       "h2",
		Goal:     types.Goal{Count: 1, Unit: "time"},
		Schedule: types.Schedule{Kind: types.ScheduleEveryN},
	}}
	if v := CheckSchedules(badSchedule); v == nil {
		t.Error("expected violation for invalid schedule")
	}

	badGoal := []types.HabitRecord{{
		ID:       "h3",
		Goal:     types.Goal{Count: 0, Unit: ""},
		Schedule: types.Daily(),
	}}
	if v := CheckSchedules(badGoal); v == nil {
		t.Error("expected violation for invalid goal")
	}
}

func TestCollector_AccumulatesAll(t *testing.T) {
	var c Collector
	c.Add(nil)
	c.Add(&Violation{Check: "a", Message: "first"})
	c.Add(&Violation{Check: "b", Message: "second"})

	if !c.HasViolations() {
		t.Fatal("expected violations")
	}
	if len(c.Violations()) != 2 {
		t.Errorf("expected 2 violations, got %d", len(c.Violations()))
	}
	if err := c.Err(); err == nil {
		t.Error("expected non-nil error")
	}

	var empty Collector
	if empty.Err() != nil {
		t.Error("empty collector should have nil error")
	}
}
