package legacy

import (
	"testing"
	"time"

	"github.com/hyperengineering/cadence/internal/types"
)

func TestParseGoal(t *testing.T) {
	cases := []struct {
		input    string
		want     types.Goal
		wantDiag bool
	}{
		{"5 times", types.Goal{Count: 5, Unit: "times"}, false},
		{"30 minutes", types.Goal{Count: 30, Unit: "minutes"}, false},
		{"1 time", types.Goal{Count: 1, Unit: "time"}, false},
		{"12", types.Goal{Count: 12, Unit: "time"}, false},
		{"  8 glasses  ", types.Goal{Count: 8, Unit: "glasses"}, false},
		{"", types.Goal{Count: 1, Unit: "time"}, true},
		{"whenever", types.Goal{Count: 1, Unit: "time"}, true},
		{"x5 times", types.Goal{Count: 1, Unit: "time"}, true},
	}

	for _, tc := range cases {
		got, diag := ParseGoal(tc.input)
		if got != tc.want {
			t.Errorf("ParseGoal(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
		if (diag != nil) != tc.wantDiag {
			t.Errorf("ParseGoal(%q) diagnostic = %v, want diagnostic: %v", tc.input, diag, tc.wantDiag)
		}
	}
}

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		input    string
		want     types.Schedule
		wantDiag bool
	}{
		{"Everyday", types.Daily(), false},
		{"every day", types.Daily(), false},
		{"daily", types.Daily(), false},
		{"every 3 days", types.Schedule{Kind: types.ScheduleEveryN, Interval: 3}, false},
		{"3 days a week", types.Schedule{Kind: types.SchedulePerWeek, Times: 3}, false},
		{"10 days a month", types.Schedule{Kind: types.SchedulePerMonth, Times: 10}, false},
		{"weekdays", types.Schedule{Kind: types.ScheduleWeekdays, Weekdays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}}, false},
		{"weekends", types.Schedule{Kind: types.ScheduleWeekdays, Weekdays: []time.Weekday{
			time.Saturday, time.Sunday,
		}}, false},
		{"Monday, Wednesday, Friday", types.Schedule{Kind: types.ScheduleWeekdays, Weekdays: []time.Weekday{
			time.Monday, time.Wednesday, time.Friday,
		}}, false},
		{"tuesday and thursday", types.Schedule{Kind: types.ScheduleWeekdays, Weekdays: []time.Weekday{
			time.Tuesday, time.Thursday,
		}}, false},
		{"", types.Daily(), true},
		{"whenever I feel like it", types.Daily(), true},
		{"every 0 days", types.Daily(), true},
	}

	for _, tc := range cases {
		got, diag := ParseSchedule(tc.input)
		if !got.Equal(tc.want) {
			t.Errorf("ParseSchedule(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
		if (diag != nil) != tc.wantDiag {
			t.Errorf("ParseSchedule(%q) diagnostic = %v, want diagnostic: %v", tc.input, diag, tc.wantDiag)
		}
	}
}

func TestDecode_WellFormedHabit(t *testing.T) {
	// Given: a legacy habit with parseable goal and schedule text
	h := &Habit{
		ID:           "habit-1",
		UserID:       "user-1",
		Name:         "Drink water",
		Type:         "build",
		GoalText:     "5 times",
		ScheduleText: "Everyday",
		StartDate:    "2024-01-01",
		Completion:   map[string]int{"2024-01-01": 5},
	}

	// When: decoding
	rec, diags := Decode(h)

	// Then: the structured record carries the parsed forms and no diagnostics
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	if rec.Goal != (types.Goal{Count: 5, Unit: "times"}) {
		t.Errorf("unexpected goal: %+v", rec.Goal)
	}
	if rec.Schedule.Kind != types.ScheduleDaily {
		t.Errorf("unexpected schedule: %+v", rec.Schedule)
	}
	if rec.Type != types.HabitBuild {
		t.Errorf("unexpected type: %v", rec.Type)
	}
	if rec.CompletionHistory["2024-01-01"] != 5 {
		t.Error("completion history not carried over")
	}
}

func TestDecode_IsTotal(t *testing.T) {
	// Given: a habit where every decodable field is malformed
	h := &Habit{
		ID:           "habit-2",
		UserID:       "user-1",
		Name:         "Mystery",
		Type:         "neither",
		GoalText:     "lots",
		ScheduleText: "sometimes",
	}

	// When: decoding
	rec, diags := Decode(h)

	// Then: every field degrades to its default, one diagnostic each
	if len(diags) != 3 {
		t.Fatalf("expected 3 diagnostics, got %d: %v", len(diags), diags)
	}
	for _, d := range diags {
		if d.HabitID != "habit-2" {
			t.Errorf("diagnostic missing habit id: %+v", d)
		}
	}
	if rec.Goal != (types.Goal{Count: 1, Unit: "time"}) {
		t.Errorf("expected default goal, got %+v", rec.Goal)
	}
	if rec.Schedule.Kind != types.ScheduleDaily {
		t.Errorf("expected daily fallback, got %+v", rec.Schedule)
	}
	if rec.Type != types.HabitBuild {
		t.Errorf("expected build fallback, got %v", rec.Type)
	}
}

func TestDecode_QuitHabitKeepsUsageHistory(t *testing.T) {
	h := &Habit{
		ID:           "habit-3",
		UserID:       "user-1",
		Type:         "quit",
		GoalText:     "3 cigarettes",
		ScheduleText: "daily",
		Usage:        map[string]int{"2024-02-01": 2},
	}

	rec, _ := Decode(h)
	if rec.Type != types.HabitQuit {
		t.Fatalf("expected quit type, got %v", rec.Type)
	}
	if rec.UsageHistory["2024-02-01"] != 2 {
		t.Error("usage history not carried over")
	}
}
