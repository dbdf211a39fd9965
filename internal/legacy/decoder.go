package legacy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/cadence/internal/types"
)

// ParseGoal extracts the leading integer and trailing unit from a legacy
// goal string ("5 times" → {5, "times"}). Input with no leading integer
// decodes to the (1, "time") default with a diagnostic; a malformed goal
// never fails the record.
func ParseGoal(text string) (types.Goal, *Diagnostic) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return types.Goal{Count: 1, Unit: "time"}, &Diagnostic{
			Field:   "goal",
			Input:   text,
			Message: "empty goal string, defaulting to 1 time",
		}
	}

	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i == 0 {
		return types.Goal{Count: 1, Unit: "time"}, &Diagnostic{
			Field:   "goal",
			Input:   text,
			Message: "no leading integer, defaulting to 1 time",
		}
	}

	count, err := strconv.Atoi(trimmed[:i])
	if err != nil {
		// Digits longer than an int; clamp rather than fail.
		return types.Goal{Count: 1, Unit: "time"}, &Diagnostic{
			Field:   "goal",
			Input:   text,
			Message: fmt.Sprintf("unparseable count: %v", err),
		}
	}

	unit := strings.TrimSpace(trimmed[i:])
	if unit == "" {
		unit = "time"
	}
	return types.Goal{Count: count, Unit: unit}, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseSchedule maps a closed set of legacy recurrence phrases to the
// structured schedule variants. Unrecognized text falls back to the daily
// variant with a diagnostic.
func ParseSchedule(text string) (types.Schedule, *Diagnostic) {
	lower := strings.ToLower(strings.TrimSpace(text))

	switch lower {
	case "", "everyday", "every day", "daily":
		if lower == "" {
			return types.Daily(), &Diagnostic{
				Field:   "schedule",
				Input:   text,
				Message: "empty schedule string, defaulting to daily",
			}
		}
		return types.Daily(), nil
	case "weekdays":
		return types.Schedule{
			Kind: types.ScheduleWeekdays,
			Weekdays: []time.Weekday{
				time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
			},
		}, nil
	case "weekends":
		return types.Schedule{
			Kind:     types.ScheduleWeekdays,
			Weekdays: []time.Weekday{time.Saturday, time.Sunday},
		}, nil
	}

	// "every N days"
	if rest, ok := strings.CutPrefix(lower, "every "); ok {
		if days, ok := strings.CutSuffix(rest, " days"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(days)); err == nil && n >= 1 {
				return types.Schedule{Kind: types.ScheduleEveryN, Interval: n}, nil
			}
		}
	}

	// "N days a week" / "N days a month"
	if fields := strings.Fields(lower); len(fields) == 4 && fields[1] == "days" && fields[2] == "a" {
		if n, err := strconv.Atoi(fields[0]); err == nil && n >= 1 {
			switch fields[3] {
			case "week":
				return types.Schedule{Kind: types.SchedulePerWeek, Times: n}, nil
			case "month":
				return types.Schedule{Kind: types.SchedulePerMonth, Times: n}, nil
			}
		}
	}

	// Comma- or space-separated day names: "Monday, Wednesday, Friday"
	if weekdays, ok := parseWeekdayList(lower); ok {
		return types.Schedule{Kind: types.ScheduleWeekdays, Weekdays: weekdays}, nil
	}

	return types.Daily(), &Diagnostic{
		Field:   "schedule",
		Input:   text,
		Message: "unrecognized schedule phrase, defaulting to daily",
	}
}

func parseWeekdayList(lower string) ([]time.Weekday, bool) {
	parts := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(parts) == 0 {
		return nil, false
	}
	seen := make(map[time.Weekday]bool)
	var weekdays []time.Weekday
	for _, p := range parts {
		if p == "and" {
			continue
		}
		wd, ok := weekdayNames[p]
		if !ok {
			return nil, false
		}
		if !seen[wd] {
			seen[wd] = true
			weekdays = append(weekdays, wd)
		}
	}
	return weekdays, true
}

// Decode converts a legacy habit into a structured HabitRecord. Decode is
// total: malformed goal or schedule strings degrade to defaults and are
// reported as diagnostics, never as errors.
func Decode(h *Habit) (*types.HabitRecord, []Diagnostic) {
	var diags []Diagnostic

	goal, d := ParseGoal(h.GoalText)
	if d != nil {
		d.HabitID = h.ID
		diags = append(diags, *d)
	}

	schedule, d := ParseSchedule(h.ScheduleText)
	if d != nil {
		d.HabitID = h.ID
		diags = append(diags, *d)
	}

	habitType := types.HabitType(h.Type)
	if habitType != types.HabitBuild && habitType != types.HabitQuit {
		diags = append(diags, Diagnostic{
			HabitID: h.ID,
			Field:   "type",
			Input:   h.Type,
			Message: "unknown habit type, defaulting to build",
		})
		habitType = types.HabitBuild
	}

	rec := &types.HabitRecord{
		ID:                h.ID,
		UserID:            h.UserID,
		Name:              h.Name,
		Icon:              h.Icon,
		Color:             h.Color,
		Type:              habitType,
		Goal:              goal,
		Schedule:          schedule,
		BaselineCount:     h.BaselineCount,
		TargetCount:       h.TargetCount,
		StartDate:         h.StartDate,
		EndDate:           h.EndDate,
		CompletionHistory: h.Completion,
		DifficultyHistory: h.Difficulty,
		UsageHistory:      h.Usage,
		Deleted:           h.Deleted,
		CreatedAt:         h.CreatedAt,
		LastModified:      h.LastModified,
	}
	return rec, diags
}
