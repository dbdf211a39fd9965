package types

import (
	"fmt"
	"time"
)

// ScheduleKind tags the recurrence variant of a habit schedule.
type ScheduleKind string

const (
	ScheduleDaily    ScheduleKind = "daily"
	ScheduleEveryN   ScheduleKind = "every_n_days"
	ScheduleWeekdays ScheduleKind = "weekdays"
	SchedulePerWeek  ScheduleKind = "per_week"
	SchedulePerMonth ScheduleKind = "per_month"
)

// Schedule is the structured recurrence of a habit. Exactly one variant
// is active, selected by Kind; the other fields are zero.
type Schedule struct {
	Kind     ScheduleKind   `json:"kind"`
	Interval int            `json:"interval,omitempty"` // every_n_days
	Weekdays []time.Weekday `json:"weekdays,omitempty"` // weekdays
	Times    int            `json:"times,omitempty"`    // per_week / per_month
}

// Daily returns the daily schedule, the fallback for unrecognized input.
func Daily() Schedule {
	return Schedule{Kind: ScheduleDaily}
}

// Pinned reports whether the schedule names concrete calendar days. Quota
// schedules (N per week/month) leave the choice of day to the user and are
// never pinned.
func (s Schedule) Pinned() bool {
	switch s.Kind {
	case ScheduleDaily, ScheduleEveryN, ScheduleWeekdays:
		return true
	default:
		return false
	}
}

// OccursOn reports whether a pinned schedule lands on the given day, for a
// habit that started on start. Quota schedules always return false here;
// callers decide their day membership from recorded activity.
func (s Schedule) OccursOn(day, start time.Time) bool {
	switch s.Kind {
	case ScheduleDaily:
		return true
	case ScheduleEveryN:
		interval := s.Interval
		if interval < 1 {
			interval = 1
		}
		days := int(day.Sub(start).Hours() / 24)
		return days >= 0 && days%interval == 0
	case ScheduleWeekdays:
		for _, wd := range s.Weekdays {
			if day.Weekday() == wd {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Validate checks internal consistency of the variant.
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleDaily:
		return nil
	case ScheduleEveryN:
		if s.Interval < 1 {
			return fmt.Errorf("every_n_days schedule requires interval >= 1, got %d", s.Interval)
		}
		return nil
	case ScheduleWeekdays:
		if len(s.Weekdays) == 0 {
			return fmt.Errorf("weekdays schedule requires at least one weekday")
		}
		return nil
	case SchedulePerWeek, SchedulePerMonth:
		if s.Times < 1 {
			return fmt.Errorf("%s schedule requires times >= 1, got %d", s.Kind, s.Times)
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// Equal reports whether two schedules describe the same recurrence.
func (s Schedule) Equal(o Schedule) bool {
	if s.Kind != o.Kind || s.Interval != o.Interval || s.Times != o.Times {
		return false
	}
	if len(s.Weekdays) != len(o.Weekdays) {
		return false
	}
	seen := make(map[time.Weekday]bool, len(s.Weekdays))
	for _, wd := range s.Weekdays {
		seen[wd] = true
	}
	for _, wd := range o.Weekdays {
		if !seen[wd] {
			return false
		}
	}
	return true
}
