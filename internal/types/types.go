package types

import (
	"time"
)

// DayFormat is the canonical layout for date-keyed history maps and
// daily progress records.
const DayFormat = "2006-01-02"

// ParseDay parses a YYYY-MM-DD day key into a UTC midnight time.
func ParseDay(day string) (time.Time, error) {
	return time.Parse(DayFormat, day)
}

// FormatDay renders a time as a YYYY-MM-DD day key.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// HabitType distinguishes habits the user builds up from habits the
// user is reducing toward a target.
type HabitType string

const (
	HabitBuild HabitType = "build"
	HabitQuit  HabitType = "quit"
)

// Goal is the structured form of a habit goal ("5 times" → {5, "times"}).
type Goal struct {
	Count int    `json:"count"`
	Unit  string `json:"unit"`
}

// HabitRecord is the flat, field-addressable snapshot of a habit used by
// the sync path and produced by the legacy decoder. The date-keyed maps
// use YYYY-MM-DD keys.
type HabitRecord struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Icon          string    `json:"icon,omitempty"`
	Color         string    `json:"color,omitempty"`
	Type          HabitType `json:"type"`
	Goal          Goal      `json:"goal"`
	Schedule      Schedule  `json:"schedule"`
	BaselineCount int       `json:"baseline_count,omitempty"`
	TargetCount   int       `json:"target_count,omitempty"`
	StartDate     string    `json:"start_date"`
	EndDate       *string   `json:"end_date,omitempty"`

	CompletionHistory map[string]int `json:"completion_history,omitempty"`
	DifficultyHistory map[string]int `json:"difficulty_history,omitempty"`
	UsageHistory      map[string]int `json:"usage_history,omitempty"`

	Deleted      bool      `json:"deleted"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`

	// FieldModified carries per-field edit timestamps where the writer
	// recorded them. Last-writer-wins consults the field's own timestamp
	// first and falls back to LastModified, so two sides can each win
	// different fields of the same record.
	FieldModified map[string]time.Time `json:"field_modified,omitempty"`
}

// Clone returns a deep copy of the record. The conflict resolver never
// mutates its inputs, so merged output is always built on a copy.
func (h *HabitRecord) Clone() *HabitRecord {
	out := *h
	if h.EndDate != nil {
		end := *h.EndDate
		out.EndDate = &end
	}
	out.CompletionHistory = cloneCounts(h.CompletionHistory)
	out.DifficultyHistory = cloneCounts(h.DifficultyHistory)
	out.UsageHistory = cloneCounts(h.UsageHistory)
	if h.FieldModified != nil {
		out.FieldModified = make(map[string]time.Time, len(h.FieldModified))
		for k, v := range h.FieldModified {
			out.FieldModified[k] = v
		}
	}
	return &out
}

func cloneCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DailyProgress is one normalized, dated fact: recorded activity against
// a habit's goal, with the goal count captured as a point-in-time snapshot.
type DailyProgress struct {
	ID         string    `json:"id"`
	HabitID    string    `json:"habit_id"`
	Day        string    `json:"day"`
	Progress   int       `json:"progress"`
	GoalCount  int       `json:"goal_count"`
	Difficulty *int      `json:"difficulty,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StreakSummary is the per-user global streak record, always rebuilt in
// full from raw history. Invariant: Current <= Longest <= TotalCompleteDays.
type StreakSummary struct {
	UserID            string    `json:"user_id"`
	Current           int       `json:"current"`
	Longest           int       `json:"longest"`
	TotalCompleteDays int       `json:"total_complete_days"`
	LastCompleteDate  string    `json:"last_complete_date,omitempty"`
	ComputedAt        time.Time `json:"computed_at"`
}

// PointTransaction is one append-only entry in the points ledger.
type PointTransaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ReasonLegacyMigration tags the single synthesized transaction created
// when legacy data carries a point total but no transaction history.
const ReasonLegacyMigration = "legacy_migration"

// UserProgress holds the user's point total and derived level. The level
// is always a pure function of TotalPoints, never stored authority.
type UserProgress struct {
	UserID      string    `json:"user_id"`
	TotalPoints int       `json:"total_points"`
	Level       int       `json:"level"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConflictKind classifies a detected divergence between two snapshots.
type ConflictKind string

const (
	ConflictContent     ConflictKind = "content"
	ConflictData        ConflictKind = "data"
	ConflictCalculation ConflictKind = "calculation"
	ConflictTimestamp   ConflictKind = "timestamp"
)

// Conflict is a transient record of one local/remote divergence. It is
// created on detection and discarded once resolved; it is never persisted.
type Conflict struct {
	HabitID    string       `json:"habit_id"`
	Kind       ConflictKind `json:"kind"`
	Fields     []string     `json:"fields"`
	Local      *HabitRecord `json:"-"`
	Remote     *HabitRecord `json:"-"`
	DetectedAt time.Time    `json:"detected_at"`
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	RemoteChanges     int  `json:"remote_changes"`
	LocalChanges      int  `json:"local_changes"`
	ConflictsResolved int  `json:"conflicts_resolved"`
	Failures          int  `json:"failures"`
	Success           bool `json:"success"`
}
