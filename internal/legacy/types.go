package legacy

import "time"

// Habit is a record in the flat, denormalized legacy schema. Goal and
// schedule are free-form strings; history lives in three independent
// date-keyed maps. Legacy rows are read-only: migration never mutates them.
type Habit struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Name          string         `json:"name"`
	Icon          string         `json:"icon"`
	Color         string         `json:"color"`
	Type          string         `json:"type"` // "build" or "quit"
	GoalText      string         `json:"goal"` // e.g. "5 times", "30 minutes"
	ScheduleText  string         `json:"schedule"` // e.g. "Everyday", "3 days a week"
	BaselineCount int            `json:"baseline_count"`
	TargetCount   int            `json:"target_count"`
	StartDate     string         `json:"start_date"`
	EndDate       *string        `json:"end_date"`
	Completion    map[string]int `json:"completion_history"`
	Difficulty    map[string]int `json:"difficulty_history"`
	Usage         map[string]int `json:"actual_usage_history"`
	Deleted       bool           `json:"deleted"`
	CreatedAt     time.Time      `json:"created_at"`
	LastModified  time.Time      `json:"last_modified"`
}

// Transaction is a point grant recorded by the legacy schema, when the
// legacy data tracked a ledger at all.
type Transaction struct {
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStats carries the legacy per-user aggregates. The stored streak and
// level values are untrusted summaries; migration recomputes or derives
// them and only the point total and transaction history are carried over.
type UserStats struct {
	UserID            string        `json:"user_id"`
	TotalPoints       int           `json:"total_points"`
	Level             int           `json:"level"`
	CurrentStreak     int           `json:"current_streak"`
	LongestStreak     int           `json:"longest_streak"`
	TotalCompleteDays int           `json:"total_complete_days"`
	Transactions      []Transaction `json:"transactions"`
}

// Diagnostic reports a recoverable decode problem on a single field. A
// diagnostic never fails the record; the decoder substitutes a safe
// default and the caller surfaces the warning.
type Diagnostic struct {
	HabitID string `json:"habit_id,omitempty"`
	Field   string `json:"field"`
	Input   string `json:"input"`
	Message string `json:"message"`
}
