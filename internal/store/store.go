package store

import (
	"context"
	"time"

	"github.com/hyperengineering/cadence/internal/legacy"
	"github.com/hyperengineering/cadence/internal/types"
)

// PendingChange is a locally modified record awaiting push, paired with
// its change-log watermark.
type PendingChange struct {
	Seq    int64
	Record types.HabitRecord
}

// CommitBatch is everything the migration orchestrator persists in the
// final durable transaction of a run.
type CommitBatch struct {
	RunID        string
	UserID       string
	Streak       types.StreakSummary
	Progress     types.UserProgress
	Transactions []types.PointTransaction
}

// Store is the full local persistence contract for both the sync and
// migration paths.
type Store interface {
	// Habit records (sync path).
	LoadRecord(ctx context.Context, id string) (*types.HabitRecord, error)
	LoadUserRecords(ctx context.Context, userID string) ([]types.HabitRecord, error)
	SaveRecord(ctx context.Context, rec *types.HabitRecord, logChange bool) error
	LoadUserProgressRecords(ctx context.Context, userID string) ([]types.DailyProgress, error)

	// Change log and sync checkpointing.
	PendingChanges(ctx context.Context) ([]PendingChange, error)
	MarkPushed(ctx context.Context, seq int64) error
	GetSyncMeta(ctx context.Context, key string) (string, error)
	SetSyncMeta(ctx context.Context, key, value string) error

	// Vacation/exception days.
	IsExceptionDay(ctx context.Context, userID, day string) (bool, error)
	AddExceptionDay(ctx context.Context, userID, day string) error

	// Legacy schema (read-only).
	LegacyHabits(ctx context.Context, userID string) ([]legacy.Habit, error)
	LegacyUserStats(ctx context.Context, userID string) (*legacy.UserStats, error)

	// Migration bookkeeping.
	MigrationCompleted(ctx context.Context, userID string) (bool, time.Time, error)
	HasManifestEntries(ctx context.Context, userID string) (bool, error)
	InsertMigratedHabit(ctx context.Context, runID string, habit *types.HabitRecord, records []types.DailyProgress) error
	CommitMigration(ctx context.Context, batch *CommitBatch) error
	RollbackMigration(ctx context.Context, userID string) error

	// Status surfaces.
	LoadStreak(ctx context.Context, userID string) (*types.StreakSummary, error)
	LoadUserProgress(ctx context.Context, userID string) (*types.UserProgress, error)

	Close() error
}
