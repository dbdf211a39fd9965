// Package migrate orchestrates the one-shot migration of a user's legacy
// habit data into the normalized schema: decode, normalize, recompute,
// validate, then commit. The run is resumable through rollback; the legacy
// tables are never modified.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/cadence/internal/legacy"
	"github.com/hyperengineering/cadence/internal/normalize"
	"github.com/hyperengineering/cadence/internal/points"
	"github.com/hyperengineering/cadence/internal/store"
	"github.com/hyperengineering/cadence/internal/streak"
	"github.com/hyperengineering/cadence/internal/types"
	"github.com/hyperengineering/cadence/internal/validation"
)

// State is the orchestrator's position in a migration run.
type State string

const (
	StateNotStarted       State = "not_started"
	StateValidatingSource State = "validating_source"
	StateMigratingHabits  State = "migrating_habits"
	StateMigratingStreak  State = "migrating_streak"
	StateMigratingPoints  State = "migrating_points"
	StateValidating       State = "validating"
	StateCommitted        State = "committed"
	StateFailed           State = "failed"
	StateRolledBack       State = "rolled_back"
)

// DataStore is the slice of the store the orchestrator needs.
type DataStore interface {
	LegacyHabits(ctx context.Context, userID string) ([]legacy.Habit, error)
	LegacyUserStats(ctx context.Context, userID string) (*legacy.UserStats, error)
	MigrationCompleted(ctx context.Context, userID string) (bool, time.Time, error)
	HasManifestEntries(ctx context.Context, userID string) (bool, error)
	InsertMigratedHabit(ctx context.Context, runID string, habit *types.HabitRecord, records []types.DailyProgress) error
	CommitMigration(ctx context.Context, batch *store.CommitBatch) error
	RollbackMigration(ctx context.Context, userID string) error
	IsExceptionDay(ctx context.Context, userID, day string) (bool, error)
}

// Summary is the outcome of one run (or dry run).
type Summary struct {
	RunID          string                 `json:"run_id"`
	UserID         string                 `json:"user_id"`
	State          State                  `json:"state"`
	DryRun         bool                   `json:"dry_run"`
	HabitsMigrated int                    `json:"habits_migrated"`
	ProgressRows   int                    `json:"progress_rows"`
	SkippedDays    int                    `json:"skipped_days"`
	Diagnostics    []legacy.Diagnostic    `json:"diagnostics,omitempty"`
	Violations     []validation.Violation `json:"violations,omitempty"`
	Streak         types.StreakSummary    `json:"streak"`
	Progress       types.UserProgress     `json:"progress"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     time.Time              `json:"finished_at"`
}

// Status reports where a user stands with respect to migration.
type Status struct {
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Interrupted bool      `json:"interrupted"`
}

// Orchestrator runs migrations. One orchestrator serves any number of
// users; it holds no per-run state.
type Orchestrator struct {
	store    DataStore
	observer Observer
	now      func() time.Time
}

// New creates an orchestrator. A nil observer disables callbacks.
func New(st DataStore, obs Observer) *Orchestrator {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Orchestrator{store: st, observer: obs, now: time.Now}
}

// Run migrates one user. Re-invocation after success returns
// store.ErrAlreadyMigrated without touching any data. An interrupted
// earlier run (manifest entries without the completion flag) is rolled
// back first, then the run proceeds from clean state. With dryRun set,
// every step executes in memory and nothing is persisted.
func (o *Orchestrator) Run(ctx context.Context, userID string, dryRun bool) (*Summary, error) {
	sum := &Summary{
		RunID:     ulid.Make().String(),
		UserID:    userID,
		State:     StateNotStarted,
		DryRun:    dryRun,
		StartedAt: o.now().UTC(),
	}

	err := o.run(ctx, userID, dryRun, sum)
	sum.FinishedAt = o.now().UTC()
	if err != nil {
		o.observer.OnError(sum.RunID, sum.State, err)
		return sum, err
	}
	o.observer.OnComplete(sum.RunID, sum)
	return sum, nil
}

func (o *Orchestrator) run(ctx context.Context, userID string, dryRun bool, sum *Summary) error {
	o.transition(sum, StateValidatingSource)

	done, _, err := o.store.MigrationCompleted(ctx, userID)
	if err != nil {
		return o.fail(sum, fmt.Errorf("check completion flag: %w", err))
	}
	if done {
		sum.State = StateCommitted
		return store.ErrAlreadyMigrated
	}

	interrupted, err := o.store.HasManifestEntries(ctx, userID)
	if err != nil {
		return o.fail(sum, fmt.Errorf("check manifest: %w", err))
	}
	if interrupted && !dryRun {
		// Leftovers from a run that died mid-write. Clear them so this
		// run starts from a known-empty target.
		if err := o.store.RollbackMigration(ctx, userID); err != nil {
			return o.fail(sum, fmt.Errorf("roll back interrupted run: %w", err))
		}
	}

	legacyHabits, err := o.store.LegacyHabits(ctx, userID)
	if err != nil {
		return o.fail(sum, fmt.Errorf("load legacy habits: %w", err))
	}

	stats, err := o.store.LegacyUserStats(ctx, userID)
	if errors.Is(err, store.ErrNoLegacyData) {
		stats = &legacy.UserStats{UserID: userID}
	} else if err != nil {
		return o.fail(sum, fmt.Errorf("load legacy stats: %w", err))
	}

	if len(legacyHabits) == 0 && len(stats.Transactions) == 0 && stats.TotalPoints == 0 {
		return o.fail(sum, store.ErrNoLegacyData)
	}

	// Decode and normalize everything up front so validation sees the
	// complete picture before a single row is written.
	o.transition(sum, StateMigratingHabits)
	now := o.now().UTC()

	habits := make([]types.HabitRecord, 0, len(legacyHabits))
	rowsByHabit := make(map[string][]types.DailyProgress, len(legacyHabits))
	var allRows []types.DailyProgress
	for i := range legacyHabits {
		rec, diags := legacy.Decode(&legacyHabits[i])
		for _, d := range diags {
			o.observer.OnDiagnostic(sum.RunID, d)
		}
		sum.Diagnostics = append(sum.Diagnostics, diags...)

		res := normalize.Records(rec, now)
		sum.SkippedDays += res.SkippedDays

		habits = append(habits, *rec)
		rowsByHabit[rec.ID] = res.Records
		allRows = append(allRows, res.Records...)
	}

	if !dryRun {
		for i := range habits {
			h := &habits[i]
			rows := rowsByHabit[h.ID]
			if err := o.store.InsertMigratedHabit(ctx, sum.RunID, h, rows); err != nil {
				return o.rollback(sum, userID, fmt.Errorf("migrate habit %s: %w", h.ID, err))
			}
			o.observer.OnHabit(sum.RunID, h.ID, len(rows))
			sum.HabitsMigrated++
			sum.ProgressRows += len(rows)
		}
	} else {
		sum.HabitsMigrated = len(habits)
		sum.ProgressRows = len(allRows)
	}

	o.transition(sum, StateMigratingStreak)
	streakSummary, err := streak.Recompute(ctx, userID, habits, allRows,
		exceptionFunc(o.store.IsExceptionDay), types.FormatDay(now))
	if err != nil {
		return o.rollback(sum, userID, fmt.Errorf("recompute streak: %w", err))
	}
	sum.Streak = streakSummary

	o.transition(sum, StateMigratingPoints)
	progress, txs := points.MigrateLedger(stats, now)
	sum.Progress = progress

	o.transition(sum, StateValidating)
	collector := checkRun(habits, allRows, streakSummary, progress, txs)
	sum.Violations = collector.Violations()
	if collector.HasViolations() {
		return o.rollback(sum, userID, fmt.Errorf("validation failed: %w", collector.Err()))
	}

	if dryRun {
		sum.State = StateValidating
		return nil
	}

	batch := &store.CommitBatch{
		RunID:        sum.RunID,
		UserID:       userID,
		Streak:       streakSummary,
		Progress:     progress,
		Transactions: txs,
	}
	if err := o.store.CommitMigration(ctx, batch); err != nil {
		return o.rollback(sum, userID, fmt.Errorf("commit migration: %w", err))
	}

	o.transition(sum, StateCommitted)
	return nil
}

// Rollback undoes a migration for a user, whether complete or
// half-written. Legacy tables are untouched, so a fresh run afterwards
// reproduces the same result.
func (o *Orchestrator) Rollback(ctx context.Context, userID string) error {
	if err := o.store.RollbackMigration(ctx, userID); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	o.observer.OnState(ulid.Make().String(), StateRolledBack)
	return nil
}

// Status reports migration completion and whether an interrupted run left
// partial data behind.
func (o *Orchestrator) Status(ctx context.Context, userID string) (*Status, error) {
	done, at, err := o.store.MigrationCompleted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check completion flag: %w", err)
	}
	hasEntries, err := o.store.HasManifestEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check manifest: %w", err)
	}
	return &Status{
		Completed:   done,
		CompletedAt: at,
		Interrupted: hasEntries && !done,
	}, nil
}

func (o *Orchestrator) transition(sum *Summary, next State) {
	sum.State = next
	o.observer.OnState(sum.RunID, next)
}

func (o *Orchestrator) fail(sum *Summary, err error) error {
	sum.State = StateFailed
	return err
}

// rollback marks the run failed, deletes whatever this run already wrote,
// and reports RolledBack. A rollback failure is reported alongside the
// original cause; the manifest is still on disk for a manual retry.
func (o *Orchestrator) rollback(sum *Summary, userID string, cause error) error {
	sum.State = StateFailed
	if sum.DryRun {
		return cause
	}
	if rbErr := o.store.RollbackMigration(context.Background(), userID); rbErr != nil {
		return fmt.Errorf("%w (rollback also failed: %v)", cause, rbErr)
	}
	o.transition(sum, StateRolledBack)
	return cause
}

// exceptionFunc adapts a store method to the streak engine's interface.
type exceptionFunc func(ctx context.Context, userID, day string) (bool, error)

func (f exceptionFunc) IsExceptionDay(ctx context.Context, userID, day string) (bool, error) {
	return f(ctx, userID, day)
}
