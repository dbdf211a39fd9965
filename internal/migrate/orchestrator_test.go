package migrate

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hyperengineering/cadence/internal/legacy"
	"github.com/hyperengineering/cadence/internal/store"
	"github.com/hyperengineering/cadence/internal/types"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cadence.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	err := db.SeedLegacyHabit(ctx, &legacy.Habit{
		ID:           "legacy-1",
		UserID:       "user-1",
		Name:         "Meditate",
		Type:         "build",
		GoalText:     "10 minutes",
		ScheduleText: "Everyday",
		StartDate:    "2024-01-01",
		Completion: map[string]int{
			"2024-01-01": 10,
			"2024-01-02": 10,
			"bad-key":    3,
		},
		Difficulty:   map[string]int{"2024-01-01": 2},
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastModified: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.SeedLegacyHabit(ctx, &legacy.Habit{
		ID:           "legacy-2",
		UserID:       "user-1",
		Name:         "Mystery habit",
		Type:         "unknown",
		GoalText:     "whenever",
		ScheduleText: "sometimes",
		StartDate:    "2024-01-01",
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastModified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.SeedLegacyUserStats(ctx, &legacy.UserStats{
		UserID:      "user-1",
		TotalPoints: 450,
		Level:       99, // stale, must be re-derived
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRun_FullMigration(t *testing.T) {
	db := newTestStore(t)
	seedUser(t, db)
	orc := New(db, nil)
	ctx := context.Background()

	// When: running a full migration
	sum, err := orc.Run(ctx, "user-1", false)
	if err != nil {
		t.Fatal(err)
	}

	// Then: the run commits with the decoded habits and normalized rows
	if sum.State != StateCommitted {
		t.Errorf("state = %s, want committed", sum.State)
	}
	if sum.HabitsMigrated != 2 {
		t.Errorf("habits migrated = %d, want 2", sum.HabitsMigrated)
	}
	if sum.ProgressRows != 2 {
		t.Errorf("progress rows = %d, want 2 (bad-key skipped)", sum.ProgressRows)
	}
	if sum.SkippedDays != 1 {
		t.Errorf("skipped days = %d, want 1", sum.SkippedDays)
	}
	// legacy-2 carries three decode diagnostics (goal, schedule, type).
	if len(sum.Diagnostics) != 3 {
		t.Errorf("diagnostics = %d, want 3", len(sum.Diagnostics))
	}

	// The migrated state is queryable.
	rec, err := db.LoadRecord(ctx, "legacy-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Goal != (types.Goal{Count: 10, Unit: "minutes"}) {
		t.Errorf("unexpected goal: %+v", rec.Goal)
	}

	progress, err := db.LoadUserProgress(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if progress.TotalPoints != 450 {
		t.Errorf("points = %d, want 450", progress.TotalPoints)
	}
	if progress.Level == 99 {
		t.Error("stale legacy level must be re-derived, not copied")
	}

	streak, err := db.LoadStreak(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if streak.Current > streak.Longest || streak.Longest > streak.TotalCompleteDays {
		t.Errorf("streak invariant violated: %+v", streak)
	}
}

func TestRun_SecondInvocationRefused(t *testing.T) {
	db := newTestStore(t)
	seedUser(t, db)
	orc := New(db, nil)
	ctx := context.Background()

	if _, err := orc.Run(ctx, "user-1", false); err != nil {
		t.Fatal(err)
	}

	// Given: the user's habit accumulates new activity after migration
	rec, err := db.LoadRecord(ctx, "legacy-1")
	if err != nil {
		t.Fatal(err)
	}
	rec.CompletionHistory["2024-01-03"] = 10
	if err := db.SaveRecord(ctx, rec, false); err != nil {
		t.Fatal(err)
	}

	// When: migration is invoked again
	_, err = orc.Run(ctx, "user-1", false)

	// Then: it is refused and the post-migration data is untouched
	if !errors.Is(err, store.ErrAlreadyMigrated) {
		t.Fatalf("expected ErrAlreadyMigrated, got %v", err)
	}
	after, err := db.LoadRecord(ctx, "legacy-1")
	if err != nil {
		t.Fatal(err)
	}
	if after.CompletionHistory["2024-01-03"] != 10 {
		t.Error("re-invocation must not clobber post-migration data")
	}
}

func TestRun_DryRunPersistsNothing(t *testing.T) {
	db := newTestStore(t)
	seedUser(t, db)
	orc := New(db, nil)
	ctx := context.Background()

	sum, err := orc.Run(ctx, "user-1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.DryRun || sum.State != StateValidating {
		t.Errorf("unexpected dry-run summary: state=%s dry=%v", sum.State, sum.DryRun)
	}
	if sum.HabitsMigrated != 2 || len(sum.Violations) != 0 {
		t.Errorf("dry run should report the would-be outcome: %+v", sum)
	}

	// Nothing was written.
	if _, err := db.LoadRecord(ctx, "legacy-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("dry run persisted a habit: %v", err)
	}
	done, _, err := db.MigrationCompleted(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Error("dry run set the completion flag")
	}
	has, err := db.HasManifestEntries(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("dry run left manifest entries")
	}

	// A real run afterwards still works.
	if _, err := orc.Run(ctx, "user-1", false); err != nil {
		t.Fatal(err)
	}
}

func TestRun_InterruptedRunRolledBackAndRetried(t *testing.T) {
	db := newTestStore(t)
	seedUser(t, db)
	ctx := context.Background()

	// Given: a half-written earlier run (manifest entries, no flag)
	stale := &types.HabitRecord{
		ID:        "legacy-1",
		UserID:    "user-1",
		Name:      "Stale partial copy",
		Type:      types.HabitBuild,
		Goal:      types.Goal{Count: 1, Unit: "time"},
		Schedule:  types.Daily(),
		StartDate: "2024-01-01",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := db.InsertMigratedHabit(ctx, "dead-run", stale, nil); err != nil {
		t.Fatal(err)
	}

	// When: a fresh run starts
	orc := New(db, nil)
	sum, err := orc.Run(ctx, "user-1", false)
	if err != nil {
		t.Fatal(err)
	}

	// Then: the leftovers were cleared and the run completed cleanly
	if sum.State != StateCommitted {
		t.Fatalf("state = %s, want committed", sum.State)
	}
	rec, err := db.LoadRecord(ctx, "legacy-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name == "Stale partial copy" {
		t.Error("stale partial data survived the retry")
	}
}

func TestRun_NoLegacyData(t *testing.T) {
	db := newTestStore(t)
	orc := New(db, nil)

	_, err := orc.Run(context.Background(), "nobody", false)
	if !errors.Is(err, store.ErrNoLegacyData) {
		t.Errorf("expected ErrNoLegacyData, got %v", err)
	}
}

func TestRollback_RestoresPreMigrationState(t *testing.T) {
	db := newTestStore(t)
	seedUser(t, db)
	orc := New(db, nil)
	ctx := context.Background()

	before, err := db.LegacyHabits(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := orc.Run(ctx, "user-1", false); err != nil {
		t.Fatal(err)
	}
	if err := orc.Rollback(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}

	// The legacy source is byte-for-byte what it was.
	after, err := db.LegacyHabits(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Error("legacy data changed across migrate+rollback")
	}

	// And migration can run again from scratch.
	sum, err := orc.Run(ctx, "user-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if sum.State != StateCommitted {
		t.Errorf("re-run after rollback: state = %s", sum.State)
	}
}

func TestStatus(t *testing.T) {
	db := newTestStore(t)
	seedUser(t, db)
	orc := New(db, nil)
	ctx := context.Background()

	status, err := orc.Status(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if status.Completed || status.Interrupted {
		t.Errorf("fresh user should be not-started: %+v", status)
	}

	if _, err := orc.Run(ctx, "user-1", false); err != nil {
		t.Fatal(err)
	}
	status, err = orc.Status(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !status.Completed || status.Interrupted {
		t.Errorf("expected completed status: %+v", status)
	}
}

// recordingObserver captures state transitions and the final summary.
type recordingObserver struct {
	NopObserver
	states    []State
	completed *Summary
}

func (r *recordingObserver) OnState(_ string, state State) {
	r.states = append(r.states, state)
}

func (r *recordingObserver) OnComplete(_ string, sum *Summary) {
	r.completed = sum
}

func TestRun_StateProgression(t *testing.T) {
	db := newTestStore(t)
	seedUser(t, db)
	obs := &recordingObserver{}
	orc := New(db, obs)

	if _, err := orc.Run(context.Background(), "user-1", false); err != nil {
		t.Fatal(err)
	}

	want := []State{
		StateValidatingSource,
		StateMigratingHabits,
		StateMigratingStreak,
		StateMigratingPoints,
		StateValidating,
		StateCommitted,
	}
	if !reflect.DeepEqual(obs.states, want) {
		t.Errorf("state progression = %v, want %v", obs.states, want)
	}

	// A successful run ends with exactly one completion callback carrying
	// the final summary.
	if obs.completed == nil {
		t.Fatal("completion callback never fired")
	}
	if obs.completed.State != StateCommitted || obs.completed.HabitsMigrated != 2 {
		t.Errorf("unexpected completion summary: %+v", obs.completed)
	}
}

func TestRun_NoCompletionCallbackOnFailure(t *testing.T) {
	db := newTestStore(t)
	obs := &recordingObserver{}
	orc := New(db, obs)

	if _, err := orc.Run(context.Background(), "nobody", false); err == nil {
		t.Fatal("expected error for user without legacy data")
	}
	if obs.completed != nil {
		t.Errorf("completion callback fired on a failed run: %+v", obs.completed)
	}
}
