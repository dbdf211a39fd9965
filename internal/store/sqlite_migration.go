package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/cadence/internal/legacy"
	"github.com/hyperengineering/cadence/internal/types"
)

// Manifest table names. Rollback dispatches on these; anything else in the
// manifest is a corruption and fails loudly.
const (
	manifestHabits       = "habits"
	manifestProgress     = "daily_progress"
	manifestStreaks      = "streaks"
	manifestUserProgress = "user_progress"
	manifestTransactions = "point_transactions"
)

// LegacyHabits reads all legacy habit rows for a user. The legacy tables
// are never written by this store.
func (s *SQLiteStore) LegacyHabits(ctx context.Context, userID string) ([]legacy.Habit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, icon, color, habit_type, goal_text, schedule_text,
		       baseline_count, target_count, start_date, end_date,
		       completion_history, difficulty_history, usage_history,
		       deleted, created_at, last_modified
		FROM legacy_habits
		WHERE user_id = ?
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query legacy habits: %w", err)
	}
	defer rows.Close()

	var habits []legacy.Habit
	for rows.Next() {
		var h legacy.Habit
		var endDate sql.NullString
		var completion, difficulty, usage string
		var deleted int
		var createdAt, lastModified string

		err := rows.Scan(
			&h.ID, &h.UserID, &h.Name, &h.Icon, &h.Color, &h.Type,
			&h.GoalText, &h.ScheduleText, &h.BaselineCount, &h.TargetCount,
			&h.StartDate, &endDate, &completion, &difficulty, &usage,
			&deleted, &createdAt, &lastModified,
		)
		if err != nil {
			return nil, fmt.Errorf("scan legacy habit: %w", err)
		}

		if endDate.Valid {
			h.EndDate = &endDate.String
		}
		if err := json.Unmarshal([]byte(completion), &h.Completion); err != nil {
			return nil, fmt.Errorf("parse completion history for %s: %w", h.ID, err)
		}
		if err := json.Unmarshal([]byte(difficulty), &h.Difficulty); err != nil {
			return nil, fmt.Errorf("parse difficulty history for %s: %w", h.ID, err)
		}
		if err := json.Unmarshal([]byte(usage), &h.Usage); err != nil {
			return nil, fmt.Errorf("parse usage history for %s: %w", h.ID, err)
		}
		h.Deleted = deleted != 0
		h.CreatedAt = parseTime(createdAt)
		h.LastModified = parseTime(lastModified)
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

// LegacyUserStats reads the legacy per-user aggregates. Returns
// ErrNoLegacyData when the user has no stats row.
func (s *SQLiteStore) LegacyUserStats(ctx context.Context, userID string) (*legacy.UserStats, error) {
	var stats legacy.UserStats
	var transactions string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, total_points, level, current_streak, longest_streak,
		       total_complete_days, transactions
		FROM legacy_user_stats WHERE user_id = ?
	`, userID).Scan(
		&stats.UserID, &stats.TotalPoints, &stats.Level, &stats.CurrentStreak,
		&stats.LongestStreak, &stats.TotalCompleteDays, &transactions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoLegacyData
	}
	if err != nil {
		return nil, fmt.Errorf("query legacy user stats: %w", err)
	}
	if err := json.Unmarshal([]byte(transactions), &stats.Transactions); err != nil {
		return nil, fmt.Errorf("parse legacy transactions: %w", err)
	}
	return &stats, nil
}

// MigrationCompleted reports whether the per-user completion flag is set,
// and when it was set.
func (s *SQLiteStore) MigrationCompleted(ctx context.Context, userID string) (bool, time.Time, error) {
	var completedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT completed_at FROM migration_flags WHERE user_id = ?
	`, userID).Scan(&completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("query migration flag: %w", err)
	}
	return true, parseTime(completedAt), nil
}

// HasManifestEntries reports whether any migration run has left manifest
// entries for the user. Entries without the completion flag mean an
// interrupted run.
func (s *SQLiteStore) HasManifestEntries(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM migration_manifest WHERE user_id = ? LIMIT 1
	`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query migration manifest: %w", err)
	}
	return true, nil
}

// InsertMigratedHabit writes one migrated habit and its normalized rows in
// a single transaction, recording every created row in the manifest so a
// later rollback can operate on everything created so far.
func (s *SQLiteStore) InsertMigratedHabit(ctx context.Context, runID string, habit *types.HabitRecord, records []types.DailyProgress) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertHabitTx(ctx, tx, habit); err != nil {
		return err
	}
	if err := manifestTx(ctx, tx, runID, habit.UserID, manifestHabits, habit.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_progress (id, habit_id, day, progress, goal_count, difficulty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare progress insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var difficulty any
		if r.Difficulty != nil {
			difficulty = *r.Difficulty
		}
		_, err := stmt.ExecContext(ctx, r.ID, r.HabitID, r.Day, r.Progress,
			r.GoalCount, difficulty, r.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert progress %s/%s: %w", r.HabitID, r.Day, err)
		}
		if err := manifestTx(ctx, tx, runID, habit.UserID, manifestProgress, r.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CommitMigration persists the recomputed streak, the points ledger, and
// the completion flag in one durable transaction. This is the Committed
// transition; after it returns the migration is visible and latched.
func (s *SQLiteStore) CommitMigration(ctx context.Context, batch *CommitBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lastComplete any
	if batch.Streak.LastCompleteDate != "" {
		lastComplete = batch.Streak.LastCompleteDate
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO streaks
			(user_id, current, longest, total_complete_days, last_complete_date, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, batch.UserID, batch.Streak.Current, batch.Streak.Longest,
		batch.Streak.TotalCompleteDays, lastComplete,
		batch.Streak.ComputedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert streak: %w", err)
	}
	if err := manifestTx(ctx, tx, batch.RunID, batch.UserID, manifestStreaks, batch.UserID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_progress (user_id, total_points, level, updated_at)
		VALUES (?, ?, ?, ?)
	`, batch.UserID, batch.Progress.TotalPoints, batch.Progress.Level,
		batch.Progress.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert user progress: %w", err)
	}
	if err := manifestTx(ctx, tx, batch.RunID, batch.UserID, manifestUserProgress, batch.UserID); err != nil {
		return err
	}

	for _, t := range batch.Transactions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO point_transactions (id, user_id, amount, reason, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, t.ID, t.UserID, t.Amount, t.Reason, t.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
		if err := manifestTx(ctx, tx, batch.RunID, batch.UserID, manifestTransactions, t.ID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO migration_flags (user_id, completed_at) VALUES (?, ?)
	`, batch.UserID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set migration flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RollbackMigration deletes every record listed in the user's migration
// manifest (habit deletes cascade to progress rows), clears the manifest
// and the completion flag, and leaves the legacy tables untouched. Safe to
// call on a half-written run.
func (s *SQLiteStore) RollbackMigration(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT table_name, entity_id FROM migration_manifest WHERE user_id = ?
	`, userID)
	if err != nil {
		return fmt.Errorf("query manifest: %w", err)
	}

	type entry struct{ table, id string }
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.table, &e.id); err != nil {
			rows.Close()
			return fmt.Errorf("scan manifest entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate manifest: %w", err)
	}
	rows.Close()

	for _, e := range entries {
		var stmt string
		switch e.table {
		case manifestHabits:
			stmt = `DELETE FROM habits WHERE id = ?`
		case manifestProgress:
			stmt = `DELETE FROM daily_progress WHERE id = ?`
		case manifestStreaks:
			stmt = `DELETE FROM streaks WHERE user_id = ?`
		case manifestUserProgress:
			stmt = `DELETE FROM user_progress WHERE user_id = ?`
		case manifestTransactions:
			stmt = `DELETE FROM point_transactions WHERE id = ?`
		default:
			return fmt.Errorf("manifest references unknown table %q", e.table)
		}
		if _, err := tx.ExecContext(ctx, stmt, e.id); err != nil {
			return fmt.Errorf("rollback delete from %s: %w", e.table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM migration_manifest WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear manifest: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM migration_flags WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear migration flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func manifestTx(ctx context.Context, tx *sql.Tx, runID, userID, table, entityID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO migration_manifest (run_id, user_id, table_name, entity_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, userID, table, entityID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record manifest entry %s/%s: %w", table, entityID, err)
	}
	return nil
}

// Seed helpers used by tests and tooling to stage legacy fixtures. They
// write the legacy tables directly; production code never does.

// SeedLegacyHabit inserts a legacy habit row.
func (s *SQLiteStore) SeedLegacyHabit(ctx context.Context, h *legacy.Habit) error {
	completion, err := json.Marshal(orEmptyCounts(h.Completion))
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}
	difficulty, err := json.Marshal(orEmptyCounts(h.Difficulty))
	if err != nil {
		return fmt.Errorf("marshal difficulty: %w", err)
	}
	usage, err := json.Marshal(orEmptyCounts(h.Usage))
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}

	var endDate any
	if h.EndDate != nil {
		endDate = *h.EndDate
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO legacy_habits (id, user_id, name, icon, color, habit_type,
			goal_text, schedule_text, baseline_count, target_count, start_date, end_date,
			completion_history, difficulty_history, usage_history, deleted, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.UserID, h.Name, h.Icon, h.Color, h.Type, h.GoalText, h.ScheduleText,
		h.BaselineCount, h.TargetCount, h.StartDate, endDate,
		string(completion), string(difficulty), string(usage), boolToInt(h.Deleted),
		h.CreatedAt.UTC().Format(time.RFC3339Nano), h.LastModified.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert legacy habit: %w", err)
	}
	return nil
}

// SeedLegacyUserStats inserts a legacy user stats row.
func (s *SQLiteStore) SeedLegacyUserStats(ctx context.Context, stats *legacy.UserStats) error {
	txs := stats.Transactions
	if txs == nil {
		txs = []legacy.Transaction{}
	}
	transactions, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("marshal transactions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO legacy_user_stats (user_id, total_points, level, current_streak,
			longest_streak, total_complete_days, transactions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, stats.UserID, stats.TotalPoints, stats.Level, stats.CurrentStreak,
		stats.LongestStreak, stats.TotalCompleteDays, string(transactions))
	if err != nil {
		return fmt.Errorf("insert legacy user stats: %w", err)
	}
	return nil
}

func orEmptyCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
