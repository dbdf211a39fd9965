package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/cadence/internal/types"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed local store for both the normalized
// schema and the legacy compatibility tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at dbPath,
// applies pragmas, and runs schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const habitColumns = `id, user_id, name, icon, color, habit_type, goal_count, goal_unit,
	schedule, baseline_count, target_count, start_date, end_date, deleted, field_timestamps,
	created_at, updated_at`

// LoadRecord assembles a flat habit snapshot: the habit row plus its daily
// progress rows folded back into date-keyed maps.
func (s *SQLiteStore) LoadRecord(ctx context.Context, id string) (*types.HabitRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+habitColumns+`
		FROM habits WHERE id = ?
	`, id)

	rec, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan habit: %w", err)
	}

	if err := s.attachHistory(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadUserRecords returns all of a user's habit records with history maps
// attached, soft-deleted habits included (sync needs to propagate deletes).
func (s *SQLiteStore) LoadUserRecords(ctx context.Context, userID string) ([]types.HabitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+habitColumns+`
		FROM habits WHERE user_id = ?
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query habits: %w", err)
	}
	defer rows.Close()

	var recs []types.HabitRecord
	for rows.Next() {
		rec, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habits: %w", err)
	}

	for i := range recs {
		if err := s.attachHistory(ctx, &recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// SaveRecord upserts the habit row and its history maps. With logChange
// set, the write is recorded in the change log so the next sync pass picks
// it up as a local pending change.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *types.HabitRecord, logChange bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertHabitTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := upsertHistoryTx(ctx, tx, rec); err != nil {
		return err
	}

	if logChange {
		op := "upsert"
		if rec.Deleted {
			op = "delete"
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO change_log (entity_id, operation, created_at) VALUES (?, ?, ?)
		`, rec.ID, op, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("append change log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadUserProgressRecords returns every daily progress row for the user's
// habits, ordered by day.
func (s *SQLiteStore) LoadUserProgressRecords(ctx context.Context, userID string) ([]types.DailyProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.habit_id, p.day, p.progress, p.goal_count, p.difficulty, p.created_at
		FROM daily_progress p
		JOIN habits h ON h.id = p.habit_id
		WHERE h.user_id = ?
		ORDER BY p.day ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query daily progress: %w", err)
	}
	defer rows.Close()

	var recs []types.DailyProgress
	for rows.Next() {
		var p types.DailyProgress
		var difficulty sql.NullInt64
		var createdAt string
		if err := rows.Scan(&p.ID, &p.HabitID, &p.Day, &p.Progress, &p.GoalCount, &difficulty, &createdAt); err != nil {
			return nil, fmt.Errorf("scan daily progress: %w", err)
		}
		if difficulty.Valid {
			d := int(difficulty.Int64)
			p.Difficulty = &d
		}
		p.CreatedAt = parseTime(createdAt)
		recs = append(recs, p)
	}
	return recs, rows.Err()
}

// IsExceptionDay reports whether the day is a vacation/exception day.
func (s *SQLiteStore) IsExceptionDay(ctx context.Context, userID, day string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM vacation_days WHERE user_id = ? AND day = ?
	`, userID, day).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query vacation day: %w", err)
	}
	return true, nil
}

// AddExceptionDay marks a day as a vacation/exception day.
func (s *SQLiteStore) AddExceptionDay(ctx context.Context, userID, day string) error {
	if _, err := types.ParseDay(day); err != nil {
		return fmt.Errorf("invalid day %q: %w", day, err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO vacation_days (user_id, day) VALUES (?, ?)
	`, userID, day)
	if err != nil {
		return fmt.Errorf("insert vacation day: %w", err)
	}
	return nil
}

// LoadStreak returns the stored streak summary for the user.
func (s *SQLiteStore) LoadStreak(ctx context.Context, userID string) (*types.StreakSummary, error) {
	var sum types.StreakSummary
	var lastComplete sql.NullString
	var computedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, current, longest, total_complete_days, last_complete_date, computed_at
		FROM streaks WHERE user_id = ?
	`, userID).Scan(&sum.UserID, &sum.Current, &sum.Longest, &sum.TotalCompleteDays, &lastComplete, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query streak: %w", err)
	}
	if lastComplete.Valid {
		sum.LastCompleteDate = lastComplete.String
	}
	sum.ComputedAt = parseTime(computedAt)
	return &sum, nil
}

// LoadUserProgress returns the stored points total and level for the user.
func (s *SQLiteStore) LoadUserProgress(ctx context.Context, userID string) (*types.UserProgress, error) {
	var up types.UserProgress
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, total_points, level, updated_at
		FROM user_progress WHERE user_id = ?
	`, userID).Scan(&up.UserID, &up.TotalPoints, &up.Level, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user progress: %w", err)
	}
	up.UpdatedAt = parseTime(updatedAt)
	return &up, nil
}

// --- row plumbing ---

func upsertHabitTx(ctx context.Context, tx *sql.Tx, rec *types.HabitRecord) error {
	scheduleJSON, err := json.Marshal(rec.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	fieldTimes := rec.FieldModified
	if fieldTimes == nil {
		fieldTimes = map[string]time.Time{}
	}
	fieldTimesJSON, err := json.Marshal(fieldTimes)
	if err != nil {
		return fmt.Errorf("marshal field timestamps: %w", err)
	}

	var endDate any
	if rec.EndDate != nil {
		endDate = *rec.EndDate
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			icon = excluded.icon,
			color = excluded.color,
			habit_type = excluded.habit_type,
			goal_count = excluded.goal_count,
			goal_unit = excluded.goal_unit,
			schedule = excluded.schedule,
			baseline_count = excluded.baseline_count,
			target_count = excluded.target_count,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			deleted = excluded.deleted,
			field_timestamps = excluded.field_timestamps,
			updated_at = excluded.updated_at
	`,
		rec.ID, rec.UserID, rec.Name, rec.Icon, rec.Color, string(rec.Type),
		rec.Goal.Count, rec.Goal.Unit, string(scheduleJSON),
		rec.BaselineCount, rec.TargetCount, rec.StartDate, endDate,
		boolToInt(rec.Deleted), string(fieldTimesJSON),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.LastModified.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert habit %s: %w", rec.ID, err)
	}
	return nil
}

// upsertHistoryTx folds the record's date-keyed maps into daily_progress
// rows. Existing rows keep their goal_count snapshot; only the recorded
// counts and ratings move.
func upsertHistoryTx(ctx context.Context, tx *sql.Tx, rec *types.HabitRecord) error {
	source := rec.CompletionHistory
	if rec.Type == types.HabitQuit {
		source = rec.UsageHistory
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_progress (id, habit_id, day, progress, goal_count, difficulty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(habit_id, day) DO UPDATE SET
			progress = excluded.progress,
			difficulty = COALESCE(excluded.difficulty, daily_progress.difficulty)
	`)
	if err != nil {
		return fmt.Errorf("prepare progress upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for day, count := range source {
		if _, err := types.ParseDay(day); err != nil {
			continue
		}
		var difficulty any
		if rating, ok := rec.DifficultyHistory[day]; ok {
			difficulty = rating
		}
		_, err := stmt.ExecContext(ctx,
			ulid.Make().String(), rec.ID, day, count, rec.Goal.Count, difficulty, now)
		if err != nil {
			return fmt.Errorf("upsert progress %s/%s: %w", rec.ID, day, err)
		}
	}
	return nil
}

// attachHistory folds daily_progress rows back into the record's maps.
func (s *SQLiteStore) attachHistory(ctx context.Context, rec *types.HabitRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, progress, difficulty FROM daily_progress WHERE habit_id = ?
	`, rec.ID)
	if err != nil {
		return fmt.Errorf("query history for %s: %w", rec.ID, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	difficulty := make(map[string]int)
	for rows.Next() {
		var day string
		var progress int
		var rating sql.NullInt64
		if err := rows.Scan(&day, &progress, &rating); err != nil {
			return fmt.Errorf("scan history row: %w", err)
		}
		counts[day] = progress
		if rating.Valid {
			difficulty[day] = int(rating.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate history rows: %w", err)
	}

	if rec.Type == types.HabitQuit {
		rec.UsageHistory = counts
		rec.CompletionHistory = map[string]int{}
	} else {
		rec.CompletionHistory = counts
		rec.UsageHistory = map[string]int{}
	}
	rec.DifficultyHistory = difficulty
	return nil
}

func scanHabit(scanner interface{ Scan(...any) error }) (*types.HabitRecord, error) {
	var rec types.HabitRecord
	var habitType, scheduleJSON, fieldTimesJSON, createdAt, updatedAt string
	var endDate sql.NullString
	var deleted int

	err := scanner.Scan(
		&rec.ID, &rec.UserID, &rec.Name, &rec.Icon, &rec.Color, &habitType,
		&rec.Goal.Count, &rec.Goal.Unit, &scheduleJSON,
		&rec.BaselineCount, &rec.TargetCount, &rec.StartDate, &endDate,
		&deleted, &fieldTimesJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = types.HabitType(habitType)
	if err := json.Unmarshal([]byte(scheduleJSON), &rec.Schedule); err != nil {
		return nil, fmt.Errorf("parse schedule JSON: %w", err)
	}
	if fieldTimesJSON != "" && fieldTimesJSON != "{}" {
		if err := json.Unmarshal([]byte(fieldTimesJSON), &rec.FieldModified); err != nil {
			return nil, fmt.Errorf("parse field timestamps JSON: %w", err)
		}
	}
	if endDate.Valid {
		rec.EndDate = &endDate.String
	}
	rec.Deleted = deleted != 0
	rec.CreatedAt = parseTime(createdAt)
	rec.LastModified = parseTime(updatedAt)
	return &rec, nil
}

// parseTime parses an RFC3339 timestamp, tolerating nanosecond precision.
// Unparseable values return the zero time; timestamps are written by this
// store so a parse failure means a corrupted row, not a format choice.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
