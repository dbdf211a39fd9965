package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// Sync meta keys.
const (
	SyncMetaCheckpoint    = "last_sync_checkpoint"
	SyncMetaLastPushedSeq = "last_pushed_seq"
)

// PendingChanges returns the records touched by change-log entries past
// the pushed watermark, one entry per record at its highest sequence.
func (s *SQLiteStore) PendingChanges(ctx context.Context) ([]PendingChange, error) {
	lastPushed, err := s.lastPushedSeq(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, MAX(sequence) AS seq
		FROM change_log
		WHERE sequence > ?
		GROUP BY entity_id
		ORDER BY seq ASC
	`, lastPushed)
	if err != nil {
		return nil, fmt.Errorf("query change log: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id  string
		seq int64
	}
	var ids []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.seq); err != nil {
			return nil, fmt.Errorf("scan change log entry: %w", err)
		}
		ids = append(ids, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change log: %w", err)
	}

	changes := make([]PendingChange, 0, len(ids))
	for _, p := range ids {
		rec, err := s.LoadRecord(ctx, p.id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Hard-deleted since the change was logged; nothing to push.
				slog.Warn("pending change references missing record",
					"component", "store", "entity_id", p.id)
				continue
			}
			return nil, err
		}
		changes = append(changes, PendingChange{Seq: p.seq, Record: *rec})
	}
	return changes, nil
}

// MarkPushed advances the pushed watermark. The watermark never moves
// backwards; a failed record earlier in the batch keeps it pinned so the
// record is retried next cycle.
func (s *SQLiteStore) MarkPushed(ctx context.Context, seq int64) error {
	current, err := s.lastPushedSeq(ctx)
	if err != nil {
		return err
	}
	if seq <= current {
		return nil
	}
	return s.SetSyncMeta(ctx, SyncMetaLastPushedSeq, strconv.FormatInt(seq, 10))
}

func (s *SQLiteStore) lastPushedSeq(ctx context.Context) (int64, error) {
	val, err := s.GetSyncMeta(ctx, SyncMetaLastPushedSeq)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	seq, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", SyncMetaLastPushedSeq, err)
	}
	return seq, nil
}

// GetSyncMeta retrieves a sync metadata value by key.
func (s *SQLiteStore) GetSyncMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM sync_meta WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sync meta key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get sync meta: %w", err)
	}
	return value, nil
}

// SetSyncMeta sets a sync metadata value.
func (s *SQLiteStore) SetSyncMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_meta (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sync meta: %w", err)
	}
	return nil
}
