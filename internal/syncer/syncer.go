// Package syncer reconciles the local store with the remote store. One
// Sync call is one pass: fetch the remote window, pair with local pending
// changes, resolve conflicts field by field, persist both sides.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/cadence/internal/conflict"
	"github.com/hyperengineering/cadence/internal/store"
	"github.com/hyperengineering/cadence/internal/types"
)

// Remote is the boundary to the remote synchronized store. The server
// assigns last_modified on upsert; Upsert returns the stored copy.
type Remote interface {
	FetchChangesSince(ctx context.Context, since time.Time) ([]types.HabitRecord, error)
	Upsert(ctx context.Context, rec *types.HabitRecord) (*types.HabitRecord, error)
}

// LocalStore is the slice of the local store the syncer needs.
type LocalStore interface {
	LoadRecord(ctx context.Context, id string) (*types.HabitRecord, error)
	SaveRecord(ctx context.Context, rec *types.HabitRecord, logChange bool) error
	PendingChanges(ctx context.Context) ([]store.PendingChange, error)
	MarkPushed(ctx context.Context, seq int64) error
	GetSyncMeta(ctx context.Context, key string) (string, error)
	SetSyncMeta(ctx context.Context, key, value string) error
}

// Syncer orchestrates one sync pass at a time. It holds no mutable state
// between passes; all progress lives in the store's sync metadata.
type Syncer struct {
	local    LocalStore
	remote   Remote
	resolver *conflict.Resolver
	now      func() time.Time
}

// New creates a Syncer using the given conflict rule table.
func New(local LocalStore, remote Remote, rules *conflict.RuleTable) *Syncer {
	return &Syncer{
		local:    local,
		remote:   remote,
		resolver: conflict.NewResolver(rules),
		now:      time.Now,
	}
}

// Sync runs one pass. A failed remote fetch is fatal for the attempt and
// leaves the checkpoint untouched, so the next pass re-fetches the same
// window. A single record's persist failure is logged and retried next
// cycle without blocking the rest of the batch.
func (s *Syncer) Sync(ctx context.Context) (*types.SyncResult, error) {
	result := &types.SyncResult{}

	checkpoint, err := s.checkpoint(ctx)
	if err != nil {
		return result, err
	}

	remoteRecords, err := s.remote.FetchChangesSince(ctx, checkpoint)
	if err != nil {
		return result, fmt.Errorf("remote fetch failed, checkpoint not advanced: %w", err)
	}
	result.RemoteChanges = len(remoteRecords)

	pending, err := s.local.PendingChanges(ctx)
	if err != nil {
		return result, fmt.Errorf("load local pending changes: %w", err)
	}
	result.LocalChanges = len(pending)

	remoteByID := make(map[string]*types.HabitRecord, len(remoteRecords))
	for i := range remoteRecords {
		remoteByID[remoteRecords[i].ID] = &remoteRecords[i]
	}
	localByID := make(map[string]store.PendingChange, len(pending))
	for _, p := range pending {
		localByID[p.Record.ID] = p
	}

	var newest time.Time
	observe := func(rec *types.HabitRecord) {
		if rec.LastModified.After(newest) {
			newest = rec.LastModified
		}
	}

	// earliestFailed is the oldest server timestamp among remote records
	// that did not land locally this pass. The checkpoint must stay behind
	// it so the next fetch window includes the record again.
	var earliestFailed time.Time
	observeFailed := func(rec *types.HabitRecord) {
		if earliestFailed.IsZero() || rec.LastModified.Before(earliestFailed) {
			earliestFailed = rec.LastModified
		}
	}

	// Unpaired remote changes: adopt directly.
	for id, rec := range remoteByID {
		if _, ok := localByID[id]; ok {
			continue
		}
		if err := s.local.SaveRecord(ctx, rec, false); err != nil {
			slog.Warn("failed to adopt remote record",
				"component", "syncer", "habit_id", id, "error", err)
			result.Failures++
			observeFailed(rec)
			continue
		}
		observe(rec)
	}

	// Local changes, in sequence order so the pushed watermark only
	// advances past records that fully round-tripped.
	pushedThrough := int64(0)
	blocked := false
	for _, p := range pending {
		remoteRec, paired := remoteByID[p.Record.ID]

		var pushErr error
		if paired {
			pushErr = s.reconcilePair(ctx, &p.Record, remoteRec, result, observe)
		} else {
			pushErr = s.pushLocal(ctx, &p.Record, observe)
		}

		if pushErr != nil {
			slog.Warn("record sync failed, will retry next cycle",
				"component", "syncer", "habit_id", p.Record.ID, "error", pushErr)
			result.Failures++
			if paired {
				observeFailed(remoteRec)
			}
			blocked = true
			continue
		}
		if !blocked {
			pushedThrough = p.Seq
		}
	}

	if pushedThrough > 0 {
		if err := s.local.MarkPushed(ctx, pushedThrough); err != nil {
			return result, fmt.Errorf("advance pushed watermark: %w", err)
		}
	}

	if !earliestFailed.IsZero() && !newest.Before(earliestFailed) {
		newest = earliestFailed.Add(-time.Nanosecond)
	}
	if newest.After(checkpoint) {
		if err := s.local.SetSyncMeta(ctx, store.SyncMetaCheckpoint,
			newest.UTC().Format(time.RFC3339Nano)); err != nil {
			return result, fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	result.Success = true
	slog.Info("sync pass complete",
		"component", "syncer",
		"remote_changes", result.RemoteChanges,
		"local_changes", result.LocalChanges,
		"conflicts_resolved", result.ConflictsResolved,
		"failures", result.Failures,
	)
	return result, nil
}

// reconcilePair resolves one local/remote divergence and persists the
// merged record to both sides.
func (s *Syncer) reconcilePair(ctx context.Context, local, remote *types.HabitRecord, result *types.SyncResult, observe func(*types.HabitRecord)) error {
	c := conflict.Classify(local, remote, s.now().UTC())
	if c == nil {
		// Same content on both sides; nothing to merge.
		observe(remote)
		return nil
	}

	merged, diags := s.resolver.Resolve(local, remote)
	for _, d := range diags {
		slog.Warn("conflict rule gap",
			"component", "syncer", "habit_id", local.ID,
			"field", d.Field, "detail", d.Message)
	}
	slog.Debug("conflict resolved",
		"component", "syncer", "habit_id", c.HabitID,
		"kind", string(c.Kind), "fields", c.Fields)

	stored, err := s.remote.Upsert(ctx, merged)
	if err != nil {
		return fmt.Errorf("push merged record: %w", err)
	}
	if err := s.local.SaveRecord(ctx, stored, false); err != nil {
		return fmt.Errorf("persist merged record: %w", err)
	}
	observe(stored)
	result.ConflictsResolved++
	return nil
}

// pushLocal sends an unpaired local change to the remote and writes back
// the server-stamped copy.
func (s *Syncer) pushLocal(ctx context.Context, rec *types.HabitRecord, observe func(*types.HabitRecord)) error {
	stored, err := s.remote.Upsert(ctx, rec)
	if err != nil {
		return fmt.Errorf("push record: %w", err)
	}
	if err := s.local.SaveRecord(ctx, stored, false); err != nil {
		return fmt.Errorf("write back server copy: %w", err)
	}
	observe(stored)
	return nil
}

func (s *Syncer) checkpoint(ctx context.Context) (time.Time, error) {
	val, err := s.local.GetSyncMeta(ctx, store.SyncMetaCheckpoint)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load checkpoint: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint %q: %w", val, err)
	}
	return t, nil
}
