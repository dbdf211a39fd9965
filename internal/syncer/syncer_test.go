package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/cadence/internal/conflict"
	"github.com/hyperengineering/cadence/internal/store"
	"github.com/hyperengineering/cadence/internal/types"
)

// fakeRemote implements Remote in memory. Upsert stamps last_modified
// with a monotonically increasing clock, like the real server.
type fakeRemote struct {
	records   map[string]*types.HabitRecord
	clock     time.Time
	fetchErr  error
	upsertErr map[string]error
	upserts   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records:   make(map[string]*types.HabitRecord),
		clock:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		upsertErr: make(map[string]error),
	}
}

func (f *fakeRemote) FetchChangesSince(_ context.Context, since time.Time) ([]types.HabitRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []types.HabitRecord
	for _, rec := range f.records {
		if rec.LastModified.After(since) {
			out = append(out, *rec.Clone())
		}
	}
	return out, nil
}

func (f *fakeRemote) Upsert(_ context.Context, rec *types.HabitRecord) (*types.HabitRecord, error) {
	if err := f.upsertErr[rec.ID]; err != nil {
		return nil, err
	}
	f.upserts++
	f.clock = f.clock.Add(time.Second)
	stored := rec.Clone()
	stored.LastModified = f.clock
	f.records[rec.ID] = stored
	return stored.Clone(), nil
}

// fakeLocal implements LocalStore in memory.
type fakeLocal struct {
	records map[string]*types.HabitRecord
	pending []store.PendingChange
	meta    map[string]string
	pushed  int64
	saveErr map[string]error
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		records: make(map[string]*types.HabitRecord),
		meta:    make(map[string]string),
		saveErr: make(map[string]error),
	}
}

func (f *fakeLocal) LoadRecord(_ context.Context, id string) (*types.HabitRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeLocal) SaveRecord(_ context.Context, rec *types.HabitRecord, _ bool) error {
	if err := f.saveErr[rec.ID]; err != nil {
		return err
	}
	f.records[rec.ID] = rec.Clone()
	return nil
}

func (f *fakeLocal) PendingChanges(context.Context) ([]store.PendingChange, error) {
	var out []store.PendingChange
	for _, p := range f.pending {
		if p.Seq > f.pushed {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeLocal) MarkPushed(_ context.Context, seq int64) error {
	if seq > f.pushed {
		f.pushed = seq
	}
	return nil
}

func (f *fakeLocal) GetSyncMeta(_ context.Context, key string) (string, error) {
	v, ok := f.meta[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *fakeLocal) SetSyncMeta(_ context.Context, key, value string) error {
	f.meta[key] = value
	return nil
}

func (f *fakeLocal) addPending(seq int64, rec *types.HabitRecord) {
	f.records[rec.ID] = rec.Clone()
	f.pending = append(f.pending, store.PendingChange{Seq: seq, Record: *rec.Clone()})
}

func record(id, name string, modified time.Time) *types.HabitRecord {
	return &types.HabitRecord{
		ID:           id,
		UserID:       "user-1",
		Name:         name,
		Type:         types.HabitBuild,
		Goal:         types.Goal{Count: 1, Unit: "time"},
		Schedule:     types.Daily(),
		StartDate:    "2024-01-01",
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastModified: modified,
	}
}

func newSyncer(local LocalStore, remote Remote) *Syncer {
	return New(local, remote, conflict.DefaultRules())
}

func TestSync_AdoptsRemoteChanges(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()

	remote.records["habit-1"] = record("habit-1", "Read", remote.clock)

	result, err := newSyncer(local, remote).Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.RemoteChanges != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if _, ok := local.records["habit-1"]; !ok {
		t.Error("remote record was not adopted locally")
	}

	// The checkpoint advanced to the newest observed server timestamp.
	if local.meta[store.SyncMetaCheckpoint] == "" {
		t.Error("checkpoint not advanced")
	}
}

func TestSync_PushesLocalChanges(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()

	local.addPending(1, record("habit-1", "Read", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	result, err := newSyncer(local, remote).Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.LocalChanges != 1 || result.Failures != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if _, ok := remote.records["habit-1"]; !ok {
		t.Error("local change was not pushed")
	}
	// The server-stamped copy was written back.
	if !local.records["habit-1"].LastModified.Equal(remote.records["habit-1"].LastModified) {
		t.Error("server-stamped copy not written back locally")
	}
	if local.pushed != 1 {
		t.Errorf("watermark = %d, want 1", local.pushed)
	}
}

func TestSync_ResolvesConflictBothSides(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	localRec := record("habit-1", "Read fiction", base.Add(time.Hour))
	localRec.CompletionHistory = map[string]int{"2024-02-01": 2}
	local.addPending(1, localRec)

	remoteRec := record("habit-1", "Read", base)
	remoteRec.CompletionHistory = map[string]int{"2024-02-01": 5}
	remote.records["habit-1"] = remoteRec

	result, err := newSyncer(local, remote).Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.ConflictsResolved != 1 {
		t.Errorf("conflicts resolved = %d, want 1", result.ConflictsResolved)
	}

	// Both sides converge on the merged record: newer name, max history.
	for side, rec := range map[string]*types.HabitRecord{
		"remote": remote.records["habit-1"],
		"local":  local.records["habit-1"],
	} {
		if rec.Name != "Read fiction" {
			t.Errorf("%s name = %q, want newer side's name", side, rec.Name)
		}
		if rec.CompletionHistory["2024-02-01"] != 5 {
			t.Errorf("%s history = %d, want merged max 5", side, rec.CompletionHistory["2024-02-01"])
		}
	}
}

func TestSync_IdenticalPairIsNotAConflict(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rec := record("habit-1", "Read", base)
	local.addPending(1, rec)
	remote.records["habit-1"] = rec.Clone()

	result, err := newSyncer(local, remote).Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.ConflictsResolved != 0 {
		t.Errorf("identical content should not count as a conflict: %+v", result)
	}
	if remote.upserts != 0 {
		t.Errorf("identical content should not be re-pushed, got %d upserts", remote.upserts)
	}
}

func TestSync_FetchFailureLeavesCheckpoint(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()
	local.meta[store.SyncMetaCheckpoint] = "2024-02-01T00:00:00Z"
	remote.fetchErr = errors.New("connection refused")

	result, err := newSyncer(local, remote).Sync(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Success {
		t.Error("result should not be marked successful")
	}
	if local.meta[store.SyncMetaCheckpoint] != "2024-02-01T00:00:00Z" {
		t.Error("checkpoint must not move on fetch failure")
	}
}

func TestSync_FailedRecordPinsWatermark(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	local.addPending(1, record("habit-1", "A", base))
	local.addPending(2, record("habit-2", "B", base))
	local.addPending(3, record("habit-3", "C", base))
	remote.upsertErr["habit-2"] = errors.New("boom")

	result, err := newSyncer(local, remote).Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failures != 1 {
		t.Errorf("failures = %d, want 1", result.Failures)
	}

	// The watermark stops before the failed record even though a later
	// record succeeded, so habit-2 and habit-3 are retried next cycle.
	if local.pushed != 1 {
		t.Errorf("watermark = %d, want 1", local.pushed)
	}

	// Next cycle, after the remote recovers, the queue drains.
	delete(remote.upsertErr, "habit-2")
	result, err = newSyncer(local, remote).Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failures != 0 || local.pushed != 3 {
		t.Errorf("retry cycle failed: failures=%d watermark=%d", result.Failures, local.pushed)
	}
}

func TestSync_FailedAdoptionHoldsCheckpoint(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()

	older := record("habit-a", "A", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	newer := record("habit-b", "B", time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC))
	remote.records["habit-a"] = older
	remote.records["habit-b"] = newer
	local.saveErr["habit-a"] = errors.New("disk full")

	result, err := newSyncer(local, remote).Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failures != 1 {
		t.Errorf("failures = %d, want 1", result.Failures)
	}

	// A newer record succeeded, but the checkpoint stays behind the failed
	// one so the next fetch window still contains it.
	cp, err := time.Parse(time.RFC3339Nano, local.meta[store.SyncMetaCheckpoint])
	if err != nil {
		t.Fatal(err)
	}
	if !cp.Before(older.LastModified) {
		t.Fatalf("checkpoint %v advanced past failed record at %v", cp, older.LastModified)
	}

	// Next pass, with the local store healthy again, the record lands.
	delete(local.saveErr, "habit-a")
	result, err = newSyncer(local, remote).Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failures != 0 {
		t.Errorf("retry pass failures = %d, want 0", result.Failures)
	}
	if _, ok := local.records["habit-a"]; !ok {
		t.Error("failed record was never retried")
	}
}

func TestSync_BadCheckpointRejected(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()
	local.meta[store.SyncMetaCheckpoint] = "garbage"

	if _, err := newSyncer(local, remote).Sync(context.Background()); err == nil {
		t.Fatal("expected error for unparseable checkpoint")
	}
}
