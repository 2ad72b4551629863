package override

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noren/internal/kv"
	"noren/internal/model"
)

type fakeSource struct {
	mu         sync.Mutex
	candidates []model.OverrideRecord
	listErr    error
	deleteErr  error
	calls      int
	deleted    []string
	blockCh    chan struct{}
}

func (f *fakeSource) ListOverrideCandidates(ctx context.Context) ([]model.OverrideRecord, error) {
	f.mu.Lock()
	f.calls++
	block := f.blockCh
	candidates, err := f.candidates, f.listErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return candidates, err
}

func (f *fakeSource) CreateOverride(ctx context.Context, rec model.OverrideRecord) (string, error) {
	return "created-id", nil
}

func (f *fakeSource) DeleteOverride(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var storeNow = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, source *fakeSource, opts Options) (*Store, *kv.Memory) {
	t.Helper()
	logger := zerolog.Nop()
	if opts.Now == nil {
		opts.Now = func() time.Time { return storeNow }
	}
	mem := kv.NewMemory()
	return NewStore(source, mem, &logger, opts), mem
}

func activeRecord(id string) model.OverrideRecord {
	end := storeNow.Add(time.Hour)
	return model.OverrideRecord{
		ID:        id,
		Kind:      model.OverrideClosed,
		Priority:  5,
		Published: true,
		EndTime:   &end,
		UpdatedAt: storeNow,
	}
}

func TestRefreshSelectsAndPersists(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{candidates: []model.OverrideRecord{activeRecord("typhoon")}}
	store, mem := newTestStore(t, source, Options{})

	changed, err := store.Refresh(ctx, false)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, store.Current())
	assert.Equal(t, "typhoon", store.Current().ID)

	raw, ok, err := mem.Get(ctx, persistKey)
	require.NoError(t, err)
	require.True(t, ok, "selected override is persisted")
	var persisted model.OverrideRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	assert.Equal(t, "typhoon", persisted.ID)
}

func TestRefreshRateLimit(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{}
	store, _ := newTestStore(t, source, Options{})

	_, err := store.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, source.callCount())

	// Inside the window: no-op unless forced.
	changed, err := store.Refresh(ctx, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, source.callCount())

	_, err = store.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, source.callCount())
}

func TestRefreshSingleFlight(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	source := &fakeSource{blockCh: block}
	store, _ := newTestStore(t, source, Options{})

	done := make(chan struct{})
	go func() {
		_, _ = store.Refresh(ctx, false)
		close(done)
	}()

	// Wait for the in-flight refresh to reach the source.
	require.Eventually(t, func() bool { return source.callCount() == 1 },
		time.Second, time.Millisecond)

	// A forced refresh arriving concurrently is coalesced, not doubled.
	changed, err := store.Refresh(ctx, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, source.callCount())

	close(block)
	<-done
}

func TestRefreshNoChangeForSameSelection(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{candidates: []model.OverrideRecord{activeRecord("same")}}
	store, _ := newTestStore(t, source, Options{})

	changed, err := store.Refresh(ctx, true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Refresh(ctx, true)
	require.NoError(t, err)
	assert.False(t, changed, "same selection reports no change")
}

func TestRefreshFailureHoldPolicy(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{candidates: []model.OverrideRecord{activeRecord("held")}}
	store, mem := newTestStore(t, source, Options{Policy: PolicyHold})

	_, err := store.Refresh(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, store.Current())

	source.mu.Lock()
	source.listErr = errors.New("cms down")
	source.mu.Unlock()

	changed, err := store.Refresh(ctx, true)
	require.NoError(t, err, "refresh failures are absorbed")
	assert.False(t, changed)
	require.NotNil(t, store.Current(), "last-known-good held across the failure")
	assert.Equal(t, "held", store.Current().ID)

	_, ok, _ := mem.Get(ctx, persistKey)
	assert.True(t, ok, "persisted entry survives a held failure")
}

func TestRefreshFailureClearPolicy(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{candidates: []model.OverrideRecord{activeRecord("gone")}}
	store, mem := newTestStore(t, source, Options{Policy: PolicyClear})

	_, err := store.Refresh(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, store.Current())

	source.mu.Lock()
	source.listErr = errors.New("cms down")
	source.mu.Unlock()

	changed, err := store.Refresh(ctx, true)
	require.NoError(t, err)
	assert.True(t, changed, "clearing an active override is a change")
	assert.Nil(t, store.Current())

	_, ok, _ := mem.Get(ctx, persistKey)
	assert.False(t, ok, "persisted entry removed on clear")

	// A second failure with nothing active is not a change.
	changed, err = store.Refresh(ctx, true)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestHoldPolicyDropsExpiredOverride(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{candidates: []model.OverrideRecord{activeRecord("short-lived")}}

	clock := storeNow
	store, _ := newTestStore(t, source, Options{
		Policy: PolicyHold,
		Now:    func() time.Time { return clock },
	})

	_, err := store.Refresh(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, store.Current())

	source.mu.Lock()
	source.listErr = errors.New("cms down")
	source.mu.Unlock()
	clock = storeNow.Add(2 * time.Hour) // past the override's end time

	changed, err := store.Refresh(ctx, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, store.Current(), "held override dropped once its window ends")
}

func TestBootstrapFromFreshSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	snap := Snapshot{
		Contents:  []model.OverrideRecord{activeRecord("snapped")},
		FetchedAt: storeNow.Add(-time.Minute),
	}
	require.NoError(t, WriteSnapshot(path, snap))

	store, _ := newTestStore(t, &fakeSource{}, Options{SnapshotPath: path})
	store.Bootstrap(ctx)

	require.NotNil(t, store.Current())
	assert.Equal(t, "snapped", store.Current().ID)
}

func TestBootstrapStaleSnapshotFallsToPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	snap := Snapshot{
		Contents:  []model.OverrideRecord{activeRecord("stale")},
		FetchedAt: storeNow.Add(-10 * time.Minute),
	}
	require.NoError(t, WriteSnapshot(path, snap))

	store, mem := newTestStore(t, &fakeSource{}, Options{SnapshotPath: path})
	persisted := activeRecord("from-kv")
	data, err := json.Marshal(persisted)
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, persistKey, string(data)))

	store.Bootstrap(ctx)

	require.NotNil(t, store.Current())
	assert.Equal(t, "from-kv", store.Current().ID)
}

func TestBootstrapDropsExpiredPersistedEntry(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t, &fakeSource{}, Options{})

	expired := activeRecord("expired")
	past := storeNow.Add(-time.Minute)
	expired.EndTime = &past
	data, err := json.Marshal(expired)
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, persistKey, string(data)))

	store.Bootstrap(ctx)

	assert.Nil(t, store.Current())
	_, ok, _ := mem.Get(ctx, persistKey)
	assert.False(t, ok, "expired entry removed from the store")
}

func TestClearRemovesPersistedEvenWhenDeleteFails(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{candidates: []model.OverrideRecord{activeRecord("stuck")}}
	store, mem := newTestStore(t, source, Options{})

	_, err := store.Refresh(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, store.Current())

	source.mu.Lock()
	source.deleteErr = errors.New("cms unreachable")
	source.mu.Unlock()

	err = store.Clear(ctx)
	require.Error(t, err, "delete failure is reported to the admin caller")
	assert.Nil(t, store.Current(), "in-memory state cleared regardless")
	_, ok, _ := mem.Get(ctx, persistKey)
	assert.False(t, ok, "persisted entry removed regardless")
}

func TestRefreshWritesSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	source := &fakeSource{candidates: []model.OverrideRecord{activeRecord("written")}}
	store, _ := newTestStore(t, source, Options{SnapshotPath: path})

	_, err := store.Refresh(ctx, true)
	require.NoError(t, err)

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, snap.Contents, 1)
	assert.Equal(t, "written", snap.Contents[0].ID)
	assert.True(t, snap.FetchedAt.Equal(storeNow))
}
