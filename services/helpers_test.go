package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"yams-sync/models"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

var errDiskFull = errors.New("disk full")

// memStateStore is an in-memory SyncStateStore with failure injection.
type memStateStore struct {
	mu    sync.Mutex
	state models.SyncState
	saves int
	fail  bool
}

func (m *memStateStore) LoadSyncState() (models.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memStateStore) SaveSyncState(st models.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return storeErr("save", syncStateKey, errDiskFull)
	}
	m.saves++
	m.state = st
	return nil
}

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := OpenLocalStore(filepath.Join(t.TempDir(), "yams.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestTracker(t *testing.T, store SyncStateStore, clock clockwork.Clock) *ChangeTracker {
	t.Helper()
	tracker, err := NewChangeTracker(store, clock, zerolog.Nop())
	require.NoError(t, err)
	return tracker
}

func testProfile(id, name string) models.PlayerProfile {
	return models.PlayerProfile{
		ID:          id,
		Name:        name,
		Avatar:      "dice",
		Color:       "red",
		Theme:       DefaultTheme,
		Preferences: models.Preferences{SoundEnabled: true, HapticsEnabled: true},
		Level:       1,
		CreatedAt:   testEpoch,
	}
}

var errRemoteDown = errors.New("remote unavailable")

// fakeRemote is an in-memory RemoteStore that counts calls and can be told
// to fail or block.
type fakeRemote struct {
	mu        sync.Mutex
	connected bool
	profiles  map[string]models.PlayerProfile
	games     map[string]models.GameRecord
	calls     int
	puts      int
	deletes   int

	// failNext fails that many remote calls before succeeding again
	failNext int
	// block, when set, makes GetProfile wait until it is closed; entered is
	// signalled on the first blocked call
	block   chan struct{}
	entered chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		connected: true,
		profiles:  map[string]models.PlayerProfile{},
		games:     map[string]models.GameRecord{},
	}
}

func (f *fakeRemote) begin() error {
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return errRemoteDown
	}
	return nil
}

func (f *fakeRemote) IsConnected(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRemote) PutProfile(_ context.Context, ownerID string, p models.PlayerProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return err
	}
	f.puts++
	f.profiles[ownerID+"/"+p.ID] = p
	return nil
}

func (f *fakeRemote) GetProfile(ctx context.Context, ownerID, profileID string) (models.PlayerProfile, bool, error) {
	f.mu.Lock()
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if block != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-block:
		case <-ctx.Done():
			return models.PlayerProfile{}, false, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return models.PlayerProfile{}, false, err
	}
	p, ok := f.profiles[ownerID+"/"+profileID]
	return p, ok, nil
}

func (f *fakeRemote) ListProfiles(_ context.Context, ownerID string) ([]models.PlayerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return nil, err
	}
	var out []models.PlayerProfile
	for key, p := range f.profiles {
		if strings.HasPrefix(key, ownerID+"/") {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRemote) DeleteProfile(_ context.Context, ownerID, profileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return err
	}
	f.deletes++
	delete(f.profiles, ownerID+"/"+profileID)
	return nil
}

func (f *fakeRemote) PutGameRecord(_ context.Context, ownerID string, rec models.GameRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return err
	}
	f.games[ownerID+"/"+rec.ID] = rec
	return nil
}

func (f *fakeRemote) ListGameRecords(_ context.Context, ownerID string, _ models.GameRecordFilter) ([]models.GameRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return nil, err
	}
	var out []models.GameRecord
	for key, g := range f.games {
		if strings.HasPrefix(key, ownerID+"/") {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeRemote) profile(ownerID, id string) (models.PlayerProfile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[ownerID+"/"+id]
	return p, ok
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const testOwner = "owner-1"

var fastRetry = RetryPolicy{BaseDelay: time.Millisecond, MaxAttempts: 3}

// syncFixture wires a real LocalStore and tracker to a fake remote.
type syncFixture struct {
	clock   *clockwork.FakeClock
	store   *LocalStore
	tracker *ChangeTracker
	remote  *fakeRemote
	engine  *SyncEngine
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		clock:  clockwork.NewFakeClockAt(testEpoch),
		store:  newTestStore(t),
		remote: newFakeRemote(),
	}
	f.tracker = newTestTracker(t, f.store, f.clock)
	f.engine = NewSyncEngine(testOwner, f.store, f.store, f.tracker, f.remote, fastRetry, f.clock, zerolog.Nop())
	return f
}

// putLocal stores p and tracks it like PlayerService does.
func (f *syncFixture) putLocal(t *testing.T, p models.PlayerProfile, action models.ChangeAction) {
	t.Helper()
	require.NoError(t, f.store.Put(p))
	require.NoError(t, f.tracker.Track(p.ID, models.EntityPlayer, action))
}
