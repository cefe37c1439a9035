package services

import (
	"context"
	"testing"
	"time"

	"yams-sync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncAllNotConnectedMakesNoRemoteCalls(t *testing.T) {
	f := newSyncFixture(t)
	f.putLocal(t, testProfile("p1", "Alice"), models.ActionCreate)
	f.remote.connected = false

	res := f.engine.SyncAll(context.Background())

	assert.Equal(t, SyncNotConnected, res.Status)
	assert.Zero(t, res.Synced)
	assert.Zero(t, res.Failed)
	assert.Zero(t, f.remote.callCount())
	assert.Len(t, f.tracker.Drain(), 1)
	assert.False(t, f.tracker.State().SyncInProgress)
}

func TestSyncAllPushesNewProfile(t *testing.T) {
	f := newSyncFixture(t)
	p := testProfile("p1", "Alice")
	f.putLocal(t, p, models.ActionCreate)

	res := f.engine.SyncAll(context.Background())

	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, "Synced 1 change(s)", res.Message)
	remote, ok := f.remote.profile(testOwner, "p1")
	require.True(t, ok)
	assert.Equal(t, "Alice", remote.Name)
	assert.Empty(t, f.tracker.Drain())
	assert.Equal(t, testEpoch, f.tracker.State().LastSyncTime)
}

func TestSyncAllEmptyQueue(t *testing.T) {
	f := newSyncFixture(t)
	res := f.engine.SyncAll(context.Background())
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, "Everything is up to date", res.Message)
}

func TestSyncAllMergesWhenRemoteIsNewer(t *testing.T) {
	f := newSyncFixture(t)
	t1 := testEpoch
	t2 := testEpoch.Add(time.Hour)

	local := testProfile("p1", "Alice")
	local.GamesPlayed, local.GamesWon, local.LastPlayed = 6, 5, t1
	f.putLocal(t, local, models.ActionUpdate)

	remote := testProfile("p1", "Alice (old name)")
	remote.GamesPlayed, remote.GamesWon, remote.LastPlayed = 8, 3, t2
	f.remote.profiles[testOwner+"/p1"] = remote

	res := f.engine.SyncAll(context.Background())
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.Conflicts)
	assert.Contains(t, res.Message, "(1 conflict(s) resolved)")

	pushed, _ := f.remote.profile(testOwner, "p1")
	stored, found, err := f.store.Get("p1")
	require.NoError(t, err)
	require.True(t, found)

	for _, got := range []models.PlayerProfile{pushed, stored} {
		assert.Equal(t, int64(5), got.GamesWon)
		assert.Equal(t, int64(8), got.GamesPlayed)
		assert.True(t, got.LastPlayed.Equal(t2))
		assert.Equal(t, "Alice", got.Name)
	}
	assert.Empty(t, f.tracker.Drain())
}

func TestSyncAllLocalWinsWhenNotOlder(t *testing.T) {
	f := newSyncFixture(t)
	local := testProfile("p1", "Alice")
	local.GamesPlayed, local.LastPlayed = 2, testEpoch
	f.putLocal(t, local, models.ActionUpdate)

	remote := testProfile("p1", "Alice")
	remote.GamesPlayed, remote.LastPlayed = 9, testEpoch
	f.remote.profiles[testOwner+"/p1"] = remote

	res := f.engine.SyncAll(context.Background())
	assert.Zero(t, res.Conflicts)
	pushed, _ := f.remote.profile(testOwner, "p1")
	assert.Equal(t, int64(2), pushed.GamesPlayed)
}

func TestSyncAllDelete(t *testing.T) {
	f := newSyncFixture(t)
	f.remote.profiles[testOwner+"/p1"] = testProfile("p1", "Alice")
	require.NoError(t, f.tracker.Track("p1", models.EntityPlayer, models.ActionDelete))

	res := f.engine.SyncAll(context.Background())
	assert.Equal(t, 1, res.Synced)
	_, ok := f.remote.profile(testOwner, "p1")
	assert.False(t, ok)
	assert.Empty(t, f.tracker.Drain())
}

func TestSyncAllPushesGames(t *testing.T) {
	f := newSyncFixture(t)
	g := models.GameRecord{ID: "g1", PlayerID: "p1", Score: 240, PlayedAt: testEpoch}
	require.NoError(t, f.store.AppendGame(g))
	require.NoError(t, f.tracker.Track("g1", models.EntityGame, models.ActionCreate))

	res := f.engine.SyncAll(context.Background())
	assert.Equal(t, 1, res.Synced)
	assert.Contains(t, f.remote.games, testOwner+"/g1")
}

func TestSyncAllSkipsStaleChanges(t *testing.T) {
	f := newSyncFixture(t)
	// tracked but never stored
	require.NoError(t, f.tracker.Track("ghost", models.EntityPlayer, models.ActionUpdate))
	require.NoError(t, f.tracker.Track("g-ghost", models.EntityGame, models.ActionCreate))

	res := f.engine.SyncAll(context.Background())
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Synced)
	assert.Empty(t, f.tracker.Drain())
	assert.Zero(t, f.remote.puts)
}

func TestSyncAllRetriesTransientFailures(t *testing.T) {
	f := newSyncFixture(t)
	f.putLocal(t, testProfile("p1", "Alice"), models.ActionCreate)
	f.remote.failNext = 2

	res := f.engine.SyncAll(context.Background())
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, 1, res.Synced)
	assert.Empty(t, f.tracker.Drain())
}

func TestSyncAllDefersAfterRetryBudget(t *testing.T) {
	f := newSyncFixture(t)
	f.putLocal(t, testProfile("p1", "Alice"), models.ActionCreate)
	f.putLocal(t, testProfile("p2", "Bob"), models.ActionCreate)
	// p1 exhausts all three attempts, p2 succeeds
	f.remote.failNext = 3

	res := f.engine.SyncAll(context.Background())
	assert.Equal(t, SyncPartial, res.Status)
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "Synced 1 change(s), 1 failed - will retry on next sync", res.Message)

	pending := f.tracker.Drain()
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].EntityID)

	// next cycle picks it up
	res = f.engine.SyncAll(context.Background())
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Empty(t, f.tracker.Drain())
}

func TestSyncAllSingleFlight(t *testing.T) {
	f := newSyncFixture(t)
	f.putLocal(t, testProfile("p1", "Alice"), models.ActionCreate)
	f.remote.block = make(chan struct{})
	f.remote.entered = make(chan struct{}, 1)

	done := make(chan SyncResult)
	go func() { done <- f.engine.SyncAll(context.Background()) }()
	<-f.remote.entered

	second := f.engine.SyncAll(context.Background())
	assert.Equal(t, SyncInProgress, second.Status)
	assert.Equal(t, "Sync already in progress", second.Message)
	assert.Equal(t, SyncInProgress, f.engine.SyncOne(context.Background(), "p1").Status)
	assert.Equal(t, SyncInProgress, f.engine.PullAll(context.Background()).Status)

	close(f.remote.block)
	first := <-done
	assert.Equal(t, SyncCompleted, first.Status)
	assert.Equal(t, 1, first.Synced)
	assert.False(t, f.tracker.State().SyncInProgress)
}

func TestSyncAllCancelledStopsRetrying(t *testing.T) {
	f := newSyncFixture(t)
	f.putLocal(t, testProfile("p1", "Alice"), models.ActionCreate)
	f.remote.block = make(chan struct{})
	f.remote.entered = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan SyncResult)
	go func() { done <- f.engine.SyncAll(ctx) }()
	<-f.remote.entered
	cancel()

	res := <-done
	assert.Equal(t, SyncPartial, res.Status)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, f.tracker.Drain(), 1)
}

func TestSyncOne(t *testing.T) {
	f := newSyncFixture(t)
	f.putLocal(t, testProfile("p1", "Alice"), models.ActionCreate)
	f.putLocal(t, testProfile("p2", "Bob"), models.ActionCreate)

	res := f.engine.SyncOne(context.Background(), "p2")
	assert.Equal(t, 1, res.Synced)

	pending := f.tracker.Drain()
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].EntityID)

	res = f.engine.SyncOne(context.Background(), "unknown")
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Zero(t, res.Synced)
}

func TestPullAll(t *testing.T) {
	f := newSyncFixture(t)

	// unknown locally: inserted
	f.remote.profiles[testOwner+"/p1"] = testProfile("p1", "Alice")

	// remote newer: merged and re-tracked
	local := testProfile("p2", "Bob")
	local.GamesPlayed, local.LastPlayed = 4, testEpoch
	require.NoError(t, f.store.Put(local))
	remote := testProfile("p2", "Bobby")
	remote.GamesPlayed, remote.LastPlayed = 7, testEpoch.Add(time.Hour)
	f.remote.profiles[testOwner+"/p2"] = remote

	// pending delete: left alone
	f.remote.profiles[testOwner+"/p3"] = testProfile("p3", "Carol")
	require.NoError(t, f.tracker.Track("p3", models.EntityPlayer, models.ActionDelete))

	f.remote.games[testOwner+"/g1"] = models.GameRecord{ID: "g1", PlayerID: "p1", Score: 100, PlayedAt: testEpoch}

	res := f.engine.PullAll(context.Background())
	assert.Equal(t, SyncCompleted, res.Status)
	assert.Equal(t, 2, res.Profiles)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Games)

	p1, found, err := f.store.Get("p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Alice", p1.Name)

	p2, _, err := f.store.Get("p2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", p2.Name)
	assert.Equal(t, int64(7), p2.GamesPlayed)

	_, found, err = f.store.Get("p3")
	require.NoError(t, err)
	assert.False(t, found)

	rec, ok := f.tracker.Pending("p2")
	require.True(t, ok)
	assert.Equal(t, models.ActionUpdate, rec.Action)

	_, found, err = f.store.GetGame("g1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPullAllNotConnected(t *testing.T) {
	f := newSyncFixture(t)
	f.remote.connected = false
	res := f.engine.PullAll(context.Background())
	assert.Equal(t, SyncNotConnected, res.Status)
	assert.Zero(t, f.remote.callCount())
}

func TestIsLocalFault(t *testing.T) {
	assert.True(t, IsLocalFault(storeErr("put", "player_p1", errDiskFull)))
	assert.False(t, IsLocalFault(errRemoteDown))
}
