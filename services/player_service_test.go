package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"yams-sync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playerFixture struct {
	*syncFixture
	players *PlayerService
}

func newPlayerFixture(t *testing.T) *playerFixture {
	t.Helper()
	f := newSyncFixture(t)
	players := NewPlayerService(f.store, f.tracker, newTestProgression(), f.engine, f.clock, f.engine.logger)
	return &playerFixture{syncFixture: f, players: players}
}

func TestCreateProfileDefaults(t *testing.T) {
	f := newPlayerFixture(t)

	p, err := f.players.CreateProfile(ProfileInput{Name: "  Zoé \t Martin "})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Zoé Martin", p.Name)
	assert.Equal(t, "red", p.Color)
	assert.Equal(t, "dice", p.Avatar)
	assert.Equal(t, DefaultTheme, p.Theme)
	assert.True(t, p.Preferences.SoundEnabled)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, testEpoch, p.CreatedAt)

	rec, ok := f.tracker.Pending(p.ID)
	require.True(t, ok)
	assert.Equal(t, models.ActionCreate, rec.Action)

	stored, err := f.players.GetProfile(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, stored.Name)
}

func TestCreateProfileValidation(t *testing.T) {
	f := newPlayerFixture(t)

	_, err := f.players.CreateProfile(ProfileInput{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = f.players.CreateProfile(ProfileInput{Name: strings.Repeat("x", MaxNameLength+1)})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = f.players.CreateProfile(ProfileInput{Name: "Ann", Color: "gold"})
	assert.ErrorIs(t, err, ErrLocked)

	assert.Empty(t, f.tracker.Drain())
}

func TestUpdateProfile(t *testing.T) {
	f := newPlayerFixture(t)
	p, err := f.players.CreateProfile(ProfileInput{Name: "Ann"})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	color, title := "blue", "rookie"
	got, err := f.players.UpdateProfile(p.ID, ProfileUpdate{Color: &color, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "blue", got.Color)
	assert.Equal(t, "rookie", got.Title)
	assert.True(t, p.LastPlayed.Equal(got.LastPlayed), "identity edits must not touch lastPlayed")

	rec, _ := f.tracker.Pending(p.ID)
	assert.Equal(t, models.ActionUpdate, rec.Action)

	empty := ""
	got, err = f.players.UpdateProfile(p.ID, ProfileUpdate{Title: &empty})
	require.NoError(t, err)
	assert.Empty(t, got.Title)

	locked := "purple"
	_, err = f.players.UpdateProfile(p.ID, ProfileUpdate{Color: &locked})
	assert.ErrorIs(t, err, ErrLocked)

	_, err = f.players.UpdateProfile("missing", ProfileUpdate{Color: &color})
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRecordGame(t *testing.T) {
	f := newPlayerFixture(t)
	p, err := f.players.CreateProfile(ProfileInput{Name: "Ann"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	out, err := f.players.RecordGame(p.ID, models.GameResult{Score: 280, Won: true, YamsCount: 1, BonusEarned: true, Difficulty: models.DifficultyHard})
	require.NoError(t, err)

	// 10 game + 50 hard win + 15 yams + 20 bonus
	assert.Equal(t, int64(95), out.XPEarned)
	assert.False(t, out.LeveledUp)
	assert.True(t, out.Unlocked.Empty())
	assert.Equal(t, int64(95), out.Profile.XP)
	assert.Equal(t, int64(1), out.Profile.GamesWon)
	assert.Equal(t, int64(1), out.Profile.WinsByDifficulty.Hard)
	assert.Equal(t, testEpoch.Add(time.Minute), out.Profile.LastPlayed)
	assert.Equal(t, out.Profile.ID, out.Game.PlayerID)
	assert.Equal(t, int64(95), out.Game.XPEarned)

	out, err = f.players.RecordGame(p.ID, models.GameResult{Score: 150})
	require.NoError(t, err)
	assert.True(t, out.LeveledUp)
	assert.Equal(t, 2, out.Profile.Level)
	assert.Equal(t, int64(5), out.Profile.XP)
	assert.Equal(t, []string{"owl"}, out.Unlocked.Avatars)

	games, err := f.players.ListGames(models.GameRecordFilter{PlayerID: p.ID})
	require.NoError(t, err)
	assert.Len(t, games, 2)

	// profile + two games pending
	assert.Len(t, f.tracker.Drain(), 3)
}

func TestRecordGameValidation(t *testing.T) {
	f := newPlayerFixture(t)
	p, err := f.players.CreateProfile(ProfileInput{Name: "Ann"})
	require.NoError(t, err)

	_, err = f.players.RecordGame(p.ID, models.GameResult{Score: -1})
	assert.ErrorIs(t, err, ErrInvalidGame)
	_, err = f.players.RecordGame(p.ID, models.GameResult{Difficulty: "impossible"})
	assert.ErrorIs(t, err, ErrInvalidGame)
	_, err = f.players.RecordGame("missing", models.GameResult{})
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestPlayerServiceAwardXP(t *testing.T) {
	f := newPlayerFixture(t)
	p, err := f.players.CreateProfile(ProfileInput{Name: "Ann"})
	require.NoError(t, err)

	_, err = f.players.AwardXP(p.ID, -5)
	assert.ErrorIs(t, err, ErrInvalidXPAmount)

	out, err := f.players.AwardXP(p.ID, 90)
	require.NoError(t, err)
	assert.False(t, out.LeveledUp)

	out, err = f.players.AwardXP(p.ID, 20)
	require.NoError(t, err)
	assert.True(t, out.LeveledUp)
	assert.Equal(t, 2, out.Profile.Level)
	assert.Equal(t, int64(10), out.Profile.XP)
	assert.Equal(t, int64(110), out.Profile.TotalXP)
}

func TestDeleteProfileSyncsImmediately(t *testing.T) {
	f := newPlayerFixture(t)
	p, err := f.players.CreateProfile(ProfileInput{Name: "Ann"})
	require.NoError(t, err)
	require.Equal(t, SyncCompleted, f.engine.SyncAll(context.Background()).Status)
	_, ok := f.remote.profile(testOwner, p.ID)
	require.True(t, ok)

	require.NoError(t, f.players.DeleteProfile(context.Background(), p.ID))

	_, err = f.players.GetProfile(p.ID)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, ok = f.remote.profile(testOwner, p.ID)
	assert.False(t, ok)
	assert.Empty(t, f.tracker.Drain())

	assert.ErrorIs(t, f.players.DeleteProfile(context.Background(), p.ID), ErrProfileNotFound)
}

func TestDeleteProfileOfflineStaysPending(t *testing.T) {
	f := newPlayerFixture(t)
	p, err := f.players.CreateProfile(ProfileInput{Name: "Ann"})
	require.NoError(t, err)
	f.remote.connected = false

	require.NoError(t, f.players.DeleteProfile(context.Background(), p.ID))
	rec, ok := f.tracker.Pending(p.ID)
	require.True(t, ok)
	assert.Equal(t, models.ActionDelete, rec.Action)
}

func TestListProfilesSortedByName(t *testing.T) {
	f := newPlayerFixture(t)
	for _, name := range []string{"zoe", "Élodie", "adam"} {
		_, err := f.players.CreateProfile(ProfileInput{Name: name})
		require.NoError(t, err)
	}
	profiles, err := f.players.ListProfiles()
	require.NoError(t, err)

	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"adam", "Élodie", "zoe"}, names)
}

func TestAIOpponentsAreNeverStored(t *testing.T) {
	f := newPlayerFixture(t)

	ai, err := f.players.NewAIOpponent(models.DifficultyHard)
	require.NoError(t, err)
	assert.True(t, ai.IsAI)
	assert.Equal(t, 10, ai.Level)
	assert.True(t, strings.HasPrefix(ai.ID, "ai-hard-"))

	assert.ErrorIs(t, f.players.save(ai, models.ActionCreate), ErrAIProfile)
	all, err := f.players.ListProfiles()
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.players.NewAIOpponent("legendary")
	assert.ErrorIs(t, err, ErrInvalidGame)
}

func TestUnlocksForProfile(t *testing.T) {
	f := newPlayerFixture(t)
	p, err := f.players.CreateProfile(ProfileInput{Name: "Ann"})
	require.NoError(t, err)

	set, err := f.players.Unlocks(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"rookie"}, set.Titles)
}

func TestRecordGameDuringMergeIsKept(t *testing.T) {
	f := newPlayerFixture(t)

	local := testProfile("p1", "Alice")
	local.GamesPlayed, local.LastPlayed = 5, testEpoch.Add(-time.Hour)
	f.putLocal(t, local, models.ActionUpdate)

	remote := testProfile("p1", "Alice")
	remote.GamesPlayed, remote.LastPlayed = 3, testEpoch.Add(-30*time.Minute)
	f.remote.profiles[testOwner+"/p1"] = remote

	f.remote.block = make(chan struct{})
	f.remote.entered = make(chan struct{}, 1)
	done := make(chan SyncResult)
	go func() { done <- f.engine.SyncAll(context.Background()) }()
	<-f.remote.entered

	f.clock.Advance(time.Minute)
	out, err := f.players.RecordGame("p1", models.GameResult{Score: 120})
	require.NoError(t, err)
	require.Equal(t, int64(6), out.Profile.GamesPlayed)

	close(f.remote.block)
	res := <-done
	assert.Equal(t, 1, res.Conflicts)

	stored, _, err := f.store.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), stored.GamesPlayed)
	assert.True(t, stored.LastPlayed.Equal(testEpoch.Add(time.Minute)))

	pushed, _ := f.remote.profile(testOwner, "p1")
	assert.Equal(t, int64(6), pushed.GamesPlayed)

	// the edit made during the sync stays queued for the next cycle
	rec, pending := f.tracker.Pending("p1")
	require.True(t, pending)
	assert.True(t, rec.Timestamp.Equal(testEpoch.Add(time.Minute)))
}
