package services

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"yams-sync/models"
	"yams-sync/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	MaxNameLength = 24
	DefaultTheme  = "classic"
)

// PlayerStore is the local storage PlayerService writes through.
type PlayerStore interface {
	ProfileRepository
	GameHistory
	Delete(id string) error
}

// ImmediateSyncer pushes one pending change right away.
type ImmediateSyncer interface {
	SyncOne(ctx context.Context, entityID string) SyncResult
}

// ProfileInput describes a new profile. Empty customization fields get the
// level-1 defaults.
type ProfileInput struct {
	Name        string              `json:"name"`
	Nickname    string              `json:"nickname"`
	Avatar      string              `json:"avatar"`
	Color       string              `json:"color"`
	Title       string              `json:"title"`
	Theme       string              `json:"theme"`
	Preferences *models.Preferences `json:"preferences"`
}

// ProfileUpdate carries identity edits; nil fields are left unchanged.
type ProfileUpdate struct {
	Name        *string             `json:"name"`
	Nickname    *string             `json:"nickname"`
	Avatar      *string             `json:"avatar"`
	Color       *string             `json:"color"`
	Title       *string             `json:"title"`
	Theme       *string             `json:"theme"`
	Preferences *models.Preferences `json:"preferences"`
}

// GameOutcome is returned after a game is recorded.
type GameOutcome struct {
	Profile   models.PlayerProfile `json:"profile"`
	Game      models.GameRecord    `json:"game"`
	XPEarned  int64                `json:"xpEarned"`
	LeveledUp bool                 `json:"leveledUp"`
	Unlocked  models.UnlockSet     `json:"unlocked"`
}

// XPOutcome is returned after a direct XP award.
type XPOutcome struct {
	Profile   models.PlayerProfile `json:"profile"`
	LeveledUp bool                 `json:"leveledUp"`
	Unlocked  models.UnlockSet     `json:"unlocked"`
}

// PlayerService is the entry point for UI-facing profile operations: it
// applies progression, writes through the local store and records the
// change for the next sync.
type PlayerService struct {
	store       PlayerStore
	tracker     *ChangeTracker
	progression *Progression
	syncer      ImmediateSyncer
	clock       clockwork.Clock
	logger      zerolog.Logger
}

// NewPlayerService wires the service. syncer may be nil, in which case
// deletes wait for the next scheduled sync.
func NewPlayerService(
	store PlayerStore,
	tracker *ChangeTracker,
	progression *Progression,
	syncer ImmediateSyncer,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *PlayerService {
	return &PlayerService{
		store:       store,
		tracker:     tracker,
		progression: progression,
		syncer:      syncer,
		clock:       clock,
		logger:      logger.With().Str("component", "players").Logger(),
	}
}

func (s *PlayerService) Progression() *Progression { return s.progression }

// CreateProfile stores a new profile and tracks it for upload.
func (s *PlayerService) CreateProfile(in ProfileInput) (models.PlayerProfile, error) {
	now := s.clock.Now().UTC()
	p := models.PlayerProfile{
		ID:          uuid.NewString(),
		Avatar:      s.progression.DefaultUnlock(models.UnlockAvatar),
		Color:       s.progression.DefaultUnlock(models.UnlockColor),
		Theme:       DefaultTheme,
		Preferences: models.Preferences{SoundEnabled: true, HapticsEnabled: true},
		Level:       1,
		CreatedAt:   now,
		LastPlayed:  now,
	}
	upd := ProfileUpdate{Name: &in.Name, Nickname: &in.Nickname, Preferences: in.Preferences}
	if in.Avatar != "" {
		upd.Avatar = &in.Avatar
	}
	if in.Color != "" {
		upd.Color = &in.Color
	}
	if in.Title != "" {
		upd.Title = &in.Title
	}
	if in.Theme != "" {
		upd.Theme = &in.Theme
	}
	p, err := s.applyUpdate(p, upd)
	if err != nil {
		return models.PlayerProfile{}, err
	}

	if err := s.save(p, models.ActionCreate); err != nil {
		return models.PlayerProfile{}, err
	}
	s.logger.Info().Str("profile_id", p.ID).Str("name", p.Name).Msg("profile created")
	return p, nil
}

func (s *PlayerService) GetProfile(id string) (models.PlayerProfile, error) {
	p, found, err := s.store.Get(id)
	if err != nil {
		return models.PlayerProfile{}, err
	}
	if !found {
		return models.PlayerProfile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return p, nil
}

// ListProfiles returns all local profiles ordered by name.
func (s *PlayerService) ListProfiles() ([]models.PlayerProfile, error) {
	profiles, err := s.store.ListAll()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		ki, kj := utils.SortKey(profiles[i].Name), utils.SortKey(profiles[j].Name)
		if ki != kj {
			return ki < kj
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}

// UpdateProfile edits identity fields. lastPlayed is left alone so that an
// edit never makes stale statistics look fresher than the cloud copy.
func (s *PlayerService) UpdateProfile(id string, upd ProfileUpdate) (models.PlayerProfile, error) {
	unlock := s.tracker.LockEntity(id)
	defer unlock()

	p, err := s.GetProfile(id)
	if err != nil {
		return models.PlayerProfile{}, err
	}
	p, err = s.applyUpdate(p, upd)
	if err != nil {
		return models.PlayerProfile{}, err
	}
	if err := s.save(p, models.ActionUpdate); err != nil {
		return models.PlayerProfile{}, err
	}
	return p, nil
}

// RecordGame folds a finished game into the profile, awards XP, appends the
// game to history and tracks both for upload.
func (s *PlayerService) RecordGame(id string, r models.GameResult) (GameOutcome, error) {
	if r.Score < 0 || r.YamsCount < 0 || !r.Difficulty.Valid() {
		return GameOutcome{}, fmt.Errorf("%w: %+v", ErrInvalidGame, r)
	}
	unlock := s.tracker.LockEntity(id)
	defer unlock()

	before, err := s.GetProfile(id)
	if err != nil {
		return GameOutcome{}, err
	}

	now := s.clock.Now().UTC()
	xp := s.progression.XPForGame(r)
	p := s.progression.RecordGameResult(before, r)
	p, leveledUp := s.progression.AwardXP(p, xp)
	p.LastPlayed = now

	game := models.GameRecord{
		ID:          uuid.NewString(),
		PlayerID:    p.ID,
		Difficulty:  r.Difficulty,
		Score:       r.Score,
		Won:         r.Won,
		BonusEarned: r.BonusEarned,
		YamsCount:   r.YamsCount,
		XPEarned:    xp,
		PlayedAt:    now,
	}
	if err := s.store.AppendGame(game); err != nil {
		return GameOutcome{}, err
	}
	if err := s.tracker.Track(game.ID, models.EntityGame, models.ActionCreate); err != nil {
		return GameOutcome{}, err
	}
	if err := s.save(p, models.ActionUpdate); err != nil {
		return GameOutcome{}, err
	}

	out := GameOutcome{
		Profile:   p,
		Game:      game,
		XPEarned:  xp,
		LeveledUp: leveledUp,
		Unlocked:  s.progression.NewUnlocks(before.Level, p.Level),
	}
	if leveledUp {
		s.logger.Info().Str("profile_id", p.ID).Int("level", p.Level).Msg("level up")
	}
	return out, nil
}

// AwardXP grants amount XP outside of a game (achievements, daily rewards).
func (s *PlayerService) AwardXP(id string, amount int64) (XPOutcome, error) {
	if amount < 0 {
		return XPOutcome{}, fmt.Errorf("%w: %d", ErrInvalidXPAmount, amount)
	}
	unlock := s.tracker.LockEntity(id)
	defer unlock()

	before, err := s.GetProfile(id)
	if err != nil {
		return XPOutcome{}, err
	}
	p, leveledUp := s.progression.AwardXP(before, amount)
	if err := s.save(p, models.ActionUpdate); err != nil {
		return XPOutcome{}, err
	}
	return XPOutcome{
		Profile:   p,
		LeveledUp: leveledUp,
		Unlocked:  s.progression.NewUnlocks(before.Level, p.Level),
	}, nil
}

// DeleteProfile removes the profile locally, tombstones it for the cloud and
// tries to push the delete right away.
func (s *PlayerService) DeleteProfile(ctx context.Context, id string) error {
	if err := s.deleteLocal(id); err != nil {
		return err
	}
	s.logger.Info().Str("profile_id", id).Msg("profile deleted")

	if s.syncer != nil {
		res := s.syncer.SyncOne(ctx, id)
		s.logger.Debug().Str("profile_id", id).Str("status", string(res.Status)).Msg("immediate delete sync")
	}
	return nil
}

func (s *PlayerService) deleteLocal(id string) error {
	unlock := s.tracker.LockEntity(id)
	defer unlock()

	if _, err := s.GetProfile(id); err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	return s.tracker.Track(id, models.EntityPlayer, models.ActionDelete)
}

// NewAIOpponent builds an in-memory opponent profile. It is never stored or
// synchronized.
func (s *PlayerService) NewAIOpponent(difficulty models.Difficulty) (models.PlayerProfile, error) {
	level := map[models.Difficulty]int{
		models.DifficultyEasy:   1,
		models.DifficultyNormal: 5,
		models.DifficultyHard:   10,
	}[difficulty]
	if level == 0 {
		return models.PlayerProfile{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidGame, difficulty)
	}
	now := s.clock.Now().UTC()
	return models.PlayerProfile{
		ID:         "ai-" + string(difficulty) + "-" + uuid.NewString(),
		Name:       "Bot (" + string(difficulty) + ")",
		Avatar:     "robot",
		Color:      s.progression.DefaultUnlock(models.UnlockColor),
		Theme:      DefaultTheme,
		IsAI:       true,
		Level:      level,
		CreatedAt:  now,
		LastPlayed: now,
	}, nil
}

// Unlocks lists every option available to the player at their level.
func (s *PlayerService) Unlocks(id string) (models.UnlockSet, error) {
	p, err := s.GetProfile(id)
	if err != nil {
		return models.UnlockSet{}, err
	}
	return s.progression.UnlockSetForLevel(p.Level), nil
}

func (s *PlayerService) ListGames(filter models.GameRecordFilter) ([]models.GameRecord, error) {
	return s.store.ListGames(filter)
}

func (s *PlayerService) save(p models.PlayerProfile, action models.ChangeAction) error {
	if p.IsAI {
		return ErrAIProfile
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if err := s.store.Put(p); err != nil {
		return err
	}
	return s.tracker.Track(p.ID, models.EntityPlayer, action)
}

func (s *PlayerService) applyUpdate(p models.PlayerProfile, upd ProfileUpdate) (models.PlayerProfile, error) {
	if upd.Name != nil {
		name := utils.NormalizeDisplayName(*upd.Name)
		if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
			return p, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidProfile, MaxNameLength)
		}
		p.Name = name
	}
	if upd.Nickname != nil {
		nick := utils.NormalizeDisplayName(*upd.Nickname)
		if utf8.RuneCountInString(nick) > MaxNameLength {
			return p, fmt.Errorf("%w: nickname must be at most %d characters", ErrInvalidProfile, MaxNameLength)
		}
		p.Nickname = nick
	}
	gated := []struct {
		kind  models.UnlockKind
		value *string
		field *string
	}{
		{models.UnlockAvatar, upd.Avatar, &p.Avatar},
		{models.UnlockColor, upd.Color, &p.Color},
		{models.UnlockTitle, upd.Title, &p.Title},
	}
	for _, g := range gated {
		if g.value == nil {
			continue
		}
		if *g.value == "" && g.kind == models.UnlockTitle {
			*g.field = ""
			continue
		}
		if !s.progression.IsUnlocked(g.kind, *g.value, p.Level) {
			return p, fmt.Errorf("%w: %s %q at level %d", ErrLocked, g.kind, *g.value, p.Level)
		}
		*g.field = *g.value
	}
	if upd.Theme != nil && *upd.Theme != "" {
		p.Theme = *upd.Theme
	}
	if upd.Preferences != nil {
		p.Preferences = *upd.Preferences
	}
	if p.Name == "" {
		return p, fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	return p, nil
}
