package models

import (
	"errors"
	"fmt"
	"time"
)

// Difficulty of the AI opponent a game was played against.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty. The empty value is accepted
// and means "no AI opponent" (local multiplayer).
func (d Difficulty) Valid() bool {
	switch d {
	case "", DifficultyEasy, DifficultyNormal, DifficultyHard:
		return true
	}
	return false
}

// DifficultyWins counts wins per AI opponent difficulty.
type DifficultyWins struct {
	Easy   int64 `json:"easy"`
	Normal int64 `json:"normal"`
	Hard   int64 `json:"hard"`
}

// Preferences are per-player presentation settings. They follow the
// identity fields during merges.
type Preferences struct {
	SoundEnabled   bool   `json:"soundEnabled"`
	HapticsEnabled bool   `json:"hapticsEnabled"`
	Language       string `json:"language,omitempty"`
}

// PlayerProfile is the synchronized unit: identity, progression and
// cumulative statistics of one player on one device.
type PlayerProfile struct {
	// Identity
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Nickname    string      `json:"nickname,omitempty"`
	Avatar      string      `json:"avatar"`
	Color       string      `json:"color"`
	Title       string      `json:"title,omitempty"`
	Theme       string      `json:"theme"`
	Preferences Preferences `json:"preferences"`
	IsAI        bool        `json:"isAI,omitempty"` // AI opponents never leave the device

	// Progression
	Level   int   `json:"level"`
	XP      int64 `json:"xp"`
	TotalXP int64 `json:"totalXp"`

	// Statistics
	GamesPlayed      int64          `json:"gamesPlayed"`
	GamesWon         int64          `json:"gamesWon"`
	TotalScore       int64          `json:"totalScore"`
	BestScore        int64          `json:"bestScore"`
	AverageScore     int64          `json:"averageScore"`
	YamsScored       int64          `json:"yamsScored"`
	BonusEarned      int64          `json:"bonusEarned"`
	WinsByDifficulty DifficultyWins `json:"winsByDifficulty"`
	CurrentWinStreak int64          `json:"currentWinStreak"`
	BestWinStreak    int64          `json:"bestWinStreak"`

	CreatedAt  time.Time `json:"createdAt"`
	LastPlayed time.Time `json:"lastPlayed"`
}

var ErrProfileInvariant = errors.New("profile invariant violated")

// Validate checks the structural invariants every stored profile must hold.
// The xp ceiling depends on the level curve and is checked by the
// progression engine, not here.
func (p PlayerProfile) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: missing id", ErrProfileInvariant)
	case p.Level < 1:
		return fmt.Errorf("%w: level %d < 1", ErrProfileInvariant, p.Level)
	case p.XP < 0 || p.TotalXP < 0:
		return fmt.Errorf("%w: negative xp", ErrProfileInvariant)
	case p.GamesWon > p.GamesPlayed:
		return fmt.Errorf("%w: gamesWon %d > gamesPlayed %d", ErrProfileInvariant, p.GamesWon, p.GamesPlayed)
	case p.BestWinStreak < p.CurrentWinStreak:
		return fmt.Errorf("%w: bestWinStreak %d < currentWinStreak %d", ErrProfileInvariant, p.BestWinStreak, p.CurrentWinStreak)
	}
	return nil
}

// Normalize repairs fields of a profile coming from an untrusted source
// (backup files, older clients) so that Validate passes.
func (p PlayerProfile) Normalize() PlayerProfile {
	if p.Level < 1 {
		p.Level = 1
	}
	if p.XP < 0 {
		p.XP = 0
	}
	if p.TotalXP < p.XP {
		p.TotalXP = p.XP
	}
	if p.GamesPlayed < 0 {
		p.GamesPlayed = 0
	}
	if p.GamesWon < 0 {
		p.GamesWon = 0
	}
	if p.GamesWon > p.GamesPlayed {
		p.GamesPlayed = p.GamesWon
	}
	if p.CurrentWinStreak < 0 {
		p.CurrentWinStreak = 0
	}
	if p.BestWinStreak < p.CurrentWinStreak {
		p.BestWinStreak = p.CurrentWinStreak
	}
	p.AverageScore = AverageScore(p.TotalScore, p.GamesPlayed)
	return p
}

// AverageScore is totalScore/gamesPlayed rounded half away from zero.
func AverageScore(totalScore, gamesPlayed int64) int64 {
	if gamesPlayed <= 0 {
		return 0
	}
	if totalScore >= 0 {
		return (totalScore*2 + gamesPlayed) / (gamesPlayed * 2)
	}
	return -((-totalScore*2 + gamesPlayed) / (gamesPlayed * 2))
}
