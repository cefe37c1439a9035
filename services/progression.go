package services

import (
	_ "embed"
	"fmt"
	"math"
	"sort"

	"yams-sync/models"

	"gopkg.in/yaml.v3"
)

// XPWeights define relative values of game events
type XPWeights struct {
	GameXP  int64 // every completed game
	WinXP   int64 // on top of GameXP
	YamsXP  int64 // per Yams scored
	BonusXP int64 // upper-section bonus reached
}

var DefaultXPWeights = XPWeights{
	GameXP:  10,
	WinXP:   25,
	YamsXP:  15,
	BonusXP: 20,
}

// BaseXPPerLevel is the XP needed to go from level 1 to level 2.
const BaseXPPerLevel = 100

// LevelGrowth is the per-level multiplier of the XP curve.
const LevelGrowth = 1.5

//go:embed unlocks.yaml
var defaultUnlocksYAML []byte

// LoadUnlockTable parses a YAML threshold table.
func LoadUnlockTable(data []byte) (models.UnlockTable, error) {
	var table models.UnlockTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return models.UnlockTable{}, fmt.Errorf("parse unlock table: %w", err)
	}
	for _, list := range [][]models.Unlock{table.Colors, table.Avatars, table.Titles} {
		for _, u := range list {
			if u.ID == "" || u.Level < 1 {
				return models.UnlockTable{}, fmt.Errorf("parse unlock table: invalid entry %+v", u)
			}
		}
	}
	return table, nil
}

// DefaultUnlockTable returns the embedded threshold table.
func DefaultUnlockTable() models.UnlockTable {
	table, err := LoadUnlockTable(defaultUnlocksYAML)
	if err != nil {
		panic(err)
	}
	return table
}

// Progression computes XP awards, level-ups and unlocks. It holds only
// static configuration; every method is a pure function of its inputs.
type Progression struct {
	weights XPWeights
	unlocks models.UnlockTable
}

func NewProgression(weights XPWeights, unlocks models.UnlockTable) *Progression {
	return &Progression{weights: weights, unlocks: unlocks}
}

// XPForNextLevel returns XP required to reach level+1 from level
// e.g., XPForNextLevel(1) = XP to go from L1 → L2 = 100
func (pr *Progression) XPForNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	// L_n = floor(BaseXPPerLevel * 1.5^(n-1))
	v := math.Floor(float64(BaseXPPerLevel) * math.Pow(LevelGrowth, float64(level-1)))
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// AwardXP adds amount to xp and totalXp. Crossing the threshold advances
// exactly one level per call; the overflow carries into the new level but is
// capped one point short of the following threshold. Negative amounts are
// treated as zero; callers that accept user input reject them first.
func (pr *Progression) AwardXP(p models.PlayerProfile, amount int64) (models.PlayerProfile, bool) {
	if amount < 0 {
		amount = 0
	}
	if p.Level < 1 {
		p.Level = 1
	}
	p.XP += amount
	p.TotalXP += amount

	threshold := pr.XPForNextLevel(p.Level)
	if p.XP < threshold {
		return p, false
	}

	p.Level++
	p.XP -= threshold
	if next := pr.XPForNextLevel(p.Level); p.XP >= next {
		p.XP = next - 1
	}
	return p, true
}

// ClampXP caps xp one point short of the profile's next threshold. Used on
// profiles from untrusted sources, which may carry xp the curve never
// allows.
func (pr *Progression) ClampXP(p models.PlayerProfile) models.PlayerProfile {
	if p.Level < 1 {
		p.Level = 1
	}
	if next := pr.XPForNextLevel(p.Level); p.XP >= next {
		p.XP = next - 1
	}
	return p
}

// CheckXP reports ErrInvalidProfile when xp has reached the next threshold.
func (pr *Progression) CheckXP(p models.PlayerProfile) error {
	if next := pr.XPForNextLevel(p.Level); p.XP >= next {
		return fmt.Errorf("%w: xp %d at level %d must be below %d", ErrInvalidProfile, p.XP, p.Level, next)
	}
	return nil
}

// RecordGameResult folds one finished game into the cumulative statistics.
func (pr *Progression) RecordGameResult(p models.PlayerProfile, r models.GameResult) models.PlayerProfile {
	score := max(r.Score, 0)

	p.GamesPlayed++
	p.TotalScore += score
	if score > p.BestScore {
		p.BestScore = score
	}
	p.AverageScore = models.AverageScore(p.TotalScore, p.GamesPlayed)
	p.YamsScored += max(r.YamsCount, 0)
	if r.BonusEarned {
		p.BonusEarned++
	}

	if !r.Won {
		p.CurrentWinStreak = 0
		return p
	}

	p.GamesWon++
	p.CurrentWinStreak++
	if p.CurrentWinStreak > p.BestWinStreak {
		p.BestWinStreak = p.CurrentWinStreak
	}
	switch r.Difficulty {
	case models.DifficultyEasy:
		p.WinsByDifficulty.Easy++
	case models.DifficultyNormal:
		p.WinsByDifficulty.Normal++
	case models.DifficultyHard:
		p.WinsByDifficulty.Hard++
	}
	return p
}

// XPForGame returns the XP earned by a finished game.
func (pr *Progression) XPForGame(r models.GameResult) int64 {
	xp := pr.weights.GameXP
	if r.Won {
		win := pr.weights.WinXP
		if r.Difficulty == models.DifficultyHard {
			win *= 2 // double for beating the hard AI
		}
		xp += win
	}
	xp += max(r.YamsCount, 0) * pr.weights.YamsXP
	if r.BonusEarned {
		xp += pr.weights.BonusXP
	}
	return xp
}

// UnlockSetForLevel lists every option available at level.
func (pr *Progression) UnlockSetForLevel(level int) models.UnlockSet {
	return pr.unlockedBetween(0, level)
}

// NewUnlocks lists options that became available when moving from level
// `from` to level `to`. Empty when to <= from.
func (pr *Progression) NewUnlocks(from, to int) models.UnlockSet {
	if to <= from {
		return models.UnlockSet{}
	}
	return pr.unlockedBetween(from, to)
}

// IsUnlocked reports whether option id of the given kind is available at level.
func (pr *Progression) IsUnlocked(kind models.UnlockKind, id string, level int) bool {
	for _, u := range pr.table(kind) {
		if u.ID == id {
			return u.Level <= level
		}
	}
	return false
}

// DefaultUnlock returns the first option of kind available at level 1.
func (pr *Progression) DefaultUnlock(kind models.UnlockKind) string {
	for _, u := range pr.table(kind) {
		if u.Level <= 1 {
			return u.ID
		}
	}
	return ""
}

func (pr *Progression) table(kind models.UnlockKind) []models.Unlock {
	switch kind {
	case models.UnlockColor:
		return pr.unlocks.Colors
	case models.UnlockAvatar:
		return pr.unlocks.Avatars
	case models.UnlockTitle:
		return pr.unlocks.Titles
	}
	return nil
}

// unlockedBetween returns ids with from < level <= to, ordered by level.
func (pr *Progression) unlockedBetween(from, to int) models.UnlockSet {
	pick := func(list []models.Unlock) []string {
		var sel []models.Unlock
		for _, u := range list {
			if u.Level > from && u.Level <= to {
				sel = append(sel, u)
			}
		}
		sort.SliceStable(sel, func(i, j int) bool { return sel[i].Level < sel[j].Level })
		ids := make([]string, 0, len(sel))
		for _, u := range sel {
			ids = append(ids, u.ID)
		}
		return ids
	}
	return models.UnlockSet{
		Colors:  pick(pr.unlocks.Colors),
		Avatars: pick(pr.unlocks.Avatars),
		Titles:  pick(pr.unlocks.Titles),
	}
}
