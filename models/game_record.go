package models

import "time"

// GameRecord is one completed game in a player's history (append-only).
type GameRecord struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	PlayerID    string     `gorm:"index;not null;type:varchar(64)" json:"playerId"`
	Difficulty  Difficulty `gorm:"type:varchar(16)" json:"difficulty,omitempty"` // empty = no AI opponent
	Score       int64      `json:"score"`
	Won         bool       `json:"won"`
	BonusEarned bool       `json:"bonusEarned"`
	YamsCount   int64      `json:"yamsCount"`

	// XP awarded for this game (pre-calculated to avoid recomputation)
	XPEarned int64 `json:"xpEarned"`

	PlayedAt time.Time `gorm:"index;not null" json:"playedAt"`
}

// GameResult is the outcome of a finished game as reported by the game screen.
type GameResult struct {
	Score       int64      `json:"score"`
	Won         bool       `json:"won"`
	BonusEarned bool       `json:"bonusEarned"`
	YamsCount   int64      `json:"yamsCount"`
	Difficulty  Difficulty `json:"difficulty,omitempty"`
}

// GameRecordFilter narrows history listings. Zero values mean "no filter".
type GameRecordFilter struct {
	PlayerID string
	Since    time.Time
	Limit    int
}
