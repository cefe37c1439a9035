package models

import (
	"time"

	"gorm.io/gorm"
)

// KVEntry is one row of the device-local key/value table. Values are JSON.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(128)"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (KVEntry) TableName() string { return "kv_entries" }

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"` // tombstone
}

// RemoteProfile is the cloud copy of a PlayerProfile, scoped to an owner
// (device- or account-derived id). The profile itself is stored opaquely.
type RemoteProfile struct {
	OwnerID    string    `gorm:"primaryKey;type:varchar(64)" json:"owner_id"`
	ProfileID  string    `gorm:"primaryKey;type:varchar(64)" json:"profile_id"`
	Document   string    `gorm:"type:text;not null" json:"document"`
	LastPlayed time.Time `gorm:"index" json:"last_played"`

	Timestamps
}

// RemoteGameRecord is the cloud copy of a GameRecord.
type RemoteGameRecord struct {
	OwnerID string `gorm:"primaryKey;type:varchar(64)" json:"owner_id"`
	GameRecord
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
