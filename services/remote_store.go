package services

import (
	"context"

	"yams-sync/models"
)

// RemoteStore is the cloud document store, scoped by an opaque owner id.
// GetProfile reports a missing (or tombstoned) document with found=false.
type RemoteStore interface {
	IsConnected(ctx context.Context) bool
	PutProfile(ctx context.Context, ownerID string, p models.PlayerProfile) error
	GetProfile(ctx context.Context, ownerID, profileID string) (models.PlayerProfile, bool, error)
	ListProfiles(ctx context.Context, ownerID string) ([]models.PlayerProfile, error)
	DeleteProfile(ctx context.Context, ownerID, profileID string) error
	PutGameRecord(ctx context.Context, ownerID string, rec models.GameRecord) error
	ListGameRecords(ctx context.Context, ownerID string, filter models.GameRecordFilter) ([]models.GameRecord, error)
}

// ProfileRepository is the local profile storage the sync engine reads from
// and converges into. *LocalStore implements it.
type ProfileRepository interface {
	Get(id string) (models.PlayerProfile, bool, error)
	Put(p models.PlayerProfile) error
	ListAll() ([]models.PlayerProfile, error)
}

// GameHistory is the local append-only game log. *LocalStore implements it.
type GameHistory interface {
	GetGame(id string) (models.GameRecord, bool, error)
	AppendGame(rec models.GameRecord) error
	ListGames(filter models.GameRecordFilter) ([]models.GameRecord, error)
}
