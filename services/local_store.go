package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"yams-sync/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	playerKeyPrefix = "player_"
	playersListKey  = "players_list"
	syncStateKey    = "sync_state"
	deviceIDKey     = "device_id"
)

func playerKey(id string) string { return playerKeyPrefix + id }

// LocalStore is the device-local persistence for profiles, the profile index,
// the sync state blob and game history. Calls are synchronous.
type LocalStore struct {
	DB *gorm.DB
}

// OpenLocalStore opens (or creates) the sqlite database at path.
func OpenLocalStore(path string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storeErr("open", path, err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, storeErr("open", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, storeErr("open", path, err)
	}
	// one writer at a time; sqlite rejects concurrent writers anyway
	sqlDB.SetMaxOpenConns(1)
	return NewLocalStore(db)
}

// NewLocalStore migrates the local tables on db.
func NewLocalStore(db *gorm.DB) (*LocalStore, error) {
	if err := db.AutoMigrate(&models.KVEntry{}, &models.GameRecord{}); err != nil {
		return nil, storeErr("migrate", "", err)
	}
	return &LocalStore{DB: db}, nil
}

func (s *LocalStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return storeErr("close", "", err)
	}
	return sqlDB.Close()
}

// Put upserts a profile and records its id in the index.
func (s *LocalStore) Put(p models.PlayerProfile) error {
	if p.ID == "" {
		return storeErr("put", "", fmt.Errorf("%w: missing id", ErrInvalidProfile))
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return storeErr("put", playerKey(p.ID), err)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		ids, err := readIndex(tx)
		if err != nil {
			return err
		}
		if !slices.Contains(ids, p.ID) {
			if err := writeIndex(tx, append(ids, p.ID)); err != nil {
				return err
			}
		}
		return putKV(tx, playerKey(p.ID), string(doc))
	})
	if err != nil {
		return storeErr("put", playerKey(p.ID), err)
	}
	return nil
}

// Get returns the profile stored under id.
func (s *LocalStore) Get(id string) (models.PlayerProfile, bool, error) {
	var p models.PlayerProfile
	found, err := getKV(s.DB, playerKey(id), &p)
	if err != nil {
		return models.PlayerProfile{}, false, storeErr("get", playerKey(id), err)
	}
	return p, found, nil
}

// ListAll returns every stored profile. Order is unspecified.
func (s *LocalStore) ListAll() ([]models.PlayerProfile, error) {
	ids, err := readIndex(s.DB)
	if err != nil {
		return nil, storeErr("list", playersListKey, err)
	}
	profiles := make([]models.PlayerProfile, 0, len(ids))
	for _, id := range ids {
		p, found, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if found {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// Delete removes the profile and its index entry. Deleting an unknown id is
// not an error.
func (s *LocalStore) Delete(id string) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		ids, err := readIndex(tx)
		if err != nil {
			return err
		}
		if i := slices.Index(ids, id); i >= 0 {
			if err := writeIndex(tx, slices.Delete(ids, i, i+1)); err != nil {
				return err
			}
		}
		return tx.Where(map[string]any{"key": playerKey(id)}).Delete(&models.KVEntry{}).Error
	})
	if err != nil {
		return storeErr("delete", playerKey(id), err)
	}
	return nil
}

// AppendGame stores a game record. Re-appending a known id is a no-op.
func (s *LocalStore) AppendGame(rec models.GameRecord) error {
	if rec.ID == "" {
		return storeErr("append game", "", errors.New("missing id"))
	}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rec).Error
	if err != nil {
		return storeErr("append game", rec.ID, err)
	}
	return nil
}

func (s *LocalStore) GetGame(id string) (models.GameRecord, bool, error) {
	var rec models.GameRecord
	if err := s.DB.Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rec, false, nil
		}
		return rec, false, storeErr("get game", id, err)
	}
	return rec, true, nil
}

// ListGames returns history newest first.
func (s *LocalStore) ListGames(filter models.GameRecordFilter) ([]models.GameRecord, error) {
	q := s.DB.Model(&models.GameRecord{})
	if filter.PlayerID != "" {
		q = q.Where("player_id = ?", filter.PlayerID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("played_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var games []models.GameRecord
	if err := q.Order("played_at DESC").Order("id").Find(&games).Error; err != nil {
		return nil, storeErr("list games", filter.PlayerID, err)
	}
	return games, nil
}

// LoadSyncState reads the persisted sync state. The in-progress flag is
// always reset: a crash mid-sync must not block later cycles.
func (s *LocalStore) LoadSyncState() (models.SyncState, error) {
	var st models.SyncState
	if _, err := getKV(s.DB, syncStateKey, &st); err != nil {
		return models.SyncState{}, storeErr("load", syncStateKey, err)
	}
	st.SyncInProgress = false
	return st, nil
}

// SaveSyncState writes the whole sync state blob.
func (s *LocalStore) SaveSyncState(st models.SyncState) error {
	st.SyncInProgress = false
	doc, err := json.Marshal(st)
	if err != nil {
		return storeErr("save", syncStateKey, err)
	}
	if err := putKV(s.DB, syncStateKey, string(doc)); err != nil {
		return storeErr("save", syncStateKey, err)
	}
	return nil
}

// DeviceID returns the persisted device identifier, creating it on first use.
func (s *LocalStore) DeviceID() (string, error) {
	var id string
	found, err := getKV(s.DB, deviceIDKey, &id)
	if err != nil {
		return "", storeErr("get", deviceIDKey, err)
	}
	if found && id != "" {
		return id, nil
	}

	doc, _ := json.Marshal(uuid.NewString())
	err = s.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.KVEntry{Key: deviceIDKey, Value: string(doc)}).Error
	if err != nil {
		return "", storeErr("put", deviceIDKey, err)
	}
	// re-read: another caller may have won the insert
	if _, err := getKV(s.DB, deviceIDKey, &id); err != nil {
		return "", storeErr("get", deviceIDKey, err)
	}
	return id, nil
}

func readIndex(db *gorm.DB) ([]string, error) {
	var ids []string
	if _, err := getKV(db, playersListKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func writeIndex(db *gorm.DB, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	doc, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return putKV(db, playersListKey, string(doc))
}

func getKV(db *gorm.DB, key string, out any) (bool, error) {
	var entry models.KVEntry
	if err := db.Where(map[string]any{"key": key}).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(entry.Value), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func putKV(db *gorm.DB, key, value string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.KVEntry{Key: key, Value: value}).Error
}
