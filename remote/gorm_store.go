package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"yams-sync/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore keeps profile documents and game records in SQL tables. Deletes
// are soft: the row stays behind as a tombstone and is invisible to reads.
type GormStore struct {
	DB *gorm.DB

	mu       sync.Mutex
	migrated bool
}

// OpenPostgres connects to the managed database behind the cloud API and
// migrates it. It fails when the database is unreachable.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStore(db)
}

// DialPostgres prepares a store without touching the database, so a device
// agent starts while offline. The schema is migrated on the first
// successful IsConnected.
func DialPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:               gormlogger.Default.LogMode(gormlogger.Warn),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid database settings: %w", err)
	}
	return &GormStore{DB: db}, nil
}

// NewGormStore migrates the remote tables on db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	s := &GormStore{DB: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated {
		return nil
	}
	if err := s.DB.AutoMigrate(&models.RemoteProfile{}, &models.RemoteGameRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	s.migrated = true
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsConnected pings the database and, on first contact, migrates it.
func (s *GormStore) IsConnected(ctx context.Context) bool {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return false
	}
	if sqlDB.PingContext(ctx) != nil {
		return false
	}
	return s.migrate() == nil
}

// PutProfile upserts the document. Writing a tombstoned profile revives it.
func (s *GormStore) PutProfile(ctx context.Context, ownerID string, p models.PlayerProfile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.ID, err)
	}
	row := models.RemoteProfile{
		OwnerID:    ownerID,
		ProfileID:  p.ID,
		Document:   string(doc),
		LastPlayed: p.LastPlayed.UTC(),
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "last_played", "updated_at", "deleted_at"}),
	}).Create(&row).Error
}

func (s *GormStore) GetProfile(ctx context.Context, ownerID, profileID string) (models.PlayerProfile, bool, error) {
	var row models.RemoteProfile
	err := s.DB.WithContext(ctx).
		Where("owner_id = ? AND profile_id = ?", ownerID, profileID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PlayerProfile{}, false, nil
	}
	if err != nil {
		return models.PlayerProfile{}, false, err
	}
	p, err := decodeProfile(row)
	return p, err == nil, err
}

func (s *GormStore) ListProfiles(ctx context.Context, ownerID string) ([]models.PlayerProfile, error) {
	var rows []models.RemoteProfile
	if err := s.DB.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("profile_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	profiles := make([]models.PlayerProfile, 0, len(rows))
	for _, row := range rows {
		p, err := decodeProfile(row)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// DeleteProfile tombstones the profile. Deleting an unknown id is a no-op.
func (s *GormStore) DeleteProfile(ctx context.Context, ownerID, profileID string) error {
	return s.DB.WithContext(ctx).
		Where("owner_id = ? AND profile_id = ?", ownerID, profileID).
		Delete(&models.RemoteProfile{}).Error
}

// PutGameRecord stores rec once; re-sending the same id is a no-op.
func (s *GormStore) PutGameRecord(ctx context.Context, ownerID string, rec models.GameRecord) error {
	row := models.RemoteGameRecord{OwnerID: ownerID, GameRecord: rec}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "id"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (s *GormStore) ListGameRecords(ctx context.Context, ownerID string, filter models.GameRecordFilter) ([]models.GameRecord, error) {
	q := s.DB.WithContext(ctx).Model(&models.RemoteGameRecord{}).Where("owner_id = ?", ownerID)
	if filter.PlayerID != "" {
		q = q.Where("player_id = ?", filter.PlayerID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("played_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []models.RemoteGameRecord
	if err := q.Order("played_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	games := make([]models.GameRecord, 0, len(rows))
	for _, row := range rows {
		games = append(games, row.GameRecord)
	}
	return games, nil
}

func decodeProfile(row models.RemoteProfile) (models.PlayerProfile, error) {
	var p models.PlayerProfile
	if err := json.Unmarshal([]byte(row.Document), &p); err != nil {
		return p, fmt.Errorf("decode profile %s/%s: %w", row.OwnerID, row.ProfileID, err)
	}
	return p, nil
}
