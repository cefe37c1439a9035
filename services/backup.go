package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"yams-sync/models"
	"yams-sync/utils"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// BackupVersion is the export format version. Imports accept any 1.x file.
const BackupVersion = "1.0"

// Backup is the JSON export format. Field names are stable.
type Backup struct {
	Version    string                 `json:"version"`
	ExportedAt time.Time              `json:"exportedAt"`
	UserID     string                 `json:"userId"`
	Players    []models.PlayerProfile `json:"players"`
	Games      []models.GameRecord    `json:"games"`
}

// ImportResult counts what an import did. Malformed entries are skipped,
// never fatal.
type ImportResult struct {
	Imported     int    `json:"imported"`
	Skipped      int    `json:"skipped"`
	Games        int    `json:"games"`
	SkippedGames int    `json:"skippedGames"`
	Message      string `json:"message"`
}

type BackupService struct {
	store       PlayerStore
	tracker     *ChangeTracker
	progression *Progression
	userID      string
	clock       clockwork.Clock
	logger      zerolog.Logger
}

func NewBackupService(
	store PlayerStore,
	tracker *ChangeTracker,
	progression *Progression,
	userID string,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:       store,
		tracker:     tracker,
		progression: progression,
		userID:      userID,
		clock:       clock,
		logger:      logger.With().Str("component", "backup").Logger(),
	}
}

// Export snapshots all local profiles and game history.
func (s *BackupService) Export() (Backup, error) {
	profiles, err := s.store.ListAll()
	if err != nil {
		return Backup{}, err
	}
	players := make([]models.PlayerProfile, 0, len(profiles))
	for _, p := range profiles {
		if !p.IsAI {
			players = append(players, p)
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	games, err := s.store.ListGames(models.GameRecordFilter{})
	if err != nil {
		return Backup{}, err
	}
	if games == nil {
		games = []models.GameRecord{}
	}

	return Backup{
		Version:    BackupVersion,
		ExportedAt: s.clock.Now().UTC(),
		UserID:     s.userID,
		Players:    players,
		Games:      games,
	}, nil
}

// ExportJSON renders Export as indented JSON.
func (s *BackupService) ExportJSON() ([]byte, error) {
	b, err := s.Export()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	return append(data, '\n'), nil
}

// FileName is the suggested name for an export taken now.
func (s *BackupService) FileName() string {
	return utils.BackupFileName(s.userID, s.clock.Now())
}

// Import restores profiles and games from an export. Players without an id
// or name and games without an id or player are skipped and counted. A
// profile that already exists locally is merged with the imported copy.
// Storage faults abort the import.
func (s *BackupService) Import(data []byte) (ImportResult, error) {
	var raw struct {
		Version string            `json:"version"`
		Players []json.RawMessage `json:"players"`
		Games   []json.RawMessage `json:"games"` // optional
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if raw.Version != "" && !strings.HasPrefix(raw.Version, "1.") && raw.Version != "1" {
		return ImportResult{}, fmt.Errorf("%w: unsupported version %q", ErrInvalidBackup, raw.Version)
	}

	var res ImportResult
	for _, msg := range raw.Players {
		p, ok := decodeBackupPlayer(msg)
		if !ok {
			res.Skipped++
			continue
		}
		if err := s.restore(s.progression.ClampXP(p)); err != nil {
			return res, err
		}
		res.Imported++
	}

	for _, msg := range raw.Games {
		var g models.GameRecord
		if err := json.Unmarshal(msg, &g); err != nil || g.ID == "" || g.PlayerID == "" {
			res.SkippedGames++
			continue
		}
		if err := s.store.AppendGame(g); err != nil {
			return res, err
		}
		if err := s.tracker.Track(g.ID, models.EntityGame, models.ActionCreate); err != nil {
			return res, err
		}
		res.Games++
	}

	res.Message = fmt.Sprintf("Imported %d player(s) and %d game(s)", res.Imported, res.Games)
	if res.Skipped > 0 {
		res.Message += fmt.Sprintf(", skipped %d invalid player(s)", res.Skipped)
	}
	s.logger.Info().Int("imported", res.Imported).Int("skipped", res.Skipped).
		Int("games", res.Games).Msg("backup imported")
	return res, nil
}

// restore merges p into any existing local copy and tracks it for upload.
func (s *BackupService) restore(p models.PlayerProfile) error {
	unlock := s.tracker.LockEntity(p.ID)
	defer unlock()

	existing, found, err := s.store.Get(p.ID)
	if err != nil {
		return err
	}
	if found {
		p = MergeProfiles(p, existing)
	}
	if err := s.store.Put(p); err != nil {
		return err
	}
	return s.tracker.Track(p.ID, models.EntityPlayer, models.ActionUpdate)
}

func decodeBackupPlayer(msg json.RawMessage) (models.PlayerProfile, bool) {
	var head struct {
		ID   *string `json:"id"`
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return models.PlayerProfile{}, false
	}
	if head.ID == nil || strings.TrimSpace(*head.ID) == "" || head.Name == nil {
		return models.PlayerProfile{}, false
	}
	name := utils.NormalizeDisplayName(*head.Name)
	if name == "" {
		return models.PlayerProfile{}, false
	}

	var p models.PlayerProfile
	if err := json.Unmarshal(msg, &p); err != nil || p.IsAI {
		return models.PlayerProfile{}, false
	}
	p.Name = name
	return p.Normalize(), true
}
