package services

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"yams-sync/models"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultPendingMaxAge bounds how long an undelivered change is retried.
const DefaultPendingMaxAge = 24 * time.Hour

// SyncStateStore persists the sync state blob.
type SyncStateStore interface {
	LoadSyncState() (models.SyncState, error)
	SaveSyncState(models.SyncState) error
}

// ChangeTracker keeps the pending-change set, coalesced to one record per
// entity, plus the single-flight flag and last sync time. Every mutation is
// persisted before returning; if persisting fails the in-memory state is
// rolled back so memory and disk never diverge.
type ChangeTracker struct {
	mu       sync.Mutex
	entities entityLocks
	state    models.SyncState
	store    SyncStateStore
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// NewChangeTracker loads the persisted state. A stale in-progress flag left
// by a crash is cleared.
func NewChangeTracker(store SyncStateStore, clock clockwork.Clock, logger zerolog.Logger) (*ChangeTracker, error) {
	st, err := store.LoadSyncState()
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	st.SyncInProgress = false
	return &ChangeTracker{
		state:  st,
		store:  store,
		clock:  clock,
		logger: logger.With().Str("component", "tracker").Logger(),
	}, nil
}

// LockEntity holds entityID's local record for a read-modify-write cycle.
// PlayerService edits and sync merges take it so neither overwrites the
// other's write.
func (t *ChangeTracker) LockEntity(entityID string) (unlock func()) {
	return t.entities.lock(entityID)
}

// Track records a mutation of entityID, replacing any pending record for it
// in place (keeping its position in the drain order).
func (t *ChangeTracker) Track(entityID string, kind models.EntityType, action models.ChangeAction) error {
	if entityID == "" || !action.Valid() {
		return fmt.Errorf("track %q %q: invalid change", entityID, action)
	}
	rec := models.ChangeRecord{
		EntityID:   entityID,
		EntityType: kind,
		Action:     action,
		Timestamp:  t.clock.Now().UTC(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mutate(func(st *models.SyncState) {
		if i := indexOf(st.PendingChanges, entityID); i >= 0 {
			st.PendingChanges[i] = rec
			return
		}
		st.PendingChanges = append(st.PendingChanges, rec)
	})
}

// Drain returns a copy of the pending set without clearing it.
func (t *ChangeTracker) Drain() []models.ChangeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.state.PendingChanges)
}

// Pending returns the pending record for entityID, if any.
func (t *ChangeTracker) Pending(entityID string) (models.ChangeRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := indexOf(t.state.PendingChanges, entityID); i >= 0 {
		return t.state.PendingChanges[i], true
	}
	return models.ChangeRecord{}, false
}

// Clear removes the pending record for entityID.
func (t *ChangeTracker) Clear(entityID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if indexOf(t.state.PendingChanges, entityID) < 0 {
		return nil
	}
	return t.mutate(func(st *models.SyncState) {
		i := indexOf(st.PendingChanges, entityID)
		st.PendingChanges = slices.Delete(st.PendingChanges, i, i+1)
	})
}

// Applied clears rec after it was durably applied remotely and advances the
// last sync time. If the entity was tracked again after rec was drained the
// newer record stays pending.
func (t *ChangeTracker) Applied(rec models.ChangeRecord, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mutate(func(st *models.SyncState) {
		if i := indexOf(st.PendingChanges, rec.EntityID); i >= 0 {
			cur := st.PendingChanges[i]
			if cur.Action == rec.Action && cur.Timestamp.Equal(rec.Timestamp) {
				st.PendingChanges = slices.Delete(st.PendingChanges, i, i+1)
			}
		}
		if at.After(st.LastSyncTime) {
			st.LastSyncTime = at.UTC()
		}
	})
}

// MarkSynced advances the last sync time.
func (t *ChangeTracker) MarkSynced(at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !at.After(t.state.LastSyncTime) {
		return nil
	}
	return t.mutate(func(st *models.SyncState) { st.LastSyncTime = at.UTC() })
}

// PurgeOlderThan drops pending records older than maxAge and returns how many
// were dropped. A purged change is never retried: this trades delivery of
// changes from long-offline devices for a bounded pending set.
func (t *ChangeTracker) PurgeOlderThan(maxAge time.Duration) (int, error) {
	cutoff := t.clock.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()
	stale := 0
	for _, rec := range t.state.PendingChanges {
		if rec.Timestamp.Before(cutoff) {
			stale++
		}
	}
	if stale == 0 {
		return 0, nil
	}
	err := t.mutate(func(st *models.SyncState) {
		st.PendingChanges = slices.DeleteFunc(st.PendingChanges, func(rec models.ChangeRecord) bool {
			return rec.Timestamp.Before(cutoff)
		})
	})
	if err != nil {
		return 0, err
	}
	t.logger.Warn().Int("purged", stale).Dur("max_age", maxAge).Msg("dropped stale pending changes")
	return stale, nil
}

// TryBegin sets the in-progress flag unless it is already set. The flag is
// never persisted.
func (t *ChangeTracker) TryBegin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.SyncInProgress {
		return false
	}
	t.state.SyncInProgress = true
	return true
}

// End clears the in-progress flag.
func (t *ChangeTracker) End() {
	t.mu.Lock()
	t.state.SyncInProgress = false
	t.mu.Unlock()
}

// State returns a snapshot of the sync state.
func (t *ChangeTracker) State() models.SyncState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	st.PendingChanges = slices.Clone(t.state.PendingChanges)
	return st
}

// mutate applies fn to a copy of the state, persists it and swaps it in.
// Caller holds t.mu.
func (t *ChangeTracker) mutate(fn func(*models.SyncState)) error {
	next := t.state
	next.PendingChanges = slices.Clone(t.state.PendingChanges)
	fn(&next)

	if err := t.store.SaveSyncState(next); err != nil {
		return fmt.Errorf("persist sync state: %w", err)
	}
	t.state = next
	return nil
}

func indexOf(recs []models.ChangeRecord, entityID string) int {
	return slices.IndexFunc(recs, func(r models.ChangeRecord) bool { return r.EntityID == entityID })
}
