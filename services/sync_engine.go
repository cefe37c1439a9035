package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yams-sync/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// SyncStatus summarizes a sync call for callers and the UI.
type SyncStatus string

const (
	SyncCompleted    SyncStatus = "completed"
	SyncPartial      SyncStatus = "partial"
	SyncNotConnected SyncStatus = "not_connected"
	SyncInProgress   SyncStatus = "in_progress"
)

// SyncResult is what SyncAll/SyncOne report. Per-entity failures are
// counted here, never returned as errors.
type SyncResult struct {
	Status    SyncStatus `json:"status"`
	Synced    int        `json:"synced"`
	Failed    int        `json:"failed"`
	Conflicts int        `json:"conflicts"`
	Skipped   int        `json:"skipped"`
	Message   string     `json:"message"`
}

// PullResult is what PullAll reports.
type PullResult struct {
	Status    SyncStatus `json:"status"`
	Profiles  int        `json:"profiles"`
	Games     int        `json:"games"`
	Conflicts int        `json:"conflicts"`
	Message   string     `json:"message"`
}

// RetryPolicy bounds per-entity retries: delay before attempt n+1 is
// BaseDelay * 2^(n-1), at most MaxAttempts attempts per cycle.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts uint
}

var DefaultRetryPolicy = RetryPolicy{BaseDelay: time.Second, MaxAttempts: 3}

type outcome int

const (
	outcomePushed outcome = iota
	outcomeMerged
	outcomeDeleted
	outcomeStale
)

// SyncEngine reconciles the local store with the remote store. Only one
// SyncAll, SyncOne or PullAll runs at a time; entities are processed
// sequentially in drain order.
type SyncEngine struct {
	ownerID  string
	profiles ProfileRepository
	games    GameHistory
	tracker  *ChangeTracker
	remote   RemoteStore
	retry    RetryPolicy
	clock    clockwork.Clock
	logger   zerolog.Logger
}

func NewSyncEngine(
	ownerID string,
	profiles ProfileRepository,
	games GameHistory,
	tracker *ChangeTracker,
	remote RemoteStore,
	retry RetryPolicy,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *SyncEngine {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	return &SyncEngine{
		ownerID:  ownerID,
		profiles: profiles,
		games:    games,
		tracker:  tracker,
		remote:   remote,
		retry:    retry,
		clock:    clock,
		logger:   logger.With().Str("component", "sync").Str("owner_id", ownerID).Logger(),
	}
}

func (e *SyncEngine) OwnerID() string { return e.ownerID }

// Status returns a snapshot of the persisted sync state.
func (e *SyncEngine) Status() models.SyncState { return e.tracker.State() }

// SyncAll pushes every pending change. It is both the periodic job and the
// manual "sync now" action.
func (e *SyncEngine) SyncAll(ctx context.Context) SyncResult {
	if !e.tracker.TryBegin() {
		return inProgressResult()
	}
	defer e.tracker.End()

	if !e.remote.IsConnected(ctx) {
		e.logger.Debug().Msg("[SYNC] skipped: not connected")
		return notConnectedResult()
	}

	changes := e.tracker.Drain()
	e.logger.Debug().Int("pending", len(changes)).Msg("[SYNC] starting cycle")

	var res SyncResult
	for i, rec := range changes {
		if ctx.Err() != nil {
			res.Failed += len(changes) - i
			break
		}
		e.syncChange(ctx, rec, &res)
	}

	if res.Failed == 0 {
		if err := e.tracker.MarkSynced(e.clock.Now()); err != nil {
			e.logger.Error().Err(err).Msg("[SYNC] failed to record sync time")
		}
	}
	res.finish()

	ev := e.logger.Info()
	if res.Failed > 0 {
		ev = e.logger.Warn()
	}
	ev.Int("synced", res.Synced).Int("failed", res.Failed).Int("conflicts", res.Conflicts).
		Int("skipped", res.Skipped).Msg("[SYNC] cycle finished")
	return res
}

// SyncOne pushes the pending change of a single entity right away, e.g. a
// delete. It honours the same single-flight flag as SyncAll; a busy engine
// leaves the change for the next cycle.
func (e *SyncEngine) SyncOne(ctx context.Context, entityID string) SyncResult {
	if !e.tracker.TryBegin() {
		return inProgressResult()
	}
	defer e.tracker.End()

	rec, ok := e.tracker.Pending(entityID)
	if !ok {
		res := SyncResult{}
		res.finish()
		return res
	}
	if !e.remote.IsConnected(ctx) {
		return notConnectedResult()
	}

	var res SyncResult
	e.syncChange(ctx, rec, &res)
	res.finish()
	return res
}

// PullAll brings remote profiles and game history onto this device. Unknown
// profiles are inserted, remotely newer ones are merged (and tracked so the
// merged copy is pushed back). Profiles with a pending delete are left alone.
func (e *SyncEngine) PullAll(ctx context.Context) PullResult {
	if !e.tracker.TryBegin() {
		return PullResult{Status: SyncInProgress, Message: "Sync already in progress"}
	}
	defer e.tracker.End()

	if !e.remote.IsConnected(ctx) {
		return PullResult{Status: SyncNotConnected, Message: "Not connected - try again when back online"}
	}

	var res PullResult
	remoteProfiles, err := withRetry(ctx, e, "list profiles", func() ([]models.PlayerProfile, error) {
		return e.remote.ListProfiles(ctx, e.ownerID)
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("[SYNC] pull: list profiles failed")
		return PullResult{Status: SyncPartial, Message: "Could not reach cloud - try again later"}
	}

	failed := 0
	for _, rp := range remoteProfiles {
		if rp.IsAI || rp.ID == "" {
			continue
		}
		if rec, ok := e.tracker.Pending(rp.ID); ok && rec.Action == models.ActionDelete {
			continue
		}
		merged, err := e.pullProfile(rp)
		if err != nil {
			failed++
			e.logger.Error().Err(err).Str("profile_id", rp.ID).Msg("[SYNC] pull: local write failed")
			continue
		}
		switch merged {
		case outcomeMerged:
			res.Conflicts++
			res.Profiles++
		case outcomePushed:
			res.Profiles++
		}
	}

	remoteGames, err := withRetry(ctx, e, "list games", func() ([]models.GameRecord, error) {
		return e.remote.ListGameRecords(ctx, e.ownerID, models.GameRecordFilter{})
	})
	if err != nil {
		failed++
		e.logger.Warn().Err(err).Msg("[SYNC] pull: list games failed")
	}
	for _, g := range remoteGames {
		_, known, err := e.games.GetGame(g.ID)
		if err == nil && !known {
			err = e.games.AppendGame(g)
			if err == nil {
				res.Games++
			}
		}
		if err != nil {
			failed++
			e.logger.Error().Err(err).Str("game_id", g.ID).Msg("[SYNC] pull: local write failed")
		}
	}

	res.Status = SyncCompleted
	res.Message = fmt.Sprintf("Restored %d profile(s) and %d game(s)", res.Profiles, res.Games)
	if failed > 0 {
		res.Status = SyncPartial
		res.Message += fmt.Sprintf(", %d failed", failed)
	}
	e.logger.Info().Int("profiles", res.Profiles).Int("games", res.Games).
		Int("conflicts", res.Conflicts).Int("failed", failed).Msg("[SYNC] pull finished")
	return res
}

// pullProfile reports outcomePushed for an inserted profile, outcomeMerged
// for a merge and outcomeStale when the local copy is at least as fresh.
func (e *SyncEngine) pullProfile(rp models.PlayerProfile) (outcome, error) {
	unlock := e.tracker.LockEntity(rp.ID)
	defer unlock()

	local, found, err := e.profiles.Get(rp.ID)
	if err != nil {
		return outcomeStale, err
	}
	if !found {
		return outcomePushed, e.profiles.Put(rp.Normalize())
	}
	if !rp.LastPlayed.After(local.LastPlayed) {
		return outcomeStale, nil
	}
	merged := MergeProfiles(local, rp)
	e.logConflict(local, rp)
	if err := e.profiles.Put(merged); err != nil {
		return outcomeStale, err
	}
	return outcomeMerged, e.tracker.Track(merged.ID, models.EntityPlayer, models.ActionUpdate)
}

func (e *SyncEngine) syncChange(ctx context.Context, rec models.ChangeRecord, res *SyncResult) {
	log := e.logger.With().Str("entity_id", rec.EntityID).Str("entity_type", string(rec.Kind())).
		Str("action", string(rec.Action)).Logger()

	out, err := withRetry(ctx, e, string(rec.Action), func() (outcome, error) {
		return e.apply(ctx, rec)
	})
	if err != nil {
		res.Failed++
		log.Warn().Err(err).Msg("[SYNC] change deferred to next cycle")
		return
	}

	if err := e.tracker.Applied(rec, e.clock.Now()); err != nil {
		res.Failed++
		log.Error().Err(err).Msg("[SYNC] applied remotely but could not clear pending change")
		return
	}

	switch out {
	case outcomeStale:
		res.Skipped++
		log.Debug().Msg("[SYNC] dropped stale change")
	case outcomeMerged:
		res.Conflicts++
		res.Synced++
	default:
		res.Synced++
	}
}

// apply runs the pipeline for one change. Local faults are permanent for the
// cycle; remote faults are retried.
func (e *SyncEngine) apply(ctx context.Context, rec models.ChangeRecord) (outcome, error) {
	if rec.Kind() == models.EntityGame {
		return e.applyGame(ctx, rec)
	}

	if rec.Action == models.ActionDelete {
		if err := e.remote.DeleteProfile(ctx, e.ownerID, rec.EntityID); err != nil {
			return outcomeDeleted, fmt.Errorf("remote delete: %w", err)
		}
		return outcomeDeleted, nil
	}

	local, found, err := e.profiles.Get(rec.EntityID)
	if err != nil {
		return outcomeStale, backoff.Permanent(err)
	}
	if !found || local.IsAI {
		return outcomeStale, nil
	}

	remote, found, err := e.remote.GetProfile(ctx, e.ownerID, rec.EntityID)
	if err != nil {
		return outcomeStale, fmt.Errorf("remote fetch: %w", err)
	}

	if !found || !remote.LastPlayed.After(local.LastPlayed) {
		if err := e.remote.PutProfile(ctx, e.ownerID, local); err != nil {
			return outcomeStale, fmt.Errorf("remote push: %w", err)
		}
		return outcomePushed, nil
	}

	merged, found, err := e.mergeIntoLocal(rec.EntityID, remote)
	if err != nil {
		return outcomeStale, backoff.Permanent(err)
	}
	if !found {
		return outcomeStale, nil
	}
	if err := e.remote.PutProfile(ctx, e.ownerID, merged); err != nil {
		return outcomeStale, fmt.Errorf("remote push merged: %w", err)
	}
	return outcomeMerged, nil
}

// mergeIntoLocal merges remote into the current local record and writes the
// result back. The local copy is re-read under the entity lock because the
// remote fetch may have raced with a local edit. found is false when the
// profile was deleted meanwhile.
func (e *SyncEngine) mergeIntoLocal(id string, remote models.PlayerProfile) (models.PlayerProfile, bool, error) {
	unlock := e.tracker.LockEntity(id)
	defer unlock()

	current, found, err := e.profiles.Get(id)
	if err != nil || !found {
		return models.PlayerProfile{}, false, err
	}
	merged := MergeProfiles(current, remote)
	if err := e.profiles.Put(merged); err != nil {
		return models.PlayerProfile{}, false, err
	}
	e.logConflict(current, remote)
	return merged, true, nil
}

func (e *SyncEngine) applyGame(ctx context.Context, rec models.ChangeRecord) (outcome, error) {
	if rec.Action == models.ActionDelete {
		// game history is append-only; nothing to remove remotely
		return outcomeStale, nil
	}
	g, found, err := e.games.GetGame(rec.EntityID)
	if err != nil {
		return outcomeStale, backoff.Permanent(err)
	}
	if !found {
		return outcomeStale, nil
	}
	if err := e.remote.PutGameRecord(ctx, e.ownerID, g); err != nil {
		return outcomeStale, fmt.Errorf("remote push game: %w", err)
	}
	return outcomePushed, nil
}

func (e *SyncEngine) logConflict(local, remote models.PlayerProfile) {
	e.logger.Info().
		Str("profile_id", local.ID).
		Time("local_last_played", local.LastPlayed).
		Time("remote_last_played", remote.LastPlayed).
		Msg("[SYNC] conflict resolved: merged local and remote profile")
}

// withRetry runs op with exponential backoff. It gives up after the policy's
// attempt budget, on a permanent error, or when ctx is done.
func withRetry[T any](ctx context.Context, e *SyncEngine, what string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retry.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = e.retry.BaseDelay << min(e.retry.MaxAttempts, 16)

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.retry.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Debug().Err(err).Str("op", what).Dur("retry_in", next).Msg("[SYNC] retrying")
		}),
	)
}

func (r *SyncResult) finish() {
	switch {
	case r.Failed > 0:
		r.Status = SyncPartial
		r.Message = fmt.Sprintf("Synced %d change(s), %d failed - will retry on next sync", r.Synced, r.Failed)
	case r.Synced == 0 && r.Skipped == 0:
		r.Status = SyncCompleted
		r.Message = "Everything is up to date"
	default:
		r.Status = SyncCompleted
		r.Message = fmt.Sprintf("Synced %d change(s)", r.Synced)
	}
	if r.Conflicts > 0 {
		r.Message += fmt.Sprintf(" (%d conflict(s) resolved)", r.Conflicts)
	}
}

func inProgressResult() SyncResult {
	return SyncResult{Status: SyncInProgress, Message: "Sync already in progress"}
}

func notConnectedResult() SyncResult {
	return SyncResult{Status: SyncNotConnected, Message: "Not connected - changes will sync when back online"}
}

// IsLocalFault reports whether err came from device storage.
func IsLocalFault(err error) bool { return errors.Is(err, ErrLocalStore) }
