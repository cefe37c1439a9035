package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yams-sync/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Syncer runs one pass over the pending-change queue.
type Syncer interface {
	SyncAll(ctx context.Context) services.SyncResult
}

// Purger drops pending changes that have waited longer than maxAge.
type Purger interface {
	PurgeOlderThan(maxAge time.Duration) (int, error)
}

type SyncWorkerConfig struct {
	Interval      time.Duration
	PurgeInterval time.Duration
	PendingMaxAge time.Duration
}

// SyncWorker drives periodic background sync and pending-change expiry.
// Overlapping runs are rescheduled, never stacked.
type SyncWorker struct {
	syncer Syncer
	purger Purger
	cfg    SyncWorkerConfig
	clock  clockwork.Clock
	logger zerolog.Logger

	sched    gocron.Scheduler
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewSyncWorker(syncer Syncer, purger Purger, cfg SyncWorkerConfig, clock clockwork.Clock, logger zerolog.Logger) *SyncWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SyncWorker{
		syncer: syncer,
		purger: purger,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With().Str("component", "sync_worker").Logger(),
	}
}

// Start schedules the jobs; the first sync runs immediately. Jobs stop when
// ctx is cancelled or Stop is called.
func (w *SyncWorker) Start(ctx context.Context) error {
	if w.cfg.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", w.cfg.Interval)
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(w.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)

	_, err = sched.NewJob(
		gocron.DurationJob(w.cfg.Interval),
		gocron.NewTask(func() { w.runSync(ctx) }),
		gocron.WithName("sync-all"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}

	if w.purger != nil && w.cfg.PurgeInterval > 0 && w.cfg.PendingMaxAge > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(w.cfg.PurgeInterval),
			gocron.NewTask(w.runPurge),
			gocron.WithName("purge-pending"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = sched.Shutdown()
			return fmt.Errorf("failed to schedule purge job: %w", err)
		}
	}

	w.sched = sched
	w.cancel = cancel
	sched.Start()
	w.logger.Info().Dur("interval", w.cfg.Interval).Msg("🔁 background sync started")

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Stop cancels a running sync (including its retry waits) and shuts the
// scheduler down.
func (w *SyncWorker) Stop() {
	if w.sched == nil {
		return
	}
	w.stopOnce.Do(func() {
		w.cancel()
		if err := w.sched.Shutdown(); err != nil {
			w.logger.Warn().Err(err).Msg("scheduler shutdown")
		}
		w.logger.Info().Msg("background sync stopped")
	})
}

func (w *SyncWorker) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res := w.syncer.SyncAll(ctx)
	ev := w.logger.Info()
	if res.Status == services.SyncPartial {
		ev = w.logger.Warn()
	}
	ev.Str("status", string(res.Status)).
		Int("synced", res.Synced).
		Int("failed", res.Failed).
		Int("conflicts", res.Conflicts).
		Msg(res.Message)
}

func (w *SyncWorker) runPurge() {
	n, err := w.purger.PurgeOlderThan(w.cfg.PendingMaxAge)
	if err != nil {
		w.logger.Error().Err(err).Msg("purge pending changes failed")
		return
	}
	if n > 0 {
		w.logger.Warn().Int("dropped", n).Dur("max_age", w.cfg.PendingMaxAge).Msg("dropped stale pending changes")
	}
}
