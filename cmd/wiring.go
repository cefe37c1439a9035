package cmd

import (
	"context"
	"fmt"

	"yams-sync/config"
	"yams-sync/remote"
	"yams-sync/services"
	"yams-sync/utils"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// device is the set of local services a command works with. Remote-backed
// parts (engine, players) are only present after connect.
type device struct {
	cfg         config.Config
	logger      zerolog.Logger
	clock       clockwork.Clock
	store       *services.LocalStore
	tracker     *services.ChangeTracker
	progression *services.Progression
	ownerID     string
	backup      *services.BackupService

	remote  services.RemoteStore
	engine  *services.SyncEngine
	players *services.PlayerService
	closers []func() error
}

// openDevice opens the local store and the change queue.
func openDevice(opts *RootOptions) (*device, error) {
	cfg := opts.Config
	if err := utils.EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to ensure data dir: %w", err)
	}
	store, err := services.OpenLocalStore(cfg.LocalDBPath())
	if err != nil {
		return nil, err
	}
	d := &device{
		cfg:         cfg,
		logger:      opts.Logger,
		clock:       clockwork.NewRealClock(),
		store:       store,
		progression: services.NewProgression(services.DefaultXPWeights, services.DefaultUnlockTable()),
		closers:     []func() error{store.Close},
	}

	d.tracker, err = services.NewChangeTracker(store, d.clock, d.logger)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.ownerID = cfg.OwnerID
	if d.ownerID == "" {
		if d.ownerID, err = store.DeviceID(); err != nil {
			d.Close()
			return nil, err
		}
	}
	d.backup = services.NewBackupService(store, d.tracker, d.progression, d.ownerID, d.clock, d.logger)
	return d, nil
}

// connect builds the configured remote backend and the services that sync
// through it.
func (d *device) connect(ctx context.Context) error {
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	rs, err := openRemote(ctx, d.cfg)
	if err != nil {
		return err
	}
	if c, ok := rs.(interface{ Close() error }); ok {
		d.closers = append(d.closers, c.Close)
	}
	d.remote = rs

	retry := services.RetryPolicy{
		BaseDelay:   d.cfg.SyncRetryBaseDelay,
		MaxAttempts: uint(d.cfg.SyncRetryMaxAttempts),
	}
	d.engine = services.NewSyncEngine(d.ownerID, d.store, d.store, d.tracker, rs, retry, d.clock, d.logger)
	d.players = services.NewPlayerService(d.store, d.tracker, d.progression, d.engine, d.clock, d.logger)
	d.logger.Info().Str("backend", d.cfg.RemoteBackend).Str("owner_id", d.ownerID).Msg("remote store configured")
	return nil
}

func openRemote(ctx context.Context, cfg config.Config) (services.RemoteStore, error) {
	switch cfg.RemoteBackend {
	case config.BackendPostgres:
		return remote.DialPostgres(cfg.DatabaseURL)
	case config.BackendS3:
		return remote.NewS3Store(ctx, remote.S3Config{
			AccountID:       cfg.CloudflareAccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2BucketName,
		})
	default:
		return remote.NewHTTPStore(cfg.SyncServiceURL, cfg.GameServiceToken, utils.NewHTTPClient(utils.DefaultHTTPTimeout))
	}
}

func (d *device) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn().Err(err).Msg("close failed")
		}
	}
	d.closers = nil
}
