package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/sqldesk/internal/models"
	"github.com/charlesng35/sqldesk/pkg/logger"
)

const (
	defaultSnapshotSpec = "@daily"
	defaultSweepSpec    = "@hourly"
	defaultRetain       = 14

	shutdownReason  = "shutdown"
	scheduledReason = "scheduled"
)

// Snapshotter takes and prunes registry snapshots.
type Snapshotter interface {
	Create(ctx context.Context, reason string) (*models.ConnectionSnapshot, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// Cleaner coordinates background maintenance: periodic registry snapshots with
// retention, and removal of expired key/value rows such as rate limit counters.
type Cleaner struct {
	db        *gorm.DB
	snapshots Snapshotter
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retain    int

	snapshotSchedule string
	sweepSchedule    string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetain sets how many snapshots survive pruning. Zero keeps everything.
func WithRetain(keep int) Option {
	return func(cleaner *Cleaner) {
		if keep >= 0 {
			cleaner.retain = keep
		}
	}
}

// WithSnapshotSchedule overrides the cron specification for registry snapshots.
func WithSnapshotSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.snapshotSchedule = spec
		}
	}
}

// WithSweepSchedule overrides the cron specification for expired entry removal.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil snapshotter disables snapshot jobs and a nil db
// disables the expired entry sweep.
func NewCleaner(db *gorm.DB, snapshots Snapshotter, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:               db,
		snapshots:        snapshots,
		now:              time.Now,
		retain:           defaultRetain,
		snapshotSchedule: defaultSnapshotSpec,
		sweepSchedule:    defaultSweepSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.snapshots != nil || cleaner.db != nil

	return cleaner
}

// Start registers jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.snapshots != nil {
		if _, err := c.cron.AddFunc(c.snapshotSchedule, func() {
			if err := c.snapshotAndPrune(context.Background(), scheduledReason); err != nil {
				c.log.Warn("scheduled snapshot failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			if _, err := CleanupExpiredEntries(context.Background(), c.db, c.now()); err != nil {
				c.log.Warn("expired entry cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce takes a shutdown snapshot, prunes, and sweeps expired entries. Used during
// graceful shutdown and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.snapshots != nil {
		errs = multierr.Append(errs, c.snapshotAndPrune(ctx, shutdownReason))
	}

	if c.db != nil {
		if _, err := CleanupExpiredEntries(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) snapshotAndPrune(ctx context.Context, reason string) error {
	var errs error

	snapshot, err := c.snapshots.Create(ctx, reason)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("snapshot: %w", err))
	} else {
		c.log.Info("registry snapshot stored",
			zap.String("id", snapshot.ID),
			zap.String("reason", reason),
			zap.Int("connections", snapshot.Count))
	}

	if c.retain > 0 {
		removed, err := c.snapshots.Prune(ctx, c.retain)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune snapshots: %w", err))
		} else if removed > 0 {
			c.log.Info("old snapshots pruned", zap.Int64("removed", removed))
		}
	}

	return errs
}

// CleanupExpiredEntries removes key/value rows whose expiry has passed. Rows without an
// expiry are kept.
func CleanupExpiredEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup entries: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", time.Time{}, now).
		Delete(&models.KVEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
