package gormstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SweeperConfig controls the purge of consumed recovery codes.
type SweeperConfig struct {
	// Schedule is a five-field cron spec or descriptor. Default "@hourly".
	Schedule string
	// Retention is how long a used code row is kept for audit. Default 30 days.
	Retention time.Duration
	Timeout   time.Duration
}

// Sweeper deletes used recovery codes past their retention on a cron
// schedule. Unused codes are never touched.
type Sweeper struct {
	store  *Store
	cron   *cron.Cron
	logger *slog.Logger
	cfg    SweeperConfig
	now    func() time.Time
}

func NewSweeper(store *Store, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Sweeper{
		store:  store,
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger))),
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.run); err != nil {
		return err
	}
	s.logger.Info("scheduled recovery code sweep", "schedule", s.cfg.Schedule)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once a running
// sweep finishes.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	n, err := s.Sweep(ctx, s.now())
	if err != nil {
		s.logger.Error("recovery code sweep failed", "error", err)
		return
	}
	s.logger.Info("recovery code sweep finished", "deleted", n)
}

// Sweep deletes codes used before now minus the retention and returns how
// many rows went.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.cfg.Retention).UTC()
	res := s.store.DB.WithContext(ctx).
		Where("used_at IS NOT NULL AND used_at < ?", cutoff).
		Delete(&RecoveryCode{})
	return res.RowsAffected, res.Error
}
