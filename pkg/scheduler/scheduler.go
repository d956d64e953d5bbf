// Package scheduler runs the background maintenance loop: expiring lapsed
// editing locks and pruning stale cached diffs.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultSweepInterval is the default interval between maintenance sweeps
	DefaultSweepInterval = 30 * time.Second

	// DefaultDiffRetention is how long cached diffs are kept before pruning
	DefaultDiffRetention = 7 * 24 * time.Hour
)

// Maintenance is the surface the scheduler drives. Both sweeps run
// cross-tenant, so the implementations must not require tenant context.
type Maintenance interface {
	CleanupExpiredLocks(ctx context.Context) (int64, error)
	PruneDiffCache(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// SweepInterval is how often maintenance sweeps run
	SweepInterval time.Duration

	// DiffRetention is the age past which cached diffs are pruned
	DiffRetention time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		SweepInterval: DefaultSweepInterval,
		DiffRetention: DefaultDiffRetention,
	}
}

// Scheduler periodically runs maintenance sweeps
type Scheduler struct {
	maintenance Maintenance
	config      Config
	logger      ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(maintenance Maintenance, config Config, logger ectologger.Logger) *Scheduler {
	// Apply defaults
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.DiffRetention <= 0 {
		config.DiffRetention = DefaultDiffRetention
	}

	return &Scheduler{
		maintenance: maintenance,
		config:      config,
		logger:      logger,
		stopCh:      make(chan struct{}),
		stoppedC:    make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: sweep_interval=%s diff_retention=%s",
		s.config.SweepInterval, s.config.DiffRetention)

	go s.sweepLoop(ctx)

	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// sweepLoop runs maintenance sweeps until stopped
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.runSweep(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler sweep loop stopping")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// runSweep runs a single maintenance sweep
func (s *Scheduler) runSweep(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.runSweep")
	defer span.End()

	start := time.Now()

	expired, err := s.maintenance.CleanupExpiredLocks(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to clean up expired locks")
	} else {
		metrics.SchedulerSweepsTotal.WithLabelValues("lock_cleanup").Inc()
		if expired > 0 {
			s.logger.WithContext(ctx).Infof("Deactivated %d expired locks", expired)
		}
	}

	cutoff := time.Now().Add(-s.config.DiffRetention)
	pruned, err := s.maintenance.PruneDiffCache(ctx, cutoff)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to prune diff cache")
	} else {
		metrics.SchedulerSweepsTotal.WithLabelValues("diff_prune").Inc()
		if pruned > 0 {
			s.logger.WithContext(ctx).Infof("Pruned %d cached diffs", pruned)
		}
	}

	s.logger.WithContext(ctx).Debugf("Maintenance sweep completed in %s", time.Since(start))
}
