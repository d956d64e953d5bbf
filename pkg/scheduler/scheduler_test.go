package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaintenance struct {
	lockSweeps int64
	diffSweeps int64
	swept      chan struct{}
}

func newFakeMaintenance() *fakeMaintenance {
	return &fakeMaintenance{swept: make(chan struct{}, 16)}
}

func (f *fakeMaintenance) CleanupExpiredLocks(ctx context.Context) (int64, error) {
	atomic.AddInt64(&f.lockSweeps, 1)
	return 0, nil
}

func (f *fakeMaintenance) PruneDiffCache(ctx context.Context, cutoff time.Time) (int64, error) {
	atomic.AddInt64(&f.diffSweeps, 1)
	select {
	case f.swept <- struct{}{}:
	default:
	}
	return 0, nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestScheduler_RunsImmediateSweep(t *testing.T) {
	maintenance := newFakeMaintenance()
	s := NewScheduler(maintenance, Config{SweepInterval: time.Hour}, noopLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	select {
	case <-maintenance.swept:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate sweep on start")
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&maintenance.lockSweeps))
	assert.Equal(t, int64(1), atomic.LoadInt64(&maintenance.diffSweeps))
}

func TestScheduler_SweepsOnInterval(t *testing.T) {
	maintenance := newFakeMaintenance()
	s := NewScheduler(maintenance, Config{SweepInterval: 10 * time.Millisecond}, noopLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	for i := 0; i < 3; i++ {
		select {
		case <-maintenance.swept:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected sweep %d", i+1)
		}
	}
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	s := NewScheduler(newFakeMaintenance(), Config{SweepInterval: time.Hour}, noopLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
}

func TestScheduler_StopIsGraceful(t *testing.T) {
	s := NewScheduler(newFakeMaintenance(), Config{SweepInterval: time.Hour}, noopLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())

	// stopping an already stopped scheduler is a no-op
	require.NoError(t, s.Stop(context.Background()))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, DefaultDiffRetention, cfg.DiffRetention)

	s := NewScheduler(newFakeMaintenance(), Config{}, noopLogger())
	assert.Equal(t, DefaultSweepInterval, s.config.SweepInterval)
	assert.Equal(t, DefaultDiffRetention, s.config.DiffRetention)
}
