package acceptor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIntervalScheduler_RunOnce(t *testing.T) {
	var callCount atomic.Int32

	scheduler := NewIntervalScheduler(100*time.Millisecond, true, zap.NewNop().Sugar())
	scheduler.RegisterCallback(func() error {
		callCount.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, scheduler.Start(ctx))
	assert.Equal(t, int32(1), callCount.Load(), "expected callback to run exactly once")

	// No further sweeps should happen in run-once mode.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
}

func TestIntervalScheduler_RunOnceReturnsCallbackError(t *testing.T) {
	scheduler := NewIntervalScheduler(time.Minute, true, zap.NewNop().Sugar())
	boom := errors.New("sweep failed")
	scheduler.RegisterCallback(func() error { return boom })

	err := scheduler.Start(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestIntervalScheduler_Periodic(t *testing.T) {
	callChan := make(chan struct{}, 10)

	scheduler := NewIntervalScheduler(10*time.Millisecond, false, zap.NewNop().Sugar())
	scheduler.RegisterCallback(func() error {
		callChan <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, scheduler.Start(ctx))

	// The first sweep runs inline, then the loop keeps firing.
	expectedCalls := 4
	timeout := time.After(2 * time.Second)
	for i := 0; i < expectedCalls; i++ {
		select {
		case <-callChan:
		case <-timeout:
			t.Fatalf("timed out waiting for sweep %d of %d", i+1, expectedCalls)
		}
	}

	require.NoError(t, scheduler.Stop())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, scheduler.WaitForShutdown(shutdownCtx))
	assert.True(t, scheduler.Stopped())
}

func TestIntervalScheduler_RequiresCallback(t *testing.T) {
	scheduler := NewIntervalScheduler(time.Second, true, zap.NewNop().Sugar())
	err := scheduler.Start(context.Background())
	assert.Error(t, err)
}

func TestIntervalScheduler_StopIsIdempotent(t *testing.T) {
	scheduler := NewIntervalScheduler(time.Hour, false, zap.NewNop().Sugar())
	scheduler.RegisterCallback(func() error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))

	require.NoError(t, scheduler.Stop())
	require.NoError(t, scheduler.Stop())
	assert.True(t, scheduler.Stopped())
}
