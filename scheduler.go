package acceptor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler re-triggers suite sweeps. It is deliberately outside the
// execution engine: the engine only exposes a synchronous Run, and deciding
// when to call it again is the scheduler's job.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func() error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// IntervalScheduler implements the Scheduler interface with a fixed delay
// between sweeps.
type IntervalScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   *zap.SugaredLogger
	callback func() error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewIntervalScheduler creates a new IntervalScheduler.
func NewIntervalScheduler(interval time.Duration, runOnce bool, logger *zap.SugaredLogger) *IntervalScheduler {
	return &IntervalScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the callback to be called when a sweep should run.
func (s *IntervalScheduler) RegisterCallback(callback func() error) {
	s.callback = callback
}

// Start starts the scheduler. In run-once mode the callback runs inline and
// Start returns its error; otherwise the first sweep runs immediately and a
// goroutine keeps re-triggering at the configured interval.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("starting scheduler in run-once mode")
		return s.callback()
	}

	s.logger.Infow("starting scheduler in continuous mode", "interval", s.interval)

	if err := s.callback(); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-time.After(s.interval):
				if !s.running.Load() {
					s.logger.Debug("scheduler stopped, exiting sweep loop")
					return
				}
				s.logger.Info("running periodic sweep")
				if err := s.callback(); err != nil {
					s.logger.Errorw("periodic sweep failed", "error", err)
				}

			case <-s.done:
				s.logger.Debug("done signal received, stopping sweep loop")
				return

			case <-ctx.Done():
				s.logger.Debug("context canceled, stopping sweep loop")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// Stop stops the scheduler.
func (s *IntervalScheduler) Stop() error {
	if !s.running.Load() {
		s.logger.Debug("scheduler already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new sweeps
	s.running.Store(false)
	close(s.done)
	return nil
}

// Stopped returns true if the scheduler is stopped.
func (s *IntervalScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (s *IntervalScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warnw("timed out waiting for scheduler to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
