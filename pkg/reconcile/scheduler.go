// pkg/reconcile/scheduler.go

package reconcile

import (
	"context"
	"sync"
	"time"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	// DefaultInterval is how often a reconciliation pass fires.
	DefaultInterval = 5 * time.Minute
	// DefaultPassTimeout bounds one pass so a wedged remote cannot stall
	// the loop indefinitely.
	DefaultPassTimeout = 2 * time.Minute
)

// ErrPassRunning reports that a reconciliation pass is already in flight.
var ErrPassRunning = cerr.New("reconciliation pass already running")

// Scheduler fires the reconciler on a fixed period. Exactly one pass runs at
// a time: a trigger that arrives while the previous pass is still in flight
// is skipped, not queued.
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration
	timeout    time.Duration
	logger     *zap.Logger

	running sync.Mutex // held for the duration of one pass
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler builds a Scheduler. Non-positive durations fall back to the
// package defaults.
func NewScheduler(r *Reconciler, interval, timeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultPassTimeout
	}
	return &Scheduler{
		reconciler: r,
		interval:   interval,
		timeout:    timeout,
		logger:     zap.L().Named("reconcile"),
	}
}

// Start launches the timer loop. The first pass runs immediately so a fresh
// deployment converges without waiting out a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Reconciliation scheduler started",
			zap.Duration("interval", s.interval),
			zap.Duration("pass_timeout", s.timeout))

		s.tick(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Reconciliation scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight pass to wind down.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce executes a single bounded pass. It is the one-shot CLI entrypoint
// and the body of every scheduled tick; ErrPassRunning means another pass
// holds the single-flight guard.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrPassRunning
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.reconciler.Run(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	err := s.RunOnce(ctx)
	switch {
	case cerr.Is(err, ErrPassRunning):
		s.logger.Warn("Previous reconciliation pass still running, skipping tick")
	case err != nil:
		s.logger.Error("Reconciliation pass failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	default:
		s.logger.Debug("Reconciliation pass finished",
			zap.Duration("elapsed", time.Since(start)))
	}
}
