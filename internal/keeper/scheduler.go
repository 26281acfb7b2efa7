package keeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orionbet/orionkeeper/internal/metrics"
	"github.com/orionbet/orionkeeper/internal/notify"
)

// TickFunc is one unit of scheduled work.
type TickFunc func(ctx context.Context) error

// Scheduler runs a tick repeatedly until stopped. Consecutive failures
// stretch the delay to interval*2^failures, capped at maxBackoff; one
// success restores the interval. The owner starts and stops it
// explicitly.
type Scheduler struct {
	tick       TickFunc
	interval   time.Duration
	maxBackoff time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	failures int
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(tick TickFunc, interval, maxBackoff time.Duration, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxBackoff < interval {
		maxBackoff = interval
	}
	return &Scheduler{
		tick:       tick,
		interval:   interval,
		maxBackoff: maxBackoff,
		metrics:    m,
		logger:     logger.With(slog.String("component", "scheduler")),
	}
}

// AutoManageTick adapts Keeper.AutoManage, alerting operators on failure.
func (k *Keeper) AutoManageTick(ctx context.Context) error {
	res, err := k.AutoManage(ctx)
	if err != nil {
		k.notify(ctx, notify.EventKeeperError, "Auto-manage failed", err.Error())
		return err
	}
	k.logger.DebugContext(ctx, "auto-manage tick",
		slog.String("action", string(res.Action)),
		slog.String("message", res.Message),
	)
	return nil
}

// Start launches the loop. The loop keeps the values of ctx but not its
// cancellation, so a request context can start it; it runs until Stop.
// Start returns false if the loop is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.failures = 0
	go s.run(runCtx, s.done)
	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", s.interval))
	return true
}

// Stop halts the loop and waits for an in-flight tick to return. It
// returns false if the loop was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
	return true
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Interval is the delay between ticks when healthy.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run starts the loop and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		failures := s.runOnce(ctx)
		timer := time.NewTimer(s.delay(failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) int {
	err := s.tick(ctx)
	s.mu.Lock()
	if err != nil && ctx.Err() == nil {
		s.failures++
	} else if err == nil {
		s.failures = 0
	}
	failures := s.failures
	s.mu.Unlock()

	s.metrics.SchedulerFailures(failures)
	if err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "scheduled tick failed",
			slog.Int("consecutive_failures", failures),
			slog.Duration("next_in", s.delay(failures)),
			slog.String("error", err.Error()),
		)
	}
	return failures
}

// delay is interval*2^failures, capped at maxBackoff.
func (s *Scheduler) delay(failures int) time.Duration {
	d := s.interval
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	return d
}

// Throttle admits at most one call per interval.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewThrottle creates a Throttle. now may be nil.
func NewThrottle(interval time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{interval: interval, now: now}
}

// Allow admits the call, or reports how long until the next one will be.
func (t *Throttle) Allow() (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.last.IsZero() {
		if wait := t.interval - now.Sub(t.last); wait > 0 {
			return false, wait
		}
	}
	t.last = now
	return true, 0
}
