package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default refresh cadences per resource. Sensor values on the detail screen
// arrive over the live channel, so its poll only refreshes metadata.
const (
	DevicesInterval       = 15 * time.Second
	DeviceDetailInterval  = 30 * time.Second
	NotificationsInterval = 4 * time.Second
)

// Trigger says why a task runs.
type Trigger int

const (
	// TriggerActivate is the immediate fetch when a view gains focus.
	TriggerActivate Trigger = iota
	// TriggerTick is a periodic background refresh.
	TriggerTick
)

func (t Trigger) String() string {
	if t == TriggerActivate {
		return "activate"
	}
	return "tick"
}

// Task performs one fetch. It runs behind the scheduler's Guard.
type Task func(ctx context.Context, trigger Trigger) error

// Scheduler re-runs a Task on a fixed interval while its view is active.
type Scheduler struct {
	resource Resource
	interval time.Duration
	guard    *Guard
	task     Task
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a scheduler for resource. A nil guard gets a private one.
func NewScheduler(resource Resource, interval time.Duration, guard *Guard, task Task, logger *zap.Logger) *Scheduler {
	if guard == nil {
		guard = NewGuard()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		resource: resource,
		interval: interval,
		guard:    guard,
		task:     task,
		logger:   logger.With(zap.String("resource", string(resource))),
	}
}

// Start stops any armed timer, fetches once immediately, then arms a
// repeating timer. It returns without waiting for the first fetch.
func (s *Scheduler) Start(ctx context.Context) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	interval := s.interval
	if interval <= 0 {
		interval = DevicesInterval
	}

	go func() {
		defer close(done)
		s.run(runCtx, TriggerActivate)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.run(runCtx, TriggerTick)
			}
		}
	}()
}

// Stop cancels the timer. It is a no-op when nothing is armed. An in-flight
// fetch sees its context cancelled; Stop does not wait for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.done = nil
}

// Running reports whether a timer is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Done returns a channel closed when the current loop exits, or nil when
// nothing is armed.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) run(ctx context.Context, trigger Trigger) {
	if ctx.Err() != nil {
		return
	}
	ran, err := s.guard.TryFetch(ctx, s.resource, func(ctx context.Context) error {
		return s.task(ctx, trigger)
	})
	if !ran {
		s.logger.Debug("fetch skipped, previous still in flight", zap.Stringer("trigger", trigger))
		return
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("poll failed", zap.Stringer("trigger", trigger), zap.Error(err))
	}
}
