package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/poll"
	"github.com/airwatch-iot/gasmon/internal/state"
)

// ResourceNotifications is the guard key for the notification list.
const ResourceNotifications poll.Resource = "notifications"

// readPatches overlays optimistic read flags and alert resolutions on the
// fetched list. Pending patches win over any fetch; confirmed ones are
// dropped by the next fetch.
type readPatches struct {
	ids          map[int64]bool // id -> confirmed
	all          bool
	allConfirmed bool
	alerts       map[int64]bool // alert id -> confirmed
}

func (p *readPatches) apply(list []api.Notification) []api.Notification {
	out := make([]api.Notification, len(list))
	for i, n := range list {
		if _, ok := p.ids[n.ID]; ok || p.all {
			n.Read = true
		}
		if n.Alert != nil {
			if _, ok := p.alerts[n.Alert.ID]; ok {
				a := *n.Alert
				a.Resolved = true
				n.Alert = &a
			}
		}
		out[i] = n
	}
	return out
}

func (p *readPatches) settle() {
	for id, confirmed := range p.ids {
		if confirmed {
			delete(p.ids, id)
		}
	}
	if p.allConfirmed {
		p.all, p.allConfirmed = false, false
	}
	for id, confirmed := range p.alerts {
		if confirmed {
			delete(p.alerts, id)
		}
	}
}

// Notifications polls the notification list while its screen has focus.
type Notifications struct {
	backend api.Backend
	sink    Sink
	guard   *poll.Guard
	sched   *poll.Scheduler
	logger  *zap.Logger
	life    lifecycle

	mu      sync.Mutex
	list    []api.Notification
	patches readPatches
}

// NewNotifications builds the notifications session. A zero interval uses the
// default.
func NewNotifications(backend api.Backend, sink Sink, guard *poll.Guard, interval time.Duration, logger *zap.Logger) *Notifications {
	if guard == nil {
		guard = poll.NewGuard()
	}
	if interval <= 0 {
		interval = poll.NotificationsInterval
	}
	n := &Notifications{
		backend: backend,
		sink:    sink,
		guard:   guard,
		logger:  nopLogger(logger).With(zap.String("session", "notifications")),
		patches: readPatches{ids: make(map[int64]bool), alerts: make(map[int64]bool)},
	}
	n.sched = poll.NewScheduler(ResourceNotifications, interval, guard, func(ctx context.Context, trigger poll.Trigger) error {
		return n.fetch(ctx, trigger == poll.TriggerActivate)
	}, n.logger)
	return n
}

// OnActivate fetches immediately and starts polling.
func (n *Notifications) OnActivate(ctx context.Context) {
	runCtx, _ := n.life.activate(ctx)
	n.sched.Start(runCtx)
}

// OnDeactivate stops polling.
func (n *Notifications) OnDeactivate() {
	n.life.deactivate()
	n.sched.Stop()
}

// Refresh fetches in the foreground.
func (n *Notifications) Refresh(ctx context.Context) error {
	if _, ok := n.life.current(); !ok {
		return ErrInactive
	}
	_, err := n.guard.TryFetch(ctx, ResourceNotifications, func(ctx context.Context) error {
		return n.fetch(ctx, true)
	})
	return err
}

func (n *Notifications) fetch(ctx context.Context, foreground bool) error {
	gen, ok := n.life.current()
	if !ok {
		return nil
	}
	list, err := n.backend.FetchNotifications(ctx)
	if err != nil {
		fail(&n.life, gen, n.sink, ResourceNotifications, foreground, err)
		return err
	}
	n.mu.Lock()
	n.list = list
	n.patches.settle()
	n.mu.Unlock()

	n.life.commit(gen, func() {
		n.sink.SetNotifications(n.merged())
		n.sink.RecordSuccess(ResourceNotifications)
	})
	return nil
}

func (n *Notifications) merged() []api.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.patches.apply(n.list)
}

func (n *Notifications) publish(gen uint64) {
	n.life.commit(gen, func() {
		n.sink.SetNotifications(n.merged())
	})
}

// MarkRead flags id read at once and reverts when the request fails.
func (n *Notifications) MarkRead(ctx context.Context, id int64) error {
	gen, ok := n.life.current()
	if !ok {
		return ErrInactive
	}
	n.mu.Lock()
	n.patches.ids[id] = false
	n.mu.Unlock()
	n.publish(gen)

	err := n.backend.MarkNotificationRead(ctx, id)
	n.mu.Lock()
	if err != nil {
		delete(n.patches.ids, id)
	} else {
		n.patches.ids[id] = true
	}
	n.mu.Unlock()
	n.publish(gen)
	if err != nil {
		n.surface(gen, err)
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return nil
}

// MarkAllRead flags every notification read at once and reverts on failure.
func (n *Notifications) MarkAllRead(ctx context.Context) error {
	gen, ok := n.life.current()
	if !ok {
		return ErrInactive
	}
	n.mu.Lock()
	n.patches.all, n.patches.allConfirmed = true, false
	n.mu.Unlock()
	n.publish(gen)

	err := n.backend.MarkAllNotificationsRead(ctx)
	n.mu.Lock()
	if err != nil {
		n.patches.all = false
	} else {
		n.patches.allConfirmed = true
	}
	n.mu.Unlock()
	n.publish(gen)
	if err != nil {
		n.surface(gen, err)
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// ResolveAlert resolves the alert behind a notification. The alert shows as
// resolved at once; a failure reverts it and always raises a notice.
func (n *Notifications) ResolveAlert(ctx context.Context, alertID int64) error {
	gen, ok := n.life.current()
	if !ok {
		return ErrInactive
	}
	n.mu.Lock()
	n.patches.alerts[alertID] = false
	n.mu.Unlock()
	n.publish(gen)

	_, err := n.backend.ResolveAlert(ctx, alertID)
	n.mu.Lock()
	if err != nil {
		delete(n.patches.alerts, alertID)
	} else {
		n.patches.alerts[alertID] = true
	}
	n.mu.Unlock()
	n.publish(gen)
	if err != nil {
		reverted(n.sink, err)
		return fmt.Errorf("resolve alert %d: %w", alertID, err)
	}
	n.life.commit(gen, func() {
		n.sink.Notify(state.LevelInfo, "Alert resolved")
	})
	return nil
}

func (n *Notifications) surface(gen uint64, err error) {
	n.life.commit(gen, func() {
		n.sink.Notify(state.LevelError, api.UserMessage(err))
	})
}
