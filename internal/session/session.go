// Package session implements the per-screen view sessions. A session owns
// the poll scheduler and live binding for one screen, starts them when the
// screen gains focus and tears them down when it loses focus. Results that
// arrive after teardown are dropped.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/poll"
	"github.com/airwatch-iot/gasmon/internal/reconcile"
	"github.com/airwatch-iot/gasmon/internal/state"
)

// ErrInactive is returned by user actions on a session without focus.
var ErrInactive = errors.New("view is not active")

// Sink receives session output. *state.Store implements it.
type Sink interface {
	SetDevices([]api.Device)
	SetUnread([]api.Notification)
	SetDetail(id int64, view reconcile.DeviceView)
	SetDetailNotFound(id int64)
	ClearDetail()
	SetNotifications([]api.Notification)
	RecordSuccess(poll.Resource)
	RecordFailure(poll.Resource, error)
	Notify(level state.Level, message string)
}

var _ Sink = (*state.Store)(nil)

// Session is a screen's focus lifecycle.
type Session interface {
	OnActivate(ctx context.Context)
	OnDeactivate()
}

// lifecycle tracks whether a session is active and which activation a result
// belongs to. Every activate and deactivate bumps the generation, so a fetch
// started under an older generation can tell it has been superseded.
type lifecycle struct {
	mu     sync.Mutex
	active bool
	gen    uint64
	cancel context.CancelFunc
}

// activate starts a new generation and returns a context cancelled by the
// matching deactivate.
func (l *lifecycle) activate(parent context.Context) (context.Context, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	l.active = true
	l.gen++
	return ctx, l.gen
}

func (l *lifecycle) deactivate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.active = false
	l.gen++
}

func (l *lifecycle) current() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen, l.active
}

func (l *lifecycle) isCurrent(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active && l.gen == gen
}

// commit runs fn only while gen is still the active generation. fn runs under
// the lifecycle lock, so once deactivate returns no commit can write.
func (l *lifecycle) commit(gen uint64, fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active || l.gen != gen {
		return false
	}
	fn()
	return true
}

// fail records a fetch failure. Foreground failures also raise a notice;
// background ones are only logged by the scheduler.
func fail(l *lifecycle, gen uint64, sink Sink, resource poll.Resource, foreground bool, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	l.commit(gen, func() {
		sink.RecordFailure(resource, err)
		if foreground {
			sink.Notify(state.LevelError, api.UserMessage(err))
		}
	})
}

// reverted raises the notice for a failed optimistic action. Notices are
// process-wide, so it is written even when the screen lost focus while the
// request was outstanding.
func reverted(sink Sink, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	sink.Notify(state.LevelError, api.UserMessage(err))
}

func nopLogger(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
