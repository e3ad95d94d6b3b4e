package poll

import (
	"context"
	"sync"
)

// Resource identifies one logical fetch target, e.g. "devices" or "device/7".
type Resource string

// Guard allows at most one outstanding fetch per resource. Triggers that
// arrive while a fetch is in flight are dropped, not queued.
type Guard struct {
	mu       sync.Mutex
	inFlight map[Resource]struct{}
}

// NewGuard returns an empty Guard. The zero value is also ready to use.
func NewGuard() *Guard {
	return &Guard{}
}

// TryFetch runs fn unless a fetch for resource is already outstanding.
// ran reports whether fn was called; err is fn's result. The in-flight mark
// is cleared whatever fn returns, so a failure never blocks later attempts.
func (g *Guard) TryFetch(ctx context.Context, resource Resource, fn func(context.Context) error) (ran bool, err error) {
	if !g.acquire(resource) {
		return false, nil
	}
	defer g.release(resource)
	return true, fn(ctx)
}

// InFlight reports whether a fetch for resource is outstanding.
func (g *Guard) InFlight(resource Resource) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[resource]
	return ok
}

func (g *Guard) acquire(resource Resource) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == nil {
		g.inFlight = make(map[Resource]struct{})
	}
	if _, busy := g.inFlight[resource]; busy {
		return false
	}
	g.inFlight[resource] = struct{}{}
	return true
}

func (g *Guard) release(resource Resource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, resource)
}
