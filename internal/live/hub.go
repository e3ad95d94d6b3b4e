package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/airwatch-iot/gasmon/internal/api"
)

// Handler receives sensor payloads for one device key.
type Handler func(api.LivePayload)

// Hub owns the shared Channel and routes sensorUpdate events to the handler
// registered for their device key. It re-subscribes every bound key after a
// reconnect and tells drop watchers when the connection is lost.
type Hub struct {
	ch     Channel
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	drops    map[uint64]func()
	nextDrop uint64
}

// NewHub wires the hub to ch.
func NewHub(ch Channel, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		ch:       ch,
		logger:   logger.With(zap.String("component", "live-hub")),
		handlers: make(map[string]Handler),
		drops:    make(map[uint64]func()),
	}
	ch.OnEvent(h.dispatch)
	ch.OnConnect(h.resubscribe)
	ch.OnDisconnect(h.dropped)
	return h
}

// Connected reports whether the underlying channel is up.
func (h *Hub) Connected() bool {
	return h.ch.Connected()
}

// Connect dials the channel if it is down. Bound keys are re-subscribed once
// it is up.
func (h *Hub) Connect(ctx context.Context) error {
	return h.ch.Connect(ctx)
}

// OnDrop registers fn to run each time the connection is lost. The returned
// func removes it.
func (h *Hub) OnDrop(fn func()) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextDrop++
	id := h.nextDrop
	h.drops[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.drops, id)
	}
}

// Subscribe connects if needed, registers fn for key and asks the server for
// its updates. When the channel is down the handler stays registered and the
// subscribe is sent on the next reconnect; the connect error is returned.
func (h *Hub) Subscribe(ctx context.Context, key string, fn Handler) error {
	if key == "" {
		return fmt.Errorf("subscribe: empty device key")
	}
	connErr := h.ch.Connect(ctx)

	h.mu.Lock()
	h.handlers[key] = fn
	h.mu.Unlock()

	if connErr != nil {
		return connErr
	}
	if err := h.ch.Emit(EventSubscribe, keyRequest{DeviceKey: key}); err != nil {
		return fmt.Errorf("subscribe %s: %w", key, err)
	}
	return nil
}

// Unsubscribe clears the handler for key and tells the server. Payloads for
// key arriving afterwards are dropped.
func (h *Hub) Unsubscribe(key string) error {
	h.mu.Lock()
	delete(h.handlers, key)
	h.mu.Unlock()

	if !h.ch.Connected() {
		return nil
	}
	if err := h.ch.Emit(EventUnsubscribe, keyRequest{DeviceKey: key}); err != nil && err != ErrNotConnected {
		return fmt.Errorf("unsubscribe %s: %w", key, err)
	}
	return nil
}

// Keys returns the bound device keys, sorted.
func (h *Hub) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.handlers))
	for k := range h.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close shuts the channel.
func (h *Hub) Close() error {
	return h.ch.Close()
}

func (h *Hub) resubscribe() {
	for _, key := range h.Keys() {
		if err := h.ch.Emit(EventSubscribe, keyRequest{DeviceKey: key}); err != nil {
			h.logger.Warn("resubscribe failed", zap.String("device_key", key), zap.Error(err))
		}
	}
}

func (h *Hub) dropped(err error) {
	h.mu.Lock()
	hooks := make([]func(), 0, len(h.drops))
	for _, fn := range h.drops {
		hooks = append(hooks, fn)
	}
	h.mu.Unlock()
	h.logger.Debug("notifying drop watchers", zap.Int("watchers", len(hooks)), zap.Error(err))
	for _, fn := range hooks {
		fn()
	}
}

func (h *Hub) dispatch(ev Event) {
	if ev.Name != EventSensorUpdate {
		return
	}
	var payload api.LivePayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		h.logger.Warn("malformed sensor update", zap.Error(err))
		return
	}
	h.mu.Lock()
	fn := h.handlers[payload.DeviceKey]
	h.mu.Unlock()
	if fn == nil {
		return
	}
	fn(payload)
}

// Binding ties one view to at most one device key on a Hub.
type Binding struct {
	hub *Hub

	mu  sync.Mutex
	key string
}

// NewBinding returns an unbound Binding.
func NewBinding(hub *Hub) *Binding {
	return &Binding{hub: hub}
}

// Key returns the bound key, empty when unbound.
func (b *Binding) Key() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key
}

// Rebind moves the binding to key. Binding the current key again is a no-op.
// The previous key is always unsubscribed before the new one is subscribed.
// An empty key just unbinds.
func (b *Binding) Rebind(ctx context.Context, key string, fn Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if key == b.key {
		return nil
	}
	var unsubErr error
	if b.key != "" {
		unsubErr = b.hub.Unsubscribe(b.key)
		b.key = ""
	}
	if key == "" {
		return unsubErr
	}
	err := b.hub.Subscribe(ctx, key, fn)
	// Bound even on error: the hub keeps the handler and subscribes on reconnect.
	b.key = key
	if err != nil {
		return err
	}
	return unsubErr
}

// Unbind releases the current key.
func (b *Binding) Unbind() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.key == "" {
		return nil
	}
	key := b.key
	b.key = ""
	return b.hub.Unsubscribe(key)
}
