package live

import (
	"context"
	"encoding/json"
	"errors"
)

// Event names on the live channel.
const (
	EventSubscribe    = "subscribe"
	EventUnsubscribe  = "unsubscribe"
	EventSensorUpdate = "sensorUpdate"
)

var (
	// ErrNotConnected is returned by Emit while the channel is down.
	ErrNotConnected = errors.New("live channel not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("live channel closed")
)

// Event is one frame received from the server.
type Event struct {
	Name string
	Data json.RawMessage
}

// frame is the wire format: {"event": "...", "data": {...}}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// keyRequest is the body of subscribe/unsubscribe.
type keyRequest struct {
	DeviceKey string `json:"deviceKey"`
}

// Channel is the process-wide push connection. Implementations must make
// Connect idempotent and call the OnConnect hooks after every successful
// (re)connection, since the server forgets subscriptions across reconnects.
type Channel interface {
	Connect(ctx context.Context) error
	Connected() bool
	Emit(event string, data any) error
	OnEvent(fn func(Event))
	OnConnect(fn func())
	OnDisconnect(fn func(error))
	Close() error
}
