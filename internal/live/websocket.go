package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the server.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the server.
	pongWait = 60 * time.Second

	// Ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Sensor payloads are small; anything larger is a protocol error.
	maxMessageSize = 64 * 1024

	handshakeTimeout = 10 * time.Second

	defaultMaxReconnects = 10
	baseBackoff          = time.Second
	maxBackoff           = 5 * time.Second
)

// WSOptions configure a WSChannel.
type WSOptions struct {
	URL string
	// Header builds the handshake headers, typically the bearer token. It is
	// called on every dial so refreshed tokens are picked up.
	Header        func() http.Header
	MaxReconnects int
	Logger        *zap.Logger
}

// WSChannel is a Channel over a single gorilla/websocket connection with
// bounded automatic reconnection.
type WSChannel struct {
	opts   WSOptions
	dialer *websocket.Dialer
	logger *zap.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	closed       bool
	reconnecting bool
	closeCh      chan struct{}

	onEvent      func(Event)
	onConnect    []func()
	onDisconnect []func(error)

	writeMu sync.Mutex
}

var _ Channel = (*WSChannel)(nil)

// NewWSChannel returns a disconnected channel.
func NewWSChannel(opts WSOptions) *WSChannel {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	return &WSChannel{
		opts:    opts,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:  logger.With(zap.String("component", "live")),
		closeCh: make(chan struct{}),
	}
}

// OnEvent sets the handler for server frames. It runs on the read goroutine.
func (c *WSChannel) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// OnConnect registers a hook run after every successful connection.
func (c *WSChannel) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers a hook run when the connection drops.
func (c *WSChannel) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Connected reports whether a connection is up.
func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the server unless already connected. A failed dial starts
// background reconnection and returns the dial error.
func (c *WSChannel) Connect(ctx context.Context) error {
	err := c.dial(ctx)
	if err != nil && err != ErrClosed {
		c.startReconnect()
	}
	return err
}

func (c *WSChannel) dial(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var header http.Header
	if c.opts.Header != nil {
		header = c.opts.Header()
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial live channel: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial live channel: %w", err)
	}

	c.mu.Lock()
	if c.closed || c.conn != nil {
		// Lost a race with Close or with a concurrent dial.
		closed := c.closed
		c.mu.Unlock()
		_ = conn.Close()
		if closed {
			return ErrClosed
		}
		return nil
	}
	c.conn = conn
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)

	c.logger.Info("live channel connected", zap.String("url", c.opts.URL))
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Emit sends one event frame.
func (c *WSChannel) Emit(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// Close shuts the connection and stops reconnecting.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.dropped(conn, err)
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("malformed live frame", zap.Error(err))
			continue
		}
		c.mu.Lock()
		handler := c.onEvent
		c.mu.Unlock()
		if handler != nil {
			handler(Event{Name: f.Event, Data: f.Data})
		}
	}
}

func (c *WSChannel) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn == conn
			c.mu.Unlock()
			if !current {
				return
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *WSChannel) dropped(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closed := c.closed
	hooks := append([]func(error){}, c.onDisconnect...)
	c.mu.Unlock()

	_ = conn.Close()
	if closed {
		return
	}
	c.logger.Warn("live channel dropped", zap.Error(cause))
	for _, fn := range hooks {
		fn(cause)
	}
	c.startReconnect()
}

func (c *WSChannel) startReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
		}()
		for attempt := 0; attempt < c.opts.MaxReconnects; attempt++ {
			select {
			case <-c.closeCh:
				return
			case <-time.After(calculateBackoff(attempt, baseBackoff)):
			}
			ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
			err := c.dial(ctx)
			cancel()
			if err == nil || err == ErrClosed {
				return
			}
			c.logger.Debug("live reconnect failed", zap.Int("attempt", attempt+1), zap.Error(err))
		}
		c.logger.Warn("live channel gave up reconnecting", zap.Int("attempts", c.opts.MaxReconnects))
	}()
}

// calculateBackoff doubles base per consecutive failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
