package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend is the set of REST operations the view sessions rely on.
// It is implemented by *Client and faked in tests.
type Backend interface {
	FetchDevices(ctx context.Context) ([]Device, error)
	FetchDevice(ctx context.Context, id int64) (*Device, error)
	CreateDevice(ctx context.Context, input DeviceCreate) (*Device, error)
	UpdateDevice(ctx context.Context, id int64, update DeviceUpdate) (*Device, error)
	UpdateSettings(ctx context.Context, id int64, update SettingsUpdate) (*DeviceSettings, error)
	SetActuator(ctx context.Context, id int64, actuator Actuator, status bool) error
	Calibrate(ctx context.Context, id int64) error
	ResolveAlert(ctx context.Context, alertID int64) (*Alert, error)
	FetchNotifications(ctx context.Context) ([]Notification, error)
	FetchUnreadNotifications(ctx context.Context) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Ensure Client implements Backend at compile time.
var _ Backend = (*Client)(nil)

// Tokens is the persisted access/refresh pair.
type Tokens struct {
	Access  string
	Refresh string
	UserID  int64
}

// TokenStore persists the token pair between runs.
type TokenStore interface {
	Load() Tokens
	Save(Tokens) error
	Clear() error
}

const (
	defaultAPIURL    = "http://127.0.0.1:3000"
	defaultUserAgent = "gasmon/0.1"
	requestTimeout   = 10 * time.Second

	requestIDHeader = "X-Request-ID"
	refreshPath     = "/auth/refresh"
	loginPath       = "/auth/login"
)

var validate = validator.New()

// Client talks to the gas-monitoring REST API.
type Client struct {
	baseURL *url.URL
	http    *resty.Client
	tokens  TokenStore
	logger  *zap.Logger

	// refreshMu serialises token refreshes so concurrent 401s trigger one
	// refresh call.
	refreshMu sync.Mutex
}

// Options configure a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Tokens    TokenStore
	Logger    *zap.Logger
}

// NewClient builds a Client for the API rooted at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = &MemoryTokens{}
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(base.String(), "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	httpClient.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if r.Header.Get(requestIDHeader) == "" {
			r.SetHeader(requestIDHeader, uuid.NewString())
		}
		return nil
	})

	return &Client{
		baseURL: base,
		http:    httpClient,
		tokens:  tokens,
		logger:  logger.With(zap.String("component", "api")),
	}, nil
}

// BaseURL returns the normalised API root.
func (c *Client) BaseURL() *url.URL {
	dup := *c.baseURL
	return &dup
}

// Tokens returns the store backing this client.
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

// Login exchanges credentials for a token pair and persists it.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	req := LoginRequest{Email: strings.TrimSpace(email), Password: password}
	if err := validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}
	var payload AuthResponse
	if err := c.send(ctx, http.MethodPost, loginPath, "", req, &payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no access token")
	}
	tokens := Tokens{Access: payload.AccessToken, Refresh: payload.RefreshToken}
	if payload.User != nil {
		tokens.UserID = payload.User.ID
	}
	if err := c.tokens.Save(tokens); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}
	return &payload, nil
}

// FetchDevices retrieves every device visible to the user.
func (c *Client) FetchDevices(ctx context.Context) ([]Device, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var devices []Device
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &devices); err != nil {
		return nil, err
	}
	for i := range devices {
		devices[i].SortReadings()
	}
	return devices, nil
}

// FetchDevice retrieves one device with its readings and alerts.
func (c *Client) FetchDevice(ctx context.Context, id int64) (*Device, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if id <= 0 {
		return nil, &ValidationError{Err: fmt.Errorf("device id %d", id)}
	}
	var device Device
	if err := c.do(ctx, http.MethodGet, devicePath(id), nil, &device); err != nil {
		return nil, err
	}
	device.SortReadings()
	return &device, nil
}

// CreateDevice registers a new device for the user. Surrounding whitespace
// is trimmed before validation.
func (c *Client) CreateDevice(ctx context.Context, input DeviceCreate) (*Device, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Location = strings.TrimSpace(input.Location)
	if err := validate.Struct(input); err != nil {
		return nil, &ValidationError{Err: err}
	}
	var device Device
	if err := c.do(ctx, http.MethodPost, "/devices", input, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// UpdateDevice changes name, description or location.
func (c *Client) UpdateDevice(ctx context.Context, id int64, update DeviceUpdate) (*Device, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if err := validate.Struct(update); err != nil {
		return nil, &ValidationError{Err: err}
	}
	var device Device
	if err := c.do(ctx, http.MethodPatch, devicePath(id), update, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// UpdateSettings changes thresholds, calibration baselines or toggles.
func (c *Client) UpdateSettings(ctx context.Context, id int64, update SettingsUpdate) (*DeviceSettings, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if err := validate.Struct(update); err != nil {
		return nil, &ValidationError{Err: err}
	}
	var settings DeviceSettings
	if err := c.do(ctx, http.MethodPatch, devicePath(id)+"/settings", update, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SetActuator opens/closes the window or switches the fan.
func (c *Client) SetActuator(ctx context.Context, id int64, actuator Actuator, status bool) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	cmd := ActuatorCommand{Actuator: actuator, Status: status}
	if err := validate.Struct(cmd); err != nil {
		return &ValidationError{Err: err}
	}
	return c.do(ctx, http.MethodPost, devicePath(id)+"/actuator", cmd, nil)
}

// Calibrate asks the device to recompute its R0 baselines.
func (c *Client) Calibrate(ctx context.Context, id int64) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodPost, devicePath(id)+"/calibrate", struct{}{}, nil)
}

// ResolveAlert marks an alert as handled.
func (c *Client) ResolveAlert(ctx context.Context, alertID int64) (*Alert, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var alert Alert
	path := "/alerts/" + strconv.FormatInt(alertID, 10) + "/resolve"
	if err := c.do(ctx, http.MethodPatch, path, struct{}{}, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// FetchNotifications retrieves the full notification list.
func (c *Client) FetchNotifications(ctx context.Context) ([]Notification, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var list []Notification
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// FetchUnreadNotifications retrieves notifications not marked read.
func (c *Client) FetchUnreadNotifications(ctx context.Context) ([]Notification, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var list []Notification
	if err := c.do(ctx, http.MethodGet, "/notifications/unread", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkNotificationRead flags one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodPatch, "/notifications/"+strconv.FormatInt(id, 10)+"/read", nil, nil)
}

// MarkAllNotificationsRead flags every notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodPatch, "/notifications/read-all", nil, nil)
}

// do sends an authenticated request. A 401 triggers one refresh and one
// retry; the second failure is returned as is.
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	token := c.tokens.Load().Access
	err := c.send(ctx, method, path, token, body, dest)
	if !isStatus(err, http.StatusUnauthorized) {
		return err
	}
	fresh, rerr := c.refresh(ctx, token)
	if rerr != nil {
		return rerr
	}
	return c.send(ctx, method, path, fresh, body, dest)
}

func (c *Client) send(ctx context.Context, method, path, token string, body, dest any) error {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.String("request_id", resp.Request.Header.Get(requestIDHeader)),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode() >= 400 {
		return &Error{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode(),
			Message: errorMessage(resp.Body()),
		}
	}
	if dest == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := decodeBody(resp.Body(), dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// refresh swaps the refresh token for a new access token. stale is the
// access token that was rejected; when another caller already replaced it
// the stored token is returned without a network call.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.tokens.Load()
	if current.Access != "" && current.Access != stale {
		return current.Access, nil
	}
	if current.Refresh == "" {
		_ = c.tokens.Clear()
		return "", ErrAuthExpired
	}

	var payload AuthResponse
	body := map[string]string{"refreshToken": current.Refresh}
	if err := c.send(ctx, http.MethodPost, refreshPath, "", body, &payload); err != nil || payload.AccessToken == "" {
		c.logger.Warn("token refresh failed", zap.Error(err))
		_ = c.tokens.Clear()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrAuthExpired, err)
		}
		return "", ErrAuthExpired
	}

	next := Tokens{Access: payload.AccessToken, Refresh: payload.RefreshToken, UserID: current.UserID}
	if next.Refresh == "" {
		next.Refresh = current.Refresh
	}
	if err := c.tokens.Save(next); err != nil {
		return "", fmt.Errorf("store refreshed tokens: %w", err)
	}
	return next.Access, nil
}

// envelope is the {"data": ...} wrapper used by the device endpoints.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// decodeBody accepts both {"data": ...} envelopes and bare payloads.
func decodeBody(body []byte, dest any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		return json.Unmarshal(env.Data, dest)
	}
	return json.Unmarshal(body, dest)
}

func isStatus(err error, status int) bool {
	return err != nil && statusOf(err) == status
}

func devicePath(id int64) string {
	return "/devices/" + strconv.FormatInt(id, 10)
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// MemoryTokens is a TokenStore that keeps the pair in memory only.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens Tokens
}

// Load returns the current pair.
func (m *MemoryTokens) Load() Tokens {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Save replaces the pair.
func (m *MemoryTokens) Save(t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
	return nil
}

// Clear forgets the pair.
func (m *MemoryTokens) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = Tokens{}
	return nil
}
