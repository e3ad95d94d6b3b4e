package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/cache"
	"github.com/airwatch-iot/gasmon/internal/live"
	"github.com/airwatch-iot/gasmon/internal/poll"
	"github.com/airwatch-iot/gasmon/internal/reconcile"
	"github.com/airwatch-iot/gasmon/internal/state"
)

const never = time.Hour

// fakeBackend answers from the function fields; nil fields return zero values.
type fakeBackend struct {
	mu sync.Mutex

	fetchDevices       func(context.Context) ([]api.Device, error)
	fetchDevice        func(context.Context, int64) (*api.Device, error)
	createDevice       func(context.Context, api.DeviceCreate) (*api.Device, error)
	updateDevice       func(context.Context, int64, api.DeviceUpdate) (*api.Device, error)
	updateSettings     func(context.Context, int64, api.SettingsUpdate) (*api.DeviceSettings, error)
	setActuator        func(context.Context, int64, api.Actuator, bool) error
	calibrate          func(context.Context, int64) error
	resolveAlert       func(context.Context, int64) (*api.Alert, error)
	fetchNotifications func(context.Context) ([]api.Notification, error)
	markRead           func(context.Context, int64) error
	markAllRead        func(context.Context) error

	deviceCalls int
}

func (f *fakeBackend) FetchDevices(ctx context.Context) ([]api.Device, error) {
	if f.fetchDevices == nil {
		return nil, nil
	}
	return f.fetchDevices(ctx)
}

func (f *fakeBackend) FetchDevice(ctx context.Context, id int64) (*api.Device, error) {
	f.mu.Lock()
	f.deviceCalls++
	f.mu.Unlock()
	if f.fetchDevice == nil {
		return &api.Device{ID: id}, nil
	}
	return f.fetchDevice(ctx, id)
}

func (f *fakeBackend) CreateDevice(ctx context.Context, input api.DeviceCreate) (*api.Device, error) {
	if f.createDevice == nil {
		return &api.Device{ID: 99, Name: input.Name}, nil
	}
	return f.createDevice(ctx, input)
}

func (f *fakeBackend) UpdateDevice(ctx context.Context, id int64, u api.DeviceUpdate) (*api.Device, error) {
	if f.updateDevice == nil {
		return &api.Device{ID: id}, nil
	}
	return f.updateDevice(ctx, id, u)
}

func (f *fakeBackend) UpdateSettings(ctx context.Context, id int64, u api.SettingsUpdate) (*api.DeviceSettings, error) {
	if f.updateSettings == nil {
		return &api.DeviceSettings{}, nil
	}
	return f.updateSettings(ctx, id, u)
}

func (f *fakeBackend) SetActuator(ctx context.Context, id int64, a api.Actuator, on bool) error {
	if f.setActuator == nil {
		return nil
	}
	return f.setActuator(ctx, id, a, on)
}

func (f *fakeBackend) Calibrate(ctx context.Context, id int64) error {
	if f.calibrate == nil {
		return nil
	}
	return f.calibrate(ctx, id)
}

func (f *fakeBackend) ResolveAlert(ctx context.Context, id int64) (*api.Alert, error) {
	if f.resolveAlert == nil {
		return &api.Alert{ID: id, Resolved: true}, nil
	}
	return f.resolveAlert(ctx, id)
}

func (f *fakeBackend) FetchNotifications(ctx context.Context) ([]api.Notification, error) {
	if f.fetchNotifications == nil {
		return nil, nil
	}
	return f.fetchNotifications(ctx)
}

func (f *fakeBackend) FetchUnreadNotifications(context.Context) ([]api.Notification, error) {
	return []api.Notification{{ID: 1}}, nil
}

func (f *fakeBackend) MarkNotificationRead(ctx context.Context, id int64) error {
	if f.markRead == nil {
		return nil
	}
	return f.markRead(ctx, id)
}

func (f *fakeBackend) MarkAllNotificationsRead(ctx context.Context) error {
	if f.markAllRead == nil {
		return nil
	}
	return f.markAllRead(ctx)
}

func (f *fakeBackend) detailCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceCalls
}

// spySink wraps a real store and counts writes so tests can prove nothing
// lands after teardown.
type spySink struct {
	state.Store
	mu     sync.Mutex
	writes int
	ops    []string
}

func (s *spySink) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.ops = append(s.ops, op)
}

func (s *spySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *spySink) SetDevices(d []api.Device) { s.record("devices"); s.Store.SetDevices(d) }
func (s *spySink) SetUnread(n []api.Notification) {
	s.record("unread")
	s.Store.SetUnread(n)
}
func (s *spySink) SetDetail(id int64, v reconcile.DeviceView) {
	s.record("detail")
	s.Store.SetDetail(id, v)
}
func (s *spySink) SetDetailNotFound(id int64) { s.record("notfound"); s.Store.SetDetailNotFound(id) }
func (s *spySink) ClearDetail() { s.record("clear"); s.Store.ClearDetail() }
func (s *spySink) SetNotifications(n []api.Notification) {
	s.record("notifications")
	s.Store.SetNotifications(n)
}
func (s *spySink) RecordSuccess(r poll.Resource) { s.record("success"); s.Store.RecordSuccess(r) }
func (s *spySink) RecordFailure(r poll.Resource, err error) {
	s.record("failure")
	s.Store.RecordFailure(r, err)
}
func (s *spySink) Notify(l state.Level, msg string) { s.record("notify"); s.Store.Notify(l, msg) }

// memChannel is an in-process live.Channel recording subscribe traffic.
type memChannel struct {
	mu        sync.Mutex
	connected bool
	refuse    bool
	dials     int
	onEvent   func(live.Event)
	onConnect []func()
	onDrop    []func(error)
	emits     []string
}

func (c *memChannel) Connect(context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.dials++
	if c.refuse {
		c.mu.Unlock()
		return errors.New("dial refused")
	}
	c.connected = true
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (c *memChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *memChannel) Emit(event string, data any) error {
	raw, _ := json.Marshal(data)
	var body struct {
		DeviceKey string `json:"deviceKey"`
	}
	_ = json.Unmarshal(raw, &body)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, event+":"+body.DeviceKey)
	return nil
}

func (c *memChannel) OnEvent(fn func(live.Event)) { c.onEvent = fn }
func (c *memChannel) OnConnect(fn func()) { c.onConnect = append(c.onConnect, fn) }
func (c *memChannel) OnDisconnect(fn func(error)) { c.onDrop = append(c.onDrop, fn) }
func (c *memChannel) Close() error { return nil }

func (c *memChannel) push(t *testing.T, payload api.LivePayload) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	c.onEvent(live.Event{Name: live.EventSensorUpdate, Data: raw})
}

// drop simulates the server closing the connection.
func (c *memChannel) drop() {
	c.mu.Lock()
	c.connected = false
	hooks := append([]func(error){}, c.onDrop...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(errors.New("connection reset"))
	}
}

func (c *memChannel) setRefuse(refuse bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refuse = refuse
}

func (c *memChannel) dialCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

func (c *memChannel) log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.emits...)
}

func f64(v float64) *float64 { return &v }

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

// settle waits for the activation fetch to release the guard so a following
// Refresh is not dropped.
func settle(t *testing.T, g *poll.Guard, resource poll.Resource) {
	t.Helper()
	eventually(t, func() bool { return !g.InFlight(resource) })
}

func TestDeviceList_ActivatePublishesDevicesAndBadge(t *testing.T) {
	backend := &fakeBackend{fetchDevices: func(context.Context) ([]api.Device, error) {
		return []api.Device{{ID: 1, Name: "kitchen"}}, nil
	}}
	sink := &spySink{}
	list := NewDeviceList(backend, sink, nil, never, nil)

	list.OnActivate(context.Background())
	defer list.OnDeactivate()

	eventually(t, func() bool { return sink.Snapshot().HasDevices })
	eventually(t, func() bool { return sink.Snapshot().UnreadCount() == 1 })
	assert.Equal(t, "kitchen", sink.Snapshot().Devices[0].Name)
}

func TestDeviceList_LateResultAfterTeardownIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &fakeBackend{fetchDevices: func(context.Context) ([]api.Device, error) {
		close(started)
		<-release
		return []api.Device{{ID: 1}}, nil
	}}
	sink := &spySink{}
	list := NewDeviceList(backend, sink, nil, never, nil)

	list.OnActivate(context.Background())
	<-started
	list.OnDeactivate()
	close(release)

	// Give the fetch goroutine time to finish and try to publish.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sink.count())
	assert.False(t, sink.Snapshot().HasDevices)
}

func TestDeviceList_BackgroundFailureIsNotSurfaced(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	backend := &fakeBackend{fetchDevices: func(context.Context) ([]api.Device, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return []api.Device{{ID: 1}}, nil
		}
		return nil, errors.New("connection refused")
	}}
	sink := &spySink{}
	list := NewDeviceList(backend, sink, nil, 10*time.Millisecond, nil)

	list.OnActivate(context.Background())
	eventually(t, func() bool { return sink.Snapshot().IsOffline() })
	list.OnDeactivate()

	snap := sink.Snapshot()
	assert.Len(t, snap.Devices, 1, "last good data stays")
	assert.Empty(t, snap.Notices)
}

func TestDeviceList_ForegroundRefreshSurfacesFailure(t *testing.T) {
	var fail bool
	var mu sync.Mutex
	backend := &fakeBackend{fetchDevices: func(context.Context) ([]api.Device, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, &api.Error{Status: http.StatusInternalServerError, Message: "database down"}
		}
		return nil, nil
	}}
	sink := &spySink{}
	list := NewDeviceList(backend, sink, nil, never, nil)

	assert.ErrorIs(t, list.Refresh(context.Background()), ErrInactive)

	list.OnActivate(context.Background())
	defer list.OnDeactivate()
	eventually(t, func() bool { return sink.Snapshot().HasDevices })
	settle(t, list.guard, ResourceDevices)

	mu.Lock()
	fail = true
	mu.Unlock()
	require.Error(t, list.Refresh(context.Background()))

	n, ok := sink.Snapshot().LatestNotice()
	require.True(t, ok)
	assert.Equal(t, state.LevelError, n.Level)
	assert.Equal(t, "database down", n.Message)
}

func newDetail(t *testing.T, backend api.Backend, sink Sink, ch *memChannel) *Detail {
	t.Helper()
	var hub *live.Hub
	if ch != nil {
		hub = live.NewHub(ch, nil)
	}
	return NewDetail(7, DetailOptions{Backend: backend, Sink: sink, Hub: hub, Interval: never})
}

func TestDetail_LiveUpdatesMergeUntilTeardown(t *testing.T) {
	backend := &fakeBackend{fetchDevice: func(context.Context, int64) (*api.Device, error) {
		return &api.Device{
			ID:        7,
			DeviceKey: "dev-7",
			Readings:  []api.SensorReading{{MQ2PPM: f64(120)}},
		}, nil
	}}
	sink := &spySink{}
	ch := &memChannel{}
	d := newDetail(t, backend, sink, ch)

	d.OnActivate(context.Background())
	eventually(t, func() bool { return len(ch.log()) == 1 })
	assert.Equal(t, []string{"subscribe:dev-7"}, ch.log())

	ch.push(t, api.LivePayload{DeviceKey: "dev-7", MQ5: &api.GasSample{PPM: f64(80)}})
	view := sink.Snapshot().Detail.View
	assert.Equal(t, "120", view.Channel(api.ChannelMQ2).Reading.Format(0))
	assert.Equal(t, "80", view.Channel(api.ChannelMQ5).Reading.Format(0))
	assert.Equal(t, reconcile.Placeholder, view.Channel(api.ChannelMQ3).Reading.Format(0))
	assert.True(t, view.Live)

	d.OnDeactivate()
	assert.Equal(t, []string{"subscribe:dev-7", "unsubscribe:dev-7"}, ch.log())

	before := sink.count()
	ch.push(t, api.LivePayload{DeviceKey: "dev-7", MQ5: &api.GasSample{PPM: f64(999)}})
	assert.Equal(t, before, sink.count())
}

func TestDetail_DropFallsBackToHistoryAndClearsLive(t *testing.T) {
	backend := &fakeBackend{fetchDevice: func(context.Context, int64) (*api.Device, error) {
		return &api.Device{
			ID:        7,
			DeviceKey: "dev-7",
			Readings:  []api.SensorReading{{MQ2PPM: f64(120)}},
		}, nil
	}}
	sink := &spySink{}
	ch := &memChannel{}
	d := newDetail(t, backend, sink, ch)
	d.OnActivate(context.Background())
	defer d.OnDeactivate()
	eventually(t, func() bool { return len(ch.log()) == 1 })

	ch.push(t, api.LivePayload{DeviceKey: "dev-7", MQ2: &api.GasSample{PPM: f64(450)}})
	require.True(t, sink.Snapshot().Detail.View.Live)

	ch.drop()
	view := sink.Snapshot().Detail.View
	assert.False(t, view.Live)
	assert.Equal(t, "120", view.Channel(api.ChannelMQ2).Reading.Format(0), "last REST reading stays on screen")
}

func TestDetail_DropAfterTeardownWritesNothing(t *testing.T) {
	backend := &fakeBackend{fetchDevice: func(context.Context, int64) (*api.Device, error) {
		return &api.Device{ID: 7, DeviceKey: "dev-7"}, nil
	}}
	sink := &spySink{}
	ch := &memChannel{}
	d := newDetail(t, backend, sink, ch)
	d.OnActivate(context.Background())
	eventually(t, func() bool { return len(ch.log()) == 1 })
	ch.push(t, api.LivePayload{DeviceKey: "dev-7", MQ2: &api.GasSample{PPM: f64(1)}})
	d.OnDeactivate()

	before := sink.count()
	ch.drop()
	assert.Equal(t, before, sink.count())
	assert.False(t, sink.Snapshot().HasDetail, "teardown clears the detail view")
}

func TestDetail_PollTickRedialsChannelThatGaveUp(t *testing.T) {
	backend := &fakeBackend{fetchDevice: func(context.Context, int64) (*api.Device, error) {
		return &api.Device{ID: 7, DeviceKey: "dev-7"}, nil
	}}
	sink := &spySink{}
	ch := &memChannel{refuse: true}
	d := newDetail(t, backend, sink, ch)
	d.OnActivate(context.Background())
	defer d.OnDeactivate()
	eventually(t, func() bool { return ch.dialCount() == 1 })
	settle(t, d.guard, d.resource)
	assert.Empty(t, ch.log(), "nothing sent while down")

	ch.setRefuse(false)
	require.NoError(t, d.Refresh(context.Background()))
	assert.Equal(t, 2, ch.dialCount())
	assert.Equal(t, []string{"subscribe:dev-7"}, ch.log(), "bound key resubscribed on connect")

	// Up again: later ticks do not dial.
	require.NoError(t, d.Refresh(context.Background()))
	assert.Equal(t, 2, ch.dialCount())
}

func TestDetail_KeyChangeRebindsInOrder(t *testing.T) {
	var mu sync.Mutex
	key := "old"
	backend := &fakeBackend{fetchDevice: func(context.Context, int64) (*api.Device, error) {
		mu.Lock()
		defer mu.Unlock()
		return &api.Device{ID: 7, DeviceKey: key}, nil
	}}
	sink := &spySink{}
	ch := &memChannel{}
	d := newDetail(t, backend, sink, ch)
	d.OnActivate(context.Background())
	defer d.OnDeactivate()
	eventually(t, func() bool { return len(ch.log()) == 1 })
	settle(t, d.guard, d.resource)

	// Same key again: no duplicate subscription.
	require.NoError(t, d.Refresh(context.Background()))
	assert.Equal(t, []string{"subscribe:old"}, ch.log())

	mu.Lock()
	key = "new"
	mu.Unlock()
	require.NoError(t, d.Refresh(context.Background()))
	assert.Equal(t, []string{"subscribe:old", "unsubscribe:old", "subscribe:new"}, ch.log())
}

func TestDetail_NotFoundIsTerminal(t *testing.T) {
	backend := &fakeBackend{fetchDevice: func(context.Context, int64) (*api.Device, error) {
		return nil, &api.Error{Status: http.StatusNotFound}
	}}
	sink := &spySink{}
	d := NewDetail(7, DetailOptions{Backend: backend, Sink: sink, Interval: 10 * time.Millisecond})
	d.OnActivate(context.Background())
	defer d.OnDeactivate()

	eventually(t, func() bool { return sink.Snapshot().Detail.NotFound })
	calls := backend.detailCalls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, backend.detailCalls(), "polling stops after 404")
	assert.Zero(t, sink.Snapshot().ConsecutiveFailures)
}

func loadedDetail(t *testing.T, backend *fakeBackend, sink *spySink) *Detail {
	t.Helper()
	if backend.fetchDevice == nil {
		backend.fetchDevice = func(context.Context, int64) (*api.Device, error) {
			return &api.Device{
				ID:     7,
				FanOn:  false,
				Alerts: []api.Alert{{ID: 10, Severity: api.SeverityHigh}},
			}, nil
		}
	}
	d := newDetail(t, backend, sink, nil)
	d.OnActivate(context.Background())
	t.Cleanup(d.OnDeactivate)
	eventually(t, func() bool { return sink.Snapshot().HasDetail })
	settle(t, d.guard, d.resource)
	return d
}

func TestDetail_ToggleActuatorFailureReverts(t *testing.T) {
	sent := make(chan bool, 1)
	backend := &fakeBackend{setActuator: func(_ context.Context, _ int64, a api.Actuator, on bool) error {
		sent <- on
		return errors.New("device offline")
	}}
	sink := &spySink{}
	d := loadedDetail(t, backend, sink)

	err := d.ToggleActuator(context.Background(), api.ActuatorFan)
	require.Error(t, err)
	assert.True(t, <-sent)
	assert.False(t, sink.Snapshot().Detail.View.FanOn)

	n, ok := sink.Snapshot().LatestNotice()
	require.True(t, ok)
	assert.Equal(t, "device offline", n.Message)
}

func TestDetail_ToggleActuatorShowsNewStateOptimistically(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{setActuator: func(context.Context, int64, api.Actuator, bool) error {
		<-release
		return nil
	}}
	sink := &spySink{}
	d := loadedDetail(t, backend, sink)

	done := make(chan error, 1)
	go func() { done <- d.ToggleActuator(context.Background(), api.ActuatorFan) }()
	eventually(t, func() bool { return sink.Snapshot().Detail.View.FanOn })
	close(release)
	require.NoError(t, <-done)
	assert.True(t, sink.Snapshot().Detail.View.FanOn)
}

func TestDetail_ResolveAlertFailureReverts(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{resolveAlert: func(context.Context, int64) (*api.Alert, error) {
		<-release
		return nil, errors.New("boom")
	}}
	sink := &spySink{}
	d := loadedDetail(t, backend, sink)

	done := make(chan error, 1)
	go func() { done <- d.ResolveAlert(context.Background(), 10) }()
	eventually(t, func() bool { return len(sink.Snapshot().Detail.View.ActiveAlerts()) == 0 })

	close(release)
	require.Error(t, <-done)
	active := sink.Snapshot().Detail.View.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, int64(10), active[0].ID)
}

func TestDetail_ResolveAlertFailureAfterLeavingStillNotifies(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{resolveAlert: func(context.Context, int64) (*api.Alert, error) {
		close(started)
		<-release
		return nil, errors.New("resolve rejected")
	}}
	sink := &spySink{}
	d := loadedDetail(t, backend, sink)

	done := make(chan error, 1)
	go func() { done <- d.ResolveAlert(context.Background(), 10) }()
	<-started
	d.OnDeactivate()
	close(release)
	require.Error(t, <-done)

	n, ok := sink.Snapshot().LatestNotice()
	require.True(t, ok, "a failed resolution is never reverted silently")
	assert.Equal(t, state.LevelError, n.Level)
	assert.Equal(t, "resolve rejected", n.Message)
	assert.False(t, sink.Snapshot().HasDetail, "the view itself is not written after teardown")
}

func TestDetail_SaveSettingsRunsBothThenRefreshes(t *testing.T) {
	var mu sync.Mutex
	var gotInfo, gotSettings bool
	backend := &fakeBackend{
		updateDevice: func(_ context.Context, _ int64, u api.DeviceUpdate) (*api.Device, error) {
			mu.Lock()
			gotInfo = *u.Name == "garage"
			mu.Unlock()
			return &api.Device{}, nil
		},
		updateSettings: func(_ context.Context, _ int64, u api.SettingsUpdate) (*api.DeviceSettings, error) {
			mu.Lock()
			gotSettings = *u.MQ2ThresholdPPM == 250
			mu.Unlock()
			return &api.DeviceSettings{}, nil
		},
	}
	sink := &spySink{}
	d := loadedDetail(t, backend, sink)
	calls := backend.detailCalls()

	name := "garage"
	require.NoError(t, d.SaveSettings(context.Background(),
		api.DeviceUpdate{Name: &name},
		api.SettingsUpdate{MQ2ThresholdPPM: f64(250)}))

	mu.Lock()
	assert.True(t, gotInfo)
	assert.True(t, gotSettings)
	mu.Unlock()
	assert.Equal(t, calls+1, backend.detailCalls())
}

func TestDetail_SaveSettingsFailureSkipsRefresh(t *testing.T) {
	backend := &fakeBackend{
		updateSettings: func(context.Context, int64, api.SettingsUpdate) (*api.DeviceSettings, error) {
			return nil, &api.Error{Status: http.StatusBadRequest, Message: "mq2ThresholdPpm must be positive"}
		},
	}
	sink := &spySink{}
	d := loadedDetail(t, backend, sink)
	calls := backend.detailCalls()

	err := d.SaveSettings(context.Background(), api.DeviceUpdate{}, api.SettingsUpdate{MQ2ThresholdPPM: f64(1)})
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))
	assert.Equal(t, calls, backend.detailCalls())

	n, _ := sink.Snapshot().LatestNotice()
	assert.Equal(t, "mq2ThresholdPpm must be positive", n.Message)
}

func TestDetail_ActionsRequireActiveSession(t *testing.T) {
	d := newDetail(t, &fakeBackend{}, &spySink{}, nil)
	assert.ErrorIs(t, d.ToggleActuator(context.Background(), api.ActuatorFan), ErrInactive)
	assert.ErrorIs(t, d.Calibrate(context.Background()), ErrInactive)
	assert.ErrorIs(t, d.ResolveAlert(context.Background(), 1), ErrInactive)
}

func TestDetail_ShowsCachedSnapshotFirst(t *testing.T) {
	c, err := cache.OpenInMemory()
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Put(context.Background(), api.Device{ID: 7, Name: "cached"}))

	release := make(chan struct{})
	backend := &fakeBackend{fetchDevice: func(context.Context, int64) (*api.Device, error) {
		<-release
		return &api.Device{ID: 7, Name: "fresh"}, nil
	}}
	sink := &spySink{}
	d := NewDetail(7, DetailOptions{Backend: backend, Sink: sink, Cache: c, Interval: never})
	d.OnActivate(context.Background())
	defer d.OnDeactivate()

	assert.Equal(t, "cached", sink.Snapshot().Detail.View.Device.Name)
	close(release)
	eventually(t, func() bool { return sink.Snapshot().Detail.View.Device.Name == "fresh" })

	eventually(t, func() bool {
		got, _, err := c.Get(context.Background(), 7)
		return err == nil && got.Name == "fresh"
	})
}

func TestNotifications_MarkReadOptimisticAndRevert(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		fetchNotifications: func(context.Context) ([]api.Notification, error) {
			return []api.Notification{{ID: 1}, {ID: 2}}, nil
		},
		markRead: func(context.Context, int64) error {
			<-release
			return errors.New("nope")
		},
	}
	sink := &spySink{}
	n := NewNotifications(backend, sink, nil, never, nil)
	n.OnActivate(context.Background())
	defer n.OnDeactivate()
	eventually(t, func() bool { return sink.Snapshot().UnreadCount() == 2 })

	done := make(chan error, 1)
	go func() { done <- n.MarkRead(context.Background(), 1) }()
	eventually(t, func() bool { return sink.Snapshot().UnreadCount() == 1 })

	close(release)
	require.Error(t, <-done)
	assert.Equal(t, 2, sink.Snapshot().UnreadCount())
}

func TestNotifications_MarkAllReadSurvivesStaleFetchUntilConfirmed(t *testing.T) {
	backend := &fakeBackend{
		fetchNotifications: func(context.Context) ([]api.Notification, error) {
			return []api.Notification{{ID: 1}, {ID: 2}}, nil
		},
	}
	sink := &spySink{}
	n := NewNotifications(backend, sink, nil, never, nil)
	n.OnActivate(context.Background())
	defer n.OnDeactivate()
	eventually(t, func() bool { return sink.Snapshot().HasNotifications })
	settle(t, n.guard, ResourceNotifications)

	require.NoError(t, n.MarkAllRead(context.Background()))
	assert.Zero(t, sink.Snapshot().UnreadCount())

	// The server still reports them unread; once confirmed the fetch wins.
	require.NoError(t, n.Refresh(context.Background()))
	assert.Equal(t, 2, sink.Snapshot().UnreadCount())
}

func TestDeviceList_CreateDeviceRefreshesList(t *testing.T) {
	var mu sync.Mutex
	devices := []api.Device{{ID: 1, Name: "kitchen"}}
	backend := &fakeBackend{
		fetchDevices: func(context.Context) ([]api.Device, error) {
			mu.Lock()
			defer mu.Unlock()
			return append([]api.Device(nil), devices...), nil
		},
		createDevice: func(_ context.Context, input api.DeviceCreate) (*api.Device, error) {
			mu.Lock()
			defer mu.Unlock()
			d := api.Device{ID: 2, Name: input.Name}
			devices = append(devices, d)
			return &d, nil
		},
	}
	sink := &spySink{}
	list := NewDeviceList(backend, sink, nil, never, nil)
	assert.ErrorIs(t, list.CreateDevice(context.Background(), api.DeviceCreate{Name: "garage"}), ErrInactive)

	list.OnActivate(context.Background())
	defer list.OnDeactivate()
	eventually(t, func() bool { return sink.Snapshot().HasDevices })
	settle(t, list.guard, ResourceDevices)

	require.NoError(t, list.CreateDevice(context.Background(), api.DeviceCreate{Name: "garage"}))
	assert.Len(t, sink.Snapshot().Devices, 2)
	n, ok := sink.Snapshot().LatestNotice()
	require.True(t, ok)
	assert.Equal(t, `Device "garage" added`, n.Message)
}

func TestDeviceList_CreateDeviceFailureIsSurfaced(t *testing.T) {
	backend := &fakeBackend{createDevice: func(context.Context, api.DeviceCreate) (*api.Device, error) {
		return nil, &api.Error{Status: http.StatusConflict, Message: "device limit reached"}
	}}
	sink := &spySink{}
	list := NewDeviceList(backend, sink, nil, never, nil)
	list.OnActivate(context.Background())
	defer list.OnDeactivate()

	require.Error(t, list.CreateDevice(context.Background(), api.DeviceCreate{Name: "garage"}))
	n, ok := sink.Snapshot().LatestNotice()
	require.True(t, ok)
	assert.Equal(t, state.LevelError, n.Level)
	assert.Equal(t, "device limit reached", n.Message)
}

func alertNotifications() []api.Notification {
	return []api.Notification{
		{ID: 1, Alert: &api.Alert{ID: 10, Severity: api.SeverityCritical}},
		{ID: 2},
	}
}

func TestNotifications_ResolveAlertOptimisticAndConfirmed(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		fetchNotifications: func(context.Context) ([]api.Notification, error) {
			return alertNotifications(), nil
		},
		resolveAlert: func(_ context.Context, id int64) (*api.Alert, error) {
			<-release
			return &api.Alert{ID: id, Resolved: true}, nil
		},
	}
	sink := &spySink{}
	n := NewNotifications(backend, sink, nil, never, nil)
	n.OnActivate(context.Background())
	defer n.OnDeactivate()
	eventually(t, func() bool { return sink.Snapshot().HasNotifications })
	settle(t, n.guard, ResourceNotifications)

	done := make(chan error, 1)
	go func() { done <- n.ResolveAlert(context.Background(), 10) }()
	eventually(t, func() bool { return sink.Snapshot().Notifications[0].Alert.Resolved })

	close(release)
	require.NoError(t, <-done)
	assert.True(t, sink.Snapshot().Notifications[0].Alert.Resolved)

	// Confirmed: the next fetch is authoritative again.
	require.NoError(t, n.Refresh(context.Background()))
	assert.False(t, sink.Snapshot().Notifications[0].Alert.Resolved)
}

func TestNotifications_ResolveAlertFailureAfterLeavingStillNotifies(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{
		fetchNotifications: func(context.Context) ([]api.Notification, error) {
			return alertNotifications(), nil
		},
		resolveAlert: func(context.Context, int64) (*api.Alert, error) {
			close(started)
			<-release
			return nil, errors.New("resolve rejected")
		},
	}
	sink := &spySink{}
	n := NewNotifications(backend, sink, nil, never, nil)
	n.OnActivate(context.Background())
	eventually(t, func() bool { return sink.Snapshot().HasNotifications })

	done := make(chan error, 1)
	go func() { done <- n.ResolveAlert(context.Background(), 10) }()
	<-started
	n.OnDeactivate()
	close(release)
	require.Error(t, <-done)

	snap := sink.Snapshot()
	notice, ok := snap.LatestNotice()
	require.True(t, ok)
	assert.Equal(t, "resolve rejected", notice.Message)
	assert.True(t, snap.Notifications[0].Alert.Resolved, "the view is not written after teardown")
}
