package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/poll"
	"github.com/airwatch-iot/gasmon/internal/state"
)

// ResourceDevices is the guard key for the device list.
const ResourceDevices poll.Resource = "devices"

// DeviceList keeps the device list fresh while the list screen has focus.
// Each fetch also refreshes the unread notification badge.
type DeviceList struct {
	backend api.Backend
	sink    Sink
	guard   *poll.Guard
	sched   *poll.Scheduler
	logger  *zap.Logger
	life    lifecycle
}

// NewDeviceList builds the list session. A zero interval uses the default.
func NewDeviceList(backend api.Backend, sink Sink, guard *poll.Guard, interval time.Duration, logger *zap.Logger) *DeviceList {
	if guard == nil {
		guard = poll.NewGuard()
	}
	if interval <= 0 {
		interval = poll.DevicesInterval
	}
	d := &DeviceList{
		backend: backend,
		sink:    sink,
		guard:   guard,
		logger:  nopLogger(logger).With(zap.String("session", "devices")),
	}
	d.sched = poll.NewScheduler(ResourceDevices, interval, guard, func(ctx context.Context, trigger poll.Trigger) error {
		return d.fetch(ctx, trigger == poll.TriggerActivate)
	}, d.logger)
	return d
}

// OnActivate fetches immediately and starts polling.
func (d *DeviceList) OnActivate(ctx context.Context) {
	runCtx, _ := d.life.activate(ctx)
	d.sched.Start(runCtx)
}

// OnDeactivate stops polling. Results still in flight are discarded.
func (d *DeviceList) OnDeactivate() {
	d.life.deactivate()
	d.sched.Stop()
}

// Refresh is the pull-to-refresh path: a foreground fetch that surfaces
// failures. It is dropped when a fetch is already in flight.
func (d *DeviceList) Refresh(ctx context.Context) error {
	if _, ok := d.life.current(); !ok {
		return ErrInactive
	}
	_, err := d.guard.TryFetch(ctx, ResourceDevices, func(ctx context.Context) error {
		return d.fetch(ctx, true)
	})
	return err
}

func (d *DeviceList) fetch(ctx context.Context, foreground bool) error {
	gen, ok := d.life.current()
	if !ok {
		return nil
	}
	devices, err := d.backend.FetchDevices(ctx)
	if err != nil {
		fail(&d.life, gen, d.sink, ResourceDevices, foreground, err)
		return err
	}
	d.life.commit(gen, func() {
		d.sink.SetDevices(devices)
		d.sink.RecordSuccess(ResourceDevices)
	})

	unread, err := d.backend.FetchUnreadNotifications(ctx)
	if err != nil {
		// The badge is secondary; keep the previous count.
		d.logger.Debug("unread badge refresh failed", zap.Error(err))
		return nil
	}
	d.life.commit(gen, func() {
		d.sink.SetUnread(unread)
	})
	return nil
}

// CreateDevice registers a new device, then refreshes the list in the
// foreground so it shows up.
func (d *DeviceList) CreateDevice(ctx context.Context, input api.DeviceCreate) error {
	gen, ok := d.life.current()
	if !ok {
		return ErrInactive
	}
	device, err := d.backend.CreateDevice(ctx, input)
	if err != nil {
		d.life.commit(gen, func() {
			d.sink.Notify(state.LevelError, api.UserMessage(err))
		})
		return fmt.Errorf("create device: %w", err)
	}
	d.logger.Info("device created", zap.Int64("device_id", device.ID), zap.String("device_key", device.DeviceKey))
	d.life.commit(gen, func() {
		d.sink.Notify(state.LevelInfo, fmt.Sprintf("Device %q added", device.Name))
	})
	return d.Refresh(ctx)
}
