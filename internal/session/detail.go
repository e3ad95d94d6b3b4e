package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/live"
	"github.com/airwatch-iot/gasmon/internal/poll"
	"github.com/airwatch-iot/gasmon/internal/reconcile"
	"github.com/airwatch-iot/gasmon/internal/state"
)

// ErrNoSnapshot is returned by actions issued before the device has loaded.
var ErrNoSnapshot = errors.New("device not loaded yet")

// SnapshotCache persists the last snapshot per device. *cache.DeviceCache
// implements it.
type SnapshotCache interface {
	Get(ctx context.Context, id int64) (api.Device, time.Time, error)
	Put(ctx context.Context, device api.Device) error
	Delete(id int64) error
}

// DetailOptions configure a Detail session. Hub and Cache are optional.
type DetailOptions struct {
	Backend  api.Backend
	Sink     Sink
	Hub      *live.Hub
	Guard    *poll.Guard
	Cache    SnapshotCache
	Interval time.Duration
	Logger   *zap.Logger
}

// Detail drives the device detail screen: a slow metadata poll, a live
// binding on the device's channel key and optimistic user actions, all
// merged through one Reconciler.
type Detail struct {
	id       int64
	resource poll.Resource
	backend  api.Backend
	sink     Sink
	guard    *poll.Guard
	cache    SnapshotCache
	hub      *live.Hub
	logger   *zap.Logger

	rec     *reconcile.Reconciler
	binding *live.Binding
	sched   *poll.Scheduler
	life    lifecycle

	// bindMu orders rebinds against teardown so no subscription outlives
	// the activation that made it.
	bindMu    sync.Mutex
	stopWatch func()
}

// DetailResource is the guard key for one device's detail fetch.
func DetailResource(id int64) poll.Resource {
	return poll.Resource("device/" + strconv.FormatInt(id, 10))
}

// NewDetail builds the session for device id.
func NewDetail(id int64, opts DetailOptions) *Detail {
	guard := opts.Guard
	if guard == nil {
		guard = poll.NewGuard()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = poll.DeviceDetailInterval
	}
	d := &Detail{
		id:       id,
		resource: DetailResource(id),
		backend:  opts.Backend,
		sink:     opts.Sink,
		guard:    guard,
		cache:    opts.Cache,
		hub:      opts.Hub,
		logger:   nopLogger(opts.Logger).With(zap.String("session", "detail"), zap.Int64("device_id", id)),
		rec:      reconcile.New(),
	}
	if opts.Hub != nil {
		d.binding = live.NewBinding(opts.Hub)
	}
	d.sched = poll.NewScheduler(d.resource, interval, guard, func(ctx context.Context, trigger poll.Trigger) error {
		return d.fetch(ctx, trigger == poll.TriggerActivate)
	}, d.logger)
	return d
}

// DeviceID returns the device this session shows.
func (d *Detail) DeviceID() int64 {
	return d.id
}

// View returns the current merged view.
func (d *Detail) View() reconcile.DeviceView {
	return d.rec.View()
}

// OnActivate shows the cached snapshot if there is one, then fetches and
// starts polling. The live binding follows the fetched snapshot's key.
func (d *Detail) OnActivate(ctx context.Context) {
	runCtx, gen := d.life.activate(ctx)
	if d.cache != nil {
		if _, ok := d.rec.Snapshot(); !ok {
			if cached, _, err := d.cache.Get(runCtx, d.id); err == nil {
				d.rec.ApplySnapshot(cached)
				d.publish(gen)
			}
		}
	}
	if d.hub != nil {
		d.bindMu.Lock()
		d.stopWatch = d.hub.OnDrop(d.onDrop(gen))
		d.bindMu.Unlock()
	}
	d.sched.Start(runCtx)
}

// OnDeactivate stops polling, releases the live binding and clears the
// detail view from the sink. Nothing reaches the sink after it returns.
func (d *Detail) OnDeactivate() {
	d.life.deactivate()
	d.sched.Stop()

	d.bindMu.Lock()
	if d.stopWatch != nil {
		d.stopWatch()
		d.stopWatch = nil
	}
	if d.binding != nil {
		if err := d.binding.Unbind(); err != nil {
			d.logger.Warn("live unbind failed", zap.Error(err))
		}
	}
	d.bindMu.Unlock()

	d.rec.ClearLive()
	d.sink.ClearDetail()
}

// Refresh fetches in the foreground, surfacing failures. It is dropped when
// a fetch is already in flight.
func (d *Detail) Refresh(ctx context.Context) error {
	if _, ok := d.life.current(); !ok {
		return ErrInactive
	}
	_, err := d.guard.TryFetch(ctx, d.resource, func(ctx context.Context) error {
		return d.fetch(ctx, true)
	})
	return err
}

func (d *Detail) fetch(ctx context.Context, foreground bool) error {
	gen, ok := d.life.current()
	if !ok {
		return nil
	}
	device, err := d.backend.FetchDevice(ctx, d.id)
	if err != nil {
		if api.IsNotFound(err) {
			d.notFound(gen)
			return nil
		}
		fail(&d.life, gen, d.sink, d.resource, foreground, err)
		return err
	}

	committed := d.life.commit(gen, func() {
		d.rec.ApplySnapshot(*device)
		d.sink.SetDetail(d.id, d.rec.View())
		d.sink.RecordSuccess(d.resource)
	})
	if !committed {
		return nil
	}
	if d.cache != nil {
		if err := d.cache.Put(ctx, *device); err != nil {
			d.logger.Debug("cache device snapshot", zap.Error(err))
		}
	}
	d.bind(ctx, gen, device.DeviceKey)
	return nil
}

// notFound is terminal: polling stops and the UI navigates back.
func (d *Detail) notFound(gen uint64) {
	committed := d.life.commit(gen, func() {
		d.rec.Reset()
		d.sink.SetDetailNotFound(d.id)
		d.sink.Notify(state.LevelError, "Device no longer exists")
	})
	if !committed {
		return
	}
	d.sched.Stop()
	if d.cache != nil {
		_ = d.cache.Delete(d.id)
	}
}

func (d *Detail) bind(ctx context.Context, gen uint64, key string) {
	if d.binding == nil || key == "" {
		return
	}
	d.bindMu.Lock()
	defer d.bindMu.Unlock()
	if !d.life.isCurrent(gen) {
		return
	}
	if d.binding.Key() == key {
		// Bound already. A channel that gave up reconnecting is dialled
		// again from the poll tick.
		if !d.hub.Connected() {
			if err := d.hub.Connect(ctx); err != nil {
				d.logger.Debug("live reconnect failed", zap.Error(err))
			}
		}
		return
	}
	if err := d.binding.Rebind(ctx, key, d.onLive(gen)); err != nil {
		d.logger.Warn("live subscribe failed", zap.String("device_key", key), zap.Error(err))
	}
}

func (d *Detail) onLive(gen uint64) live.Handler {
	return func(payload api.LivePayload) {
		d.life.commit(gen, func() {
			if d.rec.ApplyLive(payload) {
				d.sink.SetDetail(d.id, d.rec.View())
			}
		})
	}
}

// onDrop hides stale push values when the channel is lost: the view falls
// back to the last REST reading and the live indicator turns off.
func (d *Detail) onDrop(gen uint64) func() {
	return func() {
		d.life.commit(gen, func() {
			if d.rec.ClearLive() {
				d.sink.SetDetail(d.id, d.rec.View())
			}
		})
	}
}

func (d *Detail) publish(gen uint64) {
	d.life.commit(gen, func() {
		d.sink.SetDetail(d.id, d.rec.View())
	})
}

func (d *Detail) surface(gen uint64, err error) {
	d.life.commit(gen, func() {
		d.sink.Notify(state.LevelError, api.UserMessage(err))
	})
}

func (d *Detail) inform(gen uint64, msg string) {
	d.life.commit(gen, func() {
		d.sink.Notify(state.LevelInfo, msg)
	})
}

// ToggleActuator flips the window or fan. The new state shows at once and
// is reverted if the command fails.
func (d *Detail) ToggleActuator(ctx context.Context, actuator api.Actuator) error {
	gen, ok := d.life.current()
	if !ok {
		return ErrInactive
	}
	if _, has := d.rec.Snapshot(); !has {
		return ErrNoSnapshot
	}
	view := d.rec.View()
	target := !view.FanOn
	if actuator == api.ActuatorWindow {
		target = !view.WindowOpen
	}

	d.rec.PatchActuator(actuator, target)
	d.publish(gen)

	if err := d.backend.SetActuator(ctx, d.id, actuator, target); err != nil {
		d.rec.RevertActuator(actuator)
		d.publish(gen)
		reverted(d.sink, err)
		return fmt.Errorf("set %s: %w", actuator, err)
	}
	d.rec.ConfirmActuator(actuator)
	d.publish(gen)
	d.inform(gen, actuatorMessage(actuator, target))
	return nil
}

func actuatorMessage(actuator api.Actuator, on bool) string {
	switch {
	case actuator == api.ActuatorWindow && on:
		return "Window opened"
	case actuator == api.ActuatorWindow:
		return "Window closed"
	case on:
		return "Fan switched on"
	default:
		return "Fan switched off"
	}
}

// ResolveAlert marks alertID resolved optimistically and reverts on failure.
func (d *Detail) ResolveAlert(ctx context.Context, alertID int64) error {
	gen, ok := d.life.current()
	if !ok {
		return ErrInactive
	}
	d.rec.PatchAlertResolved(alertID)
	d.publish(gen)

	if _, err := d.backend.ResolveAlert(ctx, alertID); err != nil {
		d.rec.RevertAlert(alertID)
		d.publish(gen)
		reverted(d.sink, err)
		return fmt.Errorf("resolve alert %d: %w", alertID, err)
	}
	d.rec.ConfirmAlert(alertID)
	d.publish(gen)
	d.inform(gen, "Alert resolved")
	return nil
}

// Calibrate asks the device to recompute its baselines.
func (d *Detail) Calibrate(ctx context.Context) error {
	gen, ok := d.life.current()
	if !ok {
		return ErrInactive
	}
	if err := d.backend.Calibrate(ctx, d.id); err != nil {
		d.surface(gen, err)
		return fmt.Errorf("calibrate: %w", err)
	}
	d.inform(gen, "Calibration started")
	return nil
}

// SaveSettings writes device info and settings in parallel, then refreshes
// in the foreground. Either part failing is surfaced and nothing is
// refreshed.
func (d *Detail) SaveSettings(ctx context.Context, info api.DeviceUpdate, settings api.SettingsUpdate) error {
	gen, ok := d.life.current()
	if !ok {
		return ErrInactive
	}
	g, gctx := errgroup.WithContext(ctx)
	if !info.Empty() {
		g.Go(func() error {
			_, err := d.backend.UpdateDevice(gctx, d.id, info)
			return err
		})
	}
	if !settings.Empty() {
		g.Go(func() error {
			_, err := d.backend.UpdateSettings(gctx, d.id, settings)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		d.surface(gen, err)
		return fmt.Errorf("save settings: %w", err)
	}
	d.inform(gen, "Settings saved")
	return d.Refresh(ctx)
}
