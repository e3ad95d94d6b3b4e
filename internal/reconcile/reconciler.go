package reconcile

import (
	"sync"

	"github.com/airwatch-iot/gasmon/internal/api"
)

type patchState struct {
	value     bool
	confirmed bool
}

// Reconciler holds the latest snapshot, the latest live payload and the
// optimistic patches for one device, and merges them on demand.
//
// Pending patches (request still in flight) win over any snapshot. Once the
// request succeeds the patch is confirmed and the next snapshot takes over.
type Reconciler struct {
	mu        sync.Mutex
	snapshot  *api.Device
	live      *api.LivePayload
	actuators map[api.Actuator]patchState
	alerts    map[int64]patchState
}

// New returns an empty Reconciler.
func New() *Reconciler {
	return &Reconciler{
		actuators: make(map[api.Actuator]patchState),
		alerts:    make(map[int64]patchState),
	}
}

// ApplySnapshot replaces the REST snapshot and drops confirmed patches.
func (r *Reconciler) ApplySnapshot(device api.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dup := device.Clone()
	if r.snapshot != nil && r.snapshot.DeviceKey != dup.DeviceKey {
		// Payloads for the old key no longer describe this device.
		r.live = nil
	}
	r.snapshot = &dup

	for a, p := range r.actuators {
		if p.confirmed {
			delete(r.actuators, a)
		}
	}
	resolved := make(map[int64]bool, len(dup.Alerts))
	for _, a := range dup.Alerts {
		resolved[a.ID] = a.Resolved
	}
	for id, p := range r.alerts {
		if p.confirmed || resolved[id] {
			delete(r.alerts, id)
		}
	}
}

// ApplyLive records a push payload. Payloads for another channel key are
// ignored and reported as not applied.
func (r *Reconciler) ApplyLive(payload api.LivePayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil && payload.DeviceKey != "" && payload.DeviceKey != r.snapshot.DeviceKey {
		return false
	}
	dup := payload
	r.live = &dup
	return true
}

// ClearLive forgets the last push payload, e.g. when the channel drops. It
// reports whether there was one.
func (r *Reconciler) ClearLive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	had := r.live != nil
	r.live = nil
	return had
}

// PatchActuator sets an optimistic actuator value and returns the value it
// replaced, for display on revert.
func (r *Reconciler) PatchActuator(actuator api.Actuator, value bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.actuatorLocked(actuator)
	r.actuators[actuator] = patchState{value: value}
	return prev
}

// ConfirmActuator marks the actuator patch as accepted by the backend.
func (r *Reconciler) ConfirmActuator(actuator api.Actuator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.actuators[actuator]; ok {
		p.confirmed = true
		r.actuators[actuator] = p
	}
}

// RevertActuator drops the actuator patch so the snapshot value shows again.
func (r *Reconciler) RevertActuator(actuator api.Actuator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actuators, actuator)
}

// PatchAlertResolved marks an alert resolved ahead of the backend.
func (r *Reconciler) PatchAlertResolved(alertID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alertID] = patchState{value: true}
}

// ConfirmAlert marks the resolution as accepted by the backend.
func (r *Reconciler) ConfirmAlert(alertID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.alerts[alertID]; ok {
		p.confirmed = true
		r.alerts[alertID] = p
	}
}

// RevertAlert drops the optimistic resolution. Callers must surface the
// failure to the user.
func (r *Reconciler) RevertAlert(alertID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.alerts, alertID)
}

// Snapshot returns a copy of the latest REST snapshot.
func (r *Reconciler) Snapshot() (api.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot == nil {
		return api.Device{}, false
	}
	return r.snapshot.Clone(), true
}

// View merges the current inputs.
func (r *Reconciler) View() DeviceView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Merge(r.snapshot, r.live, r.patchLocked())
}

// Reset forgets everything; used when the device no longer exists.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = nil
	r.live = nil
	r.actuators = make(map[api.Actuator]patchState)
	r.alerts = make(map[int64]patchState)
}

func (r *Reconciler) patchLocked() Patch {
	var p Patch
	if len(r.actuators) > 0 {
		p.Actuators = make(map[api.Actuator]bool, len(r.actuators))
		for a, s := range r.actuators {
			p.Actuators[a] = s.value
		}
	}
	if len(r.alerts) > 0 {
		p.ResolvedAlerts = make(map[int64]bool, len(r.alerts))
		for id, s := range r.alerts {
			p.ResolvedAlerts[id] = s.value
		}
	}
	return p
}

func (r *Reconciler) actuatorLocked(actuator api.Actuator) bool {
	if p, ok := r.actuators[actuator]; ok {
		return p.value
	}
	if r.snapshot == nil {
		return false
	}
	switch actuator {
	case api.ActuatorWindow:
		return r.snapshot.WindowOpen
	case api.ActuatorFan:
		return r.snapshot.FanOn
	}
	return false
}
