package reconcile

import (
	"strconv"

	"github.com/airwatch-iot/gasmon/internal/api"
)

// Placeholder is shown for a field with no live or historical value.
const Placeholder = "—"

// ThresholdSentinel stands in for an unset threshold. It is high enough that
// a missing configuration never raises the alarm display.
const ThresholdSentinel = 999999.0

// Source says where a displayed value came from.
type Source int

const (
	SourceNone Source = iota
	SourceHistory
	SourceLive
)

func (s Source) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceHistory:
		return "history"
	default:
		return "none"
	}
}

// Reading is one displayable value with its provenance.
type Reading struct {
	Value  *float64
	Source Source
}

// Present reports whether the reading carries a value.
func (r Reading) Present() bool {
	return r.Value != nil
}

// Format renders the value with the given decimals or the placeholder.
func (r Reading) Format(decimals int) string {
	if r.Value == nil {
		return Placeholder
	}
	return strconv.FormatFloat(*r.Value, 'f', decimals, 64)
}

// ChannelView is the merged state of one gas channel.
type ChannelView struct {
	Channel   api.GasChannel
	Reading   Reading
	Threshold float64
	// Configured is false when Threshold is the sentinel.
	Configured bool
	Exceeded   bool
}

// Patch carries optimistic local overrides applied on top of a snapshot.
type Patch struct {
	Actuators      map[api.Actuator]bool
	ResolvedAlerts map[int64]bool
}

// Empty reports whether the patch overrides nothing.
func (p Patch) Empty() bool {
	return len(p.Actuators) == 0 && len(p.ResolvedAlerts) == 0
}

// DeviceView is the view-model for one device.
type DeviceView struct {
	// Device is the snapshot with optimistic patches applied. Zero when no
	// snapshot has arrived yet.
	Device      api.Device
	HasSnapshot bool

	Channels    []ChannelView
	Temperature Reading
	Humidity    Reading

	// Live is true once a push payload has been merged.
	Live bool
	// HasReading is true when either source provided any sample.
	HasReading bool

	WindowOpen bool
	FanOn      bool
}

// Channel returns the view for ch.
func (v DeviceView) Channel(ch api.GasChannel) ChannelView {
	for _, c := range v.Channels {
		if c.Channel == ch {
			return c
		}
	}
	return ChannelView{Channel: ch, Threshold: ThresholdSentinel}
}

// AnyExceeded reports whether any channel is above its threshold.
func (v DeviceView) AnyExceeded() bool {
	for _, c := range v.Channels {
		if c.Exceeded {
			return true
		}
	}
	return false
}

// ActiveAlerts returns unresolved alerts after patches.
func (v DeviceView) ActiveAlerts() []api.Alert {
	return v.Device.ActiveAlerts()
}

// Merge builds the view-model from the latest snapshot, the latest live
// payload and any optimistic patch. Every field is resolved on its own:
// live value, else the head reading's value, else the placeholder.
// Merge does not modify its inputs.
func Merge(snapshot *api.Device, live *api.LivePayload, patch Patch) DeviceView {
	var view DeviceView
	var head *api.SensorReading
	var settings *api.DeviceSettings

	if snapshot != nil {
		view.Device = snapshot.Clone()
		view.HasSnapshot = true
		head = snapshot.LatestReading()
		settings = snapshot.Settings
		view.WindowOpen = snapshot.WindowOpen
		view.FanOn = snapshot.FanOn
	}

	for _, ch := range api.GasChannels {
		var historical *float64
		if head != nil {
			historical = head.Channel(ch)
		}
		reading := Pick(live.Channel(ch), historical)
		threshold := settings.Threshold(ch)
		cv := ChannelView{
			Channel:    ch,
			Reading:    reading,
			Threshold:  ThresholdSentinel,
			Configured: threshold != nil,
			Exceeded:   Exceeded(reading.Value, threshold),
		}
		if threshold != nil {
			cv.Threshold = *threshold
		}
		view.Channels = append(view.Channels, cv)
	}

	var liveTemp, liveHum, histTemp, histHum *float64
	if live != nil {
		liveTemp, liveHum = live.Temperature, live.Humidity
	}
	if head != nil {
		histTemp, histHum = head.Temperature, head.Humidity
	}
	view.Temperature = Pick(liveTemp, histTemp)
	view.Humidity = Pick(liveHum, histHum)

	view.Live = live != nil
	view.HasReading = live != nil || head != nil

	if v, ok := patch.Actuators[api.ActuatorWindow]; ok {
		view.WindowOpen = v
	}
	if v, ok := patch.Actuators[api.ActuatorFan]; ok {
		view.FanOn = v
	}
	view.Device.WindowOpen = view.WindowOpen
	view.Device.FanOn = view.FanOn

	for i, a := range view.Device.Alerts {
		if patch.ResolvedAlerts[a.ID] {
			view.Device.Alerts[i].Resolved = true
		}
	}
	return view
}

// Pick applies the per-field precedence: live, then history, then nothing.
func Pick(live, history *float64) Reading {
	if live != nil {
		v := *live
		return Reading{Value: &v, Source: SourceLive}
	}
	if history != nil {
		v := *history
		return Reading{Value: &v, Source: SourceHistory}
	}
	return Reading{Source: SourceNone}
}

// Exceeded reports whether value is strictly above threshold. An unset
// threshold falls back to ThresholdSentinel; a missing value never exceeds.
func Exceeded(value, threshold *float64) bool {
	if value == nil {
		return false
	}
	limit := ThresholdSentinel
	if threshold != nil {
		limit = *threshold
	}
	return *value > limit
}
