package api

import (
	"sort"
	"time"
)

const backendTimestampLayout = "2006-01-02 15:04:05"

// DeviceStatus is the connectivity state reported by the backend.
type DeviceStatus string

const (
	StatusOnline      DeviceStatus = "ONLINE"
	StatusOffline     DeviceStatus = "OFFLINE"
	StatusMaintenance DeviceStatus = "MAINTENANCE"
)

// GasChannel names one of the MQ gas sensors fitted to a device.
type GasChannel string

const (
	ChannelMQ2 GasChannel = "mq2"
	ChannelMQ3 GasChannel = "mq3"
	ChannelMQ5 GasChannel = "mq5"
	ChannelMQ9 GasChannel = "mq9"
)

// GasChannels lists every channel in display order.
var GasChannels = []GasChannel{ChannelMQ2, ChannelMQ3, ChannelMQ5, ChannelMQ9}

// Label returns the short uppercase label used on screen.
func (c GasChannel) Label() string {
	switch c {
	case ChannelMQ2:
		return "MQ2"
	case ChannelMQ3:
		return "MQ3"
	case ChannelMQ5:
		return "MQ5"
	case ChannelMQ9:
		return "MQ9"
	default:
		return string(c)
	}
}

// Gas describes what the channel's sensor detects.
func (c GasChannel) Gas() string {
	switch c {
	case ChannelMQ2:
		return "LPG / smoke"
	case ChannelMQ3:
		return "Alcohol"
	case ChannelMQ5:
		return "Methane"
	case ChannelMQ9:
		return "Carbon monoxide"
	default:
		return ""
	}
}

// Actuator names a controllable output on the device.
type Actuator string

const (
	ActuatorWindow Actuator = "window"
	ActuatorFan    Actuator = "fan"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Device mirrors the device snapshot returned by /devices and /devices/{id}.
type Device struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	DeviceKey   string          `json:"deviceKey"`
	Status      DeviceStatus    `json:"status"`
	Location    *string         `json:"location"`
	LastSeen    string          `json:"lastSeen"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
	IsActive    bool            `json:"isActive"`
	WindowOpen  bool            `json:"windowStatus"`
	FanOn       bool            `json:"fanStatus"`
	Settings    *DeviceSettings `json:"deviceSettings"`
	Readings    []SensorReading `json:"sensorData"`
	Alerts      []Alert         `json:"alerts"`
}

// LatestReading returns the newest historical reading, if any.
func (d Device) LatestReading() *SensorReading {
	if len(d.Readings) == 0 {
		return nil
	}
	r := d.Readings[0]
	return &r
}

// ActiveAlerts returns alerts that are not resolved yet.
func (d Device) ActiveAlerts() []Alert {
	var out []Alert
	for _, a := range d.Alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out
}

// ParsedLastSeen returns the parsed LastSeen timestamp.
func (d Device) ParsedLastSeen() time.Time {
	return parseTime(d.LastSeen)
}

// Clone returns a deep copy so callers can patch it freely.
func (d Device) Clone() Device {
	dup := d
	if d.Settings != nil {
		s := *d.Settings
		dup.Settings = &s
	}
	if d.Readings != nil {
		dup.Readings = append([]SensorReading(nil), d.Readings...)
	}
	if d.Alerts != nil {
		dup.Alerts = append([]Alert(nil), d.Alerts...)
	}
	return dup
}

// SortReadings orders readings newest first. The backend usually does this
// already but polling code relies on the head being the latest sample.
func (d *Device) SortReadings() {
	sort.SliceStable(d.Readings, func(i, j int) bool {
		return d.Readings[i].ParsedCreatedAt().After(d.Readings[j].ParsedCreatedAt())
	})
}

// DeviceSettings holds per-channel thresholds, calibration baselines and toggles.
type DeviceSettings struct {
	ID                   int64    `json:"id"`
	DeviceID             int64    `json:"deviceId"`
	MQ2ThresholdPPM      *float64 `json:"mq2ThresholdPpm"`
	MQ3ThresholdPPM      *float64 `json:"mq3ThresholdPpm"`
	MQ5ThresholdPPM      *float64 `json:"mq5ThresholdPpm"`
	MQ9ThresholdPPM      *float64 `json:"mq9ThresholdPpm"`
	MQ2R0                *float64 `json:"mq2R0"`
	MQ3R0                *float64 `json:"mq3R0"`
	MQ5R0                *float64 `json:"mq5R0"`
	MQ9R0                *float64 `json:"mq9R0"`
	BuzzerEnabled        bool     `json:"buzzerEnabled"`
	LEDEnabled           bool     `json:"ledEnabled"`
	NotifyUser           bool     `json:"notifyUser"`
	NotificationCooldown int      `json:"notificationCooldown"`
	AutoShutoff          bool     `json:"autoShutoff"`
	UpdatedAt            string   `json:"updatedAt"`
}

// Threshold returns the configured ppm threshold for a channel.
func (s *DeviceSettings) Threshold(ch GasChannel) *float64 {
	if s == nil {
		return nil
	}
	switch ch {
	case ChannelMQ2:
		return s.MQ2ThresholdPPM
	case ChannelMQ3:
		return s.MQ3ThresholdPPM
	case ChannelMQ5:
		return s.MQ5ThresholdPPM
	case ChannelMQ9:
		return s.MQ9ThresholdPPM
	}
	return nil
}

// SensorReading is one immutable historical sample.
type SensorReading struct {
	ID             int64    `json:"id"`
	DeviceID       int64    `json:"deviceId"`
	MQ2PPM         *float64 `json:"mq2Ppm"`
	MQ3PPM         *float64 `json:"mq3Ppm"`
	MQ5PPM         *float64 `json:"mq5Ppm"`
	MQ9PPM         *float64 `json:"mq9Ppm"`
	GasPPM         *float64 `json:"gasConcentrationPpm"`
	Voltage        *float64 `json:"voltage"`
	Temperature    *float64 `json:"temperature"`
	Humidity       *float64 `json:"humidity"`
	ThresholdCross bool     `json:"thresholdPassed"`
	ReadAt         string   `json:"readAt"`
	CreatedAt      string   `json:"createdAt"`
}

// Channel returns the reading's concentration for ch. Older firmware only
// reports gasConcentrationPpm, which is the MQ2 sensor.
func (r SensorReading) Channel(ch GasChannel) *float64 {
	switch ch {
	case ChannelMQ2:
		if r.MQ2PPM != nil {
			return r.MQ2PPM
		}
		return r.GasPPM
	case ChannelMQ3:
		return r.MQ3PPM
	case ChannelMQ5:
		return r.MQ5PPM
	case ChannelMQ9:
		return r.MQ9PPM
	}
	return nil
}

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (r SensorReading) ParsedCreatedAt() time.Time {
	return parseTime(r.CreatedAt)
}

// GasSample is one channel of a live payload.
type GasSample struct {
	PPM *float64 `json:"ppm"`
}

// LivePayload is the body of a sensorUpdate push event. It is never stored in
// the readings history.
type LivePayload struct {
	DeviceKey   string     `json:"deviceKey"`
	MQ2         *GasSample `json:"mq2"`
	MQ3         *GasSample `json:"mq3"`
	MQ5         *GasSample `json:"mq5"`
	MQ9         *GasSample `json:"mq9"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	Timestamp   string     `json:"timestamp"`
}

// Channel returns the pushed concentration for ch, nil when absent.
func (p *LivePayload) Channel(ch GasChannel) *float64 {
	if p == nil {
		return nil
	}
	var sample *GasSample
	switch ch {
	case ChannelMQ2:
		sample = p.MQ2
	case ChannelMQ3:
		sample = p.MQ3
	case ChannelMQ5:
		sample = p.MQ5
	case ChannelMQ9:
		sample = p.MQ9
	}
	if sample == nil {
		return nil
	}
	return sample.PPM
}

// Alert belongs to exactly one device. Resolution never reverts.
type Alert struct {
	ID          int64    `json:"id"`
	DeviceID    int64    `json:"deviceId"`
	Type        string   `json:"alertType"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	GasValuePPM *float64 `json:"gasValuePpm"`
	Voltage     *float64 `json:"voltageValue"`
	Resolved    bool     `json:"resolved"`
	ResolvedAt  *string  `json:"resolvedAt"`
	ResolvedBy  *int64   `json:"resolvedBy"`
	CreatedAt   string   `json:"createdAt"`
}

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (a Alert) ParsedCreatedAt() time.Time {
	return parseTime(a.CreatedAt)
}

// Notification wraps zero or one alert for the user.
type Notification struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	AlertID   *int64 `json:"alertId"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Read      bool   `json:"read"`
	Sent      bool   `json:"sent"`
	CreatedAt string `json:"createdAt"`
	Alert     *Alert `json:"alert"`
}

// ParsedCreatedAt returns the parsed CreatedAt timestamp.
func (n Notification) ParsedCreatedAt() time.Time {
	return parseTime(n.CreatedAt)
}

// DeviceCreate is the body of POST /devices.
type DeviceCreate struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
	Location    string `json:"location,omitempty" validate:"max=200"`
}

// DeviceUpdate is the body of PATCH /devices/{id}.
type DeviceUpdate struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Location    *string `json:"location,omitempty" validate:"omitempty,max=200"`
}

// SettingsUpdate is the body of PATCH /devices/{id}/settings.
type SettingsUpdate struct {
	MQ2ThresholdPPM *float64 `json:"mq2ThresholdPpm,omitempty" validate:"omitempty,gt=0"`
	MQ3ThresholdPPM *float64 `json:"mq3ThresholdPpm,omitempty" validate:"omitempty,gt=0"`
	MQ5ThresholdPPM *float64 `json:"mq5ThresholdPpm,omitempty" validate:"omitempty,gt=0"`
	MQ9ThresholdPPM *float64 `json:"mq9ThresholdPpm,omitempty" validate:"omitempty,gt=0"`
	MQ2R0           *float64 `json:"mq2R0,omitempty" validate:"omitempty,gt=0"`
	MQ3R0           *float64 `json:"mq3R0,omitempty" validate:"omitempty,gt=0"`
	MQ5R0           *float64 `json:"mq5R0,omitempty" validate:"omitempty,gt=0"`
	MQ9R0           *float64 `json:"mq9R0,omitempty" validate:"omitempty,gt=0"`
	BuzzerEnabled   *bool    `json:"buzzerEnabled,omitempty"`
	LEDEnabled      *bool    `json:"ledEnabled,omitempty"`
	NotifyUser      *bool    `json:"notifyUser,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u DeviceUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Location == nil
}

// Empty reports whether the update changes nothing.
func (u SettingsUpdate) Empty() bool {
	return u == SettingsUpdate{}
}

// ActuatorCommand is the body of POST /devices/{id}/actuator.
type ActuatorCommand struct {
	Actuator Actuator `json:"actuator" validate:"oneof=window fan"`
	Status   bool     `json:"status"`
}

// User is the account returned alongside a token pair.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}

// AuthResponse mirrors /auth/login and /auth/refresh.
type AuthResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(backendTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
