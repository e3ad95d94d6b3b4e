package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/poll"
	"github.com/airwatch-iot/gasmon/internal/reconcile"
)

// maxNotices bounds the notice history kept for the status line.
const maxNotices = 20

// Level classifies a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notice is a user-facing message raised by a foreground operation.
type Notice struct {
	Level   Level
	Message string
	At      time.Time
}

// Detail is the merged view of the device currently open.
type Detail struct {
	DeviceID int64
	View     reconcile.DeviceView
	NotFound bool
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Devices    []api.Device
	HasDevices bool

	Detail    Detail
	HasDetail bool

	Notifications    []api.Notification
	HasNotifications bool
	// Unread is the badge count from the unread endpoint, used until the
	// notifications screen has loaded the full list.
	Unread int

	LiveConnected bool
	Notices       []Notice

	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
	FailedResource      poll.Resource
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// LatestNotice returns the newest notice, if any.
func (s Snapshot) LatestNotice() (Notice, bool) {
	if len(s.Notices) == 0 {
		return Notice{}, false
	}
	return s.Notices[len(s.Notices)-1], true
}

// UnreadCount counts unread notifications.
func (s Snapshot) UnreadCount() int {
	if s.HasNotifications {
		return reconcile.UnreadCount(s.Notifications)
	}
	return s.Unread
}

// Store coordinates concurrent updates to the snapshot. The zero value is
// ready to use.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
	now      func() time.Time
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// SetDevices replaces the device list.
func (s *Store) SetDevices(devices []api.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Devices = cloneDevices(devices)
	s.snapshot.HasDevices = true
}

// SetDetail stores the merged view for the open device.
func (s *Store) SetDetail(id int64, view reconcile.DeviceView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view.Device = view.Device.Clone()
	s.snapshot.Detail = Detail{DeviceID: id, View: view}
	s.snapshot.HasDetail = true
}

// SetDetailNotFound marks the open device as deleted on the server.
func (s *Store) SetDetailNotFound(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Detail = Detail{DeviceID: id, NotFound: true}
	s.snapshot.HasDetail = true
}

// ClearDetail forgets the detail view when the screen closes.
func (s *Store) ClearDetail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Detail = Detail{}
	s.snapshot.HasDetail = false
}

// SetNotifications replaces the notification list.
func (s *Store) SetNotifications(list []api.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Notifications = cloneNotifications(list)
	s.snapshot.HasNotifications = true
}

// SetUnread records the unread badge from the unread endpoint.
func (s *Store) SetUnread(unread []api.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Unread = reconcile.UnreadCount(unread)
}

// SetLiveConnected records the live channel state.
func (s *Store) SetLiveConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LiveConnected = connected
}

// RecordSuccess clears the failure streak after a successful fetch.
func (s *Store) RecordSuccess(resource poll.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = s.clock()
	s.snapshot.ConsecutiveFailures = 0
	s.snapshot.FailedResource = ""
}

// RecordFailure keeps the previous data but records err for visibility.
func (s *Store) RecordFailure(resource poll.Resource, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastError = err
	s.snapshot.LastUpdated = s.clock()
	s.snapshot.ConsecutiveFailures++
	s.snapshot.FailedResource = resource
}

// Notify appends a notice, dropping the oldest past maxNotices.
func (s *Store) Notify(level Level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Notices = append(s.snapshot.Notices, Notice{Level: level, Message: message, At: s.clock()})
	if over := len(s.snapshot.Notices) - maxNotices; over > 0 {
		s.snapshot.Notices = append([]Notice(nil), s.snapshot.Notices[over:]...)
	}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Devices = cloneDevices(s.snapshot.Devices)
	snap.Notifications = cloneNotifications(s.snapshot.Notifications)
	snap.Detail.View.Device = s.snapshot.Detail.View.Device.Clone()
	snap.Detail.View.Channels = append([]reconcile.ChannelView(nil), s.snapshot.Detail.View.Channels...)
	if len(s.snapshot.Notices) > 0 {
		snap.Notices = append([]Notice(nil), s.snapshot.Notices...)
	}
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneDevices(items []api.Device) []api.Device {
	if len(items) == 0 {
		return nil
	}
	dup := make([]api.Device, len(items))
	for i, d := range items {
		dup[i] = d.Clone()
	}
	return dup
}

func cloneNotifications(items []api.Notification) []api.Notification {
	if len(items) == 0 {
		return nil
	}
	dup := make([]api.Notification, len(items))
	copy(dup, items)
	return dup
}
