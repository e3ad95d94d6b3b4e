// Package ui is the gasmon terminal interface, built on Bubble Tea.
//
// # Screens
//
//   - Devices: the account's devices with status, active alert count and
//     actuator state. enter opens the detail screen; a adds a device.
//   - Device detail: merged live and historical readings per gas channel,
//     temperature, humidity, actuators and active alerts. Actions toggle the
//     window or fan, resolve an alert, start a calibration and edit settings
//     in a modal.
//   - Notifications: grouped into Today, Yesterday and Older, with mark-read
//     actions and resolution of the alert a notification points at.
//   - Logs: the tail of gasmon's own log file with a minimum level filter.
//
// # Sessions
//
// Each data screen is backed by a view session from internal/session. The
// model activates the session when its screen gains focus and deactivates it
// when focus moves, so only the visible screen polls and only the open device
// holds a live subscription. Sessions write into a state.Store; the model
// copies a Snapshot on every tick and renders from that copy alone.
//
// User actions run as tea.Cmds so the update loop never blocks on the
// network. Their outcome reaches the screen through the store: optimistic
// changes first, then the confirmed or reverted state and a notice on the
// status line.
package ui
