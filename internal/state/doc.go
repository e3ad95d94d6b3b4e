// Package state provides thread-safe state shared between the view sessions
// and the UI.
//
// # Overview
//
// Sessions are producers: their poll tasks, live handlers and user actions
// write into a Store. The UI is the consumer: it takes a Snapshot on every
// tick and renders it.
//
//	Producers (sessions):               Consumer (UI):
//	┌──────────────────────┐            ┌────────────────┐
//	│ poll task / live msg │            │                │
//	│      ↓               │            │                │
//	│ store.SetDevices()   │───────────→│ store.Snapshot()│
//	│ store.SetDetail()    │  (mutex)   │      ↓         │
//	│ store.Notify()       │            │  render UI     │
//	└──────────────────────┘            └────────────────┘
//
// # Update Semantics
//
// Data setters replace one resource at a time. Fetch failures go through
// RecordFailure, which keeps the last good data and bumps a failure counter;
// IsOffline reports two or more consecutive failures. RecordSuccess resets it.
//
// Notices are the surfaced errors and confirmations of foreground actions.
// Only the newest maxNotices are kept.
//
// # Copying
//
// Snapshot deep-copies devices, notifications and the detail view so the UI
// can hold it across frames while sessions keep writing.
//
// The Store is safe to use as a zero value:
//
//	store := &state.Store{}
package state
