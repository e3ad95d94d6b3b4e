// Package app is the composition root for gasmon.
//
// Run wires the pieces together in this order:
//
//  1. config.Load reads ~/.config/gasmon/config.toml and GASMON_* overrides.
//  2. logging.New opens the log file; the terminal belongs to the UI.
//  3. auth.FileStore holds the token pair and api.Client uses it. With
//     -password the client logs in first, otherwise a stored token is
//     required.
//  4. cache.Open opens the badger snapshot cache. Failure is logged and the
//     app runs without it.
//  5. live.WSChannel and live.Hub carry push updates. The connection state is
//     mirrored into the store for the header indicator.
//  6. The device list, notifications and per-device detail sessions share
//     one poll.Guard and write into one state.Store.
//  7. ui.Run starts the TUI and blocks until the user quits or the context
//     is cancelled.
//
// Errors before the UI starts (bad config, unwritable log file, rejected
// login) are returned from Run. Once the UI is up, fetch failures are
// handled by the sessions and shown on screen; they never end the program.
package app
