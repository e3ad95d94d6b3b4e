// Package config loads the gasmon client configuration.
//
// # Resolution Order
//
//  1. Built-in defaults (see Default)
//  2. The TOML file: the path given on the command line, otherwise
//     ~/.config/gasmon/config.toml. A missing file is not an error.
//  3. GASMON_* environment variables, e.g. GASMON_API_URL, GASMON_WS_URL,
//     GASMON_LOG_LEVEL, GASMON_REQUEST_TIMEOUT.
//
// Empty or whitespace-only values at any layer leave the previous value in
// place. Paths starting with ~ are expanded against the user's home.
//
// When ws_url is unset it is derived from api_url: same host, ws or wss
// scheme, path /ws.
//
// # TOML Format
//
//	api_url = "https://gas.example.com/api"
//	ws_url = "wss://gas.example.com/ws"
//	request_timeout = "10s"
//	devices_poll = "15s"
//	detail_poll = "30s"
//	notifications_poll = "4s"
//	log_file = "~/.local/state/gasmon/gasmon.log"
//	log_level = "info"
//	log_format = "json"
//	token_file = "~/.config/gasmon/tokens.toml"
//	cache_dir = "~/.cache/gasmon"
//
// Durations use Go syntax and must be positive.
package config
