// Package logtail reads the tail of the client's own log file for the logs
// screen.
//
// # Reading
//
// Read extracts the last maxLines from a file in one pass with a ring buffer
// of maxLines entries, so memory stays O(maxLines) whatever the file size:
//
//	lines, err := logtail.Read(cfg.LogFile, 400)
//
// A missing file is not an error; it simply has no lines yet.
//
// # Parsing
//
// The logger writes one JSON object per line. Parse turns a line into an
// Entry with time, level, message and the remaining fields as sorted
// key=value pairs. Fields that repeat on every line (service_name, hostname,
// caller) are dropped. Non-JSON lines are kept verbatim as info.
//
// ParseAll applies a minimum level, which backs the level filter on the
// logs screen.
package logtail
