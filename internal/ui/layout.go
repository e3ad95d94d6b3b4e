package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which optional device
	// columns are hidden.
	LayoutCompactWidth = 100

	// LayoutWideWidth is the minimum width to show the last-seen column.
	LayoutWideWidth = 120
)

// Log display limits.
const (
	// LogBufferLimit is the maximum number of log lines read from the tail.
	LogBufferLimit = 2000
)

// Timing constants.
const (
	// DefaultUIInterval is the default UI refresh interval.
	DefaultUIInterval = time.Second

	// NoticeTTL is how long a notice stays on the status line.
	NoticeTTL = 8 * time.Second
)
