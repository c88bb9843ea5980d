package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which list rows drop the
	// author and genre columns.
	LayoutCompactWidth = 100

	// LayoutWideWidth is the minimum width for the side-by-side home page.
	LayoutWideWidth = 140
)

// Fixed rows around the page body: header, rule, notice line, footer.
const chromeHeight = 4

// LogBufferLimit is the maximum number of log lines read for the activity page.
const LogBufferLimit = 2000

// DefaultUIInterval is the UI tick: notice expiry and activity follow.
const DefaultUIInterval = time.Second
