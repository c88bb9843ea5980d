// Package logtail reads the tail of shelf's log file for the activity page.
//
// Read keeps the last N lines in a ring buffer so a large file is scanned
// once with O(N) memory. A missing file is not an error and yields no lines.
//
// The client logs JSON through zap (see package logging). Parse decodes one
// such line into an Entry; anything that is not JSON is kept verbatim in
// Entry.Raw. Format renders an entry as one plain line with its fields
// sorted by key, and AtLeast filters by level.
package logtail
