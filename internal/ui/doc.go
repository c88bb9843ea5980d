// Package ui is shelf's terminal interface, built on Bubble Tea.
//
// # Architecture
//
// Model is the single Bubble Tea model. It never calls the network from
// Update: reads go through the query cache, writes and auth actions run as
// tea.Cmds, and their results come back as messages.
//
// Cache watchers, session subscribers and the mutation notifier all fire
// on other goroutines (or synchronously inside a call Update made). They
// forward into an Inbox, a non-blocking queue the program drains one
// message at a time, so a callback can never deadlock the event loop.
//
// # Files
//
//   - ui.go: Model, message types and Run
//   - pages.go: navigation, the route guard and query observers
//   - input.go: key dispatch per page
//   - forms.go: book and auth forms, mutation and auth results
//   - detail.go: the book page, comments and delete confirmations
//   - books.go, render.go: page rendering
//   - activity.go: the log viewer
//   - notices.go: transient notifications
//   - inbox.go, modal.go, keys.go, help.go, theme.go: support
//
// # Pages
//
// Each route observes the queries it shows (see pageKeys). Entering a page
// starts the missing observers and stops the rest, so only visible data is
// refetched when it goes stale. Entries carry a version and older snapshots
// are dropped.
//
// Protected pages are re-evaluated on every navigation and every session
// change. While the session is restoring they show a checking state; a
// signed-out user is sent to the sign-in page, which returns to the
// original page once sign-in succeeds.
//
// # Preferences
//
// The theme (T) and the list sort order (s) persist to the preferences
// file.
package ui
