// Package app is the composition root for shelf.
//
// Run loads config, opens the log file and the session store, builds the
// clients (identity, image host, catalogue), the session provider, the query
// cache and the mutation orchestrator, then hands them to the UI.
//
// Around the UI it starts three background jobs:
//
//   - session restore, so a protected start page passes through the
//     checking state instead of bouncing to login
//   - a home page prefetch (latest, featured and all books fetched
//     concurrently with errgroup)
//   - the refresher, which revalidates observed queries every
//     refresh_every and doubles the wait after each consecutive failure,
//     up to two minutes
//
// WatchIdentity invalidates the per-user "myBooks" queries whenever the
// signed-in identity changes.
//
// Fatal errors (returned from Run) are config, logging and store setup.
// Everything after that is logged and surfaced in the UI.
package app
