// Package query caches the results of catalogue reads for the UI.
//
// # Overview
//
// Pages never call the catalogue client directly. They observe a Key in the
// Cache, render from the Entry they are handed, and get a fresh Entry each
// time it changes. Mutations invalidate keys afterwards, which makes
// observed pages reload without knowing who changed what.
//
// # Entries
//
// Each Entry moves through idle, loading, success and error:
//
//	idle ──observe──→ loading ──ok──→ success ──invalidate──→ success+Stale+Fetching
//	                     │                                        │
//	                     └──fail──→ error                ok ←─────┴──→ fail: error, Data kept
//
// A failed refetch keeps the last good Data and records Err beside it, the
// same way a poller keeps showing the last snapshot while the server is
// unreachable. A NotFound error or an empty list is a success with Empty
// set; Entry.View tells a page whether to show a spinner, an error, an
// empty state or the data.
//
// # Ordering
//
// Every request gets a generation number. When a request completes, its
// result is applied only if no newer generation has already been applied,
// so a slow early response never overwrites a fast later one. Ordinary
// reads of a key that is already loading join the running request through
// singleflight; refetches and invalidations start a new generation and
// cancel the one they replace.
//
// Requests run under the cache's own context with a per-request timeout.
// A page that stops observing only removes its callback.
//
// # Keys
//
//	AllBooks()        ["books"]
//	LatestBooks()     ["latestBooks"]
//	FeaturedBook()    ["featuredBook"]
//	Book(id)          ["bookData", id]
//	Comments(bookID)  ["comments", bookID]
//	MyBooks(identity) ["myBooks", identity]
//
// Invalidate matches by prefix, so Invalidate(AnyMyBooks) reaches every
// user's list.
//
// # Thread Safety
//
// All Cache methods are safe for concurrent use. Callbacks run outside the
// cache lock, possibly from request goroutines, and may see snapshots out of
// order; Entry.Version orders them.
package query
