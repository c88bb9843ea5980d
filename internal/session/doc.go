// Package session owns the signed-in user.
//
// A single *Provider is created at startup and handed to the UI, the
// catalogue client (as its token source) and the mutation orchestrator.
// Every auth operation blocks until done, sets Session.Loading while it
// runs, and notifies subscribers synchronously on each change. A failed
// operation leaves the previous Session in place.
//
// Registration is the one multi-step flow: create the account, upload the
// avatar, set the profile. It is not transactional. When a later step fails
// the account exists and is signed in with ProfilePending set, and the
// returned error wraps ErrProfilePending; the user finishes with
// UpdateProfile.
//
// With a Store configured the refresh token and profile are persisted and
// Restore brings the session back on the next start.
package session
