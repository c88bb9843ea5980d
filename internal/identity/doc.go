// Package identity is the client for the hosted identity provider.
//
// It covers email/password sign-up and sign-in, social sign-in with an
// external provider token, profile updates and token refresh. Responses are
// completed from the ID token's claims, so a refreshed session still knows
// the user's email and display name. Errors come back as *apperr.Error:
// bad credentials and expired sessions are KindAuthorization, rejected
// account changes (email taken, weak password) are KindUpstream.
package identity
