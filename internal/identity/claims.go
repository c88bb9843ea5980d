package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the user fields carried in a provider ID token.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	UserID  string `json:"user_id"`
	jwt.RegisteredClaims
}

// ParseClaims reads the claims of idToken without verifying its signature.
// The catalogue server verifies tokens; the client only needs the profile.
func ParseClaims(idToken string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return Claims{}, fmt.Errorf("parse id token: %w", err)
	}
	return claims, nil
}

// withClaims fills fields the response omitted from the ID token.
func withClaims(u User) User {
	if u.IDToken == "" {
		return u
	}
	claims, err := ParseClaims(u.IDToken)
	if err != nil {
		return u
	}
	if u.UID == "" {
		u.UID = claims.UserID
		if u.UID == "" {
			u.UID = claims.Subject
		}
	}
	if u.Email == "" {
		u.Email = claims.Email
	}
	if u.DisplayName == "" {
		u.DisplayName = claims.Name
	}
	if u.PhotoURL == "" {
		u.PhotoURL = claims.Picture
	}
	if u.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
		u.ExpiresAt = claims.ExpiresAt.Time
	}
	return u
}
