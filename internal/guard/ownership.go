// Package guard holds the client-side access checks: resource ownership and
// page access. Both are advisory; the server decides.
package guard

import (
	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/session"
)

// OwnsBook reports whether the signed-in user created b.
func OwnsBook(s session.Session, b catalog.Book) bool {
	return owns(s, b.OwnerIdentity)
}

// OwnsComment reports whether the signed-in user wrote c.
func OwnsComment(s session.Session, c catalog.Comment) bool {
	return owns(s, c.AuthorIdentity)
}

func owns(s session.Session, owner string) bool {
	return s.Identity != "" && s.Identity == owner
}
