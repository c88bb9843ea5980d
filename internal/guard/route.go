package guard

import (
	"github.com/five82/shelf/internal/route"
	"github.com/five82/shelf/internal/session"
)

// Access is the outcome of entering a page.
type Access int

const (
	Checking Access = iota
	Authorized
	Unauthorized
)

func (a Access) String() string {
	switch a {
	case Checking:
		return "checking"
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Decision says what to do with a navigation.
type Decision struct {
	Access Access
	// Redirect is the sign-in path (with from) when Access is Unauthorized.
	Redirect string
	// From is the originally requested path.
	From string
}

// Evaluate decides whether r may be shown for s. Public pages are always
// authorized. Protected pages wait while the session is loading and
// redirect to sign-in without an identity. Callers re-evaluate on every
// navigation and every session change.
func Evaluate(s session.Session, r route.Route) Decision {
	from := r.String()
	switch {
	case !r.Protected():
		return Decision{Access: Authorized, From: from}
	case s.Loading:
		return Decision{Access: Checking, From: from}
	case s.SignedIn():
		return Decision{Access: Authorized, From: from}
	default:
		return Decision{Access: Unauthorized, Redirect: route.LoginPath(from), From: from}
	}
}
