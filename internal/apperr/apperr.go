// Package apperr defines the error kinds every shelf component reports.
//
// Packages wrap low-level failures with fmt.Errorf internally and convert
// them into an *Error at their boundary, so the UI can decide between an
// inline field message, an empty view, or a notification without string
// matching.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation means local input checks failed; no request was sent.
	KindValidation
	// KindNetwork means the request never produced an HTTP response.
	KindNetwork
	// KindAuthorization means the caller lacks an identity or does not own the resource.
	KindAuthorization
	// KindNotFound means the resource does not exist. Views render it as empty.
	KindNotFound
	// KindUpstream means a remote service answered with a failure.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not found"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is the typed failure crossing package boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Fields maps a form field name to its message (validation only).
	Fields map[string]string
	// Status is the HTTP status for upstream and not-found errors.
	Status int
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case len(e.Fields) > 0:
		b.WriteString(e.fieldSummary())
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) fieldSummary() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return strings.Join(parts, "; ")
}

// Validation builds a field-scoped validation error.
func Validation(op string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Fields: fields}
}

// Network wraps a transport failure.
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: "network error", Err: err}
}

// Unauthorized reports a missing identity or ownership.
func Unauthorized(op, message string) *Error {
	return &Error{Kind: KindAuthorization, Op: op, Message: message}
}

// NotFound reports a missing resource.
func NotFound(op string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: "not found", Status: 404}
}

// Upstream reports a failure returned by a remote service.
func Upstream(op string, status int, message string) *Error {
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("server returned status %d", status)
	}
	return &Error{Kind: KindUpstream, Op: op, Message: message, Status: status}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldErrors returns the field messages of a validation error, or nil.
func FieldErrors(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		return e.Fields
	}
	return nil
}
