package ui

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/five82/shelf/internal/apperr"
	"github.com/five82/shelf/internal/mutation"
)

// noticeTTL is how long a notification stays on screen.
const noticeTTL = 6 * time.Second

const maxNotices = 4

type noticeKind int

const (
	noticeInfo noticeKind = iota
	noticeSuccess
	noticeError
)

type notice struct {
	kind    noticeKind
	text    string
	expires time.Time
}

func (m *Model) pushNotice(kind noticeKind, text string) {
	m.notices = append(m.notices, notice{kind: kind, text: text, expires: time.Now().Add(noticeTTL)})
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *Model) expireNotices(now time.Time) {
	kept := m.notices[:0]
	for _, n := range m.notices {
		if now.Before(n.expires) {
			kept = append(kept, n)
		}
	}
	m.notices = kept
}

// handleResult turns a mutation outcome into a notification.
func (m *Model) handleResult(r mutation.Result) {
	if r.Err != nil {
		m.logger.Warn("mutation failed", zap.Stringer("op", r.Op), zap.String("id", r.ID), zap.Error(r.Err))
		m.pushNotice(noticeError, errorText(r.Err))
		return
	}
	m.pushNotice(noticeSuccess, successText(r.Op))
}

func successText(op mutation.Operation) string {
	switch op {
	case mutation.CreateBook:
		return "Book added"
	case mutation.UpdateBook:
		return "Book updated"
	case mutation.DeleteBook:
		return "Book deleted"
	case mutation.CreateComment:
		return "Comment posted"
	case mutation.DeleteComment:
		return "Comment deleted"
	default:
		return "Done"
	}
}

// errorText is the user-facing line for err.
func errorText(err error) string {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case apperr.KindNetwork:
		return "Network error, check your connection"
	case apperr.KindAuthorization:
		if e.Message != "" {
			return e.Message
		}
		return "You are not allowed to do that"
	case apperr.KindNotFound:
		return "Not found"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}
