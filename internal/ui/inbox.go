package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/mutation"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/session"
)

// Inbox carries callbacks from other goroutines into the Bubble Tea loop.
// Send never blocks, so cache and session callbacks may fire while the UI
// goroutine is itself calling into them.
type Inbox struct {
	mu     sync.Mutex
	queue  []tea.Msg
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

var _ mutation.Notifier = (*Inbox)(nil)

// NewInbox returns an empty inbox. size preallocates the queue.
func NewInbox(size int) *Inbox {
	if size < 0 {
		size = 0
	}
	return &Inbox{
		queue: make([]tea.Msg, 0, size),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Send queues msg for the UI. Messages sent after Close are dropped.
func (i *Inbox) Send(msg tea.Msg) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.queue = append(i.queue, msg)
	i.mu.Unlock()
	select {
	case i.ready <- struct{}{}:
	default:
	}
}

// Notify implements mutation.Notifier.
func (i *Inbox) Notify(r mutation.Result) { i.Send(resultMsg(r)) }

// Entry forwards a query entry. It has the shape of a query.Cache watcher.
func (i *Inbox) Entry(e query.Entry) { i.Send(entryMsg(e)) }

// Session forwards a session change. It has the shape of a session
// subscriber.
func (i *Inbox) Session(s session.Session) { i.Send(sessionMsg(s)) }

// Close wakes a pending Wait and drops later messages.
func (i *Inbox) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	close(i.done)
}

// Len returns the number of queued messages.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queue)
}

// Wait returns a command that delivers the next queued message wrapped in
// an inboxMsg. It yields nil once the inbox is closed and drained.
func (i *Inbox) Wait() tea.Cmd {
	return func() tea.Msg {
		for {
			i.mu.Lock()
			if len(i.queue) > 0 {
				msg := i.queue[0]
				i.queue[0] = nil
				i.queue = i.queue[1:]
				i.mu.Unlock()
				return inboxMsg{msg: msg}
			}
			closed := i.closed
			i.mu.Unlock()
			if closed {
				return nil
			}
			select {
			case <-i.ready:
			case <-i.done:
			}
		}
	}
}
