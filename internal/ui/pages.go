package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/guard"
	"github.com/five82/shelf/internal/prefs"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/route"
	"github.com/five82/shelf/internal/session"
)

const maxHistory = 50

// open switches to path. With push the current page is remembered for
// Back. Protected pages the session cannot see redirect to sign-in; the
// redirect itself is not pushed.
func (m *Model) open(path string, push bool) error {
	r, err := route.Parse(path)
	if err != nil {
		return err
	}
	if push && m.route.Path != "" && m.route.String() != r.String() {
		m.history = append(m.history, m.route.String())
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
	}
	m.route = r
	m.cursor = 0
	m.enterPage()
	m.applyAccess()
	return nil
}

// navigate opens path and returns the page's startup command.
func (m *Model) navigate(path string) tea.Cmd {
	if err := m.open(path, true); err != nil {
		m.logger.Warn("navigation failed", zap.String("path", path), zap.Error(err))
		m.pushNotice(noticeError, "No such page: "+path)
		return nil
	}
	return m.pageCmd()
}

// back returns to the previous page, or home when there is none.
func (m *Model) back() tea.Cmd {
	for len(m.history) > 0 {
		prev := m.history[len(m.history)-1]
		m.history = m.history[:len(m.history)-1]
		if err := m.open(prev, false); err == nil {
			return m.pageCmd()
		}
	}
	if m.route.Page == route.Home {
		return nil
	}
	_ = m.open("/", false)
	return m.pageCmd()
}

// enterPage resets the state owned by the page being entered.
func (m *Model) enterPage() {
	switch m.route.Page {
	case route.BookDetail:
		m.detail = newDetailState(m.route.ID)
	case route.AddBook:
		m.bookForm = newBookForm(catalog.Book{}, false)
	case route.UpdateBook:
		m.bookForm = newBookForm(catalog.Book{ID: m.route.ID}, true)
		if book, ok := query.Value[catalog.Book](m.entry(query.Book(m.route.ID))); ok {
			m.bookForm.prefill(book)
		}
	case route.Login:
		m.auth = newAuthState(authSignIn)
	case route.Register:
		if m.user.SignedIn() {
			m.auth = newAuthState(authProfile)
			m.auth.form.set("name", m.user.DisplayName)
		} else {
			m.auth = newAuthState(authRegister)
		}
	}
}

// applyAccess evaluates the guard for the current route, following a
// sign-in redirect, and observes the queries the page may show.
func (m *Model) applyAccess() {
	d := guard.Evaluate(m.user, m.route)
	if d.Access == guard.Unauthorized {
		if r, err := route.Parse(d.Redirect); err == nil {
			m.route = r
			m.cursor = 0
			m.enterPage()
			d = guard.Evaluate(m.user, m.route)
		}
	}
	m.access = d
	if d.Access == guard.Authorized {
		m.syncObservers(m.pageKeys())
	} else {
		m.syncObservers(nil)
	}
}

// pageKeys lists the queries the current page renders.
func (m Model) pageKeys() []query.Key {
	switch m.route.Page {
	case route.Home:
		return []query.Key{query.LatestBooks(), query.FeaturedBook(), query.AllBooks()}
	case route.AllBooks:
		return []query.Key{query.AllBooks()}
	case route.BookDetail:
		return []query.Key{query.Book(m.route.ID), query.Comments(m.route.ID)}
	case route.MyBooks:
		if m.user.SignedIn() {
			return []query.Key{query.MyBooks(m.user.Identity)}
		}
	case route.UpdateBook:
		return []query.Key{query.Book(m.route.ID)}
	}
	return nil
}

// syncObservers stops observers for keys no longer shown and starts the
// missing ones.
func (m *Model) syncObservers(keys []query.Key) {
	want := make(map[string]query.Key, len(keys))
	for _, k := range keys {
		want[k.ID()] = k
	}
	for id, stop := range m.observers {
		if _, ok := want[id]; !ok {
			stop()
			delete(m.observers, id)
		}
	}
	if m.cache == nil {
		return
	}
	for id, k := range want {
		if _, ok := m.observers[id]; ok {
			continue
		}
		fetch := m.loader.Fetcher(k)
		if fetch == nil {
			continue
		}
		m.observers[id] = m.loader.Observe(m.cache, k, m.inbox.Entry)
		m.storeEntry(m.cache.Get(k))
	}
}

// stopObservers releases every observer.
func (m Model) stopObservers() {
	for id, stop := range m.observers {
		stop()
		delete(m.observers, id)
	}
}

// pageCmd is the command a page runs when it is entered.
func (m Model) pageCmd() tea.Cmd {
	switch m.route.Page {
	case route.Activity:
		return m.loadActivity()
	case route.Login, route.Register:
		return m.auth.focusCmd()
	case route.AddBook, route.UpdateBook:
		return m.bookForm.form.focusCmd()
	}
	return nil
}

// storeEntry keeps e unless a newer snapshot for the key is already held.
func (m *Model) storeEntry(e query.Entry) bool {
	id := e.Key.ID()
	if held, ok := m.entries[id]; ok && held.Version > e.Version {
		return false
	}
	m.entries[id] = e
	return true
}

// handleEntry applies a cache snapshot.
func (m *Model) handleEntry(e query.Entry) {
	if !m.storeEntry(e) {
		return
	}
	if m.route.Page == route.UpdateBook && !m.bookForm.prefilled &&
		e.Key.Equal(query.Book(m.route.ID)) {
		if book, ok := query.Value[catalog.Book](e); ok {
			m.bookForm.prefill(book)
		}
	}
	m.clampCursor()
}

// handleSession re-runs the guard after a session change.
func (m *Model) handleSession(s session.Session) tea.Cmd {
	prev := m.user
	m.user = s
	if prev.Identity == s.Identity && prev.Loading == s.Loading {
		return nil
	}
	before := m.route.String()
	m.applyAccess()
	if m.route.String() != before {
		return m.pageCmd()
	}
	return nil
}

// entry returns the held snapshot for k.
func (m Model) entry(k query.Key) query.Entry {
	if e, ok := m.entries[k.ID()]; ok {
		return e
	}
	return query.Entry{Key: k}
}

// books returns the list a list page shows, sorted by the current order.
func (m Model) books() []catalog.Book {
	var k query.Key
	switch m.route.Page {
	case route.Home:
		k = query.LatestBooks()
	case route.AllBooks:
		k = query.AllBooks()
	case route.MyBooks:
		k = query.MyBooks(m.user.Identity)
	default:
		return nil
	}
	list, _ := query.Value[[]catalog.Book](m.entry(k))
	if m.route.Page == route.Home {
		return list
	}
	return catalog.SortByRating(list, m.sort)
}

func (m *Model) clampCursor() {
	n := len(m.books())
	if m.route.Page == route.BookDetail {
		n = len(m.comments())
	}
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// refresh refetches every query on the page.
func (m Model) refresh() tea.Cmd {
	if m.cache == nil {
		return nil
	}
	keys := m.pageKeys()
	if len(keys) == 0 {
		return nil
	}
	cache, ctx := m.cache, m.ctx
	return func() tea.Msg {
		for _, k := range keys {
			// Outcomes arrive through the observers.
			_, _ = cache.Refetch(ctx, k)
		}
		return nil
	}
}

// savePrefs persists the theme and sort order in the background.
func (m Model) savePrefs() tea.Cmd {
	p := prefs.Prefs{Theme: m.theme.Name, BookSort: sortPref(m.sort)}
	path, logger := m.prefsPath, m.logger
	return func() tea.Msg {
		if err := prefs.Save(path, p); err != nil {
			logger.Warn("save preferences failed", zap.Error(err))
		}
		return nil
	}
}

func parseSort(v string) catalog.SortOrder {
	switch v {
	case "asc":
		return catalog.SortAscending
	case "desc":
		return catalog.SortDescending
	default:
		return catalog.SortNone
	}
}

func sortPref(o catalog.SortOrder) string {
	switch o {
	case catalog.SortAscending:
		return "asc"
	case catalog.SortDescending:
		return "desc"
	default:
		return ""
	}
}

// signOut ends the session. The guard reacts through the subscription.
func (m Model) signOut() tea.Cmd {
	if m.sessions == nil {
		return nil
	}
	sessions, ctx := m.sessions, m.ctx
	return func() tea.Msg {
		return authDoneMsg{action: authSignOut, err: sessions.SignOut(ctx)}
	}
}
