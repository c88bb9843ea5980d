package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/guard"
	"github.com/five82/shelf/internal/route"
)

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cmd := m.dispatchKey(msg)
	return m, cmd
}

func (m *Model) dispatchKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}

	// Help overlay swallows the next key.
	if m.showHelp {
		m.showHelp = false
		return nil
	}

	if m.modal != nil {
		modal, cmd, closed := m.modal.Update(msg, m.keys)
		if closed {
			m.modal = nil
		} else {
			m.modal = modal
		}
		return cmd
	}

	if m.inForm() {
		return m.handleFormKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.refreshActivity()
		return m.savePrefs()
	case key.Matches(msg, m.keys.Back):
		return m.back()
	case key.Matches(msg, m.keys.ViewHome):
		return m.navigate("/")
	case key.Matches(msg, m.keys.ViewAll):
		return m.navigate("/all-books")
	case key.Matches(msg, m.keys.ViewMine):
		return m.navigate("/my-books")
	case key.Matches(msg, m.keys.ViewAdd):
		return m.navigate("/add-book")
	case key.Matches(msg, m.keys.ViewActivity):
		return m.navigate("/activity")
	case key.Matches(msg, m.keys.SignIn):
		if m.user.SignedIn() {
			return nil
		}
		return m.navigate(route.LoginPath(m.route.String()))
	case key.Matches(msg, m.keys.Register):
		if m.user.SignedIn() && !m.user.ProfilePending {
			return nil
		}
		return m.navigate("/auth/register")
	case key.Matches(msg, m.keys.SignOut):
		if !m.user.SignedIn() {
			return nil
		}
		return m.signOut()
	}

	switch m.route.Page {
	case route.Home, route.AllBooks, route.MyBooks:
		return m.handleListKey(msg)
	case route.BookDetail:
		return m.handleDetailKey(msg)
	case route.Activity:
		return m.handleActivityKey(msg)
	}
	return nil
}

// inForm reports whether keys go to a text input.
func (m Model) inForm() bool {
	switch m.route.Page {
	case route.AddBook, route.UpdateBook, route.Login, route.Register:
		return m.access.Access == guard.Authorized
	case route.BookDetail:
		return m.detail.composing
	}
	return false
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	books := m.books()
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1, len(books))
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1, len(books))
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = maxInt(len(books)-1, 0)
	case key.Matches(msg, m.keys.HalfPageUp):
		m.moveCursor(-m.halfPage(), len(books))
	case key.Matches(msg, m.keys.HalfPageDown):
		m.moveCursor(m.halfPage(), len(books))
	case key.Matches(msg, m.keys.Refresh):
		return m.refresh()
	case key.Matches(msg, m.keys.Sort):
		if m.route.Page == route.Home {
			return nil
		}
		m.sort = m.sort.Next()
		return m.savePrefs()
	}

	b, ok := m.selectedBook(books)
	if !ok {
		return nil
	}
	switch {
	case key.Matches(msg, m.keys.Open):
		return m.navigate(route.BookPath(b.ID))
	case key.Matches(msg, m.keys.Edit):
		return m.editBook(b)
	case key.Matches(msg, m.keys.Delete):
		m.confirmDeleteBook(b)
	}
	return nil
}

func (m *Model) handleDetailKey(msg tea.KeyMsg) tea.Cmd {
	comments := m.comments()
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1, len(comments))
		return nil
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1, len(comments))
		return nil
	case key.Matches(msg, m.keys.Refresh):
		return m.refresh()
	case key.Matches(msg, m.keys.Comment):
		return m.startComment()
	case key.Matches(msg, m.keys.DeleteComment):
		if c, ok := m.selectedComment(); ok {
			m.confirmDeleteComment(c)
		}
		return nil
	}

	book, ok := m.detailBook()
	if !ok {
		return nil
	}
	switch {
	case key.Matches(msg, m.keys.Edit):
		return m.editBook(book)
	case key.Matches(msg, m.keys.Delete):
		m.confirmDeleteBook(book)
	}
	return nil
}

// handleFormKey drives the focused form: the book form, an auth form or
// the comment box.
func (m *Model) handleFormKey(msg tea.KeyMsg) tea.Cmd {
	if m.route.Page == route.BookDetail {
		switch {
		case key.Matches(msg, m.keys.Back):
			m.detail.closeCompose()
			return nil
		case msg.Type == tea.KeyEnter, key.Matches(msg, m.keys.Submit):
			return m.submitComment()
		}
		var cmd tea.Cmd
		m.detail.compose, cmd = m.detail.compose.Update(msg)
		return cmd
	}

	f := &m.auth.form
	book := m.route.Page == route.AddBook || m.route.Page == route.UpdateBook
	if book {
		f = &m.bookForm.form
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		return m.back()
	case key.Matches(msg, m.keys.Submit):
		return m.submitForm()
	case msg.Type == tea.KeyEnter:
		if f.onLast() {
			return m.submitForm()
		}
		f.next()
		return nil
	case key.Matches(msg, m.keys.NextField):
		f.next()
		return nil
	case key.Matches(msg, m.keys.PrevField):
		f.prev()
		return nil
	case book && key.Matches(msg, m.keys.CycleGenre):
		m.bookForm.cycleGenre()
		return nil
	case m.route.Page == route.Login && key.Matches(msg, m.keys.ToggleOAuth):
		m.auth.toggleSocial()
		return m.auth.focusCmd()
	}
	delete(f.errors, f.focused())
	return f.update(msg)
}

func (m *Model) submitForm() tea.Cmd {
	switch m.route.Page {
	case route.AddBook, route.UpdateBook:
		return m.submitBook()
	case route.Login, route.Register:
		return m.submitAuth()
	}
	return nil
}

func (m *Model) moveCursor(delta, n int) {
	if n == 0 {
		m.cursor = 0
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= n {
		m.cursor = n - 1
	}
}

func (m Model) halfPage() int {
	return maxInt((m.height-chromeHeight)/2, 1)
}

func (m Model) selectedBook(books []catalog.Book) (catalog.Book, bool) {
	if m.cursor < 0 || m.cursor >= len(books) {
		return catalog.Book{}, false
	}
	return books[m.cursor], true
}
