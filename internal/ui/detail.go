package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/guard"
	"github.com/five82/shelf/internal/mutation"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/route"
)

// detailState is the book page's own state: the comment box.
type detailState struct {
	id         string
	composing  bool
	compose    textinput.Model
	err        string
	submitting bool
}

func newDetailState(id string) detailState {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "Share what you thought"
	in.CharLimit = 1000
	return detailState{id: id, compose: in}
}

func (d *detailState) openCompose() tea.Cmd {
	d.composing = true
	d.err = ""
	d.compose.Focus()
	return textinput.Blink
}

func (d *detailState) closeCompose() {
	d.composing = false
	d.submitting = false
	d.err = ""
	d.compose.SetValue("")
	d.compose.Blur()
}

// detailBook is the book shown on the detail page, if loaded.
func (m Model) detailBook() (catalog.Book, bool) {
	return query.Value[catalog.Book](m.entry(query.Book(m.route.ID)))
}

// comments lists the detail page's comments, newest first as served.
func (m Model) comments() []catalog.Comment {
	list, _ := query.Value[[]catalog.Comment](m.entry(query.Comments(m.route.ID)))
	return list
}

func (m Model) selectedComment() (catalog.Comment, bool) {
	list := m.comments()
	if m.cursor < 0 || m.cursor >= len(list) {
		return catalog.Comment{}, false
	}
	return list[m.cursor], true
}

// startComment opens the comment box, sending signed-out users to sign in
// first.
func (m *Model) startComment() tea.Cmd {
	if !m.user.SignedIn() {
		return m.navigate(route.LoginPath(m.route.String()))
	}
	return m.detail.openCompose()
}

func (m *Model) submitComment() tea.Cmd {
	if m.mutations == nil || m.detail.submitting {
		return nil
	}
	m.detail.submitting = true
	m.detail.err = ""
	mutations, ctx := m.mutations, m.ctx
	bookID, text := m.route.ID, m.detail.compose.Value()
	return func() tea.Msg {
		id, err := mutations.CreateComment(ctx, bookID, text)
		return mutationDoneMsg{op: mutation.CreateComment, id: id, err: err}
	}
}

// confirmDeleteBook asks before deleting b. Only the owner is offered the
// action; the server checks again.
func (m *Model) confirmDeleteBook(b catalog.Book) {
	if !guard.OwnsBook(m.user, b) {
		m.pushNotice(noticeError, "Only the owner can delete this book")
		return
	}
	m.modal = newConfirmModal("Delete book", "Delete \""+b.Title+"\" and its comments?", confirmDeleteMsg{book: b})
}

func (m *Model) confirmDeleteComment(c catalog.Comment) {
	if !guard.OwnsComment(m.user, c) {
		m.pushNotice(noticeError, "Only the author can delete this comment")
		return
	}
	m.modal = newConfirmModal("Delete comment", truncate(c.Text, 60), confirmDeleteCommentMsg{comment: c})
}

func (m Model) deleteBook(b catalog.Book) tea.Cmd {
	if m.mutations == nil {
		return nil
	}
	mutations, ctx := m.mutations, m.ctx
	return func() tea.Msg {
		return mutationDoneMsg{op: mutation.DeleteBook, id: b.ID, err: mutations.DeleteBook(ctx, b)}
	}
}

func (m Model) deleteComment(c catalog.Comment) tea.Cmd {
	if m.mutations == nil {
		return nil
	}
	mutations, ctx := m.mutations, m.ctx
	return func() tea.Msg {
		return mutationDoneMsg{op: mutation.DeleteComment, id: c.ID, err: mutations.DeleteComment(ctx, c)}
	}
}

// editBook opens the update form for b if the user owns it.
func (m *Model) editBook(b catalog.Book) tea.Cmd {
	if !guard.OwnsBook(m.user, b) {
		m.pushNotice(noticeError, "Only the owner can edit this book")
		return nil
	}
	return m.navigate(route.UpdateBookPath(b.ID))
}
