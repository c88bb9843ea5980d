package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/apperr"
	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/identity"
	"github.com/five82/shelf/internal/imagehost"
	"github.com/five82/shelf/internal/mutation"
	"github.com/five82/shelf/internal/route"
	"github.com/five82/shelf/internal/session"
)

// field is one labelled input. name matches the field names validation
// errors are keyed by.
type field struct {
	name  string
	label string
	input textinput.Model
}

func newField(name, label, placeholder string, limit int) field {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = placeholder
	in.CharLimit = limit
	return field{name: name, label: label, input: in}
}

func passwordField(name, label string) field {
	f := newField(name, label, "", 128)
	f.input.EchoMode = textinput.EchoPassword
	f.input.EchoCharacter = '•'
	return f
}

// form is a vertical list of fields with per-field errors.
type form struct {
	fields     []field
	focus      int
	errors     map[string]string
	err        string // failure not tied to a field
	submitting bool
}

func newForm(fields ...field) form {
	f := form{fields: fields, errors: map[string]string{}}
	f.setFocus(0)
	return f
}

func (f *form) setFocus(i int) {
	if len(f.fields) == 0 {
		return
	}
	i = (i + len(f.fields)) % len(f.fields)
	for j := range f.fields {
		if j == i {
			f.fields[j].input.Focus()
		} else {
			f.fields[j].input.Blur()
		}
	}
	f.focus = i
}

func (f *form) next() { f.setFocus(f.focus + 1) }
func (f *form) prev() { f.setFocus(f.focus - 1) }

func (f form) onLast() bool { return f.focus == len(f.fields)-1 }

func (f form) focused() string {
	if len(f.fields) == 0 {
		return ""
	}
	return f.fields[f.focus].name
}

func (f form) focusCmd() tea.Cmd { return textinput.Blink }

func (f form) value(name string) string {
	for _, fl := range f.fields {
		if fl.name == name {
			return strings.TrimSpace(fl.input.Value())
		}
	}
	return ""
}

func (f *form) set(name, v string) {
	for i := range f.fields {
		if f.fields[i].name == name {
			f.fields[i].input.SetValue(v)
			return
		}
	}
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if len(f.fields) == 0 {
		return nil
	}
	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return cmd
}

// fail records err. Field messages land beside their fields; messages for
// fields the form does not show are joined into the general line.
func (f *form) fail(err error) {
	f.submitting = false
	f.errors = map[string]string{}
	f.err = ""
	fields := apperr.FieldErrors(err)
	if len(fields) == 0 {
		f.err = errorText(err)
		return
	}
	var orphans []string
	for name, msg := range fields {
		if f.has(name) {
			f.errors[name] = msg
		} else {
			orphans = append(orphans, msg)
		}
	}
	sort.Strings(orphans)
	f.err = strings.Join(orphans, "; ")
}

func (f *form) clearErrors() {
	f.errors = map[string]string{}
	f.err = ""
}

func (f form) has(name string) bool {
	for _, fl := range f.fields {
		if fl.name == name {
			return true
		}
	}
	return false
}

// bookForm backs the add and update pages.
type bookForm struct {
	form      form
	book      catalog.Book
	update    bool
	prefilled bool
}

func newBookForm(book catalog.Book, update bool) bookForm {
	cover := newField("cover", "Cover image", "path to a jpg, png, gif or webp file", 512)
	if update {
		cover.input.Placeholder = "leave empty to keep the current cover"
	}
	return bookForm{
		form: newForm(
			newField("title", "Title", "", 200),
			newField("author", "Author", "", 120),
			newField("genre", "Genre", "ctrl+g to pick", 40),
			newField("rating", "Rating", "1 to 5", 4),
			newField("summary", "Summary", "one line", 300),
			newField("description", "Description", "", 4000),
			cover,
		),
		book:   book,
		update: update,
	}
}

func (b *bookForm) prefill(book catalog.Book) {
	b.book = book
	b.form.set("title", book.Title)
	b.form.set("author", book.Author)
	b.form.set("genre", book.Genre)
	b.form.set("rating", book.Rating.Label())
	b.form.set("summary", book.Summary)
	b.form.set("description", book.Description)
	b.prefilled = true
}

// cycleGenre moves the genre field to the next catalogue genre.
func (b *bookForm) cycleGenre() {
	current := b.form.value("genre")
	next := catalog.Genres[0]
	for i, g := range catalog.Genres {
		if strings.EqualFold(g, current) {
			next = catalog.Genres[(i+1)%len(catalog.Genres)]
			break
		}
	}
	b.form.set("genre", next)
}

// values reads the form. Only the rating is checked here; the cover path
// is returned unread.
func (b bookForm) values() (mutation.BookForm, string, error) {
	out := mutation.BookForm{
		Title:       b.form.value("title"),
		Author:      b.form.value("author"),
		Genre:       b.form.value("genre"),
		Summary:     b.form.value("summary"),
		Description: b.form.value("description"),
	}
	op := mutation.CreateBook.String()
	if b.update {
		op = mutation.UpdateBook.String()
	}
	if raw := b.form.value("rating"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return out, "", apperr.Validation(op, map[string]string{"rating": "rating must be a number"})
		}
		out.Rating = r
	}
	return out, b.form.value("cover"), nil
}

// submitBook validates locally and runs the create or update.
func (m *Model) submitBook() tea.Cmd {
	if m.mutations == nil || m.bookForm.form.submitting {
		return nil
	}
	if m.bookForm.update && !m.bookForm.prefilled {
		m.bookForm.form.err = "The book is still loading"
		return nil
	}
	values, coverPath, err := m.bookForm.values()
	if err != nil {
		m.bookForm.form.fail(err)
		return nil
	}
	m.bookForm.form.clearErrors()
	m.bookForm.form.submitting = true

	mutations, ctx := m.mutations, m.ctx
	update, book := m.bookForm.update, m.bookForm.book
	return func() tea.Msg {
		op := mutation.CreateBook
		if update {
			op = mutation.UpdateBook
		}
		if coverPath != "" {
			img, err := imagehost.LoadImage(coverPath)
			if err != nil {
				return mutationDoneMsg{op: op, err: apperr.Validation(op.String(), map[string]string{"cover": err.Error()})}
			}
			values.Cover = img
		}
		if update {
			return mutationDoneMsg{op: op, id: book.ID, err: mutations.UpdateBook(ctx, book, values)}
		}
		id, err := mutations.CreateBook(ctx, values)
		return mutationDoneMsg{op: op, id: id, err: err}
	}
}

// authAction names what an auth form does.
type authAction int

const (
	authSignIn authAction = iota
	authSocial
	authRegister
	authProfile
	authSignOut
)

func (a authAction) String() string {
	switch a {
	case authSocial:
		return "social sign in"
	case authRegister:
		return "register"
	case authProfile:
		return "update profile"
	case authSignOut:
		return "sign out"
	default:
		return "sign in"
	}
}

// authState backs the sign-in and register pages.
type authState struct {
	mode authAction
	form form
}

func newAuthState(mode authAction) authState {
	var f form
	switch mode {
	case authRegister:
		f = newForm(
			newField("name", "Name", "", 80),
			newField("email", "Email", "you@example.com", 254),
			passwordField("password", "Password"),
			newField("photo", "Photo", "path to an image file", 512),
		)
	case authProfile:
		f = newForm(
			newField("name", "Name", "", 80),
			newField("photo", "Photo", "path to an image file", 512),
		)
	case authSocial:
		f = newForm(
			newField("provider", "Provider", "google.com", 64),
			passwordField("token", "Token"),
		)
		f.set("provider", "google.com")
	default:
		f = newForm(
			newField("email", "Email", "you@example.com", 254),
			passwordField("password", "Password"),
		)
	}
	return authState{mode: mode, form: f}
}

func (a authState) focusCmd() tea.Cmd { return a.form.focusCmd() }

// toggleSocial flips the sign-in page between password and social sign-in.
func (a *authState) toggleSocial() {
	switch a.mode {
	case authSignIn:
		*a = newAuthState(authSocial)
	case authSocial:
		*a = newAuthState(authSignIn)
	}
}

// submitAuth runs the sign-in or registration in the background.
func (m *Model) submitAuth() tea.Cmd {
	if m.sessions == nil || m.auth.form.submitting {
		return nil
	}
	f := m.auth.form
	mode := m.auth.mode
	m.auth.form.clearErrors()
	m.auth.form.submitting = true

	sessions, ctx := m.sessions, m.ctx
	return func() tea.Msg {
		return authDoneMsg{action: mode, err: runAuth(ctx, sessions, mode, f)}
	}
}

func runAuth(ctx context.Context, sessions Sessions, mode authAction, f form) error {
	switch mode {
	case authRegister:
		prof := session.Profile{DisplayName: f.value("name")}
		if path := f.value("photo"); path != "" {
			img, err := imagehost.LoadImage(path)
			if err != nil {
				return apperr.Validation(mode.String(), map[string]string{"photo": err.Error()})
			}
			prof.Avatar = img
		}
		return sessions.Register(ctx, f.value("email"), f.password(), prof)
	case authProfile:
		patch := session.Patch{DisplayName: f.value("name")}
		if path := f.value("photo"); path != "" {
			img, err := imagehost.LoadImage(path)
			if err != nil {
				return apperr.Validation(mode.String(), map[string]string{"photo": err.Error()})
			}
			patch.Avatar = img
		}
		return sessions.UpdateProfile(ctx, patch)
	case authSocial:
		return sessions.SignInSocial(ctx, identity.Credential{
			Provider: f.value("provider"),
			Token:    f.value("token"),
		})
	default:
		return sessions.SignIn(ctx, f.value("email"), f.password())
	}
}

// password returns the password field untrimmed.
func (f form) password() string {
	for _, fl := range f.fields {
		if fl.name == "password" {
			return fl.input.Value()
		}
	}
	return ""
}

// handleMutationDone routes a finished write back to the page that
// started it. Notifications for non-validation outcomes arrive separately
// through the inbox.
func (m *Model) handleMutationDone(msg mutationDoneMsg) tea.Cmd {
	validation := apperr.Is(msg.err, apperr.KindValidation)
	switch msg.op {
	case mutation.CreateBook, mutation.UpdateBook:
		m.bookForm.form.submitting = false
		if msg.err != nil {
			if validation {
				m.bookForm.form.fail(msg.err)
			} else {
				m.bookForm.form.err = errorText(msg.err)
			}
			return nil
		}
		if m.route.Page == route.AddBook || m.route.Page == route.UpdateBook {
			return m.navigate(route.BookPath(msg.id))
		}
	case mutation.DeleteBook:
		if msg.err != nil {
			return nil
		}
		if m.route.ID == msg.id {
			return m.navigate("/my-books")
		}
	case mutation.CreateComment:
		m.detail.submitting = false
		if msg.err != nil {
			if validation {
				m.detail.err = fieldText(msg.err, "comment", "book")
			}
			return nil
		}
		m.detail.closeCompose()
	case mutation.DeleteComment:
		if msg.err != nil && validation {
			m.pushNotice(noticeError, errorText(msg.err))
		}
	}
	return nil
}

// handleAuthDone reports a finished auth action and leaves the auth page.
func (m *Model) handleAuthDone(msg authDoneMsg) tea.Cmd {
	if msg.action == authSignOut {
		if msg.err != nil {
			m.pushNotice(noticeError, errorText(msg.err))
			return nil
		}
		m.pushNotice(noticeInfo, "Signed out")
		return nil
	}

	m.auth.form.submitting = false
	if errors.Is(msg.err, session.ErrProfilePending) {
		// The account exists; keep the user here to retry the profile.
		name := m.auth.form.value("name")
		m.auth = newAuthState(authProfile)
		m.auth.form.set("name", name)
		m.auth.form.err = "Account created, but the profile was not saved. Submit again to retry."
		m.pushNotice(noticeError, "Profile not saved")
		return m.auth.focusCmd()
	}
	if msg.err != nil {
		m.auth.form.fail(msg.err)
		return nil
	}
	if msg.action == authProfile {
		m.pushNotice(noticeSuccess, "Profile updated")
	} else {
		m.pushNotice(noticeSuccess, welcome(msg.action, m.sessions))
	}
	if m.onAuthPage() {
		return m.navigate(route.ReturnPath(m.route))
	}
	return nil
}

func welcome(action authAction, sessions Sessions) string {
	name := ""
	if sessions != nil {
		s := sessions.Current()
		name = s.DisplayName
		if name == "" {
			name = s.Identity
		}
	}
	verb := "Signed in"
	if action == authRegister {
		verb = "Welcome"
	}
	if name == "" {
		return verb
	}
	return fmt.Sprintf("%s, %s", verb, name)
}

// fieldText picks the first message among names, falling back to the
// general error text.
func fieldText(err error, names ...string) string {
	fields := apperr.FieldErrors(err)
	for _, n := range names {
		if msg, ok := fields[n]; ok {
			return msg
		}
	}
	return errorText(err)
}

func (m Model) onAuthPage() bool {
	return m.route.Page == route.Login || m.route.Page == route.Register
}
