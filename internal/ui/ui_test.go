package ui

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/shelf/internal/apperr"
	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/guard"
	"github.com/five82/shelf/internal/identity"
	"github.com/five82/shelf/internal/mutation"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/route"
	"github.com/five82/shelf/internal/session"
)

type fakeSessions struct {
	s session.Session
}

func (f *fakeSessions) Current() session.Session { return f.s }
func (f *fakeSessions) Subscribe(func(session.Session)) func() {
	return func() {}
}
func (f *fakeSessions) SignIn(context.Context, string, string) error { return nil }
func (f *fakeSessions) SignInSocial(context.Context, identity.Credential) error {
	return nil
}
func (f *fakeSessions) Register(context.Context, string, string, session.Profile) error {
	return nil
}
func (f *fakeSessions) UpdateProfile(context.Context, session.Patch) error { return nil }
func (f *fakeSessions) SignOut(context.Context) error                      { return nil }

// shelfReader serves a fixed catalogue. It holds no mutable state, so the
// cache may call it from any goroutine.
type shelfReader struct{}

var shelfBooks = []catalog.Book{
	{ID: "1", Title: "Piranesi", Genre: "Fantasy", Rating: 4.5},
	{ID: "2", Title: "Dune", Genre: "Science Fiction", Rating: 4.8},
	{ID: "3", Title: "Kindred", Genre: "Science Fiction", Rating: 4.2},
}

func (shelfReader) ListBooks(context.Context) ([]catalog.Book, error)   { return shelfBooks, nil }
func (shelfReader) LatestBooks(context.Context) ([]catalog.Book, error) { return shelfBooks[:1], nil }
func (shelfReader) FeaturedBook(context.Context) (catalog.Book, error)  { return shelfBooks[1], nil }
func (shelfReader) GetBook(_ context.Context, id string) (catalog.Book, error) {
	for _, b := range shelfBooks {
		if b.ID == id {
			return b, nil
		}
	}
	return catalog.Book{}, apperr.NotFound("get book")
}
func (shelfReader) MyBooks(context.Context, string) ([]catalog.Book, error) { return nil, nil }
func (shelfReader) ListComments(context.Context, string) ([]catalog.Comment, error) {
	return nil, nil
}

func newModel(t *testing.T, s session.Session, start string, withCache bool) Model {
	t.Helper()
	opts := Options{
		Context:   context.Background(),
		Session:   &fakeSessions{s: s},
		Inbox:     NewInbox(16),
		PrefsPath: t.TempDir() + "/prefs.toml",
		StartPath: start,
	}
	if withCache {
		opts.Cache = query.New()
		opts.Loader = query.NewLoader(shelfReader{}, shelfReader{})
	}
	m := New(opts)
	m.width, m.height, m.ready = 120, 40, true
	t.Cleanup(func() {
		m.stopObservers()
		m.inbox.Close()
	})
	return m
}

var ann = session.Session{Identity: "ann@example.com", DisplayName: "Ann Lee"}

func TestRenderStars(t *testing.T) {
	assert.Equal(t, "★★★★☆ 4.0", renderStars(4))
	assert.Equal(t, "★★★★☆ 4.9", renderStars(4.9))
	assert.Equal(t, "★☆☆☆☆ 1.0", renderStars(1))
	assert.Equal(t, "★★★★★ 5.0", renderStars(5))
}

func TestTopGenres(t *testing.T) {
	got := topGenres(append(shelfBooks, catalog.Book{Genre: "Action"}, catalog.Book{}), 2)
	require.Len(t, got, 2)
	assert.Equal(t, genreCount{"Science Fiction", 2}, got[0])
	assert.Equal(t, genreCount{"Action", 1}, got[1], "ties break by name")
}

func TestProtectedStartRedirectsToSignIn(t *testing.T) {
	m := newModel(t, session.Session{}, "/my-books", false)

	assert.Equal(t, route.Login, m.route.Page)
	assert.Equal(t, "/my-books", m.route.Query.Get("from"))
	assert.Empty(t, m.history, "the redirect is not pushed")
}

func TestCheckingUntilSessionSettles(t *testing.T) {
	m := newModel(t, session.Session{Loading: true}, "/my-books", true)
	assert.Equal(t, route.MyBooks, m.route.Page)
	assert.Equal(t, guard.Checking, m.access.Access)
	assert.Empty(t, m.observers)
	assert.Contains(t, m.View(), "Checking your session")

	m.handleSession(ann)
	assert.Equal(t, guard.Authorized, m.access.Access)
	assert.Contains(t, m.observers, query.MyBooks(ann.Identity).ID())

	m.handleSession(session.Session{})
	assert.Equal(t, route.Login, m.route.Page)
	assert.Equal(t, "/my-books", m.route.Query.Get("from"))
	assert.Empty(t, m.observers)
}

func TestObserversFollowThePage(t *testing.T) {
	m := newModel(t, session.Session{}, "/all-books", true)
	assert.Len(t, m.observers, 1)

	m.navigate("/")
	assert.Len(t, m.observers, 3)
	assert.Contains(t, m.observers, query.FeaturedBook().ID())

	m.navigate(route.BookPath("2"))
	assert.Len(t, m.observers, 2)
	assert.Contains(t, m.observers, query.Comments("2").ID())

	m.navigate("/activity")
	assert.Empty(t, m.observers)

	m.back()
	assert.Equal(t, route.BookDetail, m.route.Page)
	assert.Equal(t, "2", m.route.ID)
}

func TestOlderEntriesAreDropped(t *testing.T) {
	m := newModel(t, session.Session{}, "/activity", false)
	k := query.AllBooks()

	m.handleEntry(query.Entry{Key: k, Status: query.StatusSuccess, Data: shelfBooks, Version: 5})
	m.handleEntry(query.Entry{Key: k, Status: query.StatusLoading, Version: 3})

	assert.Equal(t, uint64(5), m.entry(k).Version)
	assert.Equal(t, query.StatusSuccess, m.entry(k).Status)
}

func TestEntriesWithSlashesStayApart(t *testing.T) {
	m := newModel(t, session.Session{}, "/activity", false)
	slashed := query.Book("a/b")
	split := query.Key{"bookData", "a", "b"}
	require.Equal(t, slashed.String(), split.String())

	m.handleEntry(query.Entry{Key: slashed, Status: query.StatusSuccess, Data: "slashed", Version: 1})
	m.handleEntry(query.Entry{Key: split, Status: query.StatusSuccess, Data: "split", Version: 2})

	assert.Equal(t, "slashed", m.entry(slashed).Data)
	assert.Equal(t, "split", m.entry(split).Data)
}

func TestListSortCycles(t *testing.T) {
	m := newModel(t, session.Session{}, "/all-books", false)
	m.handleEntry(query.Entry{Key: query.AllBooks(), Status: query.StatusSuccess, Data: shelfBooks, Version: 1})

	assert.Equal(t, []catalog.Book(shelfBooks), m.books())

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = next.(Model)
	assert.Equal(t, catalog.SortAscending, m.sort)
	assert.Equal(t, "3", m.books()[0].ID)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m = next.(Model)
	assert.Equal(t, catalog.SortDescending, m.sort)
	assert.Equal(t, "2", m.books()[0].ID)
}

func TestRatingMustBeANumber(t *testing.T) {
	m := newModel(t, ann, "/add-book", false)
	m.mutations = mutatorFunc(func() error { t.Fatal("no request for a bad rating"); return nil })
	m.bookForm.form.set("title", "Kindred")
	m.bookForm.form.set("rating", "lots")

	cmd := m.submitBook()
	assert.Nil(t, cmd)
	assert.Equal(t, "rating must be a number", m.bookForm.form.errors["rating"])
	assert.False(t, m.bookForm.form.submitting)
}

func TestValidationErrorsLandOnFields(t *testing.T) {
	m := newModel(t, ann, "/add-book", false)
	m.bookForm.form.submitting = true

	err := apperr.Validation("add book", map[string]string{
		"title": "title is required",
		"book":  "something about the book",
	})
	cmd := m.handleMutationDone(mutationDoneMsg{op: mutation.CreateBook, err: err})

	assert.Nil(t, cmd)
	assert.Equal(t, "title is required", m.bookForm.form.errors["title"])
	assert.Equal(t, "something about the book", m.bookForm.form.err)
	assert.False(t, m.bookForm.form.submitting)
	assert.Equal(t, route.AddBook, m.route.Page)
}

func TestCreatedBookOpensItsPage(t *testing.T) {
	m := newModel(t, ann, "/add-book", false)
	m.handleMutationDone(mutationDoneMsg{op: mutation.CreateBook, id: "42"})

	assert.Equal(t, route.BookDetail, m.route.Page)
	assert.Equal(t, "42", m.route.ID)
}

func TestSignInReturnsToOrigin(t *testing.T) {
	m := newModel(t, session.Session{}, "/my-books", false)
	require.Equal(t, route.Login, m.route.Page)

	m.sessions.(*fakeSessions).s = ann
	m.handleSession(ann)
	assert.Equal(t, route.Login, m.route.Page, "sign-in page is public")

	m.handleAuthDone(authDoneMsg{action: authSignIn})
	assert.Equal(t, route.MyBooks, m.route.Page)
	require.NotEmpty(t, m.notices)
	assert.Equal(t, "Signed in, Ann Lee", m.notices[len(m.notices)-1].text)
}

func TestFailedSignInStaysOnForm(t *testing.T) {
	m := newModel(t, session.Session{}, "/auth/login", false)
	m.handleAuthDone(authDoneMsg{action: authSignIn, err: apperr.Unauthorized("sign in", "invalid email or password")})

	assert.Equal(t, route.Login, m.route.Page)
	assert.Equal(t, "invalid email or password", m.auth.form.err)
}

func TestPartialRegistrationOffersProfileRetry(t *testing.T) {
	m := newModel(t, session.Session{}, "/auth/register", false)
	m.auth.form.set("name", "Cy Young")

	err := fmt.Errorf("register: %w", session.ErrProfilePending)
	m.handleAuthDone(authDoneMsg{action: authRegister, err: err})

	assert.Equal(t, route.Register, m.route.Page)
	assert.Equal(t, authProfile, m.auth.mode)
	assert.Equal(t, "Cy Young", m.auth.form.value("name"))
	assert.NotEmpty(t, m.auth.form.err)

	m.handleAuthDone(authDoneMsg{action: authProfile})
	assert.Equal(t, route.Home, m.route.Page)
	assert.Equal(t, "Profile updated", m.notices[len(m.notices)-1].text)
}

func TestResultNoticesExpire(t *testing.T) {
	m := newModel(t, ann, "/", false)

	m.handleResult(mutation.Result{Op: mutation.CreateBook, ID: "1"})
	m.handleResult(mutation.Result{Op: mutation.DeleteBook, Err: apperr.Network("delete book", context.DeadlineExceeded)})
	require.Len(t, m.notices, 2)
	assert.Equal(t, "Book added", m.notices[0].text)
	assert.Equal(t, noticeError, m.notices[1].kind)
	assert.Equal(t, "Network error, check your connection", m.notices[1].text)

	m.expireNotices(time.Now().Add(noticeTTL + time.Second))
	assert.Empty(t, m.notices)
}

func TestDeleteAsksFirst(t *testing.T) {
	m := newModel(t, ann, "/my-books", false)
	mine := catalog.Book{ID: "7", Title: "Mine", OwnerIdentity: ann.Identity}
	m.handleEntry(query.Entry{Key: query.MyBooks(ann.Identity), Status: query.StatusSuccess, Data: []catalog.Book{mine}, Version: 1})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = next.(Model)
	require.NotNil(t, m.modal)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	m = next.(Model)
	assert.Nil(t, m.modal)
	require.NotNil(t, cmd)
	assert.Equal(t, confirmDeleteMsg{book: mine}, cmd())
}

func TestOthersBooksCannotBeEdited(t *testing.T) {
	m := newModel(t, ann, "/all-books", false)
	m.handleEntry(query.Entry{Key: query.AllBooks(), Status: query.StatusSuccess, Data: shelfBooks, Version: 1})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	m = next.(Model)
	assert.Equal(t, route.AllBooks, m.route.Page)
	require.NotEmpty(t, m.notices)
	assert.Equal(t, noticeError, m.notices[0].kind)
}

func TestInboxDeliversInOrder(t *testing.T) {
	in := NewInbox(1)
	in.Notify(mutation.Result{Op: mutation.CreateComment})
	in.Entry(query.Entry{Key: query.AllBooks()})
	assert.Equal(t, 2, in.Len())

	first := in.Wait()()
	assert.Equal(t, inboxMsg{msg: resultMsg(mutation.Result{Op: mutation.CreateComment})}, first)
	second := in.Wait()()
	assert.IsType(t, inboxMsg{}, second)

	in.Close()
	assert.Nil(t, in.Wait()())
	in.Send("dropped")
	assert.Zero(t, in.Len())
}

// mutatorFunc is a Mutator whose every method calls fn.
type mutatorFunc func() error

func (f mutatorFunc) CreateBook(context.Context, mutation.BookForm) (string, error) {
	return "", f()
}
func (f mutatorFunc) UpdateBook(context.Context, catalog.Book, mutation.BookForm) error {
	return f()
}
func (f mutatorFunc) DeleteBook(context.Context, catalog.Book) error { return f() }
func (f mutatorFunc) CreateComment(context.Context, string, string) (string, error) {
	return "", f()
}
func (f mutatorFunc) DeleteComment(context.Context, catalog.Comment) error { return f() }
