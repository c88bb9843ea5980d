package fakeapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/shelf/internal/apperr"
	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/fakeapi"
	"github.com/five82/shelf/internal/identity"
	"github.com/five82/shelf/internal/imagehost"
	"github.com/five82/shelf/internal/mutation"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/session"
)

var png = imagehost.Image{
	Name: "cover.png",
	Data: append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...),
}

type stack struct {
	srv     *fakeapi.Server
	url     string
	session *session.Provider
	catalog *catalog.Client
	images  *imagehost.Client
	cache   *query.Cache
	mutate  *mutation.Orchestrator
}

func newStack(t *testing.T, opts ...fakeapi.Option) *stack {
	t.Helper()
	srv := fakeapi.New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	srv.SetPublicURL(ts.URL)

	idp, err := identity.NewClient(ts.URL, ts.URL, fakeapi.DefaultIdentityKey)
	require.NoError(t, err)
	images, err := imagehost.NewClient(ts.URL, fakeapi.DefaultImageKey)
	require.NoError(t, err)
	sess := session.New(idp, images)
	cat, err := catalog.NewClient(ts.URL, catalog.WithTokenSource(sess))
	require.NoError(t, err)
	cache := query.New()

	return &stack{
		srv:     srv,
		url:     ts.URL,
		session: sess,
		catalog: cat,
		images:  images,
		cache:   cache,
		mutate:  mutation.New(cat, images, sess, cache),
	}
}

func bookForm() mutation.BookForm {
	return mutation.BookForm{
		Title:       "Kindred",
		Author:      "Octavia E. Butler",
		Genre:       "Science Fiction",
		Rating:      4.7,
		Summary:     "A woman is pulled back in time to a plantation.",
		Description: "Dana is repeatedly drawn from 1976 Los Angeles to antebellum Maryland to save the life of an ancestor.",
		Cover:       png,
	}
}

func TestRegisterCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	require.NoError(t, s.session.Register(ctx, "ann@example.com", "Passw0rd!", session.Profile{DisplayName: "Ann Lee", Avatar: png}))
	me := s.session.Current()
	assert.Equal(t, "ann@example.com", me.Identity)
	assert.Equal(t, "Ann Lee", me.DisplayName)
	assert.True(t, strings.HasPrefix(me.AvatarURL, s.url+"/images/"), me.AvatarURL)
	assert.False(t, me.ProfilePending)

	mine := query.MyBooks(me.Identity)
	fetchMine := query.Func(func(ctx context.Context) ([]catalog.Book, error) {
		return s.catalog.MyBooks(ctx, me.Identity)
	})
	entry, err := s.cache.Fetch(ctx, mine, fetchMine)
	require.NoError(t, err)
	assert.True(t, entry.Empty)

	id, err := s.mutate.CreateBook(ctx, bookForm())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, s.cache.Get(mine).Stale)

	entry, err = s.cache.Fetch(ctx, mine, fetchMine)
	require.NoError(t, err)
	books, ok := query.Value[[]catalog.Book](entry)
	require.True(t, ok)
	require.Len(t, books, 1)
	book := books[0]
	assert.Equal(t, id, book.ID)
	assert.Equal(t, "ann@example.com", book.OwnerIdentity)
	assert.Equal(t, "Ann Lee", book.OwnerDisplayName)
	assert.Equal(t, catalog.Rating(4.7), book.Rating)
	assert.True(t, strings.HasPrefix(book.CoverImageURL, s.url+"/images/"))
	assert.False(t, book.CreatedAt.IsZero())

	form := bookForm()
	form.Title = "Kindred (reissue)"
	form.Cover = imagehost.Image{}
	require.NoError(t, s.mutate.UpdateBook(ctx, book, form))
	got, err := s.catalog.GetBook(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Kindred (reissue)", got.Title)
	assert.Equal(t, book.CoverImageURL, got.CoverImageURL, "cover kept")

	commentID, err := s.mutate.CreateComment(ctx, id, "Unsettling and brilliant.")
	require.NoError(t, err)
	comments, err := s.catalog.ListComments(ctx, id)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, commentID, comments[0].ID)
	assert.Equal(t, me.AvatarURL, comments[0].AuthorAvatarURL)

	byID := query.Book(id)
	_, err = s.cache.Fetch(ctx, byID, query.Func(func(ctx context.Context) (catalog.Book, error) {
		return s.catalog.GetBook(ctx, id)
	}))
	require.NoError(t, err)

	require.NoError(t, s.mutate.DeleteBook(ctx, got))
	_, err = s.catalog.GetBook(ctx, id)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, query.StatusIdle, s.cache.Get(byID).Status)
	comments, err = s.catalog.ListComments(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestServerEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakeapi.WithDemoData())

	books, err := s.catalog.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 3)

	token, err := s.srv.IssueToken("mallory@example.com", "Mallory")
	require.NoError(t, err)
	intruder, err := catalog.NewClient(s.url, catalog.WithTokenSource(staticToken(token)))
	require.NoError(t, err)

	err = intruder.DeleteBook(ctx, books[0].ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	anonymous, err := catalog.NewClient(s.url)
	require.NoError(t, err)
	_, err = anonymous.CreateBook(ctx, catalog.BookInput{Title: "x"})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	after, err := s.catalog.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, after, 3)
}

func TestFailedUploadWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	require.NoError(t, s.session.SignInSocial(ctx, identity.Credential{Provider: "google.com", Token: "bo@example.com"}))
	assert.Equal(t, "bo", s.session.Current().DisplayName)

	s.srv.FailUploads(true)
	_, err := s.mutate.CreateBook(ctx, bookForm())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	books, err := s.catalog.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestRegisterUploadFailureKeepsAccount(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	s.srv.FailUploads(true)

	err := s.session.Register(ctx, "cy@example.com", "Passw0rd!", session.Profile{DisplayName: "Cy Young", Avatar: png})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrProfilePending)
	assert.True(t, s.session.Current().ProfilePending)

	s.srv.FailUploads(false)
	require.NoError(t, s.session.UpdateProfile(ctx, session.Patch{DisplayName: "Cy Young", Avatar: png}))
	assert.False(t, s.session.Current().ProfilePending)

	require.NoError(t, s.session.SignOut(ctx))
	require.NoError(t, s.session.SignIn(ctx, "cy@example.com", "Passw0rd!"))
	assert.Equal(t, "Cy Young", s.session.Current().DisplayName)

	err = s.session.SignIn(ctx, "cy@example.com", "Wr0ng!pass")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Equal(t, "cy@example.com", s.session.Current().Identity, "failed sign in keeps the session")
}

func TestReadEndpoints(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	_, err := s.catalog.FeaturedBook(ctx)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "no featured book on an empty shelf")
	_, err = s.catalog.GetBook(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	demo := newStack(t, fakeapi.WithDemoData())
	featured, err := demo.catalog.FeaturedBook(ctx)
	require.NoError(t, err)
	assert.Equal(t, "The Left Hand of Darkness", featured.Title)
	latest, err := demo.catalog.LatestBooks(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, "Piranesi", latest[0].Title)
	comments, err := demo.catalog.ListComments(ctx, featured.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	resp, err := http.Get(s.url + "/nowhere")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }
