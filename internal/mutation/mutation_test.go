package mutation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/shelf/internal/apperr"
	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/imagehost"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/session"
)

type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type fakeWriter struct {
	rec         *recorder
	err         error
	lastBook    catalog.BookInput
	lastComment catalog.CommentInput
	started     chan struct{}
	release     chan struct{}
}

func (w *fakeWriter) block(ctx context.Context) error {
	if w.started != nil {
		close(w.started)
	}
	if w.release != nil {
		select {
		case <-w.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *fakeWriter) CreateBook(ctx context.Context, in catalog.BookInput) (string, error) {
	w.rec.add("create book")
	w.lastBook = in
	if err := w.block(ctx); err != nil {
		return "", err
	}
	return "new-id", w.err
}

func (w *fakeWriter) UpdateBook(_ context.Context, id string, in catalog.BookInput) error {
	w.rec.add("update book " + id)
	w.lastBook = in
	return w.err
}

func (w *fakeWriter) DeleteBook(_ context.Context, id string) error {
	w.rec.add("delete book " + id)
	return w.err
}

func (w *fakeWriter) CreateComment(_ context.Context, in catalog.CommentInput) (string, error) {
	w.rec.add("create comment")
	w.lastComment = in
	return "c-new", w.err
}

func (w *fakeWriter) DeleteComment(_ context.Context, id string) error {
	w.rec.add("delete comment " + id)
	return w.err
}

type fakeUploader struct {
	rec *recorder
	err error
}

func (u *fakeUploader) Upload(context.Context, imagehost.Image) (string, error) {
	u.rec.add("upload")
	if u.err != nil {
		return "", u.err
	}
	return "https://img.example/cover.png", nil
}

type staticSession session.Session

func (s staticSession) Current() session.Session { return session.Session(s) }

type invalidation struct {
	mu          sync.Mutex
	invalidated []string
	removed     []string
}

func (i *invalidation) Invalidate(prefix query.Key) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.invalidated = append(i.invalidated, prefix.String())
	return 0
}

func (i *invalidation) Remove(key query.Key) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.removed = append(i.removed, key.String())
}

var png = imagehost.Image{
	Name: "cover.png",
	Data: append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...),
}

func validForm() BookForm {
	return BookForm{
		Title:       "Dune",
		Author:      "Frank Herbert",
		Genre:       "Science Fiction",
		Rating:      4.5,
		Summary:     strings.Repeat("s", 20),
		Description: strings.Repeat("d", 30),
		Cover:       png,
	}
}

var ann = staticSession{Identity: "ann@example.com", DisplayName: "Ann", AvatarURL: "https://img.example/ann.png"}

type harness struct {
	rec      *recorder
	writer   *fakeWriter
	uploader *fakeUploader
	cache    *invalidation
	results  []Result
	o        *Orchestrator
}

func newHarness(s Sessions) *harness {
	h := &harness{rec: &recorder{}, cache: &invalidation{}}
	h.writer = &fakeWriter{rec: h.rec}
	h.uploader = &fakeUploader{rec: h.rec}
	h.o = New(h.writer, h.uploader, s, h.cache,
		WithNotifier(NotifierFunc(func(r Result) { h.results = append(h.results, r) })),
		WithTimeout(5*time.Second),
	)
	return h
}

func TestCreateBookSummaryBoundary(t *testing.T) {
	h := newHarness(ann)
	form := validForm()
	form.Summary = strings.Repeat("s", 19)

	_, err := h.o.CreateBook(context.Background(), form)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "summary must be at least 20 characters", apperr.FieldErrors(err)["summary"])
	assert.Empty(t, h.rec.list(), "no network call on invalid input")
	assert.Empty(t, h.results, "validation stays in the form")

	form.Summary = strings.Repeat("s", 20)
	id, err := h.o.CreateBook(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)
	assert.Equal(t, []string{"upload", "create book"}, h.rec.list())
	assert.Equal(t, "https://img.example/cover.png", h.writer.lastBook.CoverImageURL)
	assert.Equal(t, "ann@example.com", h.writer.lastBook.OwnerIdentity)
	assert.Equal(t, "Ann", h.writer.lastBook.OwnerDisplayName)
	assert.ElementsMatch(t, []string{"books", "latestBooks", "myBooks/ann@example.com"}, h.cache.invalidated)
	require.Len(t, h.results, 1)
	assert.Equal(t, Result{Op: CreateBook, ID: "new-id"}, h.results[0])
}

func TestCreateBookValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*BookForm)
		field string
	}{
		{"short title", func(f *BookForm) { f.Title = "D" }, "title"},
		{"short author", func(f *BookForm) { f.Author = " F " }, "author"},
		{"unknown genre", func(f *BookForm) { f.Genre = "Cooking" }, "genre"},
		{"rating below", func(f *BookForm) { f.Rating = 0.5 }, "rating"},
		{"rating above", func(f *BookForm) { f.Rating = 5.1 }, "rating"},
		{"long summary", func(f *BookForm) { f.Summary = strings.Repeat("s", 201) }, "summary"},
		{"short description", func(f *BookForm) { f.Description = strings.Repeat("d", 29) }, "description"},
		{"long description", func(f *BookForm) { f.Description = strings.Repeat("d", 1001) }, "description"},
		{"missing cover", func(f *BookForm) { f.Cover = imagehost.Image{} }, "cover"},
		{"not an image", func(f *BookForm) { f.Cover = imagehost.Image{Name: "a.txt", Data: []byte("hello world")} }, "cover"},
		{"cover too large", func(f *BookForm) {
			f.Cover = imagehost.Image{Name: "big.png", Data: append(append([]byte(nil), png.Data...), make([]byte, imagehost.MaxImageSize)...)}
		}, "cover"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(ann)
			form := validForm()
			tt.edit(&form)
			_, err := h.o.CreateBook(context.Background(), form)
			require.Error(t, err)
			assert.Contains(t, apperr.FieldErrors(err), tt.field)
			assert.Empty(t, h.rec.list())
		})
	}
}

func TestRatingBoundsAccepted(t *testing.T) {
	for _, r := range []float64{1.0, 5.0} {
		h := newHarness(ann)
		form := validForm()
		form.Rating = r
		_, err := h.o.CreateBook(context.Background(), form)
		assert.NoError(t, err, "rating %v", r)
	}
}

func TestUploadFailureWritesNothing(t *testing.T) {
	h := newHarness(ann)
	h.uploader.err = apperr.Network("upload image", errors.New("connection refused"))

	_, err := h.o.CreateBook(context.Background(), validForm())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Contains(t, err.Error(), "image upload failed")
	assert.Equal(t, []string{"upload"}, h.rec.list(), "zero writes after a failed upload")
	assert.Empty(t, h.cache.invalidated)
	require.Len(t, h.results, 1)
	assert.Error(t, h.results[0].Err)

	book := catalog.Book{ID: "b1", OwnerIdentity: "ann@example.com"}
	h2 := newHarness(ann)
	h2.uploader.err = errors.New("boom")
	require.Error(t, h2.o.UpdateBook(context.Background(), book, validForm()))
	assert.Equal(t, []string{"upload"}, h2.rec.list())
}

func TestCreateRequiresSignIn(t *testing.T) {
	h := newHarness(staticSession{})
	_, err := h.o.CreateBook(context.Background(), validForm())
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Empty(t, h.rec.list())
	require.Len(t, h.results, 1)

	_, err = h.o.CreateComment(context.Background(), "b1", "great read")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Empty(t, h.rec.list())
}

func TestUpdateBook(t *testing.T) {
	book := catalog.Book{ID: "b1", OwnerIdentity: "ann@example.com"}

	t.Run("keeps cover when none given", func(t *testing.T) {
		h := newHarness(ann)
		form := validForm()
		form.Cover = imagehost.Image{}
		require.NoError(t, h.o.UpdateBook(context.Background(), book, form))
		assert.Equal(t, []string{"update book b1"}, h.rec.list())
		assert.Empty(t, h.writer.lastBook.CoverImageURL)
		assert.Empty(t, h.writer.lastBook.OwnerIdentity)
		assert.ElementsMatch(t, []string{
			"bookData/b1", "books", "latestBooks", "featuredBook", "myBooks/ann@example.com",
		}, h.cache.invalidated)
	})

	t.Run("uploads new cover first", func(t *testing.T) {
		h := newHarness(ann)
		require.NoError(t, h.o.UpdateBook(context.Background(), book, validForm()))
		assert.Equal(t, []string{"upload", "update book b1"}, h.rec.list())
		assert.Equal(t, "https://img.example/cover.png", h.writer.lastBook.CoverImageURL)
	})

	t.Run("non owner is refused", func(t *testing.T) {
		h := newHarness(staticSession{Identity: "bo@example.com"})
		err := h.o.UpdateBook(context.Background(), book, validForm())
		assert.True(t, apperr.Is(err, apperr.KindAuthorization))
		assert.Empty(t, h.rec.list())
	})
}

func TestDeleteBookDropsCachedEntry(t *testing.T) {
	cache := query.New(query.WithTimeout(time.Second))
	var fetches atomic.Int32
	fetch := query.Func(func(context.Context) (catalog.Book, error) {
		fetches.Add(1)
		return catalog.Book{ID: "42", OwnerIdentity: "ann@example.com"}, nil
	})
	entry, err := cache.Fetch(context.Background(), query.Book("42"), fetch)
	require.NoError(t, err)
	book, ok := query.Value[catalog.Book](entry)
	require.True(t, ok)

	rec := &recorder{}
	o := New(&fakeWriter{rec: rec}, &fakeUploader{rec: rec}, ann, cache)
	require.NoError(t, o.DeleteBook(context.Background(), book))
	assert.Equal(t, []string{"delete book 42"}, rec.list())

	assert.Equal(t, query.StatusIdle, cache.Get(query.Book("42")).Status)
	_, err = cache.Fetch(context.Background(), query.Book("42"), fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load(), "next read refetches")
}

func TestDeleteBookOwnership(t *testing.T) {
	book := catalog.Book{ID: "b1", OwnerIdentity: "ann@example.com"}

	h := newHarness(staticSession{Identity: "bo@example.com"})
	err := h.o.DeleteBook(context.Background(), book)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Empty(t, h.rec.list())

	h = newHarness(ann)
	require.NoError(t, h.o.DeleteBook(context.Background(), book))
	assert.ElementsMatch(t, []string{"bookData/b1", "comments/b1"}, h.cache.removed)
	assert.ElementsMatch(t, []string{"books", "latestBooks", "featuredBook", "myBooks/ann@example.com"}, h.cache.invalidated)
}

func TestWriteFailureSkipsInvalidation(t *testing.T) {
	h := newHarness(ann)
	h.writer.err = apperr.Upstream("delete book", 500, "database unavailable")
	err := h.o.DeleteBook(context.Background(), catalog.Book{ID: "b1", OwnerIdentity: "ann@example.com"})
	require.Error(t, err)
	assert.Empty(t, h.cache.removed)
	assert.Empty(t, h.cache.invalidated)
	require.Len(t, h.results, 1)
	assert.Equal(t, DeleteBook, h.results[0].Op)
	assert.Equal(t, "b1", h.results[0].ID)
}

func TestComments(t *testing.T) {
	h := newHarness(ann)

	_, err := h.o.CreateComment(context.Background(), "b1", "nice")
	assert.Contains(t, apperr.FieldErrors(err), "comment")
	_, err = h.o.CreateComment(context.Background(), "b1", strings.Repeat("x", 501))
	assert.Contains(t, apperr.FieldErrors(err), "comment")
	assert.Empty(t, h.rec.list())

	id, err := h.o.CreateComment(context.Background(), "b1", "  great read  ")
	require.NoError(t, err)
	assert.Equal(t, "c-new", id)
	assert.Equal(t, catalog.CommentInput{
		BookID:            "b1",
		Text:              "great read",
		AuthorIdentity:    "ann@example.com",
		AuthorDisplayName: "Ann",
		AuthorAvatarURL:   "https://img.example/ann.png",
	}, h.writer.lastComment)
	assert.Equal(t, []string{"comments/b1"}, h.cache.invalidated)

	theirs := catalog.Comment{ID: "c9", BookID: "b1", AuthorIdentity: "bo@example.com"}
	err = h.o.DeleteComment(context.Background(), theirs)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	mine := catalog.Comment{ID: "c1", BookID: "b1", AuthorIdentity: "ann@example.com"}
	require.NoError(t, h.o.DeleteComment(context.Background(), mine))
	assert.Equal(t, []string{"create comment", "delete comment c1"}, h.rec.list())
}

func TestMutateDispatches(t *testing.T) {
	h := newHarness(ann)
	book := catalog.Book{ID: "b1", OwnerIdentity: "ann@example.com"}

	id, err := h.o.Mutate(context.Background(), Request{Op: DeleteBook, Book: book})
	require.NoError(t, err)
	assert.Equal(t, "b1", id)

	id, err = h.o.Mutate(context.Background(), Request{Op: CreateComment, BookID: "b1", Text: "lovely prose"})
	require.NoError(t, err)
	assert.Equal(t, "c-new", id)

	_, err = h.o.Mutate(context.Background(), Request{Op: Operation(99)})
	assert.Error(t, err)
}

func TestMutationOutlivesCaller(t *testing.T) {
	h := newHarness(ann)
	h.writer.started = make(chan struct{})
	h.writer.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.o.CreateBook(ctx, validForm())
		done <- err
	}()

	<-h.writer.started
	cancel()
	close(h.writer.release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"upload", "create book"}, h.rec.list())
}
