package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/shelf/internal/apperr"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.String() != defaultServerURL {
		t.Fatalf("url = %q, want %q", u.String(), defaultServerURL)
	}

	u, err = parseBaseURL("example.com:1234/path?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestClient_ReadsAndNormalizesBooks(t *testing.T) {
	t.Parallel()

	var gotUserAgent, gotRequestID, gotEmail string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/books":
			_, _ = io.WriteString(w, `[
				{"_id":{"$oid":"a1"},"title":"Dune","rating":{"$numberDouble":"4.5"},"userEmail":"ann@example.com","created_at":"2024-03-01T10:00:00Z"},
				{"_id":"b2","title":"Emma","rating":"3"}
			]`)
		case "/my-books":
			gotEmail = r.URL.Query().Get("email")
			_, _ = io.WriteString(w, `[]`)
		case "/book/a1":
			_, _ = io.WriteString(w, `{"_id":"a1","title":"Dune","rating":{"$numberInt":"4"}}`)
		case "/book/missing":
			_, _ = io.WriteString(w, `null`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	books, err := c.ListBooks(ctx)
	if err != nil {
		t.Fatalf("ListBooks returned error: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("ListBooks len = %d, want 2", len(books))
	}
	if books[0].ID != "a1" || books[0].Rating != 4.5 || books[0].OwnerIdentity != "ann@example.com" {
		t.Fatalf("books[0] = %#v, want normalized id/rating/owner", books[0])
	}
	if books[0].CreatedAt.IsZero() {
		t.Fatalf("books[0].CreatedAt is zero, want parsed")
	}
	if books[1].ID != "b2" || books[1].Rating != 3 {
		t.Fatalf("books[1] = %#v, want id=b2 rating=3", books[1])
	}

	mine, err := c.MyBooks(ctx, "ann@example.com")
	if err != nil {
		t.Fatalf("MyBooks returned error: %v", err)
	}
	if len(mine) != 0 || gotEmail != "ann@example.com" {
		t.Fatalf("MyBooks = %v email=%q, want empty list for ann", mine, gotEmail)
	}

	book, err := c.GetBook(ctx, "a1")
	if err != nil {
		t.Fatalf("GetBook returned error: %v", err)
	}
	if book.Rating != 4 {
		t.Fatalf("GetBook rating = %v, want 4", book.Rating)
	}

	_, err = c.GetBook(ctx, "missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("GetBook(missing) error = %v, want not found", err)
	}

	if !strings.HasPrefix(gotUserAgent, "shelf/") {
		t.Fatalf("User-Agent = %q, want shelf/*", gotUserAgent)
	}
	if gotRequestID == "" {
		t.Fatalf("X-Request-ID missing")
	}
}

func TestClient_MyBooksRequiresIdentity(t *testing.T) {
	c, err := NewClient("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.MyBooks(context.Background(), " ")
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("MyBooks error = %v, want authorization", err)
	}
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func TestClient_WritesSendPayloadAndToken(t *testing.T) {
	t.Parallel()

	var gotAuth, gotMethod string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/add-book":
			_, _ = io.WriteString(w, `{"acknowledged":true,"insertedId":{"$oid":"new1"}}`)
		case r.Method == http.MethodPatch && r.URL.Path == "/update-book/gone":
			_, _ = io.WriteString(w, `{"matchedCount":0,"modifiedCount":0}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/book/new1":
			_, _ = io.WriteString(w, `{"deletedCount":1}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/comments/c9":
			_, _ = io.WriteString(w, `{"deletedCount":0}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithTokenSource(staticToken("tok")))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	id, err := c.CreateBook(ctx, BookInput{Title: "Dune", Genre: "Science Fiction", Rating: 4.5, OwnerIdentity: "ann@example.com"})
	if err != nil {
		t.Fatalf("CreateBook returned error: %v", err)
	}
	if id != "new1" {
		t.Fatalf("CreateBook id = %q, want new1", id)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if gotBody["userEmail"] != "ann@example.com" || gotBody["rating"] != 4.5 {
		t.Fatalf("CreateBook body = %v, want owner and rating", gotBody)
	}
	if _, ok := gotBody["coverImage"]; ok {
		t.Fatalf("CreateBook body has coverImage, want omitted when empty")
	}

	err = c.UpdateBook(ctx, "gone", BookInput{Title: "x"})
	if gotMethod != http.MethodPatch || !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("UpdateBook method=%s error=%v, want PATCH and not found", gotMethod, err)
	}

	if err := c.DeleteBook(ctx, "new1"); err != nil {
		t.Fatalf("DeleteBook returned error: %v", err)
	}
	if err := c.DeleteComment(ctx, "c9"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("DeleteComment error = %v, want not found", err)
	}
}

type failingToken struct{ err error }

func (f failingToken) Token(context.Context) (string, error) { return "", f.err }

func TestClient_TokenFailureSendsNoWrite(t *testing.T) {
	t.Parallel()

	var writes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writes.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[]`)
	}))
	t.Cleanup(server.Close)

	refresh := apperr.Network("refresh token", errors.New("connection reset"))
	c, err := NewClient(server.URL, WithTokenSource(failingToken{err: refresh}))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	err = c.DeleteBook(context.Background(), "b1")
	if !apperr.Is(err, apperr.KindNetwork) {
		t.Fatalf("DeleteBook error = %v, want network", err)
	}
	if got := writes.Load(); got != 0 {
		t.Fatalf("writes = %d, want 0", got)
	}

	if _, err := c.ListBooks(context.Background()); err != nil {
		t.Fatalf("ListBooks returned error: %v, reads need no token", err)
	}
}

func TestClient_ClassifiesFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/books":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("{not-json"))
		case "/latest-books":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"message":"database offline"}`)
		case "/featured-book":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	_, err = c.ListBooks(ctx)
	if !apperr.Is(err, apperr.KindUpstream) || !strings.Contains(err.Error(), "malformed response") {
		t.Fatalf("ListBooks error = %v, want malformed upstream error", err)
	}

	_, err = c.LatestBooks(ctx)
	if !apperr.Is(err, apperr.KindUpstream) || !strings.Contains(err.Error(), "database offline") {
		t.Fatalf("LatestBooks error = %v, want server message", err)
	}

	_, err = c.FeaturedBook(ctx)
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("FeaturedBook error = %v, want authorization", err)
	}

	_, err = c.ListComments(ctx, "nope")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("ListComments error = %v, want not found", err)
	}
}

func TestClient_TransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, err := NewClient(url, WithTimeout(500*time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.ListBooks(context.Background())
	if !apperr.Is(err, apperr.KindNetwork) {
		t.Fatalf("ListBooks error = %v, want network", err)
	}
}
