package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/five82/shelf/internal/apperr"
)

// BookReader fetches books. Implemented by *Client; the query layer and
// the UI depend on this rather than the concrete client.
type BookReader interface {
	ListBooks(ctx context.Context) ([]Book, error)
	LatestBooks(ctx context.Context) ([]Book, error)
	FeaturedBook(ctx context.Context) (Book, error)
	GetBook(ctx context.Context, id string) (Book, error)
	MyBooks(ctx context.Context, identity string) ([]Book, error)
}

// BookWriter creates, updates and deletes books.
type BookWriter interface {
	CreateBook(ctx context.Context, in BookInput) (string, error)
	UpdateBook(ctx context.Context, id string, in BookInput) error
	DeleteBook(ctx context.Context, id string) error
}

// CommentService lists and edits comments.
type CommentService interface {
	ListComments(ctx context.Context, bookID string) ([]Comment, error)
	CreateComment(ctx context.Context, in CommentInput) (string, error)
	DeleteComment(ctx context.Context, id string) error
}

// TokenSource supplies the bearer token attached to write requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Ensure Client implements the interfaces at compile time.
var (
	_ BookReader     = (*Client)(nil)
	_ BookWriter     = (*Client)(nil)
	_ CommentService = (*Client)(nil)
)

// Client talks to the book-catalogue HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	tokens    TokenSource
	logger    *zap.Logger
}

const (
	defaultServerURL = "http://localhost:5000"
	defaultUserAgent = "shelf/0.1"
	requestTimeout   = 10 * time.Second
	maxErrorBody     = 4 << 10
)

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-request transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTokenSource attaches bearer tokens to write requests.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// NewClient builds a Client bound to serverURL.
func NewClient(serverURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(serverURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ListBooks retrieves every book.
func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	return c.fetchBooks(ctx, "list books", &url.URL{Path: "/books"})
}

// LatestBooks retrieves the most recently added books.
func (c *Client) LatestBooks(ctx context.Context) ([]Book, error) {
	return c.fetchBooks(ctx, "latest books", &url.URL{Path: "/latest-books"})
}

// MyBooks retrieves the books owned by identity.
func (c *Client) MyBooks(ctx context.Context, identity string) ([]Book, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, apperr.Unauthorized("my books", "sign in to see your books")
	}
	values := url.Values{}
	values.Set("email", identity)
	return c.fetchBooks(ctx, "my books", &url.URL{Path: "/my-books", RawQuery: values.Encode()})
}

// FeaturedBook retrieves the book highlighted on the home page.
func (c *Client) FeaturedBook(ctx context.Context) (Book, error) {
	return c.fetchBook(ctx, "featured book", &url.URL{Path: "/featured-book"})
}

// GetBook retrieves a single book. A missing book yields a NotFound error.
func (c *Client) GetBook(ctx context.Context, id string) (Book, error) {
	if strings.TrimSpace(id) == "" {
		return Book{}, apperr.NotFound("get book")
	}
	return c.fetchBook(ctx, "get book", &url.URL{Path: "/book/" + url.PathEscape(id)})
}

// CreateBook stores a new book and returns its id.
func (c *Client) CreateBook(ctx context.Context, in BookInput) (string, error) {
	payload := newBookPayload(in)
	payload.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	var res insertResult
	if err := c.doURL(ctx, "add book", http.MethodPost, &url.URL{Path: "/add-book"}, payload, &res); err != nil {
		return "", err
	}
	return string(res.InsertedID), nil
}

// UpdateBook replaces the writable fields of a book. An empty cover URL
// leaves the stored cover untouched.
func (c *Client) UpdateBook(ctx context.Context, id string, in BookInput) error {
	var res updateResult
	rel := &url.URL{Path: "/update-book/" + url.PathEscape(id)}
	if err := c.doURL(ctx, "update book", http.MethodPatch, rel, newBookPayload(in), &res); err != nil {
		return err
	}
	if res.MatchedCount != nil && *res.MatchedCount == 0 {
		return apperr.NotFound("update book")
	}
	return nil
}

// DeleteBook removes a book.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	var res deleteResult
	rel := &url.URL{Path: "/book/" + url.PathEscape(id)}
	if err := c.doURL(ctx, "delete book", http.MethodDelete, rel, nil, &res); err != nil {
		return err
	}
	if res.DeletedCount != nil && *res.DeletedCount == 0 {
		return apperr.NotFound("delete book")
	}
	return nil
}

// ListComments retrieves the comments on a book, oldest first as served.
func (c *Client) ListComments(ctx context.Context, bookID string) ([]Comment, error) {
	var raw []commentWire
	rel := &url.URL{Path: "/comments/" + url.PathEscape(bookID)}
	if err := c.doURL(ctx, "list comments", http.MethodGet, rel, nil, &raw); err != nil {
		return nil, err
	}
	comments := make([]Comment, 0, len(raw))
	for _, w := range raw {
		comments = append(comments, w.comment())
	}
	return comments, nil
}

// CreateComment stores a comment and returns its id.
func (c *Client) CreateComment(ctx context.Context, in CommentInput) (string, error) {
	payload := commentPayload{
		BookID:    in.BookID,
		UserEmail: in.AuthorIdentity,
		UserName:  in.AuthorDisplayName,
		UserPhoto: in.AuthorAvatarURL,
		Text:      in.Text,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	var res insertResult
	if err := c.doURL(ctx, "add comment", http.MethodPost, &url.URL{Path: "/comments"}, payload, &res); err != nil {
		return "", err
	}
	return string(res.InsertedID), nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, id string) error {
	var res deleteResult
	rel := &url.URL{Path: "/comments/" + url.PathEscape(id)}
	if err := c.doURL(ctx, "delete comment", http.MethodDelete, rel, nil, &res); err != nil {
		return err
	}
	if res.DeletedCount != nil && *res.DeletedCount == 0 {
		return apperr.NotFound("delete comment")
	}
	return nil
}

func (c *Client) fetchBooks(ctx context.Context, op string, rel *url.URL) ([]Book, error) {
	var raw []bookWire
	if err := c.doURL(ctx, op, http.MethodGet, rel, nil, &raw); err != nil {
		return nil, err
	}
	books := make([]Book, 0, len(raw))
	for _, w := range raw {
		books = append(books, w.book())
	}
	return books, nil
}

// fetchBook treats a null body or a document without an id as missing; the
// server answers 200 with null for unknown ids.
func (c *Client) fetchBook(ctx context.Context, op string, rel *url.URL) (Book, error) {
	var raw json.RawMessage
	if err := c.doURL(ctx, op, http.MethodGet, rel, nil, &raw); err != nil {
		return Book{}, err
	}
	if isNull(bytes.TrimSpace(raw)) {
		return Book{}, apperr.NotFound(op)
	}
	var w bookWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Book{}, &apperr.Error{Kind: apperr.KindUpstream, Op: op, Message: "malformed response", Err: err}
	}
	if w.ID == "" {
		return Book{}, apperr.NotFound(op)
	}
	return w.book(), nil
}

func (c *Client) doURL(ctx context.Context, op, method string, rel *url.URL, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("token for %s: %w", op, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", rel.Path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return apperr.Network(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", rel.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("request_id", requestID),
	)

	if resp.StatusCode >= 400 {
		return classifyStatus(op, resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if err == io.EOF {
			return nil
		}
		return &apperr.Error{Kind: apperr.KindUpstream, Op: op, Message: "malformed response", Status: resp.StatusCode, Err: err}
	}
	return nil
}

func classifyStatus(op string, resp *http.Response) error {
	message := serverMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperr.NotFound(op)
	case http.StatusUnauthorized, http.StatusForbidden:
		if message == "" {
			message = "not allowed"
		}
		e := apperr.Unauthorized(op, message)
		e.Status = resp.StatusCode
		return e
	default:
		return apperr.Upstream(op, resp.StatusCode, message)
	}
}

// serverMessage extracts {"message": ...} or {"error": ...} from an error
// body, falling back to its trimmed text.
func serverMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func parseBaseURL(serverURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(serverURL)
	if trimmed == "" {
		trimmed = defaultServerURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", serverURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse server url %q: missing host", serverURL)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
