// Package route maps navigation paths to pages.
package route

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// Page identifies a view.
type Page int

const (
	Home Page = iota
	AllBooks
	BookDetail
	AddBook
	MyBooks
	UpdateBook
	Login
	Register
	Activity
)

type pattern struct {
	page      Page
	path      string
	title     string
	protected bool
}

var patterns = []pattern{
	{Home, "/", "Home", false},
	{AllBooks, "/all-books", "All Books", false},
	{BookDetail, "/book/:id", "Book", false},
	{AddBook, "/add-book", "Add Book", true},
	{MyBooks, "/my-books", "My Books", true},
	{UpdateBook, "/update-book/:id", "Update Book", true},
	{Login, "/auth/login", "Sign In", false},
	{Register, "/auth/register", "Register", false},
	{Activity, "/activity", "Activity", false},
}

func (p Page) String() string {
	for _, pt := range patterns {
		if pt.page == p {
			return pt.title
		}
	}
	return fmt.Sprintf("Page(%d)", int(p))
}

// Protected reports whether the page needs a signed-in user.
func (p Page) Protected() bool {
	for _, pt := range patterns {
		if pt.page == p {
			return pt.protected
		}
	}
	return false
}

// ErrNotFound is returned by Parse for paths no page serves.
var ErrNotFound = errors.New("no such page")

// Route is a parsed navigation target.
type Route struct {
	Page  Page
	Path  string // path without the query
	ID    string // :id segment for book pages
	Query url.Values
}

// Protected reports whether the route needs a signed-in user.
func (r Route) Protected() bool { return r.Page.Protected() }

// String returns the path with its query.
func (r Route) String() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}

// Table resolves paths against the page patterns.
type Table struct {
	router *httprouter.Router
}

type resolved struct {
	page Page
}

func (*resolved) Header() http.Header         { return http.Header{} }
func (*resolved) Write(b []byte) (int, error) { return len(b), nil }
func (*resolved) WriteHeader(int)             {}

// NewTable builds the route table.
func NewTable() *Table {
	r := httprouter.New()
	r.RedirectTrailingSlash = true
	for _, pt := range patterns {
		page := pt.page
		r.GET(pt.path, func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			w.(*resolved).page = page
		})
	}
	return &Table{router: r}
}

var defaultTable = NewTable()

// Parse resolves raw (a path with optional query) with the default table.
func Parse(raw string) (Route, error) { return defaultTable.Parse(raw) }

// Parse resolves raw to a Route.
func (t *Table) Parse(raw string) (Route, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Route{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	handle, params, tsr := t.router.Lookup(http.MethodGet, path)
	if handle == nil && tsr {
		path = strings.TrimSuffix(path, "/")
		handle, params, _ = t.router.Lookup(http.MethodGet, path)
	}
	if handle == nil {
		return Route{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	var res resolved
	handle(&res, nil, params)
	return Route{Page: res.page, Path: path, ID: params.ByName("id"), Query: u.Query()}, nil
}

// BookPath is the detail page of a book.
func BookPath(id string) string { return "/book/" + url.PathEscape(id) }

// UpdateBookPath is the edit page of a book.
func UpdateBookPath(id string) string { return "/update-book/" + url.PathEscape(id) }

// LoginPath is the sign-in page returning to from afterwards.
func LoginPath(from string) string {
	if from == "" || from == "/" {
		return "/auth/login"
	}
	return "/auth/login?" + url.Values{"from": {from}}.Encode()
}

// ReturnPath is where a sign-in started from r should land. It falls back
// to the home page when r carries no usable from parameter.
func ReturnPath(r Route) string {
	from := r.Query.Get("from")
	if from == "" {
		return "/"
	}
	target, err := Parse(from)
	if err != nil || target.Page == Login || target.Page == Register {
		return "/"
	}
	return target.String()
}
