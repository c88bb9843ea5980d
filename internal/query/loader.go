package query

import (
	"context"

	"github.com/five82/shelf/internal/catalog"
)

// CommentReader lists the comments on a book.
type CommentReader interface {
	ListComments(ctx context.Context, bookID string) ([]catalog.Comment, error)
}

// Loader maps keys to the catalogue reads that fill them.
type Loader struct {
	books    catalog.BookReader
	comments CommentReader
}

// NewLoader binds a Loader to its readers.
func NewLoader(books catalog.BookReader, comments CommentReader) Loader {
	return Loader{books: books, comments: comments}
}

// Fetcher returns the fetch function for key, or nil for keys it does not
// know.
func (l Loader) Fetcher(key Key) Fetcher {
	if len(key) == 0 || l.books == nil {
		return nil
	}
	arg := ""
	if len(key) > 1 {
		arg = key[1]
	}
	switch key[0] {
	case "books":
		return Func(l.books.ListBooks)
	case "latestBooks":
		return Func(l.books.LatestBooks)
	case "featuredBook":
		return Func(l.books.FeaturedBook)
	case "bookData":
		if arg == "" {
			return nil
		}
		return Func(func(ctx context.Context) (catalog.Book, error) {
			return l.books.GetBook(ctx, arg)
		})
	case "comments":
		if arg == "" || l.comments == nil {
			return nil
		}
		return Func(func(ctx context.Context) ([]catalog.Comment, error) {
			return l.comments.ListComments(ctx, arg)
		})
	case "myBooks":
		if arg == "" {
			return nil
		}
		return Func(func(ctx context.Context) ([]catalog.Book, error) {
			return l.books.MyBooks(ctx, arg)
		})
	}
	return nil
}

// Observe watches key using the Loader's fetch function.
func (l Loader) Observe(c *Cache, key Key, fn func(Entry)) (stop func()) {
	return c.Observe(key, l.Fetcher(key), fn)
}

// Fetch loads key through c using the Loader's fetch function.
func (l Loader) Fetch(ctx context.Context, c *Cache, key Key) (Entry, error) {
	return c.Fetch(ctx, key, l.Fetcher(key))
}
