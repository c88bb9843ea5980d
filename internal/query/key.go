package query

import (
	"encoding/json"
	"strings"
)

// Key identifies a cached query. The first element names the resource and
// the rest are its parameters.
type Key []string

// AllBooks is the key for the full book list.
func AllBooks() Key { return Key{"books"} }

// LatestBooks is the key for the home-page latest list.
func LatestBooks() Key { return Key{"latestBooks"} }

// FeaturedBook is the key for the home-page featured book.
func FeaturedBook() Key { return Key{"featuredBook"} }

// Book is the key for one book's details.
func Book(id string) Key { return Key{"bookData", id} }

// Comments is the key for the comments on a book.
func Comments(bookID string) Key { return Key{"comments", bookID} }

// MyBooks is the key for the books owned by identity.
func MyBooks(identity string) Key { return Key{"myBooks", identity} }

// Resource keys without parameters, for prefix invalidation.
var (
	AnyBook     = Key{"bookData"}
	AnyComments = Key{"comments"}
	AnyMyBooks  = Key{"myBooks"}
)

func (k Key) String() string {
	return strings.Join(k, "/")
}

// ID is a stable map identity for k. Unlike String, it keeps ["a/b"] and
// ["a","b"] apart.
func (k Key) ID() string {
	b, _ := json.Marshal([]string(k))
	return string(b)
}

// HasPrefix reports whether k starts with every element of prefix. An empty
// prefix matches everything.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether k and other name the same query.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}
