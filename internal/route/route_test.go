package route

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw       string
		page      Page
		id        string
		protected bool
	}{
		{"/", Home, "", false},
		{"", Home, "", false},
		{"/all-books", AllBooks, "", false},
		{"/all-books/", AllBooks, "", false},
		{"/book/42", BookDetail, "42", false},
		{"/add-book", AddBook, "", true},
		{"/my-books", MyBooks, "", true},
		{"/update-book/abc", UpdateBook, "abc", true},
		{"/auth/login?from=%2Fmy-books", Login, "", false},
		{"/auth/register", Register, "", false},
		{"/activity", Activity, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.page, r.Page)
			assert.Equal(t, tt.id, r.ID)
			assert.Equal(t, tt.protected, r.Protected())
		})
	}
}

func TestParseUnknown(t *testing.T) {
	for _, raw := range []string{"/books", "/book", "/book/1/2", "/auth"} {
		_, err := Parse(raw)
		assert.True(t, errors.Is(err, ErrNotFound), raw)
	}
}

func TestLoginRoundTrip(t *testing.T) {
	login, err := Parse(LoginPath("/update-book/7"))
	require.NoError(t, err)
	assert.Equal(t, Login, login.Page)
	assert.Equal(t, "/update-book/7", ReturnPath(login))

	assert.Equal(t, "/auth/login", LoginPath("/"))
	plain, err := Parse("/auth/login")
	require.NoError(t, err)
	assert.Equal(t, "/", ReturnPath(plain))
}

func TestReturnPathRejectsLoops(t *testing.T) {
	for _, from := range []string{"/auth/login", "/auth/register", "/nowhere"} {
		r, err := Parse(LoginPath(from))
		require.NoError(t, err)
		assert.Equal(t, "/", ReturnPath(r), from)
	}
}

func TestPathBuilders(t *testing.T) {
	assert.Equal(t, "/book/a%2Fb", BookPath("a/b"))
	assert.Equal(t, "/update-book/9", UpdateBookPath("9"))
	assert.Equal(t, "My Books", MyBooks.String())
}
