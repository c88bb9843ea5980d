package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}

func TestPutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shelf.db")
	db, err := Open(path, "session")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var got record
	found, err := db.Get("session", "current", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.Put("session", "current", record{Email: "ann@example.com", Count: 2}))
	found, err = db.Get("session", "current", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record{Email: "ann@example.com", Count: 2}, got)

	require.NoError(t, db.Delete("session", "current"))
	found, err = db.Get("session", "current", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.Delete("unknown", "x"))
	found, err = db.Get("unknown", "x", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelf.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Put("prefs", "k", record{Count: 7}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var got record
	found, err := db.Get("prefs", "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, got.Count)
}
