package imagehost

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/shelf/internal/apperr"
)

var pngData = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

func TestCheck(t *testing.T) {
	mt, err := Check(Image{Name: "cover.png", Data: pngData})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mt)

	_, err = Check(Image{})
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = Check(Image{Name: "notes.txt", Data: []byte("just some text, not a picture")})
	assert.ErrorIs(t, err, ErrNotImage)

	big := make([]byte, MaxImageSize+1)
	copy(big, pngData)
	_, err = Check(Image{Name: "huge.png", Data: big})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.png")
	require.NoError(t, os.WriteFile(path, pngData, 0o644))

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, "cover.png", img.Name)
	assert.Equal(t, pngData, img.Data)

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)

	_, err = LoadImage("  ")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestUploadPostsMultipart(t *testing.T) {
	var gotKey, gotName string
	var gotBytes int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		file, header, err := r.FormFile("image")
		if err == nil {
			gotName = header.Filename
			data, _ := io.ReadAll(file)
			gotBytes = len(data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"url":"https://i.example/abc.png"},"success":true,"status":200}`)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "k123")
	require.NoError(t, err)

	link, err := c.Upload(context.Background(), Image{Name: "cover.png", Data: pngData})
	require.NoError(t, err)
	assert.Equal(t, "https://i.example/abc.png", link)
	assert.Equal(t, "k123", gotKey)
	assert.Equal(t, "cover.png", gotName)
	assert.Equal(t, len(pngData), gotBytes)
}

func TestUploadRejectsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "k123")
	require.NoError(t, err)

	_, err = c.Upload(context.Background(), Image{Name: "a.txt", Data: []byte("plain text")})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "error = %v", err)
	assert.Contains(t, apperr.FieldErrors(err)["image"], "image")

	noKey, err := NewClient(server.URL, "")
	require.NoError(t, err)
	_, err = noKey.Upload(context.Background(), Image{Name: "a.png", Data: pngData})
	assert.True(t, apperr.Is(err, apperr.KindUpstream), "error = %v", err)

	assert.Zero(t, calls.Load())
}

func TestUploadSurfacesHostError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status_code":400,"error":{"message":"Invalid API v1 key."},"success":false}`)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "bad")
	require.NoError(t, err)

	_, err = c.Upload(context.Background(), Image{Name: "a.png", Data: pngData})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Contains(t, err.Error(), "Invalid API v1 key.")
}
