package fakeapi

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const maxUpload = 32 << 20

func (s *Server) upload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.URL.Query().Get("key") != s.imageKey {
		writeUploadError(w, http.StatusBadRequest, "Invalid API v1 key.")
		return
	}
	s.mu.Lock()
	fail := s.failUploads
	s.mu.Unlock()
	if fail {
		writeUploadError(w, http.StatusServiceUnavailable, "Upload service unavailable.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeUploadError(w, http.StatusBadRequest, "Empty upload source.")
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		writeUploadError(w, http.StatusBadRequest, "Empty upload source.")
		return
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		writeUploadError(w, http.StatusBadRequest, "Invalid image source.")
		return
	}

	name := uuid.NewString() + mt.Extension()
	s.mu.Lock()
	s.images[name] = data
	link := s.publicURL + "/images/" + name
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"id":          strings.TrimSuffix(name, path.Ext(name)),
			"title":       header.Filename,
			"url":         link,
			"display_url": link,
			"size":        len(data),
		},
		"success": true,
		"status":  http.StatusOK,
	})
}

func (s *Server) serveImage(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	data, ok := s.images[ps.ByName("name")]
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	_, _ = w.Write(data)
}

func writeUploadError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"status_code": status,
		"error":       map[string]any{"message": msg},
		"success":     false,
	})
}
