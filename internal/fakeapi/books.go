package fakeapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const latestLimit = 6

// createdLayout is how the server stamps created_at.
const createdLayout = "2006-01-02 15:04:05"

type bookDoc struct {
	ID          string  `json:"_id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Genre       string  `json:"genre"`
	Rating      float64 `json:"rating"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	CoverImage  string  `json:"coverImage"`
	UserEmail   string  `json:"userEmail"`
	UserName    string  `json:"userName"`
	CreatedAt   string  `json:"created_at"`
}

type commentDoc struct {
	ID        string `json:"_id"`
	BookID    string `json:"bookId"`
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName"`
	UserPhoto string `json:"userPhoto,omitempty"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) listBooks(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	out := append([]bookDoc{}, s.books...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) latestBooks(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	out := append([]bookDoc{}, s.books...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if len(out) > latestLimit {
		out = out[:latestLimit]
	}
	writeJSON(w, http.StatusOK, out)
}

// featuredBook serves the best rated book, newest first on ties, or null.
func (s *Server) featuredBook(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *bookDoc
	for i := range s.books {
		b := &s.books[i]
		if best == nil || b.Rating > best.Rating || (b.Rating == best.Rating && b.CreatedAt > best.CreatedAt) {
			best = b
		}
	}
	if best == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, best)
}

func (s *Server) getBook(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.bookIndex(ps.ByName("id"))
	if i < 0 {
		writeMessage(w, http.StatusNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, s.books[i])
}

func (s *Server) myBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeMessage(w, http.StatusBadRequest, "email is required")
		return
	}
	s.mu.Lock()
	out := []bookDoc{}
	for _, b := range s.books {
		if strings.EqualFold(b.UserEmail, email) {
			out = append(out, b)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params, email string) {
	var in bookDoc
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid book payload")
		return
	}
	if in.UserEmail != "" && !strings.EqualFold(in.UserEmail, email) {
		writeMessage(w, http.StatusForbidden, "forbidden access")
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeMessage(w, http.StatusBadRequest, "title is required")
		return
	}
	in.ID = uuid.NewString()
	in.UserEmail = email
	in.CreatedAt = s.now().UTC().Format(createdLayout)

	s.mu.Lock()
	s.books = append(s.books, in)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "insertedId": in.ID})
}

func (s *Server) updateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params, email string) {
	var in bookDoc
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid book payload")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.bookIndex(ps.ByName("id"))
	if i < 0 {
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "matchedCount": 0, "modifiedCount": 0})
		return
	}
	b := &s.books[i]
	if !strings.EqualFold(b.UserEmail, email) {
		writeMessage(w, http.StatusForbidden, "forbidden access")
		return
	}
	b.Title, b.Author, b.Genre = in.Title, in.Author, in.Genre
	b.Rating, b.Summary, b.Description = in.Rating, in.Summary, in.Description
	if in.CoverImage != "" {
		b.CoverImage = in.CoverImage
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "matchedCount": 1, "modifiedCount": 1})
}

func (s *Server) deleteBook(w http.ResponseWriter, _ *http.Request, ps httprouter.Params, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ps.ByName("id")
	i := s.bookIndex(id)
	if i < 0 {
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "deletedCount": 0})
		return
	}
	if !strings.EqualFold(s.books[i].UserEmail, email) {
		writeMessage(w, http.StatusForbidden, "forbidden access")
		return
	}
	s.books = append(s.books[:i], s.books[i+1:]...)
	kept := s.comments[:0]
	for _, c := range s.comments {
		if c.BookID != id {
			kept = append(kept, c)
		}
	}
	s.comments = kept
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "deletedCount": 1})
}

func (s *Server) listComments(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	s.mu.Lock()
	out := []commentDoc{}
	for _, c := range s.comments {
		if c.BookID == id {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request, _ httprouter.Params, email string) {
	var in commentDoc
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid comment payload")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bookIndex(in.BookID) < 0 {
		writeMessage(w, http.StatusNotFound, "book not found")
		return
	}
	in.ID = uuid.NewString()
	in.UserEmail = email
	in.CreatedAt = s.now().UTC().Format(createdLayout)
	s.comments = append(s.comments, in)
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "insertedId": in.ID})
}

func (s *Server) deleteComment(w http.ResponseWriter, _ *http.Request, ps httprouter.Params, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ps.ByName("id")
	for i, c := range s.comments {
		if c.ID != id {
			continue
		}
		if !strings.EqualFold(c.UserEmail, email) {
			writeMessage(w, http.StatusForbidden, "forbidden access")
			return
		}
		s.comments = append(s.comments[:i], s.comments[i+1:]...)
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "deletedCount": 1})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "deletedCount": 0})
}

func (s *Server) bookIndex(id string) int {
	for i, b := range s.books {
		if b.ID == id {
			return i
		}
	}
	return -1
}
