// Package fakeapi is an in-memory stand-in for the three services shelf
// talks to: the catalogue REST server, the identity provider and the image
// host. It backs the package tests and the shelf-fakeapi demo command.
package fakeapi

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	// DefaultIdentityKey and DefaultImageKey are accepted unless overridden.
	DefaultIdentityKey = "fake-identity-key"
	DefaultImageKey    = "fake-image-key"

	tokenTTL = time.Hour
)

// Server holds the fake state. All handlers share one lock.
type Server struct {
	mu       sync.Mutex
	books    []bookDoc
	comments []commentDoc
	images   map[string][]byte
	accounts map[string]*account
	refresh  map[string]string // refresh token -> email

	secret      []byte
	identityKey string
	imageKey    string
	publicURL   string
	now         func() time.Time
	logger      *zap.Logger
	failUploads bool

	router *httprouter.Router
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger logs every request.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeys sets the accepted identity and image host API keys.
func WithKeys(identityKey, imageKey string) Option {
	return func(s *Server) {
		s.identityKey = identityKey
		s.imageKey = imageKey
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDemoData seeds a few books and comments.
func WithDemoData() Option {
	return func(s *Server) { s.seed() }
}

// New builds a Server.
func New(opts ...Option) *Server {
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	s := &Server{
		images:      make(map[string][]byte),
		accounts:    make(map[string]*account),
		refresh:     make(map[string]string),
		secret:      secret,
		identityKey: DefaultIdentityKey,
		imageKey:    DefaultImageKey,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// SetPublicURL sets the root used in uploaded image links. Call it once the
// listener address is known.
func (s *Server) SetPublicURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publicURL = strings.TrimRight(u, "/")
}

// FailUploads makes the image host reject every upload.
func (s *Server) FailUploads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = fail
}

// Handler serves every fake endpoint.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *httprouter.Router {
	r := httprouter.New()
	r.RedirectTrailingSlash = true

	r.GET("/books", s.logged(s.listBooks))
	r.GET("/latest-books", s.logged(s.latestBooks))
	r.GET("/featured-book", s.logged(s.featuredBook))
	r.GET("/book/:id", s.logged(s.getBook))
	r.GET("/my-books", s.logged(s.myBooks))
	r.POST("/add-book", s.logged(s.authed(s.addBook)))
	r.PATCH("/update-book/:id", s.logged(s.authed(s.updateBook)))
	r.DELETE("/book/:id", s.logged(s.authed(s.deleteBook)))

	r.GET("/comments/:id", s.logged(s.listComments))
	r.POST("/comments", s.logged(s.authed(s.addComment)))
	r.DELETE("/comments/:id", s.logged(s.authed(s.deleteComment)))

	// accounts:signUp and friends contain a colon, so the identity
	// endpoints share one route and dispatch on the action.
	r.POST("/v1/:action", s.logged(s.identityAction))

	r.POST("/1/upload", s.logged(s.upload))
	r.GET("/images/:name", s.logged(s.serveImage))

	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	return r
}

func (s *Server) logged(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next(w, r, ps)
		s.logger.Info("request",
			zap.String("request.id", requestID),
			zap.String("request.method", r.Method),
			zap.String("request.path", r.URL.Path),
			zap.Duration("request.duration", time.Since(start)),
		)
	}
}

type authedHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, email string)

// authed requires a Bearer ID token issued by this server.
func (s *Server) authed(next authedHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeMessage(w, http.StatusUnauthorized, "unauthorized access")
			return
		}
		claims, err := s.verify(raw)
		if err != nil {
			s.logger.Debug("rejected token", zap.Error(err))
			writeMessage(w, http.StatusUnauthorized, "unauthorized access")
			return
		}
		next(w, r, ps, claims.Email)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
