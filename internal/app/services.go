package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/config"
	"github.com/five82/shelf/internal/identity"
	"github.com/five82/shelf/internal/imagehost"
	"github.com/five82/shelf/internal/mutation"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/session"
	"github.com/five82/shelf/internal/storage"
)

// Version is reported in the User-Agent header.
var Version = "0.1"

// Services is the wired data layer shared by the UI.
type Services struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     *storage.DB
	Identity  *identity.Client
	Images    *imagehost.Client
	Session   *session.Provider
	Catalog   *catalog.Client
	Cache     *query.Cache
	Loader    query.Loader
	Mutations *mutation.Orchestrator
}

// Build wires every client from cfg. ctx bounds the cache's background
// requests. A nil notifier drops mutation results.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, notifier mutation.Notifier) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := storage.Open(cfg.SessionPath(), "session")
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	idp, err := identity.NewClient(cfg.IdentityURL, cfg.TokenURL, cfg.IdentityAPIKey,
		identity.WithLogger(logger.Named("identity")),
		identity.WithTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init identity client: %w", err)
	}

	images, err := imagehost.NewClient(cfg.ImageHostURL, cfg.ImageHostKey,
		imagehost.WithLogger(logger.Named("imagehost")),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init image host client: %w", err)
	}

	sess := session.New(idp, images,
		session.WithStore(db),
		session.WithLogger(logger.Named("session")),
	)

	cat, err := catalog.NewClient(cfg.ServerURL,
		catalog.WithTokenSource(sess),
		catalog.WithTimeout(cfg.RequestTimeout),
		catalog.WithLogger(logger.Named("catalog")),
		catalog.WithUserAgent("shelf/"+Version),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init catalog client: %w", err)
	}

	cache := query.New(
		query.WithContext(ctx),
		query.WithTimeout(cfg.RequestTimeout),
		query.WithLogger(logger.Named("query")),
	)

	mutOpts := []mutation.Option{mutation.WithLogger(logger.Named("mutation"))}
	if notifier != nil {
		mutOpts = append(mutOpts, mutation.WithNotifier(notifier))
	}

	return &Services{
		Config:    cfg,
		Logger:    logger,
		Store:     db,
		Identity:  idp,
		Images:    images,
		Session:   sess,
		Catalog:   cat,
		Cache:     cache,
		Loader:    query.NewLoader(cat, cat),
		Mutations: mutation.New(cat, images, sess, cache, mutOpts...),
	}, nil
}

// WatchIdentity invalidates per-user queries whenever the signed-in identity
// changes. It returns a function that stops watching.
func (s *Services) WatchIdentity() (stop func()) {
	var mu sync.Mutex
	last := s.Session.Current().Identity
	return s.Session.Subscribe(func(cur session.Session) {
		mu.Lock()
		changed := cur.Identity != last
		last = cur.Identity
		mu.Unlock()
		if changed {
			n := s.Cache.Invalidate(query.AnyMyBooks)
			s.Logger.Debug("identity changed", zap.String("identity", cur.Identity), zap.Int("invalidated", n))
		}
	})
}

// Close releases the session store. Calling it again is a no-op.
func (s *Services) Close() error {
	var errs []error
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session store: %w", err))
		}
		s.Store = nil
	}
	return errors.Join(errs...)
}
