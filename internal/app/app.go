package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/five82/shelf/internal/config"
	"github.com/five82/shelf/internal/logging"
	"github.com/five82/shelf/internal/prefs"
	"github.com/five82/shelf/internal/ui"
)

// Options configure the shelf application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/shelf/prefs.toml
	StartPath  string // first page, "/" when empty
}

// Run boots the shelf TUI until the user quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, flush, err := logging.Setup(cfg.LogPath(), cfg.Level())
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer flush()

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	inbox := ui.NewInbox(128)
	svc, err := Build(ctx, cfg, logger, inbox)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()
	logger.Info("shelf starting",
		zap.String("server", cfg.ServerURL),
		zap.String("version", Version),
	)

	stopWatch := svc.WatchIdentity()
	defer stopWatch()

	// Restore runs behind the UI so protected pages show the checking state.
	go func() {
		if err := svc.Session.Restore(ctx); err != nil {
			logger.Warn("session restore failed", zap.Error(err))
		}
	}()
	go func() {
		if err := PrefetchHome(ctx, svc.Cache, svc.Loader); err != nil {
			logger.Debug("home prefetch incomplete", zap.Error(err))
		}
	}()
	StartRefresher(ctx, svc.Cache, cfg.RefreshEvery, logger.Named("refresh"))

	return ui.Run(ui.Options{
		Context:   ctx,
		Session:   svc.Session,
		Cache:     svc.Cache,
		Loader:    svc.Loader,
		Mutations: svc.Mutations,
		Inbox:     inbox,
		Logger:    logger.Named("ui"),
		LogPath:   cfg.LogPath(),
		ThemeName: userPrefs.Theme,
		BookSort:  userPrefs.BookSort,
		PrefsPath: opts.PrefsPath,
		StartPath: opts.StartPath,
	})
}
