// Command shelf-fakeapi serves the catalogue, identity and image host APIs
// from memory so shelf can run without any outside service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/five82/shelf/internal/fakeapi"
	"github.com/five82/shelf/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "127.0.0.1:5000", "listen address")
	demo := flag.Bool("demo", true, "seed the demo catalogue")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	lvl, err := zapcore.ParseLevel(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shelf-fakeapi: invalid log level %q\n", *level)
		return 2
	}
	logger := logging.New(os.Stderr, lvl)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []fakeapi.Option{fakeapi.WithLogger(logger)}
	if *demo {
		opts = append(opts, fakeapi.WithDemoData())
	}
	srv := fakeapi.New(opts...)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("listen failed", zap.String("addr", *addr), zap.Error(err))
		return 1
	}
	public := "http://" + ln.Addr().String()
	srv.SetPublicURL(public)

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	logger.Info("fake api listening",
		zap.String("url", public),
		zap.Bool("demo", *demo),
	)
	fmt.Printf("SHELF_SERVER_URL=%s\nSHELF_IMAGE_HOST_URL=%s\nSHELF_IMAGE_HOST_KEY=%s\nSHELF_IDENTITY_URL=%s\nSHELF_TOKEN_URL=%s\nSHELF_IDENTITY_API_KEY=%s\n",
		public, public, fakeapi.DefaultImageKey, public, public, fakeapi.DefaultIdentityKey)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve failed", zap.Error(err))
			return 1
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	return 0
}
