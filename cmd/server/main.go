package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/planning-poker-backend/internal/archive"
	"github.com/DoyleJ11/planning-poker-backend/internal/config"
	"github.com/DoyleJ11/planning-poker-backend/internal/httpapi"
	"github.com/DoyleJ11/planning-poker-backend/internal/hub"
	"github.com/DoyleJ11/planning-poker-backend/internal/logging"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(cfg, log))
}

func run(cfg config.Config, log *zap.Logger) int {
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, closeSink := openArchive(ctx, cfg, log)
	rec := archive.NewRecorder(sink, log, archive.DefaultBuffer)

	h := hub.NewHub(ctx, hub.Options{
		GracePeriod: cfg.GracePeriod,
		Logger:      log,
		Archiver:    rec,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, httpapi.Options{Logger: log, OriginPatterns: cfg.AllowedOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A server that fails to listen cancels gctx, which also stops the
	// recorder so g.Wait returns.
	g, gctx := errgroup.WithContext(ctx)
	recCtx, stopRecorder := context.WithCancel(gctx)
	defer stopRecorder()

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return rec.Run(recCtx) })

	var runErr error
	done := make(chan struct{})
	go func() {
		runErr = g.Wait()
		close(done)
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			log.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
		"hub": func(ctx context.Context) error {
			return h.Stop(ctx)
		},
		"archive": func(ctx context.Context) error {
			stopRecorder()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return closeSink()
		},
	})

	select {
	case code := <-wait:
		log.Info("exited", zap.Int("code", code))
		return code
	case <-done:
		if runErr != nil {
			log.Error("server stopped", zap.Error(runErr))
			return 1
		}
		return <-wait
	}
}

// openArchive returns the Postgres sink when DATABASE_URL is set. A database
// that cannot be reached disables the archive rather than the server.
func openArchive(ctx context.Context, cfg config.Config, log *zap.Logger) (archive.Sink, func() error) {
	noop := func() error { return nil }
	if cfg.DatabaseURL == "" {
		log.Info("round archive disabled")
		return archive.Discard{}, noop
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := archive.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("open round archive, continuing without it", zap.Error(err))
		return archive.Discard{}, noop
	}
	log.Info("round archive enabled")
	return pg, pg.Close
}
