package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/PratikDhanave/tagbridge/internal/bridge"
	"github.com/PratikDhanave/tagbridge/internal/collector"
	"github.com/PratikDhanave/tagbridge/internal/config"
	"github.com/PratikDhanave/tagbridge/internal/httpserver"
	"github.com/PratikDhanave/tagbridge/internal/logging"
	"github.com/PratikDhanave/tagbridge/internal/store"
	tm "github.com/PratikDhanave/tagbridge/internal/tagmanager"
)

// main boots the service: config → logger → storage → tag manager → HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(os.Stderr, "error", "json")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	deps := httpserver.Deps{Config: cfg}

	var (
		cache tm.ContainerCache = tm.NewMemoryCache()
		sink  tm.HitSink        = tm.LogSink{Log: log.With().Str("component", "hits").Logger()}
	)

	// Postgres is optional; without it containers are cached in memory.
	if cfg.DBURL != "" {
		db, err := store.NewPostgresStore(ctx, cfg.DBURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		cache = db
		sink = store.HitSink{Store: db, AppID: cfg.AppID}
		deps.Store = db
		deps.Hits = db
		log.Info().Msg("postgres container cache and hit store enabled")
	} else if cfg.CollectorURL != "" {
		sink = collector.New(cfg.CollectorURL, cfg.CollectorAPIKey)
		log.Info().Str("collector", cfg.CollectorURL).Msg("collector hit sink enabled")
	}

	opts := []tm.LoaderOption{
		tm.WithCache(cache),
		tm.WithDefaults(tm.NewDirDefaults(cfg.ContainerDir)),
		tm.WithMaxAge(cfg.ContainerMaxAge),
	}
	if cfg.ContainerURL != "" {
		opts = append(opts, tm.WithFetcher(tm.NewHTTPFetcher(cfg.ContainerURL)))
	}
	loader := tm.NewLoader(log.With().Str("component", "loader").Logger(), opts...)

	manager := tm.NewManager(sink, log.With().Str("component", "manager").Logger())
	defer manager.StopDispatcher()

	deps.Dispatcher = bridge.NewDispatcher(manager, loader, log.With().Str("component", "bridge").Logger())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Deliver whatever is still queued before exiting.
	if n, err := manager.Dispatch(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("final dispatch failed")
	} else if n > 0 {
		log.Info().Int("hits", n).Msg("final dispatch")
	}
	return nil
}
