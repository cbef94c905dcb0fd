// main.go
//
// Entry point for the Birdle server.
//   - Loads .env and configuration, sets the log level.
//   - Opens and migrates the SQLite database.
//   - Loads the bird name catalog and refreshes it from upstream.
//   - Serves HTTP until interrupted, then shuts down and abandons live sessions.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/birdle/internal/birdnet"
	"github.com/robalobadob/birdle/internal/config"
	"github.com/robalobadob/birdle/internal/database"
	"github.com/robalobadob/birdle/internal/history"
	"github.com/robalobadob/birdle/internal/httpserver"
	"github.com/robalobadob/birdle/internal/session"
	"github.com/robalobadob/birdle/internal/store"
	"github.com/robalobadob/birdle/internal/suggest"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	db, err := database.OpenMigrated(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()

	catalog, err := suggest.LoadCatalog(cfg.NamesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load bird names")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := birdnet.New(cfg.APIURL, birdnet.WithImageBase(cfg.ImageURL))
	hist := history.NewSQLStore(db)
	sessions := store.NewMemoryStore(cfg.SessionIdleTimeout, nil)
	factory := &session.Factory{Upstream: client, History: hist, Location: cfg.Location}

	srv := httpserver.New(cfg, httpserver.Deps{
		DB:       db,
		Sessions: sessions,
		Factory:  factory,
		History:  hist,
		Catalog:  catalog,
		Uploader: client,
	})
	hs := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		catalog.Refresh(gctx, client)
		log.Info().Int("names", catalog.Len()).Msg("bird names ready")
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", hs.Addr).Str("tz", cfg.Location.String()).Msg("starting birdle server")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return hs.Shutdown(sctx)
	})

	err = g.Wait()
	sessions.Close()
	factory.Wait()
	if err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
