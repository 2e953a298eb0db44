// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Command server runs the Cadenza recommendation service: the HTTP API
// and the analysis event router under one supervision tree.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/cadenza-audio/cadenza/internal/analysisdb"
	"github.com/cadenza-audio/cadenza/internal/api"
	"github.com/cadenza-audio/cadenza/internal/config"
	"github.com/cadenza-audio/cadenza/internal/events"
	"github.com/cadenza-audio/cadenza/internal/logging"
	"github.com/cadenza-audio/cadenza/internal/recommend"
	"github.com/cadenza-audio/cadenza/internal/recommend/contextcache"
	"github.com/cadenza-audio/cadenza/internal/recommend/vector"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})
	logger := logging.Logger()
	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("cache_backend", cfg.Cache.Backend).
		Int("embedding_dim", cfg.Index.EmbeddingDim).
		Msg("starting cadenza recommendation server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	contexts, err := contextcache.New(contextcache.Config{
		Backend: cfg.Cache.Backend,
		Path:    cfg.Cache.Path,
		TTL:     cfg.CacheTTL(),
	}, logger.With().Str("component", "contextcache").Logger())
	if err != nil {
		return fmt.Errorf("context store: %w", err)
	}
	defer func() {
		if err := contexts.Close(); err != nil {
			logger.Error().Err(err).Msg("context store close failed")
		}
	}()

	index := vector.NewStore(cfg.Index.EmbeddingDim, cfg.Index.MaxEntriesPerUser)

	svc, err := recommend.NewService(recommend.Config{
		TopKDefault:            cfg.Recommend.TopKDefault,
		TopKMax:                cfg.Recommend.TopKMax,
		KNNCandidateMultiplier: cfg.Recommend.KNNCandidateMultiplier,
		MinCandidatePool:       cfg.Recommend.MinCandidatePool,
		Deadline:               cfg.Deadline(),
		PseudoVectorRecents:    cfg.Recommend.PseudoVectorRecents,
	}, index, contexts, logger.With().Str("component", "recommend").Logger())
	if err != nil {
		return fmt.Errorf("recommendation service: %w", err)
	}

	var archive *analysisdb.Archive
	if cfg.Archive.Enabled {
		archive, err = analysisdb.Open(cfg.Archive.Path,
			logger.With().Str("component", "analysisdb").Logger())
		if err != nil {
			return fmt.Errorf("analysis archive: %w", err)
		}
		defer func() {
			if err := archive.Close(); err != nil {
				logger.Error().Err(err).Msg("analysis archive close failed")
			}
		}()

		if err := svc.Rebuild(ctx, archive); err != nil {
			return fmt.Errorf("cold-start replay: %w", err)
		}
	}

	pubsub := events.NewPubSub(cfg.Events.Buffer,
		logger.With().Str("component", "events").Logger())
	eventRouter, err := events.NewRouter(pubsub, svc, archive,
		logger.With().Str("component", "events").Logger())
	if err != nil {
		return fmt.Errorf("event router: %w", err)
	}

	handlers := api.NewHandlers(svc, contexts, archive,
		logger.With().Str("component", "api").Logger())

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	slogHandler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	tree := suture.New("cadenza", suture.Spec{
		EventHook:        slogHandler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   5 * time.Second,
		Timeout:          15 * time.Second,
	})
	tree.Add(&httpService{
		srv:             httpSrv,
		shutdownTimeout: time.Duration(cfg.Server.ShutdownSec) * time.Second,
	})
	tree.Add(&routerService{router: eventRouter})

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// httpService adapts http.Server to suture.Service with graceful
// shutdown on supervisor stop.
type httpService struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

func (s *httpService) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *httpService) String() string { return "http-server" }

// routerService adapts the Watermill router to suture.Service.
type routerService struct {
	router interface {
		Run(ctx context.Context) error
	}
}

func (s *routerService) Serve(ctx context.Context) error {
	return s.router.Run(ctx)
}

func (s *routerService) String() string { return "event-router" }
