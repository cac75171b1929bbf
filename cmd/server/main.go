// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package main is the entry point for the Segue server.
//
// Segue ingests listening telemetry from music clients, aggregates per-track
// and track-to-track statistics, and serves next-track recommendations that
// blend transition history, audio-feature similarity, and global popularity.
//
// # Application Architecture
//
// The server initializes components in this order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML file, env vars)
//  2. Database: DuckDB event log and aggregate tables
//  3. Catalog client: rate-limited, circuit-broken music catalog API access
//  4. Metadata cache: Badger TTL cache in front of the catalog
//  5. Feature provider: audio-feature vectors with stale-refresh
//  6. Aggregation pipeline: Watermill in-process router with retry and a
//     poison topic
//  7. Recommendation engine: candidate generation, scoring, fallback
//  8. HTTP server: telemetry, recommendation, library, and health endpoints
//
// The pipeline and the HTTP server run under a suture supervision tree so a
// crash in one restarts only that service.
//
// # Configuration
//
// Environment variables override the YAML file, which overrides defaults.
// The catalog token is required for library sync and queueing:
//
//	export SEGUE_CATALOG_TOKEN=your-token
//	export SEGUE_DATABASE_PATH=/data/segue.duckdb
//	./segue
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the pipeline router closes, then the cache and the
// database are released.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/seguefm/segue/internal/api"
	"github.com/seguefm/segue/internal/catalog"
	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/database"
	"github.com/seguefm/segue/internal/features"
	"github.com/seguefm/segue/internal/ingest"
	"github.com/seguefm/segue/internal/library"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/pipeline"
	"github.com/seguefm/segue/internal/recommend"
	"github.com/seguefm/segue/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("catalog_url", cfg.Catalog.BaseURL).
		Int("port", cfg.Server.Port).
		Msg("Starting Segue")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	client := catalog.NewClient(&cfg.Catalog)
	if cfg.Catalog.Token == "" {
		logging.Warn().Msg("No catalog token configured; library sync and queueing will fail")
	}

	cache, err := catalog.NewMetadataCache(&cfg.Cache, client)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open metadata cache")
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing metadata cache")
		}
	}()

	provider := features.NewProvider(db, client, cfg.Recommend.FeatureMaxAge)
	aggregator := ingest.NewAggregator(db, provider, &cfg.Ingest)

	pipe, err := pipeline.New(&cfg.Pipeline, aggregator)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build event pipeline")
	}
	defer func() {
		if err := pipe.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event pipeline")
		}
	}()

	librarySvc := library.NewService(client, db)
	engine := recommend.NewEngine(db, provider, cache, client, &cfg.Recommend)

	handler := api.NewHandler(db, pipe, engine, librarySvc)
	router := api.NewRouter(handler, &cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(supervisor.NewPipelineService(pipe))
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Segue stopped gracefully")
}
