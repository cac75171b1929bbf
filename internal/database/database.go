// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package database provides the DuckDB-backed persistence layer: the
// append-only event log, the rolling track/transition statistics, the audio
// feature cache, and the library track set.
//
// Counter updates are key-scoped read-modify-write operations. Each update
// acquires a per-key mutex and runs inside a transaction, so concurrent
// ingestion for the same track or transition serializes while different keys
// proceed in parallel. A lost update on starts/skips_fast silently corrupts
// the statistics the recommender depends on, which makes this the primary
// correctness concern of the package.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/metrics"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// Per-key write locks for counter UPSERTs.
	keyLocks sync.Map
}

// New creates a new database connection and initializes the schema.
// An empty cfg.Path opens an in-memory database (used by tests).
func New(cfg *config.DatabaseConfig) (*DB, error) {
	if cfg == nil {
		cfg = &config.Default().Database
	}

	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	connStr := ""
	if cfg.Path != "" {
		// Ensure parent directory exists for the database file.
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		maxMemory := cfg.MaxMemory
		if maxMemory == "" {
			maxMemory = "1GB"
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, numThreads, maxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	// DuckDB works best with a single writer connection; reads multiplex fine.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(numThreads)
	conn.SetConnMaxLifetime(0)

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("database opened")
	return db, nil
}

// schema is executed on every open; all statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id      UUID PRIMARY KEY,
		ts_ms         BIGINT NOT NULL,
		session_id    VARCHAR NOT NULL,
		event_type    VARCHAR NOT NULL,
		track_id      VARCHAR,
		prev_track_id VARCHAR,
		position_ms   BIGINT,
		listened_ms   BIGINT,
		duration_ms   BIGINT,
		action        VARCHAR,
		reason        VARCHAR,
		device_id     VARCHAR,
		received_at   TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS track_stats (
		track_id          VARCHAR PRIMARY KEY,
		starts            BIGINT NOT NULL DEFAULT 0,
		completions       BIGINT NOT NULL DEFAULT 0,
		skips_fast        BIGINT NOT NULL DEFAULT 0,
		total_listen_ms   BIGINT NOT NULL DEFAULT 0,
		last_played_ts_ms BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS transition_stats (
		from_track_id   VARCHAR NOT NULL,
		to_track_id     VARCHAR NOT NULL,
		starts          BIGINT NOT NULL DEFAULT 0,
		skips_fast      BIGINT NOT NULL DEFAULT 0,
		total_listen_ms BIGINT NOT NULL DEFAULT 0,
		last_ts_ms      BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (from_track_id, to_track_id)
	)`,
	`CREATE TABLE IF NOT EXISTS audio_features (
		track_id         VARCHAR PRIMARY KEY,
		duration_ms      BIGINT,
		danceability     DOUBLE,
		energy           DOUBLE,
		valence          DOUBLE,
		tempo            DOUBLE,
		acousticness     DOUBLE,
		instrumentalness DOUBLE,
		liveness         DOUBLE,
		speechiness      DOUBLE,
		loudness         DOUBLE,
		updated_ts_ms    BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS library_tracks (
		track_id        VARCHAR PRIMARY KEY,
		uri             VARCHAR NOT NULL,
		added_at        TIMESTAMP,
		source          VARCHAR NOT NULL DEFAULT 'liked',
		last_seen_ts_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session ON events (session_id, ts_ms)`,
	`CREATE INDEX IF NOT EXISTS idx_transition_from ON transition_stats (from_track_id, starts)`,
}

// initialize creates the schema if it does not exist.
func (db *DB) initialize() error {
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Conn exposes the underlying connection for advanced callers (tests).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// lockKey serializes updates for one logical counter row. The returned
// unlock function must be called exactly once.
func (db *DB) lockKey(key string) func() {
	muIface, _ := db.keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// observe records query timing and errors for Prometheus.
func observe(operation, table string, start time.Time, err error) {
	metrics.DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// closeQuietly closes the connection, logging any error.
func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("failed to close database connection")
	}
}
