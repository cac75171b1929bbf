// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/seguefm/segue/internal/models"
)

// UpsertLibraryTrack stores or refreshes one saved-library row. Existing rows
// keep their original added_at; only last_seen_ts_ms and uri refresh.
func (db *DB) UpsertLibraryTrack(ctx context.Context, lt *models.LibraryTrack) error {
	start := time.Now()

	source := lt.Source
	if source == "" {
		source = "liked"
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO library_tracks (track_id, uri, added_at, source, last_seen_ts_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET
			uri = excluded.uri,
			last_seen_ts_ms = excluded.last_seen_ts_ms`,
		lt.TrackID, lt.URI, lt.AddedAt, source, lt.LastSeenTsMs,
	)
	observe("upsert", "library_tracks", start, err)
	if err != nil {
		return fmt.Errorf("upsert library track %s: %w", lt.TrackID, err)
	}
	return nil
}

// LibraryTrackIDs returns saved track IDs, most recently added first, capped
// at limit. The candidate generator consumes this as its broad source.
func (db *DB) LibraryTrackIDs(ctx context.Context, limit int) ([]string, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT track_id
		FROM library_tracks
		ORDER BY added_at DESC NULLS LAST, track_id
		LIMIT ?`, limit)
	observe("select", "library_tracks", start, err)
	if err != nil {
		return nil, fmt.Errorf("library track ids: %w", err)
	}
	defer closeRows(rows)

	return scanIDs(rows)
}

// RandomLibraryTrack returns one random saved track, excluding excludeTrackID.
// Returns nil when the library holds no eligible track. This backs the
// recommendation fallback path.
func (db *DB) RandomLibraryTrack(ctx context.Context, excludeTrackID string) (*models.LibraryTrack, error) {
	start := time.Now()

	lt := &models.LibraryTrack{}
	var addedAt sql.NullTime
	err := db.conn.QueryRowContext(ctx, `
		SELECT track_id, uri, added_at, source, last_seen_ts_ms
		FROM library_tracks
		WHERE track_id != ?
		ORDER BY random()
		LIMIT 1`, excludeTrackID,
	).Scan(&lt.TrackID, &lt.URI, &addedAt, &lt.Source, &lt.LastSeenTsMs)
	observe("select", "library_tracks", start, ignoreNoRows(err))
	lt.AddedAt = addedAt.Time

	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("random library track: %w", err)
	}
	return lt, nil
}

// CountLibraryTracks returns the number of saved tracks.
func (db *DB) CountLibraryTracks(ctx context.Context) (int64, error) {
	start := time.Now()

	var n int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM library_tracks`).Scan(&n)
	observe("count", "library_tracks", start, err)
	if err != nil {
		return 0, fmt.Errorf("count library tracks: %w", err)
	}
	return n, nil
}
