// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/seguefm/segue/internal/models"
)

// UpsertAudioFeatures stores or replaces the feature row for a track. Nullable
// unit-range fields pass through as-is; missing values stay NULL so the
// vectorizer can substitute neutral defaults.
func (db *DB) UpsertAudioFeatures(ctx context.Context, af *models.AudioFeatures) error {
	start := time.Now()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO audio_features (
			track_id, duration_ms, danceability, energy, valence, tempo,
			acousticness, instrumentalness, liveness, speechiness, loudness,
			updated_ts_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET
			duration_ms = excluded.duration_ms,
			danceability = excluded.danceability,
			energy = excluded.energy,
			valence = excluded.valence,
			tempo = excluded.tempo,
			acousticness = excluded.acousticness,
			instrumentalness = excluded.instrumentalness,
			liveness = excluded.liveness,
			speechiness = excluded.speechiness,
			loudness = excluded.loudness,
			updated_ts_ms = excluded.updated_ts_ms`,
		af.TrackID, af.DurationMs,
		af.Danceability, af.Energy, af.Valence, af.Tempo,
		af.Acousticness, af.Instrumentalness, af.Liveness, af.Speechiness, af.Loudness,
		af.UpdatedTsMs,
	)
	observe("upsert", "audio_features", start, err)
	if err != nil {
		return fmt.Errorf("upsert audio features %s: %w", af.TrackID, err)
	}
	return nil
}

// GetAudioFeatures returns the stored feature row for a track, or nil when no
// row exists.
func (db *DB) GetAudioFeatures(ctx context.Context, trackID string) (*models.AudioFeatures, error) {
	start := time.Now()

	af := &models.AudioFeatures{TrackID: trackID}
	err := db.conn.QueryRowContext(ctx, `
		SELECT duration_ms, danceability, energy, valence, tempo,
		       acousticness, instrumentalness, liveness, speechiness, loudness,
		       updated_ts_ms
		FROM audio_features
		WHERE track_id = ?`, trackID,
	).Scan(
		&af.DurationMs,
		&af.Danceability, &af.Energy, &af.Valence, &af.Tempo,
		&af.Acousticness, &af.Instrumentalness, &af.Liveness, &af.Speechiness, &af.Loudness,
		&af.UpdatedTsMs,
	)
	observe("select", "audio_features", start, ignoreNoRows(err))

	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audio features %s: %w", trackID, err)
	}
	return af, nil
}

// TrackDuration returns the stored duration for a track and whether a
// duration is known. A row with duration 0 counts as unknown.
func (db *DB) TrackDuration(ctx context.Context, trackID string) (int64, bool, error) {
	start := time.Now()

	var durationMs int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT duration_ms FROM audio_features WHERE track_id = ?`, trackID,
	).Scan(&durationMs)
	observe("select", "audio_features", start, ignoreNoRows(err))

	if isNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("track duration %s: %w", trackID, err)
	}
	return durationMs, durationMs > 0, nil
}
