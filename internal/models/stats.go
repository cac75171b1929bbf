// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package models

import "time"

// TrackStats holds rolling per-track counters. Counters are monotonically
// non-decreasing; only LastPlayedTsMs moves forward in place. Rows are
// created lazily on first reference and never deleted while running.
type TrackStats struct {
	TrackID        string `json:"track_id"`
	Starts         int64  `json:"starts"`
	Completions    int64  `json:"completions"`
	SkipsFast      int64  `json:"skips_fast"`
	TotalListenMs  int64  `json:"total_listen_ms"`
	LastPlayedTsMs int64  `json:"last_played_ts_ms"`
}

// TransitionStats holds rolling counters for one observed (from, to)
// playback adjacency. Same counter shape as TrackStats minus completions.
type TransitionStats struct {
	FromTrackID   string `json:"from_track_id"`
	ToTrackID     string `json:"to_track_id"`
	Starts        int64  `json:"starts"`
	SkipsFast     int64  `json:"skips_fast"`
	TotalListenMs int64  `json:"total_listen_ms"`
	LastTsMs      int64  `json:"last_ts_ms"`
}

// AudioFeatures is a raw per-track feature row from the catalog. Unit-range
// fields are nullable; the vectorizer substitutes neutral defaults for
// missing values. DurationMs stays raw for completion-ratio computation.
type AudioFeatures struct {
	TrackID          string   `json:"track_id"`
	DurationMs       int64    `json:"duration_ms"`
	Danceability     *float64 `json:"danceability"`
	Energy           *float64 `json:"energy"`
	Valence          *float64 `json:"valence"`
	Tempo            *float64 `json:"tempo"`
	Acousticness     *float64 `json:"acousticness"`
	Instrumentalness *float64 `json:"instrumentalness"`
	Liveness         *float64 `json:"liveness"`
	Speechiness      *float64 `json:"speechiness"`
	Loudness         *float64 `json:"loudness"`
	UpdatedTsMs      int64    `json:"updated_ts_ms"`
}

// Age returns how long ago the feature row was refreshed.
func (a *AudioFeatures) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(a.UpdatedTsMs))
}

// LibraryTrack is a track in the user's saved set. Upserted on sync, never
// hard-deleted by the core.
type LibraryTrack struct {
	TrackID      string    `json:"track_id"`
	URI          string    `json:"uri"`
	AddedAt      time.Time `json:"added_at"`
	Source       string    `json:"source"`
	LastSeenTsMs int64     `json:"last_seen_ts_ms"`
}

// TrackMetadata is display metadata resolved through the catalog client.
type TrackMetadata struct {
	TrackID string `json:"id"`
	URI     string `json:"uri"`
	Name    string `json:"name"`
}

// ScoreComponents breaks a blended score into its three signals.
type ScoreComponents struct {
	Markov float64 `json:"markov"`
	Sim    float64 `json:"sim"`
	Global float64 `json:"global"`
}

// ScoredCandidate is one candidate with its blended score.
type ScoredCandidate struct {
	TrackID    string          `json:"track_id"`
	Total      float64         `json:"total"`
	Components ScoreComponents `json:"components"`
}

// NextTrack is the selected next track with resolved display metadata.
type NextTrack struct {
	TrackID    string          `json:"track_id"`
	URI        string          `json:"uri"`
	Name       string          `json:"name"`
	Score      float64         `json:"score"`
	Components ScoreComponents `json:"components"`
}

// Recommendation is the per-request result of the orchestrator. It is
// ephemeral and never persisted.
type Recommendation struct {
	CurrentTrackID string            `json:"current_track_id"`
	Next           NextTrack         `json:"next"`
	Top10          []ScoredCandidate `json:"top10"`
}
