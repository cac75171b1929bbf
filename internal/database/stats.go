// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seguefm/segue/internal/models"
)

// TrackEndUpdate carries the deltas the aggregation engine derived from one
// end event. The repository applies it atomically per key; the classification
// booleans are computed by the caller so persistence stays free of catalog I/O.
type TrackEndUpdate struct {
	TrackID     string
	PrevTrackID string
	ListenedMs  int64
	FastSkip    bool
	Completion  bool
	TsMs        int64
}

// IncrementTrackStart records a track start: creates the zeroed stats row if
// absent, increments starts, and refreshes last_played_ts_ms. When a
// predecessor is present the same is applied to the (prev -> track) transition
// row. Each key's read-modify-write runs under its per-key lock inside a
// transaction.
func (db *DB) IncrementTrackStart(ctx context.Context, trackID, prevTrackID string, tsMs int64) error {
	if err := db.bumpTrackRow(ctx, trackID, `
		UPDATE track_stats
		SET starts = starts + 1, last_played_ts_ms = ?
		WHERE track_id = ?`, tsMs, trackID); err != nil {
		return fmt.Errorf("track start %s: %w", trackID, err)
	}

	if prevTrackID == "" {
		return nil
	}

	if err := db.bumpTransitionRow(ctx, prevTrackID, trackID, `
		UPDATE transition_stats
		SET starts = starts + 1, last_ts_ms = ?
		WHERE from_track_id = ? AND to_track_id = ?`, tsMs, prevTrackID, trackID); err != nil {
		return fmt.Errorf("transition start %s->%s: %w", prevTrackID, trackID, err)
	}

	return nil
}

// ApplyTrackEnd records the end-of-listen deltas for a track and, when a
// predecessor is present, for the (prev -> track) transition. Transition rows
// do not track completions; only skips_fast and total_listen_ms apply there.
func (db *DB) ApplyTrackEnd(ctx context.Context, upd TrackEndUpdate) error {
	listened := upd.ListenedMs
	if listened < 0 {
		listened = 0
	}

	completionInc := 0
	if upd.Completion {
		completionInc = 1
	}
	fastSkipInc := 0
	if upd.FastSkip {
		fastSkipInc = 1
	}

	if err := db.bumpTrackRow(ctx, upd.TrackID, `
		UPDATE track_stats
		SET completions = completions + ?,
		    skips_fast = skips_fast + ?,
		    total_listen_ms = total_listen_ms + ?,
		    last_played_ts_ms = ?
		WHERE track_id = ?`,
		completionInc, fastSkipInc, listened, upd.TsMs, upd.TrackID); err != nil {
		return fmt.Errorf("track end %s: %w", upd.TrackID, err)
	}

	if upd.PrevTrackID == "" {
		return nil
	}

	if err := db.bumpTransitionRow(ctx, upd.PrevTrackID, upd.TrackID, `
		UPDATE transition_stats
		SET skips_fast = skips_fast + ?,
		    total_listen_ms = total_listen_ms + ?,
		    last_ts_ms = ?
		WHERE from_track_id = ? AND to_track_id = ?`,
		fastSkipInc, listened, upd.TsMs, upd.PrevTrackID, upd.TrackID); err != nil {
		return fmt.Errorf("transition end %s->%s: %w", upd.PrevTrackID, upd.TrackID, err)
	}

	return nil
}

// bumpTrackRow runs get-or-create-zeroed plus the given update for one
// track_stats row under the row's key lock.
func (db *DB) bumpTrackRow(ctx context.Context, trackID, update string, args ...interface{}) error {
	unlock := db.lockKey("track:" + trackID)
	defer unlock()

	start := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO track_stats (track_id) VALUES (?)
			ON CONFLICT (track_id) DO NOTHING`, trackID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, update, args...)
		return err
	})
	observe("upsert", "track_stats", start, err)
	return err
}

// bumpTransitionRow is bumpTrackRow for one transition_stats row.
func (db *DB) bumpTransitionRow(ctx context.Context, from, to, update string, args ...interface{}) error {
	unlock := db.lockKey("transition:" + from + ">" + to)
	defer unlock()

	start := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transition_stats (from_track_id, to_track_id) VALUES (?, ?)
			ON CONFLICT (from_track_id, to_track_id) DO NOTHING`, from, to); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, update, args...)
		return err
	})
	observe("upsert", "transition_stats", start, err)
	return err
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// GetTrackStats returns the stats row for a track, or nil when the track has
// never been referenced.
func (db *DB) GetTrackStats(ctx context.Context, trackID string) (*models.TrackStats, error) {
	start := time.Now()

	ts := &models.TrackStats{TrackID: trackID}
	err := db.conn.QueryRowContext(ctx, `
		SELECT starts, completions, skips_fast, total_listen_ms, last_played_ts_ms
		FROM track_stats
		WHERE track_id = ?`, trackID,
	).Scan(&ts.Starts, &ts.Completions, &ts.SkipsFast, &ts.TotalListenMs, &ts.LastPlayedTsMs)
	observe("select", "track_stats", start, ignoreNoRows(err))

	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get track stats %s: %w", trackID, err)
	}
	return ts, nil
}

// GetTransitionStats returns the stats row for one (from, to) transition, or
// nil when the transition has never been observed.
func (db *DB) GetTransitionStats(ctx context.Context, from, to string) (*models.TransitionStats, error) {
	start := time.Now()

	ts := &models.TransitionStats{FromTrackID: from, ToTrackID: to}
	err := db.conn.QueryRowContext(ctx, `
		SELECT starts, skips_fast, total_listen_ms, last_ts_ms
		FROM transition_stats
		WHERE from_track_id = ? AND to_track_id = ?`, from, to,
	).Scan(&ts.Starts, &ts.SkipsFast, &ts.TotalListenMs, &ts.LastTsMs)
	observe("select", "transition_stats", start, ignoreNoRows(err))

	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transition stats %s->%s: %w", from, to, err)
	}
	return ts, nil
}

// TopTransitions returns tracks that historically followed fromTrackID,
// ordered by descending transition starts, capped at limit.
func (db *DB) TopTransitions(ctx context.Context, fromTrackID string, limit int) ([]string, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT to_track_id
		FROM transition_stats
		WHERE from_track_id = ?
		ORDER BY starts DESC, to_track_id
		LIMIT ?`, fromTrackID, limit)
	observe("select", "transition_stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("top transitions %s: %w", fromTrackID, err)
	}
	defer closeRows(rows)

	return scanIDs(rows)
}

// GlobalGoodTracks returns track IDs with at least minStarts starts, ranked
// by ascending fast-skip ratio then descending starts. The minimum start
// count suppresses noise from single observations.
func (db *DB) GlobalGoodTracks(ctx context.Context, minStarts int64, limit int) ([]string, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT track_id
		FROM track_stats
		WHERE starts >= ?
		ORDER BY (CAST(skips_fast AS DOUBLE) / starts) ASC, starts DESC, track_id
		LIMIT ?`, minStarts, limit)
	observe("select", "track_stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("global good tracks: %w", err)
	}
	defer closeRows(rows)

	return scanIDs(rows)
}

// scanIDs collects a single-column result set of track IDs.
func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ignoreNoRows maps sql.ErrNoRows to nil for metrics purposes; a miss is not
// a query error.
func ignoreNoRows(err error) error {
	if isNoRows(err) {
		return nil
	}
	return err
}

// closeRows closes a result set, ignoring the error (reads are complete).
func closeRows(rows *sql.Rows) {
	_ = rows.Close()
}
