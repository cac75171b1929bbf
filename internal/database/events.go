// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seguefm/segue/internal/models"
)

// AppendEvent appends one validated event to the immutable event log.
// Events are stored in arrival order; the embedded client timestamp is kept
// for derivation but not trusted for ordering. The core never updates or
// deletes logged events, and the scoring path never reads them back.
func (db *DB) AppendEvent(ctx context.Context, ev *models.Event) error {
	start := time.Now()

	eventID := ev.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO events (
			event_id, ts_ms, session_id, event_type,
			track_id, prev_track_id, position_ms,
			listened_ms, duration_ms, action, reason, device_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eventID,
		ev.TimestampMs,
		ev.SessionID,
		ev.Type,
		nullString(ev.TrackID),
		nullString(ev.PrevTrackID),
		ev.PositionMs,
		ev.ListenedMs,
		ev.DurationMs,
		nullString(ev.Action),
		nullString(ev.Reason),
		nullString(ev.DeviceID),
	)
	observe("insert", "events", start, err)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	return nil
}

// CountEvents returns the total number of logged events.
func (db *DB) CountEvents(ctx context.Context) (int64, error) {
	start := time.Now()

	var n int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	observe("count", "events", start, err)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// LastActionForSession returns the most recent action event for a session
// at or before tsMs, or nil when the session has no recorded actions. The
// classifier uses this to attribute an unlabeled end to a recent user action.
func (db *DB) LastActionForSession(ctx context.Context, sessionID string, tsMs int64) (action string, actionTsMs int64, err error) {
	start := time.Now()

	err = db.conn.QueryRowContext(ctx, `
		SELECT action, ts_ms
		FROM events
		WHERE session_id = ? AND event_type = 'action' AND ts_ms <= ?
		ORDER BY ts_ms DESC
		LIMIT 1`,
		sessionID, tsMs,
	).Scan(&action, &actionTsMs)
	observe("select", "events", start, ignoreNoRows(err))

	if isNoRows(err) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("last action for session: %w", err)
	}
	return action, actionTsMs, nil
}

// nullString maps "" to NULL so optional columns stay NULL rather than empty.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
