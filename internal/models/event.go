// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package models defines the core data shapes shared across Segue:
// telemetry events, rolling statistics rows, audio feature rows, library
// tracks, recommendations, and the API response envelope.
package models

import "github.com/seguefm/segue/internal/validation"

// Event types accepted by the ingestion endpoint.
const (
	EventStart  = "start"
	EventEnd    = "end"
	EventAction = "action"
	EventPos    = "pos"
)

// End reasons produced by the classifier or supplied by the client.
const (
	ReasonFinished  = "finished"
	ReasonSkipNext  = "skip_next"
	ReasonSkipPrev  = "skip_prev"
	ReasonPauseStop = "pause_stop"
	ReasonUnknown   = "unknown"
)

// Player actions carried by action events.
const (
	ActionNext  = "next"
	ActionPrev  = "prev"
	ActionPause = "pause"
	ActionPlay  = "play"
	ActionSeek  = "seek"
)

// Event is a single telemetry event from a listening client. Events are
// immutable once logged; the embedded client timestamp is used for
// derivation only, never for ordering (client clocks are not trusted).
//
// Each event type carries a fixed set of fields rather than an open payload
// bag: start/end events carry track identity plus listened/duration figures,
// action events carry the action name, pos events carry a position.
type Event struct {
	EventID     string `json:"event_id,omitempty"`
	TimestampMs int64  `json:"ts_ms" validate:"required,gt=0"`
	SessionID   string `json:"session_id" validate:"required,min=6"`
	Type        string `json:"event_type" validate:"required,oneof=start end action pos"`

	// start/end/pos
	TrackID     string `json:"track_id,omitempty"`
	PrevTrackID string `json:"prev_track_id,omitempty"`
	PositionMs  *int64 `json:"position_ms,omitempty" validate:"omitempty,gte=0"`

	// end only
	ListenedMs *int64 `json:"listened_ms,omitempty" validate:"omitempty,gte=0"`
	DurationMs *int64 `json:"duration_ms,omitempty" validate:"omitempty,gte=0"`
	Reason     string `json:"reason,omitempty" validate:"omitempty,oneof=finished skip_next skip_prev pause_stop unknown"`

	// action only
	Action string `json:"action,omitempty" validate:"omitempty,oneof=next prev pause play seek"`

	DeviceID string `json:"device_id,omitempty"`
}

// Validate checks both the tag-driven field shapes and the per-type field
// requirements. It returns nil when the event is well formed.
func (e *Event) Validate() *validation.RequestValidationError {
	if err := validation.ValidateStruct(e); err != nil {
		return err
	}

	switch e.Type {
	case EventStart, EventEnd:
		if e.TrackID == "" {
			return validation.NewFieldError("track_id", "required_for_type",
				"track_id is required for "+e.Type+" events")
		}
	case EventAction:
		if e.Action == "" {
			return validation.NewFieldError("action", "required_for_type",
				"action is required for action events")
		}
	case EventPos:
		if e.PositionMs == nil {
			return validation.NewFieldError("position_ms", "required_for_type",
				"position_ms is required for pos events")
		}
	}

	return nil
}

// Listened returns the listened duration for an end event, clamped to zero.
func (e *Event) Listened() int64 {
	if e.ListenedMs == nil || *e.ListenedMs < 0 {
		return 0
	}
	return *e.ListenedMs
}
