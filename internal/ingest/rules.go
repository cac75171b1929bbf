// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package ingest turns validated telemetry events into rolling statistics:
// the end-reason classifier labels unlabeled end events, and the aggregation
// engine applies per-track and per-transition counter updates.
package ingest

import "github.com/seguefm/segue/internal/models"

// IsFastSkip reports whether an end counts as a fast skip: the listener
// skipped away (either direction) before thresholdMs of listening.
func IsFastSkip(reason string, listenedMs, thresholdMs int64) bool {
	if reason != models.ReasonSkipNext && reason != models.ReasonSkipPrev {
		return false
	}
	return listenedMs < thresholdMs
}

// IsCompletion reports whether an end counts as a completion: listened time
// reached ratio of the track's duration. An unknown or zero duration never
// completes.
func IsCompletion(listenedMs, durationMs int64, ratio float64) bool {
	if durationMs <= 0 {
		return false
	}
	return float64(listenedMs) >= ratio*float64(durationMs)
}
