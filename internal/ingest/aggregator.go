// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package ingest

import (
	"context"
	"fmt"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/database"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/metrics"
	"github.com/seguefm/segue/internal/models"
)

// StatsStore is the slice of the persistence layer the aggregator writes to.
type StatsStore interface {
	IncrementTrackStart(ctx context.Context, trackID, prevTrackID string, tsMs int64) error
	ApplyTrackEnd(ctx context.Context, upd database.TrackEndUpdate) error
	LastActionForSession(ctx context.Context, sessionID string, tsMs int64) (string, int64, error)
}

// DurationSource resolves a track's duration for completion checks. The bool
// result reports whether a duration is known.
type DurationSource interface {
	TrackDuration(ctx context.Context, trackID string) (int64, bool, error)
}

// Aggregator applies one event's statistical consequences. Start events bump
// start counters; end events are classified, then bump completion/skip/listen
// counters. Action and pos events carry no aggregation (they are log-only,
// consumed indirectly by the classifier's action lookup).
type Aggregator struct {
	stats      StatsStore
	durations  DurationSource
	classifier *Classifier
	cfg        *config.IngestConfig
}

// NewAggregator wires the aggregation engine.
func NewAggregator(stats StatsStore, durations DurationSource, cfg *config.IngestConfig) *Aggregator {
	return &Aggregator{
		stats:      stats,
		durations:  durations,
		classifier: NewClassifier(cfg),
		cfg:        cfg,
	}
}

// HandleEvent applies the event to the rolling statistics. Returning an error
// signals the pipeline to retry; events with no aggregation effect return nil.
func (a *Aggregator) HandleEvent(ctx context.Context, ev *models.Event) error {
	switch ev.Type {
	case models.EventStart:
		if err := a.stats.IncrementTrackStart(ctx, ev.TrackID, ev.PrevTrackID, ev.TimestampMs); err != nil {
			metrics.AggregationErrors.WithLabelValues("start").Inc()
			return fmt.Errorf("aggregate start: %w", err)
		}
		metrics.AggregationUpdates.WithLabelValues("start").Inc()
		return nil

	case models.EventEnd:
		return a.handleEnd(ctx, ev)

	default:
		return nil
	}
}

func (a *Aggregator) handleEnd(ctx context.Context, ev *models.Event) error {
	listened := ev.Listened()
	durationMs, durationKnown := a.resolveDuration(ctx, ev)

	reason := ev.Reason
	if reason == "" {
		reason = a.classifyEnd(ctx, ev, durationMs, durationKnown)
	}

	// A finished end is a completion by definition, even when the duration
	// is unknown or the listened figure falls short of the ratio.
	completion := reason == models.ReasonFinished ||
		(durationKnown && IsCompletion(listened, durationMs, a.cfg.CompleteRatio))

	upd := database.TrackEndUpdate{
		TrackID:     ev.TrackID,
		PrevTrackID: ev.PrevTrackID,
		ListenedMs:  listened,
		FastSkip:    IsFastSkip(reason, listened, a.cfg.SkipThresholdMs),
		Completion:  completion,
		TsMs:        ev.TimestampMs,
	}
	if err := a.stats.ApplyTrackEnd(ctx, upd); err != nil {
		metrics.AggregationErrors.WithLabelValues("end").Inc()
		return fmt.Errorf("aggregate end: %w", err)
	}
	metrics.AggregationUpdates.WithLabelValues("end").Inc()
	return nil
}

// resolveDuration prefers the duration embedded in the event, falling back to
// the duration source. A lookup failure degrades to unknown: the end still
// counts, it just cannot count as a completion.
func (a *Aggregator) resolveDuration(ctx context.Context, ev *models.Event) (int64, bool) {
	if ev.DurationMs != nil && *ev.DurationMs > 0 {
		return *ev.DurationMs, true
	}

	durationMs, known, err := a.durations.TrackDuration(ctx, ev.TrackID)
	if err != nil {
		logging.Warn().Err(err).Str("track_id", ev.TrackID).
			Msg("duration lookup failed, end counted without completion check")
		return 0, false
	}
	return durationMs, known
}

// classifyEnd runs the classifier for an unlabeled end, feeding it the
// session's most recent action. An action lookup failure classifies without
// action context rather than blocking the update.
func (a *Aggregator) classifyEnd(ctx context.Context, ev *models.Event, durationMs int64, durationKnown bool) string {
	action, actionTsMs, err := a.stats.LastActionForSession(ctx, ev.SessionID, ev.TimestampMs)
	if err != nil {
		logging.Warn().Err(err).Str("session_id", ev.SessionID).
			Msg("action lookup failed, classifying without action context")
		action, actionTsMs = "", 0
	}

	positionMs := int64(0)
	positionKnown := ev.PositionMs != nil
	if positionKnown {
		positionMs = *ev.PositionMs
	}

	return a.classifier.Classify(durationMs, durationKnown, positionMs, positionKnown, action, actionTsMs, ev.TimestampMs)
}
