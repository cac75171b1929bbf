// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/metrics"
	"github.com/seguefm/segue/internal/models"
)

// ErrQueue marks a failure to push the recommendation to the playback queue;
// the recommendation itself is still valid.
var ErrQueue = errors.New("recommend: queue add failed")

// MetadataResolver resolves display metadata for the selected track.
type MetadataResolver interface {
	GetTrack(ctx context.Context, trackID string) (*models.TrackMetadata, error)
}

// Queuer pushes a track onto the listener's playback queue.
type Queuer interface {
	AddToQueue(ctx context.Context, uri, deviceID string) error
}

// Engine is the recommendation orchestrator: candidate generation, scoring,
// metadata resolution, and the fallback policy. It never fails a request on
// a scoring or candidate-generation problem; a recommendation degrades to the
// random-library fallback, and only an empty library yields no result.
type Engine struct {
	generator *Generator
	scorer    *Scorer
	stats     StatsReader
	metadata  MetadataResolver
	queue     Queuer
	cfg       *config.RecommendConfig
}

// NewEngine wires the orchestrator. queue may be nil when no playback-queue
// collaborator is configured; QueueNext then fails with ErrQueue.
func NewEngine(stats StatsReader, vectors VectorSource, metadata MetadataResolver, queue Queuer, cfg *config.RecommendConfig) *Engine {
	return &Engine{
		generator: NewGenerator(stats, cfg),
		scorer:    NewScorer(stats, vectors, cfg),
		stats:     stats,
		metadata:  metadata,
		queue:     queue,
		cfg:       cfg,
	}
}

// RecommendNext returns the next track to play after currentTrackID, or nil
// when nothing can be recommended (empty library cold start). The error
// return is reserved for persistence failures on the fallback path.
func (e *Engine) RecommendNext(ctx context.Context, currentTrackID string) (*models.Recommendation, error) {
	start := time.Now()
	metrics.RecommendRequests.Inc()
	defer func() {
		metrics.RecommendDuration.Observe(time.Since(start).Seconds())
	}()

	pool := e.generator.Generate(ctx, currentTrackID)
	scored := e.scorer.ScoreAll(ctx, currentTrackID, pool)
	metrics.CandidatesScored.Observe(float64(len(scored)))

	topN := scored
	if len(topN) > e.cfg.TopN {
		topN = topN[:e.cfg.TopN]
	}

	if len(scored) == 0 {
		return e.fallback(ctx, currentTrackID, "empty_candidates", topN)
	}

	best := scored[0]
	md, err := e.metadata.GetTrack(ctx, best.TrackID)
	if err != nil || md == nil {
		logging.Warn().Err(err).Str("track_id", best.TrackID).
			Msg("metadata lookup failed, falling back to library")
		return e.fallback(ctx, currentTrackID, "metadata_failure", topN)
	}

	return &models.Recommendation{
		CurrentTrackID: currentTrackID,
		Next: models.NextTrack{
			TrackID:    best.TrackID,
			URI:        md.URI,
			Name:       md.Name,
			Score:      best.Total,
			Components: best.Components,
		},
		Top10: topN,
	}, nil
}

// QueueNext recommends and pushes the result onto the playback queue. A nil
// recommendation (cold start) skips the queue call.
func (e *Engine) QueueNext(ctx context.Context, currentTrackID, deviceID string) (*models.Recommendation, error) {
	rec, err := e.RecommendNext(ctx, currentTrackID)
	if err != nil || rec == nil {
		return rec, err
	}

	if e.queue == nil {
		return rec, fmt.Errorf("%w: no queue collaborator configured", ErrQueue)
	}
	if err := e.queue.AddToQueue(ctx, rec.Next.URI, deviceID); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrQueue, err)
	}
	return rec, nil
}

// fallback picks a random library track, excluding the current one. The
// fallback carries zero score components: it was not selected on merit. The
// diagnostic top list from scoring is preserved.
func (e *Engine) fallback(ctx context.Context, currentTrackID, reason string, topN []models.ScoredCandidate) (*models.Recommendation, error) {
	metrics.RecommendFallbacks.WithLabelValues(reason).Inc()

	lt, err := e.stats.RandomLibraryTrack(ctx, currentTrackID)
	if err != nil {
		return nil, fmt.Errorf("fallback library pick: %w", err)
	}
	if lt == nil {
		metrics.RecommendFallbacks.WithLabelValues("empty_library").Inc()
		return nil, nil
	}

	name := ""
	if md, err := e.metadata.GetTrack(ctx, lt.TrackID); err == nil && md != nil {
		name = md.Name
	}

	return &models.Recommendation{
		CurrentTrackID: currentTrackID,
		Next: models.NextTrack{
			TrackID: lt.TrackID,
			URI:     lt.URI,
			Name:    name,
		},
		Top10: topN,
	}, nil
}
