// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package recommend selects the next track to play: candidate generation
// from three bounded sources, multi-signal scoring, and the orchestrator
// with its fallback policy.
package recommend

import (
	"context"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/models"
)

// StatsReader is the slice of the persistence layer the recommender reads.
type StatsReader interface {
	GetTrackStats(ctx context.Context, trackID string) (*models.TrackStats, error)
	GetTransitionStats(ctx context.Context, from, to string) (*models.TransitionStats, error)
	TopTransitions(ctx context.Context, fromTrackID string, limit int) ([]string, error)
	GlobalGoodTracks(ctx context.Context, minStarts int64, limit int) ([]string, error)
	LibraryTrackIDs(ctx context.Context, limit int) ([]string, error)
	RandomLibraryTrack(ctx context.Context, excludeTrackID string) (*models.LibraryTrack, error)
}

// Generator produces the candidate pool for one recommendation: the union of
// transition followers, globally good tracks, and the saved library, each
// independently capped, merged with duplicate removal and self-exclusion.
type Generator struct {
	stats StatsReader
	cfg   *config.RecommendConfig
}

// NewGenerator wires a candidate generator.
func NewGenerator(stats StatsReader, cfg *config.RecommendConfig) *Generator {
	return &Generator{stats: stats, cfg: cfg}
}

// Generate returns the de-duplicated candidate pool for currentTrackID. A
// failing source logs and contributes nothing; recommendation quality
// degrades rather than the request failing.
func (g *Generator) Generate(ctx context.Context, currentTrackID string) []string {
	seen := map[string]struct{}{currentTrackID: {}}
	var pool []string

	add := func(ids []string) {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			pool = append(pool, id)
		}
	}

	transitions, err := g.stats.TopTransitions(ctx, currentTrackID, g.cfg.TransitionLimit)
	if err != nil {
		logging.Warn().Err(err).Msg("transition candidate source failed")
	}
	add(transitions)

	global, err := g.stats.GlobalGoodTracks(ctx, g.cfg.GlobalMinStarts, g.cfg.GlobalLimit)
	if err != nil {
		logging.Warn().Err(err).Msg("global candidate source failed")
	}
	add(global)

	library, err := g.stats.LibraryTrackIDs(ctx, g.cfg.LibraryLimit)
	if err != nil {
		logging.Warn().Err(err).Msg("library candidate source failed")
	}
	add(library)

	return pool
}
