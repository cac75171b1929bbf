// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package recommend

import (
	"context"
	"sort"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/features"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/models"
)

// Global goodness blend: skip avoidance dominates completion rate.
const (
	globalSkipWeight       = 0.65
	globalCompletionWeight = 0.35
)

// VectorSource resolves normalized feature vectors; features.Provider
// satisfies it.
type VectorSource interface {
	Vector(ctx context.Context, trackID string) (features.Vector, bool, error)
}

// Scorer computes blended candidate scores from three signals: transition
// history (markov), content similarity (sim), and global popularity (global).
type Scorer struct {
	stats   StatsReader
	vectors VectorSource
	cfg     *config.RecommendConfig
}

// NewScorer wires a scoring engine.
func NewScorer(stats StatsReader, vectors VectorSource, cfg *config.RecommendConfig) *Scorer {
	return &Scorer{stats: stats, vectors: vectors, cfg: cfg}
}

// MarkovScore is the transition-quality signal for current -> candidate:
// 1 - E[skipRate] under a Beta(alpha, beta) prior. With no history this is
// the optimistic prior mean (0.75 at the default alpha=1, beta=3); without
// the smoothing a single early skip on a fresh transition would zero the
// score.
func (s *Scorer) MarkovScore(ts *models.TransitionStats) float64 {
	var starts, skips float64
	if ts != nil {
		starts = float64(ts.Starts)
		skips = float64(ts.SkipsFast)
	}
	return 1 - (skips+s.cfg.PriorAlpha)/(starts+s.cfg.PriorAlpha+s.cfg.PriorBeta)
}

// GlobalScore is the candidate's standalone goodness: a blend of skip
// avoidance and completion rate, each Laplace-smoothed. A candidate with
// zero observed starts scores the neutral 0.5.
func (s *Scorer) GlobalScore(ts *models.TrackStats) float64 {
	if ts == nil || ts.Starts == 0 {
		return 0.5
	}
	starts := float64(ts.Starts)
	skipRate := (float64(ts.SkipsFast) + 1) / (starts + 4)
	completionRate := (float64(ts.Completions) + 1) / (starts + 4)
	return globalSkipWeight*(1-skipRate) + globalCompletionWeight*completionRate
}

// ScoreAll scores every candidate against the current track and returns them
// ranked: descending total, ties broken by ascending track id for a stable
// display order.
func (s *Scorer) ScoreAll(ctx context.Context, currentTrackID string, candidates []string) []models.ScoredCandidate {
	currentVec, currentVecOK, err := s.vectors.Vector(ctx, currentTrackID)
	if err != nil {
		logging.Warn().Err(err).Str("track_id", currentTrackID).Msg("current track vector failed")
		currentVecOK = false
	}

	scored := make([]models.ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		scored = append(scored, s.score(ctx, currentTrackID, candidate, currentVec, currentVecOK))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Total != scored[j].Total {
			return scored[i].Total > scored[j].Total
		}
		return scored[i].TrackID < scored[j].TrackID
	})
	return scored
}

func (s *Scorer) score(ctx context.Context, currentTrackID, candidate string, currentVec features.Vector, currentVecOK bool) models.ScoredCandidate {
	transition, err := s.stats.GetTransitionStats(ctx, currentTrackID, candidate)
	if err != nil {
		logging.Debug().Err(err).Msg("transition stats read failed, scoring on prior")
		transition = nil
	}

	trackStats, err := s.stats.GetTrackStats(ctx, candidate)
	if err != nil {
		logging.Debug().Err(err).Msg("track stats read failed, scoring neutral")
		trackStats = nil
	}

	sim := 0.0
	if currentVecOK {
		candVec, ok, err := s.vectors.Vector(ctx, candidate)
		if err == nil && ok {
			sim = features.CosineSim(currentVec, candVec)
		}
	}

	components := models.ScoreComponents{
		Markov: s.MarkovScore(transition),
		Sim:    sim,
		Global: s.GlobalScore(trackStats),
	}
	return models.ScoredCandidate{
		TrackID: candidate,
		Total: s.cfg.WeightMarkov*components.Markov +
			s.cfg.WeightSim*components.Sim +
			s.cfg.WeightGlobal*components.Global,
		Components: components,
	}
}
