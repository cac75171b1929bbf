// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package ingest

import (
	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/models"
)

// Classifier derives an end reason for end events the client left unlabeled.
// Precedence: an explicit client reason always wins and never reaches the
// classifier; otherwise position-near-duration means finished, a recent user
// action attributes the end to that action, and everything else is unknown.
type Classifier struct {
	cfg *config.IngestConfig
}

// NewClassifier returns a classifier using the given thresholds.
func NewClassifier(cfg *config.IngestConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify labels one unlabeled end event.
//
// durationKnown/positionKnown gate the finished check: when either figure is
// missing the track cannot be proven finished. action is the session's most
// recent action ("" when none); actionTsMs and endTsMs are compared against
// the action window.
func (c *Classifier) Classify(durationMs int64, durationKnown bool, positionMs int64, positionKnown bool, action string, actionTsMs, endTsMs int64) string {
	if durationKnown && positionKnown && durationMs-positionMs <= c.cfg.FinishWindowMs {
		return models.ReasonFinished
	}

	if action != "" && endTsMs >= actionTsMs && endTsMs-actionTsMs <= c.cfg.ActionWindowMs {
		switch action {
		case models.ActionNext:
			return models.ReasonSkipNext
		case models.ActionPrev:
			return models.ReasonSkipPrev
		case models.ActionPause:
			return models.ReasonPauseStop
		}
	}

	return models.ReasonUnknown
}
