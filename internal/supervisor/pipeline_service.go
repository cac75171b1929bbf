// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package supervisor

import (
	"context"
	"fmt"
)

// PipelineRunner is the slice of the event pipeline the wrapper needs.
type PipelineRunner interface {
	Run(ctx context.Context) error
}

// PipelineService runs the event pipeline under supervision. The pipeline's
// Run already blocks until its context is cancelled, so the wrapper only
// translates errors and names the service.
type PipelineService struct {
	pipeline PipelineRunner
}

// NewPipelineService wraps the pipeline as a supervised service.
func NewPipelineService(p PipelineRunner) *PipelineService {
	return &PipelineService{pipeline: p}
}

// Serve implements suture.Service.
func (s *PipelineService) Serve(ctx context.Context) error {
	if err := s.pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("event pipeline failed: %w", err)
	}
	return ctx.Err()
}

// String identifies the service in suture's logs.
func (s *PipelineService) String() string {
	return "event-pipeline"
}
