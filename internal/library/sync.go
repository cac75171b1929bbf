// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package library syncs the listener's saved-track set from the catalog into
// local storage and backfills audio features for the synced tracks. The
// library is the recommender's broad candidate source and its fallback pool.
package library

import (
	"context"
	"fmt"
	"time"

	"github.com/seguefm/segue/internal/catalog"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/metrics"
	"github.com/seguefm/segue/internal/models"
)

// Catalog is the slice of the catalog client the sync uses.
type Catalog interface {
	SavedTracks(ctx context.Context, offset, limit int) (*catalog.SavedTracksPage, error)
	FetchAudioFeaturesBatch(ctx context.Context, trackIDs []string) (map[string]*models.AudioFeatures, error)
}

// Store is the slice of the persistence layer the sync writes to.
type Store interface {
	UpsertLibraryTrack(ctx context.Context, lt *models.LibraryTrack) error
	UpsertAudioFeatures(ctx context.Context, af *models.AudioFeatures) error
	CountLibraryTracks(ctx context.Context) (int64, error)
}

// Result summarizes one sync run.
type Result struct {
	Synced             int   `json:"synced"`
	FeaturesBackfilled int   `json:"features_backfilled"`
	Total              int64 `json:"total"`
}

// Service pages the catalog's saved-tracks endpoint and upserts the rows.
type Service struct {
	catalog Catalog
	store   Store
	now     func() time.Time
}

// NewService wires a library sync service.
func NewService(cat Catalog, store Store) *Service {
	return &Service{catalog: cat, store: store, now: time.Now}
}

// Sync pulls the saved library, newest first, upserting each track with
// source "liked". maxTracks bounds the pull (0 = everything). Feature
// backfill runs afterwards in batches and is best-effort: a failed batch
// logs and moves on, it does not fail the sync.
func (s *Service) Sync(ctx context.Context, maxTracks int) (*Result, error) {
	start := time.Now()
	nowMs := s.now().UnixMilli()

	var trackIDs []string
	offset := 0
	for {
		page, err := s.catalog.SavedTracks(ctx, offset, catalog.SavedTracksPageLimit)
		if err != nil {
			return nil, fmt.Errorf("saved tracks page at %d: %w", offset, err)
		}

		for _, item := range page.Items {
			if maxTracks > 0 && len(trackIDs) >= maxTracks {
				break
			}
			lt := &models.LibraryTrack{
				TrackID:      item.Track.TrackID,
				URI:          item.Track.URI,
				AddedAt:      item.AddedAt,
				Source:       "liked",
				LastSeenTsMs: nowMs,
			}
			if err := s.store.UpsertLibraryTrack(ctx, lt); err != nil {
				return nil, fmt.Errorf("upsert library track %s: %w", lt.TrackID, err)
			}
			trackIDs = append(trackIDs, lt.TrackID)
		}

		offset += len(page.Items)
		if !page.HasNext || len(page.Items) == 0 {
			break
		}
		if maxTracks > 0 && len(trackIDs) >= maxTracks {
			break
		}
	}

	backfilled := s.backfillFeatures(ctx, trackIDs, nowMs)

	total, err := s.store.CountLibraryTracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count library tracks: %w", err)
	}

	metrics.LibrarySyncDuration.Observe(time.Since(start).Seconds())
	metrics.LibraryTracksSynced.Add(float64(len(trackIDs)))
	logging.Info().
		Int("synced", len(trackIDs)).
		Int("features_backfilled", backfilled).
		Int64("total", total).
		Msg("library sync complete")

	return &Result{Synced: len(trackIDs), FeaturesBackfilled: backfilled, Total: total}, nil
}

// backfillFeatures fetches audio features for the synced tracks in batches.
// The batch endpoint returns nulls for tracks with no features; those are
// skipped, not errors.
func (s *Service) backfillFeatures(ctx context.Context, trackIDs []string, nowMs int64) int {
	backfilled := 0
	for i := 0; i < len(trackIDs); i += catalog.AudioFeaturesBatchLimit {
		end := i + catalog.AudioFeaturesBatchLimit
		if end > len(trackIDs) {
			end = len(trackIDs)
		}

		batch, err := s.catalog.FetchAudioFeaturesBatch(ctx, trackIDs[i:end])
		if err != nil {
			logging.Warn().Err(err).Int("offset", i).Msg("feature backfill batch failed")
			continue
		}

		for id, af := range batch {
			af.TrackID = id
			af.UpdatedTsMs = nowMs
			if err := s.store.UpsertAudioFeatures(ctx, af); err != nil {
				logging.Warn().Err(err).Str("track_id", id).Msg("feature upsert failed")
				continue
			}
			backfilled++
		}
	}
	return backfilled
}

// Count returns the stored library size.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.CountLibraryTracks(ctx)
}
