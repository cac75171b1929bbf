// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package features

import (
	"context"
	"fmt"
	"time"

	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/models"
)

// Store is the slice of the persistence layer the provider reads and writes.
type Store interface {
	GetAudioFeatures(ctx context.Context, trackID string) (*models.AudioFeatures, error)
	UpsertAudioFeatures(ctx context.Context, af *models.AudioFeatures) error
}

// Fetcher fetches a feature row from the external catalog. A (nil, nil)
// result means the catalog has no features for the track.
type Fetcher interface {
	FetchAudioFeatures(ctx context.Context, trackID string) (*models.AudioFeatures, error)
}

// Provider resolves feature rows store-first, fetching from the catalog on a
// miss or when the stored row is older than maxAge. Fetch failures degrade:
// a stale stored row is still returned, and a complete miss yields nil so the
// similarity signal drops to zero instead of failing the request.
type Provider struct {
	store   Store
	fetcher Fetcher
	maxAge  time.Duration
	now     func() time.Time
}

// NewProvider wires a feature provider. A zero maxAge disables age-based
// refresh.
func NewProvider(store Store, fetcher Fetcher, maxAge time.Duration) *Provider {
	return &Provider{
		store:   store,
		fetcher: fetcher,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Get returns the feature row for a track, or nil when none can be resolved.
func (p *Provider) Get(ctx context.Context, trackID string) (*models.AudioFeatures, error) {
	stored, err := p.store.GetAudioFeatures(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("stored features %s: %w", trackID, err)
	}

	if stored != nil && !p.stale(stored) {
		return stored, nil
	}

	fetched, err := p.fetcher.FetchAudioFeatures(ctx, trackID)
	if err != nil {
		if stored != nil {
			logging.Debug().Err(err).Str("track_id", trackID).
				Msg("feature refresh failed, serving stale row")
			return stored, nil
		}
		logging.Warn().Err(err).Str("track_id", trackID).Msg("feature fetch failed")
		return nil, nil
	}
	if fetched == nil {
		return stored, nil
	}

	fetched.TrackID = trackID
	fetched.UpdatedTsMs = p.now().UnixMilli()
	if err := p.store.UpsertAudioFeatures(ctx, fetched); err != nil {
		// The fetched row is still usable this request.
		logging.Warn().Err(err).Str("track_id", trackID).Msg("feature upsert failed")
	}
	return fetched, nil
}

// Vector returns the normalized vector for a track and whether features were
// available at all.
func (p *Provider) Vector(ctx context.Context, trackID string) (Vector, bool, error) {
	af, err := p.Get(ctx, trackID)
	if err != nil {
		return Vector{}, false, err
	}
	if af == nil {
		return Vector{}, false, nil
	}
	return ToVector(af), true, nil
}

// TrackDuration resolves a track's duration through the same store-first
// path. It satisfies the aggregation engine's duration source.
func (p *Provider) TrackDuration(ctx context.Context, trackID string) (int64, bool, error) {
	af, err := p.Get(ctx, trackID)
	if err != nil {
		return 0, false, err
	}
	if af == nil || af.DurationMs <= 0 {
		return 0, false, nil
	}
	return af.DurationMs, true, nil
}

func (p *Provider) stale(af *models.AudioFeatures) bool {
	if p.maxAge <= 0 {
		return false
	}
	return af.Age(p.now()) > p.maxAge
}
