// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/seguefm/segue/internal/models"
)

// SavedTracksPageLimit is the catalog's maximum saved-tracks page size.
const SavedTracksPageLimit = 50

// AudioFeaturesBatchLimit is the catalog's maximum batch size for the
// multi-id audio-features endpoint.
const AudioFeaturesBatchLimit = 100

// wire shapes for the catalog's JSON responses.
type trackResponse struct {
	ID   string `json:"id"`
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type audioFeaturesResponse struct {
	ID               string   `json:"id"`
	DurationMs       int64    `json:"duration_ms"`
	Danceability     *float64 `json:"danceability"`
	Energy           *float64 `json:"energy"`
	Valence          *float64 `json:"valence"`
	Tempo            *float64 `json:"tempo"`
	Acousticness     *float64 `json:"acousticness"`
	Instrumentalness *float64 `json:"instrumentalness"`
	Liveness         *float64 `json:"liveness"`
	Speechiness      *float64 `json:"speechiness"`
	Loudness         *float64 `json:"loudness"`
}

type audioFeaturesBatchResponse struct {
	AudioFeatures []*audioFeaturesResponse `json:"audio_features"`
}

type savedTracksResponse struct {
	Items []struct {
		AddedAt time.Time     `json:"added_at"`
		Track   trackResponse `json:"track"`
	} `json:"items"`
	Total int    `json:"total"`
	Next  string `json:"next"`
}

// SavedTrack is one entry of a saved-tracks page.
type SavedTrack struct {
	Track   models.TrackMetadata
	AddedAt time.Time
}

// SavedTracksPage is one page of the user's saved library.
type SavedTracksPage struct {
	Items []SavedTrack
	Total int
	// HasNext reports whether another page follows.
	HasNext bool
}

// GetTrack resolves display metadata for one track.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*models.TrackMetadata, error) {
	body, err := c.do(ctx, "get_track", http.MethodGet, "/tracks/"+url.PathEscape(trackID), nil)
	if err != nil {
		return nil, err
	}

	var tr trackResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("catalog: decode track: %w", err)
	}
	return &models.TrackMetadata{TrackID: tr.ID, URI: tr.URI, Name: tr.Name}, nil
}

// FetchAudioFeatures fetches the raw feature row for one track. A catalog
// 404 returns (nil, nil): the track simply has no features.
func (c *Client) FetchAudioFeatures(ctx context.Context, trackID string) (*models.AudioFeatures, error) {
	body, err := c.do(ctx, "audio_features", http.MethodGet, "/audio-features/"+url.PathEscape(trackID), nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var af audioFeaturesResponse
	if err := json.Unmarshal(body, &af); err != nil {
		return nil, fmt.Errorf("catalog: decode audio features: %w", err)
	}
	return af.toModel(), nil
}

// FetchAudioFeaturesBatch fetches features for up to AudioFeaturesBatchLimit
// tracks at once. The result maps track id to row; tracks the catalog has no
// features for (returned as nulls) are simply absent from the map.
func (c *Client) FetchAudioFeaturesBatch(ctx context.Context, trackIDs []string) (map[string]*models.AudioFeatures, error) {
	if len(trackIDs) == 0 {
		return map[string]*models.AudioFeatures{}, nil
	}
	if len(trackIDs) > AudioFeaturesBatchLimit {
		return nil, fmt.Errorf("catalog: batch of %d exceeds limit %d", len(trackIDs), AudioFeaturesBatchLimit)
	}

	q := url.Values{"ids": {strings.Join(trackIDs, ",")}}
	body, err := c.do(ctx, "audio_features_batch", http.MethodGet, "/audio-features", q)
	if err != nil {
		return nil, err
	}

	var batch audioFeaturesBatchResponse
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("catalog: decode audio features batch: %w", err)
	}

	out := make(map[string]*models.AudioFeatures, len(batch.AudioFeatures))
	for _, af := range batch.AudioFeatures {
		if af == nil || af.ID == "" {
			continue
		}
		out[af.ID] = af.toModel()
	}
	return out, nil
}

// SavedTracks fetches one page of the user's saved library.
func (c *Client) SavedTracks(ctx context.Context, offset, limit int) (*SavedTracksPage, error) {
	if limit <= 0 || limit > SavedTracksPageLimit {
		limit = SavedTracksPageLimit
	}

	q := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
	body, err := c.do(ctx, "saved_tracks", http.MethodGet, "/me/tracks", q)
	if err != nil {
		return nil, err
	}

	var resp savedTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("catalog: decode saved tracks: %w", err)
	}

	page := &SavedTracksPage{
		Items:   make([]SavedTrack, 0, len(resp.Items)),
		Total:   resp.Total,
		HasNext: resp.Next != "",
	}
	for _, item := range resp.Items {
		page.Items = append(page.Items, SavedTrack{
			Track: models.TrackMetadata{
				TrackID: item.Track.ID,
				URI:     item.Track.URI,
				Name:    item.Track.Name,
			},
			AddedAt: item.AddedAt,
		})
	}
	return page, nil
}

// AddToQueue appends a track URI to the listener's playback queue. deviceID
// may be empty to target the active device.
func (c *Client) AddToQueue(ctx context.Context, uri, deviceID string) error {
	q := url.Values{"uri": {uri}}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}

	_, err := c.do(ctx, "add_to_queue", http.MethodPost, "/me/player/queue", q)
	return err
}

func (af *audioFeaturesResponse) toModel() *models.AudioFeatures {
	return &models.AudioFeatures{
		TrackID:          af.ID,
		DurationMs:       af.DurationMs,
		Danceability:     af.Danceability,
		Energy:           af.Energy,
		Valence:          af.Valence,
		Tempo:            af.Tempo,
		Acousticness:     af.Acousticness,
		Instrumentalness: af.Instrumentalness,
		Liveness:         af.Liveness,
		Speechiness:      af.Speechiness,
		Loudness:         af.Loudness,
	}
}
