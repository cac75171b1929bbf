// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package api exposes the HTTP surface: telemetry ingestion, next-track
// recommendation, library sync, health, and metrics.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/seguefm/segue/internal/library"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/metrics"
	"github.com/seguefm/segue/internal/models"
	"github.com/seguefm/segue/internal/recommend"
)

// EventStore is the slice of persistence the handlers touch directly.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *models.Event) error
	Ping(ctx context.Context) error
}

// EventPublisher hands accepted events to the aggregation pipeline.
type EventPublisher interface {
	Publish(ev *models.Event) error
}

// Recommender is the orchestrator surface the handlers call.
type Recommender interface {
	RecommendNext(ctx context.Context, currentTrackID string) (*models.Recommendation, error)
	QueueNext(ctx context.Context, currentTrackID, deviceID string) (*models.Recommendation, error)
}

// LibrarySyncer runs and reports library syncs.
type LibrarySyncer interface {
	Sync(ctx context.Context, maxTracks int) (*library.Result, error)
	Count(ctx context.Context) (int64, error)
}

// Handler holds the wired dependencies for all HTTP handlers.
type Handler struct {
	store       EventStore
	publisher   EventPublisher
	recommender Recommender
	library     LibrarySyncer
}

// NewHandler wires the HTTP handlers.
func NewHandler(store EventStore, publisher EventPublisher, recommender Recommender, lib LibrarySyncer) *Handler {
	return &Handler{
		store:       store,
		publisher:   publisher,
		recommender: recommender,
		library:     lib,
	}
}

// PostEvent ingests one telemetry event: validate, append to the durable
// log, then publish for aggregation. The append is synchronous so a
// persistence failure surfaces as a 5xx; a publish failure after a durable
// append logs and still accepts (the log is the source of truth).
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if err := decodeBody(r, &ev); err != nil {
		metrics.EventsRejected.WithLabelValues("malformed").Inc()
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "Malformed JSON body", err)
		return
	}

	if vErr := ev.Validate(); vErr != nil {
		metrics.EventsRejected.WithLabelValues(ev.Type).Inc()
		apiErr := vErr.ToAPIError()
		respondValidationError(w, &models.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		})
		return
	}

	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}

	if err := h.store.AppendEvent(r.Context(), &ev); err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodePersistence,
			"Failed to persist event", err)
		return
	}

	if err := h.publisher.Publish(&ev); err != nil {
		logging.Error().Err(err).Str("event_type", ev.Type).
			Msg("event logged but not published for aggregation")
	}

	metrics.EventsIngested.WithLabelValues(ev.Type).Inc()
	respondData(w, http.StatusAccepted, map[string]string{"event_id": ev.EventID})
}

// GetRecommendNext returns the next track for ?current=<track id>.
func (h *Handler) GetRecommendNext(w http.ResponseWriter, r *http.Request) {
	current := r.URL.Query().Get("current")
	if current == "" {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation,
			"Query parameter 'current' is required", nil)
		return
	}

	rec, err := h.recommender.RecommendNext(r.Context(), current)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal,
			"Recommendation failed", err)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, models.ErrCodeNotAvailable,
			"No recommendation available yet; sync the library and keep listening", nil)
		return
	}

	respondData(w, http.StatusOK, rec)
}

type queueNextRequest struct {
	CurrentTrackID string `json:"current_track_id"`
	DeviceID       string `json:"device_id,omitempty"`
}

// PostQueueNext recommends and pushes the result onto the playback queue.
func (h *Handler) PostQueueNext(w http.ResponseWriter, r *http.Request) {
	var req queueNextRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "Malformed JSON body", err)
		return
	}
	if req.CurrentTrackID == "" {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation,
			"current_track_id is required", nil)
		return
	}

	rec, err := h.recommender.QueueNext(r.Context(), req.CurrentTrackID, req.DeviceID)
	switch {
	case errors.Is(err, recommend.ErrQueue):
		respondError(w, http.StatusBadGateway, models.ErrCodeCatalog,
			"Recommendation computed but queueing failed", err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal,
			"Recommendation failed", err)
		return
	case rec == nil:
		respondError(w, http.StatusNotFound, models.ErrCodeNotAvailable,
			"No recommendation available yet; sync the library and keep listening", nil)
		return
	}

	respondData(w, http.StatusOK, rec)
}

type librarySyncRequest struct {
	MaxTracks int `json:"max_tracks,omitempty"`
}

// PostLibrarySync pulls the saved library from the catalog.
func (h *Handler) PostLibrarySync(w http.ResponseWriter, r *http.Request) {
	var req librarySyncRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "Malformed JSON body", err)
			return
		}
	}
	if req.MaxTracks < 0 {
		respondError(w, http.StatusBadRequest, models.ErrCodeValidation,
			"max_tracks must be non-negative", nil)
		return
	}

	result, err := h.library.Sync(r.Context(), req.MaxTracks)
	if err != nil {
		respondError(w, http.StatusBadGateway, models.ErrCodeCatalog, "Library sync failed", err)
		return
	}

	respondData(w, http.StatusOK, result)
}

// GetLibraryCount returns the stored library size.
func (h *Handler) GetLibraryCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.library.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodePersistence,
			"Failed to count library tracks", err)
		return
	}

	respondData(w, http.StatusOK, map[string]int64{"count": count})
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady reports readiness: the database must answer.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrCodePersistence,
			"Database not ready", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ready"})
}
