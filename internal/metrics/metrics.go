// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segue_events_ingested_total",
			Help: "Total number of telemetry events accepted into the event log",
		},
		[]string{"event_type"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segue_events_rejected_total",
			Help: "Total number of telemetry events rejected by validation",
		},
		[]string{"event_type"},
	)

	AggregationUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segue_aggregation_updates_total",
			Help: "Total number of counter updates applied by the aggregation engine",
		},
		[]string{"kind"}, // "track_start", "track_end", "transition_start", "transition_end"
	)

	AggregationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segue_aggregation_errors_total",
			Help: "Total number of failed aggregation updates",
		},
		[]string{"kind"},
	)

	PipelineMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segue_pipeline_messages_total",
			Help: "Total number of pipeline messages by outcome",
		},
		[]string{"outcome"}, // "processed", "retried", "poisoned"
	)

	// Recommendation Metrics
	RecommendRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segue_recommend_requests_total",
			Help: "Total number of next-track recommendation requests",
		},
	)

	RecommendFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segue_recommend_fallbacks_total",
			Help: "Total number of recommendations served by a fallback strategy",
		},
		[]string{"reason"}, // "empty_candidates", "metadata_failure", "empty_library"
	)

	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segue_recommend_duration_seconds",
			Help:    "End-to-end duration of recommendation computation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	CandidatesScored = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segue_recommend_candidates_scored",
			Help:    "Number of candidates scored per recommendation request",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		},
	)

	// Catalog Client Metrics
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segue_catalog_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"operation", "status"}, // operation: "track", "features", "saved_tracks", "queue"
	)

	CatalogBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "segue_catalog_breaker_state",
			Help: "Catalog circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	MetadataCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segue_metadata_cache_hits_total",
			Help: "Total number of track metadata cache hits",
		},
	)

	MetadataCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segue_metadata_cache_misses_total",
			Help: "Total number of track metadata cache misses",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "segue_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segue_db_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Library Sync Metrics
	LibrarySyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segue_library_sync_duration_seconds",
			Help:    "Duration of library sync operations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	LibraryTracksSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segue_library_tracks_synced_total",
			Help: "Total number of library tracks upserted during sync",
		},
	)
)
