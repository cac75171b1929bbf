// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, the recommendation path, the catalog client, and DuckDB.
//
// All collectors are registered via promauto.
// Collectors are package-level variables so instrumentation points can
// reference them without dependency injection. The /metrics endpoint is
// served by promhttp in the API router.
package metrics
