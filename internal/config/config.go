// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package config provides layered configuration loading for Segue using
// Koanf v2: struct defaults, then an optional YAML file, then environment
// variables.
package config

import (
	"fmt"
	"math"
	"time"
)

// Config is the root configuration for the Segue server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Recommend RecommendConfig `koanf:"recommend"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty string opens an in-memory
	// database (used by tests).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// CacheConfig holds the Badger metadata cache settings.
type CacheConfig struct {
	// Path is the Badger directory. Empty string uses an in-memory store.
	Path        string        `koanf:"path"`
	MetadataTTL time.Duration `koanf:"metadata_ttl"`
}

// CatalogConfig holds settings for the external music-catalog client.
type CatalogConfig struct {
	BaseURL string        `koanf:"base_url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
	// RatePerSecond bounds outbound catalog calls; Burst is the limiter bucket.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
	// Circuit breaker settings (consecutive failures before opening, and
	// how long the breaker stays open).
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerOpenFor     time.Duration `koanf:"breaker_open_for"`
}

// IngestConfig holds classification and aggregation thresholds.
type IngestConfig struct {
	// SkipThresholdMs: an end classified as a skip with less listened time
	// than this counts as a fast skip.
	SkipThresholdMs int64 `koanf:"skip_threshold_ms"`
	// CompleteRatio: listened/duration at or above this counts as a completion.
	CompleteRatio float64 `koanf:"complete_ratio"`
	// FinishWindowMs: an end within this distance of the track's duration is
	// classified as finished.
	FinishWindowMs int64 `koanf:"finish_window_ms"`
	// ActionWindowMs: a user action within this window before an end
	// attributes the end to that action.
	ActionWindowMs int64 `koanf:"action_window_ms"`
}

// PipelineConfig holds Watermill router settings for the aggregation pipeline.
type PipelineConfig struct {
	BufferSize           int64         `koanf:"buffer_size"`
	RetryMaxRetries      int           `koanf:"retry_max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	PoisonTopic          string        `koanf:"poison_topic"`
	CloseTimeout         time.Duration `koanf:"close_timeout"`
}

// RecommendConfig holds scoring weights, smoothing priors, and candidate caps.
type RecommendConfig struct {
	// Convex blend weights; must sum to 1.
	WeightMarkov float64 `koanf:"weight_markov"`
	WeightSim    float64 `koanf:"weight_sim"`
	WeightGlobal float64 `koanf:"weight_global"`

	// Beta prior for the transition skip-rate estimate.
	PriorAlpha float64 `koanf:"prior_alpha"`
	PriorBeta  float64 `koanf:"prior_beta"`

	// Candidate source caps.
	TransitionLimit int   `koanf:"transition_limit"`
	GlobalLimit     int   `koanf:"global_limit"`
	GlobalMinStarts int64 `koanf:"global_min_starts"`
	LibraryLimit    int   `koanf:"library_limit"`

	// TopN is the size of the diagnostic top list returned with each
	// recommendation.
	TopN int `koanf:"top_n"`

	// FeatureMaxAge triggers a refetch of audio features older than this on
	// access. Zero disables refresh.
	FeatureMaxAge time.Duration `koanf:"feature_max_age"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Default returns a Config with all default values applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8680,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/segue.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Cache: CacheConfig{
			Path:        "/data/segue-cache",
			MetadataTTL: 24 * time.Hour,
		},
		Catalog: CatalogConfig{
			BaseURL:            "https://api.spotify.com/v1",
			Token:              "",
			Timeout:            10 * time.Second,
			RatePerSecond:      10,
			Burst:              20,
			BreakerMaxFailures: 5,
			BreakerOpenFor:     30 * time.Second,
		},
		Ingest: IngestConfig{
			SkipThresholdMs: 15000,
			CompleteRatio:   0.7,
			FinishWindowMs:  2000,
			ActionWindowMs:  2000,
		},
		Pipeline: PipelineConfig{
			BufferSize:           1024,
			RetryMaxRetries:      5,
			RetryInitialInterval: 100 * time.Millisecond,
			RetryMaxInterval:     10 * time.Second,
			PoisonTopic:          "telemetry.poison",
			CloseTimeout:         30 * time.Second,
		},
		Recommend: RecommendConfig{
			WeightMarkov:    0.70,
			WeightSim:       0.25,
			WeightGlobal:    0.05,
			PriorAlpha:      1,
			PriorBeta:       3,
			TransitionLimit: 25,
			GlobalLimit:     50,
			GlobalMinStarts: 3,
			LibraryLimit:    5000,
			TopN:            10,
			FeatureMaxAge:   30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks configuration invariants. It is called after all layers
// are merged, so it sees the effective configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}

	r := c.Recommend
	if sum := r.WeightMarkov + r.WeightSim + r.WeightGlobal; math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("recommend weights must sum to 1, got %g", sum)
	}
	if r.WeightMarkov < 0 || r.WeightSim < 0 || r.WeightGlobal < 0 {
		return fmt.Errorf("recommend weights must be non-negative")
	}
	if r.PriorAlpha <= 0 || r.PriorBeta <= 0 {
		return fmt.Errorf("recommend priors must be positive, got alpha=%g beta=%g", r.PriorAlpha, r.PriorBeta)
	}
	if r.TransitionLimit <= 0 || r.GlobalLimit <= 0 || r.LibraryLimit <= 0 || r.TopN <= 0 {
		return fmt.Errorf("recommend candidate caps must be positive")
	}

	if c.Ingest.SkipThresholdMs <= 0 {
		return fmt.Errorf("ingest.skip_threshold_ms must be positive, got %d", c.Ingest.SkipThresholdMs)
	}
	if c.Ingest.CompleteRatio <= 0 || c.Ingest.CompleteRatio > 1 {
		return fmt.Errorf("ingest.complete_ratio must be in (0, 1], got %g", c.Ingest.CompleteRatio)
	}

	if c.Catalog.RatePerSecond <= 0 {
		return fmt.Errorf("catalog.rate_per_second must be positive, got %g", c.Catalog.RatePerSecond)
	}

	return nil
}
