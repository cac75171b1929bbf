// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package config

import (
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	t.Parallel()

	cfg := Default()

	if cfg.Ingest.SkipThresholdMs != 15000 {
		t.Errorf("SkipThresholdMs = %d, want 15000", cfg.Ingest.SkipThresholdMs)
	}
	if cfg.Ingest.CompleteRatio != 0.7 {
		t.Errorf("CompleteRatio = %g, want 0.7", cfg.Ingest.CompleteRatio)
	}
	if cfg.Recommend.WeightMarkov != 0.70 || cfg.Recommend.WeightSim != 0.25 || cfg.Recommend.WeightGlobal != 0.05 {
		t.Errorf("unexpected default weights: %+v", cfg.Recommend)
	}
	if cfg.Recommend.PriorAlpha != 1 || cfg.Recommend.PriorBeta != 3 {
		t.Errorf("unexpected default priors: alpha=%g beta=%g", cfg.Recommend.PriorAlpha, cfg.Recommend.PriorBeta)
	}
	if cfg.Recommend.TransitionLimit != 25 || cfg.Recommend.GlobalLimit != 50 || cfg.Recommend.LibraryLimit != 5000 {
		t.Errorf("unexpected candidate caps: %+v", cfg.Recommend)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"weights do not sum to 1", func(c *Config) { c.Recommend.WeightMarkov = 0.9 }},
		{"negative weight", func(c *Config) {
			c.Recommend.WeightMarkov = 1.25
			c.Recommend.WeightSim = -0.30
		}},
		{"zero prior", func(c *Config) { c.Recommend.PriorAlpha = 0 }},
		{"zero transition cap", func(c *Config) { c.Recommend.TransitionLimit = 0 }},
		{"zero skip threshold", func(c *Config) { c.Ingest.SkipThresholdMs = 0 }},
		{"complete ratio above 1", func(c *Config) { c.Ingest.CompleteRatio = 1.5 }},
		{"zero catalog rate", func(c *Config) { c.Catalog.RatePerSecond = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want string
	}{
		{"HTTP_PORT", "server.port"},
		{"DUCKDB_PATH", "database.path"},
		{"CATALOG_TOKEN", "catalog.token"},
		{"SKIP_THRESHOLD_MS", "ingest.skip_threshold_ms"},
		{"RECOMMEND_WEIGHT_MARKOV", "recommend.weight_markov"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},       // unmapped vars are skipped
		{"SOME_RANDOM", ""},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()

			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("SKIP_THRESHOLD_MS", "20000")
	t.Setenv("CACHE_METADATA_TTL", "1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Ingest.SkipThresholdMs != 20000 {
		t.Errorf("SkipThresholdMs = %d, want 20000", cfg.Ingest.SkipThresholdMs)
	}
	if cfg.Cache.MetadataTTL != time.Hour {
		t.Errorf("MetadataTTL = %v, want 1h", cfg.Cache.MetadataTTL)
	}
}
