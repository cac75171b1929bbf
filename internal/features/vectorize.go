// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

// Package features normalizes raw per-track audio attributes into unit-range
// vectors for similarity scoring, and resolves feature rows through a local
// store with catalog fallback and age-based refresh.
package features

import (
	"math"

	"github.com/seguefm/segue/internal/models"
)

// Dim is the feature vector dimensionality.
const Dim = 9

// Tempo and loudness rescale ranges. Values outside clamp to the unit range.
const (
	tempoMin = 50.0
	tempoMax = 200.0

	loudnessMin = -60.0
	loudnessMax = 0.0
)

// Vector is a normalized audio feature vector with all components in [0,1].
type Vector [Dim]float64

// ToVector normalizes a raw feature row. Unit-range fields pass through with
// 0 as the missing/NaN fallback. Tempo and loudness are linearly rescaled to
// [0,1] and default to the 0.5 midpoint when absent, so incomplete data does
// not bias similarity toward either extreme.
func ToVector(af *models.AudioFeatures) Vector {
	return Vector{
		unit(af.Danceability),
		unit(af.Energy),
		unit(af.Valence),
		rescale(af.Tempo, tempoMin, tempoMax),
		unit(af.Acousticness),
		unit(af.Instrumentalness),
		unit(af.Liveness),
		unit(af.Speechiness),
		rescale(af.Loudness, loudnessMin, loudnessMax),
	}
}

// CosineSim returns the cosine similarity of two vectors. A zero-magnitude
// vector on either side yields 0 rather than dividing by zero.
func CosineSim(a, b Vector) float64 {
	var dot, magA, magB float64
	for i := 0; i < Dim; i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func unit(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return 0
	}
	return clamp01(*v)
}

func rescale(v *float64, min, max float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return 0.5
	}
	return clamp01((*v - min) / (max - min))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
