// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/database"
	"github.com/seguefm/segue/internal/models"
)

type fakeStats struct {
	starts []string // "track|prev"
	ends   []database.TrackEndUpdate

	lastAction   string
	lastActionTs int64
	actionErr    error
	startErr     error
	endErr       error
}

func (f *fakeStats) IncrementTrackStart(_ context.Context, trackID, prevTrackID string, _ int64) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, trackID+"|"+prevTrackID)
	return nil
}

func (f *fakeStats) ApplyTrackEnd(_ context.Context, upd database.TrackEndUpdate) error {
	if f.endErr != nil {
		return f.endErr
	}
	f.ends = append(f.ends, upd)
	return nil
}

func (f *fakeStats) LastActionForSession(_ context.Context, _ string, _ int64) (string, int64, error) {
	return f.lastAction, f.lastActionTs, f.actionErr
}

type fakeDurations struct {
	durationMs int64
	known      bool
	err        error
}

func (f *fakeDurations) TrackDuration(_ context.Context, _ string) (int64, bool, error) {
	return f.durationMs, f.known, f.err
}

func i64(v int64) *int64 { return &v }

func TestIsFastSkip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reason   string
		listened int64
		want     bool
	}{
		{"skip_next under threshold", models.ReasonSkipNext, 12000, true},
		{"skip_prev under threshold", models.ReasonSkipPrev, 100, true},
		{"skip_next at threshold", models.ReasonSkipNext, 15000, false},
		{"skip_next over threshold", models.ReasonSkipNext, 60000, false},
		{"finished under threshold", models.ReasonFinished, 1000, false},
		{"pause_stop under threshold", models.ReasonPauseStop, 1000, false},
		{"unknown under threshold", models.ReasonUnknown, 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsFastSkip(tt.reason, tt.listened, 15000); got != tt.want {
				t.Errorf("IsFastSkip(%q, %d) = %v, want %v", tt.reason, tt.listened, got, tt.want)
			}
		})
	}
}

func TestIsCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		listened int64
		duration int64
		want     bool
	}{
		{"full listen", 180000, 180000, true},
		{"exactly at ratio", 126000, 180000, true}, // 0.7 * 180000
		{"just under ratio", 125999, 180000, false},
		{"zero duration", 10000, 0, false},
		{"negative duration", 10000, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsCompletion(tt.listened, tt.duration, 0.7); got != tt.want {
				t.Errorf("IsCompletion(%d, %d) = %v, want %v", tt.listened, tt.duration, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Ingest
	c := NewClassifier(&cfg)

	tests := []struct {
		name          string
		durationMs    int64
		durationKnown bool
		positionMs    int64
		positionKnown bool
		action        string
		actionTsMs    int64
		endTsMs       int64
		want          string
	}{
		{
			name:       "position at duration is finished",
			durationMs: 180000, durationKnown: true,
			positionMs: 180000, positionKnown: true,
			endTsMs: 1000,
			want:    models.ReasonFinished,
		},
		{
			name:       "position within finish window",
			durationMs: 180000, durationKnown: true,
			positionMs: 178500, positionKnown: true,
			endTsMs: 1000,
			want:    models.ReasonFinished,
		},
		{
			name:       "finished wins over recent action",
			durationMs: 180000, durationKnown: true,
			positionMs: 179000, positionKnown: true,
			action: models.ActionNext, actionTsMs: 900, endTsMs: 1000,
			want: models.ReasonFinished,
		},
		{
			name:       "next action within window",
			durationMs: 180000, durationKnown: true,
			positionMs: 40000, positionKnown: true,
			action: models.ActionNext, actionTsMs: 9500, endTsMs: 10000,
			want: models.ReasonSkipNext,
		},
		{
			name:   "prev action within window",
			action: models.ActionPrev, actionTsMs: 10000, endTsMs: 10000,
			want: models.ReasonSkipPrev,
		},
		{
			name:   "pause action within window",
			action: models.ActionPause, actionTsMs: 9000, endTsMs: 10000,
			want: models.ReasonPauseStop,
		},
		{
			name:   "action outside window",
			action: models.ActionNext, actionTsMs: 5000, endTsMs: 10000,
			want: models.ReasonUnknown,
		},
		{
			name:   "action after end",
			action: models.ActionNext, actionTsMs: 11000, endTsMs: 10000,
			want: models.ReasonUnknown,
		},
		{
			name:   "seek action never classifies",
			action: models.ActionSeek, actionTsMs: 10000, endTsMs: 10000,
			want: models.ReasonUnknown,
		},
		{
			name:       "unknown duration cannot finish",
			positionMs: 180000, positionKnown: true,
			endTsMs: 1000,
			want:    models.ReasonUnknown,
		},
		{
			name: "nothing known",
			want: models.ReasonUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := c.Classify(tt.durationMs, tt.durationKnown, tt.positionMs, tt.positionKnown,
				tt.action, tt.actionTsMs, tt.endTsMs)
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func newAggregator(stats *fakeStats, durations *fakeDurations) *Aggregator {
	cfg := config.Default().Ingest
	return NewAggregator(stats, durations, &cfg)
}

func TestHandleEventStart(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{}
	agg := newAggregator(stats, &fakeDurations{})

	ev := &models.Event{TimestampMs: 1000, SessionID: "session-1", Type: models.EventStart, TrackID: "t2", PrevTrackID: "t1"}
	if err := agg.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(start) failed: %v", err)
	}
	if len(stats.starts) != 1 || stats.starts[0] != "t2|t1" {
		t.Errorf("starts = %v, want [t2|t1]", stats.starts)
	}
}

func TestHandleEventEndExplicitReason(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{lastAction: models.ActionPause, lastActionTs: 12900}
	agg := newAggregator(stats, &fakeDurations{durationMs: 180000, known: true})

	// Explicit skip reason wins over the recorded pause action.
	ev := &models.Event{
		TimestampMs: 13000, SessionID: "session-1", Type: models.EventEnd,
		TrackID: "t2", PrevTrackID: "t1",
		ListenedMs: i64(12000), Reason: models.ReasonSkipNext,
	}
	if err := agg.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(end) failed: %v", err)
	}

	if len(stats.ends) != 1 {
		t.Fatalf("ends = %v, want one update", stats.ends)
	}
	upd := stats.ends[0]
	if !upd.FastSkip {
		t.Error("12s listen on an explicit skip must count as a fast skip")
	}
	if upd.Completion {
		t.Error("12s of a 180s track must not count as a completion")
	}
	if upd.ListenedMs != 12000 || upd.PrevTrackID != "t1" {
		t.Errorf("update = %+v", upd)
	}
}

func TestHandleEventEndClassifiesUnlabeled(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{lastAction: models.ActionNext, lastActionTs: 9800}
	agg := newAggregator(stats, &fakeDurations{durationMs: 180000, known: true})

	ev := &models.Event{
		TimestampMs: 10000, SessionID: "session-1", Type: models.EventEnd,
		TrackID: "t2", ListenedMs: i64(9000), PositionMs: i64(9000),
	}
	if err := agg.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(end) failed: %v", err)
	}

	if len(stats.ends) != 1 || !stats.ends[0].FastSkip {
		t.Errorf("classified skip_next with 9s listen must be a fast skip, got %+v", stats.ends)
	}
}

func TestHandleEventEndCompletion(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{}
	agg := newAggregator(stats, &fakeDurations{durationMs: 180000, known: true})

	ev := &models.Event{
		TimestampMs: 180000, SessionID: "session-1", Type: models.EventEnd,
		TrackID: "t2", ListenedMs: i64(126000), Reason: models.ReasonFinished,
	}
	if err := agg.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(end) failed: %v", err)
	}

	if len(stats.ends) != 1 || !stats.ends[0].Completion {
		t.Errorf("70%% listen must count as completion, got %+v", stats.ends)
	}
}

func TestHandleEventEndPrefersEventDuration(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{}
	// Stored duration disagrees; the event's own figure wins.
	agg := newAggregator(stats, &fakeDurations{durationMs: 600000, known: true})

	ev := &models.Event{
		TimestampMs: 180000, SessionID: "session-1", Type: models.EventEnd,
		TrackID: "t2", ListenedMs: i64(126000), DurationMs: i64(180000),
		Reason: models.ReasonFinished,
	}
	if err := agg.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(end) failed: %v", err)
	}
	if len(stats.ends) != 1 || !stats.ends[0].Completion {
		t.Errorf("event-carried duration must drive the completion check, got %+v", stats.ends)
	}
}

func TestHandleEventEndDurationLookupFailure(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{}
	agg := newAggregator(stats, &fakeDurations{err: errors.New("catalog down")})

	ev := &models.Event{
		TimestampMs: 180000, SessionID: "session-1", Type: models.EventEnd,
		TrackID: "t2", ListenedMs: i64(170000), Reason: models.ReasonPauseStop,
	}
	if err := agg.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("end must still aggregate when duration lookup fails: %v", err)
	}

	if len(stats.ends) != 1 {
		t.Fatalf("ends = %v, want one update", stats.ends)
	}
	if stats.ends[0].Completion {
		t.Error("unknown duration without a finished reason must not count as completion")
	}
	if stats.ends[0].ListenedMs != 170000 {
		t.Errorf("ListenedMs = %d, want 170000", stats.ends[0].ListenedMs)
	}
}

func TestHandleEventEndFinishedIsAlwaysCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		durations *fakeDurations
		ev        *models.Event
	}{
		{
			// The duration lookup failed outright.
			name:      "unknown duration",
			durations: &fakeDurations{err: errors.New("catalog down")},
			ev: &models.Event{
				TimestampMs: 180000, SessionID: "session-1", Type: models.EventEnd,
				TrackID: "t2", ListenedMs: i64(170000), Reason: models.ReasonFinished,
			},
		},
		{
			// 50s of 200s is well under the ratio, but the client said finished.
			name:      "listened below ratio",
			durations: &fakeDurations{durationMs: 200000, known: true},
			ev: &models.Event{
				TimestampMs: 200000, SessionID: "session-1", Type: models.EventEnd,
				TrackID: "t2", ListenedMs: i64(50000), Reason: models.ReasonFinished,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stats := &fakeStats{}
			agg := newAggregator(stats, tt.durations)
			if err := agg.HandleEvent(context.Background(), tt.ev); err != nil {
				t.Fatalf("HandleEvent(end) failed: %v", err)
			}
			if len(stats.ends) != 1 || !stats.ends[0].Completion {
				t.Errorf("a finished end must count as completion, got %+v", stats.ends)
			}
		})
	}
}

func TestHandleEventEndActionLookupFailure(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{actionErr: errors.New("query failed")}
	agg := newAggregator(stats, &fakeDurations{durationMs: 180000, known: true})

	ev := &models.Event{
		TimestampMs: 10000, SessionID: "session-1", Type: models.EventEnd,
		TrackID: "t2", ListenedMs: i64(9000),
	}
	if err := agg.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("end must still aggregate when action lookup fails: %v", err)
	}
	if len(stats.ends) != 1 || stats.ends[0].FastSkip {
		t.Errorf("without action context the end stays unknown, got %+v", stats.ends)
	}
}

func TestHandleEventPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("disk full")
	stats := &fakeStats{startErr: wantErr, endErr: wantErr}
	agg := newAggregator(stats, &fakeDurations{})

	startEv := &models.Event{TimestampMs: 1, SessionID: "session-1", Type: models.EventStart, TrackID: "t1"}
	if err := agg.HandleEvent(context.Background(), startEv); !errors.Is(err, wantErr) {
		t.Errorf("start error = %v, want wrapped %v", err, wantErr)
	}

	endEv := &models.Event{TimestampMs: 1, SessionID: "session-1", Type: models.EventEnd, TrackID: "t1", Reason: models.ReasonUnknown}
	if err := agg.HandleEvent(context.Background(), endEv); !errors.Is(err, wantErr) {
		t.Errorf("end error = %v, want wrapped %v", err, wantErr)
	}
}

func TestHandleEventIgnoresActionAndPos(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{}
	agg := newAggregator(stats, &fakeDurations{})

	for _, ev := range []*models.Event{
		{TimestampMs: 1, SessionID: "session-1", Type: models.EventAction, Action: models.ActionNext},
		{TimestampMs: 2, SessionID: "session-1", Type: models.EventPos, TrackID: "t1", PositionMs: i64(500)},
	} {
		if err := agg.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("HandleEvent(%s) failed: %v", ev.Type, err)
		}
	}
	if len(stats.starts) != 0 || len(stats.ends) != 0 {
		t.Errorf("action/pos events must not touch counters: starts=%v ends=%v", stats.starts, stats.ends)
	}
}
