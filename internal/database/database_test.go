// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{Path: ""})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return db
}

func i64(v int64) *int64 { return &v }

func TestAppendAndCountEvents(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	events := []*models.Event{
		{TimestampMs: 1000, SessionID: "session-1", Type: models.EventStart, TrackID: "t1"},
		{TimestampMs: 2000, SessionID: "session-1", Type: models.EventPos, TrackID: "t1", PositionMs: i64(1000)},
		{
			TimestampMs: 3000, SessionID: "session-1", Type: models.EventEnd,
			TrackID: "t1", Reason: models.ReasonFinished,
			PositionMs: i64(180000), ListenedMs: i64(180000), DurationMs: i64(180000),
		},
	}
	for _, ev := range events {
		if err := db.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent(%s) failed: %v", ev.Type, err)
		}
	}

	n, err := db.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("CountEvents() = %d, want 3", n)
	}
}

func TestAppendEventGeneratesID(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	ev := &models.Event{TimestampMs: 1000, SessionID: "session-1", Type: models.EventStart, TrackID: "t1"}
	if err := db.AppendEvent(ctx, ev); err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}
	if err := db.AppendEvent(ctx, ev); err != nil {
		t.Fatalf("second AppendEvent() must get a fresh ID: %v", err)
	}
}

func TestLastActionForSession(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	appendAction := func(ts int64, session, action string) {
		t.Helper()
		ev := &models.Event{TimestampMs: ts, SessionID: session, Type: models.EventAction, Action: action}
		if err := db.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent() failed: %v", err)
		}
	}
	appendAction(1000, "session-1", models.ActionPlay)
	appendAction(5000, "session-1", models.ActionNext)
	appendAction(9000, "session-1", models.ActionPause)
	appendAction(6000, "session-2", models.ActionPrev)

	tests := []struct {
		name       string
		sessionID  string
		tsMs       int64
		wantAction string
		wantTs     int64
	}{
		{"latest at or before cutoff", "session-1", 6000, models.ActionNext, 5000},
		{"cutoff equals action ts", "session-1", 5000, models.ActionNext, 5000},
		{"cutoff before all actions", "session-1", 500, "", 0},
		{"other session isolated", "session-2", 10000, models.ActionPrev, 6000},
		{"unknown session", "session-3", 10000, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, ts, err := db.LastActionForSession(ctx, tt.sessionID, tt.tsMs)
			if err != nil {
				t.Fatalf("LastActionForSession() failed: %v", err)
			}
			if action != tt.wantAction || ts != tt.wantTs {
				t.Errorf("got (%q, %d), want (%q, %d)", action, ts, tt.wantAction, tt.wantTs)
			}
		})
	}
}

func TestIncrementTrackStart(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	if err := db.IncrementTrackStart(ctx, "t2", "t1", 1000); err != nil {
		t.Fatalf("IncrementTrackStart() failed: %v", err)
	}
	if err := db.IncrementTrackStart(ctx, "t2", "t1", 2000); err != nil {
		t.Fatalf("IncrementTrackStart() failed: %v", err)
	}
	if err := db.IncrementTrackStart(ctx, "t3", "", 3000); err != nil {
		t.Fatalf("IncrementTrackStart() without prev failed: %v", err)
	}

	ts, err := db.GetTrackStats(ctx, "t2")
	if err != nil {
		t.Fatalf("GetTrackStats() failed: %v", err)
	}
	if ts == nil {
		t.Fatal("GetTrackStats() = nil, want row")
	}
	if ts.Starts != 2 || ts.LastPlayedTsMs != 2000 {
		t.Errorf("track stats = %+v, want starts=2 last=2000", ts)
	}

	tr, err := db.GetTransitionStats(ctx, "t1", "t2")
	if err != nil {
		t.Fatalf("GetTransitionStats() failed: %v", err)
	}
	if tr == nil {
		t.Fatal("GetTransitionStats() = nil, want row")
	}
	if tr.Starts != 2 || tr.LastTsMs != 2000 {
		t.Errorf("transition stats = %+v, want starts=2 last=2000", tr)
	}

	if tr2, err := db.GetTransitionStats(ctx, "t2", "t3"); err != nil || tr2 != nil {
		t.Errorf("no-prev start must not create a transition, got (%+v, %v)", tr2, err)
	}
}

func TestApplyTrackEnd(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	if err := db.IncrementTrackStart(ctx, "t2", "t1", 1000); err != nil {
		t.Fatalf("IncrementTrackStart() failed: %v", err)
	}
	if err := db.ApplyTrackEnd(ctx, TrackEndUpdate{
		TrackID: "t2", PrevTrackID: "t1",
		ListenedMs: 12000, FastSkip: true, Completion: false, TsMs: 13000,
	}); err != nil {
		t.Fatalf("ApplyTrackEnd() failed: %v", err)
	}
	if err := db.ApplyTrackEnd(ctx, TrackEndUpdate{
		TrackID: "t2", PrevTrackID: "t1",
		ListenedMs: 170000, FastSkip: false, Completion: true, TsMs: 200000,
	}); err != nil {
		t.Fatalf("ApplyTrackEnd() failed: %v", err)
	}

	ts, err := db.GetTrackStats(ctx, "t2")
	if err != nil || ts == nil {
		t.Fatalf("GetTrackStats() = (%+v, %v)", ts, err)
	}
	if ts.Completions != 1 || ts.SkipsFast != 1 || ts.TotalListenMs != 182000 {
		t.Errorf("track stats = %+v, want completions=1 skips=1 listen=182000", ts)
	}

	tr, err := db.GetTransitionStats(ctx, "t1", "t2")
	if err != nil || tr == nil {
		t.Fatalf("GetTransitionStats() = (%+v, %v)", tr, err)
	}
	if tr.SkipsFast != 1 || tr.TotalListenMs != 182000 || tr.LastTsMs != 200000 {
		t.Errorf("transition stats = %+v, want skips=1 listen=182000 last=200000", tr)
	}
}

func TestApplyTrackEndClampsNegativeListen(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	if err := db.ApplyTrackEnd(ctx, TrackEndUpdate{TrackID: "t1", ListenedMs: -500, TsMs: 1000}); err != nil {
		t.Fatalf("ApplyTrackEnd() failed: %v", err)
	}

	ts, err := db.GetTrackStats(ctx, "t1")
	if err != nil || ts == nil {
		t.Fatalf("GetTrackStats() = (%+v, %v)", ts, err)
	}
	if ts.TotalListenMs != 0 {
		t.Errorf("TotalListenMs = %d, want 0", ts.TotalListenMs)
	}
}

func TestGetTrackStatsMissing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	ts, err := db.GetTrackStats(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("GetTrackStats() failed: %v", err)
	}
	if ts != nil {
		t.Errorf("GetTrackStats() = %+v, want nil", ts)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := db.IncrementTrackStart(ctx, "hot", "prev", int64(i)); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent IncrementTrackStart() failed: %v", err)
	}

	ts, err := db.GetTrackStats(ctx, "hot")
	if err != nil || ts == nil {
		t.Fatalf("GetTrackStats() = (%+v, %v)", ts, err)
	}
	if want := int64(workers * perWorker); ts.Starts != want {
		t.Errorf("Starts = %d, want %d (lost updates)", ts.Starts, want)
	}
}

func TestTopTransitions(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	starts := map[string]int{"a": 5, "b": 9, "c": 2, "d": 9}
	for to, n := range starts {
		for i := 0; i < n; i++ {
			if err := db.IncrementTrackStart(ctx, to, "from", int64(i)); err != nil {
				t.Fatalf("IncrementTrackStart() failed: %v", err)
			}
		}
	}

	got, err := db.TopTransitions(ctx, "from", 3)
	if err != nil {
		t.Fatalf("TopTransitions() failed: %v", err)
	}
	want := []string{"b", "d", "a"} // descending starts, ties by track id
	if len(got) != len(want) {
		t.Fatalf("TopTransitions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TopTransitions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	empty, err := db.TopTransitions(ctx, "unknown", 3)
	if err != nil {
		t.Fatalf("TopTransitions(unknown) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("TopTransitions(unknown) = %v, want empty", empty)
	}
}

func TestGlobalGoodTracks(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	seed := func(id string, starts, skips int) {
		t.Helper()
		for i := 0; i < starts; i++ {
			if err := db.IncrementTrackStart(ctx, id, "", int64(i)); err != nil {
				t.Fatalf("IncrementTrackStart() failed: %v", err)
			}
		}
		for i := 0; i < skips; i++ {
			upd := TrackEndUpdate{TrackID: id, FastSkip: true, TsMs: int64(i)}
			if err := db.ApplyTrackEnd(ctx, upd); err != nil {
				t.Fatalf("ApplyTrackEnd() failed: %v", err)
			}
		}
	}
	seed("low-skip", 10, 1)  // ratio 0.1
	seed("no-skip", 5, 0)    // ratio 0.0
	seed("high-skip", 10, 8) // ratio 0.8
	seed("too-few", 2, 0)    // below min starts

	got, err := db.GlobalGoodTracks(ctx, 3, 10)
	if err != nil {
		t.Fatalf("GlobalGoodTracks() failed: %v", err)
	}
	want := []string{"no-skip", "low-skip", "high-skip"}
	if len(got) != len(want) {
		t.Fatalf("GlobalGoodTracks() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GlobalGoodTracks()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAudioFeaturesRoundTrip(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	energy := 0.8
	af := &models.AudioFeatures{
		TrackID:     "t1",
		DurationMs:  180000,
		Energy:      &energy,
		UpdatedTsMs: 1000,
	}
	if err := db.UpsertAudioFeatures(ctx, af); err != nil {
		t.Fatalf("UpsertAudioFeatures() failed: %v", err)
	}

	got, err := db.GetAudioFeatures(ctx, "t1")
	if err != nil || got == nil {
		t.Fatalf("GetAudioFeatures() = (%+v, %v)", got, err)
	}
	if got.DurationMs != 180000 {
		t.Errorf("DurationMs = %d, want 180000", got.DurationMs)
	}
	if got.Energy == nil || *got.Energy != 0.8 {
		t.Errorf("Energy = %v, want 0.8", got.Energy)
	}
	if got.Tempo != nil {
		t.Errorf("Tempo = %v, want nil (stored NULL)", got.Tempo)
	}

	// Upsert replaces the row.
	af.DurationMs = 200000
	af.UpdatedTsMs = 2000
	if err := db.UpsertAudioFeatures(ctx, af); err != nil {
		t.Fatalf("second UpsertAudioFeatures() failed: %v", err)
	}
	got, err = db.GetAudioFeatures(ctx, "t1")
	if err != nil || got == nil {
		t.Fatalf("GetAudioFeatures() = (%+v, %v)", got, err)
	}
	if got.DurationMs != 200000 || got.UpdatedTsMs != 2000 {
		t.Errorf("after upsert: %+v, want duration=200000 updated=2000", got)
	}
}

func TestTrackDuration(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertAudioFeatures(ctx, &models.AudioFeatures{
		TrackID: "t1", DurationMs: 180000, UpdatedTsMs: 1,
	}); err != nil {
		t.Fatalf("UpsertAudioFeatures() failed: %v", err)
	}

	d, ok, err := db.TrackDuration(ctx, "t1")
	if err != nil {
		t.Fatalf("TrackDuration() failed: %v", err)
	}
	if !ok || d != 180000 {
		t.Errorf("TrackDuration() = (%d, %v), want (180000, true)", d, ok)
	}

	_, ok, err = db.TrackDuration(ctx, "missing")
	if err != nil {
		t.Fatalf("TrackDuration(missing) failed: %v", err)
	}
	if ok {
		t.Error("TrackDuration(missing) reported known duration")
	}
}

func TestLibraryTracks(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		lt := &models.LibraryTrack{
			TrackID:      id,
			URI:          "spotify:track:" + id,
			AddedAt:      base.Add(time.Duration(i) * time.Hour),
			LastSeenTsMs: 1000,
		}
		if err := db.UpsertLibraryTrack(ctx, lt); err != nil {
			t.Fatalf("UpsertLibraryTrack(%s) failed: %v", id, err)
		}
	}

	n, err := db.CountLibraryTracks(ctx)
	if err != nil {
		t.Fatalf("CountLibraryTracks() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("CountLibraryTracks() = %d, want 3", n)
	}

	ids, err := db.LibraryTrackIDs(ctx, 2)
	if err != nil {
		t.Fatalf("LibraryTrackIDs() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "new" || ids[1] != "mid" {
		t.Errorf("LibraryTrackIDs() = %v, want [new mid]", ids)
	}

	// Upsert refreshes last_seen without duplicating.
	if err := db.UpsertLibraryTrack(ctx, &models.LibraryTrack{
		TrackID: "new", URI: "spotify:track:new", AddedAt: base, LastSeenTsMs: 2000,
	}); err != nil {
		t.Fatalf("refresh UpsertLibraryTrack() failed: %v", err)
	}
	n, err = db.CountLibraryTracks(ctx)
	if err != nil || n != 3 {
		t.Fatalf("CountLibraryTracks() after refresh = (%d, %v), want 3", n, err)
	}
}

func TestRandomLibraryTrackExcludesCurrent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	if lt, err := db.RandomLibraryTrack(ctx, "anything"); err != nil || lt != nil {
		t.Fatalf("empty library: got (%+v, %v), want (nil, nil)", lt, err)
	}

	for _, id := range []string{"only", "other"} {
		if err := db.UpsertLibraryTrack(ctx, &models.LibraryTrack{
			TrackID: id, URI: "spotify:track:" + id, LastSeenTsMs: 1,
		}); err != nil {
			t.Fatalf("UpsertLibraryTrack(%s) failed: %v", id, err)
		}
	}

	for i := 0; i < 10; i++ {
		lt, err := db.RandomLibraryTrack(ctx, "only")
		if err != nil {
			t.Fatalf("RandomLibraryTrack() failed: %v", err)
		}
		if lt == nil || lt.TrackID != "other" {
			t.Fatalf("RandomLibraryTrack() = %+v, want track other", lt)
		}
	}
}
