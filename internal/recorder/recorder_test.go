package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"contourtrack/internal/contour"
	"contourtrack/internal/grid"
)

func snap(clock int64, above ...uint16) grid.Snapshot {
	set := map[uint16]bool{}
	for _, id := range above {
		set[id] = true
	}
	s := grid.Classify([]uint16{1, 2, 3, 4}, func(id uint16) int {
		if set[id] {
			return 900
		}
		return 100
	}, 500)
	s.LatestClock = clock
	s.Taken = time.UnixMilli(clock).UTC()
	return s
}

func writeRecording(t *testing.T, snaps ...grid.Snapshot) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "field.ect")
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec, err := Create(path, "station-a", contour.VariantFTSP, start)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, s := range snaps {
		if err := rec.WriteSnapshot(s); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if rec.Count() != len(snaps) {
		t.Fatalf("count = %d", rec.Count())
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestRecordAndLoad(t *testing.T) {
	s2 := snap(3000, 2)
	s2.Event = &grid.Event{Kind: grid.Appeared, Blobs: 1, Motes: []uint16{2}}
	path := writeRecording(t, snap(1000), s2, snap(6500, 2, 3))

	rec, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Header.Format != FormatTag || rec.Header.StationID != "station-a" || rec.Header.Variant != "ftsp" {
		t.Fatalf("header = %+v", rec.Header)
	}
	if _, err := uuid.Parse(rec.Header.Session); err != nil {
		t.Fatalf("session id %q: %v", rec.Header.Session, err)
	}
	if !rec.Header.Start.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("start = %v", rec.Header.Start)
	}
	if len(rec.Snapshots) != 3 || rec.Truncated {
		t.Fatalf("snapshots = %d truncated = %v", len(rec.Snapshots), rec.Truncated)
	}
	got := rec.Snapshots[1]
	if got.LatestClock != 3000 || !got.Taken.Equal(s2.Taken) || got.Dim != 3 || got.Threshold != 500 {
		t.Fatalf("snapshot = %+v", got)
	}
	if c, _ := got.Cell(2); !c.Above || c.Level != grid.Boundary || c.Sample != 900 {
		t.Fatalf("cell 2 = %+v", c)
	}
	if got.Event == nil || got.Event.Kind != grid.Appeared || got.Event.Motes[0] != 2 {
		t.Fatalf("event = %+v", got.Event)
	}
	if rec.Duration() != 5500*time.Millisecond {
		t.Fatalf("duration = %v", rec.Duration())
	}
}

func TestLoadTruncatedTail(t *testing.T) {
	path := writeRecording(t, snap(1000), snap(2000))
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b[:len(b)-5], 0o644); err != nil {
		t.Fatal(err)
	}
	rec, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !rec.Truncated || len(rec.Snapshots) != 1 {
		t.Fatalf("truncated = %v snapshots = %d", rec.Truncated, len(rec.Snapshots))
	}
}

func TestLoadRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.ect")
	if err := os.WriteFile(path, []byte("not cbor at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.ect")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStampFallsBackToTaken(t *testing.T) {
	s := grid.Snapshot{Taken: time.UnixMilli(4242)}
	if Stamp(s) != 4242 {
		t.Fatalf("stamp = %d", Stamp(s))
	}
}

func TestSeek(t *testing.T) {
	rec := Recording{Snapshots: []grid.Snapshot{snap(1000), snap(2000), snap(4000), snap(7000)}}
	p := NewPlayer(rec)
	cases := []struct {
		offset time.Duration
		want   int64
	}{
		{-time.Second, 1000},
		{0, 1000},
		{999 * time.Millisecond, 1000},
		{time.Second, 2000},
		{2500 * time.Millisecond, 2000},
		{3 * time.Second, 4000},
		{time.Minute, 7000},
	}
	for _, tc := range cases {
		s, ok := p.Seek(tc.offset)
		if !ok || s.LatestClock != tc.want {
			t.Errorf("Seek(%v) = %d, want %d", tc.offset, s.LatestClock, tc.want)
		}
		next, _ := p.Next()
		if next.LatestClock != tc.want {
			t.Errorf("Next after Seek(%v) = %d, want %d", tc.offset, next.LatestClock, tc.want)
		}
	}
	if _, ok := NewPlayer(Recording{}).Seek(0); ok {
		t.Fatal("seek on empty recording should fail")
	}
}

func TestPlay(t *testing.T) {
	rec := Recording{Snapshots: []grid.Snapshot{snap(1000), snap(1040), snap(1080)}}
	p := NewPlayer(rec)
	var got []int64
	start := time.Now()
	err := p.Play(context.Background(), 2, func(s grid.Snapshot) error {
		got = append(got, s.LatestClock)
		return nil
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("played %v", got)
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Fatalf("played too fast: %v", elapsed)
	}
	if _, ok := p.Next(); ok {
		t.Fatal("player should be exhausted")
	}
}

func TestPlayStopsOnCancelAndError(t *testing.T) {
	rec := Recording{Snapshots: []grid.Snapshot{snap(0), snap(60_000)}}
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := NewPlayer(rec).Play(ctx, 1, func(grid.Snapshot) error {
		n++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) || n != 1 {
		t.Fatalf("err = %v, n = %d", err, n)
	}

	boom := errors.New("boom")
	err = NewPlayer(rec).Play(context.Background(), 0, func(grid.Snapshot) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
