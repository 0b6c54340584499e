package sink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"contourtrack/internal/telemetry"
)

type mockInfluxAPI struct {
	points []*write.Point
	err    error
}

func (m *mockInfluxAPI) WritePoint(_ context.Context, p ...*write.Point) error {
	m.points = append(m.points, p...)
	return m.err
}

func lines(points []*write.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = write.PointToLineProtocol(p, time.Millisecond)
	}
	return out
}

func TestInfluxDBWriterSamples(t *testing.T) {
	api := &mockInfluxAPI{}
	w := &InfluxDBWriter{api: api, timeout: time.Second}
	row := reportRow(4, 100, 700)
	if err := w.Write(row); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := lines(api.points)
	if len(got) != 2 {
		t.Fatalf("points = %d, want 2", len(got))
	}
	for _, want := range []string{"contour_sample,", "mote_id=4", "station_id=s1", "value=700i", "above=true", "sample_index="} {
		if !strings.Contains(got[1], want) {
			t.Fatalf("line %q missing %q", got[1], want)
		}
	}
	if !strings.Contains(got[0], "above=false") {
		t.Fatalf("first sample should be below threshold: %q", got[0])
	}
}

func TestInfluxDBWriterEvent(t *testing.T) {
	api := &mockInfluxAPI{}
	w := &InfluxDBWriter{api: api, timeout: time.Second}
	e := telemetry.ContourEventRow{StationID: "s1", Kind: "merged", PrevBlobs: 2, Blobs: 1, MoteIDs: []uint16{1, 2}, Threshold: 500, Timestamp: ts}
	if err := w.WriteEvent(e); err != nil {
		t.Fatalf("event: %v", err)
	}
	got := lines(api.points)
	if len(got) != 1 || !strings.Contains(got[0], "contour_event,") || !strings.Contains(got[0], "kind=merged") || !strings.Contains(got[0], "blobs=1i") {
		t.Fatalf("event line = %q", got)
	}
}

func TestInfluxDBWriterErrors(t *testing.T) {
	boom := errors.New("boom")
	w := &InfluxDBWriter{api: &mockInfluxAPI{err: boom}, timeout: time.Second}
	if err := w.Write(reportRow(1, 5)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if err := w.WriteBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if _, err := NewInfluxDBWriter("", "", "org", "bucket"); err == nil {
		t.Fatal("expected error without url")
	}
}
