package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"contourtrack/internal/telemetry"
)

// Measurements written to InfluxDB.
const (
	influxSampleMeasurement = "contour_sample"
	influxEventMeasurement  = "contour_event"
)

// influxWriteAPI is the part of api.WriteAPIBlocking the writer uses.
type influxWriteAPI interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxDBWriter writes samples and contour events to an InfluxDB v2 bucket.
type InfluxDBWriter struct {
	client  influxdb2.Client
	api     influxWriteAPI
	timeout time.Duration
}

// NewInfluxDBWriter connects to the InfluxDB server at url. Writes are
// blocking so errors surface to the caller.
func NewInfluxDBWriter(url, token, org, bucket string) (*InfluxDBWriter, error) {
	if url == "" || bucket == "" {
		return nil, fmt.Errorf("influxdb: url and bucket required")
	}
	client := influxdb2.NewClient(url, token)
	return &InfluxDBWriter{
		client:  client,
		api:     client.WriteAPIBlocking(org, bucket),
		timeout: 5 * time.Second,
	}, nil
}

func (w *InfluxDBWriter) send(points []*write.Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.api.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influxdb write: %w", err)
	}
	return nil
}

// Write implements Writer.
func (w *InfluxDBWriter) Write(row telemetry.ReportRow) error {
	return w.WriteBatch([]telemetry.ReportRow{row})
}

// WriteBatch writes one point per reading.
func (w *InfluxDBWriter) WriteBatch(rows []telemetry.ReportRow) error {
	var points []*write.Point
	for _, r := range rows {
		for _, s := range telemetry.SampleRows(r) {
			points = append(points, influxdb2.NewPoint(
				influxSampleMeasurement,
				map[string]string{
					"station_id": s.StationID,
					"mote_id":    strconv.Itoa(int(s.MoteID)),
				},
				map[string]interface{}{
					"sample_index": int64(s.Index),
					"value":        int64(s.Value),
					"threshold":    int64(s.Threshold),
					"above":        s.Above,
					"version":      int64(r.Version),
				},
				s.Timestamp,
			))
		}
	}
	return w.send(points)
}

// WriteEvent writes a contour event point.
func (w *InfluxDBWriter) WriteEvent(e telemetry.ContourEventRow) error {
	ids, err := json.Marshal(e.MoteIDs)
	if err != nil {
		return err
	}
	p := influxdb2.NewPoint(
		influxEventMeasurement,
		map[string]string{"station_id": e.StationID, "kind": e.Kind},
		map[string]interface{}{
			"prev_blobs": int64(e.PrevBlobs),
			"blobs":      int64(e.Blobs),
			"mote_ids":   string(ids),
			"threshold":  int64(e.Threshold),
			"clock":      e.Clock,
		},
		e.Timestamp,
	)
	return w.send([]*write.Point{p})
}

func (w *InfluxDBWriter) Close() error {
	if w.client != nil {
		w.client.Close()
	}
	return nil
}
