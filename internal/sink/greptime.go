package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"contourtrack/internal/telemetry"
)

// DefaultGreptimePort is the gRPC port GreptimeDB listens on.
const DefaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes samples and contour events to GreptimeDB via the
// ingester client.
type GreptimeDBWriter struct {
	client      greptimeClient
	sampleTable string
	eventTable  string
	timeout     time.Duration
}

// NewGreptimeDBWriter connects to endpoint (host or host:port). Empty table
// names fall back to the telemetry defaults.
func NewGreptimeDBWriter(endpoint, database, sampleTable, eventTable string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	if sampleTable == "" {
		sampleTable = telemetry.SampleTableName
	}
	if eventTable == "" {
		eventTable = telemetry.EventTableName
	}
	return &GreptimeDBWriter{
		client:      client,
		sampleTable: sampleTable,
		eventTable:  eventTable,
		timeout:     5 * time.Second,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	if endpoint == "" {
		return "", 0, fmt.Errorf("greptimedb endpoint not set")
	}
	host, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, DefaultGreptimePort, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("greptimedb endpoint %q: bad port", endpoint)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) send(name string, tbl *table.Table) error {
	timeout := w.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptimedb write %s: %w", name, err)
	}
	return nil
}

// Write inserts the samples of a single report.
func (w *GreptimeDBWriter) Write(row telemetry.ReportRow) error {
	return w.WriteBatch([]telemetry.ReportRow{row})
}

// WriteBatch inserts the samples of multiple reports, one row per reading.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.sampleTable)
	if err != nil {
		return err
	}
	cols := []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"station_id", true, types.STRING},
		{"mote_id", true, types.UINT16},
		{"sample_index", false, types.UINT32},
		{"value", false, types.UINT16},
		{"threshold", false, types.UINT16},
		{"above", false, types.BOOLEAN},
		{"version", false, types.UINT16},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	n := 0
	for _, r := range rows {
		for _, s := range telemetry.SampleRows(r) {
			if err := tbl.AddRow(s.StationID, s.MoteID, s.Index, s.Value, s.Threshold, s.Above, r.Version, s.Timestamp); err != nil {
				return err
			}
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return w.send(w.sampleTable, tbl)
}

// WriteEvent inserts a contour event. Mote ids are stored as a JSON array.
func (w *GreptimeDBWriter) WriteEvent(e telemetry.ContourEventRow) error {
	tbl, err := table.New(w.eventTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("station_id", types.STRING); err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		typ  types.ColumnType
	}{
		{"kind", types.STRING},
		{"mote_ids", types.STRING},
		{"prev_blobs", types.INT64},
		{"blobs", types.INT64},
		{"threshold", types.INT64},
		{"clock", types.INT64},
	} {
		if err := tbl.AddFieldColumn(c.name, c.typ); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	ids, err := json.Marshal(e.MoteIDs)
	if err != nil {
		return err
	}
	if err := tbl.AddRow(e.StationID, e.Kind, string(ids), int64(e.PrevBlobs), int64(e.Blobs), int64(e.Threshold), e.Clock, e.Timestamp); err != nil {
		return err
	}
	return w.send(w.eventTable, tbl)
}
