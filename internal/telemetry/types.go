// Telemetry rows with greptime tags
package telemetry

import (
	"os"
	"time"

	"contourtrack/internal/contour"
)

// ReportRow is one decoded mote report as received by the station.
type ReportRow struct {
	StationID   string        `json:"station_id"`   // TAG
	MoteID      uint16        `json:"mote_id"`      // TAG
	Variant     string        `json:"variant"`      // FIELD
	Version     uint16        `json:"version"`      // FIELD
	Interval    uint16        `json:"interval"`     // FIELD
	Threshold   uint16        `json:"threshold"`    // FIELD
	Clock       int64         `json:"clock"`        // FIELD
	Count       uint16        `json:"count"`        // FIELD
	FirstSample uint32        `json:"first_sample"` // FIELD
	Readings    []uint16      `json:"readings"`     // FIELD
	FTSP        *contour.FTSP `json:"ftsp,omitempty"`
	Timestamp   time.Time     `json:"ts"` // TIME INDEX
}

// NewReportRow flattens r as received at ts.
func NewReportRow(stationID string, v contour.Variant, r contour.Report, ts time.Time) ReportRow {
	first, _ := r.Window(len(r.Readings))
	row := ReportRow{
		StationID:   stationID,
		MoteID:      r.ID,
		Variant:     v.String(),
		Version:     r.Version,
		Interval:    r.Interval,
		Threshold:   r.Threshold,
		Clock:       r.Clock,
		Count:       r.Count,
		FirstSample: first,
		Readings:    append([]uint16(nil), r.Readings...),
		Timestamp:   ts.UTC(),
	}
	if r.FTSP != nil {
		f := *r.FTSP
		row.FTSP = &f
	}
	return row
}

// Report rebuilds the variant-neutral report carried by the row.
func (r ReportRow) Report() contour.Report {
	rep := contour.Report{
		Header: contour.Header{
			Version:   r.Version,
			Interval:  r.Interval,
			Threshold: r.Threshold,
			ID:        r.MoteID,
			Clock:     r.Clock,
			Count:     r.Count,
		},
		Readings: append([]uint16(nil), r.Readings...),
	}
	if r.FTSP != nil {
		f := *r.FTSP
		rep.FTSP = &f
	}
	return rep
}

// SampleRow is a single reading with its position in the mote's history.
type SampleRow struct {
	StationID string    `json:"station_id"` // TAG
	MoteID    uint16    `json:"mote_id"`    // TAG
	Index     uint32    `json:"index"`      // FIELD
	Value     uint16    `json:"value"`      // FIELD
	Threshold uint16    `json:"threshold"`  // FIELD
	Above     bool      `json:"above"`      // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// SampleRows expands a report into one row per reading. The mote clock
// stamps the last reading; earlier readings are spaced by the interval.
// Reports without a clock fall back to the receive time.
func SampleRows(r ReportRow) []SampleRow {
	n := len(r.Readings)
	last := r.Timestamp
	if r.Clock > 0 {
		last = time.UnixMilli(r.Clock).UTC()
	}
	step := time.Duration(r.Interval) * time.Millisecond
	rows := make([]SampleRow, n)
	for i, v := range r.Readings {
		rows[i] = SampleRow{
			StationID: r.StationID,
			MoteID:    r.MoteID,
			Index:     r.FirstSample + uint32(i),
			Value:     v,
			Threshold: r.Threshold,
			Above:     v >= r.Threshold,
			Timestamp: last.Add(-time.Duration(n-1-i) * step),
		}
	}
	return rows
}

// SampleTableName holds the table name used when writing samples to
// GreptimeDB. It defaults to "contour_samples" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var SampleTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "contour_samples"
}()

func (SampleRow) TableName() string {
	return SampleTableName
}
