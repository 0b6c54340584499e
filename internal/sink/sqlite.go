package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"contourtrack/internal/telemetry"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS reports (
		station_id TEXT,
		mote_id INTEGER,
		variant TEXT,
		version INTEGER,
		interval_ms INTEGER,
		threshold INTEGER,
		clock BIGINT,
		count INTEGER,
		first_sample INTEGER,
		readings TEXT,
		ftsp TEXT,
		ts TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS samples (
		station_id TEXT,
		mote_id INTEGER,
		sample_index INTEGER,
		value INTEGER,
		threshold INTEGER,
		above BOOLEAN,
		ts TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS samples_mote_ts ON samples (mote_id, ts);
	CREATE TABLE IF NOT EXISTS contour_events (
		station_id TEXT,
		kind TEXT,
		prev_blobs INTEGER,
		blobs INTEGER,
		mote_ids TEXT,
		threshold INTEGER,
		clock BIGINT,
		ts TIMESTAMP
	);
`

// SQLiteWriter stores reports, their expanded samples and contour events in
// a local SQLite database.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens (or creates) the database at path.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// DB exposes the underlying handle for queries.
func (w *SQLiteWriter) DB() *sql.DB { return w.db }

// Write stores one report.
func (w *SQLiteWriter) Write(row telemetry.ReportRow) error {
	return w.WriteBatch([]telemetry.ReportRow{row})
}

// WriteBatch stores several reports in one transaction.
func (w *SQLiteWriter) WriteBatch(rows []telemetry.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		readings, err := json.Marshal(r.Readings)
		if err != nil {
			return err
		}
		var ftsp any
		if r.FTSP != nil {
			b, err := json.Marshal(r.FTSP)
			if err != nil {
				return err
			}
			ftsp = string(b)
		}
		if _, err := tx.Exec(`INSERT INTO reports
			(station_id, mote_id, variant, version, interval_ms, threshold, clock, count, first_sample, readings, ftsp, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.StationID, r.MoteID, r.Variant, r.Version, r.Interval, r.Threshold,
			r.Clock, r.Count, r.FirstSample, string(readings), ftsp, r.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		for _, s := range telemetry.SampleRows(r) {
			if _, err := tx.Exec(`INSERT INTO samples
				(station_id, mote_id, sample_index, value, threshold, above, ts)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				s.StationID, s.MoteID, s.Index, s.Value, s.Threshold, s.Above, s.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
				return fmt.Errorf("insert sample: %w", err)
			}
		}
	}
	return tx.Commit()
}

// WriteEvent stores a contour event.
func (w *SQLiteWriter) WriteEvent(e telemetry.ContourEventRow) error {
	ids, err := json.Marshal(e.MoteIDs)
	if err != nil {
		return err
	}
	_, err = w.db.Exec(`INSERT INTO contour_events
		(station_id, kind, prev_blobs, blobs, mote_ids, threshold, clock, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.StationID, e.Kind, e.PrevBlobs, e.Blobs, string(ids), e.Threshold, e.Clock, e.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert contour event: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
