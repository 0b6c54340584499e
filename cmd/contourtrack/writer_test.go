package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"contourtrack/internal/config"
	"contourtrack/internal/grid"
	"contourtrack/internal/recorder"
	"contourtrack/internal/telemetry"
)

func testRow() telemetry.ReportRow {
	return telemetry.ReportRow{
		StationID: "s1",
		MoteID:    3,
		Variant:   "plain",
		Version:   1,
		Interval:  50,
		Threshold: 500,
		Readings:  []uint16{100, 900},
		Timestamp: time.Now(),
	}
}

func TestNewWritersPrintOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sinks.GreptimeEndpoint = "127.0.0.1:4001"
	w, tui, err := newWriters(cfg, writerOptions{printOnly: true})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer w.Close()
	if tui != nil {
		t.Fatalf("expected no TUI writer")
	}
	if err := w.Write(testRow()); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestNewWritersSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Sinks.LogFile = filepath.Join(dir, "reports.log")
	cfg.Sinks.SQLitePath = filepath.Join(dir, "station.db")
	cfg.Sinks.RecordPath = filepath.Join(dir, "field.ect")

	w, _, err := newWriters(cfg, writerOptions{printOnly: true, record: true})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if err := w.Write(testRow()); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	s := grid.Classify([]uint16{1, 2, 3}, func(id uint16) int { return int(id) * 300 }, 500)
	if err := w.WriteSnapshot(s); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	info, err := os.Stat(cfg.Sinks.LogFile)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected log file to be non-empty")
	}

	db, err := sql.Open("sqlite", cfg.Sinks.SQLitePath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 1 {
		t.Fatalf("reports = %d, want 1", n)
	}

	rec, err := recorder.Load(cfg.Sinks.RecordPath)
	if err != nil {
		t.Fatalf("load recording: %v", err)
	}
	if rec.Header.StationID != cfg.StationID || len(rec.Snapshots) != 1 {
		t.Fatalf("recording header = %+v snapshots = %d", rec.Header, len(rec.Snapshots))
	}
}

func TestNewWritersSkipsRecordingWhenDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sinks.RecordPath = filepath.Join(t.TempDir(), "field.ect")
	w, _, err := newWriters(cfg, writerOptions{printOnly: true})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	w.Close()
	if _, err := os.Stat(cfg.Sinks.RecordPath); !os.IsNotExist(err) {
		t.Fatalf("expected no recording, stat err = %v", err)
	}
}

func TestNewWritersBadLogDir(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sinks.LogFile = filepath.Join(t.TempDir(), "missing", "reports.log")
	if _, _, err := newWriters(cfg, writerOptions{printOnly: true}); err == nil {
		t.Fatal("expected error for unwritable log file")
	}
}
