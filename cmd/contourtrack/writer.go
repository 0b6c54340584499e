package main

import (
	"os"
	"time"

	"contourtrack/internal/config"
	"contourtrack/internal/recorder"
	"contourtrack/internal/sink"
)

// writerOptions picks the front-end writer; sinks come from the config.
type writerOptions struct {
	printOnly bool
	tui       bool
	record    bool
}

// newWriters builds the writer chain for a station: the front-end picked by
// baseWriter (or the TUI) plus the file, SQLite, InfluxDB and recording
// sinks the config enables. printOnly keeps reports off the databases. The returned TUIWriter is nil unless opts.tui is set.
func newWriters(cfg *config.StationConfig, opts writerOptions) (*sink.MultiWriter, *sink.TUIWriter, error) {
	var (
		ws    []sink.Writer
		snaps []sink.SnapshotWriter
		tui   *sink.TUIWriter
	)
	fail := func(err error) (*sink.MultiWriter, *sink.TUIWriter, error) {
		_ = sink.NewMultiWriter(ws, snaps).Close()
		return nil, nil, err
	}

	front, err := baseWriter(cfg, opts.printOnly)
	if err != nil {
		return nil, nil, err
	}
	if opts.tui {
		// The TUI owns the terminal; a GreptimeDB front-end stays alongside it.
		if _, toDB := front.(*sink.GreptimeDBWriter); toDB {
			ws = append(ws, front)
		}
		tui = sink.NewTUIWriter(cfg)
		front = tui
	}
	ws = append(ws, front)

	if path := cfg.Sinks.LogFile; path != "" {
		fw, err := sink.NewFileWriter(path, path+".events", path+".state")
		if err != nil {
			return fail(err)
		}
		ws = append(ws, fw)
	}
	if path := cfg.Sinks.SQLitePath; path != "" {
		sw, err := sink.NewSQLiteWriter(path)
		if err != nil {
			return fail(err)
		}
		ws = append(ws, sw)
	}
	if sc := cfg.Sinks; sc.InfluxURL != "" && !opts.printOnly {
		iw, err := sink.NewInfluxDBWriter(sc.InfluxURL, sc.InfluxToken, sc.InfluxOrg, sc.InfluxBucket)
		if err != nil {
			return fail(err)
		}
		ws = append(ws, iw)
	}
	if path := cfg.Sinks.RecordPath; path != "" && opts.record {
		v, err := cfg.ParsedVariant()
		if err != nil {
			return fail(err)
		}
		rec, err := recorder.Create(path, cfg.StationID, v, time.Now())
		if err != nil {
			return fail(err)
		}
		snaps = append(snaps, rec)
	}
	return sink.NewMultiWriter(ws, snaps), tui, nil
}

// baseWriter writes to GreptimeDB when an endpoint is configured and to
// STDOUT otherwise.
func baseWriter(cfg *config.StationConfig, printOnly bool) (sink.Writer, error) {
	if printOnly || cfg.Sinks.GreptimeEndpoint == "" {
		return sink.NewStdoutWriter(cfg), nil
	}
	return sink.NewGreptimeDBWriter(
		cfg.Sinks.GreptimeEndpoint,
		cfg.Sinks.GreptimeDatabase,
		os.Getenv("GREPTIMEDB_TABLE"),
		os.Getenv("CONTOUR_EVENT_TABLE"),
	)
}
