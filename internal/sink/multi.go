package sink

import (
	"errors"
	"io"

	"contourtrack/internal/grid"
	"contourtrack/internal/telemetry"
)

// MultiWriter fans reports out to several writers. Events, state and
// snapshots go to the writers that accept them. Every writer sees every
// row even when an earlier one fails; the errors are joined.
type MultiWriter struct {
	writers []Writer
	snaps   []SnapshotWriter
}

// NewMultiWriter creates a new MultiWriter. snaps lists snapshot-only
// consumers such as a recorder; writers that also take snapshots need not
// be repeated there.
func NewMultiWriter(ws []Writer, snaps []SnapshotWriter) *MultiWriter {
	return &MultiWriter{writers: ws, snaps: snaps}
}

// Write sends a report row to all writers.
func (mw *MultiWriter) Write(row telemetry.ReportRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple report rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.ReportRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// WriteEvent sends a contour event to all writers that accept events.
func (mw *MultiWriter) WriteEvent(e telemetry.ContourEventRow) error {
	var errs []error
	for _, w := range mw.writers {
		if ew, ok := w.(eventWriter); ok {
			if err := ew.WriteEvent(e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteState sends a station state row to all writers that accept state.
func (mw *MultiWriter) WriteState(s telemetry.StationStateRow) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(stateWriter); ok {
			if err := sw.WriteState(s); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteSnapshot sends a grid snapshot to snapshot-capable writers and to
// the snapshot-only consumers.
func (mw *MultiWriter) WriteSnapshot(s grid.Snapshot) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(SnapshotWriter); ok {
			if err := sw.WriteSnapshot(s); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, sw := range mw.snaps {
		if err := sw.WriteSnapshot(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, sw := range mw.snaps {
		if c, ok := sw.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
