package sink

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"contourtrack/internal/telemetry"
)

// FileWriter writes reports, contour events and beacon state to JSONL files.
type FileWriter struct {
	mu        sync.Mutex
	files     []*os.File
	reportEnc *json.Encoder
	eventEnc  *json.Encoder
	stateEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. eventPath or statePath may be empty to
// skip those logs.
func NewFileWriter(reportPath, eventPath, statePath string) (*FileWriter, error) {
	fw := &FileWriter{}
	open := func(path string) (*json.Encoder, error) {
		if path == "" {
			return nil, nil
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		fw.files = append(fw.files, f)
		return json.NewEncoder(f), nil
	}
	var err error
	if fw.reportEnc, err = open(reportPath); err != nil {
		return nil, err
	}
	if fw.eventEnc, err = open(eventPath); err != nil {
		fw.Close()
		return nil, err
	}
	if fw.stateEnc, err = open(statePath); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

// Write logs a single report row.
func (f *FileWriter) Write(row telemetry.ReportRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reportEnc == nil {
		return nil
	}
	return f.reportEnc.Encode(row)
}

// WriteBatch logs multiple report rows.
func (f *FileWriter) WriteBatch(rows []telemetry.ReportRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvent logs a contour event, if enabled.
func (f *FileWriter) WriteEvent(e telemetry.ContourEventRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventEnc == nil {
		return nil
	}
	return f.eventEnc.Encode(e)
}

// WriteState logs a station state row, if enabled.
func (f *FileWriter) WriteState(s telemetry.StationStateRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateEnc == nil {
		return nil
	}
	return f.stateEnc.Encode(s)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, file := range f.files {
		if err := file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.files = nil
	return errors.Join(errs...)
}
