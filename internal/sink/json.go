package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"contourtrack/internal/telemetry"
)

// JSONStdoutWriter prints reports, contour events and beacon state as JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) print(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// Write outputs a report row.
func (w *JSONStdoutWriter) Write(row telemetry.ReportRow) error {
	return w.print(row)
}

// WriteBatch outputs multiple report rows.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.ReportRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEvent outputs a contour event.
func (w *JSONStdoutWriter) WriteEvent(e telemetry.ContourEventRow) error {
	return w.print(e)
}

// WriteState outputs the station state sent with a beacon.
func (w *JSONStdoutWriter) WriteState(s telemetry.StationStateRow) error {
	return w.print(s)
}
