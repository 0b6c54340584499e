// ColorStdoutWriter prints human-friendly, colorized reports to STDOUT.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"contourtrack/internal/config"
	"contourtrack/internal/grid"
	"contourtrack/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"

	cellBelow    = "\x1b[97;40m"
	cellAbove    = "\x1b[30;107m"
	cellBoundary = "\x1b[30;47m"
)

// ColorStdoutWriter prints report rows using ANSI colors and draws the
// contour grid whenever the regions change.
type ColorStdoutWriter struct {
	cfg       *config.StationConfig
	out       io.Writer
	once      sync.Once
	mu        sync.Mutex
	drawnGrid bool
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.StationConfig) *ColorStdoutWriter {
	return &ColorStdoutWriter{cfg: cfg, out: os.Stdout}
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}
	fmt.Fprintln(w.out, "Station Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Station:\t%s\n", w.cfg.StationID)
	fmt.Fprintf(tw, "Variant:\t%s\n", w.cfg.Variant)
	fmt.Fprintf(tw, "Link:\t%s\n", w.cfg.Link.Kind)
	fmt.Fprintf(tw, "Interval (ms):\t%d\n", w.cfg.Sampling.Interval)
	fmt.Fprintf(tw, "Threshold:\t%d\n", w.cfg.Sampling.Threshold)
	fmt.Fprintf(tw, "Beacon Period:\t%s\n", w.cfg.BeaconPeriod)
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single report row in colorized format.
func (w *ColorStdoutWriter) Write(row telemetry.ReportRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()

	above := 0
	for _, v := range row.Readings {
		if v >= row.Threshold {
			above++
		}
	}
	countColor := colorGreen
	if above > 0 {
		countColor = colorYellow
	}

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, row.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(w.out, "%smote=%d%s ", colorBlue, row.MoteID, colorReset)
	fmt.Fprintf(w.out, "%sv=%d%s ", colorMagenta, row.Version, colorReset)
	fmt.Fprintf(w.out, "%sint=%d thr=%d%s ", colorCyan, row.Interval, row.Threshold, colorReset)
	fmt.Fprintf(w.out, "%scount=%d%s ", colorGray, row.Count, colorReset)
	fmt.Fprintf(w.out, "%sreadings=%v%s", countColor, row.Readings, colorReset)
	if row.FTSP != nil {
		syncColor := colorRed
		if row.FTSP.Synced {
			syncColor = colorGreen
		}
		fmt.Fprintf(w.out, " %sftsp root=%d seq=%d%s", syncColor, row.FTSP.RootID, row.FTSP.Seq, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple report rows.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.ReportRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteEvent prints a contour event.
func (w *ColorStdoutWriter) WriteEvent(e telemetry.ContourEventRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	col := colorYellow
	switch e.Kind {
	case string(grid.Appeared), string(grid.Merged):
		col = colorRed
	case string(grid.Vanished):
		col = colorGreen
	}
	fmt.Fprintf(w.out, "%s[%s]%s %sCONTOUR%s %s regions=%d->%d motes=%v\n",
		colorGray, e.Timestamp.Format(time.RFC3339), colorReset,
		col, colorReset, e.Kind, e.PrevBlobs, e.Blobs, e.MoteIDs)
	return nil
}

// WriteState prints the settings broadcast with a beacon.
func (w *ColorStdoutWriter) WriteState(s telemetry.StationStateRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "%s[%s]%s %sBEACON%s version=%d interval=%d threshold=%d motes=%d rx=%d rejected=%d\n",
		colorGray, s.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, colorReset, s.Version, s.Interval, s.Threshold, s.Motes, s.Received, s.Rejected)
	return nil
}

// WriteSnapshot draws the grid for the first snapshot and for every one
// that changes the regions.
func (w *ColorStdoutWriter) WriteSnapshot(s grid.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.drawnGrid && s.Event == nil {
		return nil
	}
	w.drawnGrid = true
	rows := gridRows(s, func(c grid.Cell, label string) string {
		col := cellBelow
		switch c.Level {
		case grid.Above:
			col = cellAbove
		case grid.Boundary:
			col = cellBoundary
		}
		return col + label + colorReset
	})
	for _, r := range rows {
		fmt.Fprintln(w.out, "  "+r)
	}
	return nil
}
