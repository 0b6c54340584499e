// Package sink holds the output writers the station fans reports out to.
package sink

import (
	"fmt"
	"strings"

	"contourtrack/internal/grid"
	"contourtrack/internal/telemetry"
)

// Writer receives decoded reports.
type Writer interface {
	Write(telemetry.ReportRow) error
}

type batchWriter interface {
	WriteBatch([]telemetry.ReportRow) error
}

type eventWriter interface {
	WriteEvent(telemetry.ContourEventRow) error
}

type stateWriter interface {
	WriteState(telemetry.StationStateRow) error
}

// SnapshotWriter receives every classified grid.
type SnapshotWriter interface {
	WriteSnapshot(grid.Snapshot) error
}

// gridRows lays the snapshot out top row first. Row 0 of the field is the
// bottom line of the picture. Empty slots render as dots.
func gridRows(s grid.Snapshot, paint func(grid.Cell, string) string) []string {
	if s.Dim == 0 {
		return nil
	}
	rows := make([]string, 0, s.Dim)
	for r := s.Dim - 1; r >= 0; r-- {
		var b strings.Builder
		for c := 0; c < s.Dim; c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			i := r*s.Dim + c
			if i >= len(s.Cells) {
				b.WriteString("   .   ")
				continue
			}
			cell := s.Cells[i]
			b.WriteString(paint(cell, cellLabel(cell)))
		}
		rows = append(rows, b.String())
	}
	return rows
}

func cellLabel(c grid.Cell) string {
	if c.Sample < 0 {
		return fmt.Sprintf("%2d:  ? ", c.ID)
	}
	return fmt.Sprintf("%2d:%4d", c.ID, c.Sample)
}
