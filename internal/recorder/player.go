package recorder

import (
	"context"
	"time"

	"contourtrack/internal/grid"
)

// Player steps through a recording.
type Player struct {
	rec  Recording
	next int
}

func NewPlayer(rec Recording) *Player {
	return &Player{rec: rec}
}

// Seek positions the player on the last snapshot taken at or before
// offset from the start of the recording; the next call to Next returns
// it. Negative offsets seek to the start.
func (p *Player) Seek(offset time.Duration) (grid.Snapshot, bool) {
	if len(p.rec.Snapshots) == 0 {
		return grid.Snapshot{}, false
	}
	if offset < 0 {
		offset = 0
	}
	pos := Stamp(p.rec.Snapshots[0]) + offset.Milliseconds()
	idx := 0
	for i, s := range p.rec.Snapshots {
		if Stamp(s) > pos {
			break
		}
		idx = i
	}
	p.next = idx
	return p.rec.Snapshots[idx], true
}

// Next returns the next snapshot, or false at the end.
func (p *Player) Next() (grid.Snapshot, bool) {
	if p.next >= len(p.rec.Snapshots) {
		return grid.Snapshot{}, false
	}
	s := p.rec.Snapshots[p.next]
	p.next++
	return s, true
}

// Offset is the position of the next snapshot relative to the start.
func (p *Player) Offset() time.Duration {
	if len(p.rec.Snapshots) == 0 {
		return 0
	}
	i := min(p.next, len(p.rec.Snapshots)-1)
	return time.Duration(Stamp(p.rec.Snapshots[i])-Stamp(p.rec.Snapshots[0])) * time.Millisecond
}

// Play hands the remaining snapshots to fn, waiting the recorded gap
// between them divided by speed. A speed <= 0 plays without delay.
func (p *Player) Play(ctx context.Context, speed float64, fn func(grid.Snapshot) error) error {
	var prev int64
	first := true
	for {
		s, ok := p.Next()
		if !ok {
			return nil
		}
		if !first && speed > 0 {
			diff := time.Duration(Stamp(s)-prev) * time.Millisecond
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				t := time.NewTimer(diff)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		prev, first = Stamp(s), false
	}
}
