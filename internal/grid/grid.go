// Package grid classifies the mote field into a contour map.
package grid

import (
	"fmt"
	"slices"
	"time"
)

// MaxMotes is the largest field the grid lays out.
const MaxMotes = 16

// Level is the contour classification of one cell.
type Level int

const (
	Below    Level = iota // black
	Above                 // white
	Boundary              // grey
)

func (l Level) String() string {
	switch l {
	case Below:
		return "below"
	case Above:
		return "above"
	case Boundary:
		return "boundary"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "below":
		*l = Below
	case "above":
		*l = Above
	case "boundary":
		*l = Boundary
	default:
		return fmt.Errorf("unknown level %q", b)
	}
	return nil
}

// Position names a neighbouring slot. Row 0 is the bottom of the field.
type Position int

const (
	Left Position = iota
	Right
	Up
	Down
	UpLeft
	UpRight
	DownLeft
	DownRight
)

var offsets = map[Position][2]int{
	Left:      {0, -1},
	Right:     {0, 1},
	Up:        {1, 0},
	Down:      {-1, 0},
	UpLeft:    {1, -1},
	UpRight:   {1, 1},
	DownLeft:  {-1, -1},
	DownRight: {-1, 1},
}

var sides = []Position{Left, Right, Down, Up}

// Cell is one mote on the grid.
type Cell struct {
	ID     uint16 `json:"id" cbor:"1,keyasint"`
	Sample int    `json:"sample" cbor:"2,keyasint"`
	Above  bool   `json:"above" cbor:"3,keyasint"`
	Level  Level  `json:"level" cbor:"4,keyasint"`
}

// Snapshot is the classified field at one instant.
type Snapshot struct {
	Dim         int       `json:"dim" cbor:"1,keyasint"`
	Threshold   int       `json:"threshold" cbor:"2,keyasint"`
	Cells       []Cell    `json:"cells" cbor:"3,keyasint"`
	LatestClock int64     `json:"latest_clock" cbor:"4,keyasint"`
	Taken       time.Time `json:"taken" cbor:"5,keyasint"`
	Event       *Event    `json:"event,omitempty" cbor:"6,keyasint,omitempty"`
}

// Dim returns the grid width used for n motes.
func Dim(n int) int {
	if n <= 9 {
		return 3
	}
	return 4
}

// Classify lays out up to MaxMotes motes in list order and classifies each
// against threshold. sample returns the latest value of a mote.
func Classify(ids []uint16, sample func(uint16) int, threshold int) Snapshot {
	n := min(len(ids), MaxMotes)
	s := Snapshot{Dim: Dim(len(ids)), Threshold: threshold, Cells: make([]Cell, n)}
	for i, id := range ids[:n] {
		v := sample(id)
		s.Cells[i] = Cell{ID: id, Sample: v, Above: v >= threshold}
	}
	for i := range s.Cells {
		c := &s.Cells[i]
		c.Level = Below
		if c.Above {
			c.Level = Above
		}
		for _, p := range sides {
			j, ok := s.neighborIndex(i, p)
			if ok && s.Cells[j].Above != c.Above {
				c.Level = Boundary
				break
			}
		}
	}
	return s
}

func (s Snapshot) neighborIndex(i int, p Position) (int, bool) {
	if s.Dim <= 0 || i < 0 || i >= len(s.Cells) {
		return 0, false
	}
	d, ok := offsets[p]
	if !ok {
		return 0, false
	}
	row, col := i/s.Dim+d[0], i%s.Dim+d[1]
	if row < 0 || col < 0 || col >= s.Dim {
		return 0, false
	}
	j := row*s.Dim + col
	if j >= len(s.Cells) {
		return 0, false
	}
	return j, true
}

// Index returns the grid position of mote id.
func (s Snapshot) Index(id uint16) (int, bool) {
	for i, c := range s.Cells {
		if c.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Cell returns the cell of mote id.
func (s Snapshot) Cell(id uint16) (Cell, bool) {
	i, ok := s.Index(id)
	if !ok {
		return Cell{}, false
	}
	return s.Cells[i], true
}

// Neighbor returns the mote next to id in direction p.
func (s Snapshot) Neighbor(id uint16, p Position) (uint16, bool) {
	i, ok := s.Index(id)
	if !ok {
		return 0, false
	}
	j, ok := s.neighborIndex(i, p)
	if !ok {
		return 0, false
	}
	return s.Cells[j].ID, true
}

// Blobs returns the 4-connected groups of above-threshold motes, each
// sorted by id and ordered by their smallest id.
func (s Snapshot) Blobs() [][]uint16 {
	seen := make([]bool, len(s.Cells))
	var blobs [][]uint16
	for i, c := range s.Cells {
		if !c.Above || seen[i] {
			continue
		}
		var blob []uint16
		queue := []int{i}
		seen[i] = true
		for len(queue) > 0 {
			k := queue[0]
			queue = queue[1:]
			blob = append(blob, s.Cells[k].ID)
			for _, p := range sides {
				j, ok := s.neighborIndex(k, p)
				if ok && !seen[j] && s.Cells[j].Above {
					seen[j] = true
					queue = append(queue, j)
				}
			}
		}
		slices.Sort(blob)
		blobs = append(blobs, blob)
	}
	slices.SortFunc(blobs, func(a, b []uint16) int { return int(a[0]) - int(b[0]) })
	return blobs
}

// Levels counts cells per level.
func (s Snapshot) Levels() map[Level]int {
	m := make(map[Level]int, 3)
	for _, c := range s.Cells {
		m[c.Level]++
	}
	return m
}
