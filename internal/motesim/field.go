// Package motesim simulates a field of ContourTracking motes sampling a
// scalar field shaped by moving stimulus sources.
package motesim

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"contourtrack/internal/contour"
	"contourtrack/internal/grid"
)

// Options configures a simulated field.
type Options struct {
	Rows, Cols int
	Variant    contour.Variant
	// Sources is the number of moving stimuli.
	Sources int
	// Base is the background level every mote reads.
	Base float64
	// Peak is the value a source adds at its centre; Radius (in grid cells)
	// is where its contribution falls to zero.
	Peak   float64
	Radius float64
	// Noise is the standard deviation of the per-sample Gaussian noise.
	Noise float64
	// Step bounds how far a source moves per sample tick, in grid cells.
	Step      float64
	Seed      int64
	Interval  uint16
	Threshold uint16
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Rows <= 0 {
		o.Rows = 3
	}
	if o.Cols <= 0 {
		o.Cols = 3
	}
	for o.Rows*o.Cols > grid.MaxMotes {
		o.Rows--
	}
	if !o.Variant.Valid() {
		o.Variant = contour.VariantPlain
	}
	if o.Radius <= 0 {
		o.Radius = 1.5
	}
	if o.Interval == 0 {
		o.Interval = contour.DefaultInterval
	}
	if o.Threshold == 0 {
		o.Threshold = contour.DefaultThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Source is a stimulus moving across the field.
type Source struct {
	X, Y float64
}

// Mote is one simulated sensor node. Row 0 is the bottom of the field.
type Mote struct {
	ID       uint16
	Row, Col int

	version   uint16
	interval  uint16
	threshold uint16
	count     uint16
	buf       []uint16
	seq       uint8
	skew      float32
}

// Field holds the simulated motes and sources.
type Field struct {
	opts    Options
	rng     *rand.Rand
	start   time.Time
	mu      sync.Mutex
	sources []Source
	motes   []*Mote
}

// New lays out Rows×Cols motes with ids 1..n in grid order and places the
// sources at random.
func New(opts Options) *Field {
	opts = opts.withDefaults()
	seed := uint64(opts.Seed)
	if opts.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	f := &Field{
		opts:  opts,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		start: opts.Now(),
	}
	for i := 0; i < opts.Sources; i++ {
		f.sources = append(f.sources, Source{
			X: f.rng.Float64() * float64(opts.Cols-1),
			Y: f.rng.Float64() * float64(opts.Rows-1),
		})
	}
	for r := 0; r < opts.Rows; r++ {
		for c := 0; c < opts.Cols; c++ {
			id := uint16(r*opts.Cols + c + 1)
			f.motes = append(f.motes, &Mote{
				ID:        id,
				Row:       r,
				Col:       c,
				interval:  opts.Interval,
				threshold: opts.Threshold,
				skew:      float32(id) * 1e-6,
			})
		}
	}
	return f
}

// IDs returns the mote ids in grid order, matching the station layout when
// the field is square.
func (f *Field) IDs() []uint16 {
	ids := make([]uint16, len(f.motes))
	for i, m := range f.motes {
		ids[i] = m.ID
	}
	return ids
}

// Sources returns the current source positions.
func (f *Field) Sources() []Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Source(nil), f.sources...)
}

// SetSources replaces the stimuli.
func (f *Field) SetSources(src []Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append([]Source(nil), src...)
}

// Interval is the sampling period the motes currently use.
func (f *Field) Interval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.motes) == 0 {
		return time.Duration(f.opts.Interval) * time.Millisecond
	}
	return time.Duration(f.motes[0].interval) * time.Millisecond
}

// Value is the noiseless field value at (x, y).
func (f *Field) Value(x, y float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valueLocked(x, y)
}

func (f *Field) valueLocked(x, y float64) float64 {
	v := f.opts.Base
	for _, s := range f.sources {
		d := math.Hypot(x-s.X, y-s.Y)
		if d < f.opts.Radius {
			v += f.opts.Peak * (1 - d/f.opts.Radius)
		}
	}
	return v
}

func (f *Field) sampleLocked(m *Mote) uint16 {
	v := f.valueLocked(float64(m.Col), float64(m.Row))
	if f.opts.Noise > 0 {
		v += f.rng.NormFloat64() * f.opts.Noise
	}
	return uint16(math.Round(min(max(v, 0), math.MaxUint16)))
}

// stepLocked moves every source by a bounded random walk, reflecting at the edges.
func (f *Field) stepLocked() {
	if f.opts.Step <= 0 {
		return
	}
	maxX, maxY := float64(f.opts.Cols-1), float64(f.opts.Rows-1)
	for i := range f.sources {
		s := &f.sources[i]
		s.X = reflect(s.X+(f.rng.Float64()*2-1)*f.opts.Step, maxX)
		s.Y = reflect(s.Y+(f.rng.Float64()*2-1)*f.opts.Step, maxY)
	}
}

func reflect(v, hi float64) float64 {
	if v < 0 {
		v = -v
	}
	if v > hi {
		v = 2*hi - v
	}
	return min(max(v, 0), hi)
}

// Tick moves the sources, lets every mote take one sample and returns the
// reports of motes whose buffer filled up.
func (f *Field) Tick() []contour.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stepLocked()
	now := f.opts.Now()
	n := f.opts.Variant.NReadings()
	var out []contour.Report
	for _, m := range f.motes {
		m.buf = append(m.buf, f.sampleLocked(m))
		if len(m.buf) < n {
			continue
		}
		out = append(out, f.reportLocked(m, now))
		m.buf = m.buf[:0]
		m.count++
	}
	return out
}

func (f *Field) reportLocked(m *Mote, now time.Time) contour.Report {
	r := contour.Report{
		Header: contour.Header{
			Version:   m.version,
			Interval:  m.interval,
			Threshold: m.threshold,
			ID:        m.ID,
			Clock:     now.UnixMilli(),
			Count:     m.count,
		},
		Readings: append([]uint16(nil), m.buf...),
	}
	if f.opts.Variant == contour.VariantFTSP {
		local := uint32(now.Sub(f.start).Milliseconds())
		m.seq++
		r.FTSP = &contour.FTSP{
			LocalTime:    local,
			GlobalTime:   local + uint32(float32(local)*m.skew),
			RootID:       1,
			Synced:       true,
			Seq:          m.seq,
			TableEntries: min(m.seq, 8),
			Skew:         m.skew,
		}
	}
	return r
}

// HandleBeacon applies station settings to every mote that is behind the
// beacon's version. It reports whether any mote changed.
func (f *Field) HandleBeacon(b contour.Report) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := false
	for _, m := range f.motes {
		if !contour.Newer(b.Version, m.version) {
			continue
		}
		m.version = b.Version
		if b.Interval > 0 {
			m.interval = b.Interval
		}
		if b.Threshold > 0 {
			m.threshold = b.Threshold
		}
		changed = true
	}
	return changed
}

// Settings returns the version, interval and threshold of mote id.
func (f *Field) Settings(id uint16) (version, interval, threshold uint16, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.motes {
		if m.ID == id {
			return m.version, m.interval, m.threshold, true
		}
	}
	return 0, 0, 0, false
}
