// Base station coordinating the mote field
package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"contourtrack/internal/contour"
	"contourtrack/internal/grid"
	"contourtrack/internal/logging"
	"contourtrack/internal/store"
	"contourtrack/internal/telemetry"
	"contourtrack/internal/tos"
	"contourtrack/internal/transport"
)

const (
	DefaultBeaconPeriod = time.Second
	DefaultStatsWindow  = 100
	MaxThreshold        = 1000
)

var (
	ErrInvalidInterval  = errors.New("interval must be between 1 and 65535")
	ErrInvalidThreshold = errors.New("threshold must be between 1 and 1000")
)

// ReportWriter receives every decoded report.
type ReportWriter interface {
	Write(telemetry.ReportRow) error
}

// Optional: writers may also take contour events, beacon state and snapshots.
type EventWriter interface {
	WriteEvent(telemetry.ContourEventRow) error
}

type StateWriter interface {
	WriteState(telemetry.StationStateRow) error
}

type SnapshotWriter interface {
	WriteSnapshot(grid.Snapshot) error
}

// Options configures a Station.
type Options struct {
	StationID    string
	Variant      contour.Variant
	Addr         uint16
	Group        uint8
	Interval     uint16
	Threshold    uint16
	BeaconPeriod time.Duration
	// Order fixes the grid layout; when empty motes are laid out in the
	// order they were first heard.
	Order       []uint16
	StatsWindow int
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if !o.Variant.Valid() {
		o.Variant = contour.VariantPlain
	}
	if o.Group == 0 {
		o.Group = tos.DefaultGroup
	}
	if o.Interval == 0 {
		o.Interval = contour.DefaultInterval
	}
	if o.Threshold == 0 {
		o.Threshold = contour.DefaultThreshold
	}
	if o.BeaconPeriod <= 0 {
		o.BeaconPeriod = DefaultBeaconPeriod
	}
	if o.StatsWindow <= 0 {
		o.StatsWindow = DefaultStatsWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Settings is the sampling configuration the station negotiates.
type Settings struct {
	Version   int    `json:"version"`
	Interval  uint16 `json:"interval"`
	Threshold uint16 `json:"threshold"`
	Variant   string `json:"variant"`
}

// Counters tallies link traffic.
type Counters struct {
	Received uint64 `json:"received"`
	Rejected uint64 `json:"rejected"`
	Ignored  uint64 `json:"ignored"`
	Beacons  uint64 `json:"beacons"`
}

// MoteStatus summarises one mote.
type MoteStatus struct {
	ID       uint16        `json:"id"`
	Latest   int           `json:"latest"`
	MaxX     int           `json:"max_x"`
	Mean     float64       `json:"mean"`
	StdDev   float64       `json:"stddev"`
	Version  uint16        `json:"version"`
	Clock    int64         `json:"clock"`
	FTSP     *contour.FTSP `json:"ftsp,omitempty"`
	LastSeen time.Time     `json:"last_seen"`
}

type moteState struct {
	version  uint16
	clock    int64
	ftsp     *contour.FTSP
	lastSeen time.Time
}

// Station receives mote reports, keeps the field state and beacons the
// negotiated settings back to the motes.
type Station struct {
	opts   Options
	conn   transport.PacketConn
	writer ReportWriter

	mu        sync.Mutex
	store     *store.Store
	version   int
	interval  uint16
	threshold uint16
	motes     map[uint16]*moteState
	snapshot  grid.Snapshot
	hasSnap   bool
	counters  Counters
}

// New creates a station on conn. writer may be nil.
func New(conn transport.PacketConn, writer ReportWriter, opts Options) *Station {
	opts = opts.withDefaults()
	return &Station{
		opts:      opts,
		conn:      conn,
		writer:    writer,
		store:     store.New(),
		version:   -1,
		interval:  opts.Interval,
		threshold: opts.Threshold,
		motes:     make(map[uint16]*moteState),
	}
}

// Run reads packets from the link and beacons every BeaconPeriod until ctx
// ends or the link fails. The link is closed when Run returns.
func (s *Station) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("starting station", "station_id", s.opts.StationID, "variant", s.opts.Variant, "beacon_period", s.opts.BeaconPeriod)
	defer s.conn.Close()

	errc := make(chan error, 1)
	go func() { errc <- s.readLoop(ctx) }()

	if err := s.SendBeacon(ctx); err != nil {
		log.Warn("beacon failed", "err", err)
	}
	ticker := time.NewTicker(s.opts.BeaconPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.SendBeacon(ctx); err != nil {
				log.Warn("beacon failed", "err", err)
			}
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read link: %w", err)
			}
			log.Info("link closed")
			return nil
		case <-ctx.Done():
			log.Info("stopping station")
			s.conn.Close()
			<-errc
			return nil
		}
	}
}

func (s *Station) readLoop(ctx context.Context) error {
	log := logging.FromContext(ctx)
	for {
		b, err := s.conn.ReadPacket()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.HandlePacket(ctx, b); err != nil {
			log.Warn("dropping packet", "err", err)
		}
	}
}

// HandlePacket decodes a serial packet. Packets of other AM types are
// counted and ignored.
func (s *Station) HandlePacket(ctx context.Context, b []byte) error {
	var pkt tos.Packet
	if err := pkt.UnmarshalBinary(b); err != nil {
		s.count(func(c *Counters) { c.Rejected++ })
		return err
	}
	if pkt.Type != contour.AMContourTracking {
		s.count(func(c *Counters) { c.Ignored++ })
		logging.FromContext(ctx).Debug("ignoring packet", "am_type", pkt.Type, "src", pkt.Src)
		return nil
	}
	r, err := contour.Decode(s.opts.Variant, pkt.Payload)
	if err != nil {
		s.count(func(c *Counters) { c.Rejected++ })
		return fmt.Errorf("mote %d: %w", pkt.Src, err)
	}
	return s.HandleReport(ctx, r)
}

func (s *Station) count(fn func(*Counters)) {
	s.mu.Lock()
	fn(&s.counters)
	s.mu.Unlock()
}

// HandleReport folds one report into the station state. A report carrying
// a newer settings version is adopted; an older one triggers a beacon.
func (s *Station) HandleReport(ctx context.Context, r contour.Report) error {
	log := logging.FromContext(ctx)
	now := s.opts.Now()

	s.mu.Lock()
	s.counters.Received++
	adopted, stale := s.periodUpdateLocked(r)
	isNew := s.store.Update(r.ID, r.Count, r.Readings)
	m, ok := s.motes[r.ID]
	if !ok {
		m = &moteState{}
		s.motes[r.ID] = m
	}
	m.version, m.clock, m.lastSeen = r.Version, r.Clock, now
	if r.FTSP != nil {
		f := *r.FTSP
		m.ftsp = &f
	}
	snap, ev := s.reclassifyLocked(now)
	row := telemetry.NewReportRow(s.opts.StationID, s.opts.Variant, r, now)
	settings := s.settingsLocked()
	s.mu.Unlock()

	if isNew {
		log.Info("new mote", "mote_id", r.ID)
	}
	if adopted {
		log.Info("adopted mote settings", "mote_id", r.ID, "version", settings.Version, "interval", settings.Interval, "threshold", settings.Threshold)
	}
	if stale {
		if err := s.SendBeacon(ctx); err != nil {
			log.Warn("beacon failed", "mote_id", r.ID, "err", err)
		}
	}
	s.emit(ctx, row, snap, ev)
	return nil
}

func (s *Station) periodUpdateLocked(r contour.Report) (adopted, stale bool) {
	switch {
	case s.version < 0 || contour.Newer(r.Version, uint16(s.version)):
		s.version = int(r.Version)
		s.interval = r.Interval
		if r.Threshold > 0 {
			s.threshold = r.Threshold
		}
		return true, false
	case contour.Newer(uint16(s.version), r.Version):
		return false, true
	}
	return false, false
}

func (s *Station) gridIDsLocked() []uint16 {
	if len(s.opts.Order) > 0 {
		return s.opts.Order
	}
	return s.store.IDs()
}

func (s *Station) reclassifyLocked(now time.Time) (grid.Snapshot, *grid.Event) {
	snap := grid.Classify(s.gridIDsLocked(), s.store.Latest, int(s.threshold))
	snap.Taken = now
	for _, c := range snap.Cells {
		if m, ok := s.motes[c.ID]; ok && m.clock > snap.LatestClock {
			snap.LatestClock = m.clock
		}
	}
	var ev *grid.Event
	if s.hasSnap {
		ev = grid.DetectEvent(s.snapshot, snap)
	}
	snap.Event = ev
	s.snapshot, s.hasSnap = snap, true
	return snap, ev
}

func (s *Station) emit(ctx context.Context, row telemetry.ReportRow, snap grid.Snapshot, ev *grid.Event) {
	if s.writer == nil {
		return
	}
	if err := s.writer.Write(row); err != nil {
		logging.FromContext(ctx).Error("report write failed", "mote_id", row.MoteID, "err", err)
	}
	s.emitContour(ctx, snap, ev)
}

// emitContour hands a reclassified snapshot, and its event if any, to the
// writers that take them.
func (s *Station) emitContour(ctx context.Context, snap grid.Snapshot, ev *grid.Event) {
	if s.writer == nil {
		return
	}
	log := logging.FromContext(ctx)
	if sw, ok := s.writer.(SnapshotWriter); ok {
		if err := sw.WriteSnapshot(snap); err != nil {
			log.Error("snapshot write failed", "err", err)
		}
	}
	if ev == nil {
		return
	}
	log.Info("contour event", "kind", ev.Kind, "prev_blobs", ev.PrevBlobs, "blobs", ev.Blobs)
	if ew, ok := s.writer.(EventWriter); ok {
		erow := telemetry.ContourEventRow{
			StationID: s.opts.StationID,
			Kind:      string(ev.Kind),
			PrevBlobs: ev.PrevBlobs,
			Blobs:     ev.Blobs,
			MoteIDs:   ev.Motes,
			Threshold: snap.Threshold,
			Clock:     snap.LatestClock,
			Timestamp: snap.Taken.UTC(),
		}
		if err := ew.WriteEvent(erow); err != nil {
			log.Error("event write failed", "err", err)
		}
	}
}

// SetInterval changes the sampling period and broadcasts it.
func (s *Station) SetInterval(ctx context.Context, n int) error {
	if n < 1 || n > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, n)
	}
	s.mu.Lock()
	s.interval = uint16(n)
	s.bumpVersionLocked()
	s.mu.Unlock()
	logging.FromContext(ctx).Info("interval changed", "interval", n)
	return s.SendBeacon(ctx)
}

// SetThreshold changes the contour threshold and broadcasts it.
func (s *Station) SetThreshold(ctx context.Context, n int) error {
	if n < 1 || n > MaxThreshold {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, n)
	}
	s.mu.Lock()
	s.threshold = uint16(n)
	s.bumpVersionLocked()
	reclass := s.hasSnap
	var snap grid.Snapshot
	var ev *grid.Event
	if reclass {
		snap, ev = s.reclassifyLocked(s.opts.Now())
	}
	s.mu.Unlock()
	logging.FromContext(ctx).Info("threshold changed", "threshold", n)
	if reclass {
		s.emitContour(ctx, snap, ev)
	}
	return s.SendBeacon(ctx)
}

// The version travels as 16 bits, so it wraps instead of growing past it.
func (s *Station) bumpVersionLocked() {
	s.version = (s.version + 1) & 0xFFFF
}

// SendBeacon broadcasts the current settings stamped with the current time.
func (s *Station) SendBeacon(ctx context.Context) error {
	now := s.opts.Now()
	s.mu.Lock()
	r := contour.Report{Header: contour.Header{
		Version:   uint16(s.version),
		Interval:  s.interval,
		Threshold: s.threshold,
		ID:        s.opts.Addr,
		Clock:     now.UnixMilli(),
	}}
	s.counters.Beacons++
	state := telemetry.StationStateRow{
		StationID: s.opts.StationID,
		Version:   s.version,
		Interval:  s.interval,
		Threshold: s.threshold,
		Motes:     s.store.Len(),
		Received:  s.counters.Received,
		Rejected:  s.counters.Rejected,
		Ignored:   s.counters.Ignored,
		Beacons:   s.counters.Beacons,
		Timestamp: now.UTC(),
	}
	s.mu.Unlock()

	payload, err := contour.Encode(s.opts.Variant, r)
	if err != nil {
		return fmt.Errorf("encode beacon: %w", err)
	}
	b, err := tos.Packet{
		Dest:    tos.BroadcastAddr,
		Src:     s.opts.Addr,
		Group:   s.opts.Group,
		Type:    contour.AMContourTracking,
		Payload: payload,
	}.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode beacon: %w", err)
	}
	if err := s.conn.WritePacket(b); err != nil {
		return fmt.Errorf("send beacon: %w", err)
	}
	logging.FromContext(ctx).Debug("beacon sent", "version", state.Version, "interval", state.Interval, "threshold", state.Threshold)
	if sw, ok := s.writer.(StateWriter); ok {
		if err := sw.WriteState(state); err != nil {
			logging.FromContext(ctx).Error("state write failed", "err", err)
		}
	}
	return nil
}

func (s *Station) settingsLocked() Settings {
	return Settings{Version: s.version, Interval: s.interval, Threshold: s.threshold, Variant: s.opts.Variant.String()}
}

// Settings returns the negotiated settings.
func (s *Station) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsLocked()
}

// Snapshot returns the latest classified grid.
func (s *Station) Snapshot() grid.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSnap {
		snap := grid.Classify(s.gridIDsLocked(), s.store.Latest, int(s.threshold))
		snap.Taken = s.opts.Now()
		return snap
	}
	return s.snapshot
}

// Motes summarises every known mote in first-heard order.
func (s *Station) Motes() []MoteStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.store.IDs()
	out := make([]MoteStatus, 0, len(ids))
	for _, id := range ids {
		mean, sd := s.store.Stats(id, s.opts.StatsWindow)
		ms := MoteStatus{ID: id, Latest: s.store.Latest(id), MaxX: s.store.MaxX(id), Mean: mean, StdDev: sd}
		if m, ok := s.motes[id]; ok {
			ms.Version, ms.Clock, ms.LastSeen = m.version, m.clock, m.lastSeen
			if m.ftsp != nil {
				f := *m.ftsp
				ms.FTSP = &f
			}
		}
		out = append(out, ms)
	}
	return out
}

// Clear drops all mote data. Settings are kept.
func (s *Station) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Clear()
	s.motes = make(map[uint16]*moteState)
	s.snapshot, s.hasSnap = grid.Snapshot{}, false
}

// Stats returns the link counters.
func (s *Station) Stats() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}
