// Package recorder writes contour snapshots to disk and plays them back.
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"contourtrack/internal/contour"
	"contourtrack/internal/grid"
)

// FormatTag identifies a recording file.
const FormatTag = "contourtrack-ect/1"

var ErrFormat = errors.New("recorder: not a contour recording")

// Header is the first record of every recording.
type Header struct {
	Format    string    `cbor:"1,keyasint" json:"format"`
	Session   string    `cbor:"2,keyasint" json:"session"`
	StationID string    `cbor:"3,keyasint" json:"station_id"`
	Variant   string    `cbor:"4,keyasint" json:"variant"`
	Start     time.Time `cbor:"5,keyasint" json:"start"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Recorder appends snapshots to a file as a CBOR sequence.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	bw     *bufio.Writer
	enc    *cbor.Encoder
	header Header
	count  int
}

// Create starts a new recording at path, truncating any existing file.
func Create(path, stationID string, v contour.Variant, start time.Time) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	r := &Recorder{
		f:   f,
		bw:  bw,
		enc: encMode.NewEncoder(bw),
		header: Header{
			Format:    FormatTag,
			Session:   uuid.NewString(),
			StationID: stationID,
			Variant:   v.String(),
			Start:     start.UTC(),
		},
	}
	if err := r.enc.Encode(r.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write recording header: %w", err)
	}
	return r, nil
}

// Header returns the recording header.
func (r *Recorder) Header() Header { return r.header }

// WriteSnapshot appends s and flushes it to disk.
func (r *Recorder) WriteSnapshot(s grid.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(s); err != nil {
		return err
	}
	r.count++
	return r.bw.Flush()
}

// Count is the number of snapshots written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if err := r.bw.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := r.f.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Recording is a loaded snapshot sequence.
type Recording struct {
	Header    Header
	Snapshots []grid.Snapshot
	// Truncated is set when the file ended inside a record.
	Truncated bool
}

// Stamp is the time a snapshot describes, in ms: the newest mote clock, or
// the capture time when motes carried no clock.
func Stamp(s grid.Snapshot) int64 {
	if s.LatestClock > 0 {
		return s.LatestClock
	}
	return s.Taken.UnixMilli()
}

// Duration is the span between the first and last snapshot.
func (r Recording) Duration() time.Duration {
	if len(r.Snapshots) < 2 {
		return 0
	}
	first, last := Stamp(r.Snapshots[0]), Stamp(r.Snapshots[len(r.Snapshots)-1])
	return time.Duration(last-first) * time.Millisecond
}

// Read decodes a recording from rd.
func Read(rd io.Reader) (Recording, error) {
	dec := cbor.NewDecoder(bufio.NewReader(rd))
	var rec Recording
	if err := dec.Decode(&rec.Header); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if rec.Header.Format != FormatTag {
		return rec, fmt.Errorf("%w: format %q", ErrFormat, rec.Header.Format)
	}
	for {
		var s grid.Snapshot
		err := dec.Decode(&s)
		switch {
		case err == nil:
			rec.Snapshots = append(rec.Snapshots, s)
		case errors.Is(err, io.EOF):
			return rec, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			rec.Truncated = true
			return rec, nil
		default:
			return rec, fmt.Errorf("snapshot %d: %w", len(rec.Snapshots), err)
		}
	}
}

// Load reads the recording at path.
func Load(path string) (Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return Recording{}, err
	}
	defer f.Close()
	return Read(f)
}
