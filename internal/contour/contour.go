// Wire schema of the ContourTracking mote report
package contour

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// NReadings is the number of reading slots in a plain message.
	NReadings = 10
	// FTSPNReadings is the number of reading slots in a message carrying
	// FTSP time-sync state.
	FTSPNReadings = 2

	// DefaultInterval is the sampling period in milliseconds a mote uses
	// until told otherwise.
	DefaultInterval = 50
	// DefaultThreshold is the sample threshold a mote uses until told otherwise.
	DefaultThreshold = 500

	// AMContourTracking is the active-message type of the report.
	AMContourTracking = 0x93
)

// Wire sizes in bytes.
const (
	HeaderSize      = 2 + 2 + 2 + 2 + 8 + 2
	FTSPSuffixSize  = 4 + 4 + 2 + 1 + 1 + 1 + 4
	MessageSize     = HeaderSize + 2*NReadings
	FTSPMessageSize = HeaderSize + 2*FTSPNReadings + FTSPSuffixSize
)

var (
	// ErrShortBuffer is returned when a buffer is smaller than the fixed wire size.
	ErrShortBuffer = errors.New("contour: buffer shorter than wire size")
	// ErrTooManyReadings is returned when a report holds more readings than
	// the variant has slots for.
	ErrTooManyReadings = errors.New("contour: too many readings for variant")
	// ErrUnknownVariant is returned for variants other than plain and FTSP.
	ErrUnknownVariant = errors.New("contour: unknown variant")
)

// Variant selects one of the two incompatible wire revisions.
type Variant int

const (
	VariantPlain Variant = 1
	VariantFTSP  Variant = 2
)

// Size returns the fixed wire size of the variant, or 0 if unknown.
func (v Variant) Size() int {
	switch v {
	case VariantPlain:
		return MessageSize
	case VariantFTSP:
		return FTSPMessageSize
	}
	return 0
}

// NReadings returns the number of reading slots of the variant.
func (v Variant) NReadings() int {
	switch v {
	case VariantPlain:
		return NReadings
	case VariantFTSP:
		return FTSPNReadings
	}
	return 0
}

func (v Variant) String() string {
	switch v {
	case VariantPlain:
		return "plain"
	case VariantFTSP:
		return "ftsp"
	}
	return "variant(" + strconv.Itoa(int(v)) + ")"
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	return v == VariantPlain || v == VariantFTSP
}

// ParseVariant accepts "plain"/"1" and "ftsp"/"2".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain", "1", "v1":
		return VariantPlain, nil
	case "ftsp", "2", "v2":
		return VariantFTSP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// Header holds the fields shared by both variants, in wire order.
type Header struct {
	Version   uint16 `json:"version"`
	Interval  uint16 `json:"interval"`
	Threshold uint16 `json:"threshold"`
	ID        uint16 `json:"id"`
	Clock     int64  `json:"clock"`
	Count     uint16 `json:"count"`
}

// Window returns the half-open sample index range [first, end) covered by
// the readings of a message with n reading slots.
func (h Header) Window(n int) (first, end uint32) {
	first = uint32(h.Count) * uint32(n)
	return first, first + uint32(n)
}

// Newer reports whether settings version a supersedes b. Versions are
// compared in 16-bit serial arithmetic so the counter may wrap.
func Newer(a, b uint16) bool {
	return int16(a-b) > 0
}

// FTSP carries the sender's time-synchronization state.
type FTSP struct {
	LocalTime    uint32  `json:"local_time"`
	GlobalTime   uint32  `json:"global_time"`
	RootID       uint16  `json:"root_id"`
	Synced       bool    `json:"synced"`
	Seq          uint8   `json:"seq"`
	TableEntries uint8   `json:"table_entries"`
	Skew         float32 `json:"skew"`
}

type ftspFields FTSP

// MarshalJSON writes a finite skew as a number and any other skew as its
// IEEE-754 bits in a "0x%08x" string, so every wire value survives.
func (f FTSP) MarshalJSON() ([]byte, error) {
	var skew any = f.Skew
	if x := float64(f.Skew); math.IsNaN(x) || math.IsInf(x, 0) {
		skew = fmt.Sprintf("0x%08x", math.Float32bits(f.Skew))
	}
	return json.Marshal(struct {
		ftspFields
		Skew any `json:"skew"`
	}{ftspFields(f), skew})
}

// UnmarshalJSON accepts either skew form written by MarshalJSON.
func (f *FTSP) UnmarshalJSON(b []byte) error {
	var in struct {
		ftspFields
		Skew json.RawMessage `json:"skew"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*f = FTSP(in.ftspFields)
	f.Skew = 0
	if len(in.Skew) == 0 || string(in.Skew) == "null" {
		return nil
	}
	if in.Skew[0] != '"' {
		return json.Unmarshal(in.Skew, &f.Skew)
	}
	var s string
	if err := json.Unmarshal(in.Skew, &s); err != nil {
		return err
	}
	bits, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		return fmt.Errorf("ftsp skew %q: %w", s, err)
	}
	f.Skew = math.Float32frombits(uint32(bits))
	return nil
}

// SkewPPM returns the clock skew in parts per million.
func (f FTSP) SkewPPM() float64 {
	return float64(f.Skew) * 1e6
}
