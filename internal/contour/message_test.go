package contour

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func scenarioHeader() Header {
	return Header{Version: 1, Interval: 50, Threshold: 500, ID: 7, Clock: 1000000000000, Count: 3}
}

func TestMessageScenario(t *testing.T) {
	m := Message{Header: scenarioHeader()}
	for i := range m.Readings {
		m.Readings[i] = uint16(i * 100)
	}
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(b) != MessageSize || MessageSize != 38 {
		t.Fatalf("len = %d, MessageSize = %d, want 38", len(b), MessageSize)
	}
	want := []byte{
		0x00, 0x01, // version
		0x00, 0x32, // interval 50
		0x01, 0xF4, // threshold 500
		0x00, 0x07, // id 7
		0x00, 0x00, 0x00, 0xE8, 0xD4, 0xA5, 0x10, 0x00, // clock 1e12
		0x00, 0x03, // count
		0x00, 0x00, 0x00, 0x64, 0x00, 0xC8, 0x01, 0x2C, 0x01, 0x90,
		0x01, 0xF4, 0x02, 0x58, 0x02, 0xBC, 0x03, 0x20, 0x03, 0x84,
	}
	if !bytes.Equal(b, want) {
		t.Fatalf("encoding mismatch\n got % X\nwant % X", b, want)
	}

	var got Message
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestFTSPMessageScenario(t *testing.T) {
	m := FTSPMessage{
		Header:   scenarioHeader(),
		Readings: [FTSPNReadings]uint16{0, 100},
		FTSP: FTSP{
			LocalTime:    0x01020304,
			GlobalTime:   0x05060708,
			RootID:       1,
			Synced:       true,
			Seq:          5,
			TableEntries: 8,
			Skew:         0.0001,
		},
	}
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(b) != FTSPMessageSize || FTSPMessageSize != HeaderSize+4+17 {
		t.Fatalf("len = %d, want %d", len(b), HeaderSize+4+17)
	}
	suffix := b[HeaderSize+2*FTSPNReadings:]
	if len(suffix) != FTSPSuffixSize {
		t.Fatalf("suffix len = %d, want %d", len(suffix), FTSPSuffixSize)
	}
	if !bytes.Equal(suffix[:13], []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 1, 1, 5, 8}) {
		t.Fatalf("unexpected suffix % X", suffix)
	}
	if got := be.Uint32(suffix[13:]); got != math.Float32bits(0.0001) {
		t.Fatalf("skew bits = %08X, want %08X", got, math.Float32bits(0.0001))
	}

	var got FTSPMessage
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if math.Float32bits(got.Skew) != math.Float32bits(m.Skew) {
		t.Fatalf("skew not bit-exact: %v vs %v", got.Skew, m.Skew)
	}
	if math.Abs(float64(got.Skew)-0.0001) > 1e-10 {
		t.Fatalf("skew = %v, want ~0.0001", got.Skew)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestFixedSizeIndependentOfValues(t *testing.T) {
	cases := []Message{
		{},
		{Header: Header{Version: math.MaxUint16, Clock: math.MinInt64, Count: math.MaxUint16}},
		{Header: Header{Clock: math.MaxInt64}},
	}
	for _, m := range cases {
		b, _ := m.MarshalBinary()
		if len(b) != MessageSize {
			t.Fatalf("len = %d, want %d", len(b), MessageSize)
		}
		fm := FTSPMessage{Header: m.Header, FTSP: FTSP{Skew: float32(math.Inf(-1))}}
		fb, _ := fm.MarshalBinary()
		if len(fb) != FTSPMessageSize {
			t.Fatalf("ftsp len = %d, want %d", len(fb), FTSPMessageSize)
		}
	}
}

func TestMostSignificantByteFirst(t *testing.T) {
	m := Message{Header: Header{
		Version:   0x0102,
		Interval:  0x0304,
		Threshold: 0x0506,
		ID:        0x0708,
		Clock:     0x1112131415161718,
		Count:     0x090A,
	}}
	m.Readings[0] = 0xA1A2
	b, _ := m.MarshalBinary()
	offsets := map[int]byte{0: 0x01, 2: 0x03, 4: 0x05, 6: 0x07, 8: 0x11, 16: 0x09, 18: 0xA1}
	for off, want := range offsets {
		if b[off] != want {
			t.Errorf("byte %d = %02X, want %02X", off, b[off], want)
		}
	}
}

func TestFullRangeBoundary(t *testing.T) {
	m := Message{Header: Header{Count: 0xFFFF}}
	for i := range m.Readings {
		m.Readings[i] = 0xFFFF
	}
	b, _ := m.MarshalBinary()
	var got Message
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Count != 0xFFFF {
		t.Fatalf("count = %X", got.Count)
	}
	for i, r := range got.Readings {
		if r != 0xFFFF {
			t.Fatalf("reading %d = %X", i, r)
		}
	}
	first, end := got.Window(NReadings)
	if first != 0xFFFF*NReadings || end != first+NReadings {
		t.Fatalf("window = [%d,%d)", first, end)
	}
}

func TestShortBufferRejected(t *testing.T) {
	var m Message
	err := m.UnmarshalBinary(make([]byte, MessageSize-1))
	if !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	var fm FTSPMessage
	err = fm.UnmarshalBinary(make([]byte, MessageSize))
	if !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer for ftsp, got %v", err)
	}
}

func TestTrailingBytesIgnored(t *testing.T) {
	m := Message{Header: scenarioHeader()}
	b, _ := m.MarshalBinary()
	b = append(b, 0xDE, 0xAD)
	var got Message
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Header != m.Header {
		t.Fatalf("header = %+v", got.Header)
	}
}

func TestNegativeClock(t *testing.T) {
	m := Message{Header: Header{Clock: -42}}
	b, _ := m.MarshalBinary()
	var got Message
	_ = got.UnmarshalBinary(b)
	if got.Clock != -42 {
		t.Fatalf("clock = %d", got.Clock)
	}
}
