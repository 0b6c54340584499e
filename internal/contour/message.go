package contour

import (
	"encoding/binary"
	"fmt"
	"math"
)

var be = binary.BigEndian

// Message is the plain report: header followed by NReadings samples.
type Message struct {
	Header
	Readings [NReadings]uint16
}

// FTSPMessage is the report revision carrying FTSPNReadings samples
// followed by the sender's FTSP state.
type FTSPMessage struct {
	Header
	Readings [FTSPNReadings]uint16
	FTSP
}

func (h Header) appendTo(b []byte) []byte {
	b = be.AppendUint16(b, h.Version)
	b = be.AppendUint16(b, h.Interval)
	b = be.AppendUint16(b, h.Threshold)
	b = be.AppendUint16(b, h.ID)
	b = be.AppendUint64(b, uint64(h.Clock))
	return be.AppendUint16(b, h.Count)
}

func (h *Header) readFrom(b []byte) {
	h.Version = be.Uint16(b[0:2])
	h.Interval = be.Uint16(b[2:4])
	h.Threshold = be.Uint16(b[4:6])
	h.ID = be.Uint16(b[6:8])
	h.Clock = int64(be.Uint64(b[8:16]))
	h.Count = be.Uint16(b[16:18])
}

func (f FTSP) appendTo(b []byte) []byte {
	b = be.AppendUint32(b, f.LocalTime)
	b = be.AppendUint32(b, f.GlobalTime)
	b = be.AppendUint16(b, f.RootID)
	synced := byte(0)
	if f.Synced {
		synced = 1
	}
	b = append(b, synced, f.Seq, f.TableEntries)
	return be.AppendUint32(b, math.Float32bits(f.Skew))
}

func (f *FTSP) readFrom(b []byte) {
	f.LocalTime = be.Uint32(b[0:4])
	f.GlobalTime = be.Uint32(b[4:8])
	f.RootID = be.Uint16(b[8:10])
	f.Synced = b[10] != 0
	f.Seq = b[11]
	f.TableEntries = b[12]
	f.Skew = math.Float32frombits(be.Uint32(b[13:17]))
}

// AppendBinary appends the wire encoding of m to b.
func (m Message) AppendBinary(b []byte) ([]byte, error) {
	b = m.Header.appendTo(b)
	for _, r := range m.Readings {
		b = be.AppendUint16(b, r)
	}
	return b, nil
}

// MarshalBinary returns the MessageSize-byte wire encoding of m.
func (m Message) MarshalBinary() ([]byte, error) {
	return m.AppendBinary(make([]byte, 0, MessageSize))
}

// UnmarshalBinary decodes the first MessageSize bytes of b. Trailing bytes
// are ignored.
func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) < MessageSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, MessageSize, len(b))
	}
	m.Header.readFrom(b)
	off := HeaderSize
	for i := range m.Readings {
		m.Readings[i] = be.Uint16(b[off : off+2])
		off += 2
	}
	return nil
}

// AppendBinary appends the wire encoding of m to b.
func (m FTSPMessage) AppendBinary(b []byte) ([]byte, error) {
	b = m.Header.appendTo(b)
	for _, r := range m.Readings {
		b = be.AppendUint16(b, r)
	}
	return m.FTSP.appendTo(b), nil
}

// MarshalBinary returns the FTSPMessageSize-byte wire encoding of m.
func (m FTSPMessage) MarshalBinary() ([]byte, error) {
	return m.AppendBinary(make([]byte, 0, FTSPMessageSize))
}

// UnmarshalBinary decodes the first FTSPMessageSize bytes of b. Trailing
// bytes are ignored.
func (m *FTSPMessage) UnmarshalBinary(b []byte) error {
	if len(b) < FTSPMessageSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, FTSPMessageSize, len(b))
	}
	m.Header.readFrom(b)
	off := HeaderSize
	for i := range m.Readings {
		m.Readings[i] = be.Uint16(b[off : off+2])
		off += 2
	}
	m.FTSP.readFrom(b[off : off+FTSPSuffixSize])
	return nil
}
