// TinyOS serial active-message packets and framing
package tos

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// DispatchAM marks a serial packet carrying an active message.
	DispatchAM = 0x00
	// AMHeaderSize is dest(2) + src(2) + length(1) + group(1) + type(1).
	AMHeaderSize = 7
	// BroadcastAddr is the AM broadcast address.
	BroadcastAddr = 0xFFFF
	// DefaultGroup is the default TinyOS AM group.
	DefaultGroup = 0x22
	// MaxPayload is the largest payload the length byte can describe.
	MaxPayload = 255
)

var (
	ErrShortPacket  = errors.New("tos: packet truncated")
	ErrDispatch     = errors.New("tos: not an active-message packet")
	ErrPayloadLarge = errors.New("tos: payload exceeds 255 bytes")
)

// Packet is an active message as seen on the serial link.
type Packet struct {
	Dest    uint16
	Src     uint16
	Group   uint8
	Type    uint8
	Payload []byte
}

// MarshalBinary returns the serial packet: dispatch byte, AM header, payload.
func (p Packet) MarshalBinary() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrPayloadLarge, len(p.Payload))
	}
	b := make([]byte, 0, 1+AMHeaderSize+len(p.Payload))
	b = append(b, DispatchAM)
	b = binary.BigEndian.AppendUint16(b, p.Dest)
	b = binary.BigEndian.AppendUint16(b, p.Src)
	b = append(b, byte(len(p.Payload)), p.Group, p.Type)
	return append(b, p.Payload...), nil
}

// UnmarshalBinary parses a serial packet. Bytes past the declared payload
// length are ignored.
func (p *Packet) UnmarshalBinary(b []byte) error {
	if len(b) < 1+AMHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	if b[0] != DispatchAM {
		return fmt.Errorf("%w: dispatch 0x%02X", ErrDispatch, b[0])
	}
	n := int(b[5])
	if len(b) < 1+AMHeaderSize+n {
		return fmt.Errorf("%w: header declares %d payload bytes, have %d", ErrShortPacket, n, len(b)-1-AMHeaderSize)
	}
	p.Dest = binary.BigEndian.Uint16(b[1:3])
	p.Src = binary.BigEndian.Uint16(b[3:5])
	p.Group = b[6]
	p.Type = b[7]
	p.Payload = append([]byte(nil), b[8:8+n]...)
	return nil
}
