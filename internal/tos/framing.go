package tos

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	escapeXOR  = 0x20

	// Frame protocol bytes.
	ProtoAck         = 0x43
	ProtoPacketAck   = 0x44
	ProtoPacketNoAck = 0x45

	crcPolynomial = 0x1021
	maxFrame      = 1 + 1 + 1 + AMHeaderSize + MaxPayload + 2
)

var (
	ErrBadCRC     = errors.New("tos: frame checksum mismatch")
	ErrShortFrame = errors.New("tos: frame too short")
	ErrLongFrame  = errors.New("tos: frame exceeds maximum size")
)

// Frame is one HDLC-style serial frame. Seq is only meaningful for
// ProtoPacketAck and ProtoAck frames.
type Frame struct {
	Proto byte
	Seq   byte
	Data  []byte
}

func (f Frame) hasSeq() bool {
	return f.Proto == ProtoPacketAck || f.Proto == ProtoAck
}

// CRC computes the CCITT checksum used by the serial stack (initial value 0).
func CRC(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Encoder writes frames to an underlying writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes f as a single delimited, escaped frame.
func (e *Encoder) Encode(f Frame) error {
	body := make([]byte, 0, len(f.Data)+4)
	body = append(body, f.Proto)
	if f.hasSeq() {
		body = append(body, f.Seq)
	}
	body = append(body, f.Data...)
	crc := CRC(body)
	body = append(body, byte(crc), byte(crc>>8))

	out := make([]byte, 0, len(body)*2+2)
	out = append(out, flagByte)
	for _, b := range body {
		if b == flagByte || b == escapeByte {
			out = append(out, escapeByte, b^escapeXOR)
			continue
		}
		out = append(out, b)
	}
	out = append(out, flagByte)
	_, err := e.w.Write(out)
	return err
}

// Decoder reads frames from a byte stream, resynchronising on flag bytes.
type Decoder struct {
	r      *bufio.Reader
	synced bool
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode returns the next complete frame. Checksum and length failures are
// reported per frame; the decoder stays usable afterwards.
func (d *Decoder) Decode() (Frame, error) {
	var buf []byte
	escaped := false
	overflow := false
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == flagByte {
			if !d.synced {
				d.synced = true
				continue
			}
			if len(buf) == 0 && !overflow {
				continue
			}
			if overflow {
				return Frame{}, ErrLongFrame
			}
			return parseFrame(buf)
		}
		if !d.synced || overflow {
			continue
		}
		if b == escapeByte {
			escaped = true
			continue
		}
		if escaped {
			b ^= escapeXOR
			escaped = false
		}
		if len(buf) >= maxFrame {
			overflow = true
			buf = buf[:0]
			continue
		}
		buf = append(buf, b)
	}
}

func parseFrame(buf []byte) (Frame, error) {
	if len(buf) < 3 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
	}
	body, tail := buf[:len(buf)-2], buf[len(buf)-2:]
	want := uint16(tail[0]) | uint16(tail[1])<<8
	if got := CRC(body); got != want {
		return Frame{}, fmt.Errorf("%w: computed 0x%04X, frame carries 0x%04X", ErrBadCRC, got, want)
	}
	f := Frame{Proto: body[0]}
	rest := body[1:]
	if f.hasSeq() {
		if len(rest) < 1 {
			return Frame{}, fmt.Errorf("%w: missing sequence byte", ErrShortFrame)
		}
		f.Seq = rest[0]
		rest = rest[1:]
	}
	f.Data = append([]byte(nil), rest...)
	return f, nil
}
