package transport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"

	"contourtrack/internal/tos"
)

// DefaultBaudRate matches the TinyOS BaseStation on telosb and micaz.
const DefaultBaudRate = 115200

// PortOptions describes the serial line to the base-station mote.
type PortOptions struct {
	BaudRate int    `yaml:"baud_rate" json:"baud_rate"`
	DataBits int    `yaml:"data_bits" json:"data_bits"`
	StopBits int    `yaml:"stop_bits" json:"stop_bits"`
	Parity   string `yaml:"parity" json:"parity"`
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch parity := strings.TrimSpace(strings.ToUpper(opts.Parity)); parity {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into the mode go.bug.st/serial expects.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits, StopBits: serial.OneStopBit}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialConn speaks TinyOS serial framing over a byte stream.
type SerialConn struct {
	port io.ReadWriteCloser
	dec  *tos.Decoder

	mu  sync.Mutex
	enc *tos.Encoder

	dropped atomic.Uint64
}

// OpenSerial opens the serial device at path.
func OpenSerial(path string, opts PortOptions) (*SerialConn, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return NewSerialConn(port), nil
}

// NewSerialConn wraps an already open port.
func NewSerialConn(port io.ReadWriteCloser) *SerialConn {
	return &SerialConn{port: port, dec: tos.NewDecoder(port), enc: tos.NewEncoder(port)}
}

// ReadPacket returns the next data packet. Corrupt frames are dropped and
// counted; frames requesting an ack are acknowledged.
func (c *SerialConn) ReadPacket() ([]byte, error) {
	for {
		f, err := c.dec.Decode()
		if err != nil {
			if errors.Is(err, tos.ErrBadCRC) || errors.Is(err, tos.ErrShortFrame) || errors.Is(err, tos.ErrLongFrame) {
				c.dropped.Add(1)
				continue
			}
			return nil, err
		}
		switch f.Proto {
		case tos.ProtoPacketNoAck:
			return f.Data, nil
		case tos.ProtoPacketAck:
			if err := c.writeFrame(tos.Frame{Proto: tos.ProtoAck, Seq: f.Seq}); err != nil {
				return nil, fmt.Errorf("ack frame %d: %w", f.Seq, err)
			}
			return f.Data, nil
		case tos.ProtoAck:
			continue
		default:
			c.dropped.Add(1)
		}
	}
}

// WritePacket sends p without requesting an acknowledgement.
func (c *SerialConn) WritePacket(p []byte) error {
	if len(p) == 0 {
		return ErrPacketSize
	}
	return c.writeFrame(tos.Frame{Proto: tos.ProtoPacketNoAck, Data: p})
}

func (c *SerialConn) writeFrame(f tos.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(f)
}

// Dropped reports how many frames were discarded as corrupt or unknown.
func (c *SerialConn) Dropped() uint64 { return c.dropped.Load() }

func (c *SerialConn) Close() error { return c.port.Close() }
