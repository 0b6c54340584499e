// Package transport carries serial-level TinyOS packets between the base
// station and the mote network.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PacketConn moves whole serial packets (dispatch byte first).
type PacketConn interface {
	ReadPacket() ([]byte, error)
	WritePacket(p []byte) error
	Close() error
}

var (
	ErrClosed      = errors.New("transport: connection closed")
	ErrPacketSize  = errors.New("transport: packet size out of range")
	ErrHandshake   = errors.New("transport: serial forwarder handshake failed")
	ErrUnknownLink = errors.New("transport: unknown link kind")
)

// Link kinds.
const (
	LinkSerial = "serial"
	LinkSF     = "sf"
	LinkSim    = "sim"
)

// LinkOptions selects and parameterises the mote link.
type LinkOptions struct {
	Kind    string      `yaml:"kind" json:"kind"`
	Device  string      `yaml:"device" json:"device"`
	Address string      `yaml:"address" json:"address"`
	Port    PortOptions `yaml:"port" json:"port"`
}

// Open connects the link described by opts. The "sim" kind has no external
// endpoint; callers build it with Pipe.
func Open(ctx context.Context, opts LinkOptions) (PacketConn, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case LinkSerial:
		if opts.Device == "" {
			return nil, fmt.Errorf("serial link: device not set")
		}
		return OpenSerial(opts.Device, opts.Port)
	case LinkSF:
		if opts.Address == "" {
			return nil, fmt.Errorf("sf link: address not set")
		}
		return DialSF(ctx, opts.Address)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLink, opts.Kind)
}
