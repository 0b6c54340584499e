package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var sfHandshake = []byte("U ")

// SFHandshakeTimeout bounds the handshake on connections that support
// deadlines.
var SFHandshakeTimeout = 5 * time.Second

// SFConn is a serial forwarder connection: a two byte handshake followed by
// length-prefixed packets. The protocol is symmetric, so the same type
// serves both ends.
type SFConn struct {
	rw io.ReadWriteCloser
	r  *bufio.Reader

	mu sync.Mutex
}

// DialSF connects to a serial forwarder at addr.
func DialSF(ctx context.Context, addr string) (*SFConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial serial forwarder %s: %w", addr, err)
	}
	c, err := NewSFConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewSFConn performs the handshake on rw. When rw is a net.Conn the
// handshake must finish within SFHandshakeTimeout.
func NewSFConn(rw io.ReadWriteCloser) (*SFConn, error) {
	if conn, ok := rw.(net.Conn); ok {
		if err := conn.SetDeadline(time.Now().Add(SFHandshakeTimeout)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		defer conn.SetDeadline(time.Time{})
	}
	errc := make(chan error, 1)
	go func() {
		_, err := rw.Write(sfHandshake)
		errc <- err
	}()
	r := bufio.NewReader(rw)
	peer := make([]byte, len(sfHandshake))
	if _, err := io.ReadFull(r, peer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := <-errc; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if peer[0] != sfHandshake[0] {
		return nil, fmt.Errorf("%w: peer sent %q", ErrHandshake, peer)
	}
	return &SFConn{rw: rw, r: r}, nil
}

// ReadPacket returns the next packet. Zero-length packets are skipped.
func (c *SFConn) ReadPacket() ([]byte, error) {
	for {
		n, err := c.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		p := make([]byte, n)
		if _, err := io.ReadFull(c.r, p); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return p, nil
	}
}

func (c *SFConn) WritePacket(p []byte) error {
	if len(p) == 0 || len(p) > 255 {
		return fmt.Errorf("%w: %d bytes", ErrPacketSize, len(p))
	}
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, byte(len(p)))
	buf = append(buf, p...)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.rw.Write(buf)
	return err
}

func (c *SFConn) Close() error { return c.rw.Close() }

// ServeSF accepts serial forwarder clients on ln and hands each connected
// client to fn until ctx ends or the listener fails.
func ServeSF(ctx context.Context, ln net.Listener, fn func(*SFConn)) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			c, err := NewSFConn(conn)
			if err != nil {
				conn.Close()
				return
			}
			fn(c)
		}()
	}
}
