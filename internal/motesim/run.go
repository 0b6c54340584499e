package motesim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"contourtrack/internal/contour"
	"contourtrack/internal/logging"
	"contourtrack/internal/tos"
	"contourtrack/internal/transport"
)

// Run samples the field every mote interval and sends completed reports to
// the station at addr over conn. Beacons read from conn are applied to the
// motes. Run returns when ctx ends or the link closes; conn is closed on
// return.
func (f *Field) Run(ctx context.Context, conn transport.PacketConn, addr uint16, group uint8) error {
	log := logging.FromContext(ctx)
	log.Info("starting mote field", "motes", len(f.motes), "sources", len(f.sources), "variant", f.opts.Variant)
	defer conn.Close()

	errc := make(chan error, 1)
	go func() { errc <- f.readBeacons(ctx, conn) }()

	interval := f.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, r := range f.Tick() {
				if err := f.send(conn, addr, group, r); err != nil {
					if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
			if next := f.Interval(); next != interval {
				log.Info("sampling interval changed", "interval", next)
				interval = next
				ticker.Reset(interval)
			}
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read beacons: %w", err)
			}
			return nil
		case <-ctx.Done():
			log.Info("stopping mote field")
			return nil
		}
	}
}

func (f *Field) send(conn transport.PacketConn, addr uint16, group uint8, r contour.Report) error {
	payload, err := contour.Encode(f.opts.Variant, r)
	if err != nil {
		return err
	}
	b, err := tos.Packet{
		Dest:    addr,
		Src:     r.ID,
		Group:   group,
		Type:    contour.AMContourTracking,
		Payload: payload,
	}.MarshalBinary()
	if err != nil {
		return err
	}
	return conn.WritePacket(b)
}

func (f *Field) readBeacons(ctx context.Context, conn transport.PacketConn) error {
	log := logging.FromContext(ctx)
	for {
		b, err := conn.ReadPacket()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		var pkt tos.Packet
		if err := pkt.UnmarshalBinary(b); err != nil || pkt.Type != contour.AMContourTracking {
			continue
		}
		r, err := contour.Decode(f.opts.Variant, pkt.Payload)
		if err != nil {
			log.Warn("bad beacon", "err", err)
			continue
		}
		if f.HandleBeacon(r) {
			log.Info("motes adopted beacon", "version", r.Version, "interval", r.Interval, "threshold", r.Threshold)
		}
	}
}
