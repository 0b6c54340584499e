package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"contourtrack/internal/contour"
	"contourtrack/internal/tos"
)

func encodedReport(t *testing.T, v contour.Variant) (contour.Report, []byte, []byte, []byte) {
	t.Helper()
	r := contour.Report{
		Header:   contour.Header{Version: 2, Interval: 50, Threshold: 500, ID: 7, Clock: 123456, Count: 4},
		Readings: make([]uint16, v.NReadings()),
	}
	r.Readings[0], r.Readings[1] = 480, 620
	if v == contour.VariantFTSP {
		r.FTSP = &contour.FTSP{LocalTime: 10, GlobalTime: 12, RootID: 1, Synced: true, Seq: 3, TableEntries: 8, Skew: 1.5e-6}
	}
	payload, err := contour.Encode(v, r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	pkt, err := tos.Packet{Dest: 0, Src: 7, Group: tos.DefaultGroup, Type: contour.AMContourTracking, Payload: payload}.MarshalBinary()
	if err != nil {
		t.Fatalf("packet: %v", err)
	}
	var frame bytes.Buffer
	if err := tos.NewEncoder(&frame).Encode(tos.Frame{Proto: tos.ProtoPacketNoAck, Data: pkt}); err != nil {
		t.Fatalf("frame: %v", err)
	}
	return r, payload, pkt, frame.Bytes()
}

func TestDecodeHexLayers(t *testing.T) {
	for _, v := range []contour.Variant{contour.VariantPlain, contour.VariantFTSP} {
		want, payload, pkt, frame := encodedReport(t, v)
		for layer, b := range map[string][]byte{layerPayload: payload, layerPacket: pkt, layerFrame: frame} {
			d, err := decodeHex(v, layer, hex.EncodeToString(b))
			if err != nil {
				t.Fatalf("%s/%s: %v", v, layer, err)
			}
			if d.Report == nil {
				t.Fatalf("%s/%s: no report", v, layer)
			}
			if diff := cmp.Diff(want, *d.Report); diff != "" {
				t.Errorf("%s/%s report (-want +got):\n%s", v, layer, diff)
			}
			if first, end := d.Window[0], d.Window[1]; first != uint32(4*v.NReadings()) || end != first+uint32(v.NReadings()) {
				t.Errorf("%s/%s window = %v", v, layer, d.Window)
			}
			if layer != layerPayload && (d.Src == nil || *d.Src != 7 || *d.AMType != contour.AMContourTracking) {
				t.Errorf("%s/%s packet header not reported", v, layer)
			}
		}
	}
}

func TestDecodeHexOtherAMType(t *testing.T) {
	pkt, err := tos.Packet{Src: 3, Type: 0x10, Payload: []byte{1, 2}}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	d, err := decodeHex(contour.VariantPlain, layerPacket, hex.EncodeToString(pkt))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Report != nil || d.AMType == nil || *d.AMType != 0x10 {
		t.Fatalf("decoded = %+v", d)
	}
}

func TestDecodeHexErrors(t *testing.T) {
	if _, err := decodeHex(contour.VariantPlain, layerPayload, "zz"); err == nil {
		t.Fatal("expected hex error")
	}
	if _, err := decodeHex(contour.VariantPlain, layerPayload, "0001"); !errors.Is(err, contour.ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	if _, err := decodeHex(contour.VariantPlain, "radio", "00"); err == nil {
		t.Fatal("expected unknown layer error")
	}
}

func TestParseHexSeparators(t *testing.T) {
	b, err := parseHex("0x7e 00:01-ff")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]byte{0x7e, 0x00, 0x01, 0xff}, b); diff != "" {
		t.Fatalf("bytes (-want +got):\n%s", diff)
	}
}

func TestEachLineSkipsBlankAndComments(t *testing.T) {
	var got []string
	err := eachLine(strings.NewReader("# header\n\n aa \nbb\n"), func(s string) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"aa", "bb"}, got); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
}

func TestDecodeHexNonFiniteSkew(t *testing.T) {
	r := contour.Report{
		Header:   contour.Header{ID: 9, Count: 1},
		Readings: []uint16{1, 2},
		FTSP:     &contour.FTSP{Synced: true, Skew: float32(math.NaN())},
	}
	payload, err := contour.Encode(contour.VariantFTSP, r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d, err := decodeHex(contour.VariantFTSP, layerPayload, hex.EncodeToString(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal decoded report: %v", err)
	}
	var back decoded
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Report == nil || back.Report.FTSP == nil || math.Float32bits(back.Report.FTSP.Skew) != math.Float32bits(d.Report.FTSP.Skew) {
		t.Fatalf("skew bits not preserved: %s", b)
	}
}
