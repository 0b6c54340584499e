package contour

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeReport(t *testing.T) {
	cases := []struct {
		name    string
		variant Variant
		in      Report
		want    Report
	}{
		{
			name:    "plain full",
			variant: VariantPlain,
			in:      Report{Header: scenarioHeader(), Readings: []uint16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
			want:    Report{Header: scenarioHeader(), Readings: []uint16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		},
		{
			name:    "plain beacon pads readings and drops ftsp",
			variant: VariantPlain,
			in:      Report{Header: Header{Version: 3, Interval: 100}, FTSP: &FTSP{Seq: 9}},
			want:    Report{Header: Header{Version: 3, Interval: 100}, Readings: make([]uint16, NReadings)},
		},
		{
			name:    "ftsp with state",
			variant: VariantFTSP,
			in:      Report{Header: scenarioHeader(), Readings: []uint16{7, 8}, FTSP: &FTSP{Synced: true, Seq: 5, Skew: 0.0001}},
			want:    Report{Header: scenarioHeader(), Readings: []uint16{7, 8}, FTSP: &FTSP{Synced: true, Seq: 5, Skew: 0.0001}},
		},
		{
			name:    "ftsp without state",
			variant: VariantFTSP,
			in:      Report{Header: scenarioHeader(), Readings: []uint16{7}},
			want:    Report{Header: scenarioHeader(), Readings: []uint16{7, 0}, FTSP: &FTSP{}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Encode(tc.variant, tc.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(b) != tc.variant.Size() {
				t.Fatalf("len = %d, want %d", len(b), tc.variant.Size())
			}
			got, err := Decode(tc.variant, b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeRejectsTooManyReadings(t *testing.T) {
	_, err := Encode(VariantFTSP, Report{Readings: []uint16{1, 2, 3}})
	if !errors.Is(err, ErrTooManyReadings) {
		t.Fatalf("expected ErrTooManyReadings, got %v", err)
	}
}

func TestUnknownVariant(t *testing.T) {
	if _, err := Decode(Variant(7), make([]byte, 64)); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("decode: expected ErrUnknownVariant, got %v", err)
	}
	if _, err := Encode(Variant(0), Report{}); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("encode: expected ErrUnknownVariant, got %v", err)
	}
	if Variant(7).Size() != 0 || Variant(7).NReadings() != 0 {
		t.Fatalf("unknown variant should have zero size")
	}
}

func TestParseVariant(t *testing.T) {
	cases := map[string]Variant{"": VariantPlain, "plain": VariantPlain, "1": VariantPlain, "FTSP": VariantFTSP, " 2 ": VariantFTSP}
	for in, want := range cases {
		got, err := ParseVariant(in)
		if err != nil || got != want {
			t.Errorf("ParseVariant(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseVariant("v3"); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
	if VariantFTSP.String() != "ftsp" || VariantPlain.String() != "plain" {
		t.Fatalf("unexpected names")
	}
}

func TestSkewPPM(t *testing.T) {
	f := FTSP{Skew: 0.0001}
	if got := f.SkewPPM(); got < 99.99 || got > 100.01 {
		t.Fatalf("SkewPPM = %v", got)
	}
}

func TestNewer(t *testing.T) {
	cases := []struct {
		a, b uint16
		want bool
	}{
		{1, 0, true},
		{0, 1, false},
		{5, 5, false},
		{0, 0xFFFF, true},
		{0xFFFF, 0, false},
		{0x8000, 1, true},
		{0x8001, 1, false},
		{0x8000, 0, false},
		{0, 0x8000, false},
		{0x7FFF, 0, true},
	}
	for _, tc := range cases {
		if got := Newer(tc.a, tc.b); got != tc.want {
			t.Errorf("Newer(%#x, %#x) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFTSPJSONKeepsSkewBits(t *testing.T) {
	for _, bits := range []uint32{
		math.Float32bits(1.5e-6),
		math.Float32bits(float32(math.Copysign(0, -1))),
		0x7FC00001, // NaN with payload
		math.Float32bits(float32(math.Inf(1))),
		math.Float32bits(float32(math.Inf(-1))),
	} {
		in := FTSP{LocalTime: 7, GlobalTime: 9, RootID: 1, Synced: true, Seq: 2, TableEntries: 8, Skew: math.Float32frombits(bits)}
		b, err := json.Marshal(Report{Header: scenarioHeader(), FTSP: &in})
		if err != nil {
			t.Fatalf("marshal %#08x: %v", bits, err)
		}
		var out Report
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal %#08x from %s: %v", bits, b, err)
		}
		if out.FTSP == nil {
			t.Fatalf("%#08x: ftsp lost in %s", bits, b)
		}
		if got := math.Float32bits(out.FTSP.Skew); got != bits {
			t.Errorf("skew bits = %#08x, want %#08x (%s)", got, bits, b)
		}
		out.FTSP.Skew, in.Skew = 0, 0
		if diff := cmp.Diff(in, *out.FTSP); diff != "" {
			t.Errorf("%#08x ftsp (-want +got):\n%s", bits, diff)
		}
	}
}

func TestFTSPJSONSkewForms(t *testing.T) {
	b, err := json.Marshal(FTSP{Skew: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"skew":0.5`) {
		t.Fatalf("finite skew should stay numeric: %s", b)
	}
	b, err = json.Marshal(FTSP{Skew: float32(math.NaN())})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"skew":"0x`) {
		t.Fatalf("NaN skew should be written as bits: %s", b)
	}
	var f FTSP
	if err := json.Unmarshal([]byte(`{"skew":"nope"}`), &f); err == nil {
		t.Fatal("expected error for malformed skew bits")
	}
}
