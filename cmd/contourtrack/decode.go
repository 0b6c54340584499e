package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"contourtrack/internal/contour"
	"contourtrack/internal/tos"
)

// Input layers accepted by decode.
const (
	layerPayload = "payload"
	layerPacket  = "packet"
	layerFrame   = "frame"
)

var (
	decodeVariant string
	decodeLayer   string
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex...]",
	Short: "Decode ContourTracking messages from hex",
	Long: "decode prints the report carried by each hex argument, or by each line of " +
		"STDIN when no arguments are given. --layer selects whether the bytes are a bare " +
		"message payload, a serial AM packet or a framed serial frame.",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := contour.ParseVariant(decodeVariant)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		emit := func(s string) error {
			d, err := decodeHex(v, decodeLayer, s)
			if err != nil {
				return err
			}
			return enc.Encode(d)
		}
		if len(args) > 0 {
			for _, a := range args {
				if err := emit(a); err != nil {
					return err
				}
			}
			return nil
		}
		return eachLine(cmd.InOrStdin(), emit)
	},
}

// decoded is what decode prints for one input.
type decoded struct {
	Dest    *uint16         `json:"dest,omitempty"`
	Src     *uint16         `json:"src,omitempty"`
	Group   *uint8          `json:"group,omitempty"`
	AMType  *uint8          `json:"am_type,omitempty"`
	Variant string          `json:"variant"`
	Report  *contour.Report `json:"report,omitempty"`
	Window  [2]uint32       `json:"window"`
}

func decodeHex(v contour.Variant, layer, s string) (decoded, error) {
	b, err := parseHex(s)
	if err != nil {
		return decoded{}, err
	}
	out := decoded{Variant: v.String()}
	payload := b
	switch layer {
	case layerPayload, "":
	case layerFrame:
		f, err := tos.NewDecoder(bytes.NewReader(b)).Decode()
		if err != nil {
			return decoded{}, fmt.Errorf("frame: %w", err)
		}
		b = f.Data
		fallthrough
	case layerPacket:
		var p tos.Packet
		if err := p.UnmarshalBinary(b); err != nil {
			return decoded{}, err
		}
		out.Dest, out.Src, out.Group, out.AMType = &p.Dest, &p.Src, &p.Group, &p.Type
		if p.Type != contour.AMContourTracking {
			return out, nil
		}
		payload = p.Payload
	default:
		return decoded{}, fmt.Errorf("unknown layer %q", layer)
	}
	r, err := contour.Decode(v, payload)
	if err != nil {
		return decoded{}, err
	}
	out.Report = &r
	out.Window[0], out.Window[1] = r.Window(len(r.Readings))
	return out, nil
}

// parseHex accepts hex with optional 0x prefix and space, colon or dash
// separators.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex: %w", err)
	}
	return b, nil
}

func eachLine(r io.Reader, fn func(string) error) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func init() {
	decodeCmd.Flags().StringVar(&decodeVariant, "variant", "plain", "Message variant (plain or ftsp)")
	decodeCmd.Flags().StringVar(&decodeLayer, "layer", layerPayload, "Input layer: payload, packet or frame")
}
