package contour

import "fmt"

// Report is the variant-neutral view of a decoded message. FTSP is nil for
// plain messages.
type Report struct {
	Header
	Readings []uint16 `json:"readings"`
	FTSP     *FTSP    `json:"ftsp,omitempty"`
}

// Report converts m to its variant-neutral form.
func (m Message) Report() Report {
	readings := make([]uint16, NReadings)
	copy(readings, m.Readings[:])
	return Report{Header: m.Header, Readings: readings}
}

// Report converts m to its variant-neutral form.
func (m FTSPMessage) Report() Report {
	readings := make([]uint16, FTSPNReadings)
	copy(readings, m.Readings[:])
	f := m.FTSP
	return Report{Header: m.Header, Readings: readings, FTSP: &f}
}

// Decode parses b as a message of variant v.
func Decode(v Variant, b []byte) (Report, error) {
	switch v {
	case VariantPlain:
		var m Message
		if err := m.UnmarshalBinary(b); err != nil {
			return Report{}, err
		}
		return m.Report(), nil
	case VariantFTSP:
		var m FTSPMessage
		if err := m.UnmarshalBinary(b); err != nil {
			return Report{}, err
		}
		return m.Report(), nil
	}
	return Report{}, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
}

// Encode serializes r as variant v. Unused reading slots are zero. A plain
// encoding drops r.FTSP; an FTSP encoding of a report without FTSP state
// writes a zero suffix.
func Encode(v Variant, r Report) ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
	if len(r.Readings) > v.NReadings() {
		return nil, fmt.Errorf("%w: %d readings, %s holds %d", ErrTooManyReadings, len(r.Readings), v, v.NReadings())
	}
	if v == VariantPlain {
		m := Message{Header: r.Header}
		copy(m.Readings[:], r.Readings)
		return m.MarshalBinary()
	}
	m := FTSPMessage{Header: r.Header}
	copy(m.Readings[:], r.Readings)
	if r.FTSP != nil {
		m.FTSP = *r.FTSP
	}
	return m.MarshalBinary()
}
