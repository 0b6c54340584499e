package grid

import "fmt"

type EventKind string

const (
	Appeared EventKind = "appeared"
	Vanished EventKind = "vanished"
	Split    EventKind = "split"
	Merged   EventKind = "merged"
)

// Event is a change in the number of above-threshold regions.
type Event struct {
	Kind      EventKind `json:"kind" cbor:"1,keyasint"`
	PrevBlobs int       `json:"prev_blobs" cbor:"2,keyasint"`
	Blobs     int       `json:"blobs" cbor:"3,keyasint"`
	Motes     []uint16  `json:"motes" cbor:"4,keyasint"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s: %d -> %d regions %v", e.Kind, e.PrevBlobs, e.Blobs, e.Motes)
}

// DetectEvent compares the regions of two snapshots. It returns nil when
// the region count did not change.
func DetectEvent(prev, cur Snapshot) *Event {
	pb, cb := prev.Blobs(), cur.Blobs()
	e := &Event{PrevBlobs: len(pb), Blobs: len(cb)}
	switch {
	case len(pb) == len(cb):
		return nil
	case len(pb) == 0:
		e.Kind = Appeared
	case len(cb) == 0:
		e.Kind = Vanished
	case len(cb) > len(pb):
		e.Kind = Split
	default:
		e.Kind = Merged
	}
	src := cb
	if e.Kind == Vanished {
		src = pb
	}
	for _, b := range src {
		e.Motes = append(e.Motes, b...)
	}
	return e
}
