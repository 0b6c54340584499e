package telemetry

import "time"

// StationStateRow captures the negotiated settings each time a beacon goes out.
type StationStateRow struct {
	StationID string    `json:"station_id"`
	Version   int       `json:"version"`
	Interval  uint16    `json:"interval"`
	Threshold uint16    `json:"threshold"`
	Motes     int       `json:"motes"`
	Received  uint64    `json:"received"`
	Rejected  uint64    `json:"rejected"`
	Ignored   uint64    `json:"ignored"`
	Beacons   uint64    `json:"beacons"`
	Timestamp time.Time `json:"ts"`
}
