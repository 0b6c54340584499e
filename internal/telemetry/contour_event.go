package telemetry

import "time"

// ContourEventRow records a change in the above-threshold regions of the field.
type ContourEventRow struct {
	StationID string    `json:"station_id"`
	Kind      string    `json:"kind"`
	PrevBlobs int       `json:"prev_blobs"`
	Blobs     int       `json:"blobs"`
	MoteIDs   []uint16  `json:"mote_ids"`
	Threshold int       `json:"threshold"`
	Clock     int64     `json:"clock"`
	Timestamp time.Time `json:"ts"`
}

// EventTableName is the GreptimeDB table for contour events.
const EventTableName = "contour_events"

func (ContourEventRow) TableName() string {
	return EventTableName
}
