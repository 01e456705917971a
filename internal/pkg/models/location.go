package models

import "time"

// LocationPoint is one accepted GPS ping of a session timeline
type LocationPoint struct {
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Speed     float64   `json:"speed" db:"speed"`
	Heading   float64   `json:"heading" db:"heading"`
	Accuracy  float64   `json:"accuracy" db:"accuracy"`
	Timestamp time.Time `json:"timestamp" db:"recorded_at"`

	// SpeedMissing marks a ping sent without speed; Speed is then 0 and not a sample
	SpeedMissing bool `json:"-" db:"-"`
}

// Position converts the point to the session's current position
func (p LocationPoint) Position() Position {
	return Position{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     p.Speed,
		Heading:   p.Heading,
		Timestamp: p.Timestamp,
	}
}

// LocationUpdate is a driver ping addressed to a session
type LocationUpdate struct {
	RouteID   string        `json:"route_id"`
	SessionID string        `json:"session_id"`
	Point     LocationPoint `json:"point"`
}

// IngestStatus is the outcome of a single ping
type IngestStatus string

const (
	IngestAccepted  IngestStatus = "accepted"
	IngestCoalesced IngestStatus = "coalesced"
	IngestDropped   IngestStatus = "dropped"
	IngestRejected  IngestStatus = "rejected"
)

// IngestResult is returned to the driver for every ping
type IngestResult struct {
	Status IngestStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}
