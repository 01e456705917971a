package models

import "time"

// StopEventType is either an arrival at or a departure from a stop
type StopEventType string

const (
	StopEventArrived  StopEventType = "arrived"
	StopEventDeparted StopEventType = "departed"
)

// Valid reports whether t is a known stop event type
func (t StopEventType) Valid() bool {
	return t == StopEventArrived || t == StopEventDeparted
}

// StopEventSource tells whether the driver or the geofence produced the event
type StopEventSource string

const (
	StopEventSourceDriver   StopEventSource = "driver"
	StopEventSourceGeofence StopEventSource = "geofence"
)

// StopEvent records an arrival or departure at a stop
type StopEvent struct {
	SessionID       string          `json:"session_id" db:"session_id"`
	RouteID         string          `json:"route_id" db:"route_id"`
	StopID          string          `json:"stop_id" db:"stop_id"`
	Type            StopEventType   `json:"event_type" db:"event_type"`
	Source          StopEventSource `json:"source" db:"source"`
	Timestamp       time.Time       `json:"timestamp" db:"occurred_at"`
	StudentsBoarded *int            `json:"students_boarded,omitempty" db:"students_boarded"`
	Notes           string          `json:"notes,omitempty" db:"notes"`
}

// StopEventRequest is a driver-reported stop event
type StopEventRequest struct {
	SessionID       string
	StopID          string
	Type            StopEventType
	StudentsBoarded *int
	Notes           string
	RequestToken    string
}

// ThresholdType names the proximity threshold that was crossed
type ThresholdType string

const (
	ThresholdFar  ThresholdType = "far"
	ThresholdNear ThresholdType = "near"
)

// ProximityAlert is raised when the bus crosses a distance threshold towards its target stop
type ProximityAlert struct {
	SessionID      string        `json:"session_id"`
	RouteID        string        `json:"route_id"`
	StopID         string        `json:"stop_id"`
	ThresholdType  ThresholdType `json:"threshold_type"`
	DistanceMeters float64       `json:"distance_meters"`
	EtaMinutes     float64       `json:"eta_minutes"`
	Timestamp      time.Time     `json:"timestamp"`
}
