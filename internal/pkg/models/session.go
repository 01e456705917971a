package models

import "time"

// SessionType distinguishes the morning and evening trips of a route
type SessionType string

const (
	SessionTypeMorning SessionType = "morning"
	SessionTypeEvening SessionType = "evening"
)

// Valid reports whether t is a known session type
func (t SessionType) Valid() bool {
	return t == SessionTypeMorning || t == SessionTypeEvening
}

// SessionStatus represents the lifecycle state of a trip session
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "NOT_STARTED"
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusCancelled  SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible from s
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Position is the last known position of a bus
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one driver's trip on a route
type Session struct {
	ID              string        `json:"id" db:"id"`
	RouteID         string        `json:"route_id" db:"route_id"`
	DriverID        string        `json:"driver_id" db:"driver_id"`
	Type            SessionType   `json:"session_type" db:"session_type"`
	Status          SessionStatus `json:"status" db:"status"`
	CurrentPosition *Position     `json:"current_position,omitempty"`
	TargetStopID    string        `json:"target_stop_id,omitempty" db:"target_stop_id"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty" db:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
}

// Clone returns a deep copy safe to hand out of the owning lock
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.CurrentPosition != nil {
		p := *s.CurrentPosition
		c.CurrentPosition = &p
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// StartSessionRequest is the input of a trip start
type StartSessionRequest struct {
	RouteID      string
	DriverID     string
	Type         SessionType
	RequestToken string
}

// Snapshot is the state a subscriber receives when it subscribes to a route
type Snapshot struct {
	RouteID       string        `json:"route_id"`
	Active        bool          `json:"active"`
	SessionID     string        `json:"session_id,omitempty"`
	SessionType   SessionType   `json:"session_type,omitempty"`
	Status        SessionStatus `json:"status,omitempty"`
	Position      *Position     `json:"position,omitempty"`
	TargetStopID  string        `json:"target_stop_id,omitempty"`
	EtaMinutes    *float64      `json:"eta_minutes,omitempty"`
	SnapshotTaken time.Time     `json:"snapshot_taken"`
}

// NoActiveSession is the snapshot marker for a route without an Active session
func NoActiveSession(routeID string) Snapshot {
	return Snapshot{RouteID: routeID, Active: false, SnapshotTaken: Now()}
}
