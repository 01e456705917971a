package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names an outbound tracking event as it appears on the wire
type EventKind string

const (
	EventKindLocation       EventKind = "location:update"
	EventKindSnapshot       EventKind = "location:current"
	EventKindTripStarted    EventKind = "trip:started"
	EventKindTripEnded      EventKind = "trip:ended"
	EventKindStopEvent      EventKind = "stop:event"
	EventKindProximityAlert EventKind = "proximity:alert"
)

// Event is an outbound event fanned out to the subscribers of a route.
// The set of implementations is closed: LocationEvent, SnapshotEvent,
// TripStartedEvent, TripEndedEvent, StopEventEvent and ProximityAlertEvent.
type Event interface {
	Kind() EventKind
	Route() string
	isEvent()
}

// LocationEvent carries an accepted location point
type LocationEvent struct {
	SessionID string        `json:"session_id"`
	RouteID   string        `json:"route_id"`
	Point     LocationPoint `json:"point"`
}

// SnapshotEvent is the first event a new subscriber receives
type SnapshotEvent struct {
	Snapshot Snapshot `json:"snapshot"`
}

// TripStartedEvent is emitted when a session becomes Active
type TripStartedEvent struct {
	SessionID   string      `json:"session_id"`
	RouteID     string      `json:"route_id"`
	DriverID    string      `json:"driver_id"`
	SessionType SessionType `json:"session_type"`
	StartedAt   time.Time   `json:"started_at"`
}

// TripEndedEvent is emitted when a session is completed or cancelled
type TripEndedEvent struct {
	SessionID string        `json:"session_id"`
	RouteID   string        `json:"route_id"`
	Status    SessionStatus `json:"status"`
	EndedAt   time.Time     `json:"ended_at"`
}

// StopEventEvent wraps a recorded stop event
type StopEventEvent struct {
	StopEvent
}

// ProximityAlertEvent wraps a proximity alert
type ProximityAlertEvent struct {
	ProximityAlert
}

func (LocationEvent) Kind() EventKind       { return EventKindLocation }
func (SnapshotEvent) Kind() EventKind       { return EventKindSnapshot }
func (TripStartedEvent) Kind() EventKind    { return EventKindTripStarted }
func (TripEndedEvent) Kind() EventKind      { return EventKindTripEnded }
func (StopEventEvent) Kind() EventKind      { return EventKindStopEvent }
func (ProximityAlertEvent) Kind() EventKind { return EventKindProximityAlert }

func (e LocationEvent) Route() string       { return e.RouteID }
func (e SnapshotEvent) Route() string       { return e.Snapshot.RouteID }
func (e TripStartedEvent) Route() string    { return e.RouteID }
func (e TripEndedEvent) Route() string      { return e.RouteID }
func (e StopEventEvent) Route() string      { return e.RouteID }
func (e ProximityAlertEvent) Route() string { return e.RouteID }

func (LocationEvent) isEvent()       {}
func (SnapshotEvent) isEvent()       {}
func (TripStartedEvent) isEvent()    {}
func (TripEndedEvent) isEvent()      {}
func (StopEventEvent) isEvent()      {}
func (ProximityAlertEvent) isEvent() {}

// EventSession returns the session id an event belongs to, if any
func EventSession(e Event) string {
	switch ev := e.(type) {
	case LocationEvent:
		return ev.SessionID
	case SnapshotEvent:
		return ev.Snapshot.SessionID
	case TripStartedEvent:
		return ev.SessionID
	case TripEndedEvent:
		return ev.SessionID
	case StopEventEvent:
		return ev.SessionID
	case ProximityAlertEvent:
		return ev.SessionID
	}
	return ""
}

// EventEnvelope is the bus encoding of an Event
type EventEnvelope struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeEvent marshals e with its kind
func EncodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Kind(), err)
	}
	return json.Marshal(EventEnvelope{Kind: e.Kind(), Data: data})
}

// DecodeEvent is the inverse of EncodeEvent
func DecodeEvent(b []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Kind {
	case EventKindLocation:
		ev, err = decodeAs[LocationEvent](env.Data)
	case EventKindSnapshot:
		ev, err = decodeAs[SnapshotEvent](env.Data)
	case EventKindTripStarted:
		ev, err = decodeAs[TripStartedEvent](env.Data)
	case EventKindTripEnded:
		ev, err = decodeAs[TripEndedEvent](env.Data)
	case EventKindStopEvent:
		ev, err = decodeAs[StopEventEvent](env.Data)
	case EventKindProximityAlert:
		ev, err = decodeAs[ProximityAlertEvent](env.Data)
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", env.Kind, err)
	}
	return ev, nil
}

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
