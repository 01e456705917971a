package models

import "encoding/json"

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Event     string          `json:"event"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// WSErrorMessage represents an error message sent over WebSocket
type WSErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSAck acknowledges a client request carrying a request_id
type WSAck struct {
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// TripStartPayload is the data of a trip:start request
type TripStartPayload struct {
	RouteID     string `json:"route_id" validate:"required"`
	SessionType string `json:"session_type" validate:"required,oneof=morning evening"`
}

// LocationUpdatePayload is the data of a location:update request
type LocationUpdatePayload struct {
	RouteID   string   `json:"route_id"`
	SessionID string   `json:"session_id" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Speed     *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading   float64  `json:"heading" validate:"gte=0,lte=360"`
	Accuracy  float64  `json:"accuracy" validate:"gte=0"`
	Timestamp int64    `json:"timestamp" validate:"required"`
}

// TripEndPayload is the data of a trip:end request
type TripEndPayload struct {
	SessionID string `json:"session_id" validate:"required"`
	Cancel    bool   `json:"cancel"`
}

// StopEventPayload is the data of a stop:event request
type StopEventPayload struct {
	SessionID       string `json:"session_id" validate:"required"`
	StopID          string `json:"stop_id" validate:"required"`
	EventType       string `json:"event_type" validate:"required,oneof=arrived departed"`
	StudentsBoarded *int   `json:"students_boarded" validate:"omitempty,gte=0"`
	Notes           string `json:"notes" validate:"max=500"`
}

// SubscribePayload is the data of a subscribe:bus or unsubscribe:bus request
type SubscribePayload struct {
	RouteID string `json:"route_id" validate:"required"`
	UserID  string `json:"user_id"`
}
