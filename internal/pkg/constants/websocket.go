package constants

// WebSocket event types
const (
	// Common events
	EventError = "error"
	EventPing  = "ping"
	EventPong  = "pong"
	EventAck   = "ack"

	// Driver requests
	EventTripStart      = "trip:start"
	EventTripEnd        = "trip:end"
	EventLocationUpdate = "location:update"
	EventStopEvent      = "stop:event"

	// Parent requests
	EventSubscribe   = "subscribe:bus"
	EventUnsubscribe = "unsubscribe:bus"
)

// User roles carried in the JWT
const (
	RoleDriver = "driver"
	RoleParent = "parent"
	RoleAdmin  = "admin"
)

// WebSocket error codes
const (
	ErrorInvalidFormat    = "invalid_format"
	ErrorUnknownEvent     = "unknown_event"
	ErrorValidationFailed = "validation_failed"
	ErrorUnauthorized     = "unauthorized"
	ErrorForbidden        = "forbidden"
	ErrorInternalError    = "internal_error"
)
