package constants

// NATS Subjects
const (
	// Tracking events, format: tracking.{kind}.{route_id}
	SubjectTrackingEvent    = "tracking.%s.%s"
	SubjectTrackingWildcard = "tracking.>"

	// Route configuration changes published by the route admin service
	SubjectRouteUpdated = "route.updated"
)

// JetStream; the durable history consumer is shared by every tracking instance
const (
	StreamTracking          = "TRACKING"
	ConsumerTrackingHistory = "tracking-history"
)
