package constants

// Redis key formats
const (
	KeyRouteActiveSession = "route:active:%s"     // Format: route:active:{route_id} -> session id
	KeySessionPosition    = "session:position:%s" // Format: session:position:{session_id}
	KeyBusGeo             = "bus:geo"             // Geo set of every active bus keyed by route id
)

// Redis hash fields
const (
	FieldLatitude  = "lat"
	FieldLongitude = "lng"
	FieldSpeed     = "speed"
	FieldHeading   = "heading"
	FieldTimestamp = "ts"
	FieldSessionID = "session_id"
	FieldTarget    = "target_stop_id"
	FieldGeohash   = "geohash"
)
