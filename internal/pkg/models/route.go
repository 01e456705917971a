package models

import "time"

// Route is a bus route with its ordered stops. Routes are owned by the
// configuration store and are read-only to the tracking service.
type Route struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Capacity int    `json:"capacity" db:"capacity"`
	Active   bool   `json:"active" db:"active"`
	Stops    []Stop `json:"stops"`
}

// Stop is a pickup/drop-off point on a route
type Stop struct {
	ID            string        `json:"id" db:"id"`
	RouteID       string        `json:"route_id" db:"route_id"`
	Name          string        `json:"name" db:"name"`
	Order         int           `json:"order" db:"stop_order"`
	Latitude      float64       `json:"latitude" db:"latitude"`
	Longitude     float64       `json:"longitude" db:"longitude"`
	RadiusMeters  float64       `json:"radius_meters" db:"radius_meters"`
	ArrivalOffset time.Duration `json:"arrival_offset" db:"-"`
}

// StopIndex returns the position of the stop in the route order, or -1
func (r *Route) StopIndex(stopID string) int {
	for i := range r.Stops {
		if r.Stops[i].ID == stopID {
			return i
		}
	}
	return -1
}
