package tracking

import (
	"context"

	"github.com/piresc/schoolbus/internal/pkg/models"
)

// RouteRepo reads route configuration. Routes are owned by the route admin
// service; the tracking core never writes them.
type RouteRepo interface {
	GetRoute(ctx context.Context, routeID string) (*models.Route, error)
}

// HistoryRepo appends the session timeline to the history store
type HistoryRepo interface {
	SaveSession(ctx context.Context, session *models.Session) error
	AppendLocation(ctx context.Context, sessionID, routeID string, point models.LocationPoint) error
	AppendStopEvent(ctx context.Context, event models.StopEvent) error
	AppendProximityAlert(ctx context.Context, alert models.ProximityAlert) error
}

// SnapshotRepo keeps the live per-route state read by the active-session lookup
type SnapshotRepo interface {
	SetActiveSession(ctx context.Context, routeID, sessionID string) error
	ClearActiveSession(ctx context.Context, routeID, sessionID string) error
	GetActiveSession(ctx context.Context, routeID string) (string, error)
	StorePosition(ctx context.Context, routeID, sessionID string, point models.LocationPoint) error
	NearbyRoutes(ctx context.Context, lat, lon, radiusMeters float64) ([]string, error)
}
