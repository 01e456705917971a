package tracking

import (
	"context"

	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/services/tracking/subscription"
)

// TrackingUC is the driver and parent facing surface of the tracking core
type TrackingUC interface {
	// Driver lifecycle, idempotent under requestToken
	StartTrip(ctx context.Context, driverID string, req models.StartSessionRequest) (*models.Session, error)
	EndTrip(ctx context.Context, driverID, sessionID, requestToken string) (*models.Session, error)
	CancelTrip(ctx context.Context, driverID, sessionID, requestToken string) (*models.Session, error)
	RecordStopEvent(ctx context.Context, driverID string, req models.StopEventRequest) (*models.StopEvent, error)
	UpdateLocation(ctx context.Context, driverID string, update models.LocationUpdate) (models.IngestResult, error)

	// Parent subscriptions
	Subscribe(ctx context.Context, routeID, subscriberID string) (*subscription.Subscription, error)
	Unsubscribe(routeID, subscriberID string)
	Touch(subscriberID string)

	// Read surface
	RouteSnapshot(ctx context.Context, routeID string) (models.Snapshot, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// HistoryUC consumes the event bus into the history and snapshot stores
type HistoryUC interface {
	RecordEvent(ctx context.Context, event models.Event) error
	InvalidateRoute(routeID string)
}
