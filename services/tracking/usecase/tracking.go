package usecase

import (
	"context"
	"fmt"

	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/services/tracking"
	"github.com/piresc/schoolbus/services/tracking/ingest"
	"github.com/piresc/schoolbus/services/tracking/session"
	"github.com/piresc/schoolbus/services/tracking/subscription"
)

// TrackingUC implements the tracking.TrackingUC interface
type TrackingUC struct {
	routes   tracking.RouteRepo
	sessions *session.Manager
	ingestor *ingest.Ingestor
	registry *subscription.Registry
}

// NewTrackingUC creates a new tracking use case
func NewTrackingUC(
	routes tracking.RouteRepo,
	sessions *session.Manager,
	ingestor *ingest.Ingestor,
	registry *subscription.Registry,
) tracking.TrackingUC {
	return &TrackingUC{
		routes:   routes,
		sessions: sessions,
		ingestor: ingestor,
		registry: registry,
	}
}

// StartTrip starts a session driven by driverID
func (uc *TrackingUC) StartTrip(ctx context.Context, driverID string, req models.StartSessionRequest) (*models.Session, error) {
	req.DriverID = driverID
	s, err := uc.sessions.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.DriverID != driverID {
		// replayed token of another driver
		return nil, apperrors.NewNotFound("session", s.ID)
	}
	return s, nil
}

// EndTrip completes the caller's session
func (uc *TrackingUC) EndTrip(ctx context.Context, driverID, sessionID, requestToken string) (*models.Session, error) {
	if err := uc.checkOwner(driverID, sessionID); err != nil {
		return nil, err
	}
	return uc.sessions.End(ctx, sessionID, requestToken)
}

// CancelTrip cancels the caller's session
func (uc *TrackingUC) CancelTrip(ctx context.Context, driverID, sessionID, requestToken string) (*models.Session, error) {
	if err := uc.checkOwner(driverID, sessionID); err != nil {
		return nil, err
	}
	return uc.sessions.Cancel(ctx, sessionID, requestToken)
}

// RecordStopEvent applies a driver reported arrival or departure
func (uc *TrackingUC) RecordStopEvent(ctx context.Context, driverID string, req models.StopEventRequest) (*models.StopEvent, error) {
	if err := uc.checkOwner(driverID, req.SessionID); err != nil {
		return nil, err
	}
	ev, err := uc.sessions.RecordStopEvent(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "Driver stop event recorded",
		logger.SessionID(ev.SessionID),
		logger.StopID(ev.StopID),
		logger.String("type", string(ev.Type)))
	return ev, nil
}

// UpdateLocation admits one ping from the driver of the session
func (uc *TrackingUC) UpdateLocation(ctx context.Context, driverID string, update models.LocationUpdate) (models.IngestResult, error) {
	if err := uc.checkOwner(driverID, update.SessionID); err != nil {
		return models.IngestResult{Status: models.IngestRejected, Reason: err.Error()}, err
	}
	return uc.ingestor.Ingest(ctx, update)
}

// Subscribe registers subscriberID on an existing route
func (uc *TrackingUC) Subscribe(ctx context.Context, routeID, subscriberID string) (*subscription.Subscription, error) {
	if subscriberID == "" {
		return nil, &apperrors.ValidationError{Field: "user_id", Reason: "required"}
	}
	if _, err := uc.getRoute(ctx, routeID); err != nil {
		return nil, err
	}
	return uc.registry.Subscribe(routeID, subscriberID), nil
}

// Unsubscribe removes only the named subscription
func (uc *TrackingUC) Unsubscribe(routeID, subscriberID string) {
	uc.registry.Unsubscribe(routeID, subscriberID)
}

// Touch marks every subscription of subscriberID as alive
func (uc *TrackingUC) Touch(subscriberID string) {
	uc.registry.Touch(subscriberID)
}

// RouteSnapshot returns the state a new subscriber of the route would receive
func (uc *TrackingUC) RouteSnapshot(ctx context.Context, routeID string) (models.Snapshot, error) {
	if _, err := uc.getRoute(ctx, routeID); err != nil {
		return models.Snapshot{}, err
	}
	return uc.sessions.ActiveSnapshot(routeID), nil
}

// GetSession returns the live session
func (uc *TrackingUC) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return uc.sessions.Get(sessionID)
}

func (uc *TrackingUC) getRoute(ctx context.Context, routeID string) (*models.Route, error) {
	if routeID == "" {
		return nil, &apperrors.ValidationError{Field: "route_id", Reason: "required"}
	}
	route, err := uc.routes.GetRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get route %s: %w", routeID, err)
	}
	if route == nil {
		return nil, apperrors.NewNotFound("route", routeID)
	}
	return route, nil
}

// checkOwner hides sessions of other drivers behind NotFound
func (uc *TrackingUC) checkOwner(driverID, sessionID string) error {
	if sessionID == "" {
		return &apperrors.ValidationError{Field: "session_id", Reason: "required"}
	}
	s, err := uc.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if s.DriverID != driverID {
		return apperrors.NewNotFound("session", sessionID)
	}
	return nil
}
