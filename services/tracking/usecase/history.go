package usecase

import (
	"context"
	"fmt"

	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/services/tracking"
)

// RouteInvalidator drops cached route configuration
type RouteInvalidator interface {
	Invalidate(routeID string)
}

// HistoryMetrics records history store writes
type HistoryMetrics interface {
	ObserveHistoryWrite(kind string, err error)
}

// HistoryUC implements the tracking.HistoryUC interface
type HistoryUC struct {
	history   tracking.HistoryRepo
	snapshots tracking.SnapshotRepo
	routes    RouteInvalidator
	metrics   HistoryMetrics
}

// NewHistoryUC creates a new history use case. routes and metrics may be nil.
func NewHistoryUC(history tracking.HistoryRepo, snapshots tracking.SnapshotRepo, routes RouteInvalidator, metrics HistoryMetrics) tracking.HistoryUC {
	return &HistoryUC{
		history:   history,
		snapshots: snapshots,
		routes:    routes,
		metrics:   metrics,
	}
}

// RecordEvent appends event to the history store and refreshes the live
// snapshot store
func (uc *HistoryUC) RecordEvent(ctx context.Context, event models.Event) error {
	err := uc.record(ctx, event)
	if uc.metrics != nil {
		uc.metrics.ObserveHistoryWrite(string(event.Kind()), err)
	}
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to record tracking event",
			logger.String("kind", string(event.Kind())),
			logger.RouteID(event.Route()),
			logger.ErrorField(err))
	}
	return err
}

func (uc *HistoryUC) record(ctx context.Context, event models.Event) error {
	switch e := event.(type) {
	case models.TripStartedEvent:
		startedAt := e.StartedAt
		if err := uc.history.SaveSession(ctx, &models.Session{
			ID:        e.SessionID,
			RouteID:   e.RouteID,
			DriverID:  e.DriverID,
			Type:      e.SessionType,
			Status:    models.SessionStatusActive,
			CreatedAt: e.StartedAt,
			StartedAt: &startedAt,
		}); err != nil {
			return fmt.Errorf("failed to save started session: %w", err)
		}
		if err := uc.snapshots.SetActiveSession(ctx, e.RouteID, e.SessionID); err != nil {
			return fmt.Errorf("failed to set active session: %w", err)
		}

	case models.TripEndedEvent:
		endedAt := e.EndedAt
		if err := uc.history.SaveSession(ctx, &models.Session{
			ID:      e.SessionID,
			RouteID: e.RouteID,
			Status:  e.Status,
			EndedAt: &endedAt,
		}); err != nil {
			return fmt.Errorf("failed to save ended session: %w", err)
		}
		if err := uc.snapshots.ClearActiveSession(ctx, e.RouteID, e.SessionID); err != nil {
			return fmt.Errorf("failed to clear active session: %w", err)
		}

	case models.LocationEvent:
		if err := uc.history.AppendLocation(ctx, e.SessionID, e.RouteID, e.Point); err != nil {
			return fmt.Errorf("failed to append location: %w", err)
		}
		if err := uc.snapshots.StorePosition(ctx, e.RouteID, e.SessionID, e.Point); err != nil {
			return fmt.Errorf("failed to store position: %w", err)
		}

	case models.StopEventEvent:
		if err := uc.history.AppendStopEvent(ctx, e.StopEvent); err != nil {
			return fmt.Errorf("failed to append stop event: %w", err)
		}

	case models.ProximityAlertEvent:
		if err := uc.history.AppendProximityAlert(ctx, e.ProximityAlert); err != nil {
			return fmt.Errorf("failed to append proximity alert: %w", err)
		}

	case models.SnapshotEvent:
		// derived state, nothing to persist
	}
	return nil
}

// InvalidateRoute drops the cached configuration of routeID
func (uc *HistoryUC) InvalidateRoute(routeID string) {
	if uc.routes == nil {
		return
	}
	uc.routes.Invalidate(routeID)
	logger.Info("Route configuration invalidated", logger.RouteID(routeID))
}
