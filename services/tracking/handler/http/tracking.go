package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	nrpkg "github.com/piresc/schoolbus/internal/pkg/newrelic"
	"github.com/piresc/schoolbus/internal/utils"
	"github.com/piresc/schoolbus/services/tracking"
)

// TrackingHandler serves the REST read surface of the tracking core
type TrackingHandler struct {
	trackingUC tracking.TrackingUC
	historyUC  tracking.HistoryUC
}

// NewTrackingHandler creates a new tracking HTTP handler
func NewTrackingHandler(trackingUC tracking.TrackingUC, historyUC tracking.HistoryUC) *TrackingHandler {
	return &TrackingHandler{
		trackingUC: trackingUC,
		historyUC:  historyUC,
	}
}

// GetRouteSnapshot returns the snapshot a new subscriber of the route would receive
func (h *TrackingHandler) GetRouteSnapshot(c echo.Context) error {
	txn := nrpkg.FromEchoContext(c)
	nrpkg.SetTransactionName(txn, "Tracking.GetRouteSnapshot")

	routeID := c.Param("id")
	if routeID == "" {
		return utils.BadRequestResponse(c, "Route ID is required")
	}
	nrpkg.AddTransactionAttribute(txn, "route_id", routeID)

	snapshot, err := h.trackingUC.RouteSnapshot(c.Request().Context(), routeID)
	if err != nil {
		if apperrors.Code(err) == apperrors.CodeInternal {
			logger.ErrorCtx(c.Request().Context(), "Failed to build route snapshot",
				logger.RouteID(routeID),
				logger.ErrorField(err))
			nrpkg.NoticeTransactionError(txn, err)
		}
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, http.StatusOK, "Route snapshot retrieved successfully", snapshot)
}

// GetSession returns the live session
func (h *TrackingHandler) GetSession(c echo.Context) error {
	txn := nrpkg.FromEchoContext(c)
	nrpkg.SetTransactionName(txn, "Tracking.GetSession")

	sessionID := c.Param("id")
	if sessionID == "" {
		return utils.BadRequestResponse(c, "Session ID is required")
	}

	session, err := h.trackingUC.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, http.StatusOK, "Session retrieved successfully", session)
}

// InvalidateRoute drops the cached route so the next lookup reads Postgres
func (h *TrackingHandler) InvalidateRoute(c echo.Context) error {
	routeID := c.Param("id")
	if routeID == "" {
		return utils.BadRequestResponse(c, "Route ID is required")
	}

	h.historyUC.InvalidateRoute(routeID)
	logger.InfoCtx(c.Request().Context(), "Route cache invalidated",
		logger.RouteID(routeID),
		logger.String("api_caller", c.RealIP()))

	return utils.SuccessResponse(c, http.StatusAccepted, "Route cache invalidated", nil)
}
