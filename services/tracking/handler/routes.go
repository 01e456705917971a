package handler

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/middleware"
	"github.com/piresc/schoolbus/internal/pkg/models"
	httpHandler "github.com/piresc/schoolbus/services/tracking/handler/http"
	natsHandler "github.com/piresc/schoolbus/services/tracking/handler/nats"
	wsHandler "github.com/piresc/schoolbus/services/tracking/handler/websocket"
)

// Handler coordinates all protocol handlers for the tracking service
type Handler struct {
	trackingHTTP *httpHandler.TrackingHandler
	trackingWS   *wsHandler.TrackingWSHandler
	trackingNATS *natsHandler.TrackingHandler
	cfg          *models.Config
}

// NewHandler creates and initializes all handlers
func NewHandler(
	trackingHTTP *httpHandler.TrackingHandler,
	trackingWS *wsHandler.TrackingWSHandler,
	trackingNATS *natsHandler.TrackingHandler,
	cfg *models.Config,
) *Handler {
	return &Handler{
		trackingHTTP: trackingHTTP,
		trackingWS:   trackingWS,
		trackingNATS: trackingNATS,
		cfg:          cfg,
	}
}

// RegisterRoutes registers the WebSocket endpoint, the REST read surface and
// the internal endpoints. The WebSocket handshake authenticates itself.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw *middleware.Middleware, redisClient *redis.Client) {
	e.GET("/ws", h.trackingWS.HandleWebSocket)

	apiMiddleware := []echo.MiddlewareFunc{
		middleware.JWTAuthMiddleware(h.cfg.JWT, constants.RoleDriver, constants.RoleParent, constants.RoleAdmin),
	}
	if redisClient != nil {
		apiMiddleware = append(apiMiddleware, middleware.UserRateLimiter(h.cfg.Server.RateLimit, redisClient))
	}
	api := e.Group("/api/v1", apiMiddleware...)
	api.GET("/routes/:id/snapshot", h.trackingHTTP.GetRouteSnapshot)
	api.GET("/sessions/:id", h.trackingHTTP.GetSession)

	internal := e.Group("/internal", mw.APIKeyHandler())
	internal.POST("/routes/:id/invalidate", h.trackingHTTP.InvalidateRoute)
}

// InitNATSConsumers initializes all NATS consumers
func (h *Handler) InitNATSConsumers(ctx context.Context) error {
	return h.trackingNATS.InitNATSConsumers(ctx)
}

// Close stops the NATS consumers
func (h *Handler) Close() {
	h.trackingNATS.Close()
}
