package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
	ws "github.com/piresc/schoolbus/internal/pkg/websocket"
	"github.com/piresc/schoolbus/services/tracking"
	"github.com/piresc/schoolbus/services/tracking/subscription"
)

// Config holds the keepalive settings of a tracking connection
type Config struct {
	PingInterval time.Duration
	IdleTimeout  time.Duration
}

// TrackingWSHandler serves driver and parent WebSocket connections
type TrackingWSHandler struct {
	trackingUC tracking.TrackingUC
	manager    *ws.Manager
	validate   *validator.Validate
	cfg        Config
}

// NewTrackingWSHandler creates a new tracking websocket handler
func NewTrackingWSHandler(trackingUC tracking.TrackingUC, manager *ws.Manager, cfg Config) *TrackingWSHandler {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = models.DefaultTrackingConfig().IdleTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = cfg.IdleTimeout / 3
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &TrackingWSHandler{
		trackingUC: trackingUC,
		manager:    manager,
		validate:   v,
		cfg:        cfg,
	}
}

// HandleWebSocket upgrades an authenticated driver, parent or admin connection
func (h *TrackingWSHandler) HandleWebSocket(c echo.Context) error {
	return h.manager.HandleConnection(c,
		[]string{constants.RoleDriver, constants.RoleParent, constants.RoleAdmin},
		h.serveClient)
}

// conn is the per-connection state: the route streams being pumped to the client
type conn struct {
	client       *ws.Client
	subscriberID string

	ctx    context.Context
	mu     sync.Mutex
	pumps  map[string]*subscription.Subscription
	pumpWG sync.WaitGroup
}

func (h *TrackingWSHandler) serveClient(client *ws.Client) error {
	ctx, cancel := context.WithCancel(context.Background())
	cn := &conn{
		client:       client,
		subscriberID: client.UserID + "/" + client.ID,
		ctx:          ctx,
		pumps:        make(map[string]*subscription.Subscription),
	}
	defer func() {
		cancel()
		h.unsubscribeAll(cn)
		cn.pumpWG.Wait()
	}()

	alive := func() {
		_ = client.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		h.trackingUC.Touch(cn.subscriberID)
	}
	alive()
	client.SetPongHandler(alive)

	go h.keepalive(ctx, client)

	for {
		msg, err := client.ReadMessage()
		if err != nil {
			if ws.IsDecodeError(err) {
				_ = client.SendError("", constants.ErrorInvalidFormat, "Invalid message format")
				continue
			}
			if ws.IsUnexpectedClose(err) {
				logger.Warn("WebSocket connection closed unexpectedly",
					logger.String("user_id", client.UserID),
					logger.ErrorField(err))
			} else {
				logger.Info("WebSocket client disconnected",
					logger.String("user_id", client.UserID))
			}
			return nil
		}

		alive()
		h.handleMessage(ctx, cn, msg)
	}
}

func (h *TrackingWSHandler) keepalive(ctx context.Context, client *ws.Client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}

func (h *TrackingWSHandler) handleMessage(ctx context.Context, cn *conn, msg models.WSMessage) {
	client := cn.client

	if required := requiredRoles(msg.Event); required != nil && !allowed(required, client.Role) {
		h.sendAck(client, msg.RequestID, models.WSAck{
			Code:    constants.ErrorForbidden,
			Message: "Role " + client.Role + " cannot send " + msg.Event,
		})
		return
	}

	switch msg.Event {
	case constants.EventPing:
		_ = client.Send(constants.EventPong, msg.RequestID, nil)
	case constants.EventTripStart:
		h.handleTripStart(ctx, client, msg)
	case constants.EventTripEnd:
		h.handleTripEnd(ctx, client, msg)
	case constants.EventLocationUpdate:
		h.handleLocationUpdate(ctx, client, msg)
	case constants.EventStopEvent:
		h.handleStopEvent(ctx, client, msg)
	case constants.EventSubscribe:
		h.handleSubscribe(ctx, cn, msg)
	case constants.EventUnsubscribe:
		h.handleUnsubscribe(cn, msg)
	default:
		_ = client.SendError(msg.RequestID, constants.ErrorUnknownEvent, "Unknown event type: "+msg.Event)
	}
}

func requiredRoles(event string) []string {
	switch event {
	case constants.EventTripStart, constants.EventTripEnd, constants.EventLocationUpdate, constants.EventStopEvent:
		return []string{constants.RoleDriver, constants.RoleAdmin}
	case constants.EventSubscribe, constants.EventUnsubscribe:
		return []string{constants.RoleParent, constants.RoleAdmin}
	}
	return nil
}

func allowed(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (h *TrackingWSHandler) handleTripStart(ctx context.Context, client *ws.Client, msg models.WSMessage) {
	var req models.TripStartPayload
	if err := h.decode(msg.Data, &req); err != nil {
		h.sendErrorAck(client, msg.RequestID, err)
		return
	}

	session, err := h.trackingUC.StartTrip(ctx, client.UserID, models.StartSessionRequest{
		RouteID:      req.RouteID,
		Type:         models.SessionType(req.SessionType),
		RequestToken: msg.RequestID,
	})
	if err != nil {
		ack := errorAck(err)
		var dup *apperrors.DuplicateSessionError
		if errors.As(err, &dup) {
			ack.SessionID = dup.ExistingSessionID
		}
		h.sendAck(client, msg.RequestID, ack)
		return
	}

	h.sendAck(client, msg.RequestID, models.WSAck{
		OK:        true,
		SessionID: session.ID,
		Status:    string(session.Status),
	})
}

func (h *TrackingWSHandler) handleTripEnd(ctx context.Context, client *ws.Client, msg models.WSMessage) {
	var req models.TripEndPayload
	if err := h.decode(msg.Data, &req); err != nil {
		h.sendErrorAck(client, msg.RequestID, err)
		return
	}

	var (
		session *models.Session
		err     error
	)
	if req.Cancel {
		session, err = h.trackingUC.CancelTrip(ctx, client.UserID, req.SessionID, msg.RequestID)
	} else {
		session, err = h.trackingUC.EndTrip(ctx, client.UserID, req.SessionID, msg.RequestID)
	}
	if err != nil {
		h.sendErrorAck(client, msg.RequestID, err)
		return
	}

	h.sendAck(client, msg.RequestID, models.WSAck{
		OK:        true,
		SessionID: session.ID,
		Status:    string(session.Status),
	})
}

func (h *TrackingWSHandler) handleLocationUpdate(ctx context.Context, client *ws.Client, msg models.WSMessage) {
	var req models.LocationUpdatePayload
	if err := h.decode(msg.Data, &req); err != nil {
		h.sendErrorAck(client, msg.RequestID, err)
		return
	}

	point := models.LocationPoint{
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		Heading:      req.Heading,
		Accuracy:     req.Accuracy,
		Timestamp:    models.FromUnixMillis(req.Timestamp),
		SpeedMissing: req.Speed == nil,
	}
	if req.Speed != nil {
		point.Speed = *req.Speed
	}
	res, err := h.trackingUC.UpdateLocation(ctx, client.UserID, models.LocationUpdate{
		RouteID:   req.RouteID,
		SessionID: req.SessionID,
		Point:     point,
	})
	if err != nil {
		ack := errorAck(err)
		ack.SessionID = req.SessionID
		ack.Status = string(models.IngestRejected)
		h.sendAck(client, msg.RequestID, ack)
		return
	}

	h.sendAck(client, msg.RequestID, models.WSAck{
		OK:        true,
		SessionID: req.SessionID,
		Status:    string(res.Status),
		Message:   res.Reason,
	})
}

func (h *TrackingWSHandler) handleStopEvent(ctx context.Context, client *ws.Client, msg models.WSMessage) {
	var req models.StopEventPayload
	if err := h.decode(msg.Data, &req); err != nil {
		h.sendErrorAck(client, msg.RequestID, err)
		return
	}

	ev, err := h.trackingUC.RecordStopEvent(ctx, client.UserID, models.StopEventRequest{
		SessionID:       req.SessionID,
		StopID:          req.StopID,
		Type:            models.StopEventType(req.EventType),
		StudentsBoarded: req.StudentsBoarded,
		Notes:           req.Notes,
		RequestToken:    msg.RequestID,
	})
	if err != nil {
		h.sendErrorAck(client, msg.RequestID, err)
		return
	}

	h.sendAck(client, msg.RequestID, models.WSAck{
		OK:        true,
		SessionID: ev.SessionID,
		Status:    string(ev.Type),
	})
}

func (h *TrackingWSHandler) handleSubscribe(ctx context.Context, cn *conn, msg models.WSMessage) {
	client := cn.client

	var req models.SubscribePayload
	if err := h.decode(msg.Data, &req); err != nil {
		h.sendErrorAck(client, msg.RequestID, err)
		return
	}
	if req.UserID != "" && req.UserID != client.UserID && client.Role != constants.RoleAdmin {
		h.sendAck(client, msg.RequestID, models.WSAck{
			Code:    constants.ErrorForbidden,
			Message: "Cannot subscribe on behalf of another user",
		})
		return
	}

	sub, err := h.trackingUC.Subscribe(ctx, req.RouteID, cn.subscriberID)
	if err != nil {
		h.sendErrorAck(client, msg.RequestID, err)
		return
	}

	h.sendAck(client, msg.RequestID, models.WSAck{OK: true, Status: "subscribed"})

	// The snapshot goes out before anything queued on the stream
	initial := models.SnapshotEvent{Snapshot: sub.Initial}
	if err := client.Send(string(initial.Kind()), "", initial); err != nil {
		logger.Warn("Failed to send route snapshot",
			logger.SubscriberID(cn.subscriberID),
			logger.RouteID(req.RouteID),
			logger.ErrorField(err))
	}

	cn.mu.Lock()
	cn.pumps[req.RouteID] = sub
	cn.mu.Unlock()

	cn.pumpWG.Add(1)
	go func() {
		defer cn.pumpWG.Done()
		h.pump(cn, sub)
	}()

	logger.Info("Subscriber joined route",
		logger.SubscriberID(cn.subscriberID),
		logger.RouteID(req.RouteID))
}

func (h *TrackingWSHandler) pump(cn *conn, sub *subscription.Subscription) {
	defer func() {
		cn.mu.Lock()
		if cn.pumps[sub.RouteID] == sub {
			delete(cn.pumps, sub.RouteID)
		}
		cn.mu.Unlock()
	}()

	for {
		select {
		case <-cn.ctx.Done():
			return
		case <-sub.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := cn.client.Send(string(ev.Kind()), "", ev); err != nil {
				logger.Warn("Failed to forward event to subscriber",
					logger.SubscriberID(cn.subscriberID),
					logger.RouteID(sub.RouteID),
					logger.ErrorField(err))
				return
			}
		}
	}
}

func (h *TrackingWSHandler) handleUnsubscribe(cn *conn, msg models.WSMessage) {
	var req models.SubscribePayload
	if err := h.decode(msg.Data, &req); err != nil {
		h.sendErrorAck(cn.client, msg.RequestID, err)
		return
	}

	h.trackingUC.Unsubscribe(req.RouteID, cn.subscriberID)
	h.sendAck(cn.client, msg.RequestID, models.WSAck{OK: true, Status: "unsubscribed"})
}

func (h *TrackingWSHandler) unsubscribeAll(cn *conn) {
	cn.mu.Lock()
	routes := make([]string, 0, len(cn.pumps))
	for routeID := range cn.pumps {
		routes = append(routes, routeID)
	}
	cn.mu.Unlock()

	for _, routeID := range routes {
		h.trackingUC.Unsubscribe(routeID, cn.subscriberID)
	}
}

func (h *TrackingWSHandler) decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return &apperrors.ValidationError{Field: "data", Reason: "missing payload"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &apperrors.ValidationError{Field: "data", Reason: "invalid payload"}
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			reason := fe.Tag()
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			return &apperrors.ValidationError{Field: fe.Field(), Reason: reason}
		}
		return &apperrors.ValidationError{Reason: err.Error()}
	}
	return nil
}

func errorAck(err error) models.WSAck {
	code := apperrors.Code(err)
	msg := err.Error()
	if code == apperrors.CodeInternal {
		msg = "Internal server error"
	}
	return models.WSAck{OK: false, Code: code, Message: msg}
}

func (h *TrackingWSHandler) sendErrorAck(client *ws.Client, requestID string, err error) {
	if apperrors.Code(err) == apperrors.CodeInternal {
		logger.Error("Tracking request failed",
			logger.String("user_id", client.UserID),
			logger.ErrorField(err))
	}
	h.sendAck(client, requestID, errorAck(err))
}

func (h *TrackingWSHandler) sendAck(client *ws.Client, requestID string, ack models.WSAck) {
	if err := client.Send(constants.EventAck, requestID, ack); err != nil {
		logger.Warn("Failed to send ack",
			logger.String("user_id", client.UserID),
			logger.ErrorField(err))
	}
}
