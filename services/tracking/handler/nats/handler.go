package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/piresc/schoolbus/internal/pkg/circuitbreaker"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
	natspkg "github.com/piresc/schoolbus/internal/pkg/nats"
	nrpkg "github.com/piresc/schoolbus/internal/pkg/newrelic"
	"github.com/piresc/schoolbus/services/tracking"
)

// RouteUpdated is published by the route admin service when a route or its
// stops change
type RouteUpdated struct {
	RouteID string `json:"route_id"`
}

// TrackingHandler consumes the event bus
type TrackingHandler struct {
	historyUC  tracking.HistoryUC
	natsClient *natspkg.Client
	consumer   *natspkg.Consumer
	subs       []*nats.Subscription
	nrApp      *newrelic.Application
	breaker    *circuitbreaker.CircuitBreaker
}

// NewTrackingHandler creates a new tracking NATS handler
func NewTrackingHandler(historyUC tracking.HistoryUC, client *natspkg.Client, nrApp *newrelic.Application) *TrackingHandler {
	return &TrackingHandler{
		historyUC:  historyUC,
		natsClient: client,
		nrApp:      nrApp,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig("history-store")),
	}
}

// InitNATSConsumers starts the durable history consumer and the route
// invalidation subscription
func (h *TrackingHandler) InitNATSConsumers(ctx context.Context) error {
	cfg := natspkg.DefaultConsumerConfig(constants.StreamTracking, constants.ConsumerTrackingHistory, constants.SubjectTrackingWildcard)
	logger.Info("Creating tracking history consumer",
		logger.String("stream", cfg.StreamName),
		logger.String("consumer", cfg.ConsumerName))

	consumer, err := natspkg.NewJetStreamConsumer(ctx, h.natsClient, cfg, h.handleTrackingEventJS)
	if err != nil {
		return fmt.Errorf("failed to start history consumer: %w", err)
	}
	h.consumer = consumer

	// every instance keeps its own route cache, so this is not a queue subscription
	sub, err := h.natsClient.Subscribe(constants.SubjectRouteUpdated, func(msg *nats.Msg) {
		if err := h.handleRouteUpdated(msg.Data); err != nil {
			logger.Warn("Ignoring route update", logger.ErrorField(err))
		}
	})
	if err != nil {
		h.consumer.Stop()
		return fmt.Errorf("failed to subscribe to route updates: %w", err)
	}
	h.subs = append(h.subs, sub)

	logger.Info("Successfully initialized NATS consumers for tracking service")
	return nil
}

// handleTrackingEventJS persists one bus event. Errors nak the message for redelivery.
func (h *TrackingHandler) handleTrackingEventJS(msg jetstream.Msg) error {
	ctx, txn := nrpkg.StartBackgroundTransaction(context.Background(), h.nrApp, "NATS."+constants.ConsumerTrackingHistory)
	if txn != nil {
		defer txn.End()
		txn.AddAttribute("subject", msg.Subject())
	}

	err := h.handleTrackingEvent(ctx, msg.Data())
	nrpkg.NoticeTransactionError(txn, err)
	return err
}

func (h *TrackingHandler) handleTrackingEvent(ctx context.Context, data []byte) error {
	ev, err := models.DecodeEvent(data)
	if err != nil {
		// poison message, redelivery cannot fix it
		logger.Error("Dropping undecodable tracking event", logger.ErrorField(err))
		return nil
	}

	// while the store is failing, hold redeliveries back until the next probe
	err = h.breaker.Execute(ctx, func(ctx context.Context) error {
		return h.historyUC.RecordEvent(ctx, ev)
	})
	if err != nil {
		if wait := h.breaker.RetryAfter(); wait > 0 {
			return natspkg.RetryAfter(err, wait)
		}
		return err
	}
	return nil
}

func (h *TrackingHandler) handleRouteUpdated(data []byte) error {
	var update RouteUpdated
	if err := json.Unmarshal(data, &update); err != nil {
		return fmt.Errorf("failed to unmarshal route update: %w", err)
	}
	if update.RouteID == "" {
		return fmt.Errorf("route update without route_id")
	}
	h.historyUC.InvalidateRoute(update.RouteID)
	return nil
}

// Close stops consuming
func (h *TrackingHandler) Close() {
	if h.consumer != nil {
		h.consumer.Stop()
	}
	for _, sub := range h.subs {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warn("Failed to unsubscribe", logger.String("subject", sub.Subject), logger.ErrorField(err))
		}
	}
	h.subs = nil
}
