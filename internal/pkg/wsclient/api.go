package wsclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/models"
)

// Typed decodes a tracking event into its models.Event implementation.
// Client-local kinds such as KindReconnected return an error.
func (e Event) Typed() (models.Event, error) {
	b, err := json.Marshal(models.EventEnvelope{Kind: models.EventKind(e.Kind), Data: e.Data})
	if err != nil {
		return nil, err
	}
	return models.DecodeEvent(b)
}

// StartTrip starts a session on routeID and returns its id. A retried
// attempt reuses the request id, so a lost ack never starts a second session.
func (c *Client) StartTrip(ctx context.Context, routeID string, sessionType models.SessionType) (string, error) {
	ack, err := c.Request(ctx, constants.EventTripStart, models.TripStartPayload{
		RouteID:     routeID,
		SessionType: string(sessionType),
	})
	if err != nil {
		return ack.SessionID, err
	}
	return ack.SessionID, nil
}

// EndTrip completes the session, or cancels it when cancel is set
func (c *Client) EndTrip(ctx context.Context, sessionID string, cancel bool) error {
	_, err := c.Request(ctx, constants.EventTripEnd, models.TripEndPayload{SessionID: sessionID, Cancel: cancel})
	return err
}

// UpdateLocation reports one fix. It is sent once: a resend of the same
// timestamp would only be rejected as stale.
func (c *Client) UpdateLocation(ctx context.Context, payload models.LocationUpdatePayload) (models.WSAck, error) {
	return c.request(ctx, c.once, constants.EventLocationUpdate, payload)
}

// RecordStopEvent reports an arrival or departure at a stop
func (c *Client) RecordStopEvent(ctx context.Context, payload models.StopEventPayload) error {
	_, err := c.Request(ctx, constants.EventStopEvent, payload)
	return err
}

// Subscribe starts receiving events for routeID. The current snapshot
// arrives on Events as location:current. The route is re-subscribed
// after every reconnect until Unsubscribe.
func (c *Client) Subscribe(ctx context.Context, routeID string) error {
	if _, err := c.Request(ctx, constants.EventSubscribe, models.SubscribePayload{RouteID: routeID}); err != nil {
		return fmt.Errorf("subscribe %s: %w", routeID, err)
	}
	c.mu.Lock()
	c.routes[routeID] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Unsubscribe stops receiving events for routeID
func (c *Client) Unsubscribe(ctx context.Context, routeID string) error {
	c.mu.Lock()
	delete(c.routes, routeID)
	c.mu.Unlock()

	if _, err := c.Request(ctx, constants.EventUnsubscribe, models.SubscribePayload{RouteID: routeID}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", routeID, err)
	}
	return nil
}

// Ping round-trips an application-level ping
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, c.once, constants.EventPing, struct{}{})
	return err
}

// Subscriptions returns the routes restored on reconnect
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	routes := make([]string, 0, len(c.routes))
	for routeID := range c.routes {
		routes = append(routes, routeID)
	}
	return routes
}
