package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/models"
	natspkg "github.com/piresc/schoolbus/internal/pkg/nats"
	"github.com/piresc/schoolbus/services/tracking"
)

// Publisher is the part of the NATS client the gateway needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// StreamEnsurer creates JetStream streams
type StreamEnsurer interface {
	EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// EventGW publishes tracking events on NATS. Publishing is buffered by the
// connection and never waits for the server.
type EventGW struct {
	publisher Publisher
}

// NewEventGW creates a new event gateway
func NewEventGW(publisher Publisher) tracking.EventGW {
	return &EventGW{publisher: publisher}
}

var subjectToken = strings.NewReplacer(":", ".", " ", "_", "*", "_", ">", "_")
var routeToken = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// Subject returns the subject of ev: tracking.<kind>.<route>, with the
// kind's colon turned into a token separator
func Subject(ev models.Event) string {
	return fmt.Sprintf(constants.SubjectTrackingEvent, subjectToken.Replace(string(ev.Kind())), routeToken.Replace(ev.Route()))
}

// PublishEvent encodes and publishes ev
func (g *EventGW) PublishEvent(ctx context.Context, ev models.Event) error {
	data, err := models.EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := g.publisher.Publish(Subject(ev), data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Kind(), err)
	}
	return nil
}

// EnsureTrackingStream creates the stream capturing every tracking event
func EnsureTrackingStream(ctx context.Context, ensurer StreamEnsurer, maxAge time.Duration) error {
	cfg := natspkg.NewStreamConfigBuilder(constants.StreamTracking).
		WithSubjects(constants.SubjectTrackingWildcard).
		WithMaxAge(maxAge).
		Build()
	_, err := ensurer.EnsureStream(ctx, cfg)
	return err
}
