// Package broadcast fans tracking events out to route subscribers and
// forwards them to the event bus.
package broadcast

import (
	"context"

	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/services/tracking"
)

// Fanout delivers an event to the local subscribers of its route
type Fanout interface {
	Broadcast(ev models.Event) (delivered, dropped int)
}

// Metrics records broadcast outcomes
type Metrics interface {
	ObserveBroadcast(kind string, delivered, dropped int)
	ObserveForwardError()
	ObserveAlert(threshold string)
	ObserveStopEvent(eventType, source string)
}

// Broadcaster is called by the session writer in emission order. It never
// blocks on subscribers; forwarding errors are logged and counted.
type Broadcaster struct {
	fanout  Fanout
	gw      tracking.EventGW
	metrics Metrics
}

// NewBroadcaster creates a broadcaster. gw and metrics may be nil.
func NewBroadcaster(fanout Fanout, gw tracking.EventGW, metrics Metrics) *Broadcaster {
	return &Broadcaster{fanout: fanout, gw: gw, metrics: metrics}
}

// Publish fans ev out and forwards it
func (b *Broadcaster) Publish(ctx context.Context, ev models.Event) {
	delivered, dropped := b.fanout.Broadcast(ev)
	if dropped > 0 {
		logger.Debug("Subscriber queue full, dropped oldest event",
			logger.RouteID(ev.Route()),
			logger.String("kind", string(ev.Kind())),
			logger.Int("dropped", dropped))
	}

	if b.metrics != nil {
		b.metrics.ObserveBroadcast(string(ev.Kind()), delivered, dropped)
		switch e := ev.(type) {
		case models.ProximityAlertEvent:
			b.metrics.ObserveAlert(string(e.ThresholdType))
		case models.StopEventEvent:
			b.metrics.ObserveStopEvent(string(e.Type), string(e.Source))
		}
	}

	if b.gw == nil {
		return
	}
	if err := b.gw.PublishEvent(ctx, ev); err != nil {
		if b.metrics != nil {
			b.metrics.ObserveForwardError()
		}
		logger.WarnCtx(ctx, "Failed to forward tracking event",
			logger.RouteID(ev.Route()),
			logger.SessionID(models.EventSession(ev)),
			logger.String("kind", string(ev.Kind())),
			logger.Err(err))
	}
}
