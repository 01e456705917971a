package tracking

import (
	"context"

	"github.com/piresc/schoolbus/internal/pkg/models"
)

// EventGW forwards tracking events to the event bus
type EventGW interface {
	PublishEvent(ctx context.Context, event models.Event) error
}
