// Package ingest admits driver pings into session timelines.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/internal/utils"
	"github.com/piresc/schoolbus/services/tracking/session"
)

// Metrics records the outcome of every ping
type Metrics interface {
	ObservePoint(status string, d time.Duration)
}

// Config holds the ingest thresholds
type Config struct {
	MaxAccuracyMeters float64
	MinInterval       time.Duration
}

// ConfigFrom extracts the ingest settings from the tracking config
func ConfigFrom(cfg models.TrackingConfig) Config {
	return Config{
		MaxAccuracyMeters: cfg.MaxAccuracyMeters,
		MinInterval:       cfg.MinInterval,
	}
}

// Ingestor validates pings and applies them through the session manager.
// Pings arriving within MinInterval of the last applied one replace a single
// pending slot which is flushed when the interval elapses.
type Ingestor struct {
	cfg      Config
	sessions *session.Manager
	metrics  Metrics
	now      func() time.Time
}

// Option customizes an Ingestor
type Option func(*Ingestor)

// WithClock replaces the receipt clock used for interval checks
func WithClock(now func() time.Time) Option {
	return func(in *Ingestor) { in.now = now }
}

type nopMetrics struct{}

func (nopMetrics) ObservePoint(string, time.Duration) {}

// NewIngestor creates an ingestor. metrics may be nil.
func NewIngestor(cfg Config, sessions *session.Manager, metrics Metrics, opts ...Option) *Ingestor {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	in := &Ingestor{
		cfg:      cfg,
		sessions: sessions,
		metrics:  metrics,
		now:      models.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest validates and admits one ping. Dropped pings return a nil error;
// every rejection returns a typed error alongside the rejected result.
func (in *Ingestor) Ingest(ctx context.Context, update models.LocationUpdate) (models.IngestResult, error) {
	start := time.Now()
	res, err := in.ingest(ctx, update)
	in.metrics.ObservePoint(string(res.Status), time.Since(start))
	return res, err
}

func (in *Ingestor) ingest(ctx context.Context, update models.LocationUpdate) (models.IngestResult, error) {
	point := update.Point
	if !utils.ValidCoordinates(point.Latitude, point.Longitude) {
		return rejected(&apperrors.ValidationError{
			Field:  "coordinates",
			Reason: fmt.Sprintf("latitude %.6f / longitude %.6f out of range", point.Latitude, point.Longitude),
		})
	}
	if point.Timestamp.IsZero() {
		return rejected(&apperrors.ValidationError{Field: "timestamp", Reason: "required"})
	}

	status := models.IngestAccepted
	var reason string
	err := in.sessions.Update(ctx, update.SessionID, func(tx *session.Tx) error {
		if err := tx.RequireActive("record position"); err != nil {
			return err
		}
		if update.RouteID != "" && update.RouteID != tx.RouteID() {
			return &apperrors.ValidationError{Field: "route_id", Reason: "session " + tx.SessionID() + " is not on route " + update.RouteID}
		}
		if in.cfg.MaxAccuracyMeters > 0 && point.Accuracy > in.cfg.MaxAccuracyMeters {
			status = models.IngestDropped
			reason = fmt.Sprintf("accuracy %.0fm exceeds %.0fm", point.Accuracy, in.cfg.MaxAccuracyMeters)
			return nil
		}
		if err := tx.CheckFresh(point.Timestamp); err != nil {
			return err
		}

		st := tx.IngestState()
		if st.Pending != nil && !point.Timestamp.After(st.Pending.Timestamp) {
			return &apperrors.StaleUpdateError{SessionID: tx.SessionID(), Got: point.Timestamp.UnixMilli(), Last: st.Pending.Timestamp.UnixMilli()}
		}

		now := in.now()
		since := now.Sub(st.LastAcceptedAt)
		if st.LastAcceptedAt.IsZero() || since >= in.cfg.MinInterval {
			if st.Timer != nil {
				st.Timer.Stop()
				st.Timer = nil
			}
			st.Pending = nil
			st.LastAcceptedAt = now
			return apply(tx, point)
		}

		p := point
		st.Pending = &p
		if st.Timer == nil {
			sessionID := tx.SessionID()
			var timer *time.Timer
			timer = time.AfterFunc(in.cfg.MinInterval-since, func() {
				// timer is read under the session lock, after it was assigned
				owned := func(current *time.Timer) bool { return current == timer }
				if err := in.flush(context.Background(), sessionID, owned); err != nil {
					logger.Debug("Pending location not flushed", logger.SessionID(sessionID), logger.ErrorField(err))
				}
			})
			st.Timer = timer
		}
		status = models.IngestCoalesced
		return nil
	})
	if err != nil {
		return rejected(err)
	}
	return models.IngestResult{Status: status, Reason: reason}, nil
}

// Flush applies the pending coalesced ping of the session, if any. Ending the
// session discards the pending ping instead.
func (in *Ingestor) Flush(ctx context.Context, sessionID string) error {
	return in.flush(ctx, sessionID, nil)
}

// flush applies the pending ping. A timer-driven flush passes owned and is a
// no-op once its timer was replaced or cleared by a direct apply.
func (in *Ingestor) flush(ctx context.Context, sessionID string, owned func(*time.Timer) bool) error {
	return in.sessions.Update(ctx, sessionID, func(tx *session.Tx) error {
		st := tx.IngestState()
		if owned != nil && !owned(st.Timer) {
			return nil
		}
		if st.Timer != nil {
			st.Timer.Stop()
			st.Timer = nil
		}
		if st.Pending == nil {
			return nil
		}
		point := *st.Pending
		st.Pending = nil
		if tx.Status() != models.SessionStatusActive {
			return nil
		}
		if err := tx.CheckFresh(point.Timestamp); err != nil {
			return err
		}
		st.LastAcceptedAt = in.now()
		return apply(tx, point)
	})
}

// apply records the point, runs the geofence and queues the resulting
// events: the location first, then alerts, then stop transitions.
func apply(tx *session.Tx, point models.LocationPoint) error {
	if err := tx.RecordPosition(point); err != nil {
		return err
	}
	out := tx.Evaluate(point)

	tx.Emit(models.LocationEvent{SessionID: tx.SessionID(), RouteID: tx.RouteID(), Point: point})
	for _, a := range out.Alerts {
		tx.Emit(models.ProximityAlertEvent{ProximityAlert: a})
	}
	for _, ev := range out.StopEvents {
		tx.Emit(models.StopEventEvent{StopEvent: ev})
	}
	return nil
}

func rejected(err error) (models.IngestResult, error) {
	return models.IngestResult{Status: models.IngestRejected, Reason: err.Error()}, err
}
