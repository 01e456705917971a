package session

import (
	"errors"
	"time"

	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/services/tracking/geofence"
)

// Tx is the write handle of one session, valid only inside Manager.Update
type Tx struct {
	e      *entry
	engine *geofence.Engine
	events []models.Event
	dirty  bool
}

// Outcome is what the geofence derived from an accepted point
type Outcome struct {
	Result     geofence.Result
	StopEvents []models.StopEvent
	Alerts     []models.ProximityAlert
}

// SessionID returns the id of the session being updated
func (tx *Tx) SessionID() string { return tx.e.id }

// RouteID returns the route the session runs on
func (tx *Tx) RouteID() string { return tx.e.routeID }

// Status returns the current session status
func (tx *Tx) Status() models.SessionStatus {
	return tx.e.session.Status
}

// LastTimestamp returns the timestamp of the last accepted point, or the zero time
func (tx *Tx) LastTimestamp() time.Time {
	if tx.e.lastPoint == nil {
		return time.Time{}
	}
	return tx.e.lastPoint.Timestamp
}

// IngestState exposes the coalescing slot of the session
func (tx *Tx) IngestState() *IngestState {
	return &tx.e.ingest
}

// Emit queues an event to publish once the update commits
func (tx *Tx) Emit(ev models.Event) {
	tx.events = append(tx.events, ev)
}

// RequireActive fails unless the session is Active
func (tx *Tx) RequireActive(op string) error {
	if tx.e.session.Status != models.SessionStatusActive {
		return &apperrors.InvalidStateError{SessionID: tx.e.id, Status: string(tx.e.session.Status), Op: op}
	}
	return nil
}

// CheckFresh fails with StaleUpdateError unless ts is after the last accepted point
func (tx *Tx) CheckFresh(ts time.Time) error {
	last := tx.LastTimestamp()
	if !last.IsZero() && !ts.After(last) {
		return &apperrors.StaleUpdateError{SessionID: tx.e.id, Got: ts.UnixMilli(), Last: last.UnixMilli()}
	}
	return nil
}

// RecordPosition appends point to the timeline and makes it the current position
func (tx *Tx) RecordPosition(point models.LocationPoint) error {
	if err := tx.RequireActive("record position"); err != nil {
		return err
	}
	if err := tx.CheckFresh(point.Timestamp); err != nil {
		return err
	}

	p := point
	pos := p.Position()
	tx.e.lastPoint = &p
	tx.e.session.CurrentPosition = &pos
	tx.e.timeline = append(tx.e.timeline, p)
	tx.dirty = true
	return nil
}

// Evaluate runs the geofence for the last recorded point and records any
// arrival or departure it declares
func (tx *Tx) Evaluate(point models.LocationPoint) Outcome {
	s := tx.e.session
	var elapsed time.Duration
	if s.StartedAt != nil {
		elapsed = point.Timestamp.Sub(*s.StartedAt)
	}

	progress, res := tx.engine.Evaluate(tx.e.progress, tx.e.route.Stops, point, elapsed)
	tx.e.progress = progress
	s.TargetStopID = ""
	if target := progress.Target(tx.e.route.Stops); target != nil {
		s.TargetStopID = target.ID
	}
	tx.dirty = true

	out := Outcome{Result: res}
	for _, a := range res.Alerts {
		out.Alerts = append(out.Alerts, models.ProximityAlert{
			SessionID:      tx.e.id,
			RouteID:        tx.e.routeID,
			StopID:         a.StopID,
			ThresholdType:  a.Threshold,
			DistanceMeters: a.DistanceMeters,
			EtaMinutes:     a.EtaMinutes,
			Timestamp:      point.Timestamp,
		})
	}
	for _, tr := range res.Transitions {
		ev := models.StopEvent{
			SessionID: tx.e.id,
			RouteID:   tx.e.routeID,
			StopID:    tr.StopID,
			Type:      tr.Type,
			Source:    models.StopEventSourceGeofence,
			Timestamp: point.Timestamp,
		}
		tx.e.stopEvents = append(tx.e.stopEvents, ev)
		out.StopEvents = append(out.StopEvents, ev)
	}
	return out
}

// MarkStop applies a driver-reported stop event
func (tx *Tx) MarkStop(req models.StopEventRequest, at time.Time) (models.StopEvent, error) {
	if !req.Type.Valid() {
		return models.StopEvent{}, &apperrors.ValidationError{Field: "event_type", Reason: "must be arrived or departed"}
	}
	if err := tx.RequireActive("record stop event"); err != nil {
		return models.StopEvent{}, err
	}
	idx := tx.e.route.StopIndex(req.StopID)
	if idx < 0 {
		return models.StopEvent{}, apperrors.NewNotFound("stop", req.StopID)
	}

	progress, err := tx.engine.Mark(tx.e.progress, tx.e.route.Stops, idx, req.Type)
	if err != nil {
		status := string(tx.e.session.Status)
		switch {
		case errors.Is(err, geofence.ErrNotTarget), errors.Is(err, geofence.ErrNoTarget):
			status = "target " + tx.e.session.TargetStopID
		case errors.Is(err, geofence.ErrAlreadyArrived):
			status = "arrived at " + req.StopID
		case errors.Is(err, geofence.ErrNotArrived):
			status = "not arrived at " + req.StopID
		}
		return models.StopEvent{}, &apperrors.InvalidStateError{SessionID: tx.e.id, Status: status, Op: "record " + string(req.Type) + " for stop " + req.StopID}
	}

	tx.e.progress = progress
	tx.e.session.TargetStopID = ""
	if target := progress.Target(tx.e.route.Stops); target != nil {
		tx.e.session.TargetStopID = target.ID
	}
	tx.dirty = true

	ev := models.StopEvent{
		SessionID:       tx.e.id,
		RouteID:         tx.e.routeID,
		StopID:          req.StopID,
		Type:            req.Type,
		Source:          models.StopEventSourceDriver,
		Timestamp:       at,
		StudentsBoarded: req.StudentsBoarded,
		Notes:           req.Notes,
	}
	tx.e.stopEvents = append(tx.e.stopEvents, ev)
	return ev, nil
}
