package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/piresc/schoolbus/internal/pkg/models"
	nrpkg "github.com/piresc/schoolbus/internal/pkg/newrelic"
	"github.com/piresc/schoolbus/internal/utils"
)

// HistoryRepo appends session history to Postgres. Every append is
// idempotent so redelivered bus messages do not duplicate rows.
type HistoryRepo struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlx.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SaveSession upserts the session row. Fields missing from s keep their stored
// value and a terminal status is never overwritten by a redelivered start.
func (r *HistoryRepo) SaveSession(ctx context.Context, s *models.Session) error {
	defer nrpkg.StartDatastoreSegment(ctx, newrelic.DatastorePostgres, "tracking_sessions", "UPSERT").End()

	query := `
		INSERT INTO tracking_sessions (id, route_id, driver_id, session_type, status, created_at, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = CASE WHEN tracking_sessions.status IN ('COMPLETED', 'CANCELLED') THEN tracking_sessions.status ELSE EXCLUDED.status END,
			driver_id = COALESCE(EXCLUDED.driver_id, tracking_sessions.driver_id),
			session_type = COALESCE(EXCLUDED.session_type, tracking_sessions.session_type),
			started_at = COALESCE(EXCLUDED.started_at, tracking_sessions.started_at),
			ended_at = COALESCE(EXCLUDED.ended_at, tracking_sessions.ended_at)
	`
	createdAt := s.CreatedAt
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.RouteID,
		nullString(s.DriverID),
		nullString(string(s.Type)),
		s.Status,
		nullTime(&createdAt),
		nullTime(s.StartedAt),
		nullTime(s.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

type locationRow struct {
	SessionID  string    `db:"session_id"`
	RouteID    string    `db:"route_id"`
	Latitude   float64   `db:"latitude"`
	Longitude  float64   `db:"longitude"`
	Speed      float64   `db:"speed"`
	Heading    float64   `db:"heading"`
	Accuracy   float64   `db:"accuracy"`
	Geohash    string    `db:"geohash"`
	RecordedAt time.Time `db:"recorded_at"`
}

// AppendLocation stores an accepted point with its geohash
func (r *HistoryRepo) AppendLocation(ctx context.Context, sessionID, routeID string, point models.LocationPoint) error {
	defer nrpkg.StartDatastoreSegment(ctx, newrelic.DatastorePostgres, "location_points", "INSERT").End()

	query := `
		INSERT INTO location_points (session_id, route_id, latitude, longitude, speed, heading, accuracy, geohash, recorded_at)
		VALUES (:session_id, :route_id, :latitude, :longitude, :speed, :heading, :accuracy, :geohash, :recorded_at)
		ON CONFLICT (session_id, recorded_at) DO NOTHING
	`
	_, err := r.db.NamedExecContext(ctx, query, locationRow{
		SessionID:  sessionID,
		RouteID:    routeID,
		Latitude:   point.Latitude,
		Longitude:  point.Longitude,
		Speed:      point.Speed,
		Heading:    point.Heading,
		Accuracy:   point.Accuracy,
		Geohash:    utils.Encode(utils.GeoPoint{Latitude: point.Latitude, Longitude: point.Longitude}),
		RecordedAt: point.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to append location: %w", err)
	}
	return nil
}

// AppendStopEvent stores an arrival or departure
func (r *HistoryRepo) AppendStopEvent(ctx context.Context, ev models.StopEvent) error {
	defer nrpkg.StartDatastoreSegment(ctx, newrelic.DatastorePostgres, "stop_events", "INSERT").End()

	query := `
		INSERT INTO stop_events (session_id, route_id, stop_id, event_type, source, students_boarded, notes, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, stop_id, event_type) DO NOTHING
	`
	var boarded sql.NullInt64
	if ev.StudentsBoarded != nil {
		boarded = sql.NullInt64{Int64: int64(*ev.StudentsBoarded), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		ev.SessionID,
		ev.RouteID,
		ev.StopID,
		ev.Type,
		ev.Source,
		boarded,
		nullString(ev.Notes),
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append stop event: %w", err)
	}
	return nil
}

// AppendProximityAlert stores a fired proximity alert
func (r *HistoryRepo) AppendProximityAlert(ctx context.Context, alert models.ProximityAlert) error {
	defer nrpkg.StartDatastoreSegment(ctx, newrelic.DatastorePostgres, "proximity_alerts", "INSERT").End()

	query := `
		INSERT INTO proximity_alerts (session_id, route_id, stop_id, threshold_type, distance_meters, eta_minutes, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, stop_id, threshold_type, occurred_at) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.SessionID,
		alert.RouteID,
		alert.StopID,
		alert.ThresholdType,
		alert.DistanceMeters,
		alert.EtaMinutes,
		alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append proximity alert: %w", err)
	}
	return nil
}
