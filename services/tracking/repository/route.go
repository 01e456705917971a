package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/models"
	nrpkg "github.com/piresc/schoolbus/internal/pkg/newrelic"
	"github.com/piresc/schoolbus/services/tracking"
)

type routeRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Capacity int    `db:"capacity"`
	Active   bool   `db:"active"`
}

type stopRow struct {
	ID                   string  `db:"id"`
	RouteID              string  `db:"route_id"`
	Name                 string  `db:"name"`
	Order                int     `db:"stop_order"`
	Latitude             float64 `db:"latitude"`
	Longitude            float64 `db:"longitude"`
	RadiusMeters         float64 `db:"radius_meters"`
	ArrivalOffsetSeconds int64   `db:"arrival_offset_seconds"`
}

// RouteRepo reads routes and their ordered stops from Postgres
type RouteRepo struct {
	db *sqlx.DB
}

// NewRouteRepository creates a new route repository
func NewRouteRepository(db *sqlx.DB) *RouteRepo {
	return &RouteRepo{db: db}
}

// GetRoute returns the route with its stops in visiting order
func (r *RouteRepo) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	defer nrpkg.StartDatastoreSegment(ctx, newrelic.DatastorePostgres, "routes", "SELECT").End()

	var row routeRow
	err := r.db.GetContext(ctx, &row, `SELECT id, name, capacity, active FROM routes WHERE id = $1`, routeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("route", routeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}

	var stops []stopRow
	err = r.db.SelectContext(ctx, &stops, `
		SELECT id, route_id, name, stop_order, latitude, longitude, radius_meters, arrival_offset_seconds
		FROM route_stops
		WHERE route_id = $1
		ORDER BY stop_order ASC`, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get route stops: %w", err)
	}

	route := &models.Route{
		ID:       row.ID,
		Name:     row.Name,
		Capacity: row.Capacity,
		Active:   row.Active,
		Stops:    make([]models.Stop, 0, len(stops)),
	}
	for _, s := range stops {
		route.Stops = append(route.Stops, models.Stop{
			ID:            s.ID,
			RouteID:       s.RouteID,
			Name:          s.Name,
			Order:         s.Order,
			Latitude:      s.Latitude,
			Longitude:     s.Longitude,
			RadiusMeters:  s.RadiusMeters,
			ArrivalOffset: time.Duration(s.ArrivalOffsetSeconds) * time.Second,
		})
	}
	return route, nil
}

type cachedRoute struct {
	route   *models.Route
	expires time.Time
}

// CachedRouteRepo keeps routes in memory for ttl. Route changes are pushed
// through Invalidate. Returned routes are shared and must not be modified.
type CachedRouteRepo struct {
	next tracking.RouteRepo
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedRoute
}

// NewCachedRouteRepository wraps next with a TTL cache
func NewCachedRouteRepository(next tracking.RouteRepo, ttl time.Duration) *CachedRouteRepo {
	return &CachedRouteRepo{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedRoute),
	}
}

// GetRoute returns the cached route or loads it. Lookup failures are not cached.
func (c *CachedRouteRepo) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	c.mu.RLock()
	e, ok := c.entries[routeID]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		return e.route, nil
	}

	route, err := c.next.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[routeID] = cachedRoute{route: route, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return route, nil
}

// Invalidate drops routeID from the cache
func (c *CachedRouteRepo) Invalidate(routeID string) {
	c.mu.Lock()
	delete(c.entries, routeID)
	c.mu.Unlock()
}
