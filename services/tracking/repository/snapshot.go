package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/database"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/internal/utils"
)

const (
	// ActiveSessionTTL bounds a stale active marker left by a crashed process
	ActiveSessionTTL = 12 * time.Hour
	// PositionTTL is how long the last position of a session stays readable
	PositionTTL = 24 * time.Hour
)

// clearActive deletes the active marker only while it still names the session
var clearActive = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("ZREM", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// SnapshotRepo keeps the live per-route state in Redis for lookups made
// outside this process
type SnapshotRepo struct {
	redisClient *database.RedisClient
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(redisClient *database.RedisClient) *SnapshotRepo {
	return &SnapshotRepo{redisClient: redisClient}
}

// SetActiveSession marks sessionID as the active session of routeID
func (r *SnapshotRepo) SetActiveSession(ctx context.Context, routeID, sessionID string) error {
	key := fmt.Sprintf(constants.KeyRouteActiveSession, routeID)
	if err := r.redisClient.Set(ctx, key, sessionID, ActiveSessionTTL); err != nil {
		return fmt.Errorf("failed to set active session: %w", err)
	}
	return nil
}

// ClearActiveSession removes the active marker of routeID if it still points at sessionID
func (r *SnapshotRepo) ClearActiveSession(ctx context.Context, routeID, sessionID string) error {
	key := fmt.Sprintf(constants.KeyRouteActiveSession, routeID)
	err := clearActive.Run(ctx, r.redisClient.Client, []string{key, constants.KeyBusGeo}, sessionID, routeID).Err()
	if err != nil {
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	return nil
}

// GetActiveSession returns the active session id of routeID, or "" when none
func (r *SnapshotRepo) GetActiveSession(ctx context.Context, routeID string) (string, error) {
	key := fmt.Sprintf(constants.KeyRouteActiveSession, routeID)
	id, err := r.redisClient.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active session: %w", err)
	}
	return id, nil
}

// StorePosition records the latest position of the session and moves the
// route's bus in the geo set
func (r *SnapshotRepo) StorePosition(ctx context.Context, routeID, sessionID string, point models.LocationPoint) error {
	key := fmt.Sprintf(constants.KeySessionPosition, sessionID)
	fields := map[string]interface{}{
		constants.FieldLatitude:  strconv.FormatFloat(point.Latitude, 'f', -1, 64),
		constants.FieldLongitude: strconv.FormatFloat(point.Longitude, 'f', -1, 64),
		constants.FieldSpeed:     strconv.FormatFloat(point.Speed, 'f', -1, 64),
		constants.FieldHeading:   strconv.FormatFloat(point.Heading, 'f', -1, 64),
		constants.FieldTimestamp: strconv.FormatInt(point.Timestamp.UnixMilli(), 10),
		constants.FieldSessionID: sessionID,
		constants.FieldGeohash:   utils.Encode(utils.GeoPoint{Latitude: point.Latitude, Longitude: point.Longitude}),
	}

	if err := r.redisClient.HMSet(ctx, key, fields); err != nil {
		return fmt.Errorf("failed to store position: %w", err)
	}
	if err := r.redisClient.Expire(ctx, key, PositionTTL); err != nil {
		return fmt.Errorf("failed to set position TTL: %w", err)
	}
	if err := r.redisClient.GeoAdd(ctx, constants.KeyBusGeo, point.Longitude, point.Latitude, routeID); err != nil {
		return fmt.Errorf("failed to index bus position: %w", err)
	}
	return nil
}

// GetPosition returns the stored position of the session, or nil
func (r *SnapshotRepo) GetPosition(ctx context.Context, sessionID string) (*models.Position, error) {
	values, err := r.redisClient.HGetAll(ctx, fmt.Sprintf(constants.KeySessionPosition, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	pos := &models.Position{}
	pos.Latitude, _ = strconv.ParseFloat(values[constants.FieldLatitude], 64)
	pos.Longitude, _ = strconv.ParseFloat(values[constants.FieldLongitude], 64)
	pos.Speed, _ = strconv.ParseFloat(values[constants.FieldSpeed], 64)
	pos.Heading, _ = strconv.ParseFloat(values[constants.FieldHeading], 64)
	if ms, err := strconv.ParseInt(values[constants.FieldTimestamp], 10, 64); err == nil {
		pos.Timestamp = models.FromUnixMillis(ms)
	}
	return pos, nil
}

// NearbyRoutes returns the routes whose bus is within radiusMeters, nearest first
func (r *SnapshotRepo) NearbyRoutes(ctx context.Context, lat, lon, radiusMeters float64) ([]string, error) {
	locations, err := r.redisClient.GeoRadius(ctx, constants.KeyBusGeo, lon, lat, radiusMeters, "m")
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby buses: %w", err)
	}
	routes := make([]string, 0, len(locations))
	for _, loc := range locations {
		routes = append(routes, loc.Name)
	}
	return routes, nil
}
