package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/services/tracking/geofence"
)

// entry is one session and everything only its writer may touch
type entry struct {
	// immutable after creation
	id          string
	routeID     string
	sessionType models.SessionType
	route       *models.Route

	// readable without mu
	active       atomic.Bool
	startedNanos atomic.Int64
	snapshot     atomic.Pointer[models.Snapshot]

	mu         sync.Mutex
	session    *models.Session
	progress   geofence.Progress
	lastPoint  *models.LocationPoint
	timeline   []models.LocationPoint
	stopEvents []models.StopEvent
	ingest     IngestState
	terminalAt time.Time
	evicted    bool
}

func newEntry(s *models.Session, route *models.Route) *entry {
	return &entry{
		id:          s.ID,
		routeID:     s.RouteID,
		sessionType: s.Type,
		route:       route,
		session:     s,
	}
}

func (e *entry) key() activeKey {
	return activeKey{routeID: e.routeID, sessionType: e.sessionType}
}

func (e *entry) markStarted(t time.Time) {
	e.startedNanos.Store(t.UnixNano())
}

// refreshSnapshot publishes the lock-free snapshot. Caller holds e.mu.
func (e *entry) refreshSnapshot(engine *geofence.Engine) {
	s := e.session
	snap := &models.Snapshot{
		RouteID:      s.RouteID,
		Active:       s.Status == models.SessionStatusActive,
		SessionID:    s.ID,
		SessionType:  s.Type,
		Status:       s.Status,
		TargetStopID: s.TargetStopID,
	}
	if s.CurrentPosition != nil {
		pos := *s.CurrentPosition
		snap.Position = &pos
	}
	if e.lastPoint != nil && snap.Active && s.StartedAt != nil {
		if eta, ok := engine.ETA(e.progress, e.route.Stops, *e.lastPoint, e.lastPoint.Timestamp.Sub(*s.StartedAt)); ok {
			snap.EtaMinutes = &eta
		}
	}
	e.snapshot.Store(snap)
}

// IngestState is the per-session coalescing slot of the location ingestor.
// It lives with the session so it is guarded by the same lock.
type IngestState struct {
	Pending        *models.LocationPoint
	LastAcceptedAt time.Time
	Timer          *time.Timer
}

func (s *IngestState) stop() {
	if s.Timer != nil {
		s.Timer.Stop()
		s.Timer = nil
	}
	s.Pending = nil
}
