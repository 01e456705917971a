// Package session owns the trip session state machine.
//
// Every mutation of a session runs under that session's own lock through
// Manager.Update, which makes the session its single logical writer. Lock
// order is always session lock, then route lock (subscription registry),
// then the manager index lock; the index lock is never held while acquiring
// anything else.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/services/tracking"
	"github.com/piresc/schoolbus/services/tracking/geofence"
)

// Publisher receives the events produced by session mutations, in order,
// while the session lock is held
type Publisher interface {
	Publish(ctx context.Context, event models.Event)
}

// Config holds the manager retention settings
type Config struct {
	SessionRetention time.Duration
	RequestTokenTTL  time.Duration
}

type activeKey struct {
	routeID     string
	sessionType models.SessionType
}

type tokenRecord struct {
	sessionID string
	stopEvent *models.StopEvent
	err       error
	at        time.Time
}

// Manager holds every live session of the process
type Manager struct {
	cfg       Config
	engine    *geofence.Engine
	routes    tracking.RouteRepo
	publisher Publisher
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	sessions map[string]*entry
	active   map[activeKey]string
	tokens   map[string]tokenRecord
}

// Option customizes a Manager
type Option func(*Manager)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces uuid session ids
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// NewManager creates an empty manager
func NewManager(cfg Config, engine *geofence.Engine, routes tracking.RouteRepo, publisher Publisher, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		engine:    engine,
		routes:    routes,
		publisher: publisher,
		now:       models.Now,
		newID:     uuid.NewString,
		sessions:  make(map[string]*entry),
		active:    make(map[activeKey]string),
		tokens:    make(map[string]tokenRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// tokenKey scopes a request token to the driver (start, schedule) or the
// session (everything else) it was issued for
func tokenKey(op, scope, token string) string {
	return op + ":" + scope + ":" + token
}

// replay returns the stored outcome of an already applied request token
func (m *Manager) replay(op, scope, token string) (tokenRecord, bool) {
	if token == "" {
		return tokenRecord{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[tokenKey(op, scope, token)]
	return rec, ok
}

// remember stores the outcome of token. Caller holds m.mu.
func (m *Manager) remember(op, scope, token string, rec tokenRecord) {
	if token == "" {
		return
	}
	rec.at = m.now()
	m.tokens[tokenKey(op, scope, token)] = rec
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFound("session", sessionID)
	}
	return e, nil
}

func (m *Manager) sessionResult(rec tokenRecord) (*models.Session, error) {
	if rec.err != nil {
		return nil, rec.err
	}
	return m.Get(rec.sessionID)
}

func (m *Manager) loadRoute(ctx context.Context, routeID string) (*models.Route, error) {
	route, err := m.routes.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, apperrors.NewNotFound("route", routeID)
	}
	if !route.Active {
		return nil, &apperrors.ValidationError{Field: "route_id", Reason: "route " + routeID + " is not active"}
	}
	return route, nil
}

// Schedule creates a NotStarted session
func (m *Manager) Schedule(ctx context.Context, req models.StartSessionRequest) (*models.Session, error) {
	if rec, ok := m.replay("schedule", req.DriverID, req.RequestToken); ok {
		return m.sessionResult(rec)
	}
	if !req.Type.Valid() {
		return nil, &apperrors.ValidationError{Field: "session_type", Reason: "must be morning or evening"}
	}
	route, err := m.loadRoute(ctx, req.RouteID)
	if err != nil {
		return nil, err
	}

	e := newEntry(m.newSession(req, models.SessionStatusNotStarted), route)

	m.mu.Lock()
	if rec, ok := m.tokens[tokenKey("schedule", req.DriverID, req.RequestToken)]; ok && req.RequestToken != "" {
		m.mu.Unlock()
		return m.sessionResult(rec)
	}
	m.sessions[e.id] = e
	m.remember("schedule", req.DriverID, req.RequestToken, tokenRecord{sessionID: e.id})
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshSnapshot(m.engine)
	return e.session.Clone(), nil
}

// Start creates an Active session for (route, type). It is Schedule and
// Activate applied atomically. A replayed request token returns the original
// outcome without creating anything.
func (m *Manager) Start(ctx context.Context, req models.StartSessionRequest) (*models.Session, error) {
	if rec, ok := m.replay("start", req.DriverID, req.RequestToken); ok {
		return m.sessionResult(rec)
	}
	if !req.Type.Valid() {
		return nil, &apperrors.ValidationError{Field: "session_type", Reason: "must be morning or evening"}
	}
	route, err := m.loadRoute(ctx, req.RouteID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := m.newSession(req, models.SessionStatusActive)
	sess.StartedAt = &now
	if len(route.Stops) > 0 {
		sess.TargetStopID = route.Stops[0].ID
	}
	e := newEntry(sess, route)
	e.markStarted(now)
	key := e.key()

	// The entry is published locked so no ping can reach it before trip:started.
	e.mu.Lock()
	defer e.mu.Unlock()

	m.mu.Lock()
	if rec, ok := m.tokens[tokenKey("start", req.DriverID, req.RequestToken)]; ok && req.RequestToken != "" {
		m.mu.Unlock()
		return m.sessionResult(rec)
	}
	if existing, ok := m.active[key]; ok {
		dupErr := &apperrors.DuplicateSessionError{RouteID: req.RouteID, SessionType: string(req.Type), ExistingSessionID: existing}
		m.remember("start", req.DriverID, req.RequestToken, tokenRecord{err: dupErr})
		m.mu.Unlock()
		return nil, dupErr
	}
	m.assertSingleActive(key, "")
	m.sessions[e.id] = e
	m.active[key] = e.id
	e.active.Store(true)
	m.remember("start", req.DriverID, req.RequestToken, tokenRecord{sessionID: e.id})
	m.mu.Unlock()

	e.refreshSnapshot(m.engine)
	m.publisher.Publish(ctx, startedEvent(e.session))

	logger.Info("Trip session started",
		logger.SessionID(e.id),
		logger.RouteID(req.RouteID),
		logger.String("driver_id", req.DriverID),
		logger.String("session_type", string(req.Type)))
	return e.session.Clone(), nil
}

// Activate moves a NotStarted session to Active
func (m *Manager) Activate(ctx context.Context, sessionID, requestToken string) (*models.Session, error) {
	if rec, ok := m.replay("activate", sessionID, requestToken); ok {
		return m.sessionResult(rec)
	}
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil, apperrors.NewNotFound("session", sessionID)
	}
	if rec, ok := m.replay("activate", sessionID, requestToken); ok {
		if rec.err != nil {
			return nil, rec.err
		}
		return e.session.Clone(), nil
	}
	if e.session.Status != models.SessionStatusNotStarted {
		return nil, &apperrors.InvalidStateError{SessionID: sessionID, Status: string(e.session.Status), Op: "activate"}
	}

	key := e.key()
	m.mu.Lock()
	if existing, ok := m.active[key]; ok {
		dupErr := &apperrors.DuplicateSessionError{RouteID: key.routeID, SessionType: string(key.sessionType), ExistingSessionID: existing}
		m.remember("activate", sessionID, requestToken, tokenRecord{err: dupErr})
		m.mu.Unlock()
		return nil, dupErr
	}
	m.assertSingleActive(key, sessionID)
	m.active[key] = sessionID
	e.active.Store(true)
	m.remember("activate", sessionID, requestToken, tokenRecord{sessionID: sessionID})
	m.mu.Unlock()

	now := m.now()
	e.markStarted(now)
	e.session.Status = models.SessionStatusActive
	e.session.StartedAt = &now
	if len(e.route.Stops) > 0 {
		e.session.TargetStopID = e.route.Stops[e.progress.TargetIndex].ID
	}
	e.refreshSnapshot(m.engine)
	m.publisher.Publish(ctx, startedEvent(e.session))
	return e.session.Clone(), nil
}

// End completes an Active session and freezes its position
func (m *Manager) End(ctx context.Context, sessionID, requestToken string) (*models.Session, error) {
	return m.finish(ctx, "end", sessionID, requestToken, models.SessionStatusCompleted)
}

// Cancel cancels a NotStarted or Active session
func (m *Manager) Cancel(ctx context.Context, sessionID, requestToken string) (*models.Session, error) {
	return m.finish(ctx, "cancel", sessionID, requestToken, models.SessionStatusCancelled)
}

func (m *Manager) finish(ctx context.Context, op, sessionID, requestToken string, to models.SessionStatus) (*models.Session, error) {
	if rec, ok := m.replay(op, sessionID, requestToken); ok {
		return m.sessionResult(rec)
	}
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil, apperrors.NewNotFound("session", sessionID)
	}
	// A concurrent retry may have applied the token while we waited for the lock.
	if _, ok := m.replay(op, sessionID, requestToken); ok {
		return e.session.Clone(), nil
	}

	from := e.session.Status
	allowed := from == models.SessionStatusActive ||
		(to == models.SessionStatusCancelled && from == models.SessionStatusNotStarted)
	if !allowed {
		return nil, &apperrors.InvalidStateError{SessionID: sessionID, Status: string(from), Op: op}
	}

	now := m.now()
	e.session.Status = to
	e.session.EndedAt = &now
	e.terminalAt = now
	e.ingest.stop()

	m.mu.Lock()
	if e.active.Load() {
		if id, ok := m.active[e.key()]; ok && id == sessionID {
			delete(m.active, e.key())
		}
		e.active.Store(false)
	}
	m.remember(op, sessionID, requestToken, tokenRecord{sessionID: sessionID})
	m.mu.Unlock()

	e.refreshSnapshot(m.engine)
	if from == models.SessionStatusActive {
		m.publisher.Publish(ctx, models.TripEndedEvent{
			SessionID: sessionID,
			RouteID:   e.session.RouteID,
			Status:    to,
			EndedAt:   now,
		})
	}

	logger.Info("Trip session finished",
		logger.SessionID(sessionID),
		logger.RouteID(e.session.RouteID),
		logger.String("status", string(to)))
	return e.session.Clone(), nil
}

// Update runs fn as the single writer of the session. Events emitted through
// the Tx are published in order after fn succeeds, still under the lock.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(tx *Tx) error) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return apperrors.NewNotFound("session", sessionID)
	}

	tx := &Tx{e: e, engine: m.engine}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.dirty {
		e.refreshSnapshot(m.engine)
	}
	for _, ev := range tx.events {
		m.publisher.Publish(ctx, ev)
	}
	return nil
}

// RecordStopEvent applies a driver-reported arrival or departure
func (m *Manager) RecordStopEvent(ctx context.Context, req models.StopEventRequest) (*models.StopEvent, error) {
	var recorded models.StopEvent
	err := m.Update(ctx, req.SessionID, func(tx *Tx) error {
		// Checked under the session lock so concurrent retries apply once.
		if rec, ok := m.replay("stop", req.SessionID, req.RequestToken); ok && rec.stopEvent != nil {
			recorded = *rec.stopEvent
			return nil
		}
		ev, err := tx.MarkStop(req, m.now())
		if err != nil {
			return err
		}
		recorded = ev
		tx.Emit(models.StopEventEvent{StopEvent: ev})

		m.mu.Lock()
		m.remember("stop", req.SessionID, req.RequestToken, tokenRecord{sessionID: req.SessionID, stopEvent: &ev})
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &recorded, nil
}

// Get returns a copy of the session
func (m *Manager) Get(sessionID string) (*models.Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil, apperrors.NewNotFound("session", sessionID)
	}
	return e.session.Clone(), nil
}

// Timeline returns a copy of the accepted points of the session
func (m *Manager) Timeline(sessionID string) ([]models.LocationPoint, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.LocationPoint(nil), e.timeline...), nil
}

// StopEvents returns a copy of the stop events of the session
func (m *Manager) StopEvents(sessionID string) ([]models.StopEvent, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.StopEvent(nil), e.stopEvents...), nil
}

// ActiveSnapshot returns the snapshot of the most recently started Active
// session on the route, or the no-active-session marker. It never takes a
// session lock.
func (m *Manager) ActiveSnapshot(routeID string) models.Snapshot {
	m.mu.Lock()
	var best *entry
	for _, t := range []models.SessionType{models.SessionTypeMorning, models.SessionTypeEvening} {
		id, ok := m.active[activeKey{routeID: routeID, sessionType: t}]
		if !ok {
			continue
		}
		e := m.sessions[id]
		if best == nil || e.startedNanos.Load() > best.startedNanos.Load() {
			best = e
		}
	}
	m.mu.Unlock()

	if best == nil {
		return models.NoActiveSession(routeID)
	}
	snap := best.snapshot.Load()
	if snap == nil || !snap.Active {
		return models.NoActiveSession(routeID)
	}
	s := *snap
	s.SnapshotTaken = m.now()
	return s
}

// ActiveCount returns the number of Active sessions
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// assertSingleActive panics when an Active session other than except exists
// for key. Caller holds m.mu.
func (m *Manager) assertSingleActive(key activeKey, except string) {
	n := 0
	for id, e := range m.sessions {
		if id != except && e.active.Load() && e.key() == key {
			n++
		}
	}
	apperrors.Assert(n == 0, "single-active-session",
		"route %s type %s already has %d active sessions outside the index", key.routeID, key.sessionType, n)
}

// Sweep evicts terminal sessions older than the retention and expired request tokens
func (m *Manager) Sweep() (evicted int) {
	now := m.now()

	m.mu.Lock()
	var candidates []*entry
	for _, e := range m.sessions {
		if !e.active.Load() {
			candidates = append(candidates, e)
		}
	}
	for k, rec := range m.tokens {
		if now.Sub(rec.at) > m.cfg.RequestTokenTTL {
			delete(m.tokens, k)
		}
	}
	m.mu.Unlock()

	for _, e := range candidates {
		e.mu.Lock()
		expired := !e.terminalAt.IsZero() && now.Sub(e.terminalAt) > m.cfg.SessionRetention
		if expired {
			e.evicted = true
			e.ingest.stop()
			m.mu.Lock()
			delete(m.sessions, e.id)
			m.mu.Unlock()
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted
}

// Run sweeps every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Debug("Evicted finished sessions", logger.Int("count", n))
			}
		}
	}
}

func (m *Manager) newSession(req models.StartSessionRequest, status models.SessionStatus) *models.Session {
	return &models.Session{
		ID:        m.newID(),
		RouteID:   req.RouteID,
		DriverID:  req.DriverID,
		Type:      req.Type,
		Status:    status,
		CreatedAt: m.now(),
	}
}

func startedEvent(s *models.Session) models.TripStartedEvent {
	return models.TripStartedEvent{
		SessionID:   s.ID,
		RouteID:     s.RouteID,
		DriverID:    s.DriverID,
		SessionType: s.Type,
		StartedAt:   *s.StartedAt,
	}
}
