package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/internal/utils"
	"github.com/piresc/schoolbus/services/tracking/geofence"
	"github.com/piresc/schoolbus/services/tracking/mocks"
	"github.com/piresc/schoolbus/services/tracking/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) locations() []models.LocationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.LocationEvent
	for _, ev := range p.events {
		if loc, ok := ev.(models.LocationEvent); ok {
			out = append(out, loc)
		}
	}
	return out
}

func (p *recordingPublisher) kinds() []models.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var kinds []models.EventKind
	for _, ev := range p.events {
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

type recordingMetrics struct {
	mu       sync.Mutex
	statuses []string
}

func (m *recordingMetrics) ObservePoint(status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var stopA = utils.GeoPoint{Latitude: -6.2, Longitude: 106.8}

type fixture struct {
	ingestor  *Ingestor
	manager   *session.Manager
	publisher *recordingPublisher
	metrics   *recordingMetrics
	clock     *fakeClock
	sessionID string
}

func setup(t *testing.T, minInterval time.Duration, realClock bool) *fixture {
	ctrl := gomock.NewController(t)
	routes := mocks.NewMockRouteRepo(ctrl)
	routes.EXPECT().GetRoute(gomock.Any(), "R1").Return(&models.Route{
		ID:     "R1",
		Active: true,
		Stops: []models.Stop{
			{ID: "stop-a", RouteID: "R1", Order: 1, Latitude: stopA.Latitude, Longitude: stopA.Longitude, RadiusMeters: 200, ArrivalOffset: 10 * time.Minute},
			{ID: "stop-b", RouteID: "R1", Order: 2, Latitude: -6.1, Longitude: 106.8, RadiusMeters: 200, ArrivalOffset: 20 * time.Minute},
		},
	}, nil).AnyTimes()

	f := &fixture{
		publisher: &recordingPublisher{},
		metrics:   &recordingMetrics{},
		clock:     &fakeClock{now: time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC)},
	}
	tcfg := models.DefaultTrackingConfig()
	var opts []Option
	var sessionOpts []session.Option
	if !realClock {
		opts = append(opts, WithClock(f.clock.Now))
		sessionOpts = append(sessionOpts, session.WithClock(f.clock.Now))
	}
	f.manager = session.NewManager(
		session.Config{SessionRetention: tcfg.SessionRetention, RequestTokenTTL: tcfg.RequestTokenTTL},
		geofence.NewEngine(geofence.ConfigFrom(tcfg)),
		routes,
		f.publisher,
		sessionOpts...,
	)
	f.ingestor = NewIngestor(Config{MaxAccuracyMeters: 100, MinInterval: minInterval}, f.manager, f.metrics, opts...)

	s, err := f.manager.Start(context.Background(), models.StartSessionRequest{RouteID: "R1", DriverID: "D1", Type: models.SessionTypeMorning})
	require.NoError(t, err)
	f.sessionID = s.ID
	return f
}

func (f *fixture) ping(ts time.Time, distance float64) (models.IngestResult, error) {
	p := utils.Destination(stopA, 180, distance)
	return f.ingestor.Ingest(context.Background(), models.LocationUpdate{
		RouteID:   "R1",
		SessionID: f.sessionID,
		Point: models.LocationPoint{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Speed:     8,
			Accuracy:  10,
			Timestamp: ts,
		},
	})
}

func TestIngest_Validation(t *testing.T) {
	f := setup(t, 0, false)
	ts := f.clock.Now()

	tests := []struct {
		name   string
		update models.LocationUpdate
		status models.IngestStatus
		code   string
	}{
		{
			name:   "latitude out of range",
			update: models.LocationUpdate{SessionID: f.sessionID, Point: models.LocationPoint{Latitude: 91, Longitude: 0, Timestamp: ts}},
			status: models.IngestRejected,
			code:   apperrors.CodeValidation,
		},
		{
			name:   "longitude out of range",
			update: models.LocationUpdate{SessionID: f.sessionID, Point: models.LocationPoint{Latitude: 0, Longitude: -180.5, Timestamp: ts}},
			status: models.IngestRejected,
			code:   apperrors.CodeValidation,
		},
		{
			name:   "missing timestamp",
			update: models.LocationUpdate{SessionID: f.sessionID, Point: models.LocationPoint{Latitude: 1, Longitude: 1}},
			status: models.IngestRejected,
			code:   apperrors.CodeValidation,
		},
		{
			name:   "poor accuracy is dropped without error",
			update: models.LocationUpdate{SessionID: f.sessionID, Point: models.LocationPoint{Latitude: 1, Longitude: 1, Accuracy: 250, Timestamp: ts}},
			status: models.IngestDropped,
		},
		{
			name:   "poor accuracy on unknown session is not found",
			update: models.LocationUpdate{SessionID: "nope", Point: models.LocationPoint{Latitude: 1, Longitude: 1, Accuracy: 250, Timestamp: ts}},
			status: models.IngestRejected,
			code:   apperrors.CodeNotFound,
		},
		{
			name:   "wrong route",
			update: models.LocationUpdate{RouteID: "R9", SessionID: f.sessionID, Point: models.LocationPoint{Latitude: 1, Longitude: 1, Timestamp: ts}},
			status: models.IngestRejected,
			code:   apperrors.CodeValidation,
		},
		{
			name:   "unknown session",
			update: models.LocationUpdate{SessionID: "nope", Point: models.LocationPoint{Latitude: 1, Longitude: 1, Timestamp: ts}},
			status: models.IngestRejected,
			code:   apperrors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.ingestor.Ingest(context.Background(), tt.update)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.code, apperrors.Code(err))
			if tt.status != models.IngestAccepted {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}

	timeline, err := f.manager.Timeline(f.sessionID)
	require.NoError(t, err)
	assert.Empty(t, timeline)
	assert.Empty(t, f.publisher.locations())
}

func TestIngest_StaleIsRejectedAndNotBroadcast(t *testing.T) {
	f := setup(t, 0, false)
	base := f.clock.Now()

	res, err := f.ping(base.Add(10*time.Second), 900)
	require.NoError(t, err)
	assert.Equal(t, models.IngestAccepted, res.Status)

	for _, ts := range []time.Time{base.Add(10 * time.Second), base.Add(5 * time.Second)} {
		res, err = f.ping(ts, 890)
		var stale *apperrors.StaleUpdateError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, models.IngestRejected, res.Status)
	}

	assert.Len(t, f.publisher.locations(), 1)
	assert.Equal(t, []string{"accepted", "rejected", "rejected"}, f.metrics.statuses)
}

func TestIngest_AfterEndIsInvalidState(t *testing.T) {
	f := setup(t, 0, false)
	base := f.clock.Now()

	_, err := f.ping(base.Add(time.Second), 900)
	require.NoError(t, err)
	_, err = f.manager.End(context.Background(), f.sessionID, "")
	require.NoError(t, err)

	res, err := f.ping(base.Add(2*time.Second), 880)
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.Code(err))
	assert.Equal(t, models.IngestRejected, res.Status)

	t.Run("poor accuracy after end is still an invalid state", func(t *testing.T) {
		res, err := f.ingestor.Ingest(context.Background(), models.LocationUpdate{
			RouteID:   "R1",
			SessionID: f.sessionID,
			Point:     models.LocationPoint{Latitude: 1, Longitude: 1, Accuracy: 250, Timestamp: base.Add(3 * time.Second)},
		})
		assert.Equal(t, apperrors.CodeInvalidState, apperrors.Code(err))
		assert.Equal(t, models.IngestRejected, res.Status)
	})

	s, err := f.manager.Get(f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Second), s.CurrentPosition.Timestamp)
}

func TestIngest_CoalescesWithinInterval(t *testing.T) {
	f := setup(t, 15*time.Second, false)
	base := f.clock.Now()

	res, err := f.ping(base.Add(1*time.Second), 900)
	require.NoError(t, err)
	assert.Equal(t, models.IngestAccepted, res.Status)

	f.clock.Advance(4 * time.Second)
	res, err = f.ping(base.Add(5*time.Second), 880)
	require.NoError(t, err)
	assert.Equal(t, models.IngestCoalesced, res.Status)

	f.clock.Advance(4 * time.Second)
	res, err = f.ping(base.Add(9*time.Second), 860)
	require.NoError(t, err)
	assert.Equal(t, models.IngestCoalesced, res.Status)

	t.Run("older than pending is stale", func(t *testing.T) {
		_, err := f.ping(base.Add(7*time.Second), 870)
		assert.Equal(t, apperrors.CodeStaleUpdate, apperrors.Code(err))
	})

	require.Len(t, f.publisher.locations(), 1)

	require.NoError(t, f.ingestor.Flush(context.Background(), f.sessionID))
	locations := f.publisher.locations()
	require.Len(t, locations, 2)
	assert.Equal(t, base.Add(9*time.Second), locations[1].Point.Timestamp)

	timeline, err := f.manager.Timeline(f.sessionID)
	require.NoError(t, err)
	assert.Len(t, timeline, 2)

	t.Run("flush without pending is a no-op", func(t *testing.T) {
		require.NoError(t, f.ingestor.Flush(context.Background(), f.sessionID))
		assert.Len(t, f.publisher.locations(), 2)
	})

	t.Run("interval elapsed applies immediately", func(t *testing.T) {
		f.clock.Advance(16 * time.Second)
		res, err := f.ping(base.Add(30*time.Second), 850)
		require.NoError(t, err)
		assert.Equal(t, models.IngestAccepted, res.Status)
		assert.Len(t, f.publisher.locations(), 3)
	})
}

func TestIngest_TimerFlushesPending(t *testing.T) {
	f := setup(t, 30*time.Millisecond, true)
	base := time.Now()

	_, err := f.ping(base, 900)
	require.NoError(t, err)
	res, err := f.ping(base.Add(time.Second), 880)
	require.NoError(t, err)
	require.Equal(t, models.IngestCoalesced, res.Status)

	assert.Eventually(t, func() bool {
		return len(f.publisher.locations()) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestIngest_ReplacedTimerDoesNotFlush(t *testing.T) {
	f := setup(t, 15*time.Second, false)
	base := f.clock.Now()
	ctx := context.Background()

	_, err := f.ping(base.Add(time.Second), 900)
	require.NoError(t, err)
	res, err := f.ping(base.Add(2*time.Second), 880)
	require.NoError(t, err)
	require.Equal(t, models.IngestCoalesced, res.Status)

	// A timer that fired before a direct apply re-armed the slot
	old := time.NewTimer(time.Hour)
	defer old.Stop()
	require.NoError(t, f.ingestor.flush(ctx, f.sessionID, func(current *time.Timer) bool { return current == old }))
	assert.Len(t, f.publisher.locations(), 1)

	require.NoError(t, f.ingestor.Flush(ctx, f.sessionID))
	assert.Len(t, f.publisher.locations(), 2)
}

func TestIngest_EndDiscardsPending(t *testing.T) {
	f := setup(t, 15*time.Second, false)
	base := f.clock.Now()

	_, err := f.ping(base.Add(time.Second), 900)
	require.NoError(t, err)
	res, err := f.ping(base.Add(2*time.Second), 880)
	require.NoError(t, err)
	require.Equal(t, models.IngestCoalesced, res.Status)

	_, err = f.manager.End(context.Background(), f.sessionID, "")
	require.NoError(t, err)
	require.NoError(t, f.ingestor.Flush(context.Background(), f.sessionID))

	assert.Len(t, f.publisher.locations(), 1)
}

func TestIngest_DerivedEventsFollowLocation(t *testing.T) {
	f := setup(t, 0, false)
	base := f.clock.Now()

	for i, d := range []float64{600, 450, 180, 170} {
		res, err := f.ping(base.Add(time.Duration(i+1)*15*time.Second), d)
		require.NoError(t, err)
		require.Equal(t, models.IngestAccepted, res.Status)
	}

	assert.Equal(t, []models.EventKind{
		models.EventKindTripStarted,
		models.EventKindLocation,
		models.EventKindLocation,
		models.EventKindProximityAlert,
		models.EventKindLocation,
		models.EventKindProximityAlert,
		models.EventKindLocation,
		models.EventKindStopEvent,
	}, f.publisher.kinds())
}
