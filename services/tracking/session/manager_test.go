package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/piresc/schoolbus/internal/pkg/apperrors"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/internal/utils"
	"github.com/piresc/schoolbus/services/tracking/geofence"
	"github.com/piresc/schoolbus/services/tracking/mocks"
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

func (p *recordingPublisher) kinds() []models.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]models.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

func testRoute() *models.Route {
	return &models.Route{
		ID:       "R1",
		Name:     "North loop",
		Capacity: 40,
		Active:   true,
		Stops: []models.Stop{
			{ID: "stop-a", RouteID: "R1", Order: 1, Latitude: -6.2000, Longitude: 106.8000, RadiusMeters: 200, ArrivalOffset: 10 * time.Minute},
			{ID: "stop-b", RouteID: "R1", Order: 2, Latitude: -6.1000, Longitude: 106.8000, RadiusMeters: 150, ArrivalOffset: 25 * time.Minute},
		},
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupManager(t *testing.T) (*Manager, *recordingPublisher, *testClock) {
	ctrl := gomock.NewController(t)
	routes := mocks.NewMockRouteRepo(ctrl)
	routes.EXPECT().GetRoute(gomock.Any(), "R1").Return(testRoute(), nil).AnyTimes()
	routes.EXPECT().GetRoute(gomock.Any(), "R2").Return(&models.Route{ID: "R2", Active: false}, nil).AnyTimes()
	routes.EXPECT().GetRoute(gomock.Any(), gomock.Any()).Return(nil, apperrors.NewNotFound("route", "unknown")).AnyTimes()

	pub := &recordingPublisher{}
	clock := &testClock{now: time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC)}
	var seq atomic.Int64
	m := NewManager(
		Config{SessionRetention: 30 * time.Minute, RequestTokenTTL: 10 * time.Minute},
		geofence.NewEngine(geofence.ConfigFrom(models.DefaultTrackingConfig())),
		routes,
		pub,
		WithClock(clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("S%d", seq.Add(1)) }),
	)
	return m, pub, clock
}

func morning(token string) models.StartSessionRequest {
	return models.StartSessionRequest{RouteID: "R1", DriverID: "D1", Type: models.SessionTypeMorning, RequestToken: token}
}

func pointAt(base time.Time, seconds int, distanceFromStopA float64) models.LocationPoint {
	p := utils.Destination(utils.GeoPoint{Latitude: -6.2, Longitude: 106.8}, 180, distanceFromStopA)
	return models.LocationPoint{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     8,
		Timestamp: base.Add(time.Duration(seconds) * time.Second),
	}
}

func record(m *Manager, id string, p models.LocationPoint) error {
	return m.Update(context.Background(), id, func(tx *Tx) error {
		if err := tx.RecordPosition(p); err != nil {
			return err
		}
		tx.Emit(models.LocationEvent{SessionID: tx.SessionID(), RouteID: tx.RouteID(), Point: p})
		return nil
	})
}

func TestStart(t *testing.T) {
	m, pub, _ := setupManager(t)
	ctx := context.Background()

	s, err := m.Start(ctx, morning(""))
	require.NoError(t, err)
	assert.Equal(t, "S1", s.ID)
	assert.Equal(t, models.SessionStatusActive, s.Status)
	assert.Equal(t, "stop-a", s.TargetStopID)
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, []models.EventKind{models.EventKindTripStarted}, pub.kinds())
	assert.Equal(t, 1, m.ActiveCount())

	t.Run("duplicate active session is rejected", func(t *testing.T) {
		_, err := m.Start(ctx, morning(""))
		var dup *apperrors.DuplicateSessionError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "S1", dup.ExistingSessionID)
		assert.Equal(t, 1, m.ActiveCount())
	})

	t.Run("evening session on the same route is independent", func(t *testing.T) {
		req := morning("")
		req.Type = models.SessionTypeEvening
		s2, err := m.Start(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "S2", s2.ID)
		assert.Equal(t, 2, m.ActiveCount())
	})

	t.Run("invalid session type", func(t *testing.T) {
		req := morning("")
		req.Type = "noon"
		_, err := m.Start(ctx, req)
		assert.Equal(t, apperrors.CodeValidation, apperrors.Code(err))
	})

	t.Run("inactive route", func(t *testing.T) {
		req := morning("")
		req.RouteID = "R2"
		_, err := m.Start(ctx, req)
		assert.Equal(t, apperrors.CodeValidation, apperrors.Code(err))
	})

	t.Run("unknown route", func(t *testing.T) {
		req := morning("")
		req.RouteID = "R404"
		_, err := m.Start(ctx, req)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.Code(err))
	})
}

func TestStart_IdempotentUnderRequestToken(t *testing.T) {
	m, pub, _ := setupManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*models.Session, 10)
	errs := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Start(ctx, morning("tok-1"))
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, m.ActiveCount())
	assert.Equal(t, []models.EventKind{models.EventKindTripStarted}, pub.kinds())

	// A different token is a new request and hits the duplicate check.
	_, err := m.Start(ctx, morning("tok-2"))
	assert.Equal(t, apperrors.CodeDuplicateSession, apperrors.Code(err))
}

func TestStart_ConcurrentDistinctRequestsCreateOneSession(t *testing.T) {
	m, _, _ := setupManager(t)

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Start(context.Background(), morning(fmt.Sprintf("tok-%d", i)))
			switch apperrors.Code(err) {
			case "":
				ok.Add(1)
			case apperrors.CodeDuplicateSession:
				dup.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(19), dup.Load())
}

func TestRecordPosition(t *testing.T) {
	m, pub, clock := setupManager(t)
	s, err := m.Start(context.Background(), morning(""))
	require.NoError(t, err)
	base := clock.Now()

	require.NoError(t, record(m, s.ID, pointAt(base, 100, 900)))

	err = record(m, s.ID, pointAt(base, 95, 880))
	var stale *apperrors.StaleUpdateError
	require.ErrorAs(t, err, &stale)

	err = record(m, s.ID, pointAt(base, 100, 880))
	assert.Equal(t, apperrors.CodeStaleUpdate, apperrors.Code(err))

	timeline, err := m.Timeline(s.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 1)
	assert.Equal(t, []models.EventKind{models.EventKindTripStarted, models.EventKindLocation}, pub.kinds())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPosition)
	assert.Equal(t, base.Add(100*time.Second), got.CurrentPosition.Timestamp)
}

func TestEnd(t *testing.T) {
	m, pub, clock := setupManager(t)
	ctx := context.Background()
	s, err := m.Start(ctx, morning(""))
	require.NoError(t, err)
	require.NoError(t, record(m, s.ID, pointAt(clock.Now(), 10, 900)))

	ended, err := m.End(ctx, s.ID, "end-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, ended.Status)
	require.NotNil(t, ended.EndedAt)
	require.NotNil(t, ended.CurrentPosition)
	assert.Equal(t, 0, m.ActiveCount())

	t.Run("location update after end is an invalid state", func(t *testing.T) {
		err := record(m, s.ID, pointAt(clock.Now(), 20, 880))
		var state *apperrors.InvalidStateError
		require.ErrorAs(t, err, &state)
		assert.Equal(t, "COMPLETED", state.Status)

		frozen, err := m.Get(s.ID)
		require.NoError(t, err)
		assert.Equal(t, ended.CurrentPosition, frozen.CurrentPosition)
	})

	t.Run("retried end token returns the original result", func(t *testing.T) {
		again, err := m.End(ctx, s.ID, "end-1")
		require.NoError(t, err)
		assert.Equal(t, ended.EndedAt, again.EndedAt)
	})

	t.Run("new end request on completed session", func(t *testing.T) {
		_, err := m.End(ctx, s.ID, "end-2")
		assert.Equal(t, apperrors.CodeInvalidState, apperrors.Code(err))
	})

	t.Run("route is free for a new session", func(t *testing.T) {
		_, err := m.Start(ctx, morning(""))
		assert.NoError(t, err)
	})

	kinds := pub.kinds()
	assert.Equal(t, models.EventKindTripEnded, kinds[2])
}

func TestRequestTokens_ScopedToDriverAndSession(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	// Arrange: two drivers whose apps both number their requests from "1"
	a, err := m.Start(ctx, morning("1"))
	require.NoError(t, err)
	evening := models.StartSessionRequest{RouteID: "R1", DriverID: "D2", Type: models.SessionTypeEvening, RequestToken: "1"}
	b, err := m.Start(ctx, evening)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	// Act
	endedA, err := m.End(ctx, a.ID, "2")
	require.NoError(t, err)
	endedB, err := m.End(ctx, b.ID, "2")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, a.ID, endedA.ID)
	assert.Equal(t, b.ID, endedB.ID)
	got, err := m.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)

	t.Run("same driver retry still replays", func(t *testing.T) {
		again, err := m.Start(ctx, evening)
		require.NoError(t, err)
		assert.Equal(t, b.ID, again.ID)
	})

	t.Run("stop event tokens do not cross sessions", func(t *testing.T) {
		c, err := m.Start(ctx, morning("3"))
		require.NoError(t, err)
		d, err := m.Start(ctx, models.StartSessionRequest{RouteID: "R1", DriverID: "D2", Type: models.SessionTypeEvening, RequestToken: "3"})
		require.NoError(t, err)

		first, err := m.RecordStopEvent(ctx, models.StopEventRequest{SessionID: c.ID, StopID: "stop-a", Type: models.StopEventArrived, RequestToken: "4"})
		require.NoError(t, err)
		second, err := m.RecordStopEvent(ctx, models.StopEventRequest{SessionID: d.ID, StopID: "stop-a", Type: models.StopEventArrived, RequestToken: "4"})
		require.NoError(t, err)

		assert.Equal(t, c.ID, first.SessionID)
		assert.Equal(t, d.ID, second.SessionID)
		events, err := m.StopEvents(d.ID)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestCancel(t *testing.T) {
	m, pub, _ := setupManager(t)
	ctx := context.Background()

	t.Run("from not started", func(t *testing.T) {
		s, err := m.Schedule(ctx, morning("sched-1"))
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusNotStarted, s.Status)

		c, err := m.Cancel(ctx, s.ID, "")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCancelled, c.Status)
		assert.Empty(t, pub.kinds())
	})

	t.Run("from active", func(t *testing.T) {
		s, err := m.Start(ctx, morning(""))
		require.NoError(t, err)
		c, err := m.Cancel(ctx, s.ID, "")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCancelled, c.Status)
		assert.Equal(t, []models.EventKind{models.EventKindTripStarted, models.EventKindTripEnded}, pub.kinds())
	})

	t.Run("end from not started is invalid", func(t *testing.T) {
		s, err := m.Schedule(ctx, morning(""))
		require.NoError(t, err)
		_, err = m.End(ctx, s.ID, "")
		assert.Equal(t, apperrors.CodeInvalidState, apperrors.Code(err))
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := m.Cancel(ctx, "nope", "")
		assert.Equal(t, apperrors.CodeNotFound, apperrors.Code(err))
	})
}

func TestScheduleAndActivate(t *testing.T) {
	m, pub, _ := setupManager(t)
	ctx := context.Background()

	first, err := m.Schedule(ctx, morning(""))
	require.NoError(t, err)
	second, err := m.Schedule(ctx, morning(""))
	require.NoError(t, err)

	err = record(m, first.ID, pointAt(time.Now(), 1, 500))
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.Code(err))

	active, err := m.Activate(ctx, first.ID, "act-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, active.Status)
	assert.Equal(t, "stop-a", active.TargetStopID)

	_, err = m.Activate(ctx, second.ID, "")
	assert.Equal(t, apperrors.CodeDuplicateSession, apperrors.Code(err))

	replayed, err := m.Activate(ctx, first.ID, "act-1")
	require.NoError(t, err)
	assert.Equal(t, active.ID, replayed.ID)
	assert.Equal(t, []models.EventKind{models.EventKindTripStarted}, pub.kinds())
}

func TestEvaluate_ApproachScenario(t *testing.T) {
	m, pub, clock := setupManager(t)
	s, err := m.Start(context.Background(), morning(""))
	require.NoError(t, err)
	base := clock.Now()

	var outcomes []Outcome
	for i, d := range []float64{600, 450, 180, 170} {
		p := pointAt(base, (i+1)*15, d)
		err := m.Update(context.Background(), s.ID, func(tx *Tx) error {
			if err := tx.RecordPosition(p); err != nil {
				return err
			}
			out := tx.Evaluate(p)
			for _, a := range out.Alerts {
				tx.Emit(models.ProximityAlertEvent{ProximityAlert: a})
			}
			for _, ev := range out.StopEvents {
				tx.Emit(models.StopEventEvent{StopEvent: ev})
			}
			outcomes = append(outcomes, out)
			return nil
		})
		require.NoError(t, err)
	}

	assert.Empty(t, outcomes[0].Alerts)
	require.Len(t, outcomes[1].Alerts, 1)
	assert.Equal(t, models.ThresholdFar, outcomes[1].Alerts[0].ThresholdType)
	require.Len(t, outcomes[2].Alerts, 1)
	assert.Equal(t, models.ThresholdNear, outcomes[2].Alerts[0].ThresholdType)
	assert.Empty(t, outcomes[2].StopEvents)
	require.Len(t, outcomes[3].StopEvents, 1)
	assert.Equal(t, models.StopEventArrived, outcomes[3].StopEvents[0].Type)
	assert.Equal(t, models.StopEventSourceGeofence, outcomes[3].StopEvents[0].Source)

	assert.Equal(t, []models.EventKind{
		models.EventKindTripStarted,
		models.EventKindProximityAlert,
		models.EventKindProximityAlert,
		models.EventKindStopEvent,
	}, pub.kinds())

	events, err := m.StopEvents(s.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecordStopEvent(t *testing.T) {
	m, pub, _ := setupManager(t)
	ctx := context.Background()
	s, err := m.Start(ctx, morning(""))
	require.NoError(t, err)
	boarded := 7

	req := func(stopID string, typ models.StopEventType, token string) models.StopEventRequest {
		return models.StopEventRequest{SessionID: s.ID, StopID: stopID, Type: typ, StudentsBoarded: &boarded, Notes: "gate B", RequestToken: token}
	}

	_, err = m.RecordStopEvent(ctx, req("stop-x", models.StopEventArrived, ""))
	assert.Equal(t, apperrors.CodeNotFound, apperrors.Code(err))

	_, err = m.RecordStopEvent(ctx, req("stop-b", models.StopEventArrived, ""))
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.Code(err))

	_, err = m.RecordStopEvent(ctx, req("stop-a", models.StopEventDeparted, ""))
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.Code(err))

	arrived, err := m.RecordStopEvent(ctx, req("stop-a", models.StopEventArrived, "stop-tok-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StopEventSourceDriver, arrived.Source)
	assert.Equal(t, 7, *arrived.StudentsBoarded)
	assert.Equal(t, "gate B", arrived.Notes)

	replayed, err := m.RecordStopEvent(ctx, req("stop-a", models.StopEventArrived, "stop-tok-1"))
	require.NoError(t, err)
	assert.Equal(t, arrived.Timestamp, replayed.Timestamp)

	_, err = m.RecordStopEvent(ctx, req("stop-a", models.StopEventArrived, "stop-tok-2"))
	assert.Equal(t, apperrors.CodeInvalidState, apperrors.Code(err))

	_, err = m.RecordStopEvent(ctx, req("stop-a", models.StopEventDeparted, ""))
	require.NoError(t, err)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "stop-b", got.TargetStopID)

	assert.Equal(t, []models.EventKind{
		models.EventKindTripStarted,
		models.EventKindStopEvent,
		models.EventKindStopEvent,
	}, pub.kinds())
}

func TestActiveSnapshot(t *testing.T) {
	m, _, clock := setupManager(t)
	ctx := context.Background()

	snap := m.ActiveSnapshot("R1")
	assert.False(t, snap.Active)

	s, err := m.Start(ctx, morning(""))
	require.NoError(t, err)
	require.NoError(t, record(m, s.ID, pointAt(clock.Now(), 30, 800)))

	snap = m.ActiveSnapshot("R1")
	assert.True(t, snap.Active)
	assert.Equal(t, s.ID, snap.SessionID)
	assert.Equal(t, "stop-a", snap.TargetStopID)
	require.NotNil(t, snap.Position)
	assert.Equal(t, clock.Now().Add(30*time.Second), snap.Position.Timestamp)
	require.NotNil(t, snap.EtaMinutes)

	_, err = m.End(ctx, s.ID, "")
	require.NoError(t, err)
	assert.False(t, m.ActiveSnapshot("R1").Active)
}

func TestSweep(t *testing.T) {
	m, _, clock := setupManager(t)
	ctx := context.Background()

	s, err := m.Start(ctx, morning("tok"))
	require.NoError(t, err)
	_, err = m.End(ctx, s.ID, "")
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	assert.Equal(t, 0, m.Sweep())
	_, err = m.Get(s.ID)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	_, err = m.Get(s.ID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.Code(err))

	// The start token expired, so the same token starts a fresh session.
	fresh, err := m.Start(ctx, morning("tok"))
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, fresh.ID)
}

func TestAssertSingleActive_PanicsOnCorruptedIndex(t *testing.T) {
	m, _, _ := setupManager(t)
	_, err := m.Start(context.Background(), morning(""))
	require.NoError(t, err)

	// Simulate a lost index entry while the session is still flagged active.
	m.mu.Lock()
	delete(m.active, activeKey{routeID: "R1", sessionType: models.SessionTypeMorning})
	m.mu.Unlock()

	assert.PanicsWithValue(t, apperrors.InvariantViolation{
		Invariant: "single-active-session",
		Detail:    "route R1 type morning already has 1 active sessions outside the index",
	}, func() {
		_, _ = m.Start(context.Background(), morning(""))
	})
}

func TestAcceptedTimestampsStrictlyIncreaseProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted points are strictly increasing and stale points are never published", prop.ForAll(
		func(offsets []int) bool {
			m, pub, clock := setupManager(t)
			s, err := m.Start(context.Background(), morning(""))
			if err != nil {
				return false
			}
			base := clock.Now()

			var last time.Time
			for _, off := range offsets {
				p := pointAt(base, off, 900)
				err := record(m, s.ID, p)
				shouldAccept := last.IsZero() || p.Timestamp.After(last)
				if shouldAccept != (err == nil) {
					return false
				}
				if err == nil {
					last = p.Timestamp
				} else if apperrors.Code(err) != apperrors.CodeStaleUpdate {
					return false
				}
			}

			timeline, _ := m.Timeline(s.ID)
			for i := 1; i < len(timeline); i++ {
				if !timeline[i].Timestamp.After(timeline[i-1].Timestamp) {
					return false
				}
			}
			// one trip:started plus one location:update per accepted point
			return len(pub.kinds()) == len(timeline)+1
		},
		gen.SliceOf(gen.IntRange(0, 500)),
	))

	properties.TestingRun(t)
}
