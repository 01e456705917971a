package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/piresc/schoolbus/internal/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

// fakeServer speaks the tracking envelope. respond decides what to send back
// for each request; a nil return sends nothing.
type fakeServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []models.WSMessage
	conns    []*websocket.Conn
	writeMu  sync.Mutex
	respond  func(n int, msg models.WSMessage) *models.WSMessage
	accepted chan *websocket.Conn
}

func newFakeServer(t *testing.T, respond func(n int, msg models.WSMessage) *models.WSMessage) *fakeServer {
	fs := &fakeServer{respond: respond, accepted: make(chan *websocket.Conn, 8)}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.conns = append(fs.conns, conn)
	fs.mu.Unlock()
	fs.accepted <- conn

	for {
		var msg models.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		fs.mu.Lock()
		fs.received = append(fs.received, msg)
		n := len(fs.received)
		fs.mu.Unlock()

		if fs.respond == nil {
			continue
		}
		if reply := fs.respond(n, msg); reply != nil {
			fs.write(conn, *reply)
		}
	}
}

func (fs *fakeServer) write(conn *websocket.Conn, msg models.WSMessage) {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	_ = conn.WriteJSON(msg)
}

func (fs *fakeServer) messages() []models.WSMessage {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]models.WSMessage(nil), fs.received...)
}

func (fs *fakeServer) waitConn(t *testing.T) *websocket.Conn {
	select {
	case conn := <-fs.accepted:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func ackFor(msg models.WSMessage, ack models.WSAck) *models.WSMessage {
	raw, _ := json.Marshal(ack)
	return &models.WSMessage{Event: constants.EventAck, RequestID: msg.RequestID, Data: raw}
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url, testToken)
	cfg.RequestTimeout = 200 * time.Millisecond
	cfg.RequestRetries = 2
	cfg.Reconnect = retry.Config{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
		Multiplier: 2,
		Jitter:     true,
	}
	return cfg
}

func openClient(t *testing.T, fs *fakeServer) *Client {
	c, err := Open(context.Background(), testConfig(fs.url()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func nextEvent(t *testing.T, c *Client) Event {
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestOpen_RejectedHandshakeFailsFast(t *testing.T) {
	// Arrange
	fs := newFakeServer(t, nil)
	cfg := testConfig(fs.url())
	cfg.Token = "wrong"

	// Act
	start := time.Now()
	_, err := Open(context.Background(), cfg)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Less(t, time.Since(start), time.Second)
}

func TestStartTrip_ReturnsSessionID(t *testing.T) {
	fs := newFakeServer(t, func(_ int, msg models.WSMessage) *models.WSMessage {
		return ackFor(msg, models.WSAck{OK: true, SessionID: "sess-1", Status: "active"})
	})
	c := openClient(t, fs)

	sessionID, err := c.StartTrip(context.Background(), "route-1", models.SessionTypeMorning)

	require.NoError(t, err)
	assert.Equal(t, "sess-1", sessionID)

	msgs := fs.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, constants.EventTripStart, msgs[0].Event)
	assert.NotEmpty(t, msgs[0].RequestID)

	var payload models.TripStartPayload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &payload))
	assert.Equal(t, "route-1", payload.RouteID)
	assert.Equal(t, "morning", payload.SessionType)
}

func TestRequest_RetriesUnderOneRequestID(t *testing.T) {
	// Arrange: the first attempt goes unanswered
	fs := newFakeServer(t, func(n int, msg models.WSMessage) *models.WSMessage {
		if n == 1 {
			return nil
		}
		return ackFor(msg, models.WSAck{OK: true, SessionID: "sess-1"})
	})
	c := openClient(t, fs)

	// Act
	sessionID, err := c.StartTrip(context.Background(), "route-1", models.SessionTypeEvening)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sessionID)
	msgs := fs.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, msgs[0].RequestID, msgs[1].RequestID)
}

func TestRequest_TimesOutAfterBoundedAttempts(t *testing.T) {
	fs := newFakeServer(t, nil)
	c := openClient(t, fs)

	err := c.EndTrip(context.Background(), "sess-1", false)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	msgs := fs.messages()
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.Equal(t, msgs[0].RequestID, m.RequestID)
	}
}

func TestRequest_RejectionIsNotRetried(t *testing.T) {
	fs := newFakeServer(t, func(_ int, msg models.WSMessage) *models.WSMessage {
		return ackFor(msg, models.WSAck{
			OK:        false,
			Code:      "duplicate_session",
			Message:   "route already has an active session",
			SessionID: "sess-existing",
		})
	})
	c := openClient(t, fs)

	sessionID, err := c.StartTrip(context.Background(), "route-1", models.SessionTypeMorning)

	var ackErr *AckError
	require.True(t, errors.As(err, &ackErr))
	assert.Equal(t, "duplicate_session", ackErr.Code)
	assert.Equal(t, "sess-existing", ackErr.SessionID)
	assert.Equal(t, "sess-existing", sessionID)
	assert.Len(t, fs.messages(), 1)
}

func TestUpdateLocation_SentOnce(t *testing.T) {
	fs := newFakeServer(t, nil)
	c := openClient(t, fs)
	lat, lng := -6.2, 106.8

	_, err := c.UpdateLocation(context.Background(), models.LocationUpdatePayload{
		SessionID: "sess-1",
		Latitude:  &lat,
		Longitude: &lng,
		Timestamp: time.Now().UnixMilli(),
	})

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Len(t, fs.messages(), 1)
}

func TestPing(t *testing.T) {
	fs := newFakeServer(t, func(_ int, msg models.WSMessage) *models.WSMessage {
		return &models.WSMessage{Event: constants.EventPong, RequestID: msg.RequestID}
	})
	c := openClient(t, fs)

	assert.NoError(t, c.Ping(context.Background()))
}

func TestEvents_TypedSnapshot(t *testing.T) {
	// Arrange
	fs := newFakeServer(t, func(_ int, msg models.WSMessage) *models.WSMessage {
		return ackFor(msg, models.WSAck{OK: true, Status: "subscribed"})
	})
	c := openClient(t, fs)
	conn := fs.waitConn(t)

	require.NoError(t, c.Subscribe(context.Background(), "route-1"))
	raw, err := json.Marshal(models.SnapshotEvent{Snapshot: models.Snapshot{RouteID: "route-1", Active: true, SessionID: "sess-1"}})
	require.NoError(t, err)

	// Act
	fs.write(conn, models.WSMessage{Event: string(models.EventKindSnapshot), Data: raw})
	ev := nextEvent(t, c)

	// Assert
	assert.Equal(t, "location:current", ev.Kind)
	typed, err := ev.Typed()
	require.NoError(t, err)
	snap, ok := typed.(models.SnapshotEvent)
	require.True(t, ok)
	assert.Equal(t, "sess-1", snap.Snapshot.SessionID)
	assert.Equal(t, []string{"route-1"}, c.Subscriptions())
}

func TestReconnect_ResubscribesEveryRoute(t *testing.T) {
	// Arrange
	fs := newFakeServer(t, func(_ int, msg models.WSMessage) *models.WSMessage {
		return ackFor(msg, models.WSAck{OK: true, Status: "subscribed"})
	})
	c := openClient(t, fs)
	first := fs.waitConn(t)
	require.NoError(t, c.Subscribe(context.Background(), "route-1"))
	require.NoError(t, c.Subscribe(context.Background(), "route-2"))
	require.NoError(t, c.Unsubscribe(context.Background(), "route-2"))
	require.NoError(t, c.Subscribe(context.Background(), "route-3"))

	// Act: the server drops the connection
	first.Close()
	fs.waitConn(t)
	ev := nextEvent(t, c)

	// Assert
	assert.Equal(t, KindReconnected, ev.Kind)
	msgs := fs.messages()
	var resubscribed []string
	for _, m := range msgs[4:] {
		require.Equal(t, constants.EventSubscribe, m.Event)
		var p models.SubscribePayload
		require.NoError(t, json.Unmarshal(m.Data, &p))
		resubscribed = append(resubscribed, p.RouteID)
	}
	assert.ElementsMatch(t, []string{"route-1", "route-3"}, resubscribed)
}

func TestReconnect_GivesUpAfterCap(t *testing.T) {
	// Arrange
	fs := newFakeServer(t, nil)
	c := openClient(t, fs)
	conn := fs.waitConn(t)

	// Act: the server goes away for good
	fs.srv.Close()
	conn.Close()

	// Assert
	select {
	case _, ok := <-c.Events():
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("event stream not closed")
	}
	require.Error(t, c.Err())
	assert.True(t, errors.Is(c.Err(), retry.ErrExhausted))

	_, err := c.Request(context.Background(), constants.EventPing, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_ClosesEventsWithoutError(t *testing.T) {
	fs := newFakeServer(t, nil)
	c, err := Open(context.Background(), testConfig(fs.url()))
	require.NoError(t, err)

	require.NoError(t, c.Close())

	_, ok := <-c.Events()
	assert.False(t, ok)
	assert.NoError(t, c.Err())
}
