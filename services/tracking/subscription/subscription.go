package subscription

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/piresc/schoolbus/internal/pkg/models"
)

// Subscription is one subscriber's stream of a route's events
type Subscription struct {
	RouteID      string
	SubscriberID string

	// Initial is the snapshot captured when the subscription was registered
	Initial models.Snapshot

	mu      sync.Mutex
	ch      chan models.Event
	done    chan struct{}
	closed  bool
	dropped atomic.Uint64
	seen    atomic.Int64
}

func newSubscription(routeID, subscriberID string, size int, now time.Time) *Subscription {
	s := &Subscription{
		RouteID:      routeID,
		SubscriberID: subscriberID,
		ch:           make(chan models.Event, size),
		done:         make(chan struct{}),
	}
	s.seen.Store(now.UnixNano())
	return s
}

// Events is closed when the subscription is removed
func (s *Subscription) Events() <-chan models.Event {
	return s.ch
}

// Done is closed when the subscription is removed
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many queued events were discarded to make room
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) LastSeen() time.Time {
	return time.Unix(0, s.seen.Load())
}

func (s *Subscription) touch(now time.Time) {
	s.seen.Store(now.UnixNano())
}

// push enqueues ev. When the queue is full the oldest queued event is
// discarded; the producer never blocks.
func (s *Subscription) push(ev models.Event) (queued, evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}

	select {
	case s.ch <- ev:
		return true, false
	default:
	}

	select {
	case <-s.ch:
		evicted = true
		s.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- ev:
		return true, evicted
	default:
		return false, evicted
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}
