// Package subscription tracks which subscribers listen to which route and
// hands each of them a bounded, cancellable stream of events.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/models"
)

// SnapshotSource provides the current state of a route without taking any
// session lock
type SnapshotSource interface {
	ActiveSnapshot(routeID string) models.Snapshot
}

// Config holds registry limits
type Config struct {
	QueueSize   int
	IdleTimeout time.Duration
}

type routeBucket struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// Registry maps routes to their subscribers. Broadcasts take a route read
// lock; subscribe and unsubscribe take that route's write lock only.
// Route buckets are never removed: their number is bounded by the route
// configuration.
type Registry struct {
	cfg       Config
	snapshots SnapshotSource
	now       func() time.Time

	mu     sync.RWMutex
	routes map[string]*routeBucket

	ownersMu sync.RWMutex
	owners   map[string]map[string]*Subscription
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config, snapshots SnapshotSource) *Registry {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = models.DefaultTrackingConfig().SubscriberQueue
	}
	return &Registry{
		cfg:       cfg,
		snapshots: snapshots,
		now:       models.Now,
		routes:    make(map[string]*routeBucket),
		owners:    make(map[string]map[string]*Subscription),
	}
}

func (r *Registry) bucket(routeID string, create bool) *routeBucket {
	r.mu.RLock()
	b := r.routes[routeID]
	r.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b = r.routes[routeID]; b == nil {
		b = &routeBucket{subs: make(map[string]*Subscription)}
		r.routes[routeID] = b
	}
	return b
}

// Subscribe registers subscriberID on routeID and returns its stream. The
// current snapshot is captured under the route write lock, so every event
// broadcast afterwards is delivered on the stream and nothing broadcast
// before is missing from the snapshot. Re-subscribing replaces the previous
// subscription, whose stream is closed.
func (r *Registry) Subscribe(routeID, subscriberID string) *Subscription {
	b := r.bucket(routeID, true)

	b.mu.Lock()
	defer b.mu.Unlock()

	if old := b.subs[subscriberID]; old != nil {
		old.close()
	}
	sub := newSubscription(routeID, subscriberID, r.cfg.QueueSize, r.now())
	sub.Initial = r.snapshots.ActiveSnapshot(routeID)
	b.subs[subscriberID] = sub

	r.ownersMu.Lock()
	if r.owners[subscriberID] == nil {
		r.owners[subscriberID] = make(map[string]*Subscription)
	}
	r.owners[subscriberID][routeID] = sub
	r.ownersMu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its stream
func (r *Registry) Unsubscribe(routeID, subscriberID string) bool {
	b := r.bucket(routeID, false)
	if b == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[subscriberID]
	if !ok {
		return false
	}
	r.remove(b, sub)
	return true
}

// remove drops sub. Caller holds b.mu.
func (r *Registry) remove(b *routeBucket, sub *Subscription) {
	delete(b.subs, sub.SubscriberID)
	sub.close()

	r.ownersMu.Lock()
	if routes := r.owners[sub.SubscriberID]; routes != nil {
		if routes[sub.RouteID] == sub {
			delete(routes, sub.RouteID)
		}
		if len(routes) == 0 {
			delete(r.owners, sub.SubscriberID)
		}
	}
	r.ownersMu.Unlock()
}

// UnsubscribeAll removes every subscription of subscriberID
func (r *Registry) UnsubscribeAll(subscriberID string) int {
	r.ownersMu.RLock()
	routes := make([]string, 0, len(r.owners[subscriberID]))
	for routeID := range r.owners[subscriberID] {
		routes = append(routes, routeID)
	}
	r.ownersMu.RUnlock()

	n := 0
	for _, routeID := range routes {
		if r.Unsubscribe(routeID, subscriberID) {
			n++
		}
	}
	return n
}

// Touch marks every subscription of subscriberID as alive
func (r *Registry) Touch(subscriberID string) {
	now := r.now()
	r.ownersMu.RLock()
	defer r.ownersMu.RUnlock()
	for _, sub := range r.owners[subscriberID] {
		sub.touch(now)
	}
}

// Broadcast pushes ev to every subscriber of its route without blocking
func (r *Registry) Broadcast(ev models.Event) (delivered, dropped int) {
	b := r.bucket(ev.Route(), false)
	if b == nil {
		return 0, 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		ok, evicted := sub.push(ev)
		if ok {
			delivered++
		}
		if evicted {
			dropped++
		}
	}
	return delivered, dropped
}

// Subscribers returns the subscriber ids of a route
func (r *Registry) Subscribers(routeID string) []string {
	b := r.bucket(routeID, false)
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the total number of subscriptions
func (r *Registry) Count() int {
	r.ownersMu.RLock()
	defer r.ownersMu.RUnlock()
	n := 0
	for _, routes := range r.owners {
		n += len(routes)
	}
	return n
}

// Reap removes subscriptions not touched within the idle timeout
func (r *Registry) Reap() int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.RLock()
	buckets := make([]*routeBucket, 0, len(r.routes))
	for _, b := range r.routes {
		buckets = append(buckets, b)
	}
	r.mu.RUnlock()

	reaped := 0
	for _, b := range buckets {
		b.mu.Lock()
		for _, sub := range b.subs {
			if sub.LastSeen().Before(cutoff) {
				r.remove(b, sub)
				reaped++
			}
		}
		b.mu.Unlock()
	}
	return reaped
}

// Run reaps idle subscriptions every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(); n > 0 {
				logger.Info("Reaped idle subscriptions", logger.Int("count", n))
			}
		}
	}
}

// Close closes every subscription
func (r *Registry) Close() {
	r.mu.RLock()
	buckets := make([]*routeBucket, 0, len(r.routes))
	for _, b := range r.routes {
		buckets = append(buckets, b)
	}
	r.mu.RUnlock()

	for _, b := range buckets {
		b.mu.Lock()
		for _, sub := range b.subs {
			r.remove(b, sub)
		}
		b.mu.Unlock()
	}
}
