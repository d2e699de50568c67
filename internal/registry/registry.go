package registry

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// ErrNotConnected is returned by Lookup when no live connection exists for
// the charge point.
var ErrNotConnected = errors.New("registry: charge point not connected")

// Conn is a live charge point connection handle. Call sends an outbound
// request frame and blocks until the correlated reply arrives or ctx expires.
type Conn interface {
	Call(ctx context.Context, action string, payload interface{}) (json.RawMessage, error)
	Close() error
}

const shardCount = 32

type entry struct {
	conn         Conn
	lastActivity time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Registry tracks live charge point connections. A charge point holds at
// most one connection; registering a new handle supersedes and closes the
// old one. Shards keep unrelated charge points off each other's locks.
type Registry struct {
	shards [shardCount]*shard
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return r
}

func (r *Registry) shardFor(chargePointID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chargePointID))
	return r.shards[h.Sum32()%shardCount]
}

// Register stores the connection for a charge point. A previous handle for
// the same identifier is closed; this resolves duplicate-boot races where a
// device reconnects before the server notices the old socket died.
func (r *Registry) Register(chargePointID string, conn Conn) {
	s := r.shardFor(chargePointID)
	s.mu.Lock()
	prev := s.entries[chargePointID]
	s.entries[chargePointID] = &entry{conn: conn, lastActivity: time.Now().UTC()}
	s.mu.Unlock()

	if prev != nil && prev.conn != conn {
		_ = prev.conn.Close()
	}
}

// Lookup returns the live connection, or ErrNotConnected.
func (r *Registry) Lookup(chargePointID string) (Conn, error) {
	s := r.shardFor(chargePointID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[chargePointID]
	if !ok {
		return nil, ErrNotConnected
	}
	return e.conn, nil
}

// Unregister removes the connection, but only if the given handle is still
// the registered one. A superseded handle unregistering late is a no-op.
func (r *Registry) Unregister(chargePointID string, conn Conn) {
	s := r.shardFor(chargePointID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chargePointID]
	if !ok || e.conn != conn {
		return
	}
	delete(s.entries, chargePointID)
}

// Touch updates the last-activity timestamp. Any inbound traffic counts as
// liveness, not just heartbeats.
func (r *Registry) Touch(chargePointID string) {
	s := r.shardFor(chargePointID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[chargePointID]; ok {
		e.lastActivity = time.Now().UTC()
	}
}

// LastActivity returns when the charge point was last heard from.
func (r *Registry) LastActivity(chargePointID string) (time.Time, bool) {
	s := r.shardFor(chargePointID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[chargePointID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActivity, true
}

// Connected reports whether the charge point currently has a live connection.
func (r *Registry) Connected(chargePointID string) bool {
	_, err := r.Lookup(chargePointID)
	return err == nil
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// Stale returns identifiers and handles of charge points whose last activity
// is older than the deadline. Collected per shard without holding any lock
// across shards.
func (r *Registry) Stale(deadline time.Duration, now time.Time) map[string]Conn {
	stale := make(map[string]Conn)
	for _, s := range r.shards {
		s.mu.RLock()
		for id, e := range s.entries {
			if now.Sub(e.lastActivity) > deadline {
				stale[id] = e.conn
			}
		}
		s.mu.RUnlock()
	}
	return stale
}
