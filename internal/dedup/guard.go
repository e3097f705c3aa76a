// Package dedup provides a short-horizon idempotence filter keyed by
// correlation key.
//
// Push and poll observe the same mutation within a small bounded skew, so a
// key only needs to be remembered for a fixed TTL. Entries older than the TTL
// are purged on every Accept and by Sweep, keeping the guard bounded by the
// number of distinct keys accepted within one window.
package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the window in which equal keys are treated as duplicates.
const DefaultTTL = 5 * time.Second

// entry records when a key was accepted, in acceptance order.
type entry struct {
	key string
	at  time.Time
}

// Guard is a TTL-bounded set of recently accepted keys.
// It is safe for concurrent use.
type Guard struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	seen  map[string]time.Time
	order []entry
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// New creates a Guard. A non-positive ttl selects DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g := &Guard{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TTL returns the configured window.
func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// Accept records key and returns true if it was not accepted within the
// last TTL. It returns false for a duplicate, which the caller drops.
func (g *Guard) Accept(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.purgeLocked(now)

	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = now
	g.order = append(g.order, entry{key: key, at: now})
	return true
}

// Remember records key as accepted at the given time without checking for a
// duplicate. Keys already older than the TTL are ignored and times in the
// future are clamped to now. Used to seed the window from persisted history
// after a restart.
func (g *Guard) Remember(key string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if at.After(now) {
		at = now
	}
	if now.Sub(at) >= g.ttl {
		return
	}
	if prev, ok := g.seen[key]; ok && !at.After(prev) {
		return
	}
	g.seen[key] = at
	g.insertOrderedLocked(entry{key: key, at: at})
}

// Release forgets key immediately.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// The stale order entry is skipped by purgeLocked because its
	// timestamp no longer matches seen.
	delete(g.seen, key)
}

// Sweep purges expired entries and returns how many keys were removed.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	before := len(g.seen)
	g.purgeLocked(g.now())
	return before - len(g.seen)
}

// Len returns the number of keys currently inside the window.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Run sweeps on every interval tick until ctx is done.
func (g *Guard) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = g.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

// purgeLocked drops entries whose age is at least the TTL. order is sorted
// by acceptance time, so purging stops at the first live entry.
func (g *Guard) purgeLocked(now time.Time) {
	i := 0
	for ; i < len(g.order); i++ {
		e := g.order[i]
		if now.Sub(e.at) < g.ttl {
			break
		}
		if at, ok := g.seen[e.key]; ok && at.Equal(e.at) {
			delete(g.seen, e.key)
		}
		g.order[i] = entry{}
	}
	if i == 0 {
		return
	}
	if i == len(g.order) {
		g.order = g.order[:0]
		return
	}
	g.order = g.order[i:]
}

// insertOrderedLocked inserts e keeping order sorted by time.
func (g *Guard) insertOrderedLocked(e entry) {
	i := len(g.order)
	for i > 0 && g.order[i-1].at.After(e.at) {
		i--
	}
	g.order = append(g.order, entry{})
	copy(g.order[i+1:], g.order[i:])
	g.order[i] = e
}
