package ratelimit

import (
	"sync"
	"time"
)

// Limit is how many requests one client may make to one route per window.
type Limit struct {
	Requests int           `json:"requests_limit"`
	Window   time.Duration `json:"time_window"`
}

type visit struct {
	windowStart time.Time
	window      time.Duration
	count       int
}

// Limiter is a sliding-window admission gate keyed by (client, route). The
// counter map is shared across handler goroutines and is guarded by a mutex.
type Limiter struct {
	mu       sync.Mutex
	visits   map[string]*visit
	fallback Limit
	routes   map[string]Limit

	now func() time.Time
}

func New(fallback Limit) *Limiter {
	return &Limiter{
		visits:   make(map[string]*visit),
		routes:   make(map[string]Limit),
		fallback: fallback,
		now:      time.Now,
	}
}

// Allow reports whether one more request from client to route fits in the
// current window. Expired keys are swept on every call to bound memory.
func (l *Limiter) Allow(client, route string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	limit := l.fallback
	if rl, ok := l.routes[route]; ok {
		limit = rl
	}

	key := client + " " + route
	v, ok := l.visits[key]
	if !ok || now.Sub(v.windowStart) >= limit.Window {
		l.visits[key] = &visit{windowStart: now, window: limit.Window, count: 1}
		return true
	}
	if v.count >= limit.Requests {
		return false
	}
	v.count++
	return true
}

// SetRouteLimit overrides the limit for one route at runtime.
func (l *Limiter) SetRouteLimit(route string, limit Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes[route] = limit
}

// RouteLimits returns a copy of the per-route overrides.
func (l *Limiter) RouteLimits() map[string]Limit {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Limit, len(l.routes))
	for route, limit := range l.routes {
		out[route] = limit
	}
	return out
}

// Fallback returns the constructor default applied to routes without an
// override.
func (l *Limiter) Fallback() Limit {
	return l.fallback
}

// sweep drops every expired window. Caller holds the lock.
func (l *Limiter) sweep(now time.Time) {
	for key, v := range l.visits {
		if now.Sub(v.windowStart) >= v.window {
			delete(l.visits, key)
		}
	}
}
