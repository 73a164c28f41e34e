package core

import (
	"sync"
	"time"
)

const (
	DefaultRateLimit  = 3
	DefaultRateWindow = 60 * time.Second
)

// RateLimiter implements a sliding-window message budget per key.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	limit   int
	window  time.Duration
}

type rateWindow struct {
	mu       sync.Mutex
	requests []time.Time
}

// NewRateLimiter creates a limiter allowing limit events per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		limit:   limit,
		window:  window,
	}
}

// Window returns the configured window length.
func (l *RateLimiter) Window() time.Duration {
	return l.window
}

// Check records an event for key at now if the budget allows it.
// When throttled it returns how long until the oldest event leaves the window.
func (l *RateLimiter) Check(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok {
		w = &rateWindow{}
		l.windows[key] = w
	}
	// Locked before the map is released so Sweep and Reset cannot drop w in between.
	w.mu.Lock()
	l.mu.Unlock()
	defer w.mu.Unlock()

	w.pruneLocked(now, l.window)
	if len(w.requests) >= l.limit {
		return false, l.window - now.Sub(w.requests[0])
	}
	w.requests = append(w.requests, now)
	return true, 0
}

// Reset forgets everything recorded for key.
func (l *RateLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[key]; ok {
		w.mu.Lock()
		w.requests = nil
		w.mu.Unlock()
		delete(l.windows, key)
	}
}

// Sweep drops windows that hold no events newer than the window.
func (l *RateLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		w.pruneLocked(now, l.window)
		empty := len(w.requests) == 0
		w.mu.Unlock()
		if empty {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

func (w *rateWindow) pruneLocked(now time.Time, window time.Duration) {
	kept := w.requests[:0]
	for _, t := range w.requests {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	w.requests = kept
}
