package http

import "time"

const frameWindow = time.Minute

// frameBudget caps inbound frames per connection. Used only from the read loop.
type frameBudget struct {
	limit   int
	counter int
	start   time.Time
	warned  bool
}

func newFrameBudget(limit int) *frameBudget {
	return &frameBudget{limit: limit}
}

// allow counts a frame and reports whether it fits in the current window.
// The first rejected frame of a window also reports notify=true.
func (b *frameBudget) allow(now time.Time) (ok, notify bool) {
	if b == nil || b.limit <= 0 {
		return true, false
	}
	if b.start.IsZero() || now.Sub(b.start) >= frameWindow {
		b.start = now
		b.counter = 0
		b.warned = false
	}
	b.counter++
	if b.counter <= b.limit {
		return true, false
	}
	notify = !b.warned
	b.warned = true
	return false, notify
}
