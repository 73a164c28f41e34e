package core

import (
	"math/rand/v2"
	"sync"
)

// DefaultPalette is the set of display colors handed out to identities.
var DefaultPalette = []string{
	"#00D0E0", "#00D0F0", "#00E000", "#00E060", "#CBCC32",
	"#99D65B", "#26D8D8", "#DBC1BC", "#EFD175", "#D6D65B",
}

// ColorPool hands out display colors. Acquire never fails: when every
// palette color is held, the least-shared one is reused.
type ColorPool struct {
	mu      sync.Mutex
	palette []string
	known   map[string]struct{}
	free    []string
	holders map[string]int
}

// NewColorPool creates a pool over palette, or DefaultPalette when empty.
func NewColorPool(palette []string) *ColorPool {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	p := &ColorPool{
		known:   make(map[string]struct{}, len(palette)),
		holders: make(map[string]int, len(palette)),
	}
	for _, c := range palette {
		if _, dup := p.known[c]; dup {
			continue
		}
		p.known[c] = struct{}{}
		p.palette = append(p.palette, c)
	}
	p.free = append([]string(nil), p.palette...)
	p.shuffleLocked()
	return p
}

// Acquire takes a color for a new identity.
func (p *ColorPool) Acquire() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked()
}

// Claim takes the given color if it is free, otherwise behaves like Acquire.
func (p *ColorPool) Claim(color string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.free {
		if c == color {
			p.free = append(p.free[:i], p.free[i+1:]...)
			p.holders[c]++
			return c
		}
	}
	return p.acquireLocked()
}

// Release gives a color back. Unknown or already released colors are ignored.
func (p *ColorPool) Release(color string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.holders[color]
	switch {
	case n == 0:
		return
	case n > 1:
		p.holders[color] = n - 1
		return
	}
	delete(p.holders, color)
	p.free = append(p.free, color)
	p.shuffleLocked()
}

// Available returns the number of colors nobody holds.
func (p *ColorPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Contains reports whether color belongs to the palette.
func (p *ColorPool) Contains(color string) bool {
	_, ok := p.known[color]
	return ok
}

func (p *ColorPool) acquireLocked() string {
	if len(p.free) > 0 {
		c := p.free[0]
		p.free = p.free[1:]
		p.holders[c]++
		return c
	}
	best := p.palette[0]
	for _, c := range p.palette[1:] {
		if p.holders[c] < p.holders[best] {
			best = c
		}
	}
	p.holders[best]++
	return best
}

func (p *ColorPool) shuffleLocked() {
	rand.Shuffle(len(p.free), func(i, j int) {
		p.free[i], p.free[j] = p.free[j], p.free[i]
	})
}
