package core

import (
	"slices"
	"sync"
	"time"
)

// DefaultHistoryCapacity is how many recent entries are replayed to newcomers.
const DefaultHistoryCapacity = 25

// EntryKind classifies history entries.
type EntryKind string

const (
	EntryMessage EntryKind = "message"
	EntryJoin    EntryKind = "join"
	EntryLeave   EntryKind = "leave"
	EntrySystem  EntryKind = "system"
)

// HistoryEntry is one item of the recent-history ring.
type HistoryEntry struct {
	Kind           EntryKind
	MessageID      int64
	UserID         int64
	Username       string
	Text           string
	Color          string
	Mentions       []string
	ValidUsernames []string
	Timestamp      time.Time
	EditedAt       *time.Time
}

// HistoryRing keeps the last N entries in append order.
type HistoryRing struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	head    int // index of the oldest entry once full
	size    int
}

// NewHistoryRing creates a ring holding up to capacity entries.
func NewHistoryRing(capacity int) *HistoryRing {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryRing{entries: make([]HistoryEntry, capacity)}
}

// Append adds an entry, evicting the oldest one when full.
func (r *HistoryRing) Append(e HistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.entries)
	if r.size < capacity {
		r.entries[(r.head+r.size)%capacity] = e
		r.size++
		return
	}
	r.entries[r.head] = e
	r.head = (r.head + 1) % capacity
}

// Snapshot returns a copy of all entries, oldest first.
func (r *HistoryRing) Snapshot() []HistoryEntry {
	return r.SnapshotExcluding()
}

// SnapshotExcluding returns a copy of entries whose kind is not listed.
func (r *HistoryRing) SnapshotExcluding(kinds ...EntryKind) []HistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]HistoryEntry, 0, r.size)
	r.eachLocked(func(e *HistoryEntry) bool {
		if !slices.Contains(kinds, e.Kind) {
			out = append(out, cloneEntry(*e))
		}
		return true
	})
	return out
}

// UpdateMessage rewrites the text of a message entry still in the ring.
func (r *HistoryRing) UpdateMessage(id int64, text string, editedAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	r.eachLocked(func(e *HistoryEntry) bool {
		if e.Kind == EntryMessage && e.MessageID == id {
			e.Text = text
			e.EditedAt = &editedAt
			found = true
			return false
		}
		return true
	})
	return found
}

// FindMessage returns a copy of the message entry with the given id.
func (r *HistoryRing) FindMessage(id int64) (HistoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		out   HistoryEntry
		found bool
	)
	r.eachLocked(func(e *HistoryEntry) bool {
		if e.Kind == EntryMessage && e.MessageID == id {
			out, found = cloneEntry(*e), true
			return false
		}
		return true
	})
	return out, found
}

// Len returns the number of stored entries.
func (r *HistoryRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *HistoryRing) eachLocked(fn func(*HistoryEntry) bool) {
	capacity := len(r.entries)
	for i := 0; i < r.size; i++ {
		if !fn(&r.entries[(r.head+i)%capacity]) {
			return
		}
	}
}

func cloneEntry(e HistoryEntry) HistoryEntry {
	e.Mentions = slices.Clone(e.Mentions)
	e.ValidUsernames = slices.Clone(e.ValidUsernames)
	if e.EditedAt != nil {
		t := *e.EditedAt
		e.EditedAt = &t
	}
	return e
}
