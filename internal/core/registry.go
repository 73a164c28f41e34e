package core

import (
	"cmp"
	"slices"
	"strings"
	"sync"
)

// Identity is the display identity bound to a connection.
type Identity struct {
	Username    string
	UserID      int64 // 0 when no persistence is configured
	Color       string
	IsModerator bool
}

type presence struct {
	identity Identity
	seq      uint64
}

// Registry maps connection ids to identities.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*presence
	seq     uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*presence)}
}

// Bind attaches identity to connID.
func (r *Registry) Bind(connID string, identity Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connID]; ok {
		return ErrAlreadyIdentified
	}
	r.insertLocked(connID, identity)
	return nil
}

// Claim is Bind that also rejects a username or user id that is already online.
func (r *Registry) Claim(connID string, identity Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connID]; ok {
		return ErrAlreadyIdentified
	}
	for _, p := range r.entries {
		if strings.EqualFold(p.identity.Username, identity.Username) ||
			(identity.UserID != 0 && p.identity.UserID == identity.UserID) {
			return ErrUsernameTaken
		}
	}
	r.insertLocked(connID, identity)
	return nil
}

// Unbind removes the identity of connID.
func (r *Registry) Unbind(connID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[connID]
	if !ok {
		return Identity{}, false
	}
	delete(r.entries, connID)
	return p.identity, true
}

// Lookup returns the identity bound to connID.
func (r *Registry) Lookup(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.entries[connID]
	if !ok {
		return Identity{}, false
	}
	return p.identity, true
}

// SetModerator updates the cached moderator flag of an online identity.
func (r *Registry) SetModerator(connID string, isModerator bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[connID]
	if ok {
		p.identity.IsModerator = isModerator
	}
	return ok
}

// ListOnline returns identities in bind order.
func (r *Registry) ListOnline() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedLocked()
	out := make([]Identity, len(sorted))
	for i, e := range sorted {
		out[i] = e.p.identity
	}
	return out
}

// ConnectionIDs returns bound connection ids in bind order.
func (r *Registry) ConnectionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedLocked()
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = e.connID
	}
	return out
}

// FindConnectionByUsername looks a username up case-insensitively.
func (r *Registry) FindConnectionByUsername(username string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for connID, p := range r.entries {
		if strings.EqualFold(p.identity.Username, username) {
			return connID, true
		}
	}
	return "", false
}

// Len returns the number of bound connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) insertLocked(connID string, identity Identity) {
	r.seq++
	r.entries[connID] = &presence{identity: identity, seq: r.seq}
}

type registryEntry struct {
	connID string
	p      *presence
}

func (r *Registry) sortedLocked() []registryEntry {
	out := make([]registryEntry, 0, len(r.entries))
	for id, p := range r.entries {
		out = append(out, registryEntry{connID: id, p: p})
	}
	slices.SortFunc(out, func(a, b registryEntry) int {
		return cmp.Compare(a.p.seq, b.p.seq)
	})
	return out
}
