package core

import (
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// userLocks serializes identify and moderation work on the same username.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock acquires the lock for username and returns its release func.
// Names differing only in case or surrounding space share a lock.
func (u *userLocks) lock(username string) func() {
	return u.acquire(lockKey(username))
}

// lockAll acquires the locks of several names in key order.
func (u *userLocks) lockAll(usernames ...string) func() {
	keys := lo.Uniq(lo.Map(usernames, func(name string, _ int) string { return lockKey(name) }))
	slices.Sort(keys)

	releases := make([]func(), 0, len(keys))
	for _, key := range keys {
		releases = append(releases, u.acquire(key))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

func lockKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (u *userLocks) acquire(key string) func() {
	u.mu.Lock()
	l, ok := u.locks[key]
	if !ok {
		l = &userLock{}
		u.locks[key] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, key)
		}
		u.mu.Unlock()
	}
}
