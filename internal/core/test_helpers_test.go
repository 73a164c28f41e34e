package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/chatroom-server/internal/store"
	"github.com/vovakirdan/chatroom-server/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// nextEvent returns the very next event without skipping.
func nextEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()

	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event received")
		return nil
	}
}

// countKind drains everything currently queued and counts events of kind.
func countKind(ch <-chan *Event, kind EventKind) int {
	n := 0
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				n++
			}
		default:
			return n
		}
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func connect(h *Hub, id string) *Client {
	c := NewClient(id, AuthInfo{})
	h.Connect(c)
	return c
}

// connectAccount registers username as a password account and connects a
// client authenticated as it.
func connectAccount(t *testing.T, h *Hub, st store.Store, id, username string) *Client {
	t.Helper()

	user, err := st.CreateUser(context.Background(), username, "", "hash")
	if err != nil {
		t.Fatalf("create account %s: %v", username, err)
	}
	c := NewClient(id, AuthInfo{UserID: user.ID, Username: user.Username, Authenticated: true})
	h.Connect(c)
	return c
}
