package core

import "sync"

const clientEventBuffer = 64

// AuthInfo describes what the transport verified about a connection.
type AuthInfo struct {
	UserID        int64
	Username      string
	Authenticated bool
}

// Client is a live connection as seen by the core layer.
type Client struct {
	ID     string
	Auth   AuthInfo
	Events chan *Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, auth AuthInfo) *Client {
	return &Client{
		ID:     id,
		Auth:   auth,
		Events: make(chan *Event, clientEventBuffer),
		done:   make(chan struct{}),
	}
}

// Kick asks the transport to close the connection after flushing pending events.
// Safe to call more than once.
func (c *Client) Kick() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client has been kicked.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// deliver enqueues ev without blocking. Slow or kicked consumers miss the event.
func (c *Client) deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
