package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("chatroom")

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.IdentitiesOnline(4)
	c.MessageSent()
	c.MessageThrottled()
	c.ModerationAction("ban", "ok")
	c.ModerationAction("ban", "ok")
	c.ObserveHTTP(http.MethodGet, "/health", http.StatusOK, time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(c.connections))
	require.Equal(t, 4.0, testutil.ToFloat64(c.identities))
	require.Equal(t, 1.0, testutil.ToFloat64(c.messages))
	require.Equal(t, 1.0, testutil.ToFloat64(c.throttled))
	require.Equal(t, 2.0, testutil.ToFloat64(c.moderation.WithLabelValues("ban", "ok")))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector("chatroom")
	c.MessageSent()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "chatroom_messages_total 1"))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ConnectionOpened()
	c.IdentitiesOnline(3)
	c.ModerationAction("ban", "ok")
	c.ObserveHTTP(http.MethodGet, "/", http.StatusOK, time.Second)
	require.Nil(t, c.Registry())
}
