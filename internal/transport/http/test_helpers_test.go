package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-server/internal/auth"
	"github.com/vovakirdan/chatroom-server/internal/config"
	"github.com/vovakirdan/chatroom-server/internal/core"
	"github.com/vovakirdan/chatroom-server/internal/metrics"
	"github.com/vovakirdan/chatroom-server/internal/proto"
	"github.com/vovakirdan/chatroom-server/internal/store"
	"github.com/vovakirdan/chatroom-server/internal/store/sqlite"
)

const testSuperModerator = "root"

type testEnv struct {
	ts      *httptest.Server
	hub     *core.Hub
	store   store.Store
	auth    *auth.Service
	stopHub context.CancelFunc
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.SuperModerator = testSuperModerator
	if mutate != nil {
		mutate(&cfg)
	}

	st := createTestStore(t)
	authService := createTestAuthService(t, st, "test-secret-0123456789")
	collector := metrics.NewCollector("chatroom")

	hub := core.NewHub(st, core.Options{
		SuperModerator: cfg.SuperModerator,
		RateLimit:      cfg.RateLimit,
		RateWindow:     cfg.RateWindow,
		Metrics:        collector,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	disabledLogger := zerolog.Nop()
	server := NewServer(hub, authService, st, collector, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, auth: authService, stopHub: cancel}
}

func (e *testEnv) wsURL(token string) string {
	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()

	token, err := e.auth.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return token
}

// doJSON performs an HTTP request against the test server and returns status and body.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readUntil skips frames until match returns true.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, what string, match func(outbound) bool) outbound {
	t.Helper()

	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(out) {
			return out
		}
	}
}

func mustReadEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outbound {
	t.Helper()
	return readUntil(t, ctx, conn, event, func(o outbound) bool {
		return o.Type == proto.OutboundTypeEvent && o.Event == event
	})
}

func mustReadError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()
	out := readUntil(t, ctx, conn, "error", func(o outbound) bool {
		return o.Type == proto.OutboundTypeError
	})
	if out.Error == nil {
		t.Fatalf("error frame without error body")
	}
	return out.Error
}

func decodeData[T any](t *testing.T, out outbound) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(out.Data, &v); err != nil {
		t.Fatalf("unmarshal %s data: %v", out.Event, err)
	}
	return v
}

// identify requests name and waits until the connection has joined.
func identify(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) proto.EventSetUsernameData {
	t.Helper()

	send(t, ctx, conn, proto.InboundTypeRequestUsername, proto.RequestUsernameData{Custom: name, Protocol: proto.ProtocolVersion})
	set := decodeData[proto.EventSetUsernameData](t, mustReadEvent(t, ctx, conn, proto.EventSetUsername))
	mustReadEvent(t, ctx, conn, proto.EventChatHistory)
	return set
}
