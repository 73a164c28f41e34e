package http

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/chatroom-server/internal/proto"
)

func makeJWT(secret, aud, iss string, userID int64, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": name,
		"exp":      time.Now().Add(ttl).Unix(),
	}
	if aud != "" {
		claims["aud"] = aud
	}
	if iss != "" {
		claims["iss"] = iss
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func TestWebSocketJWTSuccess(t *testing.T) {
	env := startTestServer(t, nil)
	token := env.register(t, "carol")

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := env.dial(t, ctx, token)

	// The account name wins over the requested one.
	set := identify(t, ctx, conn, "somebody-else")
	if set.Username != "carol" {
		t.Fatalf("expected account name, got %+v", set)
	}

	send(t, ctx, conn, proto.InboundTypeMessage, proto.MessageData{Message: "hi"})
	msg := decodeData[proto.EventMessageData](t, mustReadEvent(t, ctx, conn, proto.EventMessage))
	if msg.Username != "carol" {
		t.Fatalf("unexpected sender: %+v", msg)
	}
}

func TestWebSocketJWTBearerHeader(t *testing.T) {
	env := startTestServer(t, nil)
	token := env.register(t, "dave")

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	header := map[string][]string{"Authorization": {"Bearer " + token}}
	conn, _, err := websocket.Dial(ctx, env.wsURL(""), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if set := identify(t, ctx, conn, ""); set.Username != "dave" {
		t.Fatalf("expected dave, got %+v", set)
	}
}

func TestWebSocketJWTInvalid(t *testing.T) {
	env := startTestServer(t, nil)

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	forged, err := makeJWT("wrong-secret", "test", "test", 1, "root", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}

	for _, token := range []string{"invalid", forged} {
		_, resp, err := websocket.Dial(ctx, env.wsURL(token), nil)
		if err == nil {
			t.Fatalf("expected handshake failure for %q", token)
		}
		if resp == nil || resp.StatusCode != 401 {
			t.Fatalf("expected 401, got %+v", resp)
		}
	}
}

func TestRegisteredNameNeedsToken(t *testing.T) {
	env := startTestServer(t, nil)
	env.register(t, "erin")

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := env.dial(t, ctx, "")
	send(t, ctx, conn, proto.InboundTypeRequestUsername, proto.RequestUsernameData{Custom: "ERIN"})
	if e := mustReadError(t, ctx, conn); e.Code != "username_registered" || e.Kind != "conflict" {
		t.Fatalf("expected username_registered, got %+v", e)
	}
}
