package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/chatroom-server/internal/store"
	"github.com/vovakirdan/chatroom-server/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) (*Service, store.Store) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig), st
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, err := svc.Register(ctx, " ab ", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	for _, bad := range []string{"two words", "at@sign"} {
		if _, err := svc.Register(ctx, bad, "password123"); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("expected ErrInvalidUsername for %q, got %v", bad, err)
		}
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}

	// 40 runes but 120 bytes: over bcrypt's input limit.
	if _, err := svc.Register(ctx, "abc", strings.Repeat("日", 40)); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword for long multi-byte password, got %v", err)
	}
}

func TestPasswordMatches(t *testing.T) {
	hash, err := hashPassword("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !passwordMatches(hash, "password123") {
		t.Fatal("expected match")
	}
	if passwordMatches(hash, "password124") {
		t.Fatal("unexpected match")
	}
	if passwordMatches("", "") {
		t.Fatal("empty hash must never match")
	}
}

func TestRegister_TrimsUsernameAndCreatesUser(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Username != "alice" || claims.UserID == 0 {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	u, err := st.GetUserByUsername(ctx, "alice")
	if err != nil || !u.Registered() || u.Color != store.DefaultColor {
		t.Fatalf("unexpected stored user %+v (err=%v)", u, err)
	}

	// Should collide because the stored username is trimmed and compared case-insensitively.
	if _, err := svc.Register(ctx, "ALICE", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob", "hunter22"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login(ctx, "bob", "hunter22"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Login(ctx, "bob", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	// Guests created by identify carry no password.
	if _, err := st.CreateUser(ctx, "guest", "", ""); err != nil {
		t.Fatalf("create guest: %v", err)
	}
	if _, err := svc.Login(ctx, "guest", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for guest, got %v", err)
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("secret-one"), Issuer: "a", Audience: "x", TTL: time.Hour}
	token, err := GenerateToken(cfg, 1, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := *cfg
	other.Audience = "y"
	if _, err := ValidateToken(&other, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	other = *cfg
	other.Secret = []byte("secret-two")
	if _, err := ValidateToken(&other, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	expired := *cfg
	expired.TTL = -time.Minute
	old, _ := GenerateToken(&expired, 1, "alice")
	if _, err := ValidateToken(cfg, old); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidateTokenRequiresAccount(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("secret"), TTL: time.Minute}

	token, err := GenerateToken(cfg, 0, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(cfg, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for zero user id, got %v", err)
	}

	token, err = GenerateToken(cfg, 7, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "7" || claims.ID == "" {
		t.Fatalf("unexpected registered claims: %+v", claims.RegisteredClaims)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":    {"abc", true},
		"bearer abc":    {"abc", true},
		"  Bearer abc ": {"abc", true},
		"Bearer":        {"", false},
		"Bearer   ":     {"", false},
		"Basic abc":     {"", false},
		"":              {"", false},
	}
	for header, want := range cases {
		token, ok := BearerToken(header)
		if token != want.token || ok != want.ok {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", header, token, ok, want.token, want.ok)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"bob", "Élodie", strings.Repeat("x", 32)} {
		if err := ValidateUsername(ok); err != nil {
			t.Fatalf("expected %q to be valid, got %v", ok, err)
		}
	}
	for _, bad := range []string{"", "ab", "two words", "tab\tname", "@bob", strings.Repeat("x", 33)} {
		if err := ValidateUsername(bad); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("expected ErrInvalidUsername for %q, got %v", bad, err)
		}
	}
}

func TestIssueToken(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := st.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := st.UpdateUsername(ctx, user.ID, "alicia"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	token, err := svc.IssueToken(user.ID, "alicia")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != user.ID || claims.Username != "alicia" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
