package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/chatroom-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUsersCaseInsensitiveLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "Alice", "#00D0E0", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Color != "#00D0E0" || created.Registered() {
		t.Fatalf("unexpected user: %+v", created)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != created.ID || got.Username != "Alice" {
		t.Fatalf("unexpected lookup result: %+v", got)
	}

	if _, err := s.CreateUser(ctx, "ALICE", "", ""); err == nil {
		t.Fatalf("expected unique violation for case-variant username")
	}

	if _, err := s.GetUserByUsername(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "", "hash")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := s.CreateUser(ctx, "bob", "", ""); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	if err := s.UpdateUsername(ctx, alice.ID, "BOB"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.CreateUser(ctx, "Bob", "", ""); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on create, got %v", err)
	}

	// Changing only the case of one's own name is allowed.
	if err := s.UpdateUsername(ctx, alice.ID, "Alice"); err != nil {
		t.Fatalf("case change: %v", err)
	}
	if err := s.UpdateUsername(ctx, alice.ID, "carol"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "carol")
	if err != nil {
		t.Fatalf("lookup new name: %v", err)
	}
	if got.ID != alice.ID || got.PasswordHash != "hash" {
		t.Fatalf("unexpected user after rename: %+v", got)
	}
	if _, err := s.GetUserByUsername(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old name should be free, got %v", err)
	}

	if err := s.UpdateUsername(ctx, 999, "dave"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestCreateUserDefaultsColor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "bob", "", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Color != store.DefaultColor {
		t.Fatalf("expected default color, got %q", u.Color)
	}
	if !u.Registered() {
		t.Fatalf("user with password hash should be registered")
	}

	if err := s.UpdateUserColor(ctx, u.ID, "#CBCC32"); err != nil {
		t.Fatalf("update color: %v", err)
	}
	u, _ = s.GetUserByID(ctx, u.ID)
	if u.Color != "#CBCC32" {
		t.Fatalf("color not updated: %q", u.Color)
	}

	if err := s.UpdateUserColor(ctx, 999, "#CBCC32"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestBanLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mod, _ := s.CreateUser(ctx, "mod", "", "")
	alice, _ := s.CreateUser(ctx, "alice", "", "")

	banned, err := s.IsBanned(ctx, alice.ID)
	if err != nil || banned {
		t.Fatalf("expected not banned, got %v (err=%v)", banned, err)
	}

	if err := s.BanUser(ctx, alice.ID, mod.ID, "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if banned, _ = s.IsBanned(ctx, alice.ID); !banned {
		t.Fatalf("expected banned")
	}

	bans, err := s.ListBans(ctx)
	if err != nil {
		t.Fatalf("list bans: %v", err)
	}
	if len(bans) != 1 || bans[0].Username != "alice" || bans[0].BannedByName != "mod" || bans[0].Reason != "spam" {
		t.Fatalf("unexpected bans: %+v", bans)
	}

	if err := s.UnbanUser(ctx, alice.ID); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if err := s.UnbanUser(ctx, alice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second unban, got %v", err)
	}
}

func TestModeratorFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.CreateUser(ctx, "a", "", "")
	b, _ := s.CreateUser(ctx, "b", "", "")

	if err := s.SetModerator(ctx, b.ID, true); err != nil {
		t.Fatalf("set moderator: %v", err)
	}

	isMod, err := s.IsModerator(ctx, b.ID)
	if err != nil || !isMod {
		t.Fatalf("expected b to be moderator (err=%v)", err)
	}
	if isMod, _ = s.IsModerator(ctx, a.ID); isMod {
		t.Fatalf("a should not be moderator")
	}

	ids, err := s.ListModeratorIDs(ctx)
	if err != nil {
		t.Fatalf("list moderators: %v", err)
	}
	if len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("unexpected moderator ids: %v", ids)
	}

	if _, err := s.IsModerator(ctx, 404); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMessagesOrderedAndEditable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, "writer", "", "")
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, body := range []string{"one", "two", "three"} {
		msg := &store.Message{UserID: u.ID, Body: body, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}
		if msg.ID == 0 {
			t.Fatalf("expected id to be set")
		}
	}

	msgs, err := s.ListMessages(ctx, 2)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "two" || msgs[1].Body != "three" {
		t.Fatalf("expected last two messages oldest first, got %+v", msgs)
	}
	if msgs[0].Username != "writer" || msgs[0].EditedAt != nil {
		t.Fatalf("unexpected message fields: %+v", msgs[0])
	}

	edited := base.Add(time.Minute)
	if err := s.UpdateMessage(ctx, msgs[0].ID, "two!", edited); err != nil {
		t.Fatalf("update message: %v", err)
	}
	got, err := s.GetMessage(ctx, msgs[0].ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Body != "two!" || got.EditedAt == nil || !got.EditedAt.Equal(edited) {
		t.Fatalf("unexpected edited message: %+v", got)
	}

	if _, err := s.GetMessage(ctx, 12345); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
