package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatroom-server/internal/store"
	"github.com/vovakirdan/chatroom-server/internal/utils"
)

// MaxUsernameLength is the longest accepted display name, in runes.
const MaxUsernameLength = 32

const guestNameAttempts = 5

// TextFilter rewrites user text before it is stored or broadcast.
type TextFilter interface {
	Censor(text string) string
}

// Recorder receives hub activity counters.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	IdentitiesOnline(n int)
	MessageSent()
	MessageThrottled()
	ModerationAction(action, result string)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionOpened()                {}
func (nopRecorder) ConnectionClosed()                {}
func (nopRecorder) IdentitiesOnline(int)             {}
func (nopRecorder) MessageSent()                     {}
func (nopRecorder) MessageThrottled()                {}
func (nopRecorder) ModerationAction(string, string) {}

// Options configures a Hub. Zero values select defaults.
type Options struct {
	SuperModerator  string
	Palette         []string
	RateLimit       int
	RateWindow      time.Duration
	HistoryCapacity int
	Filter          TextFilter
	Metrics         Recorder
	Logger          *zerolog.Logger
	Now             func() time.Time
	GuestName       func() string
}

// SendResult describes the outcome of an accepted or throttled message.
type SendResult struct {
	Throttled  bool
	RetryAfter time.Duration
	Entry      HistoryEntry
}

// Hub coordinates presence, chat traffic and moderation for one room.
type Hub struct {
	store     store.Store
	filter    TextFilter
	metrics   Recorder
	log       *zerolog.Logger
	now       func() time.Time
	guestName func() string

	// mu guards conns and serializes history append with fan-out.
	mu    sync.Mutex
	conns map[string]*Client

	registry   *Registry
	colors     *ColorPool
	limiter    *RateLimiter
	history    *HistoryRing
	moderation *ModerationEngine
	userLocks  *userLocks

	localMessageID atomic.Int64
}

// NewHub creates a hub. st may be nil to run without persistence.
func NewHub(st store.Store, opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	guestName := opts.GuestName
	if guestName == nil {
		guestName = utils.GuestName
	}

	h := &Hub{
		store:     st,
		filter:    opts.Filter,
		metrics:   metrics,
		log:       logger,
		now:       now,
		guestName: guestName,
		conns:     make(map[string]*Client),
		registry:  NewRegistry(),
		colors:    NewColorPool(opts.Palette),
		limiter:   NewRateLimiter(opts.RateLimit, opts.RateWindow),
		history:   NewHistoryRing(opts.HistoryCapacity),
	}
	h.moderation = NewModerationEngine(st, ModerationConfig{
		SuperModerator: opts.SuperModerator,
		Presence:       h,
		Limiter:        h.limiter,
		Metrics:        metrics,
		Logger:         logger,
	})
	h.userLocks = h.moderation.locks
	return h
}

// Moderation exposes the moderation engine.
func (h *Hub) Moderation() *ModerationEngine {
	return h.moderation
}

// Colors exposes the color pool.
func (h *Hub) Colors() *ColorPool {
	return h.colors
}

// Run sweeps idle rate windows until ctx is done, then kicks every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.limiter.Window())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			if n := h.limiter.Sweep(h.now()); n > 0 {
				h.log.Debug().Int("windows", n).Msg("rate windows swept")
			}
		}
	}
}

// ShutdownAnnouncement is the system entry broadcast before the hub stops.
const ShutdownAnnouncement = "Server is shutting down"

func (h *Hub) shutdown() {
	h.Announce(ShutdownAnnouncement)

	h.mu.Lock()
	clients := lo.Values(h.conns)
	h.mu.Unlock()

	for _, c := range clients {
		c.deliver(&Event{Kind: EventShutdown, Reason: "server shutting down"})
		c.Kick()
	}
	h.log.Info().Int("clients", len(clients)).Msg("hub stopped")
}

// Connect registers a raw connection. Nothing is broadcast until it identifies.
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.log.Debug().Str("conn_id", c.ID).Msg("connection registered")
}

// Identify binds a display identity to connID.
func (h *Hub) Identify(ctx context.Context, connID, requested string) (Identity, error) {
	c, ok := h.client(connID)
	if !ok {
		return Identity{}, ErrUnknownConnection
	}
	if _, bound := h.registry.Lookup(connID); bound {
		return Identity{}, ErrAlreadyIdentified
	}

	name, guest, err := h.resolveUsername(ctx, c.Auth, requested)
	if err != nil {
		return Identity{}, err
	}
	if !guest {
		return h.identifyAs(ctx, c, name)
	}

	for attempt := 0; ; attempt++ {
		identity, err := h.identifyAs(ctx, c, name)
		retry := errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrUsernameRegistered) ||
			errors.Is(err, ErrUsernameReserved) || errors.Is(err, ErrBanned)
		if !retry || attempt+1 >= guestNameAttempts {
			return identity, err
		}
		name = h.guestName()
	}
}

func (h *Hub) resolveUsername(ctx context.Context, auth AuthInfo, requested string) (string, bool, error) {
	if auth.Authenticated && auth.Username != "" {
		// Tokens outlive renames, so the account row names the identity.
		if h.store != nil && auth.UserID != 0 {
			user, err := h.accountFor(ctx, auth)
			if err != nil {
				return "", false, err
			}
			return user.Username, false, nil
		}
		return auth.Username, false, nil
	}
	name := strings.TrimSpace(requested)
	if name == "" {
		return h.guestName(), true, nil
	}
	if utf8.RuneCountInString(name) > MaxUsernameLength {
		return "", false, ErrBadRequest.WithMessage("username too long")
	}
	return name, false, nil
}

func (h *Hub) identifyAs(ctx context.Context, c *Client, name string) (Identity, error) {
	unlock := h.userLocks.lock(name)
	defer unlock()

	// The super moderator name only belongs to its registered account.
	reserved := h.moderation.IsSuperModerator(name)
	if reserved && (h.store == nil || !c.Auth.Authenticated) {
		return Identity{}, ErrUsernameReserved
	}

	identity := Identity{Username: name}
	var user *store.User
	if h.store != nil {
		var err error
		if c.Auth.Authenticated && c.Auth.UserID != 0 {
			user, err = h.accountFor(ctx, c.Auth)
			if err == nil && !strings.EqualFold(user.Username, name) {
				err = ErrUsernameChanged
			}
		} else {
			user, err = h.findOrCreateUser(ctx, name)
		}
		if err != nil {
			return Identity{}, err
		}
		owned := c.Auth.Authenticated && c.Auth.UserID == user.ID
		if reserved && !(owned && user.Registered()) {
			return Identity{}, ErrUsernameReserved
		}
		if user.Registered() && !owned {
			return Identity{}, ErrUsernameRegistered
		}
		banned, err := h.store.IsBanned(ctx, user.ID)
		if err != nil {
			return Identity{}, persistenceError(err)
		}
		if banned {
			return Identity{}, ErrBanned
		}
		identity.Username = user.Username
		identity.UserID = user.ID
		identity.IsModerator = user.IsModerator || h.moderation.IsSuperModerator(user.Username)
	}

	freshColor := user == nil || user.Color == "" || user.Color == store.DefaultColor
	if freshColor {
		identity.Color = h.colors.Acquire()
	} else {
		identity.Color = h.colors.Claim(user.Color)
	}

	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		h.colors.Release(identity.Color)
		return Identity{}, ErrUnknownConnection
	}
	if err := h.registry.Claim(c.ID, identity); err != nil {
		h.mu.Unlock()
		h.colors.Release(identity.Color)
		return Identity{}, err
	}
	c.deliver(&Event{Kind: EventSetUsername, Identity: &identity})
	c.deliver(&Event{Kind: EventHistory, History: h.history.SnapshotExcluding(EntrySystem)})
	h.appendLocked(HistoryEntry{
		Kind:      EntryJoin,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Color:     identity.Color,
		Timestamp: h.now(),
	})
	online := h.registry.Len()
	h.mu.Unlock()

	h.metrics.IdentitiesOnline(online)
	h.log.Info().Str("conn_id", c.ID).Str("username", identity.Username).Int64("user_id", identity.UserID).Msg("identified")

	if freshColor && user != nil {
		if err := h.store.UpdateUserColor(ctx, user.ID, identity.Color); err != nil {
			h.log.Warn().Err(err).Str("username", identity.Username).Msg("failed to persist color")
		}
	}
	h.BroadcastUserList(ctx)
	return identity, nil
}

func (h *Hub) accountFor(ctx context.Context, auth AuthInfo) (*store.User, error) {
	user, err := h.store.GetUserByID(ctx, auth.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, persistenceError(err)
	}
	return user, nil
}

func (h *Hub) findOrCreateUser(ctx context.Context, name string) (*store.User, error) {
	user, err := h.store.GetUserByUsername(ctx, name)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, persistenceError(err)
	}
	user, err = h.store.CreateUser(ctx, name, store.DefaultColor, "")
	if err != nil {
		// Lost a race with a concurrent registration.
		if existing, getErr := h.store.GetUserByUsername(ctx, name); getErr == nil {
			return existing, nil
		}
		return nil, persistenceError(err)
	}
	return user, nil
}

// SendMessage broadcasts text from the identity bound to connID.
// A throttled message is dropped and reported with a nil error.
func (h *Hub) SendMessage(ctx context.Context, connID, text string) (SendResult, error) {
	identity, ok := h.registry.Lookup(connID)
	if !ok {
		return SendResult{}, ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return SendResult{}, ErrBadRequest.WithMessage("empty message")
	}

	now := h.now()
	if allowed, retry := h.limiter.Check(rateKey(identity.UserID, identity.Username), now); !allowed {
		if c, ok := h.client(connID); ok {
			c.deliver(&Event{Kind: EventRateLimited, RetryAfter: retry})
		}
		h.metrics.MessageThrottled()
		h.log.Debug().Str("conn_id", connID).Str("username", identity.Username).Dur("retry_after", retry).Msg("message throttled")
		return SendResult{Throttled: true, RetryAfter: retry}, nil
	}

	text = h.censor(text)
	msg := &store.Message{UserID: identity.UserID, Body: text, CreatedAt: now}
	if h.store != nil && identity.UserID != 0 {
		if err := h.store.SaveMessage(ctx, msg); err != nil {
			return SendResult{}, persistenceError(err)
		}
	} else {
		msg.ID = h.localMessageID.Add(1)
	}

	mentions := ExtractMentions(text)
	entry := HistoryEntry{
		Kind:      EntryMessage,
		MessageID: msg.ID,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Text:      text,
		Color:     identity.Color,
		Mentions:  mentions,
		Timestamp: msg.CreatedAt,
	}

	h.mu.Lock()
	// Evicted while the message was being stored.
	if _, still := h.registry.Lookup(connID); !still {
		h.mu.Unlock()
		return SendResult{}, ErrUnauthenticated
	}
	entry.ValidUsernames = onlineMentions(mentions, h.registry.ListOnline())
	h.appendLocked(entry)
	h.mu.Unlock()

	h.metrics.MessageSent()
	return SendResult{Entry: entry}, nil
}

// EditMessage replaces the content of a message owned by the caller.
func (h *Hub) EditMessage(ctx context.Context, connID string, messageID int64, text string) error {
	identity, ok := h.registry.Lookup(connID)
	if !ok {
		return ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrBadRequest.WithMessage("empty message")
	}
	text = h.censor(text)
	editedAt := h.now()

	if h.store != nil && identity.UserID != 0 {
		msg, err := h.store.GetMessage(ctx, messageID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return ErrMessageNotFound
		case err != nil:
			return persistenceError(err)
		}
		if msg.UserID != identity.UserID {
			return ErrUnauthorized.WithMessage("cannot edit another user's message")
		}
		if err := h.store.UpdateMessage(ctx, messageID, text, editedAt); err != nil {
			return persistenceError(err)
		}
	} else {
		entry, found := h.history.FindMessage(messageID)
		if !found {
			return ErrMessageNotFound
		}
		if !strings.EqualFold(entry.Username, identity.Username) {
			return ErrUnauthorized.WithMessage("cannot edit another user's message")
		}
	}

	h.mu.Lock()
	h.history.UpdateMessage(messageID, text, editedAt)
	h.broadcastLocked(&Event{
		Kind: EventMessageEdited,
		Edit: &MessageEdit{MessageID: messageID, Text: text, EditedAt: editedAt},
	})
	h.mu.Unlock()
	return nil
}

// Disconnect forgets connID. Calling it again is a no-op.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	_, known := h.conns[connID]
	delete(h.conns, connID)
	identity, bound := h.registry.Unbind(connID)
	if bound {
		h.colors.Release(identity.Color)
		h.appendLocked(h.leaveEntry(identity))
	}
	online := h.registry.Len()
	h.mu.Unlock()

	if known {
		h.metrics.ConnectionClosed()
	}
	if !bound {
		return
	}
	h.metrics.IdentitiesOnline(online)
	h.log.Info().Str("conn_id", connID).Str("username", identity.Username).Msg("disconnected")
	h.BroadcastUserList(context.Background())
}

// Evict implements Presence.
func (h *Hub) Evict(username, reason string) bool {
	return h.evict(username, &Event{Kind: EventBanNotice, Reason: reason})
}

// evict unbinds username, sends notice as its last event and kicks the connection.
func (h *Hub) evict(username string, notice *Event) bool {
	h.mu.Lock()
	connID, ok := h.registry.FindConnectionByUsername(username)
	if !ok {
		h.mu.Unlock()
		return false
	}
	identity, _ := h.registry.Unbind(connID)
	h.colors.Release(identity.Color)
	h.appendLocked(h.leaveEntry(identity))
	c, known := h.conns[connID]
	delete(h.conns, connID)
	online := h.registry.Len()
	h.mu.Unlock()

	if known {
		c.deliver(notice)
		c.Kick()
		h.metrics.ConnectionClosed()
	}
	h.metrics.IdentitiesOnline(online)
	h.log.Info().Str("conn_id", connID).Str("username", identity.Username).Str("notice", notice.Kind.String()).Msg("evicted")
	return true
}

// NotifyRoleChange implements Presence.
func (h *Hub) NotifyRoleChange(username string, isModerator bool) {
	role := &RoleChange{Username: username, IsModerator: isModerator}

	h.mu.Lock()
	defer h.mu.Unlock()

	if connID, ok := h.registry.FindConnectionByUsername(username); ok {
		h.registry.SetModerator(connID, isModerator)
		if c, ok := h.conns[connID]; ok {
			kind := EventDemotedNotice
			if isModerator {
				kind = EventPromotedNotice
			}
			c.deliver(&Event{Kind: kind, Role: role})
		}
	}
	h.broadcastLocked(&Event{Kind: EventRoleUpdated, Role: role})
}

// BroadcastUserList implements Presence.
func (h *Hub) BroadcastUserList(ctx context.Context) {
	moderators := h.moderatorIDs(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(&Event{Kind: EventUserList, Users: h.onlineUsers(moderators)})
}

// OnlineUsers returns the online list with fresh moderator flags.
func (h *Hub) OnlineUsers(ctx context.Context) []OnlineUser {
	return h.onlineUsers(h.moderatorIDs(ctx))
}

// ActorForConnection resolves the moderation actor of a WebSocket connection.
func (h *Hub) ActorForConnection(connID string) (Actor, error) {
	identity, ok := h.registry.Lookup(connID)
	if !ok {
		return Actor{}, ErrUnauthenticated
	}
	return Actor{UserID: identity.UserID, Username: identity.Username}, nil
}

// Ban bans target on behalf of actor.
func (h *Hub) Ban(ctx context.Context, actor Actor, target, reason string) (*ModerationResult, error) {
	return h.moderation.Ban(ctx, actor, target, reason)
}

// Unban lifts the ban on target.
func (h *Hub) Unban(ctx context.Context, actor Actor, target string) (*ModerationResult, error) {
	return h.moderation.Unban(ctx, actor, target)
}

// Promote grants target the moderator flag.
func (h *Hub) Promote(ctx context.Context, actor Actor, target string) (*ModerationResult, error) {
	return h.moderation.Promote(ctx, actor, target)
}

// Demote clears the moderator flag of target.
func (h *Hub) Demote(ctx context.Context, actor Actor, target string) (*ModerationResult, error) {
	return h.moderation.Demote(ctx, actor, target)
}

// History returns the replayable history.
func (h *Hub) History() []HistoryEntry {
	return h.history.SnapshotExcluding(EntrySystem)
}

// Announce appends a system entry and broadcasts it. System entries are never replayed.
func (h *Hub) Announce(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(HistoryEntry{Kind: EntrySystem, Text: text, Timestamp: h.now()})
}

// Unicast delivers ev to a single connection.
func (h *Hub) Unicast(connID string, ev *Event) bool {
	c, ok := h.client(connID)
	if !ok {
		return false
	}
	return c.deliver(ev)
}

func (h *Hub) client(connID string) (*Client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	return c, ok
}

func (h *Hub) censor(text string) string {
	if h.filter == nil {
		return text
	}
	return h.filter.Censor(text)
}

func (h *Hub) leaveEntry(identity Identity) HistoryEntry {
	return HistoryEntry{
		Kind:      EntryLeave,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Color:     identity.Color,
		Timestamp: h.now(),
	}
}

// appendLocked records entry and fans it out. Caller holds h.mu.
func (h *Hub) appendLocked(entry HistoryEntry) {
	h.history.Append(entry)

	kind := EventMessage
	switch entry.Kind {
	case EntryJoin:
		kind = EventUserJoined
	case EntryLeave:
		kind = EventUserLeft
	}
	h.broadcastLocked(&Event{Kind: kind, Entry: &entry})
}

// broadcastLocked sends ev to every identified connection. Caller holds h.mu.
func (h *Hub) broadcastLocked(ev *Event) {
	for _, connID := range h.registry.ConnectionIDs() {
		c, ok := h.conns[connID]
		if !ok {
			continue
		}
		if !c.deliver(ev) {
			h.log.Debug().Str("conn_id", connID).Str("event", ev.Kind.String()).Msg("dropped event for slow consumer")
		}
	}
}

func (h *Hub) moderatorIDs(ctx context.Context) map[int64]struct{} {
	if h.store == nil {
		return nil
	}
	ids, err := h.store.ListModeratorIDs(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to load moderator flags")
		return nil
	}
	return lo.SliceToMap(ids, func(id int64) (int64, struct{}) { return id, struct{}{} })
}

func (h *Hub) onlineUsers(moderators map[int64]struct{}) []OnlineUser {
	return lo.Map(h.registry.ListOnline(), func(id Identity, _ int) OnlineUser {
		isMod := id.IsModerator
		if moderators != nil {
			_, flagged := moderators[id.UserID]
			isMod = flagged || h.moderation.IsSuperModerator(id.Username)
		}
		return OnlineUser{Username: id.Username, Color: id.Color, IsModerator: isMod}
	})
}
