package core

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatroom-server/internal/store"
)

// DefaultBanReason is recorded when a moderator gives no reason.
const DefaultBanReason = "No reason provided"

// Moderation actions.
const (
	ActionBan     = "ban"
	ActionUnban   = "unban"
	ActionPromote = "promote"
	ActionDemote  = "demote"
)

// Actor is whoever issues a moderation command.
type Actor struct {
	UserID   int64
	Username string
}

// ModerationResult describes a successful moderation command.
type ModerationResult struct {
	Action  string
	Target  string
	Reason  string
	Evicted bool
}

// UserRecord is a persisted user as shown to moderators.
type UserRecord struct {
	ID          int64
	Username    string
	Color       string
	IsModerator bool
	Registered  bool
	Banned      bool
}

// Presence is the view of online state the moderation engine acts on.
type Presence interface {
	// Evict removes the online identity of username and closes its connection.
	Evict(username, reason string) bool
	// NotifyRoleChange announces a moderator flag change.
	NotifyRoleChange(username string, isModerator bool)
	// BroadcastUserList pushes a fresh online list to everyone.
	BroadcastUserList(ctx context.Context)
}

// ModerationConfig configures a ModerationEngine.
type ModerationConfig struct {
	SuperModerator string
	Presence       Presence
	Limiter        *RateLimiter
	Metrics        Recorder
	Logger         *zerolog.Logger
}

// ModerationEngine applies ban/unban/promote/demote commands.
// Capability and ban state are read from the store on every call.
type ModerationEngine struct {
	store    store.Store
	super    string
	presence Presence
	limiter  *RateLimiter
	metrics  Recorder
	log      *zerolog.Logger
	locks    *userLocks
}

// NewModerationEngine creates an engine over st. st may be nil, in which
// case every command fails with ErrPersistenceUnavailable.
func NewModerationEngine(st store.Store, cfg ModerationConfig) *ModerationEngine {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &ModerationEngine{
		store:    st,
		super:    strings.TrimSpace(cfg.SuperModerator),
		presence: cfg.Presence,
		limiter:  cfg.Limiter,
		metrics:  metrics,
		log:      logger,
		locks:    newUserLocks(),
	}
}

// IsSuperModerator reports whether username is the configured super-moderator name.
// It says nothing about who holds the name; see isSuperActor.
func (m *ModerationEngine) IsSuperModerator(username string) bool {
	return m.super != "" && strings.EqualFold(m.super, strings.TrimSpace(username))
}

// isSuperActor reports whether actor is the registered super-moderator account.
func (m *ModerationEngine) isSuperActor(ctx context.Context, actor Actor) (bool, error) {
	if actor.UserID == 0 || !m.IsSuperModerator(actor.Username) {
		return false, nil
	}
	user, err := m.store.GetUserByID(ctx, actor.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, persistenceError(err)
	}
	return user.Registered() && m.IsSuperModerator(user.Username), nil
}

// Ban records a ban for target and evicts them if online.
func (m *ModerationEngine) Ban(ctx context.Context, actor Actor, target, reason string) (*ModerationResult, error) {
	res, err := m.ban(ctx, actor, target, reason)
	m.record(ActionBan, actor, target, err)
	return res, err
}

func (m *ModerationEngine) ban(ctx context.Context, actor Actor, target, reason string) (*ModerationResult, error) {
	target = strings.TrimSpace(target)
	if err := m.authorizeModerator(ctx, actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultBanReason
	}

	unlock := m.locks.lock(target)
	user, err := m.lookupTarget(ctx, target)
	if err != nil {
		unlock()
		return nil, err
	}
	if m.IsSuperModerator(user.Username) || user.ID == actor.UserID {
		unlock()
		return nil, ErrForbidden.WithMessage("cannot ban this user")
	}
	banned, err := m.store.IsBanned(ctx, user.ID)
	if err != nil {
		unlock()
		return nil, persistenceError(err)
	}
	if banned {
		unlock()
		return nil, ErrAlreadyBanned
	}
	if err := m.store.BanUser(ctx, user.ID, actor.UserID, reason); err != nil {
		unlock()
		return nil, persistenceError(err)
	}
	evicted := m.presence != nil && m.presence.Evict(user.Username, reason)
	unlock()

	m.refresh(ctx)
	return &ModerationResult{Action: ActionBan, Target: user.Username, Reason: reason, Evicted: evicted}, nil
}

// Unban deletes the ban record of target.
func (m *ModerationEngine) Unban(ctx context.Context, actor Actor, target string) (*ModerationResult, error) {
	res, err := m.unban(ctx, actor, target)
	m.record(ActionUnban, actor, target, err)
	return res, err
}

func (m *ModerationEngine) unban(ctx context.Context, actor Actor, target string) (*ModerationResult, error) {
	target = strings.TrimSpace(target)
	if err := m.authorizeModerator(ctx, actor); err != nil {
		return nil, err
	}

	unlock := m.locks.lock(target)
	defer unlock()

	user, err := m.lookupTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	banned, err := m.store.IsBanned(ctx, user.ID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if !banned {
		return nil, ErrNotBanned
	}
	if err := m.store.UnbanUser(ctx, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotBanned
		}
		return nil, persistenceError(err)
	}
	if m.limiter != nil {
		m.limiter.Reset(rateKey(user.ID, user.Username))
	}

	m.refresh(ctx)
	return &ModerationResult{Action: ActionUnban, Target: user.Username}, nil
}

// Promote grants the moderator flag. Only the super-moderator may promote.
func (m *ModerationEngine) Promote(ctx context.Context, actor Actor, target string) (*ModerationResult, error) {
	res, err := m.setRole(ctx, actor, target, true)
	m.record(ActionPromote, actor, target, err)
	return res, err
}

// Demote clears the moderator flag. Only the super-moderator may demote.
func (m *ModerationEngine) Demote(ctx context.Context, actor Actor, target string) (*ModerationResult, error) {
	res, err := m.setRole(ctx, actor, target, false)
	m.record(ActionDemote, actor, target, err)
	return res, err
}

func (m *ModerationEngine) setRole(ctx context.Context, actor Actor, target string, promote bool) (*ModerationResult, error) {
	target = strings.TrimSpace(target)
	if m.store == nil {
		return nil, ErrPersistenceUnavailable
	}
	super, err := m.isSuperActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !super {
		return nil, ErrUnauthorized.WithMessage("only the super moderator can change roles")
	}

	unlock := m.locks.lock(target)
	defer unlock()

	user, err := m.lookupTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	if m.IsSuperModerator(user.Username) {
		return nil, ErrForbidden.WithMessage("cannot change the super moderator role")
	}
	if promote && user.IsModerator {
		return nil, ErrAlreadyModerator
	}
	if !promote && !user.IsModerator {
		return nil, ErrNotModerator
	}
	if err := m.store.SetModerator(ctx, user.ID, promote); err != nil {
		return nil, persistenceError(err)
	}
	if m.presence != nil {
		m.presence.NotifyRoleChange(user.Username, promote)
	}

	m.refresh(ctx)
	action := ActionDemote
	if promote {
		action = ActionPromote
	}
	return &ModerationResult{Action: action, Target: user.Username}, nil
}

// ListBans returns all ban records. Moderators only.
func (m *ModerationEngine) ListBans(ctx context.Context, actor Actor) ([]*store.Ban, error) {
	if err := m.authorizeModerator(ctx, actor); err != nil {
		return nil, err
	}
	bans, err := m.store.ListBans(ctx)
	if err != nil {
		return nil, persistenceError(err)
	}
	return bans, nil
}

// ListUsers returns every persisted user with its ban flag. Moderators only.
func (m *ModerationEngine) ListUsers(ctx context.Context, actor Actor) ([]UserRecord, error) {
	if err := m.authorizeModerator(ctx, actor); err != nil {
		return nil, err
	}
	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return nil, persistenceError(err)
	}
	bans, err := m.store.ListBans(ctx)
	if err != nil {
		return nil, persistenceError(err)
	}
	banned := lo.SliceToMap(bans, func(b *store.Ban) (int64, struct{}) { return b.UserID, struct{}{} })

	return lo.Map(users, func(u *store.User, _ int) UserRecord {
		_, isBanned := banned[u.ID]
		return UserRecord{
			ID:          u.ID,
			Username:    u.Username,
			Color:       u.Color,
			IsModerator: u.IsModerator || (u.Registered() && m.IsSuperModerator(u.Username)),
			Registered:  u.Registered(),
			Banned:      isBanned,
		}
	}), nil
}

// IsModerator reports the current capability of actor.
func (m *ModerationEngine) IsModerator(ctx context.Context, actor Actor) (bool, error) {
	err := m.authorizeModerator(ctx, actor)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUnauthorized):
		return false, nil
	default:
		return false, err
	}
}

func (m *ModerationEngine) authorizeModerator(ctx context.Context, actor Actor) error {
	if m.store == nil {
		return ErrPersistenceUnavailable
	}
	if actor.UserID == 0 {
		return ErrUnauthorized
	}
	super, err := m.isSuperActor(ctx, actor)
	if err != nil {
		return err
	}
	if super {
		return nil
	}
	isMod, err := m.store.IsModerator(ctx, actor.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrUnauthorized
	case err != nil:
		return persistenceError(err)
	case !isMod:
		return ErrUnauthorized
	}
	return nil
}

func (m *ModerationEngine) lookupTarget(ctx context.Context, target string) (*store.User, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrBadRequest.WithMessage("username required")
	}
	user, err := m.store.GetUserByUsername(ctx, target)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, persistenceError(err)
	}
	return user, nil
}

func (m *ModerationEngine) refresh(ctx context.Context) {
	if m.presence != nil {
		m.presence.BroadcastUserList(ctx)
	}
}

func (m *ModerationEngine) record(action string, actor Actor, target string, err error) {
	result := "ok"
	if err != nil {
		result = string(AsCoreError(err).Kind)
	}
	m.metrics.ModerationAction(action, result)

	ev := m.log.Info()
	if err != nil {
		ev = m.log.Debug().Err(err)
	}
	ev.Str("action", action).
		Str("username", actor.Username).
		Int64("user_id", actor.UserID).
		Str("target", target).
		Msg("moderation command")
}

// rateKey identifies a sender in the message rate limiter.
func rateKey(userID int64, username string) string {
	if userID != 0 {
		return "user:" + strconv.FormatInt(userID, 10)
	}
	return "name:" + strings.ToLower(username)
}
