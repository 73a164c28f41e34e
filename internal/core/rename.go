package core

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vovakirdan/chatroom-server/internal/store"
)

// ChangeUsername renames the registered account of actor. An online identity
// of the account is evicted and must identify again under the new name.
func (h *Hub) ChangeUsername(ctx context.Context, actor Actor, requested string) (*UsernameChange, error) {
	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	if h.store == nil {
		return nil, ErrPersistenceUnavailable
	}
	name := strings.TrimSpace(requested)
	if err := validateAccountName(name); err != nil {
		return nil, err
	}

	user, err := h.accountFor(ctx, AuthInfo{UserID: actor.UserID})
	if err != nil {
		return nil, err
	}
	oldName := user.Username

	unlock := h.userLocks.lockAll(oldName, name)
	defer unlock()

	// A concurrent rename may have won while the locks were taken.
	if user, err = h.accountFor(ctx, AuthInfo{UserID: actor.UserID}); err != nil {
		return nil, err
	}
	if user.Username != oldName {
		return nil, ErrUsernameChanged
	}
	if !user.Registered() {
		return nil, ErrUnauthorized.WithMessage("only registered accounts can change their username")
	}
	if user.Username == name {
		return &UsernameChange{UserID: user.ID, OldUsername: oldName, NewUsername: name}, nil
	}

	sameName := strings.EqualFold(oldName, name)
	wasSuper := h.moderation.IsSuperModerator(oldName)
	switch {
	case wasSuper && !sameName:
		return nil, ErrForbidden.WithMessage("the super moderator account cannot be renamed")
	case !wasSuper && h.moderation.IsSuperModerator(name):
		return nil, ErrUsernameReserved
	}

	if !sameName {
		existing, err := h.store.GetUserByUsername(ctx, name)
		switch {
		case err == nil && existing.ID != user.ID:
			return nil, ErrUsernameInUse
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, persistenceError(err)
		}
	}
	if err := h.store.UpdateUsername(ctx, user.ID, name); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return nil, ErrUsernameInUse
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, persistenceError(err)
	}

	change := &UsernameChange{UserID: user.ID, OldUsername: oldName, NewUsername: name}
	change.Evicted = h.evict(oldName, &Event{Kind: EventUsernameChanged, Rename: change})
	if change.Evicted {
		h.BroadcastUserList(ctx)
	}
	h.log.Info().Int64("user_id", user.ID).Str("old_username", oldName).Str("username", name).Bool("evicted", change.Evicted).Msg("username changed")
	return change, nil
}

func validateAccountName(name string) error {
	switch {
	case utf8.RuneCountInString(name) < 3:
		return ErrBadRequest.WithMessage("username too short")
	case utf8.RuneCountInString(name) > MaxUsernameLength:
		return ErrBadRequest.WithMessage("username too long")
	case strings.ContainsFunc(name, unicode.IsSpace), strings.Contains(name, "@"):
		return ErrBadRequest.WithMessage("username may not contain spaces or @")
	}
	return nil
}
