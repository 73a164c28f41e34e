package core

import (
	"errors"

	"github.com/vovakirdan/chatroom-server/internal/store"
)

// ErrorKind groups error codes into the categories clients react to.
type ErrorKind string

const (
	KindUnauthenticated        ErrorKind = "unauthenticated"
	KindUnauthorized           ErrorKind = "unauthorized"
	KindForbidden              ErrorKind = "forbidden"
	KindNotFound               ErrorKind = "not_found"
	KindConflict               ErrorKind = "conflict"
	KindThrottled              ErrorKind = "throttled"
	KindPersistenceUnavailable ErrorKind = "persistence_unavailable"
	KindBadRequest             ErrorKind = "bad_request"
	KindInternal               ErrorKind = "internal"
)

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated        = "unauthenticated"
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeForbidden              = "forbidden"
	ErrCodeBanned                 = "banned"
	ErrCodeUserNotFound           = "user_not_found"
	ErrCodeMessageNotFound        = "message_not_found"
	ErrCodeAlreadyBanned          = "already_banned"
	ErrCodeNotBanned              = "not_banned"
	ErrCodeAlreadyModerator       = "already_moderator"
	ErrCodeNotModerator           = "not_moderator"
	ErrCodeUsernameTaken          = "username_taken"
	ErrCodeUsernameRegistered     = "username_registered"
	ErrCodeUsernameReserved       = "username_reserved"
	ErrCodeUsernameInUse          = "username_in_use"
	ErrCodeUsernameChanged        = "username_changed"
	ErrCodeAlreadyIdentified      = "already_identified"
	ErrCodeUnknownConnection      = "unknown_connection"
	ErrCodeBadRequest             = "bad_request"
	ErrCodeThrottled              = "throttled"
	ErrCodePersistenceUnavailable = "persistence_unavailable"
	ErrCodeInternal               = "internal"
)

var (
	ErrUnauthenticated        = coreError(KindUnauthenticated, ErrCodeUnauthenticated, "connection has no identity")
	ErrUnauthorized           = coreError(KindUnauthorized, ErrCodeUnauthorized, "not allowed to perform this action")
	ErrForbidden              = coreError(KindForbidden, ErrCodeForbidden, "action not permitted on this user")
	ErrBanned                 = coreError(KindForbidden, ErrCodeBanned, "user is banned")
	ErrUserNotFound           = coreError(KindNotFound, ErrCodeUserNotFound, "user not found")
	ErrMessageNotFound        = coreError(KindNotFound, ErrCodeMessageNotFound, "message not found")
	ErrAlreadyBanned          = coreError(KindConflict, ErrCodeAlreadyBanned, "user is already banned")
	ErrNotBanned              = coreError(KindConflict, ErrCodeNotBanned, "user is not banned")
	ErrAlreadyModerator       = coreError(KindConflict, ErrCodeAlreadyModerator, "user is already a moderator")
	ErrNotModerator           = coreError(KindConflict, ErrCodeNotModerator, "user is not a moderator")
	ErrUsernameTaken          = coreError(KindConflict, ErrCodeUsernameTaken, "username is already online")
	ErrUsernameRegistered     = coreError(KindConflict, ErrCodeUsernameRegistered, "username belongs to a registered account")
	ErrUsernameReserved       = coreError(KindConflict, ErrCodeUsernameReserved, "username is reserved for the super moderator account")
	ErrUsernameInUse          = coreError(KindConflict, ErrCodeUsernameInUse, "username belongs to another user")
	ErrUsernameChanged        = coreError(KindConflict, ErrCodeUsernameChanged, "account was renamed, reconnect")
	ErrAlreadyIdentified      = coreError(KindConflict, ErrCodeAlreadyIdentified, "connection already has an identity")
	ErrUnknownConnection      = coreError(KindNotFound, ErrCodeUnknownConnection, "unknown connection")
	ErrBadRequest             = coreError(KindBadRequest, ErrCodeBadRequest, "bad request")
	ErrThrottled              = coreError(KindThrottled, ErrCodeThrottled, "too many requests")
	ErrPersistenceUnavailable = coreError(KindPersistenceUnavailable, ErrCodePersistenceUnavailable, "storage unavailable")
	ErrInternal               = coreError(KindInternal, ErrCodeInternal, "internal error")
)

// CoreError wraps a kind, a code and a human-readable message.
// Two CoreErrors match under errors.Is when their codes are equal.
type CoreError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *CoreError) WithMessage(msg string) *CoreError {
	cp := *e
	cp.Message = msg
	return &cp
}

func (e *CoreError) wrap(err error) *CoreError {
	cp := *e
	cp.Err = err
	return &cp
}

func coreError(kind ErrorKind, code, msg string) *CoreError {
	return &CoreError{Kind: kind, Code: code, Message: msg}
}

// AsCoreError converts any error into a CoreError suitable for clients.
// Storage outages map to ErrPersistenceUnavailable, everything unknown to ErrInternal.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, store.ErrUnavailable) {
		return ErrPersistenceUnavailable.wrap(err)
	}
	return ErrInternal.wrap(err)
}

// persistenceError wraps a storage failure.
func persistenceError(err error) error {
	return ErrPersistenceUnavailable.wrap(err)
}
