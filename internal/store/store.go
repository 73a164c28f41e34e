package store

import (
	"context"
	"errors"
	"time"
)

// DefaultColor is assigned to users that never received a palette color.
const DefaultColor = "#888888"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable is returned when the backing storage cannot serve requests.
	ErrUnavailable = errors.New("store unavailable")
)

// User represents a persisted chat user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string // empty for guests created on identify
	Color        string
	IsModerator  bool
	CreatedAt    time.Time
}

// Registered reports whether the user owns a password-protected account.
func (u *User) Registered() bool {
	return u != nil && u.PasswordHash != ""
}

// Ban is the authoritative record that a user is excluded from chat.
type Ban struct {
	UserID       int64
	Username     string
	BannedBy     int64
	BannedByName string
	Reason       string
	CreatedAt    time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	UserID    int64
	Username  string
	Body      string
	CreatedAt time.Time
	EditedAt  *time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a user with the given display color.
	// passwordHash is empty for guest users.
	CreateUser(ctx context.Context, username, color, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username (case-insensitive).
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateUserColor stores a new display color for the user.
	UpdateUserColor(ctx context.Context, userID int64, color string) error

	// UpdateUsername renames the user. Returns ErrConflict if another user holds the name.
	UpdateUsername(ctx context.Context, userID int64, username string) error

	// ListUsers lists all users ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)
}

// BanStore handles ban records.
type BanStore interface {
	// IsBanned reports whether a ban record exists for the user.
	IsBanned(ctx context.Context, userID int64) (bool, error)

	// BanUser persists a ban record.
	BanUser(ctx context.Context, userID, bannedBy int64, reason string) error

	// UnbanUser deletes the ban record. Returns ErrNotFound if none exists.
	UnbanUser(ctx context.Context, userID int64) error

	// ListBans lists all ban records, newest first.
	ListBans(ctx context.Context) ([]*Ban, error)
}

// ModeratorStore handles the moderator flag.
type ModeratorStore interface {
	// IsModerator reports whether the user holds the moderator flag.
	IsModerator(ctx context.Context, userID int64) (bool, error)

	// SetModerator sets or clears the moderator flag.
	SetModerator(ctx context.Context, userID int64, isModerator bool) error

	// ListModeratorIDs returns IDs of all flagged users.
	ListModeratorIDs(ctx context.Context) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// UpdateMessage replaces message content and records the edit time.
	UpdateMessage(ctx context.Context, id int64, body string, editedAt time.Time) error

	// ListMessages returns up to limit most recent messages, oldest first.
	ListMessages(ctx context.Context, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	BanStore
	ModeratorStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
