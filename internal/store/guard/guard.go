// Package guard wraps a store.Store with a circuit breaker so that a failing
// database turns into fast store.ErrUnavailable errors instead of piling up
// blocked chat operations.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/vovakirdan/chatroom-server/internal/store"
)

// Settings configures the breaker.
type Settings struct {
	Name             string
	FailureThreshold uint32        // consecutive failures before opening
	Timeout          time.Duration // open -> half-open delay
	MaxRequests      uint32        // trial requests allowed while half-open
}

// DefaultSettings returns a conservative breaker configuration.
func DefaultSettings() Settings {
	return Settings{
		Name:             "store",
		FailureThreshold: 5,
		Timeout:          10 * time.Second,
		MaxRequests:      1,
	}
}

// Store is a store.Store guarded by a circuit breaker.
type Store struct {
	next store.Store
	cb   *gobreaker.CircuitBreaker
}

var _ store.Store = (*Store)(nil)

// Wrap guards next with a breaker built from settings.
func Wrap(next store.Store, settings Settings, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = DefaultSettings().FailureThreshold
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("store breaker state changed")
		},
		// Missing records and conflicts are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict)
		},
	})

	return &Store{next: next, cb: cb}
}

// State exposes the breaker state for health reporting.
func (s *Store) State() gobreaker.State {
	return s.cb.State()
}

func call[T any](s *Store, fn func() (T, error)) (T, error) {
	res, err := s.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return zero, err
	}
	return res.(T), nil
}

func exec(s *Store, fn func() error) error {
	_, err := call(s, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// CreateUser implements store.UserStore.
func (s *Store) CreateUser(ctx context.Context, username, color, passwordHash string) (*store.User, error) {
	return call(s, func() (*store.User, error) { return s.next.CreateUser(ctx, username, color, passwordHash) })
}

// GetUserByID implements store.UserStore.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return call(s, func() (*store.User, error) { return s.next.GetUserByID(ctx, id) })
}

// GetUserByUsername implements store.UserStore.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return call(s, func() (*store.User, error) { return s.next.GetUserByUsername(ctx, username) })
}

// UpdateUserColor implements store.UserStore.
func (s *Store) UpdateUserColor(ctx context.Context, userID int64, color string) error {
	return exec(s, func() error { return s.next.UpdateUserColor(ctx, userID, color) })
}

// UpdateUsername implements store.UserStore.
func (s *Store) UpdateUsername(ctx context.Context, userID int64, username string) error {
	return exec(s, func() error { return s.next.UpdateUsername(ctx, userID, username) })
}

// ListUsers implements store.UserStore.
func (s *Store) ListUsers(ctx context.Context) ([]*store.User, error) {
	return call(s, func() ([]*store.User, error) { return s.next.ListUsers(ctx) })
}

// IsBanned implements store.BanStore.
func (s *Store) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return call(s, func() (bool, error) { return s.next.IsBanned(ctx, userID) })
}

// BanUser implements store.BanStore.
func (s *Store) BanUser(ctx context.Context, userID, bannedBy int64, reason string) error {
	return exec(s, func() error { return s.next.BanUser(ctx, userID, bannedBy, reason) })
}

// UnbanUser implements store.BanStore.
func (s *Store) UnbanUser(ctx context.Context, userID int64) error {
	return exec(s, func() error { return s.next.UnbanUser(ctx, userID) })
}

// ListBans implements store.BanStore.
func (s *Store) ListBans(ctx context.Context) ([]*store.Ban, error) {
	return call(s, func() ([]*store.Ban, error) { return s.next.ListBans(ctx) })
}

// IsModerator implements store.ModeratorStore.
func (s *Store) IsModerator(ctx context.Context, userID int64) (bool, error) {
	return call(s, func() (bool, error) { return s.next.IsModerator(ctx, userID) })
}

// SetModerator implements store.ModeratorStore.
func (s *Store) SetModerator(ctx context.Context, userID int64, isModerator bool) error {
	return exec(s, func() error { return s.next.SetModerator(ctx, userID, isModerator) })
}

// ListModeratorIDs implements store.ModeratorStore.
func (s *Store) ListModeratorIDs(ctx context.Context) ([]int64, error) {
	return call(s, func() ([]int64, error) { return s.next.ListModeratorIDs(ctx) })
}

// SaveMessage implements store.MessageStore.
func (s *Store) SaveMessage(ctx context.Context, msg *store.Message) error {
	return exec(s, func() error { return s.next.SaveMessage(ctx, msg) })
}

// GetMessage implements store.MessageStore.
func (s *Store) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	return call(s, func() (*store.Message, error) { return s.next.GetMessage(ctx, id) })
}

// UpdateMessage implements store.MessageStore.
func (s *Store) UpdateMessage(ctx context.Context, id int64, body string, editedAt time.Time) error {
	return exec(s, func() error { return s.next.UpdateMessage(ctx, id, body, editedAt) })
}

// ListMessages implements store.MessageStore.
func (s *Store) ListMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	return call(s, func() ([]*store.Message, error) { return s.next.ListMessages(ctx, limit) })
}

// Close closes the wrapped store.
func (s *Store) Close() error {
	return s.next.Close()
}
