package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/chatroom-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

var validate = validator.New()

type credentials struct {
	Username string `validate:"required,min=3,max=32,excludesall=@"`
	Password string `validate:"required,min=6,max=72"`
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	if err := validateCredentials(credentials{Username: username, Password: password}); err != nil {
		return "", err
	}

	existing, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil && existing != nil:
		return "", ErrUserExists
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("lookup user: %w", err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return "", err
	}

	// Color is picked from the palette on first identify.
	user, err := s.store.CreateUser(ctx, username, store.DefaultColor, hashedPassword)
	if errors.Is(err, store.ErrConflict) {
		return "", ErrUserExists
	}
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	// Guests created by identify have no password and cannot log in.
	var hash string
	if user.Registered() {
		hash = user.PasswordHash
	}
	if !passwordMatches(hash, password) {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// IssueToken signs a fresh token for an existing account, e.g. after a rename.
func (s *Service) IssueToken(userID int64, username string) (string, error) {
	return GenerateToken(s.jwtConfig, userID, username)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// ValidateUsername applies the account name rules shared by registration and renames.
func ValidateUsername(username string) error {
	if strings.ContainsFunc(username, unicode.IsSpace) {
		return ErrInvalidUsername
	}
	if err := validate.Var(username, "required,min=3,max=32,excludesall=@"); err != nil {
		return ErrInvalidUsername
	}
	return nil
}

func validateCredentials(c credentials) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Password" {
		return ErrInvalidPassword
	}
	return ErrInvalidUsername
}
