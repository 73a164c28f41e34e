package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 10
	// bcrypt ignores input past this many bytes.
	maxPasswordBytes = 72
)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// hashPassword hashes a chat account password. Multi-byte passwords that fit
// the rune limit but not bcrypt's byte limit are rejected as invalid.
func hashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// passwordMatches reports whether password matches hash. Guests and unknown
// users have no hash; a throwaway comparison still runs so login latency does
// not reveal which usernames are registered.
func passwordMatches(hash, password string) bool {
	if hash == "" {
		dummyHashOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("chatroom-placeholder"), bcryptCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
