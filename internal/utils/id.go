package utils

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// NewID returns a unique connection identifier.
func NewID() string {
	return uuid.NewString()
}

// GuestName returns a display name for a connection that asked for none.
func GuestName() string {
	return fmt.Sprintf("User-%04d", rand.IntN(10000))
}
