package utils

import (
	"regexp"
	"testing"
)

func TestGuestNameFormat(t *testing.T) {
	re := regexp.MustCompile(`^User-\d{4}$`)
	for range 50 {
		if name := GuestName(); !re.MatchString(name) {
			t.Fatalf("unexpected guest name %q", name)
		}
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
