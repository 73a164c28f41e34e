package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryBindOnce(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Bind("c1", Identity{Username: "alice"}))
	err := r.Bind("c1", Identity{Username: "other"})
	require.True(t, errors.Is(err, ErrAlreadyIdentified))

	id, ok := r.Lookup("c1")
	require.True(t, ok)
	require.Equal(t, "alice", id.Username)
}

func TestRegistryClaimRejectsOnlineDuplicates(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Claim("c1", Identity{Username: "Alice", UserID: 1}))
	require.ErrorIs(t, r.Claim("c2", Identity{Username: "alice"}), ErrUsernameTaken)
	require.ErrorIs(t, r.Claim("c3", Identity{Username: "renamed", UserID: 1}), ErrUsernameTaken)
	require.NoError(t, r.Claim("c4", Identity{Username: "bob", UserID: 2}))
	require.Equal(t, 2, r.Len())
}

func TestRegistryListOnlineInBindOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, r.Bind("conn-"+name, Identity{Username: name}))
	}

	online := r.ListOnline()
	require.Len(t, online, 3)
	require.Equal(t, "carol", online[0].Username)
	require.Equal(t, "alice", online[1].Username)
	require.Equal(t, "bob", online[2].Username)
	require.Equal(t, []string{"conn-carol", "conn-alice", "conn-bob"}, r.ConnectionIDs())

	_, ok := r.Unbind("conn-alice")
	require.True(t, ok)
	_, ok = r.Unbind("conn-alice")
	require.False(t, ok)
	require.Len(t, r.ListOnline(), 2)
}

func TestRegistryFindConnectionByUsername(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Bind("c1", Identity{Username: "Dave"}))

	connID, ok := r.FindConnectionByUsername("dave")
	require.True(t, ok)
	require.Equal(t, "c1", connID)

	_, ok = r.FindConnectionByUsername("erin")
	require.False(t, ok)

	require.True(t, r.SetModerator("c1", true))
	id, _ := r.Lookup("c1")
	require.True(t, id.IsModerator)
}
