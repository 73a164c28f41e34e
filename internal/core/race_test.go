package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestIdentifyRacingDisconnectLeavesNothingBound(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil, Options{})

	for round := range 200 {
		connID := fmt.Sprintf("conn-%d", round)
		connect(hub, connID)

		var (
			wg          sync.WaitGroup
			identifyErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, identifyErr = hub.Identify(ctx, connID, fmt.Sprintf("user-%d", round))
		}()
		go func() {
			defer wg.Done()
			hub.Disconnect(connID)
		}()
		wg.Wait()

		if identifyErr != nil {
			require.ErrorIs(t, identifyErr, ErrUnknownConnection)
		}
		_, bound := hub.registry.Lookup(connID)
		require.False(t, bound, "round %d", round)
		require.Empty(t, hub.OnlineUsers(ctx), "round %d", round)
		require.Equal(t, len(DefaultPalette), hub.Colors().Available(), "round %d: color leaked", round)
	}
}

func TestBanRacingIdentifyNeverLeavesBannedUserOnline(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	hub := NewHub(st, Options{SuperModerator: "root"})
	connectAccount(t, hub, st, "root-conn", "root")
	_, err := hub.Identify(ctx, "root-conn", "")
	require.NoError(t, err)
	root, err := hub.ActorForConnection("root-conn")
	require.NoError(t, err)

	for round := range 50 {
		name := fmt.Sprintf("mallory-%d", round)
		_, err := st.CreateUser(ctx, name, "", "")
		require.NoError(t, err)
		c := connect(hub, name+"-conn")

		var (
			wg          sync.WaitGroup
			identifyErr error
			banErr      error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, identifyErr = hub.Identify(ctx, c.ID, name)
		}()
		go func() {
			defer wg.Done()
			_, banErr = hub.Ban(ctx, root, name, "race")
		}()
		wg.Wait()

		require.NoError(t, banErr)
		if identifyErr != nil {
			require.ErrorIs(t, identifyErr, ErrBanned)
		} else {
			// Bound first, so the ban must have kicked it.
			require.Equal(t, 1, countKind(c.Events, EventBanNotice), "round %d", round)
		}
		online := lo.Map(hub.OnlineUsers(ctx), func(u OnlineUser, _ int) string { return u.Username })
		require.NotContains(t, online, name, "round %d", round)
		require.Contains(t, online, "root")
	}
}

func TestConcurrentIdentifyDisconnectKeepsPresenceConsistent(t *testing.T) {
	ctx := context.Background()
	palette := []string{"#111111", "#222222", "#333333"}
	hub := NewHub(nil, Options{Palette: palette})

	const conns = 40
	for i := range conns {
		connect(hub, fmt.Sprintf("c%d", i))
	}

	errs := make([]error, conns)
	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			_, errs[i] = hub.Identify(ctx, connID, fmt.Sprintf("user-%d", i))
			// Odd connections leave again right away.
			if i%2 == 1 {
				hub.Disconnect(connID)
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "identify c%d", i)
	}

	online := hub.OnlineUsers(ctx)
	require.Len(t, online, conns/2)
	names := lo.Map(online, func(u OnlineUser, _ int) string { return u.Username })
	require.Len(t, lo.Uniq(names), len(names))
	for _, u := range online {
		require.Contains(t, palette, u.Color)
	}
	held := lo.Uniq(lo.Map(online, func(u OnlineUser, _ int) string { return u.Color }))
	require.Equal(t, len(palette)-len(held), hub.Colors().Available())

	for i := 0; i < conns; i += 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Disconnect(fmt.Sprintf("c%d", i))
		}()
	}
	wg.Wait()

	require.Empty(t, hub.OnlineUsers(ctx))
	require.Zero(t, hub.registry.Len())
	require.Equal(t, len(palette), hub.Colors().Available())
}
