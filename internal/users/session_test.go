package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskmarket/internal/testutil"
)

func TestSession_LoginCurrentLogout(t *testing.T) {
	s := testutil.NewStore(t)
	d := newTestDirectory(t, s)
	ctx := context.Background()
	alice := signup(t, d, "Alice", "alice@example.com", "0")

	_, err := d.Current(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = d.Login(ctx, alice.ID)
	require.NoError(t, err)

	// Another origin sharing the store sees the same session.
	other := newTestDirectory(t, s)
	current, err := other.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, current.ID)

	require.NoError(t, d.Logout(ctx))
	_, err = other.Current(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestSession_ReloginReplacesUser(t *testing.T) {
	d := newTestDirectory(t, testutil.NewStore(t))
	ctx := context.Background()
	alice := signup(t, d, "Alice", "alice@example.com", "0")
	bob := signup(t, d, "Bob", "bob@example.com", "0")

	_, err := d.Login(ctx, alice.ID)
	require.NoError(t, err)
	_, err = d.Login(ctx, bob.ID)
	require.NoError(t, err)

	current, err := d.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, current.ID)
}

func TestSession_LoginUnknownUser(t *testing.T) {
	d := newTestDirectory(t, testutil.NewStore(t))

	_, err := d.Login(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSession_DanglingSessionIsLoggedOut(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	_, err := s.Put(ctx, SessionKey, []byte(`{"user_id":"ghost"}`), "other")
	require.NoError(t, err)

	d := newTestDirectory(t, s)
	_, err = d.Current(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}
