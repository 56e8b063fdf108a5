package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
)

func TestSessionStateStartsLoading(t *testing.T) {
	state := NewSessionState()
	snap := state.Snapshot()

	assert.True(t, snap.IsLoading)
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.User)
}

func TestSessionStateKeepsTokenAndUserTogether(t *testing.T) {
	state := NewSessionState()

	state.SetSession(models.Session{Token: "token"})
	snap := state.Snapshot()
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.User)

	state.SetSession(models.Session{User: &models.UserProfile{ID: "1"}})
	assert.False(t, state.Snapshot().Authenticated())

	state.SetSession(models.Session{Token: "token", User: &models.UserProfile{ID: "1"}})
	assert.True(t, state.Snapshot().Authenticated())
}

func TestSessionStateSnapshotIsACopy(t *testing.T) {
	state := NewSessionState()
	user := &models.UserProfile{ID: "1", Roles: []string{"Admin"}}
	state.SetSession(models.Session{Token: "token", User: user})

	user.Roles[0] = "Parent"
	snap := state.Snapshot()
	snap.User.Roles[0] = "Teacher"

	assert.Equal(t, []string{"Admin"}, state.Snapshot().User.Roles)
}

func TestSessionStateSubscribeDeliversLatest(t *testing.T) {
	state := NewSessionState()
	updates, cancel := state.Subscribe()
	defer cancel()

	initial := <-updates
	assert.True(t, initial.IsLoading)

	state.SetSession(models.Session{Token: "a", User: &models.UserProfile{ID: "1"}})
	state.SetSession(models.AnonymousSession())

	select {
	case latest := <-updates:
		assert.False(t, latest.Authenticated())
		assert.False(t, latest.IsLoading)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestSessionStateCancelClosesChannel(t *testing.T) {
	state := NewSessionState()
	updates, cancel := state.Subscribe()
	<-updates
	cancel()
	cancel()

	_, ok := <-updates
	require.False(t, ok)
	state.SetSession(models.AnonymousSession())
}
