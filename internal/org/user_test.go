package org

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

func TestCreateUserDefaults(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	user := &User{Username: "fbaudet", FirstName: "Frédéric", LastName: "Baudet"}
	require.NoError(t, dir.CreateUser(ctx, user, testPassphrase))

	stored, err := dir.Users.Get(ctx, "fbaudet")
	require.NoError(t, err)
	assert.Equal(t, 10000, stored.UID)
	assert.Equal(t, 10000, stored.GID, "default group gid")
	assert.Equal(t, "Frédéric Baudet", stored.FullName)
	assert.Equal(t, "Frederic Baudet", stored.Gecos, "gecos must be ASCII")
	assert.Equal(t, "frederic.baudet@example.org", stored.Email)
	assert.Equal(t, "/home/fbaudet", stored.Home)
	assert.Equal(t, "/bin/bash", stored.Shell)
	assert.True(t, strings.HasPrefix(stored.Password, "{SSHA}"))

	// New users land in the default group.
	all, err := dir.Groups.Get(ctx, "all")
	require.NoError(t, err)
	assert.Contains(t, all.Members, "fbaudet")
}

func TestCreateUserDuplicate(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "alice", "Alice", "Martin")
	err := dir.CreateUser(ctx, &User{Username: "alice", FirstName: "A", LastName: "M"},
		testPassphrase)
	assert.ErrorIs(t, err, directory.ErrAlreadyExists)
}

func TestUIDAssignmentMonotonic(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	first := mustCreateUser(t, dir, "alice", "Alice", "Martin")
	second := mustCreateUser(t, dir, "bob", "Bob", "Durand")
	assert.Equal(t, 10000, first.UID)
	assert.Equal(t, 10001, second.UID)

	// A hole below the maximum is never reused.
	require.NoError(t, dir.Sync.DeleteUser(ctx, "alice"))
	third := mustCreateUser(t, dir, "carol", "Carol", "Petit")
	assert.Equal(t, 10002, third.UID)
}

func TestGIDAssignmentFloor(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	// Bootstrap already took 10000 for the default group.
	group, err := dir.CreateGroup(ctx, "eng", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 10001, group.GID)

	explicit, err := dir.CreateGroup(ctx, "legacy", "", 500)
	require.NoError(t, err)
	assert.Equal(t, 500, explicit.GID)

	next, err := dir.CreateGroup(ctx, "ops", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 10002, next.GID, "low explicit gids must not lower the floor")
}

func TestSetPasswordRejectsWeak(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)

	user := &User{Username: "alice", FirstName: "Alice", LastName: "Martin", UID: 10000}
	assert.ErrorIs(t, dir.Users.SetPassword(user, "password1"), directory.ErrValidation)
	assert.ErrorIs(t, dir.Users.SetPassword(user, "alice"), directory.ErrValidation)
	assert.NoError(t, dir.Users.SetPassword(user, testPassphrase))
	assert.True(t, dir.Users.CheckPassword(user, testPassphrase))
	assert.False(t, dir.Users.CheckPassword(user, "wrong"))
}

func TestSetPasswordSambaAttributes(t *testing.T) {
	dir, _ := newTestDirectory(t, func(cfg *config.Config) { cfg.UseSamba = true })
	ctx := context.Background()

	user := mustCreateUser(t, dir, "alice", "Alice", "Martin")
	stored, err := dir.Users.Get(ctx, user.Username)
	require.NoError(t, err)

	assert.Equal(t, "S-1-0-0-21000", stored.SambaSID, "rid is 2*uid+1000")
	assert.Len(t, stored.SambaNTPassword, 32)
	assert.Equal(t, strings.ToUpper(stored.SambaNTPassword), stored.SambaNTPassword)
	assert.NotEmpty(t, stored.SambaPwdLastSet)
}

func TestModifyAttributeAllowList(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "alice", "Alice", "Martin")

	require.NoError(t, dir.Users.ModifyAttribute(ctx, "alice", "loginShell", "/bin/zsh"))
	stored, err := dir.Users.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "/bin/zsh", stored.Shell)

	err = dir.Users.ModifyAttribute(ctx, "alice", "uidNumber", "1")
	assert.ErrorIs(t, err, directory.ErrValidation)
	err = dir.Users.ModifyAttribute(ctx, "alice", "userPassword", "x")
	assert.ErrorIs(t, err, directory.ErrValidation)
}

func TestUserListSorted(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)

	mustCreateUser(t, dir, "zoe", "Zoé", "Blanc")
	mustCreateUser(t, dir, "alice", "Alice", "Martin")

	users, err := dir.Users.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "zoe", users[1].Username)
}
