package org

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

// testPassphrase is long and multi-word so it clears the strength policy.
const testPassphrase = "plume ostrich gravel window"

// newTestDirectory returns a bootstrapped directory over an in-memory client.
func newTestDirectory(t *testing.T, mutate func(*config.Config)) (*Directory, *directory.Memory) {
	t.Helper()

	cfg := config.Default()
	cfg.UseACLs = true
	if mutate != nil {
		mutate(cfg)
	}

	mem := directory.NewMemory()
	require.NoError(t, mem.Add(context.Background(), &directory.AddRequest{
		DN:         cfg.BaseDN,
		Attributes: map[string][]string{"objectClass": {"dcObject", "organization"}},
	}))

	dir := New(mem, cfg, zerolog.Nop())
	require.NoError(t, dir.Bootstrap(context.Background()))
	return dir, mem
}

func mustCreateUser(t *testing.T, dir *Directory, username, first, last string) *User {
	t.Helper()
	user := &User{Username: username, FirstName: first, LastName: last}
	require.NoError(t, dir.CreateUser(context.Background(), user, testPassphrase))
	return user
}

func TestLeafValue(t *testing.T) {
	tests := []struct {
		dn   string
		want string
	}{
		{"ou=users,dc=example,dc=org", "users"},
		{"cn=eng,ou=groups,dc=example,dc=org", "eng"},
		{`cn=acme\, inc,ou=groups,dc=example,dc=org`, "acme, inc"},
		{`cn=back\\slash,ou=groups,dc=example,dc=org`, `back\slash`},
		{"dc=org", "org"},
		{"no-rdn", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, leafValue(tt.dn), "dn %s", tt.dn)
	}
}

func TestBootstrapIdempotent(t *testing.T) {
	dir, mem := newTestDirectory(t, nil)

	before := mem.Writes()
	require.NoError(t, dir.Bootstrap(context.Background()))
	require.Equal(t, before, mem.Writes(), "second bootstrap must not write")
}

func TestBootstrapCreatesDefaultGroup(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)

	group, err := dir.Groups.Get(context.Background(), "all")
	require.NoError(t, err)
	require.Equal(t, 10000, group.GID)
}
