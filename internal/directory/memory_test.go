package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	mem := NewMemory()
	ctx := context.Background()

	entries := []struct {
		dn    string
		attrs map[string][]string
	}{
		{"dc=example,dc=org", map[string][]string{"objectClass": {"dcObject"}}},
		{"ou=users,dc=example,dc=org", map[string][]string{"objectClass": {"organizationalUnit"}, "ou": {"users"}}},
		{"uid=jdoe,ou=users,dc=example,dc=org", map[string][]string{
			"objectClass": {"posixAccount"}, "uid": {"jdoe"}, "uidNumber": {"10000"},
		}},
		{"uid=alice,ou=users,dc=example,dc=org", map[string][]string{
			"objectClass": {"posixAccount"}, "uid": {"alice"}, "uidNumber": {"10001"},
		}},
	}
	for _, e := range entries {
		require.NoError(t, mem.Add(ctx, &AddRequest{DN: e.dn, Attributes: e.attrs}))
	}
	return mem
}

func TestMemoryAddDuplicate(t *testing.T) {
	mem := seedMemory(t)
	err := mem.Add(context.Background(), &AddRequest{
		DN:         "UID=JDOE,ou=Users,dc=example,dc=org",
		Attributes: map[string][]string{"objectClass": {"posixAccount"}},
	})
	assert.ErrorIs(t, err, ErrAlreadyExists, "DN comparison is case-insensitive")
}

func TestMemorySearchScopes(t *testing.T) {
	mem := seedMemory(t)
	ctx := context.Background()

	base, err := mem.Search(ctx, &SearchRequest{BaseDN: "ou=users,dc=example,dc=org", Scope: ScopeBase})
	require.NoError(t, err)
	require.Len(t, base.Entries, 1)

	one, err := mem.Search(ctx, &SearchRequest{BaseDN: "ou=users,dc=example,dc=org", Scope: ScopeOneLevel})
	require.NoError(t, err)
	assert.Len(t, one.Entries, 2)

	sub, err := mem.Search(ctx, &SearchRequest{BaseDN: "dc=example,dc=org", Scope: ScopeSubtree})
	require.NoError(t, err)
	assert.Len(t, sub.Entries, 4)
}

func TestMemorySearchMissingBase(t *testing.T) {
	mem := seedMemory(t)
	_, err := mem.Search(context.Background(), &SearchRequest{
		BaseDN: "ou=ghosts,dc=example,dc=org",
		Scope:  ScopeBase,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFilters(t *testing.T) {
	mem := seedMemory(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter string
		want   int
	}{
		{"equality", "(uid=jdoe)", 1},
		{"equality_case", "(UID=jdoe)", 1},
		{"presence", "(uidNumber=*)", 2},
		{"and", "(&(objectClass=posixAccount)(uid=alice))", 1},
		{"or", "(|(uid=jdoe)(uid=alice))", 2},
		{"no_match", "(uid=ghost)", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := mem.Search(ctx, &SearchRequest{
				BaseDN: "ou=users,dc=example,dc=org",
				Scope:  ScopeOneLevel,
				Filter: tt.filter,
			})
			require.NoError(t, err)
			assert.Len(t, result.Entries, tt.want)
		})
	}
}

func TestMemoryModify(t *testing.T) {
	mem := seedMemory(t)
	ctx := context.Background()
	dn := "uid=jdoe,ou=users,dc=example,dc=org"

	require.NoError(t, mem.Modify(ctx, &ModifyRequest{
		DN:      dn,
		Replace: map[string][]string{"loginShell": {"/bin/zsh"}},
	}))
	require.NoError(t, mem.Modify(ctx, &ModifyRequest{DN: dn, Delete: []string{"uidNumber"}}))

	result, err := mem.Search(ctx, &SearchRequest{BaseDN: dn, Scope: ScopeBase})
	require.NoError(t, err)
	entry := result.Entries[0]
	assert.Equal(t, "/bin/zsh", entry.GetEqualFoldAttributeValue("loginShell"))
	assert.Empty(t, entry.GetEqualFoldAttributeValues("uidNumber"))

	err = mem.Modify(ctx, &ModifyRequest{DN: "uid=ghost,ou=users,dc=example,dc=org"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDelete(t *testing.T) {
	mem := seedMemory(t)
	ctx := context.Background()
	dn := "uid=jdoe,ou=users,dc=example,dc=org"

	require.NoError(t, mem.Delete(ctx, dn))
	assert.ErrorIs(t, mem.Delete(ctx, dn), ErrNotFound)
}

func TestMemoryWritesCounter(t *testing.T) {
	mem := seedMemory(t)
	ctx := context.Background()
	before := mem.Writes()

	// Failed mutations must not count.
	_ = mem.Delete(ctx, "uid=ghost,ou=users,dc=example,dc=org")
	_ = mem.Add(ctx, &AddRequest{DN: "dc=example,dc=org"})
	assert.Equal(t, before, mem.Writes())

	require.NoError(t, mem.Delete(ctx, "uid=alice,ou=users,dc=example,dc=org"))
	assert.Equal(t, before+1, mem.Writes())
}
