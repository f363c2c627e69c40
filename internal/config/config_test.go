package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "ldap://localhost:389", cfg.URI)
	assert.Equal(t, "dc=example,dc=org", cfg.BaseDN)
	assert.Equal(t, "ou=users,dc=example,dc=org", cfg.UsersDN)
	assert.Equal(t, "ou=groups,dc=example,dc=org", cfg.GroupsDN)
	assert.Equal(t, "ou=groupacls,dc=example,dc=org", cfg.ACLsDN)
	assert.Equal(t, cfg.DevicesDN, cfg.DeviceGroupsDN, "device groups share the devices subtree by default")
	assert.Equal(t, "all", cfg.UsersGroup)
	assert.Equal(t, 3, cfg.MinPasswordScore)
	assert.Equal(t, 32, cfg.GeneratedPasswordLength)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "granadilla.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
uri: ldaps://ldap.internal:636
base_dn: dc=corp,dc=test
users_dn: ou=people,dc=corp,dc=test
use_acls: true
mail_domain: corp.test
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ldaps://ldap.internal:636", cfg.URI)
	assert.Equal(t, "ou=people,dc=corp,dc=test", cfg.UsersDN, "explicit DN wins")
	assert.Equal(t, "ou=groups,dc=corp,dc=test", cfg.GroupsDN, "unset DNs derive from base_dn")
	assert.True(t, cfg.UseACLs)
	assert.Equal(t, "corp.test", cfg.MailDomain)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/granadilla.yaml")
	assert.Error(t, err)
}

func TestSubtreeDNs(t *testing.T) {
	cfg := Default()
	assert.NotContains(t, cfg.SubtreeDNs(), cfg.ACLsDN)

	cfg.UseACLs = true
	assert.Contains(t, cfg.SubtreeDNs(), cfg.ACLsDN)
	assert.NotContains(t, cfg.SubtreeDNs(), cfg.DeviceGroupsDN+"x")
}
