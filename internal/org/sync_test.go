package org

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

func TestAddRemoveUserRoundTrip(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "alice", "Alice", "Martin")
	_, err := dir.CreateGroup(ctx, "eng", "engineering", 0)
	require.NoError(t, err)

	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "alice", "eng"))

	group, err := dir.Groups.Get(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, group.Members)

	acl, err := dir.ACLs.Get(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, []string{dir.Users.DN("alice")}, acl.Members)

	require.NoError(t, dir.Sync.RemoveUserFromGroup(ctx, "alice", "eng"))

	group, err = dir.Groups.Get(ctx, "eng")
	require.NoError(t, err)
	assert.Empty(t, group.Members)

	_, err = dir.ACLs.Get(ctx, "eng")
	assert.ErrorIs(t, err, directory.ErrNotFound, "emptied ACL must be deleted, not saved empty")
}

func TestAddUserToGroupIdempotent(t *testing.T) {
	dir, mem := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "alice", "Alice", "Martin")
	_, err := dir.CreateGroup(ctx, "eng", "", 0)
	require.NoError(t, err)

	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "alice", "eng"))
	before := mem.Writes()
	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "alice", "eng"))
	assert.Equal(t, before, mem.Writes(), "repeated add must not write")
}

func TestACLDisabled(t *testing.T) {
	dir, _ := newTestDirectory(t, func(cfg *config.Config) { cfg.UseACLs = false })
	ctx := context.Background()

	mustCreateUser(t, dir, "alice", "Alice", "Martin")
	_, err := dir.CreateGroup(ctx, "eng", "", 0)
	require.NoError(t, err)

	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "alice", "eng"))
	_, err = dir.ACLs.Get(ctx, "eng")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	err = dir.Sync.AddContactToGroup(ctx, "bob@example.com", "eng")
	assert.ErrorIs(t, err, directory.ErrValidation)
}

func TestContactMembership(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	require.NoError(t, dir.Contacts.Save(ctx, &Contact{
		Email: "bob@example.com", FirstName: "Bob", LastName: "Extern",
	}))
	_, err := dir.CreateGroup(ctx, "eng", "", 0)
	require.NoError(t, err)

	require.NoError(t, dir.Sync.AddContactToGroup(ctx, "bob@example.com", "eng"))
	acl, err := dir.ACLs.Get(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, []string{dir.Contacts.DN("bob@example.com")}, acl.Members)

	// The posix group itself must stay untouched.
	group, err := dir.Groups.Get(ctx, "eng")
	require.NoError(t, err)
	assert.Empty(t, group.Members)

	groups, err := dir.ContactGroups(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"eng"}, groups)

	require.NoError(t, dir.Sync.DeleteContact(ctx, "bob@example.com"))
	_, err = dir.ACLs.Get(ctx, "eng")
	assert.ErrorIs(t, err, directory.ErrNotFound)
	_, err = dir.Contacts.Get(ctx, "bob@example.com")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestContactKeyedByEmail(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	assert.Equal(t, "mail=bob@example.com,"+dir.cfg.ContactsDN, dir.Contacts.DN("bob@example.com"))

	require.NoError(t, dir.Contacts.Save(ctx, &Contact{
		Email: "bob@example.com", FirstName: "Bob", LastName: "Extern",
	}))
	contact, err := dir.Contacts.Get(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", contact.Email)
	assert.Equal(t, "Bob Extern", contact.FullName)

	// The email is the key and cannot be edited in place.
	err = dir.Contacts.ModifyAttribute(ctx, "bob@example.com", "mail", "other@example.com")
	assert.ErrorIs(t, err, directory.ErrValidation)
	require.NoError(t, dir.Contacts.ModifyAttribute(ctx, "bob@example.com", "sn", "External"))
	contact, err = dir.Contacts.Get(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "External", contact.LastName)
}

func TestMembersKeepInsertionOrder(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "zoe", "Zoé", "Blanc")
	mustCreateUser(t, dir, "alice", "Alice", "Martin")
	_, err := dir.CreateGroup(ctx, "eng", "", 0)
	require.NoError(t, err)

	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "zoe", "eng"))
	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "alice", "eng"))

	group, err := dir.Groups.Get(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, []string{"zoe", "alice"}, group.Members, "appends persist in insertion order")

	acl, err := dir.ACLs.Get(ctx, "eng")
	require.NoError(t, err)
	assert.Equal(t, []string{dir.Users.DN("zoe"), dir.Users.DN("alice")}, acl.Members)
}

func TestDeleteUserCleansMemberships(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "alice", "Alice", "Martin")
	_, err := dir.CreateGroup(ctx, "eng", "", 0)
	require.NoError(t, err)
	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "alice", "eng"))

	require.NoError(t, dir.Sync.DeleteUser(ctx, "alice"))

	_, err = dir.Users.Get(ctx, "alice")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	group, err := dir.Groups.Get(ctx, "eng")
	require.NoError(t, err)
	assert.Empty(t, group.Members)

	all, err := dir.Groups.Get(ctx, "all")
	require.NoError(t, err)
	assert.Empty(t, all.Members)
}

func TestDeleteGroupRemovesACLKeepsDeviceGroup(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "alice", "Alice", "Martin")
	_, err := dir.CreateGroup(ctx, "eng", "", 0)
	require.NoError(t, err)
	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "alice", "eng"))
	_, _, err = dir.CreateDevice(ctx, "alice", "laptop")
	require.NoError(t, err)
	require.NoError(t, dir.Sync.InitDeviceGroup(ctx, "eng-devices", "eng"))

	deviceGroup, err := dir.DeviceGroups.Get(ctx, "eng-devices")
	require.NoError(t, err)
	require.NotEmpty(t, deviceGroup.Members)

	require.NoError(t, dir.Sync.DeleteGroup(ctx, "eng"))

	_, err = dir.Groups.Get(ctx, "eng")
	assert.ErrorIs(t, err, directory.ErrNotFound)
	_, err = dir.ACLs.Get(ctx, "eng")
	assert.ErrorIs(t, err, directory.ErrNotFound)

	deviceGroup, err = dir.DeviceGroups.Get(ctx, "eng-devices")
	require.NoError(t, err, "device group must survive its group")
	assert.Empty(t, deviceGroup.Members, "device group must be recomputed to empty")
}

func TestInitDeviceGroupRequiresGroup(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)

	err := dir.Sync.InitDeviceGroup(context.Background(), "ghost-devices", "ghost")
	assert.ErrorIs(t, err, directory.ErrReference)
}

func TestDeviceGroupTracksOwnership(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "jdoe", "John", "Doe")
	_, err := dir.CreateGroup(ctx, "test-group", "", 1234)
	require.NoError(t, err)
	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "jdoe", "test-group"))

	_, _, err = dir.CreateDevice(ctx, "jdoe", "laptop")
	require.NoError(t, err)
	require.NoError(t, dir.Sync.InitDeviceGroup(ctx, "test-group", "test-group"))

	deviceGroup, err := dir.DeviceGroups.Get(ctx, "test-group")
	require.NoError(t, err)
	assert.Equal(t, []string{dir.Devices.DN("jdoe_laptop")}, deviceGroup.Members)

	// A second device shows up after its save, sorted by DN.
	_, _, err = dir.CreateDevice(ctx, "jdoe", "phone")
	require.NoError(t, err)

	deviceGroup, err = dir.DeviceGroups.Get(ctx, "test-group")
	require.NoError(t, err)
	assert.Equal(t, []string{
		dir.Devices.DN("jdoe_laptop"),
		dir.Devices.DN("jdoe_phone"),
	}, deviceGroup.Members)

	// Deleting a device drops it again.
	require.NoError(t, dir.Devices.Delete(ctx, "jdoe", "phone"))
	deviceGroup, err = dir.DeviceGroups.Get(ctx, "test-group")
	require.NoError(t, err)
	assert.Equal(t, []string{dir.Devices.DN("jdoe_laptop")}, deviceGroup.Members)
}

func TestDeviceGroupForGroupNameWithComma(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "jdoe", "John", "Doe")
	_, err := dir.CreateGroup(ctx, "acme, inc", "", 0)
	require.NoError(t, err)
	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "jdoe", "acme, inc"))
	_, _, err = dir.CreateDevice(ctx, "jdoe", "laptop")
	require.NoError(t, err)

	require.NoError(t, dir.Sync.InitDeviceGroup(ctx, "acme-devices", "acme, inc"))
	deviceGroup, err := dir.DeviceGroups.Get(ctx, "acme-devices")
	require.NoError(t, err)
	assert.Equal(t, []string{dir.Devices.DN("jdoe_laptop")}, deviceGroup.Members,
		"an escaped comma in the group name must not break the group lookup")

	require.NoError(t, dir.Sync.SyncAll(ctx))
	deviceGroup, err = dir.DeviceGroups.Get(ctx, "acme-devices")
	require.NoError(t, err)
	assert.NotEmpty(t, deviceGroup.Members, "resync must not treat the group as deleted")
}

func TestResyncDeviceGroupIdempotent(t *testing.T) {
	dir, mem := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "jdoe", "John", "Doe")
	_, err := dir.CreateGroup(ctx, "test-group", "", 0)
	require.NoError(t, err)
	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "jdoe", "test-group"))
	_, _, err = dir.CreateDevice(ctx, "jdoe", "laptop")
	require.NoError(t, err)
	require.NoError(t, dir.Sync.InitDeviceGroup(ctx, "test-group", "test-group"))

	before := mem.Writes()
	require.NoError(t, dir.Sync.SyncAll(ctx))
	assert.Equal(t, before, mem.Writes(), "convergent resync must perform zero writes")
}

func TestSyncAllRepairsDrift(t *testing.T) {
	dir, mem := newTestDirectory(t, nil)
	ctx := context.Background()

	mustCreateUser(t, dir, "jdoe", "John", "Doe")
	_, err := dir.CreateGroup(ctx, "test-group", "", 0)
	require.NoError(t, err)
	require.NoError(t, dir.Sync.AddUserToGroup(ctx, "jdoe", "test-group"))
	_, _, err = dir.CreateDevice(ctx, "jdoe", "laptop")
	require.NoError(t, err)
	require.NoError(t, dir.Sync.InitDeviceGroup(ctx, "test-group", "test-group"))

	// Simulate an out-of-band edit of the derived entry.
	require.NoError(t, mem.Modify(ctx, &directory.ModifyRequest{
		DN:      dir.DeviceGroups.DN("test-group"),
		Replace: map[string][]string{"member": {"cn=stale," + dir.cfg.DevicesDN}},
	}))

	require.NoError(t, dir.Sync.SyncAll(ctx))
	deviceGroup, err := dir.DeviceGroups.Get(ctx, "test-group")
	require.NoError(t, err)
	assert.Equal(t, []string{dir.Devices.DN("jdoe_laptop")}, deviceGroup.Members)
}
