package org

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

// Engine keeps the derived ACL and device group entries consistent with the
// authoritative posixGroup membership, recomputing full member sets on every
// change instead of propagating incremental diffs. Operations are idempotent
// under retry but not transactional across entries: a failed step leaves the
// directory in a state the same operation, re-run, converges from.
type Engine struct {
	dir *Directory
	cfg *config.Config
	log zerolog.Logger
}

func NewEngine(dir *Directory, cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		dir: dir,
		cfg: cfg,
		log: log.With().Str("component", "sync").Logger(),
	}
}

// AddUserToGroup appends username to the group's membership and, when the
// ACL feature is on, mirrors the user's DN into the group ACL. Already
// present is a no-op.
func (e *Engine) AddUserToGroup(ctx context.Context, username, groupName string) error {
	user, err := e.dir.Users.Get(ctx, username)
	if err != nil {
		return err
	}
	group, err := e.dir.Groups.Get(ctx, groupName)
	if err != nil {
		return err
	}

	if !group.HasMember(user.Username) {
		group.AddMember(user.Username)
		if err := e.dir.Groups.Save(ctx, group); err != nil {
			return err
		}
	}

	if e.cfg.UseACLs {
		return e.addToACL(ctx, groupName, e.dir.Users.DN(user.Username))
	}
	return nil
}

// RemoveUserFromGroup removes username from the group's membership and from
// the group ACL. Not present is a no-op.
func (e *Engine) RemoveUserFromGroup(ctx context.Context, username, groupName string) error {
	group, err := e.dir.Groups.Get(ctx, groupName)
	if err != nil {
		return err
	}

	if group.HasMember(username) {
		group.RemoveMember(username)
		if err := e.dir.Groups.Save(ctx, group); err != nil {
			return err
		}
	}

	if e.cfg.UseACLs {
		return e.removeFromACL(ctx, groupName, e.dir.Users.DN(username))
	}
	return nil
}

// AddContactToGroup mirrors an external contact's DN into a group ACL.
// Contacts have no posix account, so the posixGroup itself is untouched.
func (e *Engine) AddContactToGroup(ctx context.Context, email, groupName string) error {
	if !e.cfg.UseACLs {
		return directory.Validation("add_contact", "group ACLs are disabled; external members need the ACL feature")
	}
	contact, err := e.dir.Contacts.Get(ctx, email)
	if err != nil {
		return err
	}
	if _, err := e.dir.Groups.Get(ctx, groupName); err != nil {
		return err
	}
	return e.addToACL(ctx, groupName, e.dir.Contacts.DN(contact.Email))
}

// RemoveContactFromGroup removes an external contact's DN from a group ACL.
func (e *Engine) RemoveContactFromGroup(ctx context.Context, email, groupName string) error {
	if !e.cfg.UseACLs {
		return directory.Validation("remove_contact", "group ACLs are disabled; external members need the ACL feature")
	}
	return e.removeFromACL(ctx, groupName, e.dir.Contacts.DN(email))
}

func (e *Engine) addToACL(ctx context.Context, groupName, memberDN string) error {
	acl, err := e.dir.ACLs.Get(ctx, groupName)
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			return err
		}
		acl = &ACL{Group: groupName}
	}
	if containsFold(acl.Members, memberDN) {
		return nil
	}
	acl.Members = append(acl.Members, memberDN)
	return e.dir.ACLs.Save(ctx, acl)
}

func (e *Engine) removeFromACL(ctx context.Context, groupName, memberDN string) error {
	acl, err := e.dir.ACLs.Get(ctx, groupName)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil
		}
		return err
	}
	if !containsFold(acl.Members, memberDN) {
		return nil
	}
	acl.Members = removeFold(acl.Members, memberDN)
	return e.dir.ACLs.Save(ctx, acl)
}

// DeleteUser removes the user from every group and ACL that references it,
// then deletes the user entry. Devices owned by the user are left in place;
// whether to remove them first is the caller's policy.
func (e *Engine) DeleteUser(ctx context.Context, username string) error {
	groups, err := e.dir.Groups.ContainingUser(ctx, username)
	if err != nil {
		return err
	}
	for _, group := range groups {
		if err := e.RemoveUserFromGroup(ctx, username, group.Name); err != nil {
			return err
		}
	}
	return e.dir.Users.Delete(ctx, username)
}

// DeleteContact removes the contact's DN from every ACL, then deletes the
// contact entry.
func (e *Engine) DeleteContact(ctx context.Context, email string) error {
	if e.cfg.UseACLs {
		memberDN := e.dir.Contacts.DN(email)
		acls, err := e.dir.ACLs.List(ctx)
		if err != nil {
			return err
		}
		for _, acl := range acls {
			if !containsFold(acl.Members, memberDN) {
				continue
			}
			if err := e.removeFromACL(ctx, acl.Group, memberDN); err != nil {
				return err
			}
		}
	}
	return e.dir.Contacts.Delete(ctx, email)
}

// DeleteGroup deletes a group, its ACL if one exists, and recomputes any
// device group bound to it. Such a device group goes empty but stays.
func (e *Engine) DeleteGroup(ctx context.Context, groupName string) error {
	groupDN := e.dir.Groups.DN(groupName)

	if err := e.dir.Groups.Delete(ctx, groupName); err != nil {
		return err
	}
	if e.cfg.UseACLs {
		if err := e.dir.ACLs.Delete(ctx, groupName); err != nil {
			return err
		}
	}
	return e.resyncForGroupDN(ctx, groupDN)
}

// InitDeviceGroup creates a device group bound to an existing posix group
// and computes its initial member set from current device ownership.
func (e *Engine) InitDeviceGroup(ctx context.Context, name, groupName string) error {
	group, err := e.dir.Groups.Get(ctx, groupName)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Reference("init_devicegroup", e.dir.Groups.DN(groupName),
				fmt.Sprintf("group %q does not exist", groupName))
		}
		return err
	}

	deviceGroup := &DeviceGroup{
		Name:    name,
		GroupDN: e.dir.Groups.DN(group.Name),
	}
	return e.ResyncDeviceGroup(ctx, deviceGroup)
}

// ResyncDeviceGroup recomputes a device group's member set from the bound
// group's current membership and device ownership. The write is skipped
// entirely when the computed set matches what is stored; otherwise the
// sorted additions and removals are logged under a per-run id.
func (e *Engine) ResyncDeviceGroup(ctx context.Context, deviceGroup *DeviceGroup) error {
	log := e.log.With().
		Str("run_id", uuid.NewString()).
		Str("devicegroup", deviceGroup.Name).
		Logger()

	expected, err := e.expectedDeviceMembers(ctx, deviceGroup.GroupDN)
	if err != nil {
		return err
	}

	current := deviceGroup.Members
	exists := false
	if stored, err := e.dir.DeviceGroups.Get(ctx, deviceGroup.Name); err == nil {
		current = stored.Members
		exists = true
	} else if !errors.Is(err, directory.ErrNotFound) {
		return err
	}

	added, removed := diffSets(current, expected)
	if exists && len(added) == 0 && len(removed) == 0 {
		log.Debug().Msg("device group already in sync")
		deviceGroup.Members = expected
		return nil
	}

	deviceGroup.Members = expected
	if err := e.dir.DeviceGroups.Save(ctx, deviceGroup); err != nil {
		return err
	}
	log.Info().
		Strs("added", added).
		Strs("removed", removed).
		Int("members", len(expected)).
		Msg("resynced device group")
	return nil
}

// expectedDeviceMembers computes the sorted DN set of every device owned by
// a member of the group at groupDN. A deleted group yields the empty set.
func (e *Engine) expectedDeviceMembers(ctx context.Context, groupDN string) ([]string, error) {
	group, err := e.dir.Groups.Get(ctx, leafValue(groupDN))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var members []string
	for _, username := range group.Members {
		devices, err := e.dir.Devices.OwnedBy(ctx, username)
		if err != nil {
			return nil, err
		}
		for _, device := range devices {
			members = append(members, e.dir.Devices.DN(device.Login()))
		}
	}
	sort.Strings(members)
	return members, nil
}

// GroupSaved resyncs every device group bound to the saved group.
func (e *Engine) GroupSaved(ctx context.Context, group *Group) error {
	return e.resyncForGroupDN(ctx, e.dir.Groups.DN(group.Name))
}

// DeviceSaved resyncs the device groups of every group the device's owner
// belongs to.
func (e *Engine) DeviceSaved(ctx context.Context, device *Device) error {
	return e.resyncForOwner(ctx, device.Owner)
}

// DeviceDeleted resyncs the device groups of every group the device's owner
// belonged to.
func (e *Engine) DeviceDeleted(ctx context.Context, device *Device) error {
	return e.resyncForOwner(ctx, device.Owner)
}

func (e *Engine) resyncForOwner(ctx context.Context, username string) error {
	groups, err := e.dir.Groups.ContainingUser(ctx, username)
	if err != nil {
		return err
	}
	for _, group := range groups {
		if err := e.resyncForGroupDN(ctx, e.dir.Groups.DN(group.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) resyncForGroupDN(ctx context.Context, groupDN string) error {
	deviceGroups, err := e.dir.DeviceGroups.ForGroupDN(ctx, groupDN)
	if err != nil {
		return err
	}
	for _, deviceGroup := range deviceGroups {
		if err := e.ResyncDeviceGroup(ctx, deviceGroup); err != nil {
			return err
		}
	}
	return nil
}

// SyncAll resyncs every device group in the directory. This is the recovery
// path after partial failures or out-of-band edits.
func (e *Engine) SyncAll(ctx context.Context) error {
	deviceGroups, err := e.dir.DeviceGroups.List(ctx)
	if err != nil {
		return err
	}
	for _, deviceGroup := range deviceGroups {
		if err := e.ResyncDeviceGroup(ctx, deviceGroup); err != nil {
			return err
		}
	}
	return nil
}

// diffSets returns the sorted values present in after but not before, and in
// before but not after.
func diffSets(before, after []string) (added, removed []string) {
	beforeSet := make(map[string]struct{}, len(before))
	for _, v := range before {
		beforeSet[v] = struct{}{}
	}
	afterSet := make(map[string]struct{}, len(after))
	for _, v := range after {
		afterSet[v] = struct{}{}
	}

	for v := range afterSet {
		if _, ok := beforeSet[v]; !ok {
			added = append(added, v)
		}
	}
	for v := range beforeSet {
		if _, ok := afterSet[v]; !ok {
			removed = append(removed, v)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
