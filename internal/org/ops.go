package org

import (
	"context"
	"errors"

	"github.com/Polyconseil/granadilla/internal/directory"
)

// CreateUser provisions a person account end to end: uid assignment,
// derived defaults, credential hashing and membership in the default users
// group. The plaintext password is validated against the strength policy
// before anything is written.
func (d *Directory) CreateUser(ctx context.Context, user *User, plaintext string) error {
	if _, err := d.Users.Get(ctx, user.Username); err == nil {
		return directory.AlreadyExists("create_user", d.Users.DN(user.Username))
	} else if !errors.Is(err, directory.ErrNotFound) {
		return err
	}

	if user.UID == 0 {
		uid, err := d.Users.NextUID(ctx)
		if err != nil {
			return err
		}
		user.UID = uid
	}
	if err := d.Users.ApplyDefaults(ctx, user); err != nil {
		return err
	}
	if err := d.Users.SetPassword(user, plaintext); err != nil {
		return err
	}
	if err := d.Users.Save(ctx, user); err != nil {
		return err
	}
	return d.Sync.AddUserToGroup(ctx, user.Username, d.cfg.UsersGroup)
}

// SetUserPassword replaces an existing user's credential after strength
// validation.
func (d *Directory) SetUserPassword(ctx context.Context, username, plaintext string) error {
	user, err := d.Users.Get(ctx, username)
	if err != nil {
		return err
	}
	if err := d.Users.SetPassword(user, plaintext); err != nil {
		return err
	}
	return d.Users.Save(ctx, user)
}

// CreateService provisions a service account with a generated credential and
// returns the plaintext exactly once.
func (d *Directory) CreateService(ctx context.Context, name, description string) (string, error) {
	if _, err := d.Services.Get(ctx, name); err == nil {
		return "", directory.AlreadyExists("create_service", d.Services.DN(name))
	} else if !errors.Is(err, directory.ErrNotFound) {
		return "", err
	}

	uid, err := d.Services.NextUID(ctx)
	if err != nil {
		return "", err
	}
	group, err := d.Groups.Get(ctx, d.cfg.UsersGroup)
	if err != nil {
		return "", err
	}

	svc := &ServiceAccount{
		Name:        name,
		UID:         uid,
		GID:         group.GID,
		Description: description,
	}
	plaintext, err := d.Services.ResetPassword(svc)
	if err != nil {
		return "", err
	}
	if err := d.Services.Save(ctx, svc); err != nil {
		return "", err
	}
	return plaintext, nil
}

// RotateServicePassword regenerates a service account's credential and
// returns the new plaintext exactly once.
func (d *Directory) RotateServicePassword(ctx context.Context, name string) (string, error) {
	svc, err := d.Services.Get(ctx, name)
	if err != nil {
		return "", err
	}
	plaintext, err := d.Services.ResetPassword(svc)
	if err != nil {
		return "", err
	}
	if err := d.Services.Save(ctx, svc); err != nil {
		return "", err
	}
	return plaintext, nil
}

// ContactGroups returns the names of the groups whose ACL lists the contact,
// sorted by name.
func (d *Directory) ContactGroups(ctx context.Context, email string) ([]string, error) {
	if !d.cfg.UseACLs {
		return nil, directory.Validation("contact_groups",
			"group ACLs are disabled; external members need the ACL feature")
	}
	memberDN := d.Contacts.DN(email)
	acls, err := d.ACLs.List(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, acl := range acls {
		if containsFold(acl.Members, memberDN) {
			names = append(names, acl.Group)
		}
	}
	return names, nil
}

// CreateDevice provisions a device for an existing owner with a generated
// credential and returns the device and the plaintext exactly once. Saving
// the device triggers a resync of the owner's device groups.
func (d *Directory) CreateDevice(ctx context.Context, owner, name string) (*Device, string, error) {
	user, err := d.Users.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, "", directory.Reference("create_device", d.Users.DN(owner),
				"owner "+owner+" does not exist")
		}
		return nil, "", err
	}

	device := &Device{
		Owner:   user.Username,
		Name:    name,
		OwnerDN: d.Users.DN(user.Username),
	}
	if _, err := d.Devices.Get(ctx, device.Owner, device.Name); err == nil {
		return nil, "", directory.AlreadyExists("create_device", d.Devices.DN(device.Login()))
	} else if !errors.Is(err, directory.ErrNotFound) {
		return nil, "", err
	}

	plaintext, err := d.Devices.ResetPassword(device)
	if err != nil {
		return nil, "", err
	}
	if err := d.Devices.Save(ctx, device); err != nil {
		return nil, "", err
	}
	return device, plaintext, nil
}

// RotateDevicePassword regenerates a device's credential and returns the new
// plaintext exactly once.
func (d *Directory) RotateDevicePassword(ctx context.Context, owner, name string) (string, error) {
	device, err := d.Devices.Get(ctx, owner, name)
	if err != nil {
		return "", err
	}
	plaintext, err := d.Devices.ResetPassword(device)
	if err != nil {
		return "", err
	}
	if err := d.Devices.Save(ctx, device); err != nil {
		return "", err
	}
	return plaintext, nil
}

// CreateGroup provisions a posix group, assigning the next free gid when
// none is given.
func (d *Directory) CreateGroup(ctx context.Context, name, description string, gid int) (*Group, error) {
	if _, err := d.Groups.Get(ctx, name); err == nil {
		return nil, directory.AlreadyExists("create_group", d.Groups.DN(name))
	} else if !errors.Is(err, directory.ErrNotFound) {
		return nil, err
	}

	if gid == 0 {
		next, err := d.Groups.NextGID(ctx)
		if err != nil {
			return nil, err
		}
		gid = next
	}
	group := &Group{Name: name, GID: gid, Description: description}
	if err := d.Groups.Save(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}
