package org

import (
	"context"
	"errors"

	"github.com/Polyconseil/granadilla/internal/directory"
)

// Bootstrap scaffolds the configured subtree layout and the default users
// group. It is idempotent: existing organizational units and groups are left
// untouched, so it can run on every deployment.
func (d *Directory) Bootstrap(ctx context.Context) error {
	for _, dn := range d.cfg.SubtreeDNs() {
		if err := d.OUs.Ensure(ctx, dn); err != nil {
			return err
		}
	}
	return d.ensureDefaultGroup(ctx)
}

// ensureDefaultGroup creates the group every new user lands in, using the
// regular gid assignment path.
func (d *Directory) ensureDefaultGroup(ctx context.Context) error {
	_, err := d.Groups.Get(ctx, d.cfg.UsersGroup)
	if err == nil {
		return nil
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return err
	}

	gid, err := d.Groups.NextGID(ctx)
	if err != nil {
		return err
	}
	group := &Group{
		Name:        d.cfg.UsersGroup,
		GID:         gid,
		Description: "default group for all accounts",
	}
	if err := d.Groups.Save(ctx, group); err != nil {
		return err
	}
	d.log.Info().Str("group", group.Name).Int("gid", group.GID).Msg("created default group")
	return nil
}
