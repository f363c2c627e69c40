package org

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

// Group is a posixGroup. Members holds usernames (memberUid values), the
// authoritative membership record everything derived is computed from.
type Group struct {
	Name        string
	GID         int
	Description string
	Members     []string
}

// HasMember reports whether username is in the group.
func (g *Group) HasMember(username string) bool {
	return containsFold(g.Members, username)
}

// AddMember appends username if absent. Appends keep insertion order; only
// the engine's resync output is sorted.
func (g *Group) AddMember(username string) {
	if g.HasMember(username) {
		return
	}
	g.Members = append(g.Members, username)
}

// RemoveMember drops username if present.
func (g *Group) RemoveMember(username string) {
	g.Members = removeFold(g.Members, username)
}

// GroupManager is the repository for posix groups.
type GroupManager struct {
	client directory.Client
	cfg    *config.Config
	log    zerolog.Logger
	notify GroupNotifier
}

func NewGroupManager(client directory.Client, cfg *config.Config, log zerolog.Logger) *GroupManager {
	return &GroupManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("manager", "group").Logger(),
	}
}

// DN returns the entry DN for a group name.
func (m *GroupManager) DN(name string) string {
	return fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(name), m.cfg.GroupsDN)
}

// Get fetches one group by name.
func (m *GroupManager) Get(ctx context.Context, name string) (*Group, error) {
	entry, err := getEntry(ctx, m.client, m.DN(name))
	if err != nil {
		return nil, err
	}
	return entryToGroup(entry), nil
}

// List returns every group, sorted by name.
func (m *GroupManager) List(ctx context.Context) ([]*Group, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.GroupsDN, "(objectClass=posixGroup)")
	if err != nil {
		return nil, err
	}
	groups := make([]*Group, 0, len(entries))
	for _, entry := range entries {
		groups = append(groups, entryToGroup(entry))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// ContainingUser returns the groups that list username as a member, sorted
// by name.
func (m *GroupManager) ContainingUser(ctx context.Context, username string) ([]*Group, error) {
	filter := fmt.Sprintf("(&(objectClass=posixGroup)(memberUid=%s))", ldap.EscapeFilter(username))
	entries, err := listEntries(ctx, m.client, m.cfg.GroupsDN, filter)
	if err != nil {
		return nil, err
	}
	groups := make([]*Group, 0, len(entries))
	for _, entry := range entries {
		groups = append(groups, entryToGroup(entry))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// Save writes the full group state and notifies the engine so the group's
// derived entries get recomputed.
func (m *GroupManager) Save(ctx context.Context, group *Group) error {
	if group.Name == "" {
		return directory.Validation("save_group", "group name must not be empty")
	}
	if err := saveEntry(ctx, m.client, m.DN(group.Name), m.attributes(group)); err != nil {
		return err
	}
	m.log.Info().Str("group", group.Name).Int("members", len(group.Members)).Msg("saved group")

	if m.notify != nil {
		return m.notify.GroupSaved(ctx, group)
	}
	return nil
}

// Delete removes the bare group entry. Derived ACL cleanup is the engine's
// job; use Engine.DeleteGroup from operator flows.
func (m *GroupManager) Delete(ctx context.Context, name string) error {
	if err := m.client.Delete(ctx, m.DN(name)); err != nil {
		return err
	}
	m.log.Info().Str("group", name).Msg("deleted group")
	return nil
}

// NextGID returns the next free posix gid number: one past the highest in
// use, with a floor of 10000.
func (m *GroupManager) NextGID(ctx context.Context) (int, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.GroupsDN, "(objectClass=posixGroup)")
	if err != nil {
		return 0, err
	}
	next := minUIDNumber
	for _, entry := range entries {
		if gid := attrInt(entry, "gidNumber"); gid >= next {
			next = gid + 1
		}
	}
	return next, nil
}

func (m *GroupManager) attributes(group *Group) map[string][]string {
	return map[string][]string{
		"objectClass": {"posixGroup"},
		"cn":          {group.Name},
		"gidNumber":   {fmt.Sprintf("%d", group.GID)},
		"description": single(group.Description),
		"memberUid":   group.Members,
	}
}

func entryToGroup(entry *ldap.Entry) *Group {
	members := append([]string(nil), attrValues(entry, "memberUid")...)
	return &Group{
		Name:        attrValue(entry, "cn"),
		GID:         attrInt(entry, "gidNumber"),
		Description: attrValue(entry, "description"),
		Members:     members,
	}
}
