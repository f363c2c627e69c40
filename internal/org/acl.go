package org

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

// ACL is the derived groupOfNames mirror of a posix group: one member DN per
// group member (users and external contacts alike), consumable by services
// that authorize on full DNs. It is a cache; the posixGroup stays
// authoritative.
type ACL struct {
	Group   string
	Members []string // member DNs, appended in insertion order
}

// ACLManager is the repository for derived group ACLs.
type ACLManager struct {
	client directory.Client
	cfg    *config.Config
	log    zerolog.Logger
}

func NewACLManager(client directory.Client, cfg *config.Config, log zerolog.Logger) *ACLManager {
	return &ACLManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("manager", "acl").Logger(),
	}
}

// DN returns the ACL entry DN for a group name.
func (m *ACLManager) DN(group string) string {
	return fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(group), m.cfg.ACLsDN)
}

// Get fetches the ACL for a group.
func (m *ACLManager) Get(ctx context.Context, group string) (*ACL, error) {
	entry, err := getEntry(ctx, m.client, m.DN(group))
	if err != nil {
		return nil, err
	}
	return entryToACL(entry), nil
}

// List returns every ACL, sorted by group name.
func (m *ACLManager) List(ctx context.Context) ([]*ACL, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.ACLsDN, "(objectClass=groupOfNames)")
	if err != nil {
		return nil, err
	}
	acls := make([]*ACL, 0, len(entries))
	for _, entry := range entries {
		acls = append(acls, entryToACL(entry))
	}
	sort.Slice(acls, func(i, j int) bool { return acls[i].Group < acls[j].Group })
	return acls, nil
}

// Save writes the ACL state. groupOfNames requires at least one member, so
// an ACL whose member set went empty is deleted instead of written.
func (m *ACLManager) Save(ctx context.Context, acl *ACL) error {
	if len(acl.Members) == 0 {
		return m.Delete(ctx, acl.Group)
	}

	if err := saveEntry(ctx, m.client, m.DN(acl.Group), m.attributes(acl)); err != nil {
		return err
	}
	m.log.Info().Str("group", acl.Group).Int("members", len(acl.Members)).Msg("saved acl")
	return nil
}

// Delete removes the ACL entry. A missing entry is not an error; deletes of
// derived entries must stay idempotent under retry.
func (m *ACLManager) Delete(ctx context.Context, group string) error {
	err := m.client.Delete(ctx, m.DN(group))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil
		}
		return err
	}
	m.log.Info().Str("group", group).Msg("deleted acl")
	return nil
}

func (m *ACLManager) attributes(acl *ACL) map[string][]string {
	return map[string][]string{
		"objectClass": {"groupOfNames"},
		"cn":          {acl.Group},
		"member":      acl.Members,
	}
}

func entryToACL(entry *ldap.Entry) *ACL {
	members := append([]string(nil), attrValues(entry, "member")...)
	return &ACL{
		Group:   attrValue(entry, "cn"),
		Members: members,
	}
}
