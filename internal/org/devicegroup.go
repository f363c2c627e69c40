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

// DeviceGroup is the derived set of device DNs owned by the members of one
// posix group, bound to that group through its DN. Unlike ACLs a device
// group legitimately persists with zero members (a group whose members own
// no devices is still provisioned).
type DeviceGroup struct {
	Name    string
	GroupDN string
	Members []string // device DNs; resync writes them sorted
}

// DeviceGroupManager is the repository for derived device groups.
type DeviceGroupManager struct {
	client directory.Client
	cfg    *config.Config
	log    zerolog.Logger
}

func NewDeviceGroupManager(client directory.Client, cfg *config.Config, log zerolog.Logger) *DeviceGroupManager {
	return &DeviceGroupManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("manager", "devicegroup").Logger(),
	}
}

// DN returns the entry DN for a device group name.
func (m *DeviceGroupManager) DN(name string) string {
	return fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(name), m.cfg.DeviceGroupsDN)
}

// Get fetches one device group by name.
func (m *DeviceGroupManager) Get(ctx context.Context, name string) (*DeviceGroup, error) {
	entry, err := getEntry(ctx, m.client, m.DN(name))
	if err != nil {
		return nil, err
	}
	return entryToDeviceGroup(entry), nil
}

// List returns every device group, sorted by name. Device groups may share
// their subtree with plain devices, so the filter keys on seeAlso.
func (m *DeviceGroupManager) List(ctx context.Context) ([]*DeviceGroup, error) {
	return m.search(ctx, "(&(objectClass=groupOfNames)(seeAlso=*))")
}

// ForGroupDN returns the device groups bound to a posix group's DN, sorted
// by name.
func (m *DeviceGroupManager) ForGroupDN(ctx context.Context, groupDN string) ([]*DeviceGroup, error) {
	filter := fmt.Sprintf("(&(objectClass=groupOfNames)(seeAlso=%s))", ldap.EscapeFilter(groupDN))
	return m.search(ctx, filter)
}

func (m *DeviceGroupManager) search(ctx context.Context, filter string) ([]*DeviceGroup, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.DeviceGroupsDN, filter)
	if err != nil {
		return nil, err
	}
	groups := make([]*DeviceGroup, 0, len(entries))
	for _, entry := range entries {
		groups = append(groups, entryToDeviceGroup(entry))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// Save writes the full device group state. Empty member sets are written as
// an absent member attribute; the entry itself stays.
func (m *DeviceGroupManager) Save(ctx context.Context, group *DeviceGroup) error {
	if group.Name == "" {
		return directory.Validation("save_devicegroup", "device group name must not be empty")
	}
	if group.GroupDN == "" {
		return directory.Validation("save_devicegroup", "device group must reference a group DN")
	}

	if err := saveEntry(ctx, m.client, m.DN(group.Name), m.attributes(group)); err != nil {
		return err
	}
	m.log.Info().Str("devicegroup", group.Name).Int("members", len(group.Members)).Msg("saved device group")
	return nil
}

// Delete removes a device group entry.
func (m *DeviceGroupManager) Delete(ctx context.Context, name string) error {
	if err := m.client.Delete(ctx, m.DN(name)); err != nil {
		return err
	}
	m.log.Info().Str("devicegroup", name).Msg("deleted device group")
	return nil
}

func (m *DeviceGroupManager) attributes(group *DeviceGroup) map[string][]string {
	return map[string][]string{
		"objectClass": {"groupOfNames"},
		"cn":          {group.Name},
		"seeAlso":     {group.GroupDN},
		"member":      group.Members,
	}
}

func entryToDeviceGroup(entry *ldap.Entry) *DeviceGroup {
	members := append([]string(nil), attrValues(entry, "member")...)
	return &DeviceGroup{
		Name:    attrValue(entry, "cn"),
		GroupDN: attrValue(entry, "seeAlso"),
		Members: members,
	}
}
