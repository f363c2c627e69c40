// Package org implements the organizational directory proper: typed
// repositories for every entity kind (users, groups, service accounts,
// external contacts, devices and their derived groups), the membership
// synchronization engine that keeps derived ACL and device-group entries
// consistent with the authoritative posixGroup data, and the bootstrap that
// scaffolds the subtree layout.
package org

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

// Directory bundles the repositories and the synchronization engine over one
// directory client. Saving a Group or Device through the repositories
// triggers the engine synchronously; there is no implicit global dispatch.
type Directory struct {
	Users        *UserManager
	Groups       *GroupManager
	ACLs         *ACLManager
	Services     *ServiceManager
	Contacts     *ContactManager
	Devices      *DeviceManager
	DeviceGroups *DeviceGroupManager
	OUs          *OUManager

	Sync *Engine

	cfg *config.Config
	log zerolog.Logger
}

// New wires the repositories and the engine together.
func New(client directory.Client, cfg *config.Config, log zerolog.Logger) *Directory {
	d := &Directory{
		Users:        NewUserManager(client, cfg, log),
		Groups:       NewGroupManager(client, cfg, log),
		ACLs:         NewACLManager(client, cfg, log),
		Services:     NewServiceManager(client, cfg, log),
		Contacts:     NewContactManager(client, cfg, log),
		Devices:      NewDeviceManager(client, cfg, log),
		DeviceGroups: NewDeviceGroupManager(client, cfg, log),
		OUs:          NewOUManager(client, cfg, log),
		cfg:          cfg,
		log:          log,
	}
	d.Users.groups = d.Groups
	d.Sync = NewEngine(d, cfg, log)

	// Repository saves notify the engine (explicit wiring instead of global
	// signal handlers).
	d.Groups.notify = d.Sync
	d.Devices.notify = d.Sync

	return d
}

// GroupNotifier receives group persistence events.
type GroupNotifier interface {
	GroupSaved(ctx context.Context, group *Group) error
}

// DeviceNotifier receives device persistence events.
type DeviceNotifier interface {
	DeviceSaved(ctx context.Context, device *Device) error
	DeviceDeleted(ctx context.Context, device *Device) error
}

// --- shared persistence helpers ---

// saveEntry persists a full entry state: it tries an add first and falls back
// to a whole-entry replace when the DN is already taken. Multi-valued
// attributes that became empty are deleted from the entry. This is the
// read-modify-write primitive every repository builds on; it is atomic per
// entry but deliberately not transactional across entries.
func saveEntry(ctx context.Context, client directory.Client, dn string, attributes map[string][]string) error {
	addReq := &directory.AddRequest{DN: dn, Attributes: make(map[string][]string, len(attributes))}
	for name, values := range attributes {
		if len(values) > 0 {
			addReq.Attributes[name] = values
		}
	}

	err := client.Add(ctx, addReq)
	if err == nil || !errors.Is(err, directory.ErrAlreadyExists) {
		return err
	}

	current, err := client.Search(ctx, &directory.SearchRequest{
		BaseDN: dn,
		Scope:  directory.ScopeBase,
	})
	if err != nil {
		return err
	}
	if len(current.Entries) == 0 {
		return directory.NotFound("save", dn)
	}

	modReq := &directory.ModifyRequest{DN: dn, Replace: make(map[string][]string)}
	for name, values := range attributes {
		if strings.EqualFold(name, "objectClass") {
			continue
		}
		if len(values) > 0 {
			modReq.Replace[name] = values
		} else if len(current.Entries[0].GetEqualFoldAttributeValues(name)) > 0 {
			modReq.Delete = append(modReq.Delete, name)
		}
	}
	return client.Modify(ctx, modReq)
}

// getEntry fetches the single entry at dn.
func getEntry(ctx context.Context, client directory.Client, dn string) (*ldap.Entry, error) {
	result, err := client.Search(ctx, &directory.SearchRequest{
		BaseDN: dn,
		Scope:  directory.ScopeBase,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Entries) == 0 {
		return nil, directory.NotFound("get", dn)
	}
	return result.Entries[0], nil
}

// listEntries searches one level below baseDN with the given filter.
func listEntries(ctx context.Context, client directory.Client, baseDN, filter string) ([]*ldap.Entry, error) {
	result, err := client.Search(ctx, &directory.SearchRequest{
		BaseDN: baseDN,
		Scope:  directory.ScopeOneLevel,
		Filter: filter,
	})
	if err != nil {
		// A missing subtree just means nothing has been created there yet.
		if errors.Is(err, directory.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return result.Entries, nil
}

// --- entry attribute helpers ---

func attrValue(entry *ldap.Entry, name string) string {
	return entry.GetEqualFoldAttributeValue(name)
}

func attrValues(entry *ldap.Entry, name string) []string {
	return entry.GetEqualFoldAttributeValues(name)
}

func attrInt(entry *ldap.Entry, name string) int {
	n, _ := strconv.Atoi(entry.GetEqualFoldAttributeValue(name))
	return n
}

// --- small utilities shared across managers ---

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func removeFold(values []string, value string) []string {
	out := values[:0]
	for _, v := range values {
		if !strings.EqualFold(v, value) {
			out = append(out, v)
		}
	}
	return out
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalise strips diacritics from a name so it can be used in ASCII-only
// attributes (gecos, derived email addresses).
func normalise(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// leafValue extracts the value of the first RDN of a DN, honoring backslash
// escapes ("cn=acme\, inc,ou=groups,..." -> "acme, inc").
func leafValue(dn string) string {
	_, rest, found := strings.Cut(dn, "=")
	if !found {
		return ""
	}

	var value strings.Builder
	escaped := false
	for _, r := range rest {
		switch {
		case escaped:
			value.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			return value.String()
		default:
			value.WriteRune(r)
		}
	}
	return value.String()
}
