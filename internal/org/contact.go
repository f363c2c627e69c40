package org

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
)

// Contact is an external person without a posix account, keyed by email
// address. Contacts can appear in derived ACLs through external group
// membership but never in memberUid.
type Contact struct {
	Email     string
	FirstName string
	LastName  string
	FullName  string
}

// ContactManager is the repository for external contacts.
type ContactManager struct {
	client directory.Client
	cfg    *config.Config
	log    zerolog.Logger
}

func NewContactManager(client directory.Client, cfg *config.Config, log zerolog.Logger) *ContactManager {
	return &ContactManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("manager", "contact").Logger(),
	}
}

// DN returns the entry DN for a contact email.
func (m *ContactManager) DN(email string) string {
	return fmt.Sprintf("mail=%s,%s", ldap.EscapeDN(email), m.cfg.ContactsDN)
}

// Get fetches one contact by email.
func (m *ContactManager) Get(ctx context.Context, email string) (*Contact, error) {
	entry, err := getEntry(ctx, m.client, m.DN(email))
	if err != nil {
		return nil, err
	}
	return entryToContact(entry), nil
}

// List returns every contact, sorted by email.
func (m *ContactManager) List(ctx context.Context) ([]*Contact, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.ContactsDN, "(objectClass=inetOrgPerson)")
	if err != nil {
		return nil, err
	}
	contacts := make([]*Contact, 0, len(entries))
	for _, entry := range entries {
		contacts = append(contacts, entryToContact(entry))
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].Email < contacts[j].Email })
	return contacts, nil
}

// Save writes the full contact state, deriving the full name when unset.
func (m *ContactManager) Save(ctx context.Context, contact *Contact) error {
	if contact.Email == "" {
		return directory.Validation("save_contact", "contact email must not be empty")
	}
	if contact.FullName == "" {
		contact.FullName = strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	}
	if err := saveEntry(ctx, m.client, m.DN(contact.Email), m.attributes(contact)); err != nil {
		return err
	}
	m.log.Info().Str("contact", contact.Email).Msg("saved contact")
	return nil
}

// Delete removes the bare contact entry. ACL cleanup is the engine's job;
// use Engine.DeleteContact from operator flows.
func (m *ContactManager) Delete(ctx context.Context, email string) error {
	if err := m.client.Delete(ctx, m.DN(email)); err != nil {
		return err
	}
	m.log.Info().Str("contact", email).Msg("deleted contact")
	return nil
}

// contactModifiable excludes mail: the email address is the entry's key and
// cannot be edited in place.
var contactModifiable = []string{"givenName", "sn", "cn"}

// ModifyAttribute updates one allow-listed attribute of a contact.
func (m *ContactManager) ModifyAttribute(ctx context.Context, email, attribute, value string) error {
	if !containsFold(contactModifiable, attribute) {
		return directory.Validation("modify_contact",
			fmt.Sprintf("attribute %q is not modifiable (allowed: %s)",
				attribute, strings.Join(contactModifiable, ", ")))
	}

	contact, err := m.Get(ctx, email)
	if err != nil {
		return err
	}
	switch {
	case strings.EqualFold(attribute, "givenName"):
		contact.FirstName = value
	case strings.EqualFold(attribute, "sn"):
		contact.LastName = value
	case strings.EqualFold(attribute, "cn"):
		contact.FullName = value
	}
	return m.Save(ctx, contact)
}

func (m *ContactManager) attributes(contact *Contact) map[string][]string {
	return map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"mail":        {contact.Email},
		"givenName":   single(contact.FirstName),
		"sn":          single(contact.LastName),
		"cn":          single(contact.FullName),
	}
}

func entryToContact(entry *ldap.Entry) *Contact {
	return &Contact{
		Email:     attrValue(entry, "mail"),
		FirstName: attrValue(entry, "givenName"),
		LastName:  attrValue(entry, "sn"),
		FullName:  attrValue(entry, "cn"),
	}
}
