package org

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
	"github.com/Polyconseil/granadilla/internal/password"
)

const (
	serviceHome  = "/dev/null"
	serviceShell = "/bin/false"
)

// ServiceAccount is a non-person posix account used by applications to bind
// against the directory. It never gets a login shell or a home.
type ServiceAccount struct {
	Name        string
	UID         int
	GID         int
	Description string
	Password    string // scheme-tagged credential
}

// ServiceManager is the repository for service accounts.
type ServiceManager struct {
	client directory.Client
	cfg    *config.Config
	log    zerolog.Logger
}

func NewServiceManager(client directory.Client, cfg *config.Config, log zerolog.Logger) *ServiceManager {
	return &ServiceManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("manager", "service").Logger(),
	}
}

// DN returns the entry DN for a service account name.
func (m *ServiceManager) DN(name string) string {
	return fmt.Sprintf("uid=%s,%s", ldap.EscapeDN(name), m.cfg.ServicesDN)
}

// Get fetches one service account by name.
func (m *ServiceManager) Get(ctx context.Context, name string) (*ServiceAccount, error) {
	entry, err := getEntry(ctx, m.client, m.DN(name))
	if err != nil {
		return nil, err
	}
	return entryToService(entry), nil
}

// List returns every service account, sorted by name.
func (m *ServiceManager) List(ctx context.Context) ([]*ServiceAccount, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.ServicesDN, "(objectClass=posixAccount)")
	if err != nil {
		return nil, err
	}
	services := make([]*ServiceAccount, 0, len(entries))
	for _, entry := range entries {
		services = append(services, entryToService(entry))
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

// Save writes the full service account state.
func (m *ServiceManager) Save(ctx context.Context, svc *ServiceAccount) error {
	if svc.Name == "" {
		return directory.Validation("save_service", "service name must not be empty")
	}
	if err := saveEntry(ctx, m.client, m.DN(svc.Name), m.attributes(svc)); err != nil {
		return err
	}
	m.log.Info().Str("service", svc.Name).Msg("saved service account")
	return nil
}

// Delete removes a service account.
func (m *ServiceManager) Delete(ctx context.Context, name string) error {
	if err := m.client.Delete(ctx, m.DN(name)); err != nil {
		return err
	}
	m.log.Info().Str("service", name).Msg("deleted service account")
	return nil
}

// NextUID returns the next free uid number within the services subtree, with
// the same floor as person accounts.
func (m *ServiceManager) NextUID(ctx context.Context) (int, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.ServicesDN, "(objectClass=posixAccount)")
	if err != nil {
		return 0, err
	}
	next := minUIDNumber
	for _, entry := range entries {
		if uid := attrInt(entry, "uidNumber"); uid >= next {
			next = uid + 1
		}
	}
	return next, nil
}

// ResetPassword generates a fresh machine credential, stores its hash on the
// account and returns the plaintext exactly once so the operator can hand it
// to the service. Generated credentials are long enough to skip the strength
// check.
func (m *ServiceManager) ResetPassword(svc *ServiceAccount) (string, error) {
	plaintext, err := password.Generate(m.cfg.GeneratedPasswordLength)
	if err != nil {
		return "", err
	}
	hashed, err := password.Hash(plaintext)
	if err != nil {
		return "", err
	}
	svc.Password = hashed
	return plaintext, nil
}

var serviceModifiable = []string{"description"}

// ModifyAttribute updates one allow-listed attribute of a service account.
func (m *ServiceManager) ModifyAttribute(ctx context.Context, name, attribute, value string) error {
	if !containsFold(serviceModifiable, attribute) {
		return directory.Validation("modify_service",
			fmt.Sprintf("attribute %q is not modifiable (allowed: %s)",
				attribute, strings.Join(serviceModifiable, ", ")))
	}

	svc, err := m.Get(ctx, name)
	if err != nil {
		return err
	}
	svc.Description = value
	return m.Save(ctx, svc)
}

func (m *ServiceManager) attributes(svc *ServiceAccount) map[string][]string {
	return map[string][]string{
		"objectClass":   {"posixAccount", "shadowAccount", "account"},
		"uid":           {svc.Name},
		"cn":            {svc.Name},
		"uidNumber":     {strconv.Itoa(svc.UID)},
		"gidNumber":     {strconv.Itoa(svc.GID)},
		"homeDirectory": {serviceHome},
		"loginShell":    {serviceShell},
		"description":   single(svc.Description),
		"userPassword":  single(svc.Password),
	}
}

func entryToService(entry *ldap.Entry) *ServiceAccount {
	return &ServiceAccount{
		Name:        attrValue(entry, "uid"),
		UID:         attrInt(entry, "uidNumber"),
		GID:         attrInt(entry, "gidNumber"),
		Description: attrValue(entry, "description"),
		Password:    attrValue(entry, "userPassword"),
	}
}
