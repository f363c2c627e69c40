package org

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
	"github.com/Polyconseil/granadilla/internal/password"
)

// Device is a piece of hardware owned by one user. Its login is derived from
// the owner and the device name ("jdoe_laptop") and its credential is always
// machine-generated.
type Device struct {
	Owner    string // owner's username
	Name     string // device name, unique per owner
	OwnerDN  string
	Password string // scheme-tagged credential
}

// Login returns the device's account name, "<owner>_<name>".
func (d *Device) Login() string {
	return d.Owner + "_" + d.Name
}

// DeviceManager is the repository for device accounts.
type DeviceManager struct {
	client directory.Client
	cfg    *config.Config
	log    zerolog.Logger
	notify DeviceNotifier
}

func NewDeviceManager(client directory.Client, cfg *config.Config, log zerolog.Logger) *DeviceManager {
	return &DeviceManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("manager", "device").Logger(),
	}
}

// DN returns the entry DN for a device login.
func (m *DeviceManager) DN(login string) string {
	return fmt.Sprintf("cn=%s,%s", ldap.EscapeDN(login), m.cfg.DevicesDN)
}

// Get fetches one device by owner username and device name.
func (m *DeviceManager) Get(ctx context.Context, owner, name string) (*Device, error) {
	entry, err := getEntry(ctx, m.client, m.DN(owner+"_"+name))
	if err != nil {
		return nil, err
	}
	return entryToDevice(entry), nil
}

// List returns every device, sorted by login.
func (m *DeviceManager) List(ctx context.Context) ([]*Device, error) {
	return m.search(ctx, "(objectClass=device)")
}

// OwnedBy returns the devices owned by username, sorted by login.
func (m *DeviceManager) OwnedBy(ctx context.Context, username string) ([]*Device, error) {
	filter := fmt.Sprintf("(&(objectClass=device)(ou=%s))", ldap.EscapeFilter(username))
	return m.search(ctx, filter)
}

func (m *DeviceManager) search(ctx context.Context, filter string) ([]*Device, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.DevicesDN, filter)
	if err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, len(entries))
	for _, entry := range entries {
		devices = append(devices, entryToDevice(entry))
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Login() < devices[j].Login() })
	return devices, nil
}

// Save writes the full device state and notifies the engine so device groups
// containing the owner pick the device up.
func (m *DeviceManager) Save(ctx context.Context, device *Device) error {
	if device.Owner == "" || device.Name == "" {
		return directory.Validation("save_device", "device owner and name must not be empty")
	}
	if err := saveEntry(ctx, m.client, m.DN(device.Login()), m.attributes(device)); err != nil {
		return err
	}
	m.log.Info().Str("device", device.Login()).Msg("saved device")

	if m.notify != nil {
		return m.notify.DeviceSaved(ctx, device)
	}
	return nil
}

// Delete removes a device and notifies the engine so it disappears from
// device groups.
func (m *DeviceManager) Delete(ctx context.Context, owner, name string) error {
	device, err := m.Get(ctx, owner, name)
	if err != nil {
		return err
	}
	if err := m.client.Delete(ctx, m.DN(device.Login())); err != nil {
		return err
	}
	m.log.Info().Str("device", device.Login()).Msg("deleted device")

	if m.notify != nil {
		return m.notify.DeviceDeleted(ctx, device)
	}
	return nil
}

// ResetPassword generates a fresh machine credential for the device, stores
// its hash and returns the plaintext exactly once.
func (m *DeviceManager) ResetPassword(device *Device) (string, error) {
	plaintext, err := password.Generate(m.cfg.GeneratedPasswordLength)
	if err != nil {
		return "", err
	}
	hashed, err := password.Hash(plaintext)
	if err != nil {
		return "", err
	}
	device.Password = hashed
	return plaintext, nil
}

func (m *DeviceManager) attributes(device *Device) map[string][]string {
	return map[string][]string{
		"objectClass":  {"device", "simpleSecurityObject"},
		"cn":           {device.Login()},
		"owner":        single(device.OwnerDN),
		"ou":           {device.Owner},
		"description":  single(device.Name),
		"userPassword": single(device.Password),
	}
}

func entryToDevice(entry *ldap.Entry) *Device {
	return &Device{
		Owner:    attrValue(entry, "ou"),
		Name:     attrValue(entry, "description"),
		OwnerDN:  attrValue(entry, "owner"),
		Password: attrValue(entry, "userPassword"),
	}
}
