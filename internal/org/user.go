package org

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/Polyconseil/granadilla/internal/config"
	"github.com/Polyconseil/granadilla/internal/directory"
	"github.com/Polyconseil/granadilla/internal/password"
)

// minUIDNumber is the floor for assigned posix uid and gid numbers; anything
// below is reserved for system accounts.
const minUIDNumber = 10000

// User is a person with a posix account.
type User struct {
	Username  string
	UID       int
	GID       int
	FirstName string
	LastName  string
	FullName  string
	Email     string
	Gecos     string
	Home      string
	Shell     string
	Phone     string
	Mobile    string

	// Password holds the scheme-tagged credential ({SSHA}...), never a
	// plaintext.
	Password string

	SambaSID        string
	SambaNTPassword string
	SambaPwdLastSet string
}

// UserManager is the repository for person accounts under the users subtree.
type UserManager struct {
	client directory.Client
	cfg    *config.Config
	log    zerolog.Logger
	groups *GroupManager
}

func NewUserManager(client directory.Client, cfg *config.Config, log zerolog.Logger) *UserManager {
	return &UserManager{
		client: client,
		cfg:    cfg,
		log:    log.With().Str("manager", "user").Logger(),
	}
}

// DN returns the entry DN for a username.
func (m *UserManager) DN(username string) string {
	return fmt.Sprintf("uid=%s,%s", ldap.EscapeDN(username), m.cfg.UsersDN)
}

// Get fetches one user by username.
func (m *UserManager) Get(ctx context.Context, username string) (*User, error) {
	entry, err := getEntry(ctx, m.client, m.DN(username))
	if err != nil {
		return nil, err
	}
	return entryToUser(entry), nil
}

// List returns every user, sorted by username.
func (m *UserManager) List(ctx context.Context) ([]*User, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.UsersDN, "(objectClass=posixAccount)")
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(entries))
	for _, entry := range entries {
		users = append(users, entryToUser(entry))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// Save writes the full user state, creating the entry when absent.
func (m *UserManager) Save(ctx context.Context, user *User) error {
	if user.Username == "" {
		return directory.Validation("save_user", "username must not be empty")
	}
	if err := saveEntry(ctx, m.client, m.DN(user.Username), m.attributes(user)); err != nil {
		return err
	}
	m.log.Info().Str("user", user.Username).Msg("saved user")
	return nil
}

// Delete removes the bare user entry. Membership and ACL cleanup is the
// engine's job; use Engine.DeleteUser unless you know the user is orphaned.
func (m *UserManager) Delete(ctx context.Context, username string) error {
	if err := m.client.Delete(ctx, m.DN(username)); err != nil {
		return err
	}
	m.log.Info().Str("user", username).Msg("deleted user")
	return nil
}

// NextUID returns the next free posix uid number: one past the highest in
// use, with a floor of 10000.
func (m *UserManager) NextUID(ctx context.Context) (int, error) {
	entries, err := listEntries(ctx, m.client, m.cfg.UsersDN, "(objectClass=posixAccount)")
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

// ApplyDefaults fills the derived and policy-driven fields of a new user:
// full name, gecos, email address, home directory, login shell and the
// default group's gid. Explicitly set fields are left alone.
func (m *UserManager) ApplyDefaults(ctx context.Context, user *User) error {
	if user.FullName == "" {
		user.FullName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	if user.Gecos == "" {
		user.Gecos = normalise(user.FullName)
	}
	if user.Email == "" && user.FirstName != "" && user.LastName != "" {
		local := strings.ToLower(normalise(user.FirstName) + "." + normalise(user.LastName))
		local = strings.ReplaceAll(local, " ", "-")
		user.Email = local + "@" + m.cfg.MailDomain
	}
	if user.Home == "" {
		user.Home = m.cfg.UsersHome + "/" + user.Username
	}
	if user.Shell == "" {
		user.Shell = m.cfg.UsersShell
	}
	if user.GID == 0 {
		group, err := m.groups.Get(ctx, m.cfg.UsersGroup)
		if err != nil {
			return fmt.Errorf("resolving default group %q: %w", m.cfg.UsersGroup, err)
		}
		user.GID = group.GID
	}
	return nil
}

// SetPassword validates the plaintext against the strength policy and stores
// the derived credentials on the user. The user's own identifiers are
// blacklisted as password material.
func (m *UserManager) SetPassword(user *User, plaintext string) error {
	blacklist := []string{user.Username, user.FirstName, user.LastName, user.FullName}
	if err := password.Validate(plaintext, blacklist, m.cfg.MinPasswordScore); err != nil {
		return err
	}
	return m.setPasswordUnchecked(user, plaintext)
}

func (m *UserManager) setPasswordUnchecked(user *User, plaintext string) error {
	hashed, err := password.Hash(plaintext)
	if err != nil {
		return err
	}
	user.Password = hashed

	if m.cfg.UseSamba {
		user.SambaNTPassword = password.NTHash(plaintext)
		user.SambaSID = password.SambaSID(m.cfg.SambaSIDPrefix, user.UID)
		user.SambaPwdLastSet = strconv.FormatInt(time.Now().Unix(), 10)
	}
	return nil
}

// CheckPassword verifies a plaintext against the stored credential.
func (m *UserManager) CheckPassword(user *User, plaintext string) bool {
	return password.Verify(plaintext, user.Password)
}

// userModifiable maps the attribute names an operator may edit in place to
// their struct fields.
var userModifiable = map[string]func(*User, string){
	"givenName":       func(u *User, v string) { u.FirstName = v },
	"sn":              func(u *User, v string) { u.LastName = v },
	"cn":              func(u *User, v string) { u.FullName = v },
	"gecos":           func(u *User, v string) { u.Gecos = v },
	"mail":            func(u *User, v string) { u.Email = v },
	"telephoneNumber": func(u *User, v string) { u.Phone = v },
	"mobile":          func(u *User, v string) { u.Mobile = v },
	"homeDirectory":   func(u *User, v string) { u.Home = v },
	"loginShell":      func(u *User, v string) { u.Shell = v },
}

// ModifiableAttributes lists the attribute names accepted by
// ModifyAttribute, sorted.
func (m *UserManager) ModifiableAttributes() []string {
	names := make([]string, 0, len(userModifiable))
	for name := range userModifiable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModifyAttribute updates one allow-listed attribute of an existing user.
func (m *UserManager) ModifyAttribute(ctx context.Context, username, attribute, value string) error {
	var set func(*User, string)
	for name, fn := range userModifiable {
		if strings.EqualFold(name, attribute) {
			set = fn
			break
		}
	}
	if set == nil {
		return directory.Validation("modify_user",
			fmt.Sprintf("attribute %q is not modifiable (allowed: %s)",
				attribute, strings.Join(m.ModifiableAttributes(), ", ")))
	}

	user, err := m.Get(ctx, username)
	if err != nil {
		return err
	}
	set(user, value)
	return m.Save(ctx, user)
}

func (m *UserManager) attributes(user *User) map[string][]string {
	classes := []string{"inetOrgPerson", "posixAccount", "shadowAccount"}
	if m.cfg.UseSamba {
		classes = append(classes, "sambaSamAccount")
	}

	attrs := map[string][]string{
		"objectClass":     classes,
		"uid":             {user.Username},
		"uidNumber":       {strconv.Itoa(user.UID)},
		"gidNumber":       {strconv.Itoa(user.GID)},
		"givenName":       single(user.FirstName),
		"sn":              single(user.LastName),
		"cn":              single(user.FullName),
		"gecos":           single(user.Gecos),
		"mail":            single(user.Email),
		"homeDirectory":   single(user.Home),
		"loginShell":      single(user.Shell),
		"telephoneNumber": single(user.Phone),
		"mobile":          single(user.Mobile),
		"userPassword":    single(user.Password),
	}
	if m.cfg.UseSamba {
		attrs["sambaSID"] = single(user.SambaSID)
		attrs["sambaNTPassword"] = single(user.SambaNTPassword)
		attrs["sambaPwdLastSet"] = single(user.SambaPwdLastSet)
	}
	return attrs
}

func entryToUser(entry *ldap.Entry) *User {
	return &User{
		Username:        attrValue(entry, "uid"),
		UID:             attrInt(entry, "uidNumber"),
		GID:             attrInt(entry, "gidNumber"),
		FirstName:       attrValue(entry, "givenName"),
		LastName:        attrValue(entry, "sn"),
		FullName:        attrValue(entry, "cn"),
		Gecos:           attrValue(entry, "gecos"),
		Email:           attrValue(entry, "mail"),
		Home:            attrValue(entry, "homeDirectory"),
		Shell:           attrValue(entry, "loginShell"),
		Phone:           attrValue(entry, "telephoneNumber"),
		Mobile:          attrValue(entry, "mobile"),
		Password:        attrValue(entry, "userPassword"),
		SambaSID:        attrValue(entry, "sambaSID"),
		SambaNTPassword: attrValue(entry, "sambaNTPassword"),
		SambaPwdLastSet: attrValue(entry, "sambaPwdLastSet"),
	}
}

// single wraps a scalar attribute value, dropping it entirely when empty.
func single(value string) []string {
	if value == "" {
		return nil
	}
	return []string{value}
}
