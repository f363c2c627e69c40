// Package config loads the directory settings from a config file and the
// GRANADILLA_* environment, applying struct defaults for everything left
// unset.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config holds every setting the directory, repositories and CLI consume.
type Config struct {
	// Directory connection
	URI          string        `mapstructure:"uri" default:"ldap://localhost:389"`
	BindDN       string        `mapstructure:"bind_dn"`
	BindPassword string        `mapstructure:"bind_password"`
	Timeout      time.Duration `mapstructure:"timeout" default:"30s"`
	UseTLS       bool          `mapstructure:"use_tls"`
	SkipTLS      bool          `mapstructure:"skip_tls"`

	// Kerberos bind (optional; takes precedence over simple bind when the
	// realm is set)
	KerberosRealm  string `mapstructure:"kerberos_realm"`
	KerberosKeytab string `mapstructure:"kerberos_keytab"`
	KerberosConfig string `mapstructure:"kerberos_config"`

	// Subtree layout. Empty specific DNs are derived from BaseDN.
	BaseDN         string `mapstructure:"base_dn" default:"dc=example,dc=org"`
	UsersDN        string `mapstructure:"users_dn"`
	GroupsDN       string `mapstructure:"groups_dn"`
	ACLsDN         string `mapstructure:"acls_dn"`
	ServicesDN     string `mapstructure:"services_dn"`
	ContactsDN     string `mapstructure:"contacts_dn"`
	DevicesDN      string `mapstructure:"devices_dn"`
	DeviceGroupsDN string `mapstructure:"devicegroups_dn"`

	// Feature toggles
	UseACLs  bool `mapstructure:"use_acls"`
	UseSamba bool `mapstructure:"use_samba"`

	// Account settings
	UsersGroup     string `mapstructure:"users_group" default:"all"`
	UsersHome      string `mapstructure:"users_home" default:"/home"`
	UsersShell     string `mapstructure:"users_shell" default:"/bin/bash"`
	MailDomain     string `mapstructure:"mail_domain" default:"example.org"`
	SambaSIDPrefix string `mapstructure:"samba_sid_prefix" default:"S-1-0-0"`

	// Password policy
	MinPasswordScore        int `mapstructure:"min_password_score" default:"3"`
	GeneratedPasswordLength int `mapstructure:"generated_password_length" default:"32"`
}

// Load reads configuration from the optional file at path (any format viper
// understands) and from GRANADILLA_* environment variables, then fills in
// defaults and derived subtree DNs.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("granadilla")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	cfg.deriveDNs()

	return cfg, nil
}

// Default returns the built-in configuration, used by tests.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	cfg.deriveDNs()
	return cfg
}

// deriveDNs fills the per-entity subtree DNs that were not configured
// explicitly. Device groups share the devices subtree unless overridden,
// matching the historical layout.
func (c *Config) deriveDNs() {
	ou := func(name string) string { return "ou=" + name + "," + c.BaseDN }

	if c.UsersDN == "" {
		c.UsersDN = ou("users")
	}
	if c.GroupsDN == "" {
		c.GroupsDN = ou("groups")
	}
	if c.ACLsDN == "" {
		c.ACLsDN = ou("groupacls")
	}
	if c.ServicesDN == "" {
		c.ServicesDN = ou("services")
	}
	if c.ContactsDN == "" {
		c.ContactsDN = ou("contacts")
	}
	if c.DevicesDN == "" {
		c.DevicesDN = ou("devices")
	}
	if c.DeviceGroupsDN == "" {
		c.DeviceGroupsDN = c.DevicesDN
	}
}

// SubtreeDNs lists every subtree that bootstrap must scaffold, in creation
// order. The ACL subtree is only included when the ACL feature is on.
func (c *Config) SubtreeDNs() []string {
	dns := []string{
		c.UsersDN,
		c.ContactsDN,
		c.DevicesDN,
		c.GroupsDN,
		c.ServicesDN,
	}
	if c.DeviceGroupsDN != c.DevicesDN {
		dns = append(dns, c.DeviceGroupsDN)
	}
	if c.UseACLs {
		dns = append(dns, c.ACLsDN)
	}
	return dns
}
