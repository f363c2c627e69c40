package directory

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// gssapiBind performs a GSSAPI (Kerberos) bind on conn using the configured
// credentials. Credential priority: explicit keytab, default credential
// cache, password.
func gssapiBind(conn *ldap.Conn, cfg *Config) error {
	if err := prepareKerberosConfig(cfg); err != nil {
		return Validation("gssapi_bind", err.Error())
	}

	client, err := newGSSAPIClient(cfg)
	if err != nil {
		return WrapError("gssapi_bind", "", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	spn, err := servicePrincipal(cfg)
	if err != nil {
		return Validation("gssapi_bind", err.Error())
	}

	if err := conn.GSSAPIBind(client, spn, ""); err != nil {
		return WrapError("gssapi_bind", "", err)
	}
	return nil
}

// newGSSAPIClient builds a gokrb5-backed GSSAPI client from the configured
// credential source.
func newGSSAPIClient(cfg *Config) (ldap.GSSAPIClient, error) {
	krb5conf := cfg.KerberosConfig
	if krb5conf == "" {
		krb5conf = "/etc/krb5.conf"
	}
	if !fileExists(krb5conf) {
		return nil, fmt.Errorf("kerberos configuration not found at %s", krb5conf)
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return gssapi.NewClientWithKeytab(cfg.BindDN, cfg.KerberosRealm, cfg.KerberosKeytab, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if ccache := defaultCCachePath(); fileExists(ccache) {
		return gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if cfg.BindDN != "" && cfg.BindPassword != "" {
		return gssapi.NewClientWithPassword(cfg.BindDN, cfg.KerberosRealm, cfg.BindPassword, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable kerberos credentials: provide a keytab, a credential cache, or a password")
}

// servicePrincipal derives the LDAP service principal from the configured URI
// unless an explicit override is set.
func servicePrincipal(cfg *Config) (string, error) {
	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	parsed, err := url.Parse(cfg.URI)
	if err != nil {
		return "", fmt.Errorf("invalid directory URI: %w", err)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("no hostname in directory URI %s", cfg.URI)
	}
	return fmt.Sprintf("ldap/%s", hostname), nil
}

// prepareKerberosConfig validates the kerberos settings, extracting the realm
// from a user@REALM principal when needed.
func prepareKerberosConfig(cfg *Config) error {
	if cfg.KerberosRealm == "" && strings.Contains(cfg.BindDN, "@") {
		parts := strings.SplitN(cfg.BindDN, "@", 2)
		cfg.BindDN = parts[0]
		cfg.KerberosRealm = parts[1]
	}

	if cfg.KerberosRealm == "" {
		return fmt.Errorf("kerberos realm is required (set it explicitly or use a user@REALM principal)")
	}
	return nil
}

// defaultCCachePath returns the default credential cache location.
func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// fileExists checks that a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
