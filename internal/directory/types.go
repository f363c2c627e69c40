package directory

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Config holds connection settings for the live directory client.
type Config struct {
	// Connection settings
	URI     string        // ldap://host:port or ldaps://host:port
	Timeout time.Duration // Per-operation timeout

	// Authentication settings
	BindDN       string // DN for simple bind
	BindPassword string // Password for simple bind

	// Kerberos (GSSAPI) settings. When Realm is set, GSSAPI bind is used
	// instead of simple bind.
	KerberosRealm  string // Kerberos realm
	KerberosKeytab string // Path to keytab file
	KerberosConfig string // Path to krb5.conf
	KerberosSPN    string // Service principal override

	// TLS settings
	TLSConfig *tls.Config
	UseTLS    bool // Upgrade plain connections with StartTLS
	SkipTLS   bool // Never negotiate TLS (development only)

	// Retry settings
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		UseTLS:         true,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// Client provides typed access to an LDAP-like store. Implementations must be
// safe for concurrent use; single-entry writes are atomic but there is no
// multi-entry transaction support.
type Client interface {
	// Bind authenticates the underlying connection.
	Bind(ctx context.Context, dn, password string) error

	// Search runs a scoped search under req.BaseDN.
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)

	// Add creates a new entry. Fails with an AlreadyExists error when the DN
	// is taken.
	Add(ctx context.Context, req *AddRequest) error

	// Modify applies attribute changes to an existing entry.
	Modify(ctx context.Context, req *ModifyRequest) error

	// Delete removes the entry at dn.
	Delete(ctx context.Context, dn string) error

	// Close releases the underlying connection(s).
	Close() error
}

// SearchRequest encapsulates search parameters.
type SearchRequest struct {
	BaseDN     string
	Scope      Scope
	Filter     string
	Attributes []string
	SizeLimit  int
}

// SearchResult contains the matched entries.
type SearchResult struct {
	Entries []*ldap.Entry
}

// AddRequest encapsulates entry creation parameters.
type AddRequest struct {
	DN         string
	Attributes map[string][]string
}

// ModifyRequest encapsulates attribute changes for one entry. Replace wins
// over Add for the same attribute; an attribute listed in Delete is removed
// entirely.
type ModifyRequest struct {
	DN      string
	Add     map[string][]string
	Replace map[string][]string
	Delete  []string
}

// Scope defines search scope.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOneLevel
	ScopeSubtree
)

func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "one"
	case ScopeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}
