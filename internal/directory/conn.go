package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

// Conn is the live go-ldap backed Client. It keeps a single authenticated
// connection, redialing on transient failures with exponential backoff.
// Callers must serialize concurrent membership edits to the same entry
// themselves; Conn only guarantees that individual requests do not interleave
// on the wire.
type Conn struct {
	config *Config
	log    zerolog.Logger

	mu   sync.Mutex
	conn *ldap.Conn
}

// Dial creates a Conn for the configured URI. The connection itself is
// established lazily on first use.
func Dial(config *Config, log zerolog.Logger) (*Conn, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.URI == "" {
		return nil, Validation("dial", "directory URI is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Conn{
		config: config,
		log:    log.With().Str("component", "directory").Logger(),
	}, nil
}

// Bind authenticates as dn on a dedicated connection and discards it. Used to
// verify credentials, not to change the identity of the shared connection.
func (c *Conn) Bind(ctx context.Context, dn, password string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return WrapError("bind", dn, err)
	}
	defer conn.Close()

	if err := conn.Bind(dn, password); err != nil {
		return WrapError("bind", dn, err)
	}
	return nil
}

// Search runs a scoped search.
func (c *Conn) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	var result *SearchResult
	err := c.withConn(ctx, "search", req.BaseDN, func(conn *ldap.Conn) error {
		ldapReq := ldap.NewSearchRequest(
			req.BaseDN,
			ldapScope(req.Scope),
			ldap.NeverDerefAliases,
			req.SizeLimit, 0, false,
			searchFilter(req.Filter),
			req.Attributes,
			nil,
		)
		res, err := conn.Search(ldapReq)
		if err != nil {
			return err
		}
		result = &SearchResult{Entries: res.Entries}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Add creates a new entry.
func (c *Conn) Add(ctx context.Context, req *AddRequest) error {
	return c.withConn(ctx, "add", req.DN, func(conn *ldap.Conn) error {
		ldapReq := ldap.NewAddRequest(req.DN, nil)
		for attr, values := range req.Attributes {
			if len(values) > 0 {
				ldapReq.Attribute(attr, values)
			}
		}
		return conn.Add(ldapReq)
	})
}

// Modify applies attribute changes to an existing entry.
func (c *Conn) Modify(ctx context.Context, req *ModifyRequest) error {
	return c.withConn(ctx, "modify", req.DN, func(conn *ldap.Conn) error {
		ldapReq := ldap.NewModifyRequest(req.DN, nil)
		for attr, values := range req.Add {
			ldapReq.Add(attr, values)
		}
		for attr, values := range req.Replace {
			ldapReq.Replace(attr, values)
		}
		for _, attr := range req.Delete {
			ldapReq.Delete(attr, nil)
		}
		return conn.Modify(ldapReq)
	})
}

// Delete removes the entry at dn.
func (c *Conn) Delete(ctx context.Context, dn string) error {
	return c.withConn(ctx, "delete", dn, func(conn *ldap.Conn) error {
		return conn.Del(ldap.NewDelRequest(dn, nil))
	})
}

// Close shuts down the shared connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// withConn runs fn against the shared connection, redialing and retrying when
// the failure is transient.
func (c *Conn) withConn(ctx context.Context, op, dn string, fn func(*ldap.Conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	backoff := c.config.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug().
				Str("operation", op).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying directory operation")
			select {
			case <-ctx.Done():
				return WrapError(op, dn, ctx.Err())
			case <-time.After(backoff):
			}
			if c.config.BackoffFactor > 1 {
				backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
			}
		}

		if c.conn == nil || c.conn.IsClosing() {
			conn, err := c.dialAndBind(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			c.conn = conn
		}

		err := fn(c.conn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return WrapError(op, dn, err)
		}

		// Transient failure: drop the connection and redial on the next
		// attempt.
		c.conn.Close()
		c.conn = nil
	}

	return WrapError(op, dn, lastErr)
}

// dial establishes a raw connection honoring the TLS settings.
func (c *Conn) dial(_ context.Context) (*ldap.Conn, error) {
	var conn *ldap.Conn
	var err error

	if strings.HasPrefix(c.config.URI, "ldaps://") {
		conn, err = ldap.DialURL(c.config.URI, ldap.DialWithTLSConfig(c.config.TLSConfig))
	} else {
		conn, err = ldap.DialURL(c.config.URI)
		if err == nil && c.config.UseTLS && !c.config.SkipTLS {
			err = conn.StartTLS(c.config.TLSConfig)
		}
	}
	if err != nil {
		return nil, Unavailable("dial", err)
	}

	conn.SetTimeout(c.config.Timeout)
	return conn, nil
}

// dialAndBind establishes a connection authenticated with the configured
// credentials.
func (c *Conn) dialAndBind(ctx context.Context) (*ldap.Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case c.config.KerberosRealm != "":
		err = gssapiBind(conn, c.config)
	case c.config.BindDN != "":
		err = conn.Bind(c.config.BindDN, c.config.BindPassword)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func ldapScope(scope Scope) int {
	switch scope {
	case ScopeBase:
		return ldap.ScopeBaseObject
	case ScopeOneLevel:
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}

func searchFilter(filter string) string {
	if filter == "" {
		return "(objectClass=*)"
	}
	return filter
}
