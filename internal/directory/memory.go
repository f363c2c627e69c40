package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// Memory is an in-memory Client keyed by normalized DN. It backs the test
// suite and local development, mirroring the subset of LDAP semantics the
// repositories rely on: base/one-level/subtree scopes, equality and presence
// filters, and and/or conjunctions.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	writes  int64
}

type memEntry struct {
	dn    string // original casing
	attrs map[string][]string
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memEntry)}
}

// Bind always succeeds; the in-memory store has no credential database of its
// own beyond entry attributes.
func (m *Memory) Bind(_ context.Context, _, _ string) error {
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Writes returns the number of mutating operations applied so far. Tests use
// it to assert resync idempotence (a convergent pass performs zero writes).
func (m *Memory) Writes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Add creates a new entry.
func (m *Memory) Add(_ context.Context, req *AddRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeDN(req.DN)
	if _, ok := m.entries[key]; ok {
		return AlreadyExists("add", req.DN)
	}

	attrs := make(map[string][]string, len(req.Attributes))
	for name, values := range req.Attributes {
		if len(values) == 0 {
			continue
		}
		attrs[strings.ToLower(name)] = append([]string(nil), values...)
	}
	m.entries[key] = &memEntry{dn: req.DN, attrs: attrs}
	m.writes++
	return nil
}

// Modify applies attribute changes to an existing entry.
func (m *Memory) Modify(_ context.Context, req *ModifyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[normalizeDN(req.DN)]
	if !ok {
		return NotFound("modify", req.DN)
	}

	for name, values := range req.Add {
		key := strings.ToLower(name)
		entry.attrs[key] = append(entry.attrs[key], values...)
	}
	for name, values := range req.Replace {
		entry.attrs[strings.ToLower(name)] = append([]string(nil), values...)
	}
	for _, name := range req.Delete {
		delete(entry.attrs, strings.ToLower(name))
	}
	m.writes++
	return nil
}

// Delete removes the entry at dn.
func (m *Memory) Delete(_ context.Context, dn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeDN(dn)
	if _, ok := m.entries[key]; !ok {
		return NotFound("delete", dn)
	}
	delete(m.entries, key)
	m.writes++
	return nil
}

// Search runs a scoped search under req.BaseDN.
func (m *Memory) Search(_ context.Context, req *SearchRequest) (*SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filter, err := parseFilter(searchFilter(req.Filter))
	if err != nil {
		return nil, Validation("search", err.Error())
	}

	base := normalizeDN(req.BaseDN)

	// A base-scope search against a missing DN is how repositories probe for
	// existence; report it as the LDAP server would.
	if req.Scope == ScopeBase {
		if _, ok := m.entries[base]; !ok {
			return nil, NotFound("search", req.BaseDN)
		}
	}

	var keys []string
	for key := range m.entries {
		if inScope(key, base, req.Scope) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	result := &SearchResult{}
	for _, key := range keys {
		entry := m.entries[key]
		if !filter.matches(entry) {
			continue
		}
		result.Entries = append(result.Entries, entryToLDAP(entry, req.Attributes))
		if req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit {
			break
		}
	}
	return result, nil
}

func inScope(key, base string, scope Scope) bool {
	switch scope {
	case ScopeBase:
		return key == base
	case ScopeOneLevel:
		return key != base && parentDN(key) == base
	default:
		return key == base || strings.HasSuffix(key, ","+base)
	}
}

func parentDN(dn string) string {
	parts := splitDN(dn)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], ",")
}

func splitDN(dn string) []string {
	// Good enough for the DNs this system constructs: commas inside values
	// are escaped with a backslash by the builders.
	var parts []string
	var current strings.Builder
	escaped := false
	for _, r := range dn {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			current.WriteRune(r)
			escaped = true
		case r == ',':
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	parts = append(parts, strings.TrimSpace(current.String()))
	return parts
}

func normalizeDN(dn string) string {
	return strings.ToLower(strings.Join(splitDN(dn), ","))
}

// entryToLDAP converts an internal entry to the go-ldap representation,
// restricting to the requested attributes when given.
func entryToLDAP(entry *memEntry, attributes []string) *ldap.Entry {
	wanted := make(map[string]bool, len(attributes))
	for _, attr := range attributes {
		wanted[strings.ToLower(attr)] = true
	}

	result := &ldap.Entry{DN: entry.dn}
	names := make([]string, 0, len(entry.attrs))
	for name := range entry.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		result.Attributes = append(result.Attributes, &ldap.EntryAttribute{
			Name:   name,
			Values: append([]string(nil), entry.attrs[name]...),
		})
	}
	return result
}

// --- filters ---

type filterNode interface {
	matches(*memEntry) bool
}

type andNode struct{ children []filterNode }

func (n *andNode) matches(e *memEntry) bool {
	for _, child := range n.children {
		if !child.matches(e) {
			return false
		}
	}
	return true
}

type orNode struct{ children []filterNode }

func (n *orNode) matches(e *memEntry) bool {
	for _, child := range n.children {
		if child.matches(e) {
			return true
		}
	}
	return false
}

type equalityNode struct {
	attr  string
	value string // empty means presence match
}

func (n *equalityNode) matches(e *memEntry) bool {
	values, ok := e.attrs[n.attr]
	if !ok || len(values) == 0 {
		return false
	}
	if n.value == "" {
		return true
	}
	for _, v := range values {
		if strings.EqualFold(v, n.value) {
			return true
		}
	}
	return false
}

// parseFilter parses the filter subset the repositories emit: equality,
// presence, and nested and/or conjunctions.
func parseFilter(filter string) (filterNode, error) {
	node, rest, err := parseFilterNode(filter)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rest) != "" {
		return nil, Validation("filter", "trailing data after filter: "+rest)
	}
	return node, nil
}

func parseFilterNode(s string) (filterNode, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		return nil, "", Validation("filter", "expected '(' in filter")
	}
	s = s[1:]

	switch {
	case strings.HasPrefix(s, "&"), strings.HasPrefix(s, "|"):
		op := s[0]
		s = s[1:]
		var children []filterNode
		for strings.HasPrefix(strings.TrimSpace(s), "(") {
			child, rest, err := parseFilterNode(s)
			if err != nil {
				return nil, "", err
			}
			children = append(children, child)
			s = rest
		}
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, ")") {
			return nil, "", Validation("filter", "unterminated composite filter")
		}
		if op == '&' {
			return &andNode{children: children}, s[1:], nil
		}
		return &orNode{children: children}, s[1:], nil

	default:
		end := strings.IndexByte(s, ')')
		if end < 0 {
			return nil, "", Validation("filter", "unterminated filter term")
		}
		term := s[:end]
		eq := strings.IndexByte(term, '=')
		if eq < 0 {
			return nil, "", Validation("filter", "unsupported filter term: "+term)
		}
		attr := strings.ToLower(strings.TrimSpace(term[:eq]))
		value := unescapeFilterValue(term[eq+1:])
		if value == "*" {
			value = ""
		}
		return &equalityNode{attr: attr, value: value}, s[end+1:], nil
	}
}

// unescapeFilterValue reverses go-ldap's EscapeFilter hex encoding.
func unescapeFilterValue(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+2 < len(s) {
			if hi, ok1 := hexVal(s[i+1]); ok1 {
				if lo, ok2 := hexVal(s[i+2]); ok2 {
					out.WriteByte(hi<<4 | lo)
					i += 2
					continue
				}
			}
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

func hexVal(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
