package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Category classifies directory errors into the handful of cases callers
// branch on.
type Category string

const (
	CategoryNotFound      Category = "not_found"
	CategoryAlreadyExists Category = "already_exists"
	CategoryReference     Category = "reference"
	CategoryValidation    Category = "validation"
	CategoryUnavailable   Category = "unavailable"
	CategoryUnknown       Category = "unknown"
)

// Sentinel errors for use with errors.Is.
var (
	ErrNotFound      = errors.New("entry not found")
	ErrAlreadyExists = errors.New("entry already exists")
	ErrReference     = errors.New("referenced entry does not exist")
	ErrValidation    = errors.New("validation failed")
	ErrUnavailable   = errors.New("directory unavailable")
)

// Error provides structured error information for directory operations.
type Error struct {
	Op        string   // Operation that failed
	DN        string   // DN involved, if any
	Category  Category // Error category
	Code      uint16   // LDAP result code, if the cause was an LDAP error
	Message   string   // Human-readable message
	Retryable bool     // Whether retrying the whole operation is safe
	Cause     error    // Underlying error
}

func (e *Error) Error() string {
	var parts []string
	if e.Code > 0 {
		parts = append(parts, fmt.Sprintf("directory %s failed (code %d)", e.Op, e.Code))
	} else {
		parts = append(parts, fmt.Sprintf("directory %s failed", e.Op))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("dn %s", e.DN))
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is maps categories onto the package sentinels so callers can use errors.Is
// without reaching into the struct.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Category == CategoryNotFound
	case ErrAlreadyExists:
		return e.Category == CategoryAlreadyExists
	case ErrReference:
		return e.Category == CategoryReference
	case ErrValidation:
		return e.Category == CategoryValidation
	case ErrUnavailable:
		return e.Category == CategoryUnavailable
	}
	return false
}

func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NotFound builds a not-found error for dn.
func NotFound(op, dn string) *Error {
	return &Error{Op: op, DN: dn, Category: CategoryNotFound, Message: "no such entry"}
}

// AlreadyExists builds a uniqueness-violation error for dn.
func AlreadyExists(op, dn string) *Error {
	return &Error{Op: op, DN: dn, Category: CategoryAlreadyExists, Message: "entry already exists"}
}

// Reference builds an error for an operation depending on a missing entity.
func Reference(op, dn, message string) *Error {
	return &Error{Op: op, DN: dn, Category: CategoryReference, Message: message}
}

// Validation builds an error for input rejected before any write.
func Validation(op, message string) *Error {
	return &Error{Op: op, Category: CategoryValidation, Message: message}
}

// Unavailable builds a retryable transient-failure error.
func Unavailable(op string, cause error) *Error {
	return &Error{Op: op, Category: CategoryUnavailable, Message: "transient failure", Retryable: true, Cause: cause}
}

// WrapError wraps err with operation context, categorizing go-ldap result
// codes. A nil err returns nil; an already-wrapped *Error passes through with
// the operation filled in if missing.
func WrapError(op, dn string, err error) error {
	if err == nil {
		return nil
	}

	var dirErr *Error
	if errors.As(err, &dirErr) {
		if dirErr.Op == "" {
			dirErr.Op = op
		}
		return dirErr
	}

	wrapped := &Error{Op: op, DN: dn, Cause: err, Message: err.Error()}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		wrapped.Code = ldapErr.ResultCode
		wrapped.Category = categorizeCode(ldapErr.ResultCode)
		wrapped.Retryable = isCodeRetryable(ldapErr.ResultCode)
	} else {
		wrapped.Category = categorizeGeneric(err)
		wrapped.Retryable = wrapped.Category == CategoryUnavailable
	}

	return wrapped
}

// categorizeCode maps an LDAP result code onto an error category.
func categorizeCode(code uint16) Category {
	switch code {
	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute,
		ldap.LDAPResultUndefinedAttributeType:
		return CategoryNotFound

	case ldap.LDAPResultEntryAlreadyExists,
		ldap.LDAPResultAttributeOrValueExists:
		return CategoryAlreadyExists

	case ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNamingViolation,
		ldap.LDAPResultObjectClassViolation:
		return CategoryValidation

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError:
		return CategoryUnavailable

	default:
		return CategoryUnknown
	}
}

// isCodeRetryable reports whether an LDAP result code indicates a transient
// condition.
func isCodeRetryable(code uint16) bool {
	switch code {
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError:
		return true
	default:
		return false
	}
}

// categorizeGeneric categorizes non-LDAP errors by message.
func categorizeGeneric(err error) Category {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection",
		"network",
		"timeout",
		"broken pipe",
		"connection reset",
		"temporary failure",
	} {
		if strings.Contains(msg, pattern) {
			return CategoryUnavailable
		}
	}
	return CategoryUnknown
}

// IsRetryable reports whether the whole operation behind err may safely be
// re-invoked. All repository operations are idempotent at the entry level, so
// this gates retry policy only on the failure kind.
func IsRetryable(err error) bool {
	var dirErr *Error
	if errors.As(err, &dirErr) {
		return dirErr.Retryable
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return isCodeRetryable(ldapErr.ResultCode)
	}
	return false
}
