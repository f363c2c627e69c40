package directory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapErrorCategorizesResultCodes(t *testing.T) {
	tests := []struct {
		name      string
		code      uint16
		sentinel  error
		retryable bool
	}{
		{"no_such_object", ldap.LDAPResultNoSuchObject, ErrNotFound, false},
		{"already_exists", ldap.LDAPResultEntryAlreadyExists, ErrAlreadyExists, false},
		{"constraint", ldap.LDAPResultConstraintViolation, ErrValidation, false},
		{"object_class", ldap.LDAPResultObjectClassViolation, ErrValidation, false},
		{"busy", ldap.LDAPResultBusy, ErrUnavailable, true},
		{"server_down", ldap.LDAPResultServerDown, ErrUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapError("add", "uid=x,ou=users,dc=example,dc=org",
				ldap.NewError(tt.code, errors.New("ldap failure")))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.retryable, IsRetryable(err))

			var dirErr *Error
			require.ErrorAs(t, err, &dirErr)
			assert.Equal(t, "add", dirErr.Op)
			assert.Equal(t, tt.code, dirErr.Code)
		})
	}
}

func TestWrapErrorNil(t *testing.T) {
	assert.NoError(t, WrapError("search", "", nil))
}

func TestWrapErrorPassthrough(t *testing.T) {
	orig := NotFound("get", "cn=x")
	wrapped := WrapError("search", "", fmt.Errorf("outer: %w", orig))
	assert.ErrorIs(t, wrapped, ErrNotFound)
}

func TestWrapErrorGenericNetwork(t *testing.T) {
	err := WrapError("search", "", errors.New("connection reset by peer"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsRetryable(err))

	err = WrapError("search", "", errors.New("something odd"))
	assert.False(t, IsRetryable(err))
}

func TestErrorMessage(t *testing.T) {
	err := NotFound("get", "uid=jdoe,ou=users,dc=example,dc=org")
	assert.Contains(t, err.Error(), "get")
	assert.Contains(t, err.Error(), "uid=jdoe")
}
