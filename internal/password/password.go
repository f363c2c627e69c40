// Package password implements the credential handling for directory
// accounts: one-way hashing with LDAP scheme tags, strength validation, and
// generation of machine credentials for devices and service accounts.
package password

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	schemeSSHA = "{SSHA}"
	schemeSHA  = "{SHA}"
	schemeMD5  = "{MD5}"

	sshaSaltLength = 8

	// GeneratedLength is the default length for system-generated device and
	// service credentials. Length dominates every other strength factor at
	// this size, so generated passwords skip the zxcvbn check.
	GeneratedLength = 32
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Hash derives a salted {SSHA} credential from a plaintext password.
func Hash(plaintext string) (string, error) {
	salt := make([]byte, sshaSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	digest := sha1.Sum(append([]byte(plaintext), salt...))
	return schemeSSHA + base64.StdEncoding.EncodeToString(append(digest[:], salt...)), nil
}

// Verify checks a plaintext password against a stored credential. The
// supported schemes cover what this directory has historically written:
// {SSHA} (current), {SHA} and {MD5} (legacy).
func Verify(plaintext, stored string) bool {
	switch {
	case strings.HasPrefix(stored, schemeSSHA):
		raw, err := base64.StdEncoding.DecodeString(stored[len(schemeSSHA):])
		if err != nil || len(raw) <= sha1.Size {
			return false
		}
		digest, salt := raw[:sha1.Size], raw[sha1.Size:]
		computed := sha1.Sum(append([]byte(plaintext), salt...))
		return subtle.ConstantTimeCompare(digest, computed[:]) == 1

	case strings.HasPrefix(stored, schemeSHA):
		digest := sha1.Sum([]byte(plaintext))
		expected := schemeSHA + base64.StdEncoding.EncodeToString(digest[:])
		return subtle.ConstantTimeCompare([]byte(stored), []byte(expected)) == 1

	case strings.HasPrefix(stored, schemeMD5):
		digest := md5.Sum([]byte(plaintext))
		expected := schemeMD5 + base64.StdEncoding.EncodeToString(digest[:])
		return subtle.ConstantTimeCompare([]byte(stored), []byte(expected)) == 1

	default:
		return false
	}
}

// Generate returns a random alphanumeric string of length n, suitable for
// device and service account credentials.
func Generate(n int) (string, error) {
	if n <= 0 {
		n = GeneratedLength
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out), nil
}
