package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	hashed, err := Hash("s3cret passphrase")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hashed, "{SSHA}"))
	assert.True(t, Verify("s3cret passphrase", hashed))
	assert.False(t, Verify("other", hashed))

	// Each hash gets its own salt.
	again, err := Hash("s3cret passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, hashed, again)
	assert.True(t, Verify("s3cret passphrase", again))
}

func TestVerifyLegacySchemes(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		plaintext string
	}{
		// printf secret | openssl dgst -sha1 -binary | base64
		{"sha", "{SHA}5en6G6MezRroT3XKqkdPOmY/BfQ=", "secret"},
		// printf secret | openssl dgst -md5 -binary | base64
		{"md5", "{MD5}Xr4ilOzQ4PCOq3aQ0qbuaQ==", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Verify(tt.plaintext, tt.stored))
			assert.False(t, Verify("wrong", tt.stored))
		})
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	assert.False(t, Verify("secret", "secret"))
	assert.False(t, Verify("secret", "{SSHA}not-base64!"))
	assert.False(t, Verify("secret", "{CRYPT}whatever"))
	assert.False(t, Verify("secret", ""))
}

func TestGenerate(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		out, err := Generate(GeneratedLength)
		require.NoError(t, err)
		require.Len(t, out, GeneratedLength)
		for _, r := range out {
			assert.Contains(t, alphanumeric, string(r))
		}
		assert.False(t, seen[out], "generated passwords must not repeat")
		seen[out] = true
	}
}

func TestGeneratedPasswordsPassStrengthCheck(t *testing.T) {
	out, err := Generate(GeneratedLength)
	require.NoError(t, err)
	check := CheckStrength(out, nil)
	assert.GreaterOrEqual(t, check.Score, DefaultMinScore)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate("password1", nil, DefaultMinScore))
	assert.Error(t, Validate("jdoe", []string{"jdoe"}, DefaultMinScore))
	assert.Error(t, Validate("JDOE", []string{"jdoe"}, DefaultMinScore), "blacklist match is case-insensitive")
	assert.NoError(t, Validate("plume ostrich gravel window", nil, DefaultMinScore))
}

func TestNTHash(t *testing.T) {
	// Well-known NT hash test vector.
	assert.Equal(t, "8846F7EAEE8FB117AD06BDD830B7586C", NTHash("password"))
	assert.Equal(t, "31D6CFE0D16AE931B73C59D7E0C089C0", NTHash(""))
}

func TestSambaSID(t *testing.T) {
	assert.Equal(t, "S-1-5-21-1234-21246", SambaSID("S-1-5-21-1234", 10123))
}
