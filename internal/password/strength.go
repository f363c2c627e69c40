package password

import (
	"strings"

	"github.com/nbutton23/zxcvbn-go"

	"github.com/Polyconseil/granadilla/internal/directory"
)

// DefaultMinScore is the minimum acceptable zxcvbn score (0..4) unless
// configured otherwise.
const DefaultMinScore = 3

// Strength summarizes a strength estimate for a candidate password.
type Strength struct {
	Score     int    // 0 (trivial) .. 4 (strong)
	CrackTime string // human-readable bruteforce estimate
}

// CheckStrength estimates the strength of a candidate password. Entries in
// blacklist (username, first/last name, device name...) count as known inputs
// and drag the score down.
func CheckStrength(candidate string, blacklist []string) Strength {
	result := zxcvbn.PasswordStrength(candidate, blacklist)
	return Strength{
		Score:     result.Score,
		CrackTime: result.CrackTimeDisplay,
	}
}

// Validate rejects a candidate password that matches a blacklisted term
// outright or scores below minScore. It returns a validation error suitable
// for surfacing to the caller before any write happens.
func Validate(candidate string, blacklist []string, minScore int) error {
	for _, term := range blacklist {
		if term != "" && strings.EqualFold(candidate, term) {
			return directory.Validation("check_password", "password must not match account identifiers")
		}
	}

	check := CheckStrength(candidate, blacklist)
	if check.Score < minScore {
		return directory.Validation("check_password",
			"password is too weak (bruteforce: "+check.CrackTime+")")
	}
	return nil
}
