package password

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// NTHash computes the uppercase hex NT hash (MD4 over the UTF-16LE encoding
// of the password) stored in sambaNTPassword. LM hashes are obsolete and are
// never produced; sambaLMPassword stays empty.
func NTHash(plaintext string) string {
	encoded := utf16.Encode([]rune(plaintext))
	buf := make([]byte, 2*len(encoded))
	for i, u := range encoded {
		binary.LittleEndian.PutUint16(buf[2*i:], u)
	}

	h := md4.New()
	h.Write(buf)
	return strings.ToUpper(fmt.Sprintf("%x", h.Sum(nil)))
}

// SambaSID derives a user's samba SID from the configured domain prefix and
// posix uid, using the classic samba3 rid mapping.
func SambaSID(prefix string, uid int) string {
	return fmt.Sprintf("%s-%d", prefix, 2*uid+1000)
}
