package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf16"
)

// keySalt is appended to a card identifier before hashing so that the
// persisted ledger does not reveal which cards exist.
const keySalt = "card-matching-secret-salt-2024"

// Hasher derives the obfuscated ledger key for a card identifier.
type Hasher func(id string) (string, error)

// SHA256Key is the default Hasher: hex SHA-256 of the salted identifier.
func SHA256Key(id string) (string, error) {
	sum := sha256.Sum256([]byte(id + keySalt))
	return hex.EncodeToString(sum[:]), nil
}

// FallbackKey is the deterministic key used when the Hasher fails. It is the
// classic 32-bit string hash over UTF-16 code units (h = h*31 + c with
// wrap-around), made non-negative and zero-padded to 16 hex digits.
func FallbackKey(id string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(id + keySalt)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("%016x", v)
}
