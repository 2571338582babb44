// Package pii derives the privacy-preserving key a delivery is mirrored under.
// Recipient fields are normalised and hashed with a keyed BLAKE2b so the ledger
// never sees names, phones or emails and the digest cannot be brute-forced
// without the server secret.
package pii

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"

	"property-delivery-api-server/internal/fault"
)

// Recipient is the personal data hashed for a delivery.
type Recipient struct {
	Name  string
	Phone string
	Email string
}

type Hasher struct {
	key []byte
}

// NewHasher returns a hasher keyed with secret. BLAKE2b accepts keys of at most
// 64 bytes; longer secrets are compressed first.
func NewHasher(secret string) *Hasher {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Hasher{key: key}
}

// Hash returns the hex digest of r. Equivalent recipients written with different
// case, spacing or phone punctuation hash the same.
func (h *Hasher) Hash(r Recipient) (string, error) {
	if strings.TrimSpace(r.Name) == "" {
		return "", fault.ErrRecipientRequired
	}
	mac, err := blake2b.New256(h.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrPIIHash, err)
	}
	for _, field := range []string{normalizeName(r.Name), normalizePhone(r.Phone), normalizeEmail(r.Email)} {
		mac.Write([]byte(field))
		mac.Write([]byte{0})
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizePhone keeps digits and a leading plus.
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
