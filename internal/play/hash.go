package play

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher anonymizes client addresses for deduplication. The digest is
// deterministic (the same address always yields the same token) but salted
// with a process-wide secret so raw addresses cannot be recovered from
// public rainbow tables. Only the hash is ever persisted.
type Hasher struct {
	salt string
}

// NewHasher creates a Hasher with the given salt. The salt comes from
// configuration so tests can inject a known value.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// Hash returns the salted SHA-256 digest of addr as 64 lowercase hex characters.
func (h *Hasher) Hash(addr string) string {
	sum := sha256.Sum256([]byte(addr + h.salt))
	return hex.EncodeToString(sum[:])
}
