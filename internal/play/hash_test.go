package play

import (
	"regexp"
	"testing"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestHasher_Deterministic(t *testing.T) {
	h := NewHasher("test-salt")

	first := h.Hash("203.0.113.7")
	second := h.Hash("203.0.113.7")

	if first != second {
		t.Errorf("Expected identical hashes for the same address, got %q and %q", first, second)
	}
}

func TestHasher_Output64Hex(t *testing.T) {
	h := NewHasher("test-salt")

	inputs := []string{"203.0.113.7", "::1", "", "10.0.0.1", "2001:db8::42"}
	for _, in := range inputs {
		out := h.Hash(in)
		if !hexPattern.MatchString(out) {
			t.Errorf("Hash(%q) = %q, expected 64 lowercase hex characters", in, out)
		}
	}
}

func TestHasher_DistinctInputs(t *testing.T) {
	h := NewHasher("test-salt")

	if h.Hash("203.0.113.7") == h.Hash("203.0.113.8") {
		t.Error("Expected different hashes for different addresses")
	}
}

func TestHasher_SaltChangesDigest(t *testing.T) {
	a := NewHasher("salt-a")
	b := NewHasher("salt-b")

	if a.Hash("203.0.113.7") == b.Hash("203.0.113.7") {
		t.Error("Expected different salts to produce different digests")
	}
}

func TestHasher_NeverEchoesAddress(t *testing.T) {
	h := NewHasher("test-salt")

	addr := "203.0.113.7"
	if out := h.Hash(addr); out == addr {
		t.Error("Hash output must not equal the raw address")
	}
}
