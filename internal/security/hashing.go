package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
	// dummy is compared against when no user matched, so unknown and known
	// emails take about the same time to reject.
	dummy []byte
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4–31.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	cost = max(bcrypt.MinCost, min(cost, bcrypt.MaxCost))
	h := &Hasher{Cost: cost}
	h.dummy, _ = bcrypt.GenerateFromPassword([]byte("taskflow-dummy-password"), cost)
	return h
}

// Hash produces a bcrypt hash of password suitable for storage.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches the stored hash.
func (h *Hasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummy burns one comparison against a fixed hash. Always false.
func (h *Hasher) VerifyDummy(password string) bool {
	if len(h.dummy) > 0 {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	}
	return false
}
