package security

import (
	"crypto/rand"
	"math/big"
)

// GenerateCode returns an n-digit numeric confirmation code using crypto/rand.
// Leading zeros are kept.
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	ten := big.NewInt(10)
	s := make([]byte, n)
	for i := range s {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(d.Int64())
	}
	return string(s), nil
}

// HashCode returns the stored form of a confirmation code.
func HashCode(code string) string { return HashSecret(code) }
