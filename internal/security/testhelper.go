package security

import "time"

const (
	testIssuer     = "test-issuer"
	testAudience   = "test-audience"
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 24 * time.Hour
)

// NewTestTokenProvider returns a TokenProvider signing with a fresh ES256 key pair.
// Tokens only validate against the same provider. For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, pub, err := LoadKeyPair("", "", true)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, testIssuer, testAudience, testAccessTTL, testRefreshTTL), nil
}
