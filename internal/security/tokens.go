package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims holds JWT claims for the access token. Subject is the user id.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	TokenType string `json:"typ"`
}

// RefreshClaims holds JWT claims for the refresh token. The jti makes every
// rotated token unique even when issued within the same second.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	TokenType string `json:"typ"`
}

// IssuedToken is a signed token together with its jti and expiry.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// RefreshTTL is the lifetime given to refresh tokens.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT bound to the session.
func (p *TokenProvider) IssueAccess(sessionID, userID string) (IssuedToken, error) {
	claims := &AccessClaims{SessionID: sessionID, TokenType: tokenTypeAccess}
	return p.issue(&claims.RegisteredClaims, claims, userID, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT bound to the session. Callers persist
// only the hash of the returned token.
func (p *TokenProvider) IssueRefresh(sessionID, userID string) (IssuedToken, error) {
	claims := &RefreshClaims{SessionID: sessionID, TokenType: tokenTypeRefresh}
	return p.issue(&claims.RegisteredClaims, claims, userID, p.refreshTTL)
}

func (p *TokenProvider) issue(rc *jwt.RegisteredClaims, claims jwt.Claims, userID string, ttl time.Duration) (IssuedToken, error) {
	jti, err := generateJTI()
	if err != nil {
		return IssuedToken{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	*rc = jwt.RegisteredClaims{
		ID:        jti,
		Subject:   userID,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := p.sign(claims)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, JTI: jti, ExpiresAt: expiresAt}, nil
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateRefresh parses and validates the refresh token (signature, exp, iss, aud).
// Returns sessionID, jti and userID.
func (p *TokenProvider) ValidateRefresh(tokenString string) (sessionID, jti, userID string, err error) {
	claims := &RefreshClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return "", "", "", err
	}
	if claims.TokenType != tokenTypeRefresh || claims.SessionID == "" || claims.Subject == "" {
		return "", "", "", ErrInvalidToken
	}
	return claims.SessionID, claims.ID, claims.Subject, nil
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud).
// Returns sessionID and userID.
func (p *TokenProvider) ValidateAccess(tokenString string) (sessionID, userID string, err error) {
	claims := &AccessClaims{}
	if err := p.parse(tokenString, claims); err != nil {
		return "", "", err
	}
	if claims.TokenType != tokenTypeAccess || claims.SessionID == "" || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.SessionID, claims.Subject, nil
}

func (p *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	iss, err := claims.GetIssuer()
	if err != nil || iss != p.issuer {
		return ErrInvalidToken
	}
	aud, err := claims.GetAudience()
	if err != nil || !slices.Contains([]string(aud), p.audience) {
		return ErrInvalidToken
	}
	return nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
