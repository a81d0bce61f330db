package domain

import "time"

// RefreshToken is one link in a session's rotation chain. Only the SHA-256 of the
// token string is stored.
type RefreshToken struct {
	ID                string
	SessionID         string
	UserID            string
	TokenHash         string
	ExpiresAt         time.Time
	UsedAt            *time.Time
	RevokedAt         *time.Time
	ReplacedByTokenID string // empty until rotated
	CreatedAt         time.Time
}

// IsUsed reports whether the token was already exchanged.
func (t *RefreshToken) IsUsed() bool { return t.UsedAt != nil }

// IsRevoked reports whether the token was revoked with its session.
func (t *RefreshToken) IsRevoked() bool { return t.RevokedAt != nil }
