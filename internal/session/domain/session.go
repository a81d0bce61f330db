package domain

import "time"

// Session is created by each successful login and bounds the refresh tokens rotated under it.
type Session struct {
	ID            string
	UserID        string
	DeviceName    string
	IPAddress     string
	UserAgent     string
	CorrelationID string
	CreatedAt     time.Time
	LastSeenAt    time.Time
	RevokedAt     *time.Time // nil when not revoked
}

// IsRevoked reports whether the session has been revoked.
func (s *Session) IsRevoked() bool { return s.RevokedAt != nil }
