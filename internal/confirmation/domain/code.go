package domain

import "time"

// Type scopes a confirmation code to one flow.
type Type string

const (
	TypeEmailConfirmation Type = "email_confirmation"
	TypeResetPassword     Type = "reset_password"
)

// Code is a short-lived single-use numeric code. Only its hash is stored.
type Code struct {
	ID        string
	UserID    string
	Type      Type
	CodeHash  string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
