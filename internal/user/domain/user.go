package domain

import (
	"time"
)

// User is the identity record the auth flows read and mutate.
// NormalizedEmail is the unique lookup key; Email keeps the address as typed.
type User struct {
	ID                   string
	Email                string
	NormalizedEmail      string
	PasswordHash         string
	EmailConfirmed       bool
	PhoneNumber          string
	PhoneNumberConfirmed bool
	LockoutEnd           *time.Time // nil when never locked
	LockoutEnabled       bool
	AccessFailedCount    int
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            *time.Time // soft delete
}

// IsLockedOut reports whether lockout applies at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnabled && u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// IsDeleted reports whether the user was soft-deleted.
func (u *User) IsDeleted() bool { return u.DeletedAt != nil }

// FailedAttempt is the state left by counting one wrong password.
type FailedAttempt struct {
	LockoutEnd *time.Time // set while the account is locked
	Locked     bool       // this attempt reached the maximum and started the lockout
}
