package domain

import "time"

// Role is a named permission group. Only the default-role assignment at registration reads it here.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Well-known role names seeded by cmd/seed.
const (
	RoleAdmin  = "Admin"
	RoleMember = "Member"
)
