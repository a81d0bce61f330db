package repository

import (
	"context"
	"time"

	"taskflow/backend/internal/role/domain"
)

// Repository defines the role lookups the auth flows need.
type Repository interface {
	// GetByName returns the non-deleted role with name (case-insensitive), or nil.
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	AssignToUser(ctx context.Context, userID, roleID string, at time.Time) error
}
