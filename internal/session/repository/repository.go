package repository

import (
	"context"
	"time"

	"taskflow/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// ListActiveByUser returns non-revoked sessions, oldest first.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// Revoke revokes one session; revoking an already revoked session is a no-op.
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeMany(ctx context.Context, ids []string, at time.Time) error
	// RevokeAllByUser revokes every live session of the user and returns their ids.
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]string, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}
