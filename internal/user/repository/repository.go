package repository

import (
	"context"
	"time"

	"taskflow/backend/internal/user/domain"
)

// Repository defines persistence for users. Soft-deleted users are invisible to every lookup.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateLoginState(ctx context.Context, id string, accessFailedCount int, lockoutEnd *time.Time, at time.Time) error
	RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, lockoutEnd, at time.Time) (domain.FailedAttempt, error)
	LockForUpdate(ctx context.Context, id string) error
	SetEmailConfirmed(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}
