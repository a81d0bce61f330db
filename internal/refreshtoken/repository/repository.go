package repository

import (
	"context"
	"time"

	"taskflow/backend/internal/refreshtoken/domain"
)

// Repository defines persistence for refresh tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	// Consume marks the active token with tokenHash as used and returns it, in one
	// statement. Returns nil when no active token matched.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error)
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	SetReplacedBy(ctx context.Context, id, replacedByID string) error
	// RevokeBySessions revokes every unrevoked token of the given sessions.
	RevokeBySessions(ctx context.Context, sessionIDs []string, at time.Time) error
	// DeleteExpired removes tokens that expired before the cutoff. Returns the count removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
