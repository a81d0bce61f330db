package repository

import (
	"context"
	"time"

	"taskflow/backend/internal/confirmation/domain"
)

// Repository defines persistence for confirmation codes.
type Repository interface {
	Create(ctx context.Context, c *domain.Code) error
	// InvalidateActive marks every still-usable code of that type for the user as used.
	InvalidateActive(ctx context.Context, userID string, typ domain.Type, now time.Time) error
	// Consume atomically marks the matching active code used. Reports whether one matched.
	Consume(ctx context.Context, userID string, typ domain.Type, codeHash string, now time.Time) (bool, error)
	// Exists reports whether a matching active code exists, without consuming it.
	Exists(ctx context.Context, userID string, typ domain.Type, codeHash string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
