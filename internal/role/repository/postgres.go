package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskflow/backend/internal/db"
	"taskflow/backend/internal/role/domain"
)

type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a role repository that uses the given db for persistence.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByName returns the role named name, ignoring soft-deleted roles. Returns nil if not found.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	var (
		role      domain.Role
		deletedAt sql.NullTime
	)
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT id, name, created_at, deleted_at FROM roles WHERE lower(name) = lower($1) AND deleted_at IS NULL`,
		name).Scan(&role.ID, &role.Name, &role.CreatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	role.DeletedAt = db.TimePtr(deletedAt)
	return &role, nil
}

// AssignToUser links the role to the user. Assigning twice is a no-op.
func (r *PostgresRepository) AssignToUser(ctx context.Context, userID, roleID string, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		userID, roleID, at)
	return err
}

// Ensure creates the role if no live role with that name exists and returns it. Used by cmd/seed.
func (r *PostgresRepository) Ensure(ctx context.Context, id, name string, at time.Time) (*domain.Role, error) {
	existing, err := r.GetByName(ctx, name)
	if err != nil || existing != nil {
		return existing, err
	}
	if _, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO roles (id, name, created_at) VALUES ($1, $2, $3)`, id, name, at); err != nil {
		return nil, err
	}
	return &domain.Role{ID: id, Name: name, CreatedAt: at}, nil
}
