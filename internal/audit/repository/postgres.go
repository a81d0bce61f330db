package repository

import (
	"context"
	"database/sql"

	"taskflow/backend/internal/audit/domain"
	"taskflow/backend/internal/db"
)

type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the audit log. It always writes through the pool, never the caller's
// transaction, so entries for failed requests survive their rollback.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.pool.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, session_id, action, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, db.NullString(a.UserID), db.NullString(a.SessionID), a.Action, a.IP, db.NullString(a.Metadata), a.CreatedAt)
	return err
}
