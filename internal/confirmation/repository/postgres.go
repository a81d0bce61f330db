package repository

import (
	"context"
	"database/sql"
	"time"

	"taskflow/backend/internal/confirmation/domain"
	"taskflow/backend/internal/db"
)

type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a confirmation code repository that uses the given db for persistence.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the code. The code must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Code) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, `
		INSERT INTO confirmation_codes (id, user_id, type, code_hash, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, string(c.Type), c.CodeHash, c.ExpiresAt, db.NullTime(c.UsedAt), c.CreatedAt)
	return err
}

// InvalidateActive burns the user's outstanding codes of typ so only the newest one works.
func (r *PostgresRepository) InvalidateActive(ctx context.Context, userID string, typ domain.Type, now time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, `
		UPDATE confirmation_codes SET used_at = $3
		WHERE user_id = $1 AND type = $2 AND used_at IS NULL AND expires_at > $3`,
		userID, string(typ), now)
	return err
}

// Consume marks the matching code used in a single statement, so a code is accepted at most once.
func (r *PostgresRepository) Consume(ctx context.Context, userID string, typ domain.Type, codeHash string, now time.Time) (bool, error) {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx, `
		UPDATE confirmation_codes SET used_at = $4
		WHERE user_id = $1 AND type = $2 AND code_hash = $3 AND used_at IS NULL AND expires_at > $4`,
		userID, string(typ), codeHash, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Exists checks for a matching active code without changing it.
func (r *PostgresRepository) Exists(ctx context.Context, userID string, typ domain.Type, codeHash string, now time.Time) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM confirmation_codes
			WHERE user_id = $1 AND type = $2 AND code_hash = $3 AND used_at IS NULL AND expires_at > $4
		)`, userID, string(typ), codeHash, now).Scan(&ok)
	return ok, err
}

// DeleteExpired removes codes that expired before the cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx, `DELETE FROM confirmation_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
