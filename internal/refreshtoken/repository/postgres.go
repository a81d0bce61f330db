package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskflow/backend/internal/db"
	"taskflow/backend/internal/refreshtoken/domain"
)

const tokenColumns = `id, session_id, user_id, token_hash, expires_at, used_at, revoked_at, replaced_by_token_id, created_at`

type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a refresh token repository that uses the given db for persistence.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the token. The token must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.SessionID, t.UserID, t.TokenHash, t.ExpiresAt,
		db.NullTime(t.UsedAt), db.NullTime(t.RevokedAt), db.NullString(t.ReplacedByTokenID), t.CreatedAt)
	return err
}

// Consume is the single read-and-mark-used step of rotation. Two concurrent callers
// presenting the same token cannot both get a row back.
func (r *PostgresRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	row := db.Conn(ctx, r.pool).QueryRowContext(ctx, `
		UPDATE refresh_tokens SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND revoked_at IS NULL AND expires_at > $2
		RETURNING `+tokenColumns, tokenHash, now)
	return scanToken(row)
}

// GetByHash returns the token with the given hash in any state, or nil.
func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	return scanToken(row)
}

// SetReplacedBy links a consumed token to its successor.
func (r *PostgresRepository) SetReplacedBy(ctx context.Context, id, replacedByID string) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE refresh_tokens SET replaced_by_token_id = $2 WHERE id = $1`, id, replacedByID)
	return err
}

// RevokeBySessions revokes all not-yet-revoked tokens belonging to the sessions.
func (r *PostgresRepository) RevokeBySessions(ctx context.Context, sessionIDs []string, at time.Time) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE session_id = ANY($1::text[]::uuid[]) AND revoked_at IS NULL`,
		sessionIDs, at)
	return err
}

// DeleteExpired removes tokens whose expiry is before the cutoff. Successor links
// pointing at them are cleared by the foreign key.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanToken(row *sql.Row) (*domain.RefreshToken, error) {
	var (
		t                 domain.RefreshToken
		usedAt, revokedAt sql.NullTime
		replacedBy        sql.NullString
	)
	err := row.Scan(&t.ID, &t.SessionID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &usedAt, &revokedAt, &replacedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.UsedAt = db.TimePtr(usedAt)
	t.RevokedAt = db.TimePtr(revokedAt)
	t.ReplacedByTokenID = replacedBy.String
	return &t, nil
}
