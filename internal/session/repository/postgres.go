package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskflow/backend/internal/db"
	"taskflow/backend/internal/session/domain"
)

const sessionColumns = `id, user_id, device_name, ip_address, user_agent, correlation_id, created_at, last_seen_at, revoked_at`

type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := db.Conn(ctx, r.pool).QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.DeviceName, s.IPAddress, s.UserAgent, s.CorrelationID,
		s.CreatedAt, s.LastSeenAt, db.NullTime(s.RevokedAt))
	return err
}

// ListActiveByUser returns the user's non-revoked sessions ordered by creation time, oldest first.
// The rows are locked so concurrent logins for the same user evict against the same view.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 AND revoked_at IS NULL ORDER BY created_at, id`
	if _, inTx := db.TxFromContext(ctx); inTx {
		q += ` FOR UPDATE`
	}
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Revoke marks the session with the given id as revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	return err
}

// RevokeMany revokes each of the given sessions.
func (r *PostgresRepository) RevokeMany(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = ANY($1::text[]::uuid[]) AND revoked_at IS NULL`, ids, at)
	return err
}

// RevokeAllByUser revokes all live sessions for the user and returns the ids it revoked.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL RETURNING id`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateLastSeen sets the session's last-seen timestamp for the given id.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		s         domain.Session
		revokedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.DeviceName, &s.IPAddress, &s.UserAgent, &s.CorrelationID,
		&s.CreatedAt, &s.LastSeenAt, &revokedAt); err != nil {
		return nil, err
	}
	s.RevokedAt = db.TimePtr(revokedAt)
	return &s, nil
}
