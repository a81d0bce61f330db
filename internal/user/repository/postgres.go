package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"taskflow/backend/internal/db"
	"taskflow/backend/internal/user/domain"
)

// ErrNotFound is returned by LockForUpdate when no live user has the id.
var ErrNotFound = errors.New("user: not found")

// ErrDuplicateEmail is returned by Create when the normalized email is already taken.
var ErrDuplicateEmail = errors.New("user: duplicate email")

const userColumns = `id, email, normalized_email, password_hash, email_confirmed, phone_number,
	phone_number_confirmed, lockout_end, lockout_enabled, access_failed_count, is_active,
	created_at, updated_at, deleted_at`

type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(pool *sql.DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUser(row)
}

// GetByNormalizedEmail returns the user with the given normalized email, or nil if not found.
func (r *PostgresRepository) GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*domain.User, error) {
	row := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE normalized_email = $1 AND deleted_at IS NULL`, normalizedEmail)
	return scanUser(row)
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Email, u.NormalizedEmail, u.PasswordHash, u.EmailConfirmed, db.NullString(u.PhoneNumber),
		u.PhoneNumberConfirmed, db.NullTime(u.LockoutEnd), u.LockoutEnabled, u.AccessFailedCount, u.IsActive,
		u.CreatedAt, u.UpdatedAt, db.NullTime(u.DeletedAt))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}

// UpdateLoginState writes the failed-attempt counter and lockout end.
func (r *PostgresRepository) UpdateLoginState(ctx context.Context, id string, accessFailedCount int, lockoutEnd *time.Time, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE users SET access_failed_count = $2, lockout_end = $3, updated_at = $4 WHERE id = $1`,
		id, accessFailedCount, db.NullTime(lockoutEnd), at)
	return err
}

// LockForUpdate takes the row lock on the user until the surrounding transaction ends.
// Must run inside WithinTx.
func (r *PostgresRepository) LockForUpdate(ctx context.Context, id string) error {
	var one int
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// RecordFailedAttempt increments the failure counter in one statement so concurrent wrong passwords
// all count. The attempt that reaches maxAttempts sets lockout_end and resets the counter. While the
// account is already locked the row is left as it is.
func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, lockoutEnd, at time.Time) (domain.FailedAttempt, error) {
	var (
		end    sql.NullTime
		locked bool
	)
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx, `
		UPDATE users SET
			access_failed_count = CASE
				WHEN lockout_end > $4 THEN access_failed_count
				WHEN access_failed_count + 1 >= $2 THEN 0
				ELSE access_failed_count + 1 END,
			lockout_end = CASE
				WHEN lockout_end > $4 THEN lockout_end
				WHEN access_failed_count + 1 >= $2 THEN $3
				ELSE lockout_end END,
			updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING lockout_end, COALESCE(lockout_end = $3, FALSE)`,
		id, maxAttempts, lockoutEnd, at).Scan(&end, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FailedAttempt{}, nil
	}
	if err != nil {
		return domain.FailedAttempt{}, err
	}
	return domain.FailedAttempt{LockoutEnd: db.TimePtr(end), Locked: locked}, nil
}

// SetEmailConfirmed marks the user's email as confirmed.
func (r *PostgresRepository) SetEmailConfirmed(ctx context.Context, id string, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE users SET email_confirmed = TRUE, updated_at = $2 WHERE id = $1`, id, at)
	return err
}

// UpdatePassword replaces the password hash and clears any lockout.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, `
		UPDATE users SET password_hash = $2, access_failed_count = 0, lockout_end = NULL, updated_at = $3
		WHERE id = $1`, id, passwordHash, at)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u                     domain.User
		phone                 sql.NullString
		lockoutEnd, deletedAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.NormalizedEmail, &u.PasswordHash, &u.EmailConfirmed, &phone,
		&u.PhoneNumberConfirmed, &lockoutEnd, &u.LockoutEnabled, &u.AccessFailedCount, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.PhoneNumber = phone.String
	u.LockoutEnd = db.TimePtr(lockoutEnd)
	u.DeletedAt = db.TimePtr(deletedAt)
	return &u, nil
}
