// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.UserRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/latchkey/latchkey/internal/auth"
)

// poolIface abstracts *pgxpool.Pool so the repository can run against pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, password_hash, reset_token_hash, reset_token_expires_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
	now  func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID.String(),
		auth.NormalizeEmail(user.Email),
		user.PasswordHash,
		user.ResetTokenHash,
		user.ResetTokenExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_CREATE_FAILED").
				With("operation", "insert user").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	return r.getOne(row, "get user by id", "id", id.String())
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, auth.NormalizeEmail(email))
	return r.getOne(row, "get user by email", "", "")
}

// GetByResetTokenHash retrieves the user holding an outstanding reset hash.
// Expired pairs are returned; the caller enforces expiry.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, tokenHash)
	return r.getOne(row, "get user by reset token hash", "", "")
}

// SetResetToken stores a reset pair, replacing any previous one.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt, r.now())
	if err != nil {
		return oops.Code("USER_SET_RESET_TOKEN_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// CompleteReset writes the new password and clears the reset pair in one
// conditional statement. Zero affected rows means the hash was replaced,
// consumed or expired in the meantime.
func (r *UserRepository) CompleteReset(ctx context.Context, id ulid.ULID, expectedHash, passwordHash string, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $3,
		    reset_token_hash = NULL,
		    reset_token_expires_at = NULL,
		    updated_at = $4
		WHERE id = $1
		  AND reset_token_hash = $2
		  AND reset_token_expires_at >= $4
	`, id.String(), expectedHash, passwordHash, now)
	if err != nil {
		return oops.Code("USER_COMPLETE_RESET_FAILED").
			With("operation", "complete reset").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_COMPLETE_RESET_FAILED").
			With("id", id.String()).
			Wrap(auth.ErrResetConflict)
	}
	return nil
}

// UpdatePassword replaces the password hash and clears any reset pair.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2,
		    reset_token_hash = NULL,
		    reset_token_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, r.now())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpgradePasswordHash swaps the password hash only while it still equals
// oldHash. The reset pair is left as is.
func (r *UserRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $3,
		    updated_at = $4
		WHERE id = $1
		  AND password_hash = $2
	`, id.String(), oldHash, newHash, r.now())
	if err != nil {
		return false, oops.Code("USER_UPGRADE_HASH_FAILED").
			With("operation", "upgrade password hash").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// PurgeExpiredResetTokens clears reset pairs that expired before now.
func (r *UserRepository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $1
		WHERE reset_token_expires_at < $1
	`, now)
	if err != nil {
		return 0, oops.Code("USER_PURGE_RESET_FAILED").
			With("operation", "purge expired reset tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func (r *UserRepository) getOne(row pgx.Row, operation, key, value string) (*auth.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		b := oops.Code("USER_NOT_FOUND")
		if key != "" {
			b = b.With(key, value)
		}
		return nil, b.Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", operation).
			Wrap(err)
	}
	return user, nil
}

// scanUser scans a single row into a User.
// Errors carry no code of their own; getOne is the only place that assigns one.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr     string
		user      auth.User
		resetHash *string
		resetExp  *time.Time
	)

	err := row.Scan(
		&idStr,
		&user.Email,
		&user.PasswordHash,
		&resetHash,
		&resetExp,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // getOne assigns the code
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("stage", "parse user id", "id", idStr).Wrap(err)
	}
	user.ID = id
	user.ResetTokenHash = resetHash
	user.ResetTokenExpiresAt = resetExp
	return &user, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
