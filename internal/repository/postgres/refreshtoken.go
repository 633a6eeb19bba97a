package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/authd/internal/apperrors"
	"github.com/nkiryanov/authd/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const createToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (user_id, is_revoked, expires_at)
VALUES ($1, false, $2)
RETURNING id, user_id, is_revoked, created_at, expires_at
`

func (r *RefreshTokenRepo) Create(ctx context.Context, userID int64, expiresAt time.Time) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, createToken, userID, expiresAt)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return token, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

const getTokenByID = `-- name: GetRefreshTokenByID
SELECT id, user_id, is_revoked, created_at, expires_at
FROM refresh_tokens
WHERE id = $1
`

// Get token record by id
// Returns the record even if it is revoked or expired, callers decide
func (r *RefreshTokenRepo) GetByID(ctx context.Context, id int64) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenByID, id)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrRefreshTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const getTokenByUserID = `-- name: GetRefreshTokenByUserID
SELECT id, user_id, is_revoked, created_at, expires_at
FROM refresh_tokens
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
`

func (r *RefreshTokenRepo) GetByUserID(ctx context.Context, userID int64) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenByUserID, userID)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrRefreshTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const markTokenRevoked = `-- name: MarkRefreshTokenRevoked
UPDATE refresh_tokens
SET is_revoked = true
WHERE id = $1
RETURNING id, user_id, is_revoked, created_at, expires_at
`

// Mark token revoked
// Idempotent: revoking an already revoked token leaves is_revoked true
func (r *RefreshTokenRepo) MarkRevoked(ctx context.Context, id int64) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, markTokenRevoked, id)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("token %d vanished during revocation: %w", id, apperrors.ErrInternal)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const deleteToken = `-- name: DeleteRefreshToken
DELETE FROM refresh_tokens
WHERE id = $1
`

func (r *RefreshTokenRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.DB.Exec(ctx, deleteToken, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("token %d does not exist anymore: %w", id, apperrors.ErrInternal)
	}

	return nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.IsRevoked, &t.CreatedAt, &t.ExpiresAt)
	return t, err
}
