package repository

import (
	"context"
	"time"

	"github.com/nkiryanov/authd/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user with hashed password already set
	// If user with that email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Get user by id
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID int64) (models.User, error)

	// Get user by email with password hash omitted
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Get user by email including the password hash
	// Only the credential verification path should call it
	GetUserByEmailForAuth(ctx context.Context, email string) (models.User, error)

	// Update user email or password hash, return the updated user sans hash
	UpdateEmail(ctx context.Context, userID int64, email string) (models.User, error)
	UpdatePassword(ctx context.Context, userID int64, hashedPassword string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Create token record for user, is_revoked starts false
	Create(ctx context.Context, userID int64, expiresAt time.Time) (models.RefreshToken, error)

	// Get token by its id (the jti claim of the signed token)
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	GetByID(ctx context.Context, id int64) (models.RefreshToken, error)

	// Get the outstanding token for user
	// If the user has none must return apperrors.ErrRefreshTokenNotFound
	GetByUserID(ctx context.Context, userID int64) (models.RefreshToken, error)

	// Set is_revoked true and return the updated record
	// Revocation is monotonic: a revoked token never becomes live again
	MarkRevoked(ctx context.Context, id int64) (models.RefreshToken, error)

	// Remove the record outright
	// If the record no longer exists must return apperrors.ErrInternal
	Delete(ctx context.Context, id int64) error
}

// Storage aggregates repositories sharing one connection or transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}
