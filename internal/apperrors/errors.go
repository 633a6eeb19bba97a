package apperrors

import (
	"errors"
)

var (
	// Credential verification errors
	// Both map to 401 on the HTTP boundary but carry distinguishable messages
	ErrUserNotExists  = errors.New("user does not exist")
	ErrBadCredentials = errors.New("incorrect email or password")

	ErrUserAlreadyExists = errors.New("user with that email already exists")
	ErrUserNotFound      = errors.New("user not found")

	// User object passed to token issuance is empty or has no id
	ErrUserMalformed = errors.New("user object is malformed")

	ErrRefreshTokenMalformed = errors.New("refresh token is malformed")
	ErrRefreshTokenExpired   = errors.New("refresh token is expired")
	ErrRefreshTokenRevoked   = errors.New("refresh token revoked")
	ErrRefreshTokenNotFound  = errors.New("refresh token could not be found")

	ErrPasswordUnchanged = errors.New("new password must differ from the current one")

	// Store returned nothing where a record was expected
	ErrInternal = errors.New("internal storage error")
)
