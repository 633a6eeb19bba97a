package models

import (
	"time"
)

// RefreshToken is the stored record behind one signed refresh token.
// Its ID is embedded in the signed token as the jti claim.
type RefreshToken struct {
	ID        int64
	UserID    int64
	IsRevoked bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
