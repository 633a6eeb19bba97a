package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authd/internal/apperrors"
	"github.com/nkiryanov/authd/internal/models"
	"github.com/nkiryanov/authd/internal/repository"
)

const (
	defaultAccessTokenTTL = 20 * time.Minute
	defaultSigningMethod  = "HS256"

	// The rotation protocol issues refresh tokens valid for 7 days
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenManager mints access/refresh token pairs and resolves presented
// refresh tokens back to their owning user and stored record.
//
// Access tokens are stateless. Every refresh token is backed by a row in the
// refresh token repository whose id travels inside the signed token as the
// jti claim; the row is the source of truth for revocation.
type TokenManager struct {
	key string
	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	userRepo    repository.UserRepo
	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, userRepo repository.UserRepo, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		key:         cfg.SecretKey,
		alg:         jwt.GetSigningMethod(cfg.Alg),
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		userRepo:    userRepo,
		refreshRepo: refreshRepo,
	}, nil
}

// IssueAccess mints a signed access token for the user.
// Stateless: nothing is written to any store.
func (m *TokenManager) IssueAccess(user models.User) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   strconv.FormatInt(user.ID, 10),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Email: user.Email,
		},
	)

	signed, err := token.SignedString([]byte(m.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// IssueRefresh mints a signed refresh token backed by a new store record.
//
// The user holds at most one live refresh token: any existing record is
// removed first, so a new login cuts off the previous session's ability to
// refresh. The find-then-delete-then-create sequence is best effort under
// concurrent logins.
func (m *TokenManager) IssueRefresh(ctx context.Context, user models.User, ttl time.Duration) (models.IssuedToken, error) {
	existing, err := m.refreshRepo.GetByUserID(ctx, user.ID)
	switch {
	case err == nil:
		if err := m.refreshRepo.Delete(ctx, existing.ID); err != nil {
			return models.IssuedToken{}, fmt.Errorf("error while removing existing refresh token. Err: %w", err)
		}
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		// Nothing to clean up
	default:
		return models.IssuedToken{}, fmt.Errorf("error while looking up existing refresh token. Err: %w", err)
	}

	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	record, err := m.refreshRepo.Create(ctx, user.ID, expiresAt)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	// Only registered claims: subject is the user id, jti is the record id
	token := jwt.NewWithClaims(
		m.alg,
		jwt.RegisteredClaims{
			ID:        strconv.FormatInt(record.ID, 10),
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	)

	signed, err := token.SignedString([]byte(m.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// GeneratePair mints an access and refresh token pair for the user
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair

	if user.ID == 0 {
		return pair, apperrors.ErrUserMalformed
	}

	access, err := m.IssueAccess(user)
	if err != nil {
		return pair, err
	}

	refresh, err := m.IssueRefresh(ctx, user, m.refreshTTL)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Decode verifies the refresh token signature and expiry and returns its claims.
// Expired tokens are reported distinctly from any other verification failure.
func (m *TokenManager) Decode(refresh string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(
		refresh,
		&claims,
		func(t *jwt.Token) (any, error) { return []byte(m.key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, apperrors.ErrRefreshTokenExpired
	default:
		return claims, fmt.Errorf("%w: %w", apperrors.ErrRefreshTokenMalformed, err)
	}
}

// StoredToken looks up the record behind decoded refresh token claims
func (m *TokenManager) StoredToken(ctx context.Context, claims jwt.RegisteredClaims) (models.RefreshToken, error) {
	if claims.ID == "" {
		return models.RefreshToken{}, fmt.Errorf("jti claim is missing: %w", apperrors.ErrRefreshTokenMalformed)
	}

	tokenID, err := strconv.ParseInt(claims.ID, 10, 64)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("jti claim is not a token id: %w", apperrors.ErrRefreshTokenMalformed)
	}

	return m.refreshRepo.GetByID(ctx, tokenID)
}

// Resolve is the single gate for every refresh or rotation request.
//
// Check order is fixed so the returned error always names the earliest
// failing precondition: signature and expiry first, then record existence,
// then revocation, then user resolution.
func (m *TokenManager) Resolve(ctx context.Context, refresh string) (models.User, models.RefreshToken, error) {
	claims, err := m.Decode(refresh)
	if err != nil {
		return models.User{}, models.RefreshToken{}, err
	}

	token, err := m.StoredToken(ctx, claims)
	if err != nil {
		return models.User{}, models.RefreshToken{}, err
	}

	if token.IsRevoked {
		return models.User{}, models.RefreshToken{}, apperrors.ErrRefreshTokenRevoked
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.User{}, models.RefreshToken{}, fmt.Errorf("sub claim is not a user id: %w", apperrors.ErrRefreshTokenMalformed)
	}

	user, err := m.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, models.RefreshToken{}, fmt.Errorf("no user associated with this refresh token: %w", err)
	}

	return user, token, nil
}

// Rotate exchanges a valid refresh token for a brand new pair.
//
// Issuing the new pair removes the just-used record as part of the
// single-live-token cleanup, so presenting the same refresh token twice
// fails on the second call.
func (m *TokenManager) Rotate(ctx context.Context, refresh string) (models.User, models.TokenPair, error) {
	user, _, err := m.Resolve(ctx, refresh)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := m.GeneratePair(ctx, user)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	return user, pair, nil
}

// Invalidate resolves the refresh token and marks its record revoked
func (m *TokenManager) Invalidate(ctx context.Context, refresh string) (models.RefreshToken, error) {
	_, token, err := m.Resolve(ctx, refresh)
	if err != nil {
		return models.RefreshToken{}, err
	}

	revoked, err := m.refreshRepo.MarkRevoked(ctx, token.ID)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("error while revoking refresh token. Err: %w", err)
	}

	return revoked, nil
}

// ParseAccess parses and validates an access token and returns the user id
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (userID int64, err error) {
	claims := &AccessTokenClaims{}

	_, err = jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(m.key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	if err != nil {
		return 0, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	userID, err = strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sub claim is not a user id. Err: %w", err)
	}

	return userID, nil
}
