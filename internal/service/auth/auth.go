package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/authd/internal/apperrors"
	"github.com/nkiryanov/authd/internal/models"
	"github.com/nkiryanov/authd/internal/repository"
	"github.com/nkiryanov/authd/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshToken"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to use during registration and credential verification
	// Defaults to BcryptHasher with default cost
	Hasher PasswordHasher

	// Transport names for issued tokens
	// Defaults: "Authorization" header with "Bearer" scheme, "refreshToken" cookie
	AccessHeaderName  string
	AccessAuthScheme  string
	RefreshCookieName string
}

// RegisterUser carries the fields required to create an account
type RegisterUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthService verifies credentials and manages user accounts.
// Token issuance and resolution are delegated to the TokenManager.
type AuthService struct {
	token    *tokenmanager.TokenManager
	hasher   PasswordHasher
	userRepo repository.UserRepo

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
}

func NewService(cfg Config, token *tokenmanager.TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	return &AuthService{
		token:             token,
		hasher:            hasher,
		userRepo:          userRepo,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
	}, nil
}

// Register creates a new account and returns the user without the password hash
// Has to return apperrors.ErrUserAlreadyExists if the email is taken
func (s *AuthService) Register(ctx context.Context, data RegisterUser) (models.User, error) {
	_, err := s.userRepo.GetUserByEmail(ctx, data.Email)
	switch {
	case err == nil:
		return models.User{}, apperrors.ErrUserAlreadyExists
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Email is free, keep going
	default:
		return models.User{}, fmt.Errorf("error while checking email. Err: %w", err)
	}

	hash, err := s.hasher.Hash(data.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	// The unique index still guards against a concurrent registration
	// slipping in between the check above and this insert
	user, err := s.userRepo.CreateUser(ctx, models.User{
		Email:          data.Email,
		FirstName:      data.FirstName,
		LastName:       data.LastName,
		HashedPassword: hash,
	})
	if err != nil {
		return models.User{}, err
	}

	user.HashedPassword = ""
	return user, nil
}

// Verify checks an email/password pair and returns the user sans password hash.
// A missing user and a wrong password are reported with different errors, both
// belong to the unauthorized class on the HTTP boundary.
func (s *AuthService) Verify(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.userRepo.GetUserByEmailForAuth(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.User{}, apperrors.ErrUserNotExists
	case err != nil:
		return models.User{}, fmt.Errorf("error while looking up user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrBadCredentials
	}

	user.HashedPassword = ""
	return user, nil
}

// Login verifies credentials and issues a fresh token pair
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error) {
	user, err := s.Verify(ctx, email, password)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, pair, nil
}

// Refresh exchanges a presented refresh token for a new pair, rotating it
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.User, models.TokenPair, error) {
	return s.token.Rotate(ctx, refresh)
}

// Logout explicitly revokes the presented refresh token
func (s *AuthService) Logout(ctx context.Context, refresh string) (models.RefreshToken, error) {
	return s.token.Invalidate(ctx, refresh)
}

// ChangePassword verifies the current password and stores a hash of the new one
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current string, newPassword string) (models.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	if _, err := s.Verify(ctx, user.Email, current); err != nil {
		return models.User{}, err
	}

	if current == newPassword {
		return models.User{}, apperrors.ErrPasswordUnchanged
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	return s.userRepo.UpdatePassword(ctx, userID, hash)
}

// ChangeEmail verifies credentials and updates the account email
func (s *AuthService) ChangeEmail(ctx context.Context, email string, password string, newEmail string) (models.User, error) {
	user, err := s.Verify(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}

	return s.userRepo.UpdateEmail(ctx, user.ID, newEmail)
}

// SetTokenPairToResponse writes the access token to the auth header and the
// refresh token to an httpOnly cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, s.refreshCookie(pair.Refresh))
}

// SetTokenPairToRequest sets the same header and cookie on an outgoing request
// Handy in tests and service-to-service calls
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(s.refreshCookie(pair.Refresh))
}

// GetRefreshString extracts the signed refresh token from the request cookie
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", fmt.Errorf("refresh cookie is not set: %w", apperrors.ErrRefreshTokenNotFound)
	}
	return cookie.Value, nil
}

// GetUserFromRequest authenticates the request by its access token
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)

	access, found := strings.CutPrefix(header, s.accessAuthScheme+" ")
	if !found || access == "" {
		return models.User{}, fmt.Errorf("no %s token in %s header", s.accessAuthScheme, s.accessHeaderName)
	}

	userID, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *AuthService) refreshCookie(refresh models.IssuedToken) *http.Cookie {
	return &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
