package auth

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authd/internal/apperrors"
	"github.com/nkiryanov/authd/internal/repository/postgres"
	"github.com/nkiryanov/authd/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/authd/internal/testutil"
)

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	registerData := RegisterUser{
		Email:     "nk@example.com",
		Password:  "StrongEnoughPassword",
		FirstName: "Nikolai",
		LastName:  "K",
	}

	// Begin new db transaction and create new AuthService
	// Rollback transaction when test stops
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(s *AuthService)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			userRepo := &postgres.UserRepo{DB: tx}
			refreshRepo := &postgres.RefreshTokenRepo{DB: tx}

			tokenManager, err := tokenmanager.New(
				tokenmanager.Config{
					SecretKey: "test-secret-key",
					AccessTTL: 15 * time.Minute,
				},
				userRepo,
				refreshRepo,
			)
			require.NoError(t, err, "token manager should be created without errors")

			s, err := NewService(Config{}, tokenManager, userRepo)
			require.NoError(t, err, "auth service could't be started", err)

			fn(s)
		})
	}

	t.Run("new auth service defaults", func(t *testing.T) {
		s, err := NewService(Config{}, nil, nil)
		require.NoError(t, err, "auth service should be created without errors")

		require.Equal(t, defaultAccessHeaderName, s.accessHeaderName, "default access header name should be set")
		require.Equal(t, defaultAccessAuthScheme, s.accessAuthScheme, "default access auth")
		require.Equal(t, defaultRefreshCookieName, s.refreshCookieName, "default refresh cookie name should be set")
		require.Equal(t, BcryptHasher{}, s.hasher, "default hasher should be set to BcryptHasher")
	})

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				user, err := s.Register(t.Context(), registerData)

				require.NoError(t, err, "registering new user should be ok")
				require.NotZero(t, user.ID, "created user should have an id")
				require.Equal(t, "nk@example.com", user.Email)
				require.Equal(t, "Nikolai", user.FirstName)
				require.Empty(t, user.HashedPassword, "returned user must not carry the password hash")
			})
		})

		t.Run("fail if email taken", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.Register(t.Context(), registerData)
				require.NoError(t, err, "no error has should happen if user not exists")

				again := registerData
				again.Password = "other-password"
				_, err = s.Register(t.Context(), again)

				require.Error(t, err)
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
				require.Contains(t, err.Error(), "exists")
			})
		})
	})

	t.Run("Verify", func(t *testing.T) {
		t.Run("correct credentials ok", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				user, err := s.Verify(t.Context(), "nk@example.com", "StrongEnoughPassword")

				require.NoError(t, err)
				require.Equal(t, "nk@example.com", user.Email)
				require.Empty(t, user.HashedPassword, "verified user must not carry the password hash")
			})
		})

		tests := []struct {
			name        string
			email       string
			password    string
			expectedErr error
		}{
			{
				name:        "fail if wrong password",
				email:       "nk@example.com",
				password:    "wrong",
				expectedErr: apperrors.ErrBadCredentials,
			},
			{
				name:        "fail if user not exists",
				email:       "ghost@example.com",
				password:    "StrongEnoughPassword",
				expectedErr: apperrors.ErrUserNotExists,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withTx(pg.Pool, t, func(s *AuthService) {
					_, err := s.Register(t.Context(), registerData)
					require.NoError(t, err)

					_, err = s.Verify(t.Context(), tt.email, tt.password)

					require.Error(t, err)
					require.ErrorIs(t, err, tt.expectedErr)
				})
			})
		}
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("returns token pair", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				_, pair, err := s.Login(t.Context(), "nk@example.com", "StrongEnoughPassword")

				require.NoError(t, err)
				require.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				require.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			})
		})

		t.Run("second login kills first refresh token", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				_, pair1, err := s.Login(t.Context(), "nk@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				_, _, err = s.Login(t.Context(), "nk@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				_, _, err = s.Refresh(t.Context(), pair1.Refresh.Value)

				require.Error(t, err, "refresh token from the first login should be dead")
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
			})
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("rotates pair", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				_, pair, err := s.Login(t.Context(), "nk@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				user, rotated, err := s.Refresh(t.Context(), pair.Refresh.Value)

				require.NoError(t, err)
				require.Equal(t, "nk@example.com", user.Email)
				require.NotEqual(t, pair.Refresh.Value, rotated.Refresh.Value)
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		t.Run("revokes refresh token", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				_, pair, err := s.Login(t.Context(), "nk@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				token, err := s.Logout(t.Context(), pair.Refresh.Value)
				require.NoError(t, err)
				require.True(t, token.IsRevoked)

				_, _, err = s.Refresh(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
			})
		})
	})

	t.Run("ChangePassword", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				user, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				updated, err := s.ChangePassword(t.Context(), user.ID, "StrongEnoughPassword", "EvenStrongerPassword")

				require.NoError(t, err)
				require.Empty(t, updated.HashedPassword)

				_, err = s.Verify(t.Context(), "nk@example.com", "EvenStrongerPassword")
				require.NoError(t, err, "new password should verify")

				_, err = s.Verify(t.Context(), "nk@example.com", "StrongEnoughPassword")
				require.ErrorIs(t, err, apperrors.ErrBadCredentials, "old password should not verify anymore")
			})
		})

		t.Run("fail if current password wrong", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				user, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				_, err = s.ChangePassword(t.Context(), user.ID, "wrong", "EvenStrongerPassword")

				require.ErrorIs(t, err, apperrors.ErrBadCredentials)
			})
		})

		t.Run("fail if password unchanged", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				user, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				_, err = s.ChangePassword(t.Context(), user.ID, "StrongEnoughPassword", "StrongEnoughPassword")

				require.ErrorIs(t, err, apperrors.ErrPasswordUnchanged)
			})
		})

		t.Run("fail if user not exists", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.ChangePassword(t.Context(), 99999, "whatever", "EvenStrongerPassword")

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("ChangeEmail", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				updated, err := s.ChangeEmail(t.Context(), "nk@example.com", "StrongEnoughPassword", "new@example.com")

				require.NoError(t, err)
				require.Equal(t, "new@example.com", updated.Email)

				_, err = s.Verify(t.Context(), "new@example.com", "StrongEnoughPassword")
				require.NoError(t, err, "login by the new email should work")
			})
		})

		t.Run("fail if password wrong", func(t *testing.T) {
			withTx(pg.Pool, t, func(s *AuthService) {
				_, err := s.Register(t.Context(), registerData)
				require.NoError(t, err)

				_, err = s.ChangeEmail(t.Context(), "nk@example.com", "wrong", "new@example.com")

				require.ErrorIs(t, err, apperrors.ErrBadCredentials)
			})
		})
	})
}
