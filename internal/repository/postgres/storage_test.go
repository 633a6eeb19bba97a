package postgres

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authd/internal/apperrors"
	"github.com/nkiryanov/authd/internal/models"
	"github.com/nkiryanov/authd/internal/repository"
	"github.com/nkiryanov/authd/internal/testutil"
)

func Test_Storage(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testUser := models.User{
		Email:          "tx@example.com",
		HashedPassword: "hashed_password",
	}

	t.Run("InTx commits on success", func(t *testing.T) {
		s := NewStorage(pg.Pool)

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			_, err := tx.User().CreateUser(t.Context(), testUser)
			return err
		})
		require.NoError(t, err)

		user, err := s.User().GetUserByEmail(t.Context(), "tx@example.com")
		require.NoError(t, err, "committed user should be visible outside the transaction")

		// Clean up so other subtests see a pristine table
		_, err = pg.Pool.Exec(t.Context(), "DELETE FROM users WHERE id = $1", user.ID)
		require.NoError(t, err)
	})

	t.Run("InTx rolls back on error", func(t *testing.T) {
		s := NewStorage(pg.Pool)
		boom := errors.New("boom")

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			if _, err := tx.User().CreateUser(t.Context(), testUser); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom, "fn error should be returned as is")

		_, err = s.User().GetUserByEmail(t.Context(), "tx@example.com")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound, "rolled back user should not be visible")
	})
}
