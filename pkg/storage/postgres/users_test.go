package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

func newMockUserStore(t *testing.T) (*UserStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewUserStore(db, nil), mock
}

var userColumns = []string{"id", "name", "email", "password_hash", "verified", "session_token"}

func TestUserStoreCreateUser(t *testing.T) {
	t.Run("inserts a new user", func(t *testing.T) {
		store, mock := newMockUserStore(t)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs("u1", "Dory", "dory@example.com", "hash", false, "").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.CreateUser(context.Background(), &storage.User{
			ID:           "u1",
			Name:         "Dory",
			Email:        "dory@example.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports a duplicate email", func(t *testing.T) {
		store, mock := newMockUserStore(t)

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pq.Error{Code: "23505"})

		err := store.CreateUser(context.Background(), &storage.User{
			ID:    "u2",
			Email: "dory@example.com",
		})
		assert.ErrorIs(t, err, storage.ErrDuplicate)
	})
}

func TestUserStoreGetUser(t *testing.T) {
	t.Run("returns the user", func(t *testing.T) {
		store, mock := newMockUserStore(t)

		mock.ExpectQuery(`SELECT .+ FROM users`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow("u1", "Dory", "dory@example.com", "hash", true, "session-token"))

		user, err := store.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "Dory", user.Name)
		assert.True(t, user.Verified)
		assert.Equal(t, "session-token", user.SessionToken)
	})

	t.Run("returns ErrNotFound for a missing id", func(t *testing.T) {
		store, mock := newMockUserStore(t)

		mock.ExpectQuery(`SELECT .+ FROM users`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(userColumns))

		_, err := store.GetUser(context.Background(), "ghost")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestUserStoreGetUserByEmail(t *testing.T) {
	store, mock := newMockUserStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users`).
		WithArgs("dory@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "Dory", "dory@example.com", "hash", false, ""))

	user, err := store.GetUserByEmail(context.Background(), "dory@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestUserStoreUpdates(t *testing.T) {
	t.Run("stores a new session token", func(t *testing.T) {
		store, mock := newMockUserStore(t)

		mock.ExpectExec(`UPDATE users SET session_token`).
			WithArgs("new-token", "u1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.UpdateSessionToken(context.Background(), "u1", "new-token"))
	})

	t.Run("clears the session token on logout", func(t *testing.T) {
		store, mock := newMockUserStore(t)

		mock.ExpectExec(`UPDATE users SET session_token`).
			WithArgs("", "u1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.UpdateSessionToken(context.Background(), "u1", ""))
	})

	t.Run("returns ErrNotFound when no row matches", func(t *testing.T) {
		store, mock := newMockUserStore(t)

		mock.ExpectExec(`UPDATE users SET name`).
			WithArgs("Dory", "ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdateName(context.Background(), "ghost", "Dory")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("marks a user verified", func(t *testing.T) {
		store, mock := newMockUserStore(t)

		mock.ExpectExec(`UPDATE users SET verified = TRUE`).
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.MarkVerified(context.Background(), "u1"))
	})
}

func TestUserStoreRecordsMetrics(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := NewUserStore(db, metrics)

	mock.ExpectQuery(`SELECT .+ FROM users`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "Dory", "dory@example.com", "hash", true, ""))
	mock.ExpectQuery(`SELECT .+ FROM users`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(`UPDATE users SET name`).
		WillReturnError(errors.New("connection reset"))

	_, err = store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	_, err = store.GetUser(context.Background(), "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Error(t, store.UpdateName(context.Background(), "u1", "Dory"))

	ok := metrics.StorageOperationsTotal.WithLabelValues("get_user", "postgres", "ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(ok))

	miss := metrics.StorageOperationsTotal.WithLabelValues("get_user", "postgres", "miss")
	assert.Equal(t, 1.0, testutil.ToFloat64(miss))

	failed := metrics.StorageErrorsTotal.WithLabelValues("update_name", "postgres")
	assert.Equal(t, 1.0, testutil.ToFloat64(failed))

	// get_user and update_name each contribute one duration series
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.StorageOperationDuration))
}
