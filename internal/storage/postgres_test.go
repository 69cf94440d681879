package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/user-service/internal/users"
)

var userRowColumns = []string{"id", "name", "email", "password_hash", "created_at", "updated_at"}

const testID = "6f1c2d8e-0f4a-4b6e-9d2a-3c1b5e7f9a10"

func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return NewPostgres(mock), mock
}

func TestPostgresFindByID(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantName  string
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
					WithArgs(testID).
					WillReturnRows(pgxmock.NewRows(userRowColumns).
						AddRow(testID, "Test User", "test@example.com", "hash", ts, ts))
			},
			wantName: "Test User",
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
					WithArgs(testID).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: users.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			// 大文字の UUID も正規化して検索する
			got, err := store.FindByID(context.Background(), "6F1C2D8E-0F4A-4B6E-9D2A-3C1B5E7F9A10")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantName, got.Name)
				assert.Equal(t, "hash", got.PasswordHash)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresFindByIDDatabaseError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(testID).
		WillReturnError(errors.New("connection refused"))

	_, err := store.FindByID(context.Background(), testID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, users.ErrNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPostgresList(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY created_at, id`).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow("a", "Ana", "ana@example.com", "h1", ts, ts).
			AddRow("b", "Bea", "bea@example.com", "h2", ts, ts))

	got, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bea", got[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY`).
		WillReturnRows(pgxmock.NewRows(userRowColumns))

	got, err := store.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPostgresFindByNameOrEmail(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE name = \$1 OR email = \$2`).
		WithArgs("Ana", "ana@example.com").
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow("a", "Ana", "other@example.com", "h1", ts, ts))

	got, err := store.FindByNameOrEmail(context.Background(), "Ana", "ana@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "Ana", "ana@example.com", "hash", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	u := &users.User{Name: "Ana", Email: "ana@example.com", PasswordHash: "hash"}
	require.NoError(t, store.Create(context.Background(), u))
	assert.Len(t, u.ID, 36)
	assert.False(t, u.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "Ana", "ana@example.com", "hash", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

	u := &users.User{Name: "Ana", Email: "ana@example.com", PasswordHash: "hash"}
	err := store.Create(context.Background(), u)
	assert.ErrorIs(t, err, users.ErrDuplicate)
	assert.Empty(t, u.ID)
}

func TestPostgresUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE users SET`).
		WithArgs(testID, "Ana", "ana@example.com", "hash", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	u := &users.User{ID: testID, Name: "Ana", Email: "ana@example.com", PasswordHash: "hash"}
	require.NoError(t, store.Update(context.Background(), u))
	assert.Equal(t, created, u.CreatedAt)
	assert.True(t, u.UpdatedAt.After(created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`UPDATE users SET`).
		WithArgs("missing", "Ana", "ana@example.com", "hash", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	err := store.Update(context.Background(), &users.User{ID: "missing", Name: "Ana", Email: "ana@example.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(testID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(testID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.Delete(context.Background(), testID))
	assert.ErrorIs(t, store.Delete(context.Background(), testID), users.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
