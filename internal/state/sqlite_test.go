package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	store.SetBcryptCost(bcrypt.MinCost)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := OpenAndMigrate(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.Equal(t, path, store.Path())
	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Migrating twice is a no-op.
	require.NoError(t, store.Migrate())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.Migrate(), errNotOpen)
	_, err := store.GetKey(ctx, "Reti", "Registrazione")
	assert.ErrorIs(t, err, errNotOpen)
	_, err = store.ListUsers(ctx)
	assert.ErrorIs(t, err, errNotOpen)
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_Keychain(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	key := []byte("0123456789abcdef0123456789abcdef")
	iv := []byte("fedcba9876543210")

	first, created, err := store.PutKey(ctx, "Reti", "Registrazione", key, iv)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)

	again, created, err := store.PutKey(ctx, "Reti", "Registrazione", []byte("other"), []byte("other"))
	require.NoError(t, err)
	assert.False(t, created, "existing pair is kept")
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, key, again.Key)
	assert.Equal(t, iv, again.IV)

	_, _, err = store.PutKey(ctx, "Reti", "Lezione 1", key, iv)
	require.NoError(t, err)
	_, _, err = store.PutKey(ctx, "Basi di dati", "21/06/2024", key, iv)
	require.NoError(t, err)

	got, err := store.GetKey(ctx, "Reti", "Lezione 1")
	require.NoError(t, err)
	assert.Equal(t, key, got.Key)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = store.GetKey(ctx, "Reti", "Lezione 2")
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	reti, err := store.ListKeys(ctx, "Reti")
	require.NoError(t, err)
	require.Len(t, reti, 2)
	assert.Equal(t, "Lezione 1", reti[0].Label)
	assert.Equal(t, "Registrazione", reti[1].Label)

	all, err := store.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "Basi di dati", all[0].Course)
}

func TestSQLiteStore_PutKey_RequiresCourseAndLabel(t *testing.T) {
	store := setupTestStore(t)
	_, _, err := store.PutKey(context.Background(), "", "Registrazione", nil, nil)
	assert.Error(t, err)
	_, _, err = store.PutKey(context.Background(), "Reti", "", nil, nil)
	assert.Error(t, err)
}

func TestSQLiteStore_Users(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created, err := store.EnsureUser(ctx, "admin", "pass")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = store.EnsureUser(ctx, "admin", "different")
	require.NoError(t, err)
	assert.False(t, created)

	bob, err := store.CreateUser(ctx, "bob", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.Username)

	_, err = store.CreateUser(ctx, "bob", "again")
	assert.True(t, errors.Is(err, ErrUserExists))

	_, err = store.CreateUser(ctx, " ", "x")
	assert.Error(t, err)
	_, err = store.CreateUser(ctx, "carol", "")
	assert.Error(t, err)

	u, err := store.Authenticate(ctx, "admin", "pass")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Username)

	_, err = store.Authenticate(ctx, "admin", "different")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	_, err = store.Authenticate(ctx, "nobody", "pass")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)

	require.NoError(t, store.DeleteUser(ctx, bob.ID))
	err = store.DeleteUser(ctx, bob.ID)
	assert.True(t, errors.Is(err, ErrUserNotFound))

	users, err = store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestSQLiteStore_DatabaseErrors(t *testing.T) {
	keyCols := []string{"id", "course", "label", "key_hex", "iv_hex", "created_at"}

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		run       func(s *SQLiteStore) error
		errMsg    string
	}{
		{
			name: "list users query fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, username, created_at FROM users").WillReturnError(assert.AnError)
			},
			run: func(s *SQLiteStore) error {
				_, err := s.ListUsers(context.Background())
				return err
			},
			errMsg: "failed to list users",
		},
		{
			name: "delete affects no rows",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM users").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			run: func(s *SQLiteStore) error {
				return s.DeleteUser(context.Background(), 7)
			},
			errMsg: "user not found",
		},
		{
			name: "create user lookup fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT 1 FROM users").WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			run: func(s *SQLiteStore) error {
				_, err := s.CreateUser(context.Background(), "bob", "pw")
				return err
			},
			errMsg: "failed to look up user",
		},
		{
			name: "corrupt key material",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, course, label").
					WillReturnRows(sqlmock.NewRows(keyCols).AddRow("k1", "Reti", "Lezione 1", "zz", "00", time.Now()))
			},
			run: func(s *SQLiteStore) error {
				_, err := s.ListKeys(context.Background(), "")
				return err
			},
			errMsg: "corrupt key",
		},
		{
			name: "insert key fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT id, course, label").WillReturnRows(sqlmock.NewRows(keyCols))
				mock.ExpectExec("INSERT INTO course_keys").WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			run: func(s *SQLiteStore) error {
				_, _, err := s.PutKey(context.Background(), "Reti", "Lezione 1", []byte{1}, []byte{2})
				return err
			},
			errMsg: "failed to store key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			tt.setupMock(mock)
			store := NewWithDB(db)
			store.SetBcryptCost(bcrypt.MinCost)

			err = tt.run(store)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLiteStore_EnsureUser_ExistingSkipsHashing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT 1 FROM users").WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	store := NewWithDB(db)
	// A cost above bcrypt.MaxCost fails if a hash is attempted.
	store.SetBcryptCost(bcrypt.MaxCost + 1)

	created, err := store.EnsureUser(context.Background(), "admin", "pw")
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}
