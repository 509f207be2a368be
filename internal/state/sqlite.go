package state

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

var errNotOpen = errors.New("database not opened")

// SQLiteStore keeps the keychain and the user accounts in SQLite.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	bcryptCost int
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{bcryptCost: bcrypt.DefaultCost}
}

// NewWithDB wraps an already opened database. Migrations are not run.
func NewWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, bcryptCost: bcrypt.DefaultCost}
}

// SetBcryptCost changes the cost of newly hashed passwords.
func (s *SQLiteStore) SetBcryptCost(cost int) {
	s.bcryptCost = cost
}

// Open opens a connection to the SQLite database, creating its directory
// when needed. Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// OpenAndMigrate opens path and brings its schema up to date.
func OpenAndMigrate(path string) (*SQLiteStore, error) {
	s := NewSQLiteStore()
	if err := s.Open(path); err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database path given to Open.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- Keychain ---

// PutKey stores key and iv for course under label. When the pair already
// has a key, the stored one is returned unchanged and created is false.
func (s *SQLiteStore) PutKey(ctx context.Context, course, label string, key, iv []byte) (ck *CourseKey, created bool, err error) {
	if s.db == nil {
		return nil, false, errNotOpen
	}
	if course == "" || label == "" {
		return nil, false, errors.New("course and label are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanKey(tx.QueryRowContext(ctx,
		`SELECT id, course, label, key_hex, iv_hex, created_at FROM course_keys WHERE course = ? AND label = ?`,
		course, label))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrKeyNotFound):
		return nil, false, err
	}

	ck = &CourseKey{
		ID:        uuid.New().String(),
		Course:    course,
		Label:     label,
		Key:       key,
		IV:        iv,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO course_keys (id, course, label, key_hex, iv_hex, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ck.ID, ck.Course, ck.Label, hex.EncodeToString(key), hex.EncodeToString(iv), ck.CreatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("failed to store key: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit key: %w", err)
	}
	return ck, true, nil
}

// GetKey returns the key stored for course under label.
func (s *SQLiteStore) GetKey(ctx context.Context, course, label string) (*CourseKey, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	return scanKey(s.db.QueryRowContext(ctx,
		`SELECT id, course, label, key_hex, iv_hex, created_at FROM course_keys WHERE course = ? AND label = ?`,
		course, label))
}

// ListKeys returns the keychain entries of course, or of every course when
// course is empty, ordered by course and label.
func (s *SQLiteStore) ListKeys(ctx context.Context, course string) ([]CourseKey, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	query := `SELECT id, course, label, key_hex, iv_hex, created_at FROM course_keys`
	var args []interface{}
	if course != "" {
		query += ` WHERE course = ?`
		args = append(args, course)
	}
	query += ` ORDER BY course, label`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []CourseKey
	for rows.Next() {
		ck, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *ck)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanKey(row scanner) (*CourseKey, error) {
	ck := &CourseKey{}
	var keyHex, ivHex string
	err := row.Scan(&ck.ID, &ck.Course, &ck.Label, &keyHex, &ivHex, &ck.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	if ck.Key, err = hex.DecodeString(keyHex); err != nil {
		return nil, fmt.Errorf("corrupt key %s: %w", ck.ID, err)
	}
	if ck.IV, err = hex.DecodeString(ivHex); err != nil {
		return nil, fmt.Errorf("corrupt iv %s: %w", ck.ID, err)
	}
	return ck, nil
}

// --- Users ---

// CreateUser adds an account with a bcrypt-hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, password string) (*User, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("missing username or password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = ?`, username).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	u := &User{Username: username, CreatedAt: time.Now().UTC()}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		u.Username, string(hash), u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user: %w", err)
	}
	return u, nil
}

// EnsureUser creates the account unless the username already exists.
// An existing account is detected before any password is hashed.
func (s *SQLiteStore) EnsureUser(ctx context.Context, username, password string) (created bool, err error) {
	if s.db == nil {
		return false, errNotOpen
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = ?`, strings.TrimSpace(username)).Scan(&exists)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}

	_, err = s.CreateUser(ctx, username, password)
	if errors.Is(err, ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Authenticate checks a username/password pair.
func (s *SQLiteStore) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	u := &User{}
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &hash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ListUsers returns every account ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, username, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the account with id.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	if s.db == nil {
		return errNotOpen
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrUserNotFound, id)
	}
	return nil
}
