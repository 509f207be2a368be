// Package state persists what the tool keeps between runs: the keychain of
// per-course encryption keys and the accounts allowed to use the API.
package state

import (
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when a course has no key under a label.
	ErrKeyNotFound = errors.New("key and IV not found")

	// ErrUserExists is returned when creating a user whose name is taken.
	ErrUserExists = errors.New("username already exists")

	// ErrUserNotFound is returned when no user has the given id.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials is returned when a username/password pair does
	// not match a stored account.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// CourseKey is one keychain entry: the AES key and IV that encrypt the
// student ids recorded for a course under a label.
type CourseKey struct {
	ID        string    `json:"id"`
	Course    string    `json:"course"`
	Label     string    `json:"label"`
	Key       []byte    `json:"-"`
	IV        []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an API account. The password hash never leaves the store.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
