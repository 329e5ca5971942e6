package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists reports a username or email already registered.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials reports a failed login. Deliberately the same
	// for unknown username and wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// User represents a registered account.
type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RegisterUser creates a new account. The password is stored as a bcrypt
// hash; the sync payloads it protects are already encrypted client-side,
// so the password only guards account access.
func (db *ServerDB) RegisterUser(username, email, password string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" {
		return nil, fmt.Errorf("username and email are required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := generateID("u_")
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO users (id, username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, username, email, string(hash), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &User{ID: id, Username: username, Email: email, CreatedAt: now, UpdatedAt: now}, nil
}

// AuthenticateUser checks username and password, returning the user on
// success and ErrInvalidCredentials otherwise.
func (db *ServerDB) AuthenticateUser(username, password string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	u := &User{}
	var passwordHash string
	err := db.conn.QueryRow(
		`SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &passwordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		// Burn a comparison anyway so timing does not reveal existence
		bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uqJ88kTkqgMOjWYBA5HqlZFvy9zz.G2"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// GetUserByID returns the user with the given ID, or nil if not found.
func (db *ServerDB) GetUserByID(id string) (*User, error) {
	u := &User{}
	err := db.conn.QueryRow(
		`SELECT id, username, email, created_at, updated_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// DeleteUser removes the account row. Sessions and history rows follow via
// ON DELETE CASCADE; callers should run DeleteAccountData first anyway so
// the history deletion is explicit in the audit trail.
func (db *ServerDB) DeleteUser(userID string) error {
	res, err := db.conn.Exec(`DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}
