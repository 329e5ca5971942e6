package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

const (
	sessionKeyPrefix = "atuin_sess_"
	sessionKeyLength = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// Session represents a login session (without the plaintext key).
type Session struct {
	ID         string
	UserID     string
	KeyPrefix  string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// CreateSession issues a new session key for the user. The plaintext key
// is returned once and only its sha256 hash is stored.
func (db *ServerDB) CreateSession(userID string) (string, *Session, error) {
	id, err := generateID("s_")
	if err != nil {
		return "", nil, fmt.Errorf("generate session id: %w", err)
	}

	secret := make([]byte, sessionKeyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate session key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := sessionKeyPrefix + string(secret)
	prefix := string(secret[:8])

	hash := sha256.Sum256([]byte(plaintext))
	keyHash := hex.EncodeToString(hash[:])

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO sessions (id, user_id, key_hash, key_prefix, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, keyHash, prefix, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert session: %w", err)
	}

	s := &Session{ID: id, UserID: userID, KeyPrefix: prefix, CreatedAt: now}
	return plaintext, s, nil
}

// VerifySession checks a plaintext session key against stored hashes.
// Returns the session and its user, or nil, nil, nil when no session
// matches.
func (db *ServerDB) VerifySession(plaintextKey string) (*Session, *User, error) {
	hash := sha256.Sum256([]byte(plaintextKey))
	keyHash := hex.EncodeToString(hash[:])

	s := &Session{}
	u := &User{}
	err := db.conn.QueryRow(`
		SELECT s.id, s.user_id, s.key_prefix, s.last_used_at, s.created_at,
		       u.id, u.username, u.email, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.key_hash = ?
	`, keyHash).Scan(
		&s.ID, &s.UserID, &s.KeyPrefix, &s.LastUsedAt, &s.CreatedAt,
		&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		slog.Debug("session not found", "key_hash_prefix", keyHash[:8])
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify session: %w", err)
	}

	now := time.Now().UTC()
	if _, err := db.conn.Exec(`UPDATE sessions SET last_used_at = ? WHERE id = ?`, now, s.ID); err != nil {
		slog.Warn("update last_used_at", "session_id", s.ID, "err", err)
	}
	s.LastUsedAt = &now

	return s, u, nil
}

// RevokeSession deletes the session matching the plaintext key.
func (db *ServerDB) RevokeSession(plaintextKey string) error {
	hash := sha256.Sum256([]byte(plaintextKey))
	keyHash := hex.EncodeToString(hash[:])

	res, err := db.conn.Exec(`DELETE FROM sessions WHERE key_hash = ?`, keyHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found")
	}
	return nil
}

// RevokeUserSessions deletes every session for the user.
func (db *ServerDB) RevokeUserSessions(userID string) error {
	_, err := db.conn.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}
