package serverdb

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/simon-b/atuin/internal/syncproto"
)

// Store is the storage contract the sync handlers depend on. ServerDB is
// the sqlite implementation; tests may substitute their own.
type Store interface {
	Upsert(userID string, env *syncproto.EnvelopeInput) error
	PageSince(userID string, since int64, limit int) ([]syncproto.SyncedRecord, bool, error)
	MaxGlobalSeq(userID string) (int64, error)
	Count(userID string) (int64, error)
	DeleteAccountData(userID string) error
}

var _ Store = (*ServerDB)(nil)

// ErrSeqConflict reports a global_seq allocation race. With the
// single-writer connection this should not happen; it exists so a bug
// surfaces instead of corrupting the order.
var ErrSeqConflict = errors.New("global sequence conflict")

// Upsert stores one encrypted record for the account. A previously unseen
// id allocates the next per-account global_seq inside the insert
// transaction. A duplicate id with identical content is a no-op. A
// duplicate id with different content is the tombstone transition: the
// ciphertext is replaced in place and the record keeps its original
// global_seq, which is never reassigned.
func (db *ServerDB) Upsert(userID string, env *syncproto.EnvelopeInput) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var existing []byte
	err = tx.QueryRow(
		`SELECT ciphertext FROM history WHERE user_id = ? AND id = ?`,
		userID, env.ID,
	).Scan(&existing)

	now := time.Now().UTC()
	switch {
	case err == sql.ErrNoRows:
		var next int64
		if err := tx.QueryRow(
			`SELECT COALESCE(MAX(global_seq), 0) + 1 FROM history WHERE user_id = ?`, userID,
		).Scan(&next); err != nil {
			return fmt.Errorf("allocate global_seq: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO history (user_id, id, host_id_token, ciphertext, nonce, version, global_seq, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, userID, env.ID, env.HostIDToken, env.Ciphertext, env.Nonce, env.Version, next, now, now)
		if err != nil {
			return fmt.Errorf("%w: insert record: %v", ErrSeqConflict, err)
		}
	case err != nil:
		return fmt.Errorf("lookup record: %w", err)
	case bytes.Equal(existing, env.Ciphertext):
		// Idempotent re-push
		return nil
	default:
		_, err = tx.Exec(`
			UPDATE history SET ciphertext = ?, nonce = ?, version = ?, updated_at = ?
			WHERE user_id = ? AND id = ?
		`, env.Ciphertext, env.Nonce, env.Version, now, userID, env.ID)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}
	}

	return tx.Commit()
}

// PageSince returns records with global_seq strictly greater than since,
// ascending, capped at limit. The second return reports whether more pages
// remain.
func (db *ServerDB) PageSince(userID string, since int64, limit int) ([]syncproto.SyncedRecord, bool, error) {
	limit = syncproto.ClampLimit(limit)
	rows, err := db.conn.Query(`
		SELECT id, host_id_token, ciphertext, nonce, version, global_seq
		FROM history
		WHERE user_id = ? AND global_seq > ?
		ORDER BY global_seq ASC
		LIMIT ?
	`, userID, since, limit)
	if err != nil {
		return nil, false, fmt.Errorf("page history: %w", err)
	}
	defer rows.Close()

	var recs []syncproto.SyncedRecord
	for rows.Next() {
		var r syncproto.SyncedRecord
		if err := rows.Scan(&r.ID, &r.HostIDToken, &r.Ciphertext, &r.Nonce, &r.Version, &r.GlobalSeq); err != nil {
			return nil, false, fmt.Errorf("scan history row: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("page history: iterate: %w", err)
	}

	hasMore := len(recs) == limit
	return recs, hasMore, nil
}

// MaxGlobalSeq returns the account's current sequence high-water mark,
// zero for an empty account.
func (db *ServerDB) MaxGlobalSeq(userID string) (int64, error) {
	var max int64
	err := db.conn.QueryRow(
		`SELECT COALESCE(MAX(global_seq), 0) FROM history WHERE user_id = ?`, userID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max global_seq: %w", err)
	}
	return max, nil
}

// Count returns the number of records stored for the account, tombstones
// included.
func (db *ServerDB) Count(userID string) (int64, error) {
	var n int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM history WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// DeleteAccountData removes every history record for the account. Sessions
// and the user row are handled separately by DeleteUser.
func (db *ServerDB) DeleteAccountData(userID string) error {
	_, err := db.conn.Exec(`DELETE FROM history WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete account history: %w", err)
	}
	return nil
}
