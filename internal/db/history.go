package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/simon-b/atuin/internal/models"
)

// Append inserts a newly executed command into the store. Inserting an id
// that already exists is treated as success, so shell hook retries and
// crash-replays cannot duplicate rows.
func (db *DB) Append(rec *models.HistoryRecord) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			INSERT OR IGNORE INTO history (id, host_id, timestamp, command, cwd, exit_code, duration, session_id, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.HostID, rec.Timestamp.UTC(), rec.Command, rec.Cwd, rec.ExitCode, rec.Duration, rec.SessionID, rec.DeletedAt)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Duplicate id: idempotent success
			return nil
		}
		return nil
	})
}

// MarkDeleted sets the tombstone on a record. Idempotent: marking an
// already-deleted record keeps the earlier deletion time. The record must
// exist locally.
func (db *DB) MarkDeleted(id string, deletedAt time.Time) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			UPDATE history SET deleted_at = ?, synced_at = NULL
			WHERE id = ? AND deleted_at IS NULL
		`, deletedAt.UTC(), id)
		if err != nil {
			return fmt.Errorf("mark deleted: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			if err := db.conn.QueryRow(`SELECT 1 FROM history WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			} else if err != nil {
				return fmt.Errorf("check record: %w", err)
			}
			// Already tombstoned: idempotent success
		}
		return nil
	})
}

// PendingRecord is a history record paired with its local creation index,
// used by the push path to advance the pushed marker.
type PendingRecord struct {
	LocalIdx int64
	Record   models.HistoryRecord
}

// RecordsSince returns up to limit unsynced records in creation order:
// records created after the given local index, plus tombstones set on rows
// that had already been pushed (their synced_at is cleared again, but their
// index sits below the marker). Restartable: a crash between push and
// MarkSynced only causes a re-send, which the server's idempotent upsert
// absorbs.
func (db *DB) RecordsSince(afterIdx int64, limit int) ([]PendingRecord, error) {
	rows, err := db.conn.Query(`
		SELECT local_idx, id, host_id, timestamp, command, cwd, exit_code, duration, session_id, deleted_at
		FROM history
		WHERE synced_at IS NULL AND (local_idx > ? OR deleted_at IS NOT NULL)
		ORDER BY local_idx ASC
		LIMIT ?
	`, afterIdx, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending records: %w", err)
	}
	defer rows.Close()

	var pending []PendingRecord
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *p)
	}
	return pending, rows.Err()
}

func scanPending(rows *sql.Rows) (*PendingRecord, error) {
	var p PendingRecord
	var deletedAt sql.NullTime
	if err := rows.Scan(&p.LocalIdx, &p.Record.ID, &p.Record.HostID, &p.Record.Timestamp,
		&p.Record.Command, &p.Record.Cwd, &p.Record.ExitCode, &p.Record.Duration,
		&p.Record.SessionID, &deletedAt); err != nil {
		return nil, fmt.Errorf("scan history row: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		p.Record.DeletedAt = &t
	}
	return &p, nil
}

// MarkSynced records server acknowledgment for the given record ids.
func (db *DB) MarkSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()
		for _, id := range ids {
			if _, err := tx.Exec(`UPDATE history SET synced_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
				return fmt.Errorf("mark synced %s: %w", id, err)
			}
		}
		return tx.Commit()
	})
}

// MergeRemote applies a record arriving from sync. New ids are inserted
// already marked synced (they came from the server). For existing ids only
// the tombstone may change, and only forward: a tombstone is never cleared,
// and when both sides deleted independently the later deletion timestamp
// wins. A locally deleted record is never resurrected by a pull.
func (db *DB) MergeRemote(rec *models.HistoryRecord) error {
	return db.withWriteLock(func() error {
		var existingDeleted sql.NullTime
		err := db.conn.QueryRow(`SELECT deleted_at FROM history WHERE id = ?`, rec.ID).Scan(&existingDeleted)
		if err == sql.ErrNoRows {
			_, err := db.conn.Exec(`
				INSERT INTO history (id, host_id, timestamp, command, cwd, exit_code, duration, session_id, deleted_at, synced_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			`, rec.ID, rec.HostID, rec.Timestamp.UTC(), rec.Command, rec.Cwd, rec.ExitCode, rec.Duration, rec.SessionID, rec.DeletedAt)
			if err != nil {
				return fmt.Errorf("insert remote record: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup record: %w", err)
		}

		if rec.DeletedAt == nil {
			// Existing row, incoming is live: nothing may change. In
			// particular a local tombstone stands.
			return nil
		}
		if existingDeleted.Valid && !rec.DeletedAt.After(existingDeleted.Time) {
			// Both deleted; the later timestamp is already in place.
			return nil
		}
		_, err = db.conn.Exec(`UPDATE history SET deleted_at = ?, synced_at = CURRENT_TIMESTAMP WHERE id = ?`,
			rec.DeletedAt.UTC(), rec.ID)
		if err != nil {
			return fmt.Errorf("apply remote tombstone: %w", err)
		}
		return nil
	})
}

// Get returns a single record by id.
func (db *DB) Get(id string) (*models.HistoryRecord, error) {
	var rec models.HistoryRecord
	var deletedAt sql.NullTime
	err := db.conn.QueryRow(`
		SELECT id, host_id, timestamp, command, cwd, exit_code, duration, session_id, deleted_at
		FROM history WHERE id = ?
	`, id).Scan(&rec.ID, &rec.HostID, &rec.Timestamp, &rec.Command, &rec.Cwd,
		&rec.ExitCode, &rec.Duration, &rec.SessionID, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	return &rec, nil
}

// List returns live (non-tombstoned) records ordered by timestamp
// descending, capped at limit (0 = no cap).
func (db *DB) List(limit int) ([]models.HistoryRecord, error) {
	query := `
		SELECT local_idx, id, host_id, timestamp, command, cwd, exit_code, duration, session_id, deleted_at
		FROM history WHERE deleted_at IS NULL ORDER BY timestamp DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.HistoryRecord
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, p.Record)
	}
	return recs, rows.Err()
}

// Count returns the number of records, including tombstones, so it is
// comparable with the server-side count.
func (db *DB) Count() (int64, error) {
	var n int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&n)
	return n, err
}

// CountPending returns the number of records awaiting push.
func (db *DB) CountPending() (int64, error) {
	var n int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM history WHERE synced_at IS NULL`).Scan(&n)
	return n, err
}
