package db

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncState holds the two independent sync markers. LastPushedIdx is the
// highest local index acknowledged by the server; LastPulledSeq is the
// highest server sequence merged locally. They advance independently.
type SyncState struct {
	LastPushedIdx int64
	LastPulledSeq int64
	LastSyncAt    *time.Time
}

// GetSyncState returns the current markers. Both start at zero on a fresh
// store.
func (db *DB) GetSyncState() (*SyncState, error) {
	var st SyncState
	var lastSync sql.NullTime
	err := db.conn.QueryRow(`
		SELECT last_pushed_idx, last_pulled_seq, last_sync_at FROM sync_state WHERE rowid_guard = 1
	`).Scan(&st.LastPushedIdx, &st.LastPulledSeq, &lastSync)
	if err == sql.ErrNoRows {
		return &SyncState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync state: %w", err)
	}
	if lastSync.Valid {
		t := lastSync.Time
		st.LastSyncAt = &t
	}
	return &st, nil
}

// SetPushedIdx advances the pushed marker. The marker never moves backward.
func (db *DB) SetPushedIdx(idx int64) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO sync_state (rowid_guard, last_pushed_idx, last_sync_at)
			VALUES (1, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(rowid_guard) DO UPDATE SET
				last_pushed_idx = MAX(last_pushed_idx, excluded.last_pushed_idx),
				last_sync_at = excluded.last_sync_at
		`, idx)
		if err != nil {
			return fmt.Errorf("set pushed marker: %w", err)
		}
		return nil
	})
}

// SetPulledSeq advances the pull cursor. The cursor never moves backward.
func (db *DB) SetPulledSeq(seq int64) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO sync_state (rowid_guard, last_pulled_seq, last_sync_at)
			VALUES (1, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(rowid_guard) DO UPDATE SET
				last_pulled_seq = MAX(last_pulled_seq, excluded.last_pulled_seq),
				last_sync_at = excluded.last_sync_at
		`, seq)
		if err != nil {
			return fmt.Errorf("set pull cursor: %w", err)
		}
		return nil
	})
}

// ResetSyncState zeroes both markers. Used when pointing the client at a
// fresh server account.
func (db *DB) ResetSyncState() error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			UPDATE sync_state SET last_pushed_idx = 0, last_pulled_seq = 0, last_sync_at = NULL
			WHERE rowid_guard = 1
		`)
		if err != nil {
			return fmt.Errorf("reset sync state: %w", err)
		}
		_, err = db.conn.Exec(`UPDATE history SET synced_at = NULL`)
		if err != nil {
			return fmt.Errorf("reset synced flags: %w", err)
		}
		return nil
	})
}
