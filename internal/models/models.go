package models

import (
	"time"
)

// EncryptionVersion identifies the current payload encryption scheme.
// Decrypt dispatches on this value; unknown versions are rejected.
const EncryptionVersion = "v1"

// HistoryRecord is a single shell command execution. Once created, the ID
// and core fields never change; only DeletedAt transitions from nil to a
// timestamp, exactly once.
type HistoryRecord struct {
	ID        string     `json:"id"`
	HostID    string     `json:"host_id"`
	Timestamp time.Time  `json:"timestamp"`
	Command   string     `json:"command"`
	Cwd       string     `json:"cwd"`
	ExitCode  int        `json:"exit_code"`
	Duration  int64      `json:"duration"` // nanoseconds
	SessionID string     `json:"session_id"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the record carries a tombstone.
func (r *HistoryRecord) Deleted() bool {
	return r.DeletedAt != nil
}

// Envelope is the server-side representation of a record: opaque ciphertext
// plus the minimal metadata sync needs. GlobalSeq is assigned by the server
// and is zero until then.
type Envelope struct {
	ID         string
	HostToken  string
	Ciphertext []byte
	Nonce      []byte
	Version    string
	GlobalSeq  int64
}
