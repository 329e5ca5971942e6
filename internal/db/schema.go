package db

// SchemaVersion is the current local database schema version.
const SchemaVersion = 2

const schema = `
-- History records, plaintext, one row per command execution.
-- local_idx orders records by creation on this machine and drives the
-- push path; id is the sync identity.
CREATE TABLE IF NOT EXISTS history (
    local_idx  INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT UNIQUE NOT NULL,
    host_id    TEXT NOT NULL,
    timestamp  DATETIME NOT NULL,
    command    TEXT NOT NULL,
    cwd        TEXT NOT NULL DEFAULT '',
    exit_code  INTEGER NOT NULL DEFAULT 0,
    duration   BIGINT NOT NULL DEFAULT 0,
    session_id TEXT NOT NULL DEFAULT '',
    deleted_at DATETIME,
    synced_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp);
CREATE INDEX IF NOT EXISTS idx_history_unsynced ON history(synced_at) WHERE synced_at IS NULL;

-- Single-row sync bookkeeping: the push marker and the pull cursor are
-- deliberately separate columns.
CREATE TABLE IF NOT EXISTS sync_state (
    rowid_guard          INTEGER PRIMARY KEY CHECK(rowid_guard = 1),
    last_pushed_idx      BIGINT NOT NULL DEFAULT 0,
    last_pulled_seq      BIGINT NOT NULL DEFAULT 0,
    last_sync_at         DATETIME
);

CREATE TABLE IF NOT EXISTS schema_info (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration defines a local database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all local database migrations in order.
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add session index for per-session history listing",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_id);`,
	},
}
