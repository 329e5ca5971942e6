package serverdb

// ServerSchemaVersion is the current server database schema version.
const ServerSchemaVersion = 2

const serverSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT UNIQUE NOT NULL,
    email         TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    key_hash     TEXT UNIQUE NOT NULL,
    key_prefix   TEXT NOT NULL,
    created_at   DATETIME NOT NULL,
    last_used_at DATETIME
);

-- Encrypted history log, one row per record per account. The server never
-- sees plaintext: ciphertext, nonce and the host token are opaque.
-- global_seq is allocated per account at insert time and never reassigned.
CREATE TABLE IF NOT EXISTS history (
    user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    id            TEXT NOT NULL,
    host_id_token TEXT NOT NULL,
    ciphertext    BLOB NOT NULL,
    nonce         BLOB NOT NULL,
    version       TEXT NOT NULL,
    global_seq    INTEGER NOT NULL,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    PRIMARY KEY (user_id, id),
    UNIQUE (user_id, global_seq)
);

CREATE INDEX IF NOT EXISTS idx_history_user_seq ON history(user_id, global_seq);

CREATE TABLE IF NOT EXISTS schema_info (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// ServerMigration defines a server database migration.
type ServerMigration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all server migrations in order.
var Migrations = []ServerMigration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add session lookup index by user",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);`,
	},
}
