// Package e2e exercises the full sync path: real HTTP server, real sqlite
// stores on both ends, multiple clients under one account.
package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/simon-b/atuin/internal/api"
	"github.com/simon-b/atuin/internal/crypto"
	"github.com/simon-b/atuin/internal/db"
	"github.com/simon-b/atuin/internal/models"
	"github.com/simon-b/atuin/internal/serverdb"
	"github.com/simon-b/atuin/internal/sync"
	"github.com/simon-b/atuin/internal/syncclient"
)

// Harness runs one server instance and hands out clients bound to it.
type Harness struct {
	t          *testing.T
	Server     *httptest.Server
	ServerDB   *serverdb.ServerDB
	serverPath string
	key        []byte
}

// Client is one simulated machine: its own local store and engine.
type Client struct {
	HostID string
	Store  *db.DB
	Engine *sync.Engine
}

// NewHarness starts the API server over a file-backed server database so
// raw inspection can open it independently.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	serverPath := filepath.Join(t.TempDir(), "server.db")
	store, err := serverdb.Open(serverPath)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv, err := api.NewServer(api.LoadConfig(), store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	key, err := crypto.DeriveKey("e2e shared secret phrase")
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}

	return &Harness{t: t, Server: ts, ServerDB: store, serverPath: serverPath, key: key}
}

// Register creates an account through the HTTP API and returns its session key.
func (h *Harness) Register(username string) string {
	h.t.Helper()
	client := syncclient.New(h.Server.URL, "")
	resp, err := client.Register(context.Background(), username, username+"@example.com", "correct-horse-battery")
	if err != nil {
		h.t.Fatalf("register %s: %v", username, err)
	}
	return resp.Session
}

// NewClient creates a machine logged in with the given session key.
func (h *Harness) NewClient(hostID, session string) *Client {
	h.t.Helper()
	store, err := db.Open(h.t.TempDir())
	if err != nil {
		h.t.Fatalf("open client store: %v", err)
	}
	h.t.Cleanup(func() { store.Close() })

	transport := syncclient.New(h.Server.URL, session)
	return &Client{
		HostID: hostID,
		Store:  store,
		Engine: sync.New(store, transport, h.key, hostID),
	}
}

// Run executes a shell command on the client, i.e. records it locally.
func (c *Client) Run(t *testing.T, command string) *models.HistoryRecord {
	t.Helper()
	rec := &models.HistoryRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		HostID:    c.HostID,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Command:   command,
		Cwd:       "/home/e2e",
		SessionID: "e2e-session",
	}
	if err := c.Store.Append(rec); err != nil {
		t.Fatalf("append on %s: %v", c.HostID, err)
	}
	return rec
}

// Sync runs one cycle and fails the test on error.
func (c *Client) Sync(t *testing.T) *sync.CycleReport {
	t.Helper()
	report, err := c.Engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync on %s: %v", c.HostID, err)
	}
	return report
}

// RawServerDB opens the server database file directly for inspection,
// independent of the server's own connection.
func (h *Harness) RawServerDB() *sql.DB {
	h.t.Helper()
	raw, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", h.serverPath))
	if err != nil {
		h.t.Fatalf("open raw server db: %v", err)
	}
	h.t.Cleanup(func() { raw.Close() })
	return raw
}
