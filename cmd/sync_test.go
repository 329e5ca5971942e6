package cmd

import (
	"testing"
	"time"
)

func TestAutoSyncDue(t *testing.T) {
	t.Setenv("ATUIN_CONFIG_DIR", t.TempDir())
	t.Setenv("ATUIN_SYNC_INTERVAL", "10m")

	now := time.Now()
	recent := now.Add(-time.Minute)
	stale := now.Add(-time.Hour)

	t.Setenv("ATUIN_AUTO_SYNC", "false")
	if autoSyncDue(nil, now) {
		t.Error("due with auto sync disabled")
	}

	t.Setenv("ATUIN_AUTO_SYNC", "true")
	if !autoSyncDue(nil, now) {
		t.Error("not due on a never-synced store")
	}
	if autoSyncDue(&recent, now) {
		t.Error("due inside the configured interval")
	}
	if !autoSyncDue(&stale, now) {
		t.Error("not due past the configured interval")
	}
}
