package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/simon-b/atuin/internal/config"
	"github.com/simon-b/atuin/internal/crypto"
	"github.com/simon-b/atuin/internal/db"
	"github.com/simon-b/atuin/internal/output"
	"github.com/simon-b/atuin/internal/sync"
	"github.com/simon-b/atuin/internal/syncclient"
)

var syncInterval time.Duration

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Sync history with the server",
	GroupID: "sync",
	Long: `Push new local history to the server and pull what other machines
have recorded. With --interval, keeps syncing until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := requireSession()
		if err != nil {
			return err
		}
		key, err := loadKey()
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		hostID, err := config.HostID()
		if err != nil {
			return err
		}

		client := syncclient.New(session.ServerURL, session.Session)
		engine := sync.New(store, client, key, hostID)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := runCycle(ctx, engine); err != nil {
			return err
		}
		if syncInterval <= 0 {
			return nil
		}

		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := runCycle(ctx, engine); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					// Transport hiccups are retried on the next tick;
					// cursor corruption is not survivable here.
					if errors.Is(err, sync.ErrSyncCursorInvalid) {
						return err
					}
					output.Warning("sync failed, retrying in %s: %v", syncInterval, err)
				}
			}
		}
	},
}

// maybeAutoSync runs one quiet cycle after a local write when auto sync
// is enabled and the last cycle is older than the configured interval.
// Requires a stored session and a configured secret phrase; never prompts.
func maybeAutoSync(ctx context.Context, store *db.DB) {
	state, err := store.GetSyncState()
	if err != nil || !autoSyncDue(state.LastSyncAt, time.Now()) {
		return
	}
	session, err := config.LoadSession()
	if err != nil || session == nil {
		return
	}
	phrase := config.SecretPhrase()
	if phrase == "" {
		return
	}
	key, err := crypto.DeriveKey(phrase)
	if err != nil {
		return
	}
	hostID, err := config.HostID()
	if err != nil {
		return
	}

	client := syncclient.New(session.ServerURL, session.Session)
	engine := sync.New(store, client, key, hostID)
	if _, err := engine.Sync(ctx); err != nil {
		output.Warning("auto sync failed: %v", err)
	}
}

// autoSyncDue reports whether a background cycle should run now.
func autoSyncDue(lastSync *time.Time, now time.Time) bool {
	if !config.AutoSyncEnabled() {
		return false
	}
	return lastSync == nil || now.Sub(*lastSync) >= config.SyncInterval()
}

func runCycle(ctx context.Context, engine *sync.Engine) error {
	report, err := engine.Sync(ctx)
	if err != nil {
		return err
	}
	output.Success("Synced: %d pushed, %d pulled", report.Pushed, report.Pulled)
	for _, id := range report.Skipped {
		output.Warning("could not decrypt record %s (wrong key?), skipped", id)
	}
	return nil
}

func init() {
	syncCmd.Flags().DurationVarP(&syncInterval, "interval", "i", 0, "Keep syncing on this interval (0 = once)")
	rootCmd.AddCommand(syncCmd)
}
