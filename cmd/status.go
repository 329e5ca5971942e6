package cmd

import (
	"github.com/spf13/cobra"

	"github.com/simon-b/atuin/internal/config"
	"github.com/simon-b/atuin/internal/output"
	"github.com/simon-b/atuin/internal/syncclient"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show local store and sync state",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		hostID, err := config.HostID()
		if err != nil {
			return err
		}

		count, err := store.Count()
		if err != nil {
			return err
		}
		pending, err := store.CountPending()
		if err != nil {
			return err
		}
		state, err := store.GetSyncState()
		if err != nil {
			return err
		}

		output.Header("Local")
		output.KV("Host", "%s", hostID)
		output.KV("Records", "%d (%d awaiting push)", count, pending)
		if state.LastSyncAt != nil {
			output.KV("Last sync", "%s", state.LastSyncAt.Local().Format("2006-01-02 15:04:05"))
		} else {
			output.KV("Last sync", "never")
		}
		output.KV("Pull cursor", "%d", state.LastPulledSeq)

		session, err := config.LoadSession()
		if err != nil {
			return err
		}
		output.Header("Server")
		if session == nil {
			output.KV("Account", "not logged in")
			return nil
		}
		output.KV("Account", "%s", session.Username)
		output.KV("Address", "%s", session.ServerURL)

		client := syncclient.New(session.ServerURL, session.Session)
		serverCount, err := client.Count(cmd.Context())
		if err != nil {
			output.Warning("could not reach server: %v", err)
			return nil
		}
		output.KV("Records", "%d", serverCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
