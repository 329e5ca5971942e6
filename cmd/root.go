// Package cmd implements the atuin CLI: history capture, sync, and
// account management.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var version string

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "atuin",
	Short: "Encrypted shell history sync",
	Long: `atuin - shell history with end-to-end encrypted sync.

Commands are recorded into a local store and synced between machines as
encrypted blobs. The server never sees plaintext.`,
}

// Execute runs the root command
func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "history", Title: "History Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "account", Title: "Account Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("account")
	rootCmd.SetCompletionCommandGroupID("account")
}
