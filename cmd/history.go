package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/simon-b/atuin/internal/config"
	"github.com/simon-b/atuin/internal/models"
	"github.com/simon-b/atuin/internal/output"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Record and inspect shell history",
	GroupID: "history",
}

var (
	addExitCode int
	addCwd      string
	addSession  string
	addDuration time.Duration
)

var historyAddCmd = &cobra.Command{
	Use:   "add [command...]",
	Short: "Record an executed command",
	Args:  cobra.MinimumNArgs(1),
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

		rec := &models.HistoryRecord{
			ID:        uuid.Must(uuid.NewV7()).String(),
			HostID:    hostID,
			Timestamp: time.Now().UTC(),
			Command:   strings.Join(args, " "),
			Cwd:       addCwd,
			ExitCode:  addExitCode,
			Duration:  int64(addDuration),
			SessionID: addSession,
		}
		if err := store.Append(rec); err != nil {
			return fmt.Errorf("record command: %w", err)
		}
		maybeAutoSync(cmd.Context(), store)
		return nil
	},
}

var (
	listLimit   int
	listSession string
	listJSON    bool
)

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded history, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.List(listLimit)
		if err != nil {
			return err
		}
		if listSession != "" {
			filtered := recs[:0]
			for _, r := range recs {
				if r.SessionID == listSession {
					filtered = append(filtered, r)
				}
			}
			recs = filtered
		}

		if listJSON {
			return output.JSON(recs)
		}
		for i := range recs {
			fmt.Println(output.HistoryLine(&recs[i]))
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a history record",
	Long: `Delete a history record by id.

The record becomes a tombstone: it disappears from listings and the
deletion propagates to other machines on the next sync.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.MarkDeleted(args[0], time.Now().UTC()); err != nil {
			return err
		}
		output.Success("Deleted %s", args[0])
		return nil
	},
}

func init() {
	historyAddCmd.Flags().IntVarP(&addExitCode, "exit", "e", 0, "Exit code of the command")
	historyAddCmd.Flags().StringVarP(&addCwd, "cwd", "c", "", "Working directory")
	historyAddCmd.Flags().StringVarP(&addSession, "session", "s", "", "Shell session id")
	historyAddCmd.Flags().DurationVarP(&addDuration, "duration", "d", 0, "How long the command ran")

	historyListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum records to show (0 = all)")
	historyListCmd.Flags().StringVarP(&listSession, "session", "s", "", "Only show one shell session")
	historyListCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	historyCmd.AddCommand(historyAddCmd, historyListCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}
