package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simon-b/atuin/internal/config"
	"github.com/simon-b/atuin/internal/output"
	"github.com/simon-b/atuin/internal/syncclient"
)

var (
	authUsername string
	authEmail    string
)

var registerCmd = &cobra.Command{
	Use:     "register",
	Short:   "Create an account on the sync server",
	GroupID: "account",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := authUsername
		if username == "" {
			var err error
			if username, err = promptLine("Username: "); err != nil {
				return err
			}
		}
		email := authEmail
		if email == "" {
			var err error
			if email, err = promptLine("Email: "); err != nil {
				return err
			}
		}
		password, err := promptSecret("Password: ")
		if err != nil {
			return err
		}

		server := config.SyncAddress()
		client := syncclient.New(server, "")
		resp, err := client.Register(cmd.Context(), username, email, password)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}

		if err := config.SaveSession(&config.Session{
			Session:   resp.Session,
			Username:  resp.Username,
			ServerURL: server,
		}); err != nil {
			return err
		}
		output.Success("Registered and logged in as %s", resp.Username)
		output.Info("Pick a secret phrase and keep it safe: it is the encryption key for your history and never leaves your machines.")
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Log in to the sync server",
	GroupID: "account",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := authUsername
		if username == "" {
			var err error
			if username, err = promptLine("Username: "); err != nil {
				return err
			}
		}
		password, err := promptSecret("Password: ")
		if err != nil {
			return err
		}

		server := config.SyncAddress()
		client := syncclient.New(server, "")
		resp, err := client.Login(cmd.Context(), username, password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		if err := config.SaveSession(&config.Session{
			Session:   resp.Session,
			Username:  resp.Username,
			ServerURL: server,
		}); err != nil {
			return err
		}
		output.Success("Logged in as %s", resp.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Log out and revoke the session",
	GroupID: "account",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := config.LoadSession()
		if err != nil {
			return err
		}
		if session == nil {
			output.Info("Not logged in")
			return nil
		}

		client := syncclient.New(session.ServerURL, session.Session)
		if err := client.Logout(cmd.Context()); err != nil {
			// Revoking server-side is best effort; the local session is
			// dropped either way.
			output.Warning("could not revoke session server-side: %v", err)
		}
		if err := config.ClearSession(); err != nil {
			return err
		}
		output.Success("Logged out")
		return nil
	},
}

var deleteAccountYes bool

var deleteAccountCmd = &cobra.Command{
	Use:     "delete-account",
	Short:   "Delete the server account and all synced history",
	GroupID: "account",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := requireSession()
		if err != nil {
			return err
		}

		if !deleteAccountYes {
			answer, err := promptLine(fmt.Sprintf("Delete account %q and all synced history? (yes/no): ", session.Username))
			if err != nil {
				return err
			}
			if answer != "yes" {
				output.Info("Aborted")
				return nil
			}
		}

		client := syncclient.New(session.ServerURL, session.Session)
		if err := client.DeleteAccount(cmd.Context()); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		if err := config.ClearSession(); err != nil {
			return err
		}
		output.Success("Account deleted (local history kept)")
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVarP(&authUsername, "username", "u", "", "Username")
	registerCmd.Flags().StringVarP(&authEmail, "email", "e", "", "Email address")
	loginCmd.Flags().StringVarP(&authUsername, "username", "u", "", "Username")
	deleteAccountCmd.Flags().BoolVarP(&deleteAccountYes, "yes", "y", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, deleteAccountCmd)
}
