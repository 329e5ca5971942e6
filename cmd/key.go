package cmd

import (
	"github.com/spf13/cobra"

	"github.com/simon-b/atuin/internal/crypto"
	"github.com/simon-b/atuin/internal/output"
)

var keyCmd = &cobra.Command{
	Use:     "key",
	Short:   "Show the encryption key fingerprint",
	GroupID: "sync",
	Long: `Derive the encryption key from the secret phrase and print its
fingerprint. Matching fingerprints on two machines mean they share the
same key; the key itself is never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := loadKey()
		if err != nil {
			return err
		}
		output.Info("Key fingerprint: %s", crypto.KeyFingerprint(key))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
}
