package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/simon-b/atuin/internal/config"
	"github.com/simon-b/atuin/internal/crypto"
	"github.com/simon-b/atuin/internal/db"
)

// openStore opens the local history database under the configured data dir.
func openStore() (*db.DB, error) {
	dir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	return db.Open(dir)
}

// loadKey derives the encryption key from the configured secret phrase,
// prompting on the terminal when no phrase is configured.
func loadKey() ([]byte, error) {
	phrase := config.SecretPhrase()
	if phrase == "" {
		var err error
		phrase, err = promptSecret("Secret phrase: ")
		if err != nil {
			return nil, err
		}
	}
	return crypto.DeriveKey(phrase)
}

// promptSecret reads a line from the terminal without echo.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// promptLine reads a plain line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// requireSession loads the stored session or fails with a login hint.
func requireSession() (*config.Session, error) {
	s, err := config.LoadSession()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("not logged in (run `atuin login` first)")
	}
	return s, nil
}
