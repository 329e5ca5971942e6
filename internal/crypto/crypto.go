// Package crypto provides the end-to-end encryption primitives for history
// sync: Argon2id key derivation from a secret phrase, AES-256-GCM record
// encryption, and opaque host token derivation. The server only ever sees
// the outputs of this package.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/simon-b/atuin/internal/models"
)

const (
	// keyLen is the AES-256 key length in bytes.
	keyLen = 32
	// nonceLen is the GCM nonce length in bytes.
	nonceLen = 12

	// kdfSalt is a fixed application salt so the same secret phrase derives
	// the same key on every machine. Changing it breaks interop with all
	// existing payloads, hence the version suffix.
	kdfSalt = "atuin-history-key-v1"

	// hostTokenInfo namespaces the host token HMAC.
	hostTokenInfo = "atuin-host-token"

	// Argon2id parameters. Fixed constants: every client must derive the
	// same key from the same phrase.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Sentinel errors for decrypt failures. Callers must distinguish
// authentication failures from decode failures: the former means tampering,
// corruption, or a wrong key and is never safe to ignore.
var (
	ErrAuthenticationFailed = errors.New("payload authentication failed")
	ErrDecode               = errors.New("payload did not decode as a history record")
	ErrUnsupportedVersion   = errors.New("unsupported encryption version")
	ErrKeyDerivation        = errors.New("key derivation failed")
)

// DeriveKey derives a 256-bit encryption key from a user-chosen secret
// phrase using Argon2id with fixed parameters and a fixed salt context.
// The same phrase always yields the same key.
func DeriveKey(secretPhrase string) ([]byte, error) {
	if secretPhrase == "" {
		return nil, fmt.Errorf("%w: empty secret phrase", ErrKeyDerivation)
	}
	salt := sha256.Sum256([]byte(kdfSalt))
	key := argon2.IDKey([]byte(secretPhrase), salt[:], argonTime, argonMemory, argonThreads, keyLen)
	return key, nil
}

// KeyFingerprint returns a short hex digest of the key, safe to display for
// comparing keys across machines.
func KeyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// Encrypt seals a history record into an envelope payload: canonical JSON,
// AES-256-GCM, fresh random nonce per call. The returned envelope carries
// the current scheme version and the opaque host token; GlobalSeq is zero.
func Encrypt(key []byte, record *models.HistoryRecord) (*models.Envelope, error) {
	if len(key) != keyLen {
		return nil, errors.New("key must be 32 bytes")
	}

	plaintext, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("random nonce: %w", err)
	}

	return &models.Envelope{
		ID:         record.ID,
		HostToken:  HostToken(key, record.HostID),
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
		Nonce:      nonce,
		Version:    models.EncryptionVersion,
	}, nil
}

// Decrypt opens an envelope payload produced by Encrypt. It dispatches on
// the scheme version and returns ErrUnsupportedVersion for versions it does
// not know, ErrAuthenticationFailed when tag verification fails, and
// ErrDecode when the verified plaintext does not parse as a record.
func Decrypt(key []byte, env *models.Envelope) (*models.HistoryRecord, error) {
	if len(key) != keyLen {
		return nil, errors.New("key must be 32 bytes")
	}

	switch env.Version {
	case models.EncryptionVersion:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, env.Version)
	}

	if len(env.Nonce) != nonceLen {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrAuthenticationFailed, len(env.Nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	var record models.HistoryRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if record.ID == "" {
		return nil, fmt.Errorf("%w: missing record id", ErrDecode)
	}

	return &record, nil
}

// HostToken derives the opaque per-host identifier sent to the server in
// place of the raw host ID. It is stable for a given key and host, so the
// server can order records per host without learning hostnames.
func HostToken(key []byte, hostID string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(hostTokenInfo))
	mac.Write([]byte(hostID))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}
