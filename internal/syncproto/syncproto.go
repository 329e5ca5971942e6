// Package syncproto defines the wire types exchanged between the sync
// client and server, plus structural validation. No business logic lives
// here: handlers and the engine interpret the fields.
package syncproto

import (
	"errors"
	"fmt"
)

// Policy constants. These are tuning knobs, not part of the wire contract:
// has_more pagination keeps clients correct whatever the server's page cap.
const (
	// MaxBatchSize caps the number of envelopes in one push request.
	MaxBatchSize = 100

	// MaxPageLimit caps the number of records in one pull page.
	MaxPageLimit = 1000

	// DefaultPageLimit is used when a pull request omits limit.
	DefaultPageLimit = 100

	// MaxCiphertextLen bounds a single encrypted payload (raw bytes,
	// pre-base64). Shell commands are small; anything near this is junk.
	MaxCiphertextLen = 1 << 20

	// NonceLen is the exact AES-GCM nonce length on the wire.
	NonceLen = 12
)

var (
	// ErrMalformedPayload reports a structurally invalid request body.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrPayloadTooLarge reports a batch or envelope over the size policy.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// EnvelopeInput is one encrypted record as pushed by a client. Ciphertext
// and Nonce travel base64-encoded via encoding/json's []byte handling.
type EnvelopeInput struct {
	ID          string `json:"id"`
	HostIDToken string `json:"host_id_token"`
	Ciphertext  []byte `json:"ciphertext"`
	Nonce       []byte `json:"nonce"`
	Version     string `json:"version"`
}

// PushRequest is the body of POST /history.
type PushRequest struct {
	Records []EnvelopeInput `json:"records"`
}

// PushResponse acknowledges a stored batch. Batches are all-or-nothing, so
// the ack lists every id from the request once the whole batch is durable.
type PushResponse struct {
	AckedIDs []string `json:"acked_ids"`
}

// SyncedRecord is one envelope on the pull path, carrying the server
// sequence number the cursor is built on.
type SyncedRecord struct {
	EnvelopeInput
	GlobalSeq int64 `json:"global_seq"`
}

// PullResponse is the body of GET /history. MaxGlobalSeq is the account's
// current high-water mark regardless of the requested window; clients use
// it to detect a server that has lost state.
type PullResponse struct {
	Records      []SyncedRecord `json:"records"`
	HasMore      bool           `json:"has_more"`
	MaxGlobalSeq int64          `json:"max_global_seq"`
}

// CountResponse is the body of GET /history/count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ValidateEnvelope checks structural well-formedness of one envelope.
func ValidateEnvelope(e *EnvelopeInput) error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedPayload)
	}
	if e.HostIDToken == "" {
		return fmt.Errorf("%w: missing host_id_token", ErrMalformedPayload)
	}
	if e.Version == "" {
		return fmt.Errorf("%w: missing version", ErrMalformedPayload)
	}
	if len(e.Ciphertext) == 0 {
		return fmt.Errorf("%w: empty ciphertext", ErrMalformedPayload)
	}
	if len(e.Ciphertext) > MaxCiphertextLen {
		return fmt.Errorf("%w: ciphertext %d bytes", ErrPayloadTooLarge, len(e.Ciphertext))
	}
	if len(e.Nonce) != NonceLen {
		return fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrMalformedPayload, NonceLen, len(e.Nonce))
	}
	return nil
}

// ValidatePush checks a full push batch.
func ValidatePush(req *PushRequest) error {
	if len(req.Records) == 0 {
		return fmt.Errorf("%w: empty batch", ErrMalformedPayload)
	}
	if len(req.Records) > MaxBatchSize {
		return fmt.Errorf("%w: batch of %d exceeds %d", ErrPayloadTooLarge, len(req.Records), MaxBatchSize)
	}
	for i := range req.Records {
		if err := ValidateEnvelope(&req.Records[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// ClampLimit normalizes a client-supplied page limit to policy bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
