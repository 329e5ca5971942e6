package sync

import (
	"github.com/simon-b/atuin/internal/models"
	"github.com/simon-b/atuin/internal/syncproto"
)

// envelopeFromWire converts a pulled wire record into the crypto layer's
// envelope form.
func envelopeFromWire(r *syncproto.SyncedRecord) *models.Envelope {
	return &models.Envelope{
		ID:         r.ID,
		HostToken:  r.HostIDToken,
		Ciphertext: r.Ciphertext,
		Nonce:      r.Nonce,
		Version:    r.Version,
		GlobalSeq:  r.GlobalSeq,
	}
}
