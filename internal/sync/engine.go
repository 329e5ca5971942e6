// Package sync implements the client-side sync cycle: push new local
// records as encrypted envelopes, then pull and merge the account's
// remote log. The engine owns the two durable markers (last pushed local
// index, last pulled global sequence) and guarantees one cycle at a time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/simon-b/atuin/internal/crypto"
	"github.com/simon-b/atuin/internal/db"
	"github.com/simon-b/atuin/internal/syncproto"
)

// ErrSyncCursorInvalid reports a server whose sequence high-water mark is
// below the stored pull cursor. That means the server lost state (for
// example a restore from backup); the engine refuses to guess and never
// resets the cursor on its own.
var ErrSyncCursorInvalid = errors.New("sync cursor ahead of server state")

// Transport is the network surface the engine drives. syncclient.Client
// implements it; tests substitute in-memory fakes.
type Transport interface {
	Push(ctx context.Context, req *syncproto.PushRequest) (*syncproto.PushResponse, error)
	Pull(ctx context.Context, since int64, limit int) (*syncproto.PullResponse, error)
}

// CycleReport summarizes one completed sync cycle.
type CycleReport struct {
	Pushed  int
	Pulled  int
	Skipped []string // record ids that failed to decrypt and were left behind
}

// Engine runs sync cycles against one local store and one account.
type Engine struct {
	mu        sync.Mutex
	store     *db.DB
	transport Transport
	key       []byte
	hostID    string

	batchSize int
	pageSize  int
}

// New creates an Engine. The key is the derived encryption key; hostID is
// this machine's persistent identity.
func New(store *db.DB, transport Transport, key []byte, hostID string) *Engine {
	return &Engine{
		store:     store,
		transport: transport,
		key:       key,
		hostID:    hostID,
		batchSize: syncproto.MaxBatchSize,
		pageSize:  syncproto.DefaultPageLimit,
	}
}

// Sync runs one full push-then-pull cycle. Cycles never overlap: a second
// caller blocks until the first finishes. Cancellation is honored between
// batches and pages; a batch or page is the atomic unit of progress, so a
// cancelled cycle leaves the markers at their last acknowledged position.
func (e *Engine) Sync(ctx context.Context) (*CycleReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := &CycleReport{}
	if err := e.push(ctx, report); err != nil {
		return report, err
	}
	if err := e.pull(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

// push sends unsynced local records in bounded batches, advancing the
// pushed marker only through server-acknowledged ids.
func (e *Engine) push(ctx context.Context, report *CycleReport) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, err := e.store.GetSyncState()
		if err != nil {
			return fmt.Errorf("read sync state: %w", err)
		}

		pending, err := e.store.RecordsSince(state.LastPushedIdx, e.batchSize)
		if err != nil {
			return fmt.Errorf("read pending records: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}

		req := &syncproto.PushRequest{Records: make([]syncproto.EnvelopeInput, 0, len(pending))}
		byID := make(map[string]db.PendingRecord, len(pending))
		for _, p := range pending {
			env, err := crypto.Encrypt(e.key, &p.Record)
			if err != nil {
				return fmt.Errorf("encrypt %s: %w", p.Record.ID, err)
			}
			req.Records = append(req.Records, syncproto.EnvelopeInput{
				ID:          env.ID,
				HostIDToken: env.HostToken,
				Ciphertext:  env.Ciphertext,
				Nonce:       env.Nonce,
				Version:     env.Version,
			})
			byID[p.Record.ID] = p
		}

		resp, err := e.transport.Push(ctx, req)
		if err != nil {
			return fmt.Errorf("push batch: %w", err)
		}

		ackSet := make(map[string]bool, len(resp.AckedIDs))
		for _, id := range resp.AckedIDs {
			if _, ok := byID[id]; ok {
				ackSet[id] = true
			}
		}
		if len(ackSet) == 0 {
			return fmt.Errorf("push batch: server acknowledged none of %d records", len(pending))
		}

		// Acked records are durable server-side whatever their position,
		// so they are all marked synced. The marker is different: it moves
		// only through the contiguous acked prefix of the batch, because a
		// record above the marker with an unacked record below it would
		// fall out of the push window forever.
		acked := make([]string, 0, len(ackSet))
		var prefixIdx int64
		prefixLen := 0
		for _, p := range pending {
			if !ackSet[p.Record.ID] {
				break
			}
			prefixIdx = p.LocalIdx
			prefixLen++
		}
		for id := range ackSet {
			acked = append(acked, id)
		}

		if err := e.store.MarkSynced(acked); err != nil {
			return fmt.Errorf("mark synced: %w", err)
		}
		if prefixLen > 0 {
			if err := e.store.SetPushedIdx(prefixIdx); err != nil {
				return fmt.Errorf("advance pushed marker: %w", err)
			}
		}
		report.Pushed += len(acked)

		if len(acked) < len(pending) {
			// Partial ack: stop rather than skip past the gap. The next
			// cycle re-sends from the marker.
			return fmt.Errorf("push batch: server acknowledged %d of %d records", len(acked), len(pending))
		}
	}
}

// pull pages through the remote log from the stored cursor, merging each
// fully received page before advancing the cursor.
func (e *Engine) pull(ctx context.Context, report *CycleReport) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, err := e.store.GetSyncState()
		if err != nil {
			return fmt.Errorf("read sync state: %w", err)
		}
		cursor := state.LastPulledSeq

		resp, err := e.transport.Pull(ctx, cursor, e.pageSize)
		if err != nil {
			return fmt.Errorf("pull page: %w", err)
		}

		if resp.MaxGlobalSeq < cursor {
			return fmt.Errorf("%w: cursor %d, server max %d", ErrSyncCursorInvalid, cursor, resp.MaxGlobalSeq)
		}

		if len(resp.Records) == 0 {
			return nil
		}

		pageMax := cursor
		for i := range resp.Records {
			r := &resp.Records[i]
			if r.GlobalSeq > pageMax {
				pageMax = r.GlobalSeq
			}

			rec, err := crypto.Decrypt(e.key, envelopeFromWire(r))
			if err != nil {
				// One corrupt or foreign-key record must not block the
				// rest of the account.
				report.Skipped = append(report.Skipped, r.ID)
				continue
			}
			if err := e.store.MergeRemote(rec); err != nil {
				return fmt.Errorf("merge %s: %w", rec.ID, err)
			}
			report.Pulled++
		}

		// The whole page is merged; now the cursor may move.
		if err := e.store.SetPulledSeq(pageMax); err != nil {
			return fmt.Errorf("advance pull cursor: %w", err)
		}

		if !resp.HasMore {
			return nil
		}
	}
}
