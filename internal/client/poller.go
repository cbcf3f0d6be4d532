// poller.go - Bounded polling for note confirmation.
//
// AwaitNote keeps asking the node for a note until it appears, the policy's
// timeout elapses, or the context is cancelled. Every probe reconciles the
// local view, so expected notes materialize and nonces catch up while the
// caller waits. Only the absence of the note is retried; any other node
// failure is final on the first occurrence.

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"noteswap/internal/ledger"
	"noteswap/internal/note"
)

// ErrAwaitTimeout reports a note that never appeared within the policy's
// timeout. The note may still land later; the caller decides whether to
// keep waiting with a fresh call.
var ErrAwaitTimeout = errors.New("client: timed out waiting for note")

// Clock abstracts time for the poller so tests drive it synthetically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// RetryPolicy bounds one await: total budget and per-probe spacing.
type RetryPolicy struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultRetryPolicy suits an in-process node with block production driven
// by the test or demo itself.
var DefaultRetryPolicy = RetryPolicy{Timeout: 30 * time.Second, Interval: 500 * time.Millisecond}

// AwaitNote polls until the note is visible on chain, then imports it into
// the store and reports the local record. Between probes the client syncs,
// so a note that completes through an expected-note registration lands in
// the store even when the chain only ever shows its header.
func (c *Client) AwaitNote(ctx context.Context, id note.NoteID, policy RetryPolicy) (NoteRecord, error) {
	deadline := c.clock.Now().Add(policy.Timeout)
	for {
		rec, err := c.node.GetNote(id)
		if err == nil {
			return c.importVisible(rec)
		}
		if !errors.Is(err, ledger.ErrNoteNotFoundOnChain) {
			return NoteRecord{}, err
		}
		if _, err := c.SyncState(); err != nil {
			return NoteRecord{}, err
		}
		if !c.clock.Now().Add(policy.Interval).Before(deadline) {
			return NoteRecord{}, fmt.Errorf("%w: %s after %s", ErrAwaitTimeout, id, policy.Timeout)
		}
		select {
		case <-ctx.Done():
			return NoteRecord{}, ctx.Err()
		case <-c.clock.After(policy.Interval):
		}
	}
}

// importVisible folds a chain record the poller just fetched into the store
// and runs one closing sync before handing the tracked record back.
func (c *Client) importVisible(rec ledger.NoteRecord) (NoteRecord, error) {
	if rec.Output.Full != nil {
		status := StatusCommitted
		if rec.Consumed {
			status = StatusConsumed
		}
		nr := NoteRecord{Note: rec.Output.Full, Tag: rec.Output.Metadata.Tag, Status: status}
		if err := c.store.PutNote(nr); err != nil {
			return NoteRecord{}, err
		}
	}
	if _, err := c.SyncState(); err != nil {
		return NoteRecord{}, err
	}
	return c.store.GetNote(rec.Output.ID)
}
