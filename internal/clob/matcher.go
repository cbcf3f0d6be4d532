// matcher.go - The settlement orchestrator.
//
// Makers execute and prove their swap transactions locally but never submit
// them; they hand the proven transactions to the matcher off-chain. The
// matcher crosses mirrored orders and settles each match as one sequence:
// both makers' transactions go on chain first, then a single proven matcher
// transaction consumes both swap notes unauthenticated. The swap scripts
// fund each other's paybacks, so the matcher's own vault nets to zero on
// every settle.

package clob

import (
	"context"
	"errors"
	"fmt"

	"noteswap/internal/client"
	"noteswap/internal/ledger"
	"noteswap/internal/note"
	"noteswap/internal/txrequest"
)

// ErrNoMakerTransaction reports an order or settlement attempt without the
// maker's proven swap transaction.
var ErrNoMakerTransaction = errors.New("clob: order carries no proven maker transaction")

// Matcher runs the off-chain match / on-chain settle loop for one account.
type Matcher struct {
	client  *client.Client
	account note.AccountID
	book    *Book
}

// NewMatcher binds a matcher to its client and settlement account.
func NewMatcher(c *client.Client, account note.AccountID) *Matcher {
	return &Matcher{client: c, account: account, book: NewBook()}
}

// Book exposes the matcher's order book.
func (m *Matcher) Book() *Book { return m.book }

// SubmitOrder accepts a maker's proven swap transaction handed over
// off-chain and books the swap note it creates. The transaction must create
// exactly that note; it reaches the chain only when the order settles.
func (m *Matcher) SubmitOrder(ptx *ledger.ProvenTransaction) (*Order, error) {
	if ptx == nil || ptx.Transaction == nil || ptx.Transaction.Request == nil {
		return nil, ErrNoMakerTransaction
	}
	outputs := ptx.Transaction.Request.OwnOutputNotes()
	if len(outputs) != 1 {
		return nil, fmt.Errorf("clob: maker transaction creates %d notes, want the swap note", len(outputs))
	}
	o, err := NewOrder(outputs[0])
	if err != nil {
		return nil, err
	}
	o.MakerTx = ptx
	if err := m.book.Add(o); err != nil {
		return nil, err
	}
	return o, nil
}

// Settle puts both makers' proven transactions on chain, then consumes both
// swap notes in one proven matcher transaction. The swap notes go in
// unauthenticated, so settlement does not wait for their blocks.
func (m *Matcher) Settle(ctx context.Context, match *Match) ([]ledger.OutputNote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if match.Bid.MakerTx == nil || match.Ask.MakerTx == nil {
		return nil, ErrNoMakerTransaction
	}
	if err := match.Bid.advance(StateSubmitted); err != nil {
		return nil, err
	}
	if err := match.Ask.advance(StateSubmitted); err != nil {
		return nil, err
	}
	fail := func(err error) ([]ledger.OutputNote, error) {
		if aerr := match.Bid.advance(StateFailed); aerr != nil {
			err = errors.Join(err, aerr)
		}
		if aerr := match.Ask.advance(StateFailed); aerr != nil {
			err = errors.Join(err, aerr)
		}
		return nil, err
	}

	// The swap notes exist nowhere but in these transactions until now.
	if _, err := m.client.RelayProvenTransaction(match.Bid.MakerTx); err != nil {
		return fail(fmt.Errorf("clob: relaying bid transaction: %w", err))
	}
	if _, err := m.client.RelayProvenTransaction(match.Ask.MakerTx); err != nil {
		return fail(fmt.Errorf("clob: relaying ask transaction: %w", err))
	}

	req, err := txrequest.NewBuilder().
		WithUnauthenticatedInputNotes(match.Bid.SwapNote, match.Ask.SwapNote).
		Build()
	if err != nil {
		return fail(fmt.Errorf("clob: building settlement: %w", err))
	}
	tx, err := m.client.NewTransaction(m.account, req)
	if err != nil {
		return fail(fmt.Errorf("clob: signing settlement: %w", err))
	}
	ptx, err := m.client.ProveTransaction(tx)
	if err != nil {
		return fail(fmt.Errorf("clob: proving settlement: %w", err))
	}
	outputs, err := m.client.SubmitProvenTransaction(ptx)
	if err != nil {
		return fail(fmt.Errorf("clob: settlement rejected: %w", err))
	}
	if err := match.Bid.advance(StateSettled); err != nil {
		return outputs, err
	}
	if err := match.Ask.advance(StateSettled); err != nil {
		return outputs, err
	}
	return outputs, nil
}

// Step crosses and settles at most one match. Reports whether it settled
// anything.
func (m *Matcher) Step(ctx context.Context) (bool, error) {
	match := m.book.MatchOne()
	if match == nil {
		return false, nil
	}
	if _, err := m.Settle(ctx, match); err != nil {
		return false, err
	}
	return true, nil
}
