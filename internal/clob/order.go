// order.go - One side of the matcher's book.
//
// An order is a maker's proven swap transaction handed over off-chain plus
// the intent decoded from the swap note it creates. The state machine only
// ever moves forward; an illegal transition is a programming error in the
// orchestrator and is reported, not tolerated.

package clob

import (
	"errors"
	"fmt"

	"noteswap/internal/ledger"
	"noteswap/internal/note"
	"noteswap/internal/transactions/swap"
)

// OrderState is one station in an order's life.
type OrderState string

const (
	// StateOpen means the swap note is on the book awaiting a counterpart.
	StateOpen OrderState = "open"
	// StateMatched means a counterpart was found; settlement not yet sent.
	StateMatched OrderState = "matched"
	// StateSubmitted means the settlement transaction is with the ledger.
	StateSubmitted OrderState = "submitted"
	// StateSettled means the ledger accepted the settlement; the payback
	// note exists and the maker can claim it.
	StateSettled OrderState = "settled"
	// StateFailed means settlement was rejected; the swap note is still
	// live on chain and the order returns to the book only explicitly.
	StateFailed OrderState = "failed"
)

var transitions = map[OrderState][]OrderState{
	StateOpen:      {StateMatched},
	StateMatched:   {StateSubmitted, StateOpen},
	StateSubmitted: {StateSettled, StateFailed},
}

// ErrBadTransition reports an illegal state change.
var ErrBadTransition = errors.New("clob: illegal order transition")

// Order is a swap note on the book. MakerTx is the maker's proven swap
// transaction, executed but never submitted by the maker; the matcher
// submits it as part of settlement.
type Order struct {
	SwapNote  *note.Note
	Maker     note.AccountID
	Offered   note.FungibleAsset
	Requested note.FungibleAsset
	PairTag   note.NoteTag
	MakerTx   *ledger.ProvenTransaction

	state OrderState
}

// NewOrder decodes a handed-over swap note into an open order. The note must
// honor the swap input contract and carry exactly the offered asset.
func NewOrder(swapNote *note.Note) (*Order, error) {
	assets := swapNote.Assets().List()
	if len(assets) != 1 {
		return nil, fmt.Errorf("clob: swap note %s carries %d assets, want 1", swapNote.ID(), len(assets))
	}
	_, requested, _, err := swap.DecodePaybackDetails(swapNote)
	if err != nil {
		return nil, fmt.Errorf("clob: rejecting order: %w", err)
	}
	offered := assets[0]
	if offered.Faucet == requested.Faucet {
		return nil, swap.ErrSameAsset
	}
	return &Order{
		SwapNote:  swapNote,
		Maker:     swapNote.Metadata().Sender,
		Offered:   offered,
		Requested: requested,
		PairTag:   swapNote.Metadata().Tag,
		state:     StateOpen,
	}, nil
}

// ID returns the order's identity, which is its swap note's id.
func (o *Order) ID() note.NoteID { return o.SwapNote.ID() }

// State returns the order's current station.
func (o *Order) State() OrderState { return o.state }

// advance moves the order to next, validating the transition.
func (o *Order) advance(next OrderState) error {
	for _, allowed := range transitions[o.state] {
		if next == allowed {
			o.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s for order %s", ErrBadTransition, o.state, next, o.ID())
}

// counterpart reports whether two orders are exact mirrors of each other.
func (o *Order) counterpart(p *Order) bool {
	return o.Offered == p.Requested && o.Requested == p.Offered
}
