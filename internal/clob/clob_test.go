package clob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"noteswap/internal/felt"
	"noteswap/internal/ledger"
	"noteswap/internal/note"
	"noteswap/internal/transactions/p2id"
	"noteswap/internal/transactions/swap"
	"noteswap/internal/txrequest"
)

var (
	faucetA = note.AccountID(1<<60 | 0xA)
	faucetB = note.AccountID(1<<60 | 0xB)
)

func asset(t *testing.T, faucet note.AccountID, amount uint64) note.FungibleAsset {
	t.Helper()
	a, err := note.NewFungibleAsset(faucet, amount)
	require.NoError(t, err)
	return a
}

func orderNote(t *testing.T, maker note.AccountID, offered, requested note.FungibleAsset, s uint64) *note.Note {
	t.Helper()
	d, err := swap.NewSwapTransactionData(maker, offered, requested)
	require.NoError(t, err)
	n, _, err := swap.BuildSwapNote(d, felt.WordFromUint64(s, 0, 0, 0), felt.WordFromUint64(s, 1, 0, 0))
	require.NoError(t, err)
	return n
}

func TestNewOrderDecodesIntent(t *testing.T) {
	offered := asset(t, faucetA, 10)
	requested := asset(t, faucetB, 20)
	n := orderNote(t, 7, offered, requested, 1)

	o, err := NewOrder(n)
	require.NoError(t, err)
	require.Equal(t, n.ID(), o.ID())
	require.Equal(t, note.AccountID(7), o.Maker)
	require.Equal(t, offered, o.Offered)
	require.Equal(t, requested, o.Requested)
	require.Equal(t, n.Metadata().Tag, o.PairTag)
	require.Equal(t, StateOpen, o.State())
}

func TestNewOrderRejectsForeignNote(t *testing.T) {
	n, err := p2id.MintNote(asset(t, faucetA, 10), 7, note.NoteTypePublic, felt.WordFromUint64(1, 0, 0, 0))
	require.NoError(t, err)
	_, err = NewOrder(n)
	require.Error(t, err)
}

func TestNewOrderRejectsSameAsset(t *testing.T) {
	// BuildSwapNote refuses this pair, so forge the note directly: a swap
	// script whose inputs request the same faucet the note carries.
	offered := asset(t, faucetA, 10)
	requested := asset(t, faucetA, 20)
	inputs := make([]felt.Felt, 0, swap.NumInputs)
	inputs = append(inputs, felt.Word{}.Felts()...)
	inputs = append(inputs, requested.Word().Felts()...)
	inputs = append(inputs, note.TagFromAccountID(7, note.ExecutionModeLocal).Felt(), note.HintAlways().Felt())
	recipient, err := note.NewNoteRecipient(felt.WordFromUint64(1, 0, 0, 0), swap.Script, inputs)
	require.NoError(t, err)
	assets, err := note.NewNoteAssets(offered)
	require.NoError(t, err)
	n, err := note.NewNote(assets, note.NoteMetadata{
		Sender:        7,
		NoteType:      note.NoteTypePublic,
		Tag:           note.TagForSwap(note.NoteTypePublic, offered, requested),
		ExecutionHint: note.HintAlways(),
	}, recipient)
	require.NoError(t, err)

	_, err = NewOrder(n)
	require.ErrorIs(t, err, swap.ErrSameAsset)
}

func TestOrderStateMachine(t *testing.T) {
	fresh := func(t *testing.T) *Order {
		o, err := NewOrder(orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1))
		require.NoError(t, err)
		return o
	}

	t.Run("settlement path", func(t *testing.T) {
		o := fresh(t)
		for _, next := range []OrderState{StateMatched, StateSubmitted, StateSettled} {
			require.NoError(t, o.advance(next))
		}
		// Settled is terminal.
		require.ErrorIs(t, o.advance(StateOpen), ErrBadTransition)
	})
	t.Run("requeue after lost counterpart", func(t *testing.T) {
		o := fresh(t)
		require.NoError(t, o.advance(StateMatched))
		require.NoError(t, o.advance(StateOpen))
		require.Equal(t, StateOpen, o.State())
	})
	t.Run("failure path", func(t *testing.T) {
		o := fresh(t)
		require.NoError(t, o.advance(StateMatched))
		require.NoError(t, o.advance(StateSubmitted))
		require.NoError(t, o.advance(StateFailed))
		// Failed orders return to the book only by explicit resubmission.
		require.ErrorIs(t, o.advance(StateOpen), ErrBadTransition)
	})
	t.Run("no skipping stations", func(t *testing.T) {
		o := fresh(t)
		require.ErrorIs(t, o.advance(StateSettled), ErrBadTransition)
		require.ErrorIs(t, o.advance(StateSubmitted), ErrBadTransition)
	})
}

// provenSwap wraps a swap note in the shape of a maker's proven transaction.
// The proof itself is never checked before the ledger, so the order intake
// paths run without one.
func provenSwap(t *testing.T, n *note.Note) *ledger.ProvenTransaction {
	t.Helper()
	req, err := txrequest.NewBuilder().WithOwnOutputNotes(n).Build()
	require.NoError(t, err)
	return &ledger.ProvenTransaction{
		Transaction: &ledger.Transaction{Account: n.Metadata().Sender, Nonce: 1, Request: req},
	}
}

func TestSubmitOrderBooksProvenSwap(t *testing.T) {
	m := NewMatcher(nil, 99)
	n := orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1)
	ptx := provenSwap(t, n)

	o, err := m.SubmitOrder(ptx)
	require.NoError(t, err)
	require.Equal(t, n.ID(), o.ID())
	require.Same(t, ptx, o.MakerTx)
	require.Equal(t, StateOpen, o.State())

	got, err := m.Book().Get(n.ID())
	require.NoError(t, err)
	require.Same(t, o, got)
}

func TestSubmitOrderRequiresMakerTransaction(t *testing.T) {
	m := NewMatcher(nil, 99)

	_, err := m.SubmitOrder(nil)
	require.ErrorIs(t, err, ErrNoMakerTransaction)

	_, err = m.SubmitOrder(&ledger.ProvenTransaction{})
	require.ErrorIs(t, err, ErrNoMakerTransaction)

	// A transaction creating anything but exactly the swap note is not an
	// order.
	a := orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1)
	b := orderNote(t, 7, asset(t, faucetA, 11), asset(t, faucetB, 22), 2)
	req, err := txrequest.NewBuilder().WithOwnOutputNotes(a, b).Build()
	require.NoError(t, err)
	_, err = m.SubmitOrder(&ledger.ProvenTransaction{Transaction: &ledger.Transaction{Request: req}})
	require.Error(t, err)
}

func TestSettleRequiresMakerTransactions(t *testing.T) {
	m := NewMatcher(nil, 99)
	bid, err := NewOrder(orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1))
	require.NoError(t, err)
	ask, err := NewOrder(orderNote(t, 8, asset(t, faucetB, 20), asset(t, faucetA, 10), 2))
	require.NoError(t, err)
	require.NoError(t, m.Book().Add(bid))
	require.NoError(t, m.Book().Add(ask))

	match := m.Book().MatchOne()
	require.NotNil(t, match)

	// Without both proven transactions nothing can reach the chain; the
	// match stays where it is instead of moving toward failed.
	_, err = m.Settle(context.Background(), match)
	require.ErrorIs(t, err, ErrNoMakerTransaction)
	require.Equal(t, StateMatched, bid.State())
	require.Equal(t, StateMatched, ask.State())
}

func TestBookAddAndGet(t *testing.T) {
	b := NewBook()
	o, err := NewOrder(orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1))
	require.NoError(t, err)

	require.NoError(t, b.Add(o))
	require.ErrorIs(t, b.Add(o), ErrDuplicateOrder)

	got, err := b.Get(o.ID())
	require.NoError(t, err)
	require.Same(t, o, got)

	_, err = b.Get(note.NoteID{})
	require.ErrorIs(t, err, ErrUnknownOrder)
}

func TestBookOpenListing(t *testing.T) {
	b := NewBook()
	open, err := NewOrder(orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1))
	require.NoError(t, err)
	matched, err := NewOrder(orderNote(t, 8, asset(t, faucetA, 5), asset(t, faucetB, 5), 2))
	require.NoError(t, err)
	require.NoError(t, matched.advance(StateMatched))
	require.NoError(t, b.Add(open))
	require.NoError(t, b.Add(matched))

	listed := b.Open()
	require.Len(t, listed, 1)
	require.Same(t, open, listed[0])
}

func TestMatchOne(t *testing.T) {
	t.Run("amounts must mirror exactly", func(t *testing.T) {
		b := NewBook()
		bid, _ := NewOrder(orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1))
		skew, _ := NewOrder(orderNote(t, 8, asset(t, faucetB, 25), asset(t, faucetA, 10), 2))
		require.NoError(t, b.Add(bid))
		require.NoError(t, b.Add(skew))
		require.Nil(t, b.MatchOne())
	})
	t.Run("same direction never crosses", func(t *testing.T) {
		b := NewBook()
		one, _ := NewOrder(orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1))
		two, _ := NewOrder(orderNote(t, 8, asset(t, faucetA, 10), asset(t, faucetB, 20), 2))
		require.NoError(t, b.Add(one))
		require.NoError(t, b.Add(two))
		require.Nil(t, b.MatchOne())
	})
	t.Run("mirrors cross once", func(t *testing.T) {
		b := NewBook()
		bid, _ := NewOrder(orderNote(t, 7, asset(t, faucetA, 10), asset(t, faucetB, 20), 1))
		ask, _ := NewOrder(orderNote(t, 8, asset(t, faucetB, 20), asset(t, faucetA, 10), 2))
		require.NoError(t, b.Add(bid))
		require.NoError(t, b.Add(ask))

		m := b.MatchOne()
		require.NotNil(t, m)
		require.Equal(t, StateMatched, m.Bid.State())
		require.Equal(t, StateMatched, m.Ask.State())
		// Matched orders leave the open set; nothing crosses twice.
		require.Empty(t, b.Open())
		require.Nil(t, b.MatchOne())
	})
}
