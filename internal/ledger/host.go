// host.go - The kernel host binding note scripts to a pending state delta.
//
// One host spans a whole transaction: the working vault, the per-faucet flow
// totals, and the list of script-created notes accumulate across every
// consumed note, then the ledger checks conservation and policy over the
// completed delta before anything commits.

package ledger

import (
	"errors"
	"fmt"
	"sort"

	"noteswap/internal/felt"
	"noteswap/internal/note"
)

// Host-level execution failures. All reject the enclosing transaction.
var (
	ErrNotAFaucet    = errors.New("ledger: procedure requires a faucet account")
	ErrForeignBurn   = errors.New("ledger: faucet may only burn its own token")
	ErrDoubleReceive = errors.New("ledger: note assets received twice")
	ErrNoCurrentNote = errors.New("ledger: procedure requires a consumed note context")
)

// OutputNote is a note a transaction adds to the ledger. Own outputs carry
// the full note; script-created notes carry only the header the kernel saw.
type OutputNote struct {
	ID        note.NoteID
	Assets    note.NoteAssets
	Metadata  note.NoteMetadata
	Recipient felt.Word
	Full      *note.Note
}

// txHost implements script.Host over one transaction's pending delta. The
// working vault is signed: when one transaction consumes several notes whose
// scripts fund each other's outputs, the balance may dip below zero between
// scripts. Only the final balance must be non-negative.
type txHost struct {
	acct  *Account
	vault map[note.AccountID]int64

	// cur is the note whose script is executing; nil for the custom
	// transaction script.
	cur         *note.Note
	curReceived bool

	inputs      map[note.AccountID]uint64
	received    map[note.AccountID]uint64
	burned      map[note.AccountID]uint64
	withdrawn   uint64
	minted      uint64
	distributed uint64

	created []OutputNote
}

func newTxHost(acct *Account) *txHost {
	vault := make(map[note.AccountID]int64, len(acct.vault))
	for f, v := range acct.vault {
		vault[f] = int64(v)
	}
	return &txHost{
		acct:     acct,
		vault:    vault,
		inputs:   make(map[note.AccountID]uint64),
		received: make(map[note.AccountID]uint64),
		burned:   make(map[note.AccountID]uint64),
	}
}

// beginNote switches the host's consumed-note context and records the note's
// assets as transaction inflow.
func (h *txHost) beginNote(n *note.Note) {
	h.cur = n
	h.curReceived = false
	for _, a := range n.Assets().List() {
		h.inputs[a.Faucet] += a.Amount
	}
}

// endNote leaves consumed-note context before the custom script runs.
func (h *txHost) endNote() {
	h.cur = nil
	h.curReceived = false
}

func (h *txHost) AccountID() felt.Felt { return h.acct.id.Felt() }

func (h *txHost) NoteInputs() []felt.Felt {
	if h.cur == nil {
		return nil
	}
	return h.cur.Recipient().Inputs()
}

func (h *txHost) NoteAssets() []felt.Word {
	if h.cur == nil {
		return nil
	}
	assets := h.cur.Assets().List()
	out := make([]felt.Word, len(assets))
	for i, a := range assets {
		out[i] = a.Word()
	}
	return out
}

func (h *txHost) ReceiveAssets() error {
	if h.cur == nil {
		return ErrNoCurrentNote
	}
	if h.curReceived {
		return ErrDoubleReceive
	}
	h.curReceived = true
	for _, a := range h.cur.Assets().List() {
		h.vault[a.Faucet] += int64(a.Amount)
		h.received[a.Faucet] += a.Amount
	}
	return nil
}

func (h *txHost) Burn(asset felt.Word) error {
	a, err := note.AssetFromWord(asset)
	if err != nil {
		return err
	}
	if !h.acct.IsFaucet() {
		return ErrNotAFaucet
	}
	if a.Faucet != h.acct.id {
		return fmt.Errorf("%w: %s", ErrForeignBurn, a.Faucet)
	}
	h.burned[a.Faucet] += a.Amount
	return nil
}

func (h *txHost) Distribute(amount, tag, aux, noteType, hint felt.Felt, recipient felt.Word) (felt.Felt, error) {
	if !h.acct.IsFaucet() {
		return 0, ErrNotAFaucet
	}
	if amount.Uint64() > felt.MaxAmount {
		return 0, fmt.Errorf("%w: %d", note.ErrAmountTooLarge, amount.Uint64())
	}
	asset, err := note.NewFungibleAsset(h.acct.id, amount.Uint64())
	if err != nil {
		return 0, err
	}
	out, err := h.emit(asset, tag, aux, noteType, hint, recipient)
	if err != nil {
		return 0, err
	}
	h.minted += asset.Amount
	h.distributed += asset.Amount
	return out, nil
}

func (h *txHost) CreateNote(tag, aux, noteType, hint felt.Felt, recipient, asset felt.Word) (felt.Felt, error) {
	a, err := note.AssetFromWord(asset)
	if err != nil {
		return 0, err
	}
	if err := h.withdraw(a); err != nil {
		return 0, err
	}
	return h.emit(a, tag, aux, noteType, hint, recipient)
}

// withdraw funds an output asset. A faucet emitting its own token mints; any
// other asset leaves the working vault, possibly transiently overdrawing it.
func (h *txHost) withdraw(a note.FungibleAsset) error {
	if h.acct.IsFaucet() && a.Faucet == h.acct.id {
		h.minted += a.Amount
		return nil
	}
	h.vault[a.Faucet] -= int64(a.Amount)
	h.withdrawn += a.Amount
	return nil
}

func (h *txHost) emit(a note.FungibleAsset, tag, aux, noteType, hint felt.Felt, recipient felt.Word) (felt.Felt, error) {
	t, err := note.TagFromFelt(tag)
	if err != nil {
		return 0, err
	}
	nt, err := note.NoteTypeFromFelt(noteType)
	if err != nil {
		return 0, err
	}
	eh, err := note.HintFromFelt(hint)
	if err != nil {
		return 0, err
	}
	assets, err := note.NewNoteAssets(a)
	if err != nil {
		return 0, err
	}
	out := OutputNote{
		ID:     note.NoteIDFrom(assets.Commitment(), recipient),
		Assets: assets,
		Metadata: note.NoteMetadata{
			Sender:        h.acct.id,
			NoteType:      nt,
			Tag:           t,
			ExecutionHint: eh,
			Aux:           aux,
		},
		Recipient: recipient,
	}
	idx := felt.New(uint64(len(h.created)))
	h.created = append(h.created, out)
	return idx, nil
}

// addOwnOutput records a fully known output note, funding its assets the
// same way a script-created note is funded. Own outputs are covered by the
// account's signature, so a faucet's own mint is not subject to the
// distribute binding; only max supply caps it.
func (h *txHost) addOwnOutput(n *note.Note) error {
	for _, a := range n.Assets().List() {
		if err := h.withdraw(a); err != nil {
			return err
		}
	}
	h.created = append(h.created, OutputNote{
		ID:        n.ID(),
		Assets:    n.Assets(),
		Metadata:  n.Metadata(),
		Recipient: n.Recipient().Digest().Word(),
		Full:      n,
	})
	return nil
}

// checkConservation verifies that everything consumed was either received or
// burned, and that faucet policy holds.
func (h *txHost) checkConservation() error {
	faucets := make(map[note.AccountID]struct{})
	for f := range h.inputs {
		faucets[f] = struct{}{}
	}
	for f := range h.received {
		faucets[f] = struct{}{}
	}
	for f := range h.burned {
		faucets[f] = struct{}{}
	}
	for f := range faucets {
		if h.inputs[f] != h.received[f]+h.burned[f] {
			return fmt.Errorf("%w: faucet %s consumed %d, received %d, burned %d",
				ErrAssetConservation, f, h.inputs[f], h.received[f], h.burned[f])
		}
	}
	for f, v := range h.vault {
		if v < 0 {
			return fmt.Errorf("%w: %d of %s short", ErrInsufficientVault, -v, f)
		}
	}
	if h.acct.IsFaucet() {
		cfg := h.acct.faucet
		if cfg.BoundDistribute && h.distributed > h.burned[h.acct.id] {
			return fmt.Errorf("%w: distributed %d, burned %d", ErrUnboundDistribute, h.distributed, h.burned[h.acct.id])
		}
		if h.acct.issued+h.minted > cfg.MaxSupply {
			return fmt.Errorf("%w: issued %d + minted %d > cap %d", ErrMaxSupplyExceeded, h.acct.issued, h.minted, cfg.MaxSupply)
		}
	}
	return nil
}

// flowAmounts lists the individual flows behind the totals, in a fixed
// order, for the prover's amount slots.
func (h *txHost) flowAmounts() (ins, outs []uint64) {
	for _, f := range sortedFaucets(h.inputs) {
		ins = append(ins, h.inputs[f])
	}
	if h.withdrawn > 0 {
		ins = append(ins, h.withdrawn)
	}
	for _, f := range sortedFaucets(h.received) {
		outs = append(outs, h.received[f])
	}
	for _, n := range h.created {
		for _, a := range n.Assets.List() {
			outs = append(outs, a.Amount)
		}
	}
	return ins, outs
}

func sortedFaucets(m map[note.AccountID]uint64) []note.AccountID {
	out := make([]note.AccountID, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// summaryTotals reduces the delta to the flow totals a settlement proof
// commits to. Inflow counts consumed notes plus vault withdrawals; outflow
// counts created notes plus vault deposits, so the proof's balance identity
// holds exactly when conservation does.
func (h *txHost) summaryTotals() (in, out, burned, minted uint64) {
	in = h.withdrawn
	for _, v := range h.inputs {
		in += v
	}
	for _, v := range h.received {
		out += v
	}
	for _, n := range h.created {
		for _, a := range n.Assets.List() {
			out += a.Amount
		}
	}
	for _, v := range h.burned {
		burned += v
	}
	return in, out, burned, h.minted
}
