// swap.go - In-flight swaps: the intermediary note behind the off-chain
// match / on-chain settle protocol.
//
// A party locks its offered asset in a swap note whose script, when the
// matcher consumes it, reconstructs a payback note carrying the requested
// asset back to the party. The matcher triggers the exchange but never owns
// either side of it.

package swap

import (
	"errors"
	"fmt"

	"noteswap/internal/felt"
	"noteswap/internal/note"
	"noteswap/internal/script"
	"noteswap/internal/transactions/p2id"
	"noteswap/internal/txrequest"
)

// NumInputs is the swap script's input contract: 4 felts of payback
// recipient digest, 4 of requested asset, the payback tag, and the
// execution hint. The script asserts the count before reading any of them.
const NumInputs = 10

// Input layout offsets relative to script.InputsAddr.
const (
	inputRecipientOff = 0
	inputAssetOff     = 4
	inputTagOff       = 8
	inputHintOff      = 9
)

// ErrSameAsset rejects swaps of a token for itself.
var ErrSameAsset = errors.New("swap offers and requests the same faucet's asset")

// Script is the shared swap-intermediary program: assert the 10-input
// contract, take the offered asset into the consumer's vault, then emit the
// payback note carrying the requested asset from that same vault.
var Script = script.MustCompile([]script.Instruction{
	script.Call(script.ProcGetInputs),
	script.Push(felt.New(NumInputs)),
	{Op: script.OpAssertEq},
	script.Call(script.ProcReceiveAssets),
	// create_note pops [tag, aux, note_type, hint, RECIPIENT, ASSET]; push
	// order is the reverse.
	script.MemLoadWord(felt.New(script.InputsAddr + inputAssetOff)),
	script.MemLoadWord(felt.New(script.InputsAddr + inputRecipientOff)),
	script.MemLoad(felt.New(script.InputsAddr + inputHintOff)),
	script.Push(note.NoteTypePublic.Felt()),
	script.Push(felt.New(0)),
	script.MemLoad(felt.New(script.InputsAddr + inputTagOff)),
	script.Call(script.ProcCreateNote),
	{Op: script.OpDrop},
})

// SwapTransactionData is the declarative intent behind an atomic swap,
// independent of the note encoding.
type SwapTransactionData struct {
	Account   note.AccountID     `json:"account"`
	Offered   note.FungibleAsset `json:"offered"`
	Requested note.FungibleAsset `json:"requested"`
}

// NewSwapTransactionData validates a swap intent.
func NewSwapTransactionData(account note.AccountID, offered, requested note.FungibleAsset) (SwapTransactionData, error) {
	if offered.Faucet == requested.Faucet {
		return SwapTransactionData{}, ErrSameAsset
	}
	return SwapTransactionData{Account: account, Offered: offered, Requested: requested}, nil
}

// Tag returns the discovery tag matchers scan for this asset pair.
func (d SwapTransactionData) Tag() note.NoteTag {
	return note.TagForSwap(note.NoteTypePublic, d.Offered, d.Requested)
}

// BuildSwapNote encodes a swap intent into the intermediary note plus the
// expected payback note the initiator pre-registers. serial salts the swap
// note, paybackSerial the payback recipient.
func BuildSwapNote(d SwapTransactionData, serial, paybackSerial felt.Word) (*note.Note, txrequest.ExpectedNote, error) {
	paybackRecipient, err := p2id.BuildRecipient(d.Account, paybackSerial)
	if err != nil {
		return nil, txrequest.ExpectedNote{}, err
	}
	paybackTag := note.TagFromAccountID(d.Account, note.ExecutionModeLocal)
	hint := note.HintAlways()

	inputs := make([]felt.Felt, 0, NumInputs)
	inputs = append(inputs, paybackRecipient.Digest().Word().Felts()...)
	inputs = append(inputs, d.Requested.Word().Felts()...)
	inputs = append(inputs, paybackTag.Felt(), hint.Felt())

	recipient, err := note.NewNoteRecipient(serial, Script, inputs)
	if err != nil {
		return nil, txrequest.ExpectedNote{}, err
	}
	offered, err := note.NewNoteAssets(d.Offered)
	if err != nil {
		return nil, txrequest.ExpectedNote{}, err
	}
	swapNote, err := note.NewNote(offered, note.NoteMetadata{
		Sender:        d.Account,
		NoteType:      note.NoteTypePublic,
		Tag:           d.Tag(),
		ExecutionHint: hint,
	}, recipient)
	if err != nil {
		return nil, txrequest.ExpectedNote{}, err
	}

	requested, err := note.NewNoteAssets(d.Requested)
	if err != nil {
		return nil, txrequest.ExpectedNote{}, err
	}
	expected := txrequest.ExpectedNote{
		Details: note.NoteDetails{Assets: requested, Recipient: paybackRecipient},
		Tag:     paybackTag,
	}
	return swapNote, expected, nil
}

// InFlightSwapRequest builds the initiator's request: create the swap note
// from the initiator's vault and pre-register the payback note it will
// later claim.
func InFlightSwapRequest(d SwapTransactionData, serial, paybackSerial felt.Word) (*txrequest.TransactionRequest, error) {
	swapNote, expected, err := BuildSwapNote(d, serial, paybackSerial)
	if err != nil {
		return nil, fmt.Errorf("in-flight swap request: %w", err)
	}
	return txrequest.NewBuilder().
		WithOwnOutputNotes(swapNote).
		WithExpectedFutureNotes(expected).
		Build()
}

// DecodePaybackDetails reads a swap note's inputs back into the payback
// note description. Fails fast when the 10-input contract is violated.
func DecodePaybackDetails(swapNote *note.Note) (recipient felt.Word, requested note.FungibleAsset, tag note.NoteTag, err error) {
	inputs := swapNote.Recipient().Inputs()
	if len(inputs) != NumInputs {
		return felt.Word{}, note.FungibleAsset{}, 0,
			fmt.Errorf("swap note %s carries %d inputs, want %d", swapNote.ID(), len(inputs), NumInputs)
	}
	copy(recipient[:], inputs[inputRecipientOff:inputRecipientOff+4])
	var assetWord felt.Word
	copy(assetWord[:], inputs[inputAssetOff:inputAssetOff+4])
	requested, err = note.AssetFromWord(assetWord)
	if err != nil {
		return felt.Word{}, note.FungibleAsset{}, 0, err
	}
	tag, err = note.TagFromFelt(inputs[inputTagOff])
	if err != nil {
		return felt.Word{}, note.FungibleAsset{}, 0, err
	}
	return recipient, requested, tag, nil
}
