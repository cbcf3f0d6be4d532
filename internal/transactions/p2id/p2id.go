// p2id.go - Pay-to-id: the standard note pattern locking a note to one
// target account.
//
// The script is the same for every p2id note; the target account id travels
// in the note inputs and is asserted against the executing account at
// consumption time. Unlinkability across notes comes from the serial number
// in the recipient, not from the script.

package p2id

import (
	"fmt"

	"noteswap/internal/felt"
	"noteswap/internal/note"
	"noteswap/internal/script"
	"noteswap/internal/txrequest"
)

// Script is the shared pay-to-id program: exactly one input (the target
// account id), which must equal the executing account, then the note's
// assets move into the executing account's vault.
var Script = script.MustCompile([]script.Instruction{
	script.Call(script.ProcGetInputs),
	script.Push(felt.New(1)),
	{Op: script.OpAssertEq},
	script.MemLoad(felt.New(script.InputsAddr)),
	script.Call(script.ProcAccountID),
	{Op: script.OpAssertEq},
	script.Call(script.ProcReceiveAssets),
})

// BuildRecipient derives the p2id recipient for a target account and serial
// number. Deterministic given the same serial; distinct digests across
// fresh serials.
func BuildRecipient(target note.AccountID, serial felt.Word) (note.NoteRecipient, error) {
	return note.NewNoteRecipient(serial, Script, []felt.Felt{target.Felt()})
}

// MintNote builds the note a faucet emits when minting an asset for target.
func MintNote(asset note.FungibleAsset, target note.AccountID, noteType note.NoteType, serial felt.Word) (*note.Note, error) {
	recipient, err := BuildRecipient(target, serial)
	if err != nil {
		return nil, err
	}
	assets, err := note.NewNoteAssets(asset)
	if err != nil {
		return nil, err
	}
	return note.NewNote(assets, note.NoteMetadata{
		Sender:        asset.Faucet,
		NoteType:      noteType,
		Tag:           note.TagFromAccountID(target, note.ExecutionModeLocal),
		ExecutionHint: note.HintAlways(),
	}, recipient)
}

// MintRequest builds the faucet-side request minting asset to target.
func MintRequest(asset note.FungibleAsset, target note.AccountID, noteType note.NoteType, serial felt.Word) (*txrequest.TransactionRequest, error) {
	n, err := MintNote(asset, target, noteType, serial)
	if err != nil {
		return nil, fmt.Errorf("mint request: %w", err)
	}
	return txrequest.NewBuilder().WithOwnOutputNotes(n).Build()
}

// ConsumeRequest builds the recipient-side request consuming the given
// notes into the executing account's vault.
func ConsumeRequest(notes ...*note.Note) (*txrequest.TransactionRequest, error) {
	ids := make([]note.NoteID, len(notes))
	for i, n := range notes {
		if n == nil {
			return nil, txrequest.ErrNilNote
		}
		ids[i] = n.ID()
	}
	return txrequest.NewBuilder().WithInputNotes(ids...).Build()
}
