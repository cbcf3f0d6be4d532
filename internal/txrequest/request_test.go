package txrequest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"noteswap/internal/felt"
	"noteswap/internal/note"
	"noteswap/internal/script"
)

var noop = script.MustCompile([]script.Instruction{
	script.Push(felt.New(1)),
	{Op: script.OpDrop},
})

func buildNote(t *testing.T, amount uint64, serial felt.Word) *note.Note {
	t.Helper()
	var seed [32]byte
	seed[0] = 3
	faucet := note.AccountIDFromSeed(seed, felt.Hash([]byte("faucet")), note.KindFaucet)
	asset, err := note.NewFungibleAsset(faucet, amount)
	require.NoError(t, err)
	assets, err := note.NewNoteAssets(asset)
	require.NoError(t, err)
	recipient, err := note.NewNoteRecipient(serial, noop, nil)
	require.NoError(t, err)
	n, err := note.NewNote(assets, note.NoteMetadata{
		Sender:        faucet,
		NoteType:      note.NoteTypePublic,
		Tag:           note.TagFromAccountID(faucet, note.ExecutionModeLocal),
		ExecutionHint: note.HintAlways(),
	}, recipient)
	require.NoError(t, err)
	return n
}

func TestBuildRejectsEmptyRequest(t *testing.T) {
	_, err := NewBuilder().Build()
	require.ErrorIs(t, err, ErrEmptyRequest)

	// Expected notes alone have no execution effect.
	n := buildNote(t, 1, felt.WordFromUint64(1, 0, 0, 0))
	_, err = NewBuilder().
		WithExpectedFutureNotes(ExpectedNote{Details: n.Details(), Tag: n.Metadata().Tag}).
		Build()
	require.ErrorIs(t, err, ErrEmptyRequest)

	// A custom script alone is a valid request.
	r, err := NewBuilder().WithCustomScript(noop).Build()
	require.NoError(t, err)
	require.NotNil(t, r.CustomScript())
}

func TestBuildRejectsDuplicateInputs(t *testing.T) {
	n := buildNote(t, 1, felt.WordFromUint64(1, 0, 0, 0))

	_, err := NewBuilder().WithInputNotes(n.ID(), n.ID()).Build()
	require.ErrorIs(t, err, ErrDuplicateInput)

	// The same note by id and in full is still a double consumption.
	_, err = NewBuilder().
		WithInputNotes(n.ID()).
		WithUnauthenticatedInputNotes(n).
		Build()
	require.ErrorIs(t, err, ErrDuplicateInput)
}

func TestBuilderRegistrationFailures(t *testing.T) {
	_, err := NewBuilder().WithOwnOutputNotes(nil).Build()
	require.ErrorIs(t, err, ErrNilNote)

	_, err = NewBuilder().WithUnauthenticatedInputNotes(nil).Build()
	require.ErrorIs(t, err, ErrNilNote)

	n := buildNote(t, 1, felt.WordFromUint64(1, 0, 0, 0))
	_, err = NewBuilder().
		WithOwnOutputNotes(n).
		WithExpectedFutureNotes(ExpectedNote{Details: n.Details()}).
		Build()
	require.ErrorIs(t, err, ErrUntaggedExpected)

	// The first failure sticks even when later registrations are fine.
	_, err = NewBuilder().
		WithOwnOutputNotes(nil).
		WithOwnOutputNotes(n).
		Build()
	require.ErrorIs(t, err, ErrNilNote)
}

func TestRequestSurvivesWire(t *testing.T) {
	a := buildNote(t, 1, felt.WordFromUint64(1, 0, 0, 0))
	b := buildNote(t, 2, felt.WordFromUint64(2, 0, 0, 0))
	c := buildNote(t, 3, felt.WordFromUint64(3, 0, 0, 0))

	r, err := NewBuilder().
		WithInputNotes(a.ID()).
		WithUnauthenticatedInputNotes(b).
		WithOwnOutputNotes(c).
		WithExpectedFutureNotes(ExpectedNote{Details: a.Details(), Tag: a.Metadata().Tag}).
		WithCustomScript(noop).
		Build()
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	var decoded TransactionRequest
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Everything a signature covers must come back identically: input ids,
	// reconstructed note ids, and the recompiled script root.
	require.Equal(t, r.InputNoteIDs(), decoded.InputNoteIDs())
	require.Equal(t, b.ID(), decoded.UnauthenticatedInputNotes()[0].ID())
	require.Equal(t, c.ID(), decoded.OwnOutputNotes()[0].ID())
	require.Equal(t, c.Recipient().Digest(), decoded.OwnOutputNotes()[0].Recipient().Digest())
	require.Len(t, decoded.ExpectedFutureNotes(), 1)
	require.Equal(t, a.Details().ID(), decoded.ExpectedFutureNotes()[0].Details.ID())
	require.Equal(t, noop.Root(), decoded.CustomScript().Root())
}

func TestRequestIsolation(t *testing.T) {
	a := buildNote(t, 1, felt.WordFromUint64(1, 0, 0, 0))
	b := buildNote(t, 2, felt.WordFromUint64(2, 0, 0, 0))

	r, err := NewBuilder().
		WithInputNotes(a.ID()).
		WithOwnOutputNotes(b).
		WithExpectedFutureNotes(ExpectedNote{Details: a.Details(), Tag: a.Metadata().Tag}).
		Build()
	require.NoError(t, err)

	// Accessors hand out copies; mutating them must not reach the request.
	ids := r.InputNoteIDs()
	ids[0] = note.NoteID{}
	require.Equal(t, a.ID(), r.InputNoteIDs()[0])

	outs := r.OwnOutputNotes()
	outs[0] = nil
	require.NotNil(t, r.OwnOutputNotes()[0])

	require.Len(t, r.ExpectedFutureNotes(), 1)
	require.Nil(t, r.CustomScript())
}
