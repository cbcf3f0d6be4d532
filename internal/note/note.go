// note.go - The note: an immutable, script-bearing unit of value transfer.
//
// A note bundles assets, metadata, and a recipient. Its identity is the
// digest of its contents: two notes with identical contents are the same
// note from the ledger's perspective. The recipient digest, not the tag,
// gates consumption.

package note

import (
	"encoding/json"
	"errors"
	"fmt"

	"noteswap/internal/felt"
	"noteswap/internal/script"
)

// NoteType is the note's storage visibility on chain.
type NoteType uint8

const (
	NoteTypePublic NoteType = iota + 1
	NoteTypePrivate
	NoteTypeEncrypted
)

func (t NoteType) String() string {
	switch t {
	case NoteTypePublic:
		return "public"
	case NoteTypePrivate:
		return "private"
	case NoteTypeEncrypted:
		return "encrypted"
	}
	return fmt.Sprintf("note-type(%d)", uint8(t))
}

// Felt returns the type's stack encoding.
func (t NoteType) Felt() felt.Felt { return felt.New(uint64(t)) }

// NoteTypeFromFelt validates a stack-encoded note type.
func NoteTypeFromFelt(f felt.Felt) (NoteType, error) {
	t := NoteType(f.Uint64())
	if t < NoteTypePublic || t > NoteTypeEncrypted {
		return 0, fmt.Errorf("unknown note type %d", f.Uint64())
	}
	return t, nil
}

// Execution hint kinds.
const (
	hintAlways     uint64 = 1
	hintAfterBlock uint64 = 2
)

// NoteExecutionHint is the scheduling condition under which a note becomes
// eligible for consumption.
type NoteExecutionHint struct {
	Kind    uint64 `json:"kind"`
	Payload uint64 `json:"payload,omitempty"`
}

// HintAlways makes the note consumable immediately.
func HintAlways() NoteExecutionHint { return NoteExecutionHint{Kind: hintAlways} }

// HintAfterBlock makes the note consumable once the chain reaches height h.
func HintAfterBlock(h uint32) NoteExecutionHint {
	return NoteExecutionHint{Kind: hintAfterBlock, Payload: uint64(h)}
}

// Felt packs the hint into one field element: kind in the low byte, payload
// above it.
func (h NoteExecutionHint) Felt() felt.Felt {
	return felt.New(h.Kind | h.Payload<<8)
}

// HintFromFelt unpacks a stack-encoded hint.
func HintFromFelt(f felt.Felt) (NoteExecutionHint, error) {
	kind := f.Uint64() & 0xFF
	if kind != hintAlways && kind != hintAfterBlock {
		return NoteExecutionHint{}, fmt.Errorf("unknown execution hint kind %d", kind)
	}
	return NoteExecutionHint{Kind: kind, Payload: f.Uint64() >> 8}, nil
}

// ConsumableAt reports whether the hint allows consumption at the given
// chain height.
func (h NoteExecutionHint) ConsumableAt(height uint32) bool {
	if h.Kind == hintAfterBlock {
		return uint64(height) >= h.Payload
	}
	return true
}

// NoteMetadata describes who sent a note and how it is routed.
type NoteMetadata struct {
	Sender        AccountID         `json:"sender"`
	NoteType      NoteType          `json:"note_type"`
	Tag           NoteTag           `json:"tag"`
	ExecutionHint NoteExecutionHint `json:"execution_hint"`
	Aux           felt.Felt         `json:"aux"`
}

// NoteRecipient is the consumption gate of a note: whoever can reproduce
// its digest (serial, script, inputs) can consume the note as intended.
type NoteRecipient struct {
	serial felt.Word
	script *script.Script
	inputs []felt.Felt

	digest felt.Digest
}

// ErrNilScript rejects recipients built without a script.
var ErrNilScript = errors.New("note recipient requires a script")

// NewNoteRecipient builds a recipient from a serial number (the
// unlinkability salt), a compiled script, and the script's inputs.
func NewNoteRecipient(serial felt.Word, s *script.Script, inputs []felt.Felt) (NoteRecipient, error) {
	if s == nil {
		return NoteRecipient{}, ErrNilScript
	}
	in := make([]felt.Felt, len(inputs))
	copy(in, inputs)
	r := NoteRecipient{serial: serial, script: s, inputs: in}
	r.digest = computeRecipientDigest(serial, s.Root(), in)
	return r, nil
}

func computeRecipientDigest(serial felt.Word, scriptRoot felt.Digest, inputs []felt.Felt) felt.Digest {
	inputsCommitment := felt.HashFelts(inputs...)
	return felt.Hash(serial.Bytes(), scriptRoot[:], inputsCommitment[:])
}

// Serial returns the recipient's serial number.
func (r NoteRecipient) Serial() felt.Word { return r.serial }

// Script returns the recipient's compiled script.
func (r NoteRecipient) Script() *script.Script { return r.script }

// Inputs returns a copy of the recipient's script inputs.
func (r NoteRecipient) Inputs() []felt.Felt {
	out := make([]felt.Felt, len(r.inputs))
	copy(out, r.inputs)
	return out
}

// InputsCommitment hashes the recipient's inputs.
func (r NoteRecipient) InputsCommitment() felt.Digest { return felt.HashFelts(r.inputs...) }

// Digest returns the recipient digest gating consumption.
func (r NoteRecipient) Digest() felt.Digest { return r.digest }

type recipientJSON struct {
	Serial [4]uint64      `json:"serial"`
	Script *script.Script `json:"script"`
	Inputs []uint64       `json:"inputs"`
}

// MarshalJSON encodes the recipient with its full preimage. Sharing this
// value shares the ability to consume the note as intended.
func (r NoteRecipient) MarshalJSON() ([]byte, error) {
	raw := recipientJSON{Script: r.script}
	for i, f := range r.serial {
		raw.Serial[i] = f.Uint64()
	}
	raw.Inputs = make([]uint64, len(r.inputs))
	for i, f := range r.inputs {
		raw.Inputs[i] = f.Uint64()
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes and recompiles a recipient.
func (r *NoteRecipient) UnmarshalJSON(data []byte) error {
	var raw recipientJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Script == nil {
		return ErrNilScript
	}
	compiled, err := script.Compile(raw.Script.Instructions)
	if err != nil {
		return err
	}
	var serial felt.Word
	for i, v := range raw.Serial {
		serial[i] = felt.New(v)
	}
	inputs := make([]felt.Felt, len(raw.Inputs))
	for i, v := range raw.Inputs {
		inputs[i] = felt.New(v)
	}
	got, err := NewNoteRecipient(serial, compiled, inputs)
	if err != nil {
		return err
	}
	*r = got
	return nil
}

// NoteID identifies a note on the ledger.
type NoteID = felt.Digest

// Note is the immutable unit of transfer.
type Note struct {
	assets    NoteAssets
	metadata  NoteMetadata
	recipient NoteRecipient

	id NoteID
}

// NewNote assembles a note and fixes its identity.
func NewNote(assets NoteAssets, metadata NoteMetadata, recipient NoteRecipient) (*Note, error) {
	if assets.Len() == 0 {
		return nil, ErrEmptyAssets
	}
	if recipient.script == nil {
		return nil, ErrNilScript
	}
	n := &Note{assets: assets, metadata: metadata, recipient: recipient}
	n.id = computeNoteID(assets, recipient)
	return n, nil
}

// The note id covers assets and recipient only: the consuming party does not
// control metadata (the eventual sender may be a counterparty), yet must be
// able to predict the id of an expected future note from its details.
func computeNoteID(assets NoteAssets, recipient NoteRecipient) NoteID {
	return NoteIDFrom(assets.Commitment(), recipient.Digest().Word())
}

// NoteIDFrom computes a note id from the assets commitment and the word form
// of the recipient digest. Scripts hand recipients to the kernel as words, so
// header-only notes carry exactly these two values.
func NoteIDFrom(assetsCommitment felt.Digest, recipient felt.Word) NoteID {
	return felt.Hash(assetsCommitment[:], recipient.Bytes())
}

// ID returns the note's ledger identity.
func (n *Note) ID() NoteID { return n.id }

// Assets returns the note's asset bundle.
func (n *Note) Assets() NoteAssets { return n.assets }

// Metadata returns the note's metadata.
func (n *Note) Metadata() NoteMetadata { return n.metadata }

// Recipient returns the note's recipient.
func (n *Note) Recipient() NoteRecipient { return n.recipient }

// Details strips the note to what a counterparty pre-registers: assets and
// recipient, no metadata.
func (n *Note) Details() NoteDetails {
	return NoteDetails{Assets: n.assets, Recipient: n.recipient}
}

type noteJSON struct {
	Assets    NoteAssets    `json:"assets"`
	Metadata  NoteMetadata  `json:"metadata"`
	Recipient NoteRecipient `json:"recipient"`
}

// MarshalJSON encodes the full note.
func (n Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(noteJSON{Assets: n.assets, Metadata: n.metadata, Recipient: n.recipient})
}

// UnmarshalJSON decodes a note and recomputes its identity.
func (n *Note) UnmarshalJSON(data []byte) error {
	var raw noteJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	got, err := NewNote(raw.Assets, raw.Metadata, raw.Recipient)
	if err != nil {
		return err
	}
	*n = *got
	return nil
}
