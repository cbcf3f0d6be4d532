// request.go - Immutable transaction requests and their builder.
//
// A request declares what a transaction will do: notes to consume (by id or,
// for notes learned off-chain, in full and unauthenticated), notes to create
// in full, notes expected to appear later created by a counterparty, and an
// optional custom transaction script. Built once, validated once, then
// handed to execution unchanged.

package txrequest

import (
	"encoding/json"
	"errors"
	"fmt"

	"noteswap/internal/note"
	"noteswap/internal/script"
)

// Request construction failures. Fatal for the request; nothing registered
// on a builder is ever silently dropped.
var (
	ErrEmptyRequest     = errors.New("transaction request has no inputs, outputs, or script effect")
	ErrDuplicateInput   = errors.New("note consumed twice in one request")
	ErrNilNote          = errors.New("nil note registered on request builder")
	ErrUntaggedExpected = errors.New("expected future note registered without a tag")
)

// ExpectedNote pre-registers a note this transaction does not create but the
// builder's sync should recognize once a counterparty creates it.
type ExpectedNote struct {
	Details note.NoteDetails `json:"details"`
	Tag     note.NoteTag     `json:"tag"`
}

// TransactionRequest is the immutable, validated output of the builder.
type TransactionRequest struct {
	inputNotes      []note.NoteID
	unauthenticated []*note.Note
	ownOutputs      []*note.Note
	expectedFuture  []ExpectedNote
	customScript    *script.Script
}

// InputNoteIDs returns the ids of authenticated notes to consume.
func (r *TransactionRequest) InputNoteIDs() []note.NoteID {
	out := make([]note.NoteID, len(r.inputNotes))
	copy(out, r.inputNotes)
	return out
}

// UnauthenticatedInputNotes returns the full notes to consume that the local
// view has not independently confirmed.
func (r *TransactionRequest) UnauthenticatedInputNotes() []*note.Note {
	out := make([]*note.Note, len(r.unauthenticated))
	copy(out, r.unauthenticated)
	return out
}

// OwnOutputNotes returns the notes this transaction creates in full.
func (r *TransactionRequest) OwnOutputNotes() []*note.Note {
	out := make([]*note.Note, len(r.ownOutputs))
	copy(out, r.ownOutputs)
	return out
}

// ExpectedFutureNotes returns the pre-registered counterparty notes.
func (r *TransactionRequest) ExpectedFutureNotes() []ExpectedNote {
	out := make([]ExpectedNote, len(r.expectedFuture))
	copy(out, r.expectedFuture)
	return out
}

// CustomScript returns the transaction script override, or nil for the
// default no-op epilogue.
func (r *TransactionRequest) CustomScript() *script.Script { return r.customScript }

type requestJSON struct {
	InputNotes      []note.NoteID        `json:"input_notes,omitempty"`
	Unauthenticated []*note.Note         `json:"unauthenticated,omitempty"`
	OwnOutputs      []*note.Note         `json:"own_outputs,omitempty"`
	ExpectedFuture  []ExpectedNote       `json:"expected_future,omitempty"`
	CustomScript    []script.Instruction `json:"custom_script,omitempty"`
}

// MarshalJSON encodes the full request so a signed transaction can be handed
// to another party for submission.
func (r *TransactionRequest) MarshalJSON() ([]byte, error) {
	raw := requestJSON{
		InputNotes:      r.inputNotes,
		Unauthenticated: r.unauthenticated,
		OwnOutputs:      r.ownOutputs,
		ExpectedFuture:  r.expectedFuture,
	}
	if r.customScript != nil {
		raw.CustomScript = r.customScript.Instructions
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a request, recompiling the custom script so its root
// matches what the sender signed over.
func (r *TransactionRequest) UnmarshalJSON(data []byte) error {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.inputNotes = raw.InputNotes
	r.unauthenticated = raw.Unauthenticated
	r.ownOutputs = raw.OwnOutputs
	r.expectedFuture = raw.ExpectedFuture
	r.customScript = nil
	if len(raw.CustomScript) > 0 {
		s, err := script.Compile(raw.CustomScript)
		if err != nil {
			return err
		}
		r.customScript = s
	}
	return nil
}

// TransactionRequestBuilder accumulates a request. Methods chain; the first
// registration error surfaces at Build.
type TransactionRequestBuilder struct {
	req TransactionRequest
	err error
}

// NewBuilder returns an empty builder.
func NewBuilder() *TransactionRequestBuilder {
	return &TransactionRequestBuilder{}
}

func (b *TransactionRequestBuilder) fail(err error) *TransactionRequestBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// WithInputNotes registers ledger-confirmed notes to consume, by id.
func (b *TransactionRequestBuilder) WithInputNotes(ids ...note.NoteID) *TransactionRequestBuilder {
	b.req.inputNotes = append(b.req.inputNotes, ids...)
	return b
}

// WithUnauthenticatedInputNotes registers notes to consume that were learned
// off-chain and are not yet confirmed in the local view.
func (b *TransactionRequestBuilder) WithUnauthenticatedInputNotes(notes ...*note.Note) *TransactionRequestBuilder {
	for _, n := range notes {
		if n == nil {
			return b.fail(ErrNilNote)
		}
		b.req.unauthenticated = append(b.req.unauthenticated, n)
	}
	return b
}

// WithOwnOutputNotes registers notes this transaction creates in full. The
// caller reads their ids off the request to track them after execution.
func (b *TransactionRequestBuilder) WithOwnOutputNotes(notes ...*note.Note) *TransactionRequestBuilder {
	for _, n := range notes {
		if n == nil {
			return b.fail(ErrNilNote)
		}
		b.req.ownOutputs = append(b.req.ownOutputs, n)
	}
	return b
}

// WithExpectedFutureNotes registers (details, tag) pairs for notes created by
// a counterparty that this party's sync must later recognize.
func (b *TransactionRequestBuilder) WithExpectedFutureNotes(expected ...ExpectedNote) *TransactionRequestBuilder {
	for _, e := range expected {
		if e.Tag == 0 {
			return b.fail(fmt.Errorf("%w: note %s", ErrUntaggedExpected, e.Details.ID()))
		}
		b.req.expectedFuture = append(b.req.expectedFuture, e)
	}
	return b
}

// WithCustomScript overrides the default no-op transaction script.
func (b *TransactionRequestBuilder) WithCustomScript(s *script.Script) *TransactionRequestBuilder {
	if s == nil {
		return b.fail(errors.New("nil custom script"))
	}
	b.req.customScript = s
	return b
}

// Build validates internal consistency and freezes the request.
func (b *TransactionRequestBuilder) Build() (*TransactionRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	r := b.req
	if len(r.inputNotes) == 0 && len(r.unauthenticated) == 0 && len(r.ownOutputs) == 0 && r.customScript == nil {
		return nil, ErrEmptyRequest
	}
	seen := make(map[note.NoteID]struct{}, len(r.inputNotes)+len(r.unauthenticated))
	for _, id := range r.inputNotes {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInput, id)
		}
		seen[id] = struct{}{}
	}
	for _, n := range r.unauthenticated {
		if _, dup := seen[n.ID()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInput, n.ID())
		}
		seen[n.ID()] = struct{}{}
	}
	out := r
	return &out, nil
}
