// tag.go - Note discovery tags.
//
// Tags are non-secret routing hints: they decide which sync processes pick a
// note up, never who may consume it (that is the recipient digest). The top
// two bits carry the tag source, the next bit the execution mode, and the
// remaining 29 bits the derived payload.

package note

import (
	"errors"
	"fmt"

	"noteswap/internal/felt"
)

// NoteExecutionMode controls tag visibility: locally-executed notes are only
// picked up by syncs that track the target, network notes by everyone.
type NoteExecutionMode uint8

const (
	ExecutionModeNetwork NoteExecutionMode = iota
	ExecutionModeLocal
)

// Tag sources.
const (
	tagSourceAccount uint32 = 0
	tagSourceUseCase uint32 = 1
	tagSourceSwap    uint32 = 2

	tagSourceShift = 30
	tagModeShift   = 29
	tagPayloadMask = uint32(1)<<tagModeShift - 1
)

// MaxUseCaseID bounds the public-use-case namespace: 14 bits.
const MaxUseCaseID = 1<<14 - 1

// ErrInvalidTag wraps tag derivation failures.
var ErrInvalidTag = errors.New("invalid note tag")

// NoteTag routes a note to the sync processes interested in it.
type NoteTag uint32

func packTag(source uint32, mode NoteExecutionMode, payload uint32) NoteTag {
	v := source<<tagSourceShift | uint32(mode)<<tagModeShift | payload&tagPayloadMask
	return NoteTag(v)
}

// TagFromAccountID derives the routing tag a target account's sync listens
// on. Deterministic in the account id.
func TagFromAccountID(target AccountID, mode NoteExecutionMode) NoteTag {
	// High bits of the id: enough for routing, useless for identification.
	payload := uint32(uint64(target)>>33) & tagPayloadMask
	return packTag(tagSourceAccount, mode, payload)
}

// TagForPublicUseCase derives a tag for an application-defined namespace,
// for protocols not tied to any account.
func TagForPublicUseCase(useCase uint16, payload uint16, mode NoteExecutionMode) (NoteTag, error) {
	if useCase > MaxUseCaseID {
		return 0, fmt.Errorf("%w: use case id %d exceeds %d", ErrInvalidTag, useCase, MaxUseCaseID)
	}
	p := uint32(useCase)<<15 | uint32(payload)&(1<<15-1)
	return packTag(tagSourceUseCase, mode, p), nil
}

// TagForSwap derives the discovery tag for a swap note from the asset pair
// alone, so matchers can find candidate swaps without knowing the parties.
// The pair is ordered: offered-for-requested and requested-for-offered get
// different tags.
func TagForSwap(noteType NoteType, offered, requested FungibleAsset) NoteTag {
	d := felt.HashFelts(
		felt.New(uint64(noteType)),
		offered.Faucet.Felt(),
		requested.Faucet.Felt(),
	)
	payload := uint32(d.Word()[0].Uint64()) & tagPayloadMask
	return packTag(tagSourceSwap, ExecutionModeNetwork, payload)
}

// Felt returns the tag as a field element for the operand stack.
func (t NoteTag) Felt() felt.Felt { return felt.New(uint64(t)) }

// TagFromFelt validates and converts a raw felt into a tag.
func TagFromFelt(f felt.Felt) (NoteTag, error) {
	if f.Uint64() > 0xFFFFFFFF {
		return 0, fmt.Errorf("%w: value %d exceeds 32 bits", ErrInvalidTag, f.Uint64())
	}
	return NoteTag(f.Uint64()), nil
}

func (t NoteTag) String() string { return fmt.Sprintf("tag(0x%08x)", uint32(t)) }
