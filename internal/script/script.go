// script.go - Note scripts as structured bytecode.
//
// A note script is the program executed when a note is consumed. Scripts are
// built from a small typed instruction set instead of textual assembly, so
// the literal encoding of every pushed parameter is fixed at construction
// time. A script's identity is its root digest, which feeds the recipient
// digest gating consumption.

package script

import (
	"errors"
	"fmt"

	"noteswap/internal/felt"
)

// Proc identifies a callable kernel procedure. The set mirrors the ledger's
// note ABI: asset movement, note emission, and input readback.
type Proc uint8

const (
	ProcNone Proc = iota
	// ProcAccountID pushes the executing account's id.
	ProcAccountID
	// ProcGetInputs loads the note's inputs into VM memory at InputsAddr
	// and pushes the input count.
	ProcGetInputs
	// ProcGetAssets loads the note's asset words into VM memory at
	// AssetsAddr and pushes the asset count.
	ProcGetAssets
	// ProcReceiveAssets moves every asset of the consumed note into the
	// executing account's vault.
	ProcReceiveAssets
	// ProcBurn pops an asset word and burns it against its issuing faucet.
	ProcBurn
	// ProcDistribute pops [amount, tag, aux, note_type, hint, RECIPIENT]
	// and emits a note minted by the executing faucet. Pushes the note index.
	ProcDistribute
	// ProcCreateNote pops [tag, aux, note_type, hint, RECIPIENT, ASSET] and
	// emits a note funded from the executing account's vault. Pushes the
	// note index.
	ProcCreateNote
)

func (p Proc) String() string {
	switch p {
	case ProcAccountID:
		return "account_id"
	case ProcGetInputs:
		return "get_inputs"
	case ProcGetAssets:
		return "get_assets"
	case ProcReceiveAssets:
		return "receive_assets"
	case ProcBurn:
		return "burn"
	case ProcDistribute:
		return "distribute"
	case ProcCreateNote:
		return "create_note"
	}
	return fmt.Sprintf("proc(%d)", uint8(p))
}

// Op is a VM opcode.
type Op uint8

const (
	// OpPush pushes one immediate felt.
	OpPush Op = iota + 1
	// OpPushWord pushes an immediate word (last limb ends on top).
	OpPushWord
	// OpDrop pops one element.
	OpDrop
	// OpDropWord pops four elements.
	OpDropWord
	// OpPadWord pushes four zeros.
	OpPadWord
	// OpMemLoad pushes the felt at the immediate memory address.
	OpMemLoad
	// OpMemLoadWord pushes the word at the immediate memory address.
	OpMemLoadWord
	// OpAssertEq pops two elements and faults when they differ.
	OpAssertEq
	// OpCall invokes a kernel procedure.
	OpCall
)

func (o Op) String() string {
	switch o {
	case OpPush:
		return "push"
	case OpPushWord:
		return "pushw"
	case OpDrop:
		return "drop"
	case OpDropWord:
		return "dropw"
	case OpPadWord:
		return "padw"
	case OpMemLoad:
		return "mem_load"
	case OpMemLoadWord:
		return "mem_loadw"
	case OpAssertEq:
		return "assert_eq"
	case OpCall:
		return "call"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Instruction is one VM operation with its immediates.
type Instruction struct {
	Op   Op          `json:"op"`
	Proc Proc        `json:"proc,omitempty"`
	Imm  []felt.Felt `json:"imm,omitempty"`
}

// Push builds a push instruction for a single felt.
func Push(v felt.Felt) Instruction { return Instruction{Op: OpPush, Imm: []felt.Felt{v}} }

// PushWord builds a push instruction for a word.
func PushWord(w felt.Word) Instruction { return Instruction{Op: OpPushWord, Imm: w.Felts()} }

// Call builds a procedure call instruction.
func Call(p Proc) Instruction { return Instruction{Op: OpCall, Proc: p} }

// MemLoad builds a single-felt memory read at addr.
func MemLoad(addr felt.Felt) Instruction { return Instruction{Op: OpMemLoad, Imm: []felt.Felt{addr}} }

// MemLoadWord builds a word memory read at addr.
func MemLoadWord(addr felt.Felt) Instruction {
	return Instruction{Op: OpMemLoadWord, Imm: []felt.Felt{addr}}
}

// ErrCompile wraps all malformed-script construction failures. These are
// fatal and never retried.
var ErrCompile = errors.New("script: compile failed")

// Script is a compiled, immutable note or transaction program.
type Script struct {
	Instructions []Instruction `json:"instructions"`

	root felt.Digest
}

// Compile validates an instruction stream and freezes it into a script.
// Validation is structural: immediate arity and known procedures. Stack
// effects are checked at execution time.
func Compile(instrs []Instruction) (*Script, error) {
	for i, in := range instrs {
		switch in.Op {
		case OpPush, OpMemLoad, OpMemLoadWord:
			if len(in.Imm) != 1 {
				return nil, fmt.Errorf("%w: instruction %d: %s wants 1 immediate, got %d", ErrCompile, i, in.Op, len(in.Imm))
			}
		case OpPushWord:
			if len(in.Imm) != 4 {
				return nil, fmt.Errorf("%w: instruction %d: %s wants 4 immediates, got %d", ErrCompile, i, in.Op, len(in.Imm))
			}
		case OpDrop, OpDropWord, OpPadWord, OpAssertEq:
			if len(in.Imm) != 0 {
				return nil, fmt.Errorf("%w: instruction %d: %s takes no immediates", ErrCompile, i, in.Op)
			}
		case OpCall:
			if in.Proc == ProcNone || in.Proc > ProcCreateNote {
				return nil, fmt.Errorf("%w: instruction %d: unknown procedure %d", ErrCompile, i, uint8(in.Proc))
			}
		default:
			return nil, fmt.Errorf("%w: instruction %d: unknown opcode %d", ErrCompile, i, uint8(in.Op))
		}
	}
	s := &Script{Instructions: instrs}
	s.root = rootOf(instrs)
	return s, nil
}

// MustCompile is Compile for statically known-good programs.
func MustCompile(instrs []Instruction) *Script {
	s, err := Compile(instrs)
	if err != nil {
		panic(err)
	}
	return s
}

// Root returns the script's identity digest.
func (s *Script) Root() felt.Digest {
	if s.root.IsZero() {
		s.root = rootOf(s.Instructions)
	}
	return s.root
}

func rootOf(instrs []Instruction) felt.Digest {
	elems := make([]felt.Felt, 0, len(instrs)*3)
	for _, in := range instrs {
		elems = append(elems, felt.New(uint64(in.Op)), felt.New(uint64(in.Proc)), felt.New(uint64(len(in.Imm))))
		elems = append(elems, in.Imm...)
	}
	return felt.HashFelts(elems...)
}
