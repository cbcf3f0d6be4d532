// vm.go - Stack-machine execution of note scripts.
//
// The interpreter runs a script against a Host, which binds the kernel
// procedures to ledger state (vault movement, note emission, input
// readback). The execution epilogue requires an empty operand stack; a
// script that leaves residual values is rejected, not tolerated.

package script

import (
	"errors"
	"fmt"

	"noteswap/internal/felt"
)

// Memory addresses used by the readback procedures.
const (
	// InputsAddr is where ProcGetInputs lays out the note's inputs.
	InputsAddr = 0
	// AssetsAddr is where ProcGetAssets lays out the note's asset words.
	AssetsAddr = 64
)

// memorySize bounds the VM address space.
const memorySize = 128

// Host is the kernel ABI a script executes against. Implementations bind
// the procedures to an executing account and a ledger state delta.
type Host interface {
	// AccountID returns the executing account's id.
	AccountID() felt.Felt
	// NoteInputs returns the consumed note's inputs.
	NoteInputs() []felt.Felt
	// NoteAssets returns the consumed note's assets as words.
	NoteAssets() []felt.Word
	// ReceiveAssets moves the consumed note's assets into the executing
	// account's vault.
	ReceiveAssets() error
	// Burn destroys an asset against its issuing faucet. The executing
	// account must be that faucet.
	Burn(asset felt.Word) error
	// Distribute mints amount from the executing faucet into a new note.
	// Returns the created note's index.
	Distribute(amount, tag, aux, noteType, hint felt.Felt, recipient felt.Word) (felt.Felt, error)
	// CreateNote emits a note funded from the executing account's vault.
	// Returns the created note's index.
	CreateNote(tag, aux, noteType, hint felt.Felt, recipient, asset felt.Word) (felt.Felt, error)
}

// Execution faults. All are fatal for the enclosing transaction.
var (
	ErrStackUnderflow  = errors.New("script: stack underflow")
	ErrAssertFailed    = errors.New("script: assertion failed")
	ErrStackDiscipline = errors.New("script: residual operand stack after execution")
	ErrBadAddress      = errors.New("script: memory address out of range")
)

type vm struct {
	stack []felt.Felt
	mem   [memorySize]felt.Felt
}

func (m *vm) push(f felt.Felt) { m.stack = append(m.stack, f) }

// pushWord pushes w so that w[0] ends on top of the stack.
func (m *vm) pushWord(w felt.Word) {
	m.push(w[3])
	m.push(w[2])
	m.push(w[1])
	m.push(w[0])
}

func (m *vm) pop() (felt.Felt, error) {
	if len(m.stack) == 0 {
		return 0, ErrStackUnderflow
	}
	f := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return f, nil
}

func (m *vm) popWord() (felt.Word, error) {
	var w felt.Word
	for i := 0; i < 4; i++ {
		f, err := m.pop()
		if err != nil {
			return w, err
		}
		w[i] = f
	}
	return w, nil
}

// Execute runs a compiled script against the host and checks the epilogue
// stack discipline.
func Execute(s *Script, host Host) error {
	m := &vm{}
	for i, in := range s.Instructions {
		if err := m.step(in, host); err != nil {
			return fmt.Errorf("script: instruction %d (%s): %w", i, in.Op, err)
		}
	}
	if len(m.stack) != 0 {
		return fmt.Errorf("%w: depth %d", ErrStackDiscipline, len(m.stack))
	}
	return nil
}

func (m *vm) step(in Instruction, host Host) error {
	switch in.Op {
	case OpPush:
		m.push(in.Imm[0])
	case OpPushWord:
		m.pushWord(felt.Word{in.Imm[0], in.Imm[1], in.Imm[2], in.Imm[3]})
	case OpDrop:
		_, err := m.pop()
		return err
	case OpDropWord:
		_, err := m.popWord()
		return err
	case OpPadWord:
		m.pushWord(felt.Word{})
	case OpMemLoad:
		addr := in.Imm[0].Uint64()
		if addr >= memorySize {
			return ErrBadAddress
		}
		m.push(m.mem[addr])
	case OpMemLoadWord:
		addr := in.Imm[0].Uint64()
		if addr+4 > memorySize {
			return ErrBadAddress
		}
		m.pushWord(felt.Word{m.mem[addr], m.mem[addr+1], m.mem[addr+2], m.mem[addr+3]})
	case OpAssertEq:
		a, err := m.pop()
		if err != nil {
			return err
		}
		b, err := m.pop()
		if err != nil {
			return err
		}
		if a != b {
			return fmt.Errorf("%w: %d != %d", ErrAssertFailed, a, b)
		}
	case OpCall:
		return m.call(in.Proc, host)
	default:
		return fmt.Errorf("unknown opcode %d", uint8(in.Op))
	}
	return nil
}

func (m *vm) call(p Proc, host Host) error {
	switch p {
	case ProcAccountID:
		m.push(host.AccountID())
	case ProcGetInputs:
		inputs := host.NoteInputs()
		if InputsAddr+len(inputs) > memorySize {
			return ErrBadAddress
		}
		for i, f := range inputs {
			m.mem[InputsAddr+i] = f
		}
		m.push(felt.New(uint64(len(inputs))))
	case ProcGetAssets:
		assets := host.NoteAssets()
		if AssetsAddr+4*len(assets) > memorySize {
			return ErrBadAddress
		}
		for i, w := range assets {
			copy(m.mem[AssetsAddr+4*i:], w.Felts())
		}
		m.push(felt.New(uint64(len(assets))))
	case ProcReceiveAssets:
		return host.ReceiveAssets()
	case ProcBurn:
		asset, err := m.popWord()
		if err != nil {
			return err
		}
		return host.Burn(asset)
	case ProcDistribute:
		amount, err := m.pop()
		if err != nil {
			return err
		}
		tag, err := m.pop()
		if err != nil {
			return err
		}
		aux, err := m.pop()
		if err != nil {
			return err
		}
		noteType, err := m.pop()
		if err != nil {
			return err
		}
		hint, err := m.pop()
		if err != nil {
			return err
		}
		recipient, err := m.popWord()
		if err != nil {
			return err
		}
		idx, err := host.Distribute(amount, tag, aux, noteType, hint, recipient)
		if err != nil {
			return err
		}
		m.push(idx)
	case ProcCreateNote:
		tag, err := m.pop()
		if err != nil {
			return err
		}
		aux, err := m.pop()
		if err != nil {
			return err
		}
		noteType, err := m.pop()
		if err != nil {
			return err
		}
		hint, err := m.pop()
		if err != nil {
			return err
		}
		recipient, err := m.popWord()
		if err != nil {
			return err
		}
		asset, err := m.popWord()
		if err != nil {
			return err
		}
		idx, err := host.CreateNote(tag, aux, noteType, hint, recipient, asset)
		if err != nil {
			return err
		}
		m.push(idx)
	default:
		return fmt.Errorf("unknown procedure %d", uint8(p))
	}
	return nil
}
