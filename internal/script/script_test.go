package script

import (
	"testing"

	"github.com/stretchr/testify/require"

	"noteswap/internal/felt"
)

type distributeCall struct {
	amount, tag, aux, noteType, hint felt.Felt
	recipient                        felt.Word
}

type createCall struct {
	tag, aux, noteType, hint felt.Felt
	recipient, asset         felt.Word
}

// fakeHost records every procedure call so tests can assert pop order.
type fakeHost struct {
	account     felt.Felt
	inputs      []felt.Felt
	assets      []felt.Word
	received    int
	burned      []felt.Word
	distributed []distributeCall
	created     []createCall
	failReceive error
}

func (h *fakeHost) AccountID() felt.Felt    { return h.account }
func (h *fakeHost) NoteInputs() []felt.Felt { return h.inputs }
func (h *fakeHost) NoteAssets() []felt.Word { return h.assets }

func (h *fakeHost) ReceiveAssets() error {
	if h.failReceive != nil {
		return h.failReceive
	}
	h.received++
	return nil
}

func (h *fakeHost) Burn(asset felt.Word) error {
	h.burned = append(h.burned, asset)
	return nil
}

func (h *fakeHost) Distribute(amount, tag, aux, noteType, hint felt.Felt, recipient felt.Word) (felt.Felt, error) {
	h.distributed = append(h.distributed, distributeCall{amount, tag, aux, noteType, hint, recipient})
	return felt.New(uint64(len(h.distributed) - 1)), nil
}

func (h *fakeHost) CreateNote(tag, aux, noteType, hint felt.Felt, recipient, asset felt.Word) (felt.Felt, error) {
	h.created = append(h.created, createCall{tag, aux, noteType, hint, recipient, asset})
	return felt.New(uint64(len(h.created) - 1)), nil
}

func TestCompileRejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		instr Instruction
	}{
		{"push without immediate", Instruction{Op: OpPush}},
		{"pushw with short immediates", Instruction{Op: OpPushWord, Imm: []felt.Felt{1, 2}}},
		{"drop with immediate", Instruction{Op: OpDrop, Imm: []felt.Felt{1}}},
		{"call without procedure", Instruction{Op: OpCall}},
		{"call unknown procedure", Instruction{Op: OpCall, Proc: ProcCreateNote + 1}},
		{"unknown opcode", Instruction{Op: Op(99)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile([]Instruction{tc.instr})
			require.ErrorIs(t, err, ErrCompile)
		})
	}
}

func TestRootBindsProgramText(t *testing.T) {
	a := MustCompile([]Instruction{Push(felt.New(1)), {Op: OpDrop}})
	b := MustCompile([]Instruction{Push(felt.New(1)), {Op: OpDrop}})
	c := MustCompile([]Instruction{Push(felt.New(2)), {Op: OpDrop}})
	require.Equal(t, a.Root(), b.Root())
	require.NotEqual(t, a.Root(), c.Root())

	// Differing only in instruction boundaries must not collide.
	d := MustCompile([]Instruction{{Op: OpPadWord}, {Op: OpDropWord}})
	e := MustCompile([]Instruction{{Op: OpPadWord}, {Op: OpDrop}, {Op: OpDrop}, {Op: OpDrop}, {Op: OpDrop}})
	require.NotEqual(t, d.Root(), e.Root())
}

func TestExecuteStackDiscipline(t *testing.T) {
	residual := MustCompile([]Instruction{Push(felt.New(7))})
	err := Execute(residual, &fakeHost{})
	require.ErrorIs(t, err, ErrStackDiscipline)

	underflow := MustCompile([]Instruction{{Op: OpDrop}})
	err = Execute(underflow, &fakeHost{})
	require.ErrorIs(t, err, ErrStackUnderflow)

	balanced := MustCompile([]Instruction{Push(felt.New(7)), {Op: OpDrop}})
	require.NoError(t, Execute(balanced, &fakeHost{}))
}

func TestExecuteAssertEq(t *testing.T) {
	host := &fakeHost{account: felt.New(42)}

	ok := MustCompile([]Instruction{
		Call(ProcAccountID),
		Push(felt.New(42)),
		{Op: OpAssertEq},
	})
	require.NoError(t, Execute(ok, host))

	bad := MustCompile([]Instruction{
		Call(ProcAccountID),
		Push(felt.New(43)),
		{Op: OpAssertEq},
	})
	require.ErrorIs(t, Execute(bad, host), ErrAssertFailed)
}

func TestGetInputsLayout(t *testing.T) {
	host := &fakeHost{inputs: []felt.Felt{10, 20, 30}}
	s := MustCompile([]Instruction{
		Call(ProcGetInputs),
		Push(felt.New(3)),
		{Op: OpAssertEq},
		MemLoad(felt.New(InputsAddr + 1)),
		Push(felt.New(20)),
		{Op: OpAssertEq},
	})
	require.NoError(t, Execute(s, host))
}

func TestGetAssetsLayout(t *testing.T) {
	asset := felt.WordFromUint64(5, 0, 0, 77)
	host := &fakeHost{assets: []felt.Word{asset}}
	instrs := []Instruction{
		Call(ProcGetAssets),
		Push(felt.New(1)),
		{Op: OpAssertEq},
	}
	for i := 0; i < 4; i++ {
		instrs = append(instrs,
			MemLoad(felt.New(AssetsAddr+uint64(i))),
			Push(asset[i]),
			Instruction{Op: OpAssertEq},
		)
	}
	s := MustCompile(instrs)
	require.NoError(t, Execute(s, host))
}

func TestMemoryBounds(t *testing.T) {
	s := MustCompile([]Instruction{MemLoad(felt.New(memorySize))})
	require.ErrorIs(t, Execute(s, &fakeHost{}), ErrBadAddress)

	s = MustCompile([]Instruction{MemLoadWord(felt.New(memorySize - 3))})
	require.ErrorIs(t, Execute(s, &fakeHost{}), ErrBadAddress)
}

func TestDistributePopOrder(t *testing.T) {
	recipient := felt.WordFromUint64(91, 92, 93, 94)
	// Push in reverse of pop order: recipient first, amount last.
	s := MustCompile([]Instruction{
		PushWord(recipient),
		Push(felt.New(5)),  // hint
		Push(felt.New(1)),  // note type
		Push(felt.New(27)), // aux
		Push(felt.New(33)), // tag
		Push(felt.New(250)),
		Call(ProcDistribute),
		{Op: OpDrop},
	})
	host := &fakeHost{}
	require.NoError(t, Execute(s, host))
	require.Len(t, host.distributed, 1)
	call := host.distributed[0]
	require.Equal(t, felt.New(250), call.amount)
	require.Equal(t, felt.New(33), call.tag)
	require.Equal(t, felt.New(27), call.aux)
	require.Equal(t, felt.New(1), call.noteType)
	require.Equal(t, felt.New(5), call.hint)
	require.Equal(t, recipient, call.recipient)
}

func TestCreateNotePopOrder(t *testing.T) {
	recipient := felt.WordFromUint64(81, 82, 83, 84)
	asset := felt.WordFromUint64(7, 0, 0, 100)
	s := MustCompile([]Instruction{
		PushWord(asset),
		PushWord(recipient),
		Push(felt.New(5)),  // hint
		Push(felt.New(1)),  // note type
		Push(felt.New(0)),  // aux
		Push(felt.New(44)), // tag
		Call(ProcCreateNote),
		{Op: OpDrop},
	})
	host := &fakeHost{}
	require.NoError(t, Execute(s, host))
	require.Len(t, host.created, 1)
	call := host.created[0]
	require.Equal(t, felt.New(44), call.tag)
	require.Equal(t, recipient, call.recipient)
	require.Equal(t, asset, call.asset)
}

func TestBurnPopsWord(t *testing.T) {
	asset := felt.WordFromUint64(7, 0, 0, 100)
	s := MustCompile([]Instruction{
		PushWord(asset),
		Call(ProcBurn),
	})
	host := &fakeHost{}
	require.NoError(t, Execute(s, host))
	require.Equal(t, []felt.Word{asset}, host.burned)
}

func TestHostErrorAborts(t *testing.T) {
	host := &fakeHost{failReceive: ErrAssertFailed}
	s := MustCompile([]Instruction{Call(ProcReceiveAssets)})
	require.ErrorIs(t, Execute(s, host), ErrAssertFailed)
	require.Zero(t, host.received)
}
