// ledger.go - The append-only note ledger.
//
// The ledger is the settlement authority: it executes every submitted
// transaction itself, so a malformed or dishonest client can at worst get
// its transaction rejected. State advances in blocks; a note created at
// height h becomes queryable and consumable (by id) only once the chain
// height exceeds h. Unauthenticated inputs skip the visibility wait but the
// note record must already exist when the consuming transaction applies.

package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark/backend/groth16"

	"noteswap/internal/felt"
	"noteswap/internal/keystore"
	"noteswap/internal/note"
	"noteswap/internal/prover"
	"noteswap/internal/script"
	"noteswap/internal/txrequest"
)

// Transaction is a signed request bound to an account and a nonce. It
// serializes in full so one party can prove a transaction and hand it to
// another for submission.
type Transaction struct {
	Account   note.AccountID                `json:"account"`
	Nonce     uint64                        `json:"nonce"`
	Request   *txrequest.TransactionRequest `json:"request"`
	Signature keystore.Signature            `json:"signature"`
}

// Digest is the message a transaction is signed over.
func (tx *Transaction) Digest() felt.Digest {
	chunks := [][]byte{tx.Account.Felt().Bytes(), felt.New(tx.Nonce).Bytes()}
	for _, id := range tx.Request.InputNoteIDs() {
		chunks = append(chunks, id[:])
	}
	for _, n := range tx.Request.UnauthenticatedInputNotes() {
		id := n.ID()
		chunks = append(chunks, id[:])
	}
	for _, n := range tx.Request.OwnOutputNotes() {
		id := n.ID()
		chunks = append(chunks, id[:])
	}
	if s := tx.Request.CustomScript(); s != nil {
		root := s.Root()
		chunks = append(chunks, root[:])
	}
	return felt.Hash(chunks...)
}

// ProvenTransaction pairs a transaction with its settlement proof.
type ProvenTransaction struct {
	Transaction *Transaction   `json:"transaction"`
	Summary     prover.Summary `json:"summary"`
	Proof       []byte         `json:"proof"`
}

// NoteRecord is the ledger's view of one note.
type NoteRecord struct {
	Output     OutputNote
	CreatedAt  uint32
	Consumed   bool
	ConsumedBy note.AccountID
}

// Ledger holds all chain state behind one lock.
type Ledger struct {
	mu       sync.Mutex
	height   uint32
	accounts map[note.AccountID]*Account
	notes    map[note.NoteID]*NoteRecord
	vk       groth16.VerifyingKey
}

// Option configures a ledger at construction.
type Option func(*Ledger)

// WithVerifyingKey enables proven submissions checked under vk.
func WithVerifyingKey(vk groth16.VerifyingKey) Option {
	return func(l *Ledger) { l.vk = vk }
}

// New returns an empty ledger at height zero.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		accounts: make(map[note.AccountID]*Account),
		notes:    make(map[note.NoteID]*NoteRecord),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Height returns the current chain height.
func (l *Ledger) Height() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// AdvanceBlock produces a block, making notes created at the previous
// height visible. Returns the new height.
func (l *Ledger) AdvanceBlock() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height++
	return l.height
}

// RegisterAccount deploys a client-built account onto the ledger.
func (l *Ledger) RegisterAccount(a *Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[a.id]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.id)
	}
	l.accounts[a.id] = a
	return nil
}

// GetAccount returns the public state of an account.
func (l *Ledger) GetAccount(id note.AccountID) (AccountSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[id]
	if !ok {
		return AccountSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	if a.storageMode != StoragePublic {
		return AccountSnapshot{}, fmt.Errorf("%w: %s", ErrAccountPrivate, id)
	}
	return a.snapshot(), nil
}

// GetNote returns the record of a visible note. A note whose block has not
// been produced yet reports ErrNoteNotFoundOnChain, same as an unknown id.
func (l *Ledger) GetNote(id note.NoteID) (NoteRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.notes[id]
	if !ok || l.height <= rec.CreatedAt {
		return NoteRecord{}, fmt.Errorf("%w: %s", ErrNoteNotFoundOnChain, id)
	}
	return *rec, nil
}

// SubmitTransaction executes and commits a signed transaction, returning
// the notes it created.
func (l *Ledger) SubmitTransaction(tx *Transaction) ([]OutputNote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, inputs, err := l.execute(tx)
	if err != nil {
		return nil, errors.Join(ErrRejectedTransaction, err)
	}
	l.commit(tx, h, inputs)
	return append([]OutputNote(nil), h.created...), nil
}

// SubmitProvenTransaction verifies the settlement proof, executes the
// transaction, and rejects it if the proof's public summary disagrees with
// what execution actually did.
func (l *Ledger) SubmitProvenTransaction(ptx *ProvenTransaction) ([]OutputNote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.vk == nil {
		return nil, ErrNoVerifyingKey
	}
	if err := prover.Verify(l.vk, ptx.Proof, ptx.Summary); err != nil {
		return nil, errors.Join(ErrRejectedTransaction, err)
	}
	tx := ptx.Transaction
	h, inputs, err := l.execute(tx)
	if err != nil {
		return nil, errors.Join(ErrRejectedTransaction, err)
	}
	in, out, burned, minted := h.summaryTotals()
	s := ptx.Summary
	if in != s.TotalIn || out != s.TotalOut || burned != s.TotalBurned || minted != s.TotalMinted {
		return nil, fmt.Errorf("%w: proved (%d,%d,%d,%d), executed (%d,%d,%d,%d)",
			ErrProofMismatch, s.TotalIn, s.TotalOut, s.TotalBurned, s.TotalMinted, in, out, burned, minted)
	}
	l.commit(tx, h, inputs)
	return append([]OutputNote(nil), h.created...), nil
}

// ExecutionSummary is what a dry run reports: the flow totals a settlement
// proof must commit to, plus the per-slot amounts the prover binds.
type ExecutionSummary struct {
	TotalIn       uint64
	TotalOut      uint64
	TotalBurned   uint64
	TotalMinted   uint64
	InputAmounts  []uint64
	OutputAmounts []uint64
}

// SimulateTransaction executes a transaction without committing it, so the
// submitter can prove the resulting flows before submission.
func (l *Ledger) SimulateTransaction(tx *Transaction) (ExecutionSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, _, err := l.execute(tx)
	if err != nil {
		return ExecutionSummary{}, errors.Join(ErrRejectedTransaction, err)
	}
	in, out, burned, minted := h.summaryTotals()
	ins, outs := h.flowAmounts()
	return ExecutionSummary{
		TotalIn:       in,
		TotalOut:      out,
		TotalBurned:   burned,
		TotalMinted:   minted,
		InputAmounts:  ins,
		OutputAmounts: outs,
	}, nil
}

// execute runs a transaction against a pending delta without committing.
// Caller holds l.mu.
func (l *Ledger) execute(tx *Transaction) (*txHost, []*NoteRecord, error) {
	acct, ok := l.accounts[tx.Account]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAccount, tx.Account)
	}
	if tx.Nonce != acct.nonce+1 {
		return nil, nil, fmt.Errorf("%w: nonce %d, expected %d", ErrUnauthorized, tx.Nonce, acct.nonce+1)
	}
	msg := tx.Digest()
	if err := keystore.Verify(acct.authKey, msg[:], tx.Signature); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	h := newTxHost(acct)
	var consumed []*NoteRecord

	for _, id := range tx.Request.InputNoteIDs() {
		rec, ok := l.notes[id]
		if !ok || l.height <= rec.CreatedAt {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoteNotFoundOnChain, id)
		}
		if rec.Output.Full == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoteDetailsUnavailable, id)
		}
		n, err := l.consumable(rec)
		if err != nil {
			return nil, nil, err
		}
		consumed = append(consumed, rec)
		h.beginNote(n)
		if err := script.Execute(n.Recipient().Script(), h); err != nil {
			return nil, nil, fmt.Errorf("note %s: %w", n.ID(), err)
		}
	}
	for _, n := range tx.Request.UnauthenticatedInputNotes() {
		rec, ok := l.notes[n.ID()]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoteNotFoundOnChain, n.ID())
		}
		if _, err := l.consumable(rec); err != nil {
			return nil, nil, err
		}
		consumed = append(consumed, rec)
		h.beginNote(n)
		if err := script.Execute(n.Recipient().Script(), h); err != nil {
			return nil, nil, fmt.Errorf("note %s: %w", n.ID(), err)
		}
	}
	h.endNote()

	if s := tx.Request.CustomScript(); s != nil {
		if err := script.Execute(s, h); err != nil {
			return nil, nil, fmt.Errorf("custom script: %w", err)
		}
	}
	for _, n := range tx.Request.OwnOutputNotes() {
		if err := h.addOwnOutput(n); err != nil {
			return nil, nil, err
		}
	}
	for _, out := range h.created {
		if _, dup := l.notes[out.ID]; dup {
			return nil, nil, fmt.Errorf("output note %s already exists", out.ID)
		}
	}
	if err := h.checkConservation(); err != nil {
		return nil, nil, err
	}
	return h, consumed, nil
}

// consumable checks single-consumption and the execution hint. Caller holds
// l.mu.
func (l *Ledger) consumable(rec *NoteRecord) (*note.Note, error) {
	if rec.Consumed {
		return nil, fmt.Errorf("%w: %s", ErrNoteAlreadyConsumed, rec.Output.ID)
	}
	if !rec.Output.Metadata.ExecutionHint.ConsumableAt(l.height) {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotConsumable, rec.Output.ID)
	}
	return rec.Output.Full, nil
}

// commit applies a successfully executed delta. Caller holds l.mu.
func (l *Ledger) commit(tx *Transaction, h *txHost, consumed []*NoteRecord) {
	for _, rec := range consumed {
		rec.Consumed = true
		rec.ConsumedBy = tx.Account
	}
	for _, out := range h.created {
		l.notes[out.ID] = &NoteRecord{Output: out, CreatedAt: l.height}
	}
	acct := l.accounts[tx.Account]
	vault := make(map[note.AccountID]uint64, len(h.vault))
	for f, v := range h.vault {
		if v > 0 {
			vault[f] = uint64(v)
		}
	}
	acct.vault = vault
	acct.nonce = tx.Nonce
	acct.issued += h.minted
}
