// node.go - The client's view of a ledger node.

package client

import (
	"noteswap/internal/ledger"
	"noteswap/internal/note"
)

// NodeClient is everything a client needs from a ledger node. The in-process
// implementation below wraps a ledger directly; a remote implementation
// would speak the same contract over the wire.
type NodeClient interface {
	Height() uint32
	GetNote(id note.NoteID) (ledger.NoteRecord, error)
	GetAccount(id note.AccountID) (ledger.AccountSnapshot, error)
	RegisterAccount(a *ledger.Account) error
	SimulateTransaction(tx *ledger.Transaction) (ledger.ExecutionSummary, error)
	SubmitTransaction(tx *ledger.Transaction) ([]ledger.OutputNote, error)
	SubmitProvenTransaction(ptx *ledger.ProvenTransaction) ([]ledger.OutputNote, error)
}

// InProcessNode adapts a ledger to the NodeClient contract.
type InProcessNode struct {
	ledger *ledger.Ledger
}

// NewInProcessNode wraps l.
func NewInProcessNode(l *ledger.Ledger) *InProcessNode {
	return &InProcessNode{ledger: l}
}

func (n *InProcessNode) Height() uint32 { return n.ledger.Height() }

func (n *InProcessNode) GetNote(id note.NoteID) (ledger.NoteRecord, error) {
	return n.ledger.GetNote(id)
}

func (n *InProcessNode) GetAccount(id note.AccountID) (ledger.AccountSnapshot, error) {
	return n.ledger.GetAccount(id)
}

func (n *InProcessNode) RegisterAccount(a *ledger.Account) error {
	return n.ledger.RegisterAccount(a)
}

func (n *InProcessNode) SimulateTransaction(tx *ledger.Transaction) (ledger.ExecutionSummary, error) {
	return n.ledger.SimulateTransaction(tx)
}

func (n *InProcessNode) SubmitTransaction(tx *ledger.Transaction) ([]ledger.OutputNote, error) {
	return n.ledger.SubmitTransaction(tx)
}

func (n *InProcessNode) SubmitProvenTransaction(ptx *ledger.ProvenTransaction) ([]ledger.OutputNote, error) {
	return n.ledger.SubmitProvenTransaction(ptx)
}
