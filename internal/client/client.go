// client.go - The party-side protocol client.
//
// A client owns keys, tracks notes and accounts in its store, and talks to
// one node. It never trusts its own bookkeeping over the chain: submission
// results and sync always overwrite the local view.

package client

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"

	"noteswap/internal/felt"
	"noteswap/internal/keystore"
	"noteswap/internal/ledger"
	"noteswap/internal/note"
	"noteswap/internal/prover"
	"noteswap/internal/txrequest"
)

// Client operation failures.
var (
	ErrWatchOnly = errors.New("client: account is watch-only")
	ErrNoProver  = errors.New("client: no proving material configured")
)

// Client is one party's protocol endpoint.
type Client struct {
	node  NodeClient
	store *Store
	keys  *keystore.FilesystemKeyStore
	clock Clock

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
}

// ClientOption configures a client at construction.
type ClientOption func(*Client)

// WithProver equips the client to produce settlement proofs.
func WithProver(ccs constraint.ConstraintSystem, pk groth16.ProvingKey) ClientOption {
	return func(c *Client) {
		c.ccs = ccs
		c.pk = pk
	}
}

// WithClock overrides the poller's clock.
func WithClock(clock Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// NewClient assembles a client over a node, a store, and a keystore.
func NewClient(node NodeClient, store *Store, keys *keystore.FilesystemKeyStore, opts ...ClientOption) *Client {
	c := &Client{node: node, store: store, keys: keys, clock: SystemClock()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the client's local state.
func (c *Client) Store() *Store { return c.store }

// NewWallet generates a key, builds a wallet account from seed, registers it
// on the node, and tracks it locally.
func (c *Client) NewWallet(seed [32]byte, mode ledger.AccountStorageMode) (*ledger.Account, error) {
	sk, err := keystore.GenerateKey()
	if err != nil {
		return nil, err
	}
	acct, err := ledger.NewAccountBuilder(seed).
		WithStorageMode(mode).
		WithAuthKey(sk.Public()).
		Build()
	if err != nil {
		return nil, err
	}
	return acct, c.deploy(acct, sk)
}

// NewFaucet generates a key, builds a fungible faucet from seed, registers
// it on the node, and tracks it locally.
func (c *Client) NewFaucet(seed [32]byte, symbol string, decimals uint8, maxSupply uint64, opts ...ledger.FaucetOption) (*ledger.Account, error) {
	sk, err := keystore.GenerateKey()
	if err != nil {
		return nil, err
	}
	acct, err := ledger.NewFungibleFaucet(seed, sk.Public(), symbol, decimals, maxSupply, opts...)
	if err != nil {
		return nil, err
	}
	return acct, c.deploy(acct, sk)
}

func (c *Client) deploy(acct *ledger.Account, sk *keystore.SecretKey) error {
	if err := c.keys.AddKey(sk); err != nil {
		return err
	}
	if err := c.node.RegisterAccount(acct); err != nil {
		return err
	}
	pub := acct.AuthKey()
	pubBytes := pub.Bytes()
	return c.store.PutAccount(AccountRecord{
		ID:        acct.ID(),
		PublicKey: pubBytes[:],
	})
}

// ImportAccountByID starts watching a public account the client does not
// control.
func (c *Client) ImportAccountByID(id note.AccountID) (ledger.AccountSnapshot, error) {
	snap, err := c.node.GetAccount(id)
	if err != nil {
		return ledger.AccountSnapshot{}, err
	}
	err = c.store.PutAccount(AccountRecord{
		ID:        snap.ID,
		Nonce:     snap.Nonce,
		WatchOnly: true,
	})
	return snap, err
}

// NewTransaction binds a request to the account's next nonce and signs it.
// Expected future notes on the request are registered in the store so sync
// recognizes them once a counterparty creates them.
func (c *Client) NewTransaction(account note.AccountID, req *txrequest.TransactionRequest) (*ledger.Transaction, error) {
	rec, err := c.store.GetAccount(account)
	if err != nil {
		return nil, err
	}
	if rec.WatchOnly {
		return nil, fmt.Errorf("%w: %s", ErrWatchOnly, account)
	}
	var pub keystore.PublicKey
	if _, err := pub.SetBytes(rec.PublicKey); err != nil {
		return nil, fmt.Errorf("client: corrupt stored public key: %w", err)
	}
	sk, err := c.keys.GetKey(pub)
	if err != nil {
		return nil, err
	}
	tx := &ledger.Transaction{
		Account: account,
		Nonce:   rec.Nonce + 1,
		Request: req,
	}
	msg := tx.Digest()
	sig, err := sk.Sign(msg[:])
	if err != nil {
		return nil, err
	}
	tx.Signature = sig
	for _, e := range req.ExpectedFutureNotes() {
		if err := c.store.PutExpected(e); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// ProveTransaction dry-runs the transaction to learn its flows, then proves
// them under a fresh salt.
func (c *Client) ProveTransaction(tx *ledger.Transaction) (*ledger.ProvenTransaction, error) {
	if c.ccs == nil || c.pk == nil {
		return nil, ErrNoProver
	}
	sim, err := c.node.SimulateTransaction(tx)
	if err != nil {
		return nil, err
	}
	salt, err := randomFelt()
	if err != nil {
		return nil, err
	}
	commitment, err := prover.Commit(salt, sim.InputAmounts, sim.OutputAmounts)
	if err != nil {
		return nil, err
	}
	summary := prover.Summary{
		TotalIn:           sim.TotalIn,
		TotalOut:          sim.TotalOut,
		TotalBurned:       sim.TotalBurned,
		TotalMinted:       sim.TotalMinted,
		AmountsCommitment: commitment,
	}
	proof, err := prover.Prove(c.ccs, c.pk, summary, salt, sim.InputAmounts, sim.OutputAmounts)
	if err != nil {
		return nil, err
	}
	return &ledger.ProvenTransaction{Transaction: tx, Summary: summary, Proof: proof}, nil
}

func randomFelt() (felt.Felt, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return felt.New(binary.BigEndian.Uint64(b[:]) % felt.Modulus), nil
}

// SubmitTransaction submits a signed transaction and reconciles the local
// view with the result.
func (c *Client) SubmitTransaction(tx *ledger.Transaction) ([]ledger.OutputNote, error) {
	outputs, err := c.node.SubmitTransaction(tx)
	if err != nil {
		return nil, err
	}
	return outputs, c.applyLocal(tx, outputs)
}

// SubmitProvenTransaction submits a proven transaction and reconciles the
// local view with the result.
func (c *Client) SubmitProvenTransaction(ptx *ledger.ProvenTransaction) ([]ledger.OutputNote, error) {
	outputs, err := c.node.SubmitProvenTransaction(ptx)
	if err != nil {
		return nil, err
	}
	return outputs, c.applyLocal(ptx.Transaction, outputs)
}

// RelayProvenTransaction submits a transaction proven by another party. The
// relayer holds no record for the sender's account, so only tracked notes the
// transaction consumed are reconciled.
func (c *Client) RelayProvenTransaction(ptx *ledger.ProvenTransaction) ([]ledger.OutputNote, error) {
	outputs, err := c.node.SubmitProvenTransaction(ptx)
	if err != nil {
		return nil, err
	}
	for _, id := range ptx.Transaction.Request.InputNoteIDs() {
		c.markConsumed(id)
	}
	for _, n := range ptx.Transaction.Request.UnauthenticatedInputNotes() {
		c.markConsumed(n.ID())
	}
	return outputs, nil
}

func (c *Client) applyLocal(tx *ledger.Transaction, outputs []ledger.OutputNote) error {
	rec, err := c.store.GetAccount(tx.Account)
	if err != nil {
		return err
	}
	rec.Nonce = tx.Nonce
	if err := c.store.PutAccount(rec); err != nil {
		return err
	}
	for _, out := range outputs {
		if out.Full == nil {
			continue
		}
		nr := NoteRecord{Note: out.Full, Tag: out.Metadata.Tag, Status: StatusCommitted}
		if err := c.store.PutNote(nr); err != nil {
			return err
		}
	}
	for _, id := range tx.Request.InputNoteIDs() {
		c.markConsumed(id)
	}
	for _, n := range tx.Request.UnauthenticatedInputNotes() {
		c.markConsumed(n.ID())
	}
	return nil
}

func (c *Client) markConsumed(id note.NoteID) {
	nr, err := c.store.GetNote(id)
	if err != nil {
		return
	}
	nr.Status = StatusConsumed
	c.store.PutNote(nr)
}

// ImportNote starts tracking a note learned off-chain in full. Its status
// reflects what the chain currently says about it.
func (c *Client) ImportNote(n *note.Note) (NoteStatus, error) {
	status := StatusExpected
	rec, err := c.node.GetNote(n.ID())
	switch {
	case err == nil && rec.Consumed:
		status = StatusConsumed
	case err == nil:
		status = StatusCommitted
	case !errors.Is(err, ledger.ErrNoteNotFoundOnChain):
		return "", err
	}
	nr := NoteRecord{Note: n, Tag: n.Metadata().Tag, Status: status}
	if err := c.store.PutNote(nr); err != nil {
		return "", err
	}
	return status, nil
}

// SyncSummary reports what one sync pass changed.
type SyncSummary struct {
	Height    uint32
	Committed []note.NoteID
	Consumed  []note.NoteID
}

// SyncState reconciles the local view with the chain: account nonces catch
// up with transactions submitted on this party's behalf, expected notes that
// materialized are upgraded to full tracked notes (the on-chain metadata
// completes the locally known details), and tracked notes spent elsewhere
// are marked consumed.
func (c *Client) SyncState() (SyncSummary, error) {
	sum := SyncSummary{Height: c.node.Height()}
	accounts, err := c.store.Accounts()
	if err != nil {
		return sum, err
	}
	for _, rec := range accounts {
		snap, err := c.node.GetAccount(rec.ID)
		if err != nil {
			// Private or not yet deployed; the local view stands.
			continue
		}
		if snap.Nonce > rec.Nonce {
			rec.Nonce = snap.Nonce
			if err := c.store.PutAccount(rec); err != nil {
				return sum, err
			}
		}
	}
	expected, err := c.store.Expected()
	if err != nil {
		return sum, err
	}
	for _, e := range expected {
		id := e.Details.ID()
		rec, err := c.node.GetNote(id)
		if errors.Is(err, ledger.ErrNoteNotFoundOnChain) {
			continue
		}
		if err != nil {
			return sum, err
		}
		full, err := note.NewNote(e.Details.Assets, rec.Output.Metadata, e.Details.Recipient)
		if err != nil {
			return sum, err
		}
		status := StatusCommitted
		if rec.Consumed {
			status = StatusConsumed
		}
		if err := c.store.PutNote(NoteRecord{Note: full, Tag: e.Tag, Status: status}); err != nil {
			return sum, err
		}
		if err := c.store.DeleteExpected(id); err != nil {
			return sum, err
		}
		sum.Committed = append(sum.Committed, id)
	}
	committed, err := c.store.NotesByStatus(StatusCommitted)
	if err != nil {
		return sum, err
	}
	for _, nr := range committed {
		rec, err := c.node.GetNote(nr.Note.ID())
		if err != nil || !rec.Consumed {
			continue
		}
		nr.Status = StatusConsumed
		if err := c.store.PutNote(nr); err != nil {
			return sum, err
		}
		sum.Consumed = append(sum.Consumed, nr.Note.ID())
	}
	return sum, nil
}
