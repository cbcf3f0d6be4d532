package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"noteswap/internal/felt"
	"noteswap/internal/keystore"
	"noteswap/internal/ledger"
	"noteswap/internal/note"
	"noteswap/internal/transactions/p2id"
	"noteswap/internal/txrequest"
)

// fakeClock advances only when the poller sleeps, so await tests finish in
// zero wall time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time

	// hold keeps After from ever firing, for cancellation tests.
	hold bool
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if c.hold {
		return ch
	}
	c.now = c.now.Add(d)
	ch <- c.now
	return ch
}

// fakeNode serves canned GetNote answers and counts probes.
type fakeNode struct {
	mu       sync.Mutex
	attempts int

	// visibleAfter is how many probes return not-found before the record.
	visibleAfter int
	rec          ledger.NoteRecord
	err          error

	// snap is what GetAccount serves for any id.
	snap ledger.AccountSnapshot
}

var errNodeDown = errors.New("node unreachable")

func (n *fakeNode) GetNote(id note.NoteID) (ledger.NoteRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.err != nil {
		return ledger.NoteRecord{}, n.err
	}
	if n.attempts <= n.visibleAfter {
		return ledger.NoteRecord{}, ledger.ErrNoteNotFoundOnChain
	}
	return n.rec, nil
}

func (n *fakeNode) Height() uint32 { return 1 }
func (n *fakeNode) GetAccount(note.AccountID) (ledger.AccountSnapshot, error) {
	return n.snap, nil
}
func (n *fakeNode) RegisterAccount(*ledger.Account) error { return nil }
func (n *fakeNode) SimulateTransaction(*ledger.Transaction) (ledger.ExecutionSummary, error) {
	return ledger.ExecutionSummary{}, errNodeDown
}
func (n *fakeNode) SubmitTransaction(*ledger.Transaction) ([]ledger.OutputNote, error) {
	return nil, errNodeDown
}
func (n *fakeNode) SubmitProvenTransaction(*ledger.ProvenTransaction) ([]ledger.OutputNote, error) {
	return nil, nil
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testClient(t *testing.T, node NodeClient, opts ...ClientOption) *Client {
	t.Helper()
	keys, err := keystore.NewFilesystemKeyStore(t.TempDir())
	require.NoError(t, err)
	return NewClient(node, testStore(t), keys, opts...)
}

func testNote(t *testing.T, target note.AccountID, amount uint64, s uint64) *note.Note {
	t.Helper()
	var faucet note.AccountID = 1<<60 | 9
	asset, err := note.NewFungibleAsset(faucet, amount)
	require.NoError(t, err)
	n, err := p2id.MintNote(asset, target, note.NoteTypePrivate, felt.WordFromUint64(s, 0, 0, 0))
	require.NoError(t, err)
	return n
}

func TestStoreNoteRoundTrip(t *testing.T) {
	s := testStore(t)
	n := testNote(t, 7, 100, 1)
	rec := NoteRecord{Note: n, Tag: n.Metadata().Tag, Status: StatusCommitted}
	require.NoError(t, s.PutNote(rec))

	got, err := s.GetNote(n.ID())
	require.NoError(t, err)
	require.Equal(t, n.ID(), got.Note.ID())
	require.Equal(t, StatusCommitted, got.Status)
	require.Equal(t, rec.Tag, got.Tag)

	// The stored preimage survives the trip: the reloaded note still
	// consumes under its original script root.
	require.Equal(t, n.Recipient().Digest(), got.Note.Recipient().Digest())

	_, err = s.GetNote(note.NoteID(felt.Hash([]byte("missing"))))
	require.ErrorIs(t, err, ErrNotTracked)
}

func TestStoreReloadBypassesCache(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir)
	require.NoError(t, err)
	n := testNote(t, 7, 100, 1)
	require.NoError(t, s.PutNote(NoteRecord{Note: n, Tag: n.Metadata().Tag, Status: StatusExpected}))
	require.NoError(t, s.Close())

	s, err = OpenStore(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetNote(n.ID())
	require.NoError(t, err)
	require.Equal(t, StatusExpected, got.Status)
}

func TestStoreNotesByStatus(t *testing.T) {
	s := testStore(t)
	committed := testNote(t, 7, 100, 1)
	consumed := testNote(t, 7, 100, 2)
	require.NoError(t, s.PutNote(NoteRecord{Note: committed, Status: StatusCommitted}))
	require.NoError(t, s.PutNote(NoteRecord{Note: consumed, Status: StatusConsumed}))

	got, err := s.NotesByStatus(StatusCommitted)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, committed.ID(), got[0].Note.ID())

	empty, err := s.NotesByStatus(StatusExpected)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestStoreExpected(t *testing.T) {
	s := testStore(t)
	n := testNote(t, 7, 100, 1)
	e := txrequest.ExpectedNote{
		Details: note.NoteDetails{Assets: n.Assets(), Recipient: n.Recipient()},
		Tag:     n.Metadata().Tag,
	}
	require.NoError(t, s.PutExpected(e))

	got, err := s.Expected()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, n.ID(), got[0].Details.ID())
	require.Equal(t, e.Tag, got[0].Tag)

	require.NoError(t, s.DeleteExpected(n.ID()))
	got, err = s.Expected()
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStoreAccounts(t *testing.T) {
	s := testStore(t)
	rec := AccountRecord{ID: 42, PublicKey: []byte{1, 2, 3}, Nonce: 5, WatchOnly: true}
	require.NoError(t, s.PutAccount(rec))

	got, err := s.GetAccount(42)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	all, err := s.Accounts()
	require.NoError(t, err)
	require.Equal(t, []AccountRecord{rec}, all)

	_, err = s.GetAccount(43)
	require.ErrorIs(t, err, ErrNotTracked)
}

func TestImportNoteStatuses(t *testing.T) {
	n := testNote(t, 7, 100, 1)

	t.Run("absent on chain", func(t *testing.T) {
		c := testClient(t, &fakeNode{err: ledger.ErrNoteNotFoundOnChain})
		status, err := c.ImportNote(n)
		require.NoError(t, err)
		require.Equal(t, StatusExpected, status)
	})
	t.Run("committed on chain", func(t *testing.T) {
		c := testClient(t, &fakeNode{})
		status, err := c.ImportNote(n)
		require.NoError(t, err)
		require.Equal(t, StatusCommitted, status)
	})
	t.Run("already consumed", func(t *testing.T) {
		c := testClient(t, &fakeNode{rec: ledger.NoteRecord{Consumed: true}})
		status, err := c.ImportNote(n)
		require.NoError(t, err)
		require.Equal(t, StatusConsumed, status)
	})
	t.Run("node failure propagates", func(t *testing.T) {
		c := testClient(t, &fakeNode{err: errNodeDown})
		_, err := c.ImportNote(n)
		require.ErrorIs(t, err, errNodeDown)
	})
}

func TestNewTransactionRejectsWatchOnly(t *testing.T) {
	c := testClient(t, &fakeNode{})
	require.NoError(t, c.store.PutAccount(AccountRecord{ID: 42, WatchOnly: true}))

	n := testNote(t, 7, 100, 1)
	req, err := txrequest.NewBuilder().WithInputNotes(n.ID()).Build()
	require.NoError(t, err)
	_, err = c.NewTransaction(42, req)
	require.ErrorIs(t, err, ErrWatchOnly)
}

func TestProveTransactionRequiresProver(t *testing.T) {
	c := testClient(t, &fakeNode{})
	_, err := c.ProveTransaction(&ledger.Transaction{})
	require.ErrorIs(t, err, ErrNoProver)
}

func TestAwaitNoteRetriesUntilVisible(t *testing.T) {
	n := testNote(t, 7, 100, 1)
	node := &fakeNode{visibleAfter: 3, rec: ledger.NoteRecord{
		Output: ledger.OutputNote{ID: n.ID(), Assets: n.Assets(), Metadata: n.Metadata(), Full: n},
	}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := testClient(t, node, WithClock(clock))

	rec, err := c.AwaitNote(context.Background(), n.ID(), RetryPolicy{
		Timeout:  time.Second,
		Interval: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, n.ID(), rec.Note.ID())
	require.Equal(t, StatusCommitted, rec.Status)
	// Three misses, the hit, and the closing sync re-probing the note it
	// just started tracking.
	require.Equal(t, 5, node.attempts)

	// The wait is also the import: the store tracks the note afterwards.
	stored, err := c.Store().GetNote(n.ID())
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, stored.Status)
	require.Equal(t, n.Recipient().Digest(), stored.Note.Recipient().Digest())
}

func TestAwaitNoteCompletesExpectedNote(t *testing.T) {
	// The chain only ever shows the header; the store's expected-note
	// registration supplies the preimage during the closing sync.
	n := testNote(t, 7, 100, 2)
	node := &fakeNode{rec: ledger.NoteRecord{
		Output: ledger.OutputNote{ID: n.ID(), Assets: n.Assets(), Metadata: n.Metadata()},
	}}
	c := testClient(t, node, WithClock(&fakeClock{now: time.Unix(0, 0)}))
	require.NoError(t, c.store.PutExpected(txrequest.ExpectedNote{
		Details: note.NoteDetails{Assets: n.Assets(), Recipient: n.Recipient()},
		Tag:     n.Metadata().Tag,
	}))

	rec, err := c.AwaitNote(context.Background(), n.ID(), RetryPolicy{
		Timeout:  time.Second,
		Interval: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, n.ID(), rec.Note.ID())
	require.Equal(t, StatusCommitted, rec.Status)

	pending, err := c.store.Expected()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestAwaitNoteTimesOut(t *testing.T) {
	node := &fakeNode{visibleAfter: 1 << 30}
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := testClient(t, node, WithClock(clock))

	_, err := c.AwaitNote(context.Background(), note.NoteID{}, RetryPolicy{
		Timeout:  time.Second,
		Interval: 100 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrAwaitTimeout)
	// One probe per interval inside the budget.
	require.Equal(t, 10, node.attempts)
}

func TestAwaitNoteStopsOnForeignError(t *testing.T) {
	node := &fakeNode{err: errNodeDown}
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := testClient(t, node, WithClock(clock))

	_, err := c.AwaitNote(context.Background(), note.NoteID{}, RetryPolicy{
		Timeout:  time.Second,
		Interval: 100 * time.Millisecond,
	})
	require.ErrorIs(t, err, errNodeDown)
	require.Equal(t, 1, node.attempts)
}

func TestAwaitNoteHonorsCancellation(t *testing.T) {
	node := &fakeNode{visibleAfter: 1 << 30}
	clock := &fakeClock{now: time.Unix(0, 0), hold: true}
	c := testClient(t, node, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.AwaitNote(ctx, note.NoteID{}, RetryPolicy{
		Timeout:  time.Second,
		Interval: 100 * time.Millisecond,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSyncStateUpgradesExpected(t *testing.T) {
	n := testNote(t, 7, 100, 1)
	node := &fakeNode{rec: ledger.NoteRecord{
		Output: ledger.OutputNote{
			ID:       n.ID(),
			Assets:   n.Assets(),
			Metadata: n.Metadata(),
		},
		CreatedAt: 0,
	}}
	c := testClient(t, node)
	require.NoError(t, c.store.PutExpected(txrequest.ExpectedNote{
		Details: note.NoteDetails{Assets: n.Assets(), Recipient: n.Recipient()},
		Tag:     n.Metadata().Tag,
	}))

	sum, err := c.SyncState()
	require.NoError(t, err)
	require.Equal(t, []note.NoteID{n.ID()}, sum.Committed)

	rec, err := c.store.GetNote(n.ID())
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, rec.Status)
	require.Equal(t, n.ID(), rec.Note.ID())

	pending, err := c.store.Expected()
	require.NoError(t, err)
	require.Empty(t, pending)

	// A second pass has nothing new to report.
	sum, err = c.SyncState()
	require.NoError(t, err)
	require.Empty(t, sum.Committed)
	require.Empty(t, sum.Consumed)
}

func TestSyncStateAdoptsChainNonce(t *testing.T) {
	node := &fakeNode{snap: ledger.AccountSnapshot{ID: 42, Nonce: 3}}
	c := testClient(t, node)
	require.NoError(t, c.store.PutAccount(AccountRecord{ID: 42, Nonce: 1}))

	// A transaction this party proved but someone else submitted advanced
	// the chain nonce; sync adopts the chain's count.
	_, err := c.SyncState()
	require.NoError(t, err)
	rec, err := c.store.GetAccount(42)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.Nonce)

	// A remote count behind the local one never regresses it.
	require.NoError(t, c.store.PutAccount(AccountRecord{ID: 42, Nonce: 7}))
	_, err = c.SyncState()
	require.NoError(t, err)
	rec, err = c.store.GetAccount(42)
	require.NoError(t, err)
	require.Equal(t, uint64(7), rec.Nonce)
}

func TestRelayProvenTransaction(t *testing.T) {
	n := testNote(t, 7, 100, 3)
	c := testClient(t, &fakeNode{})
	require.NoError(t, c.store.PutAccount(AccountRecord{ID: 42, Nonce: 1}))
	require.NoError(t, c.store.PutNote(NoteRecord{Note: n, Status: StatusCommitted}))

	req, err := txrequest.NewBuilder().WithUnauthenticatedInputNotes(n).Build()
	require.NoError(t, err)
	ptx := &ledger.ProvenTransaction{
		Transaction: &ledger.Transaction{Account: 42, Nonce: 9, Request: req},
	}
	_, err = c.RelayProvenTransaction(ptx)
	require.NoError(t, err)

	// The relayer is not the sender: no nonce bookkeeping.
	rec, err := c.store.GetAccount(42)
	require.NoError(t, err)
	require.Equal(t, uint64(1), rec.Nonce)

	// A tracked note the relayed transaction consumed still flips over.
	nr, err := c.store.GetNote(n.ID())
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, nr.Status)
}

func TestSyncStateMarksConsumed(t *testing.T) {
	n := testNote(t, 7, 100, 1)
	node := &fakeNode{rec: ledger.NoteRecord{Consumed: true, ConsumedBy: 9}}
	c := testClient(t, node)
	require.NoError(t, c.store.PutNote(NoteRecord{Note: n, Status: StatusCommitted}))

	sum, err := c.SyncState()
	require.NoError(t, err)
	require.Equal(t, []note.NoteID{n.ID()}, sum.Consumed)

	rec, err := c.store.GetNote(n.ID())
	require.NoError(t, err)
	require.Equal(t, StatusConsumed, rec.Status)
}
