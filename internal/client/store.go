// store.go - Durable client-side state.
//
// The store keeps everything a party must not lose across restarts: notes it
// tracks (with their consumption preimages), expected-note registrations
// awaiting a counterparty, and the accounts it controls or watches. Backed
// by LevelDB with a small LRU in front of note reads.

package client

import (
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"noteswap/internal/note"
	"noteswap/internal/txrequest"
)

// NoteStatus tracks a note through its lifecycle in the local view.
type NoteStatus string

const (
	// StatusExpected marks a note registered before a counterparty
	// creates it.
	StatusExpected NoteStatus = "expected"
	// StatusCommitted marks a note confirmed on chain and spendable.
	StatusCommitted NoteStatus = "committed"
	// StatusConsumed marks a note the chain reports as spent.
	StatusConsumed NoteStatus = "consumed"
)

// ErrNotTracked reports a store lookup for an unknown id.
var ErrNotTracked = errors.New("client: id not tracked in store")

// NoteRecord is the local view of one note.
type NoteRecord struct {
	Note   *note.Note   `json:"note"`
	Tag    note.NoteTag `json:"tag"`
	Status NoteStatus   `json:"status"`
}

// AccountRecord is the local view of one account.
type AccountRecord struct {
	ID        note.AccountID `json:"id"`
	PublicKey []byte         `json:"public_key"`
	Nonce     uint64         `json:"nonce"`
	WatchOnly bool           `json:"watch_only"`
}

const noteCacheSize = 256

var (
	notePrefix     = []byte("n/")
	expectedPrefix = []byte("e/")
	accountPrefix  = []byte("a/")
)

// Store is the LevelDB-backed client state.
type Store struct {
	db    *leveldb.DB
	cache *lru.Cache
}

// OpenStore opens (or creates) a store at path.
func OpenStore(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("client: opening store: %w", err)
	}
	cache, err := lru.New(noteCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, cache: cache}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func noteKey(id note.NoteID) []byte     { return append(append([]byte{}, notePrefix...), id[:]...) }
func expectedKey(id note.NoteID) []byte { return append(append([]byte{}, expectedPrefix...), id[:]...) }
func accountKey(id note.AccountID) []byte {
	return append(append([]byte{}, accountPrefix...), id.Felt().Bytes()...)
}

// PutNote upserts a tracked note.
func (s *Store) PutNote(rec NoteRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	id := rec.Note.ID()
	if err := s.db.Put(noteKey(id), data, nil); err != nil {
		return err
	}
	s.cache.Add(id, rec)
	return nil
}

// GetNote returns a tracked note by id.
func (s *Store) GetNote(id note.NoteID) (NoteRecord, error) {
	if v, ok := s.cache.Get(id); ok {
		return v.(NoteRecord), nil
	}
	data, err := s.db.Get(noteKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return NoteRecord{}, fmt.Errorf("%w: note %s", ErrNotTracked, id)
	}
	if err != nil {
		return NoteRecord{}, err
	}
	var rec NoteRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return NoteRecord{}, err
	}
	s.cache.Add(id, rec)
	return rec, nil
}

// NotesByStatus lists tracked notes in the given state.
func (s *Store) NotesByStatus(status NoteStatus) ([]NoteRecord, error) {
	var out []NoteRecord
	it := s.db.NewIterator(util.BytesPrefix(notePrefix), nil)
	defer it.Release()
	for it.Next() {
		var rec NoteRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, err
		}
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, it.Error()
}

// PutExpected registers an expected future note.
func (s *Store) PutExpected(e txrequest.ExpectedNote) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Put(expectedKey(e.Details.ID()), data, nil)
}

// Expected lists every pending expected-note registration.
func (s *Store) Expected() ([]txrequest.ExpectedNote, error) {
	var out []txrequest.ExpectedNote
	it := s.db.NewIterator(util.BytesPrefix(expectedPrefix), nil)
	defer it.Release()
	for it.Next() {
		var e txrequest.ExpectedNote
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, it.Error()
}

// DeleteExpected drops a registration once the note materialized.
func (s *Store) DeleteExpected(id note.NoteID) error {
	return s.db.Delete(expectedKey(id), nil)
}

// PutAccount upserts a tracked account.
func (s *Store) PutAccount(rec AccountRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Put(accountKey(rec.ID), data, nil)
}

// Accounts lists every tracked account.
func (s *Store) Accounts() ([]AccountRecord, error) {
	var out []AccountRecord
	it := s.db.NewIterator(util.BytesPrefix(accountPrefix), nil)
	defer it.Release()
	for it.Next() {
		var rec AccountRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, it.Error()
}

// GetAccount returns a tracked account by id.
func (s *Store) GetAccount(id note.AccountID) (AccountRecord, error) {
	data, err := s.db.Get(accountKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return AccountRecord{}, fmt.Errorf("%w: account %s", ErrNotTracked, id)
	}
	if err != nil {
		return AccountRecord{}, err
	}
	var rec AccountRecord
	err = json.Unmarshal(data, &rec)
	return rec, err
}
