// account.go - On-ledger accounts: wallets and fungible faucets.
//
// Accounts are built client-side from a 32-byte seed and registered on the
// ledger before their first transaction. A faucet account additionally
// carries its token configuration; by default a faucet may only distribute
// what the same transaction burned, which is what keeps a drain script from
// minting against a well-behaved faucet.

package ledger

import (
	"errors"
	"fmt"

	"noteswap/internal/felt"
	"noteswap/internal/keystore"
	"noteswap/internal/note"
)

// AccountStorageMode controls whether the ledger answers state queries for
// an account.
type AccountStorageMode uint8

const (
	StoragePublic AccountStorageMode = iota
	StoragePrivate
)

func (m AccountStorageMode) String() string {
	if m == StoragePrivate {
		return "private"
	}
	return "public"
}

// maxDecimals bounds faucet token precision.
const maxDecimals = 12

// Account construction failures.
var (
	ErrBadTokenSymbol = errors.New("ledger: token symbol must be 1-4 uppercase letters")
	ErrBadDecimals    = errors.New("ledger: token decimals exceed 12")
	ErrZeroMaxSupply  = errors.New("ledger: faucet max supply must be positive")
	ErrNoAuthKey      = errors.New("ledger: account built without an auth key")
)

// TokenSymbol is a faucet's short ticker, 1 to 4 uppercase ASCII letters.
type TokenSymbol string

// NewTokenSymbol validates a ticker.
func NewTokenSymbol(s string) (TokenSymbol, error) {
	if len(s) < 1 || len(s) > 4 {
		return "", fmt.Errorf("%w: %q", ErrBadTokenSymbol, s)
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrBadTokenSymbol, s)
		}
	}
	return TokenSymbol(s), nil
}

// FaucetConfig is the token policy baked into a faucet account.
type FaucetConfig struct {
	Symbol    TokenSymbol `json:"symbol"`
	Decimals  uint8       `json:"decimals"`
	MaxSupply uint64      `json:"max_supply"`

	// BoundDistribute requires every distribute to be covered by an equal
	// burn within the same transaction.
	BoundDistribute bool `json:"bound_distribute"`
}

// Account is ledger-side account state. The zero value is not usable; build
// accounts through AccountBuilder or NewFungibleFaucet.
type Account struct {
	id          note.AccountID
	storageMode AccountStorageMode
	authKey     keystore.PublicKey

	faucet *FaucetConfig
	issued uint64

	vault map[note.AccountID]uint64
	nonce uint64
}

// ID returns the account's ledger id.
func (a *Account) ID() note.AccountID { return a.id }

// StorageMode returns the account's visibility on the ledger.
func (a *Account) StorageMode() AccountStorageMode { return a.storageMode }

// AuthKey returns the public key transactions must be signed under.
func (a *Account) AuthKey() keystore.PublicKey { return a.authKey }

// IsFaucet reports whether the account issues a token.
func (a *Account) IsFaucet() bool { return a.faucet != nil }

// Faucet returns a copy of the token configuration, or nil for wallets.
func (a *Account) Faucet() *FaucetConfig {
	if a.faucet == nil {
		return nil
	}
	cfg := *a.faucet
	return &cfg
}

// Issued returns the total the faucet has minted so far.
func (a *Account) Issued() uint64 { return a.issued }

// Nonce returns the account's last applied transaction nonce.
func (a *Account) Nonce() uint64 { return a.nonce }

// Balance returns the vault balance for one faucet's token.
func (a *Account) Balance(faucet note.AccountID) uint64 { return a.vault[faucet] }

// Vault returns a copy of the full vault.
func (a *Account) Vault() map[note.AccountID]uint64 {
	out := make(map[note.AccountID]uint64, len(a.vault))
	for k, v := range a.vault {
		out[k] = v
	}
	return out
}

// Code commitments per account flavor; they feed id derivation so a wallet
// and a faucet built from the same seed get distinct ids.
var (
	walletCodeRoot = felt.Hash([]byte("basic-wallet-code"))
	faucetCodeRoot = felt.Hash([]byte("fungible-faucet-code"))
)

// AccountBuilder assembles a wallet account from its seed.
type AccountBuilder struct {
	seed    [32]byte
	mode    AccountStorageMode
	authKey *keystore.PublicKey
}

// NewAccountBuilder starts a wallet build from a 32-byte seed.
func NewAccountBuilder(seed [32]byte) *AccountBuilder {
	return &AccountBuilder{seed: seed}
}

// WithStorageMode sets the account's visibility. Default is public.
func (b *AccountBuilder) WithStorageMode(m AccountStorageMode) *AccountBuilder {
	b.mode = m
	return b
}

// WithAuthKey sets the key transactions must be signed under. Required.
func (b *AccountBuilder) WithAuthKey(pk keystore.PublicKey) *AccountBuilder {
	b.authKey = &pk
	return b
}

// Build derives the account id and returns the fresh account.
func (b *AccountBuilder) Build() (*Account, error) {
	if b.authKey == nil {
		return nil, ErrNoAuthKey
	}
	return &Account{
		id:          note.AccountIDFromSeed(b.seed, walletCodeRoot, note.KindRegular),
		storageMode: b.mode,
		authKey:     *b.authKey,
		vault:       make(map[note.AccountID]uint64),
	}, nil
}

// FaucetOption adjusts faucet policy at build time.
type FaucetOption func(*FaucetConfig)

// WithUnboundDistribute lets the faucet distribute without a covering burn.
// A faucet built this way is drainable by any note script it consumes.
func WithUnboundDistribute() FaucetOption {
	return func(cfg *FaucetConfig) { cfg.BoundDistribute = false }
}

// NewFungibleFaucet builds a faucet account issuing one token.
func NewFungibleFaucet(seed [32]byte, authKey keystore.PublicKey, symbol string, decimals uint8, maxSupply uint64, opts ...FaucetOption) (*Account, error) {
	sym, err := NewTokenSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if decimals > maxDecimals {
		return nil, fmt.Errorf("%w: %d", ErrBadDecimals, decimals)
	}
	if maxSupply == 0 {
		return nil, ErrZeroMaxSupply
	}
	if maxSupply > felt.MaxAmount {
		return nil, fmt.Errorf("%w: %d", note.ErrAmountTooLarge, maxSupply)
	}
	cfg := &FaucetConfig{
		Symbol:          sym,
		Decimals:        decimals,
		MaxSupply:       maxSupply,
		BoundDistribute: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	code := felt.Hash(faucetCodeRoot[:], []byte(sym))
	return &Account{
		id:          note.AccountIDFromSeed(seed, code, note.KindFaucet),
		storageMode: StoragePublic,
		authKey:     authKey,
		faucet:      cfg,
		vault:       make(map[note.AccountID]uint64),
	}, nil
}

// AccountSnapshot is what a state query returns for a public account.
type AccountSnapshot struct {
	ID          note.AccountID            `json:"id"`
	StorageMode AccountStorageMode        `json:"storage_mode"`
	Nonce       uint64                    `json:"nonce"`
	Vault       map[note.AccountID]uint64 `json:"vault"`
	Faucet      *FaucetConfig             `json:"faucet,omitempty"`
	Issued      uint64                    `json:"issued,omitempty"`
}

func (a *Account) snapshot() AccountSnapshot {
	return AccountSnapshot{
		ID:          a.id,
		StorageMode: a.storageMode,
		Nonce:       a.nonce,
		Vault:       a.Vault(),
		Faucet:      a.Faucet(),
		Issued:      a.issued,
	}
}
