// asset.go - Fungible assets and note asset bundles.
//
// Only the fungible asset variant exists in this protocol; non-fungible
// assets are out of scope. An asset is (issuing faucet id, amount), with the
// amount capped at 2^63 - 1 so it always fits a single felt.

package note

import (
	"encoding/json"
	"errors"
	"fmt"

	"noteswap/internal/felt"
)

// Asset construction failures. Fatal, never retried.
var (
	ErrAmountTooLarge     = errors.New("asset amount exceeds 2^63 - 1")
	ErrNotFaucetID        = errors.New("asset issuer is not a faucet account")
	ErrEmptyAssets        = errors.New("note must carry at least one asset")
	ErrDuplicateFaucet    = errors.New("note carries two assets from the same faucet")
	ErrMalformedAssetWord = errors.New("malformed asset word")
)

// FungibleAsset is an amount of one faucet's token.
type FungibleAsset struct {
	Faucet AccountID `json:"faucet"`
	Amount uint64    `json:"amount"`
}

// NewFungibleAsset validates and builds a fungible asset.
func NewFungibleAsset(faucet AccountID, amount uint64) (FungibleAsset, error) {
	if !faucet.IsFaucet() {
		return FungibleAsset{}, fmt.Errorf("%w: %s", ErrNotFaucetID, faucet)
	}
	if amount > felt.MaxAmount {
		return FungibleAsset{}, fmt.Errorf("%w: %d", ErrAmountTooLarge, amount)
	}
	return FungibleAsset{Faucet: faucet, Amount: amount}, nil
}

// Word encodes the asset for the operand stack: [faucet, 0, 0, amount].
func (a FungibleAsset) Word() felt.Word {
	return felt.Word{a.Faucet.Felt(), 0, 0, felt.New(a.Amount)}
}

// AssetFromWord decodes an operand-stack asset word.
func AssetFromWord(w felt.Word) (FungibleAsset, error) {
	if w[1] != 0 || w[2] != 0 {
		return FungibleAsset{}, ErrMalformedAssetWord
	}
	id, err := AccountIDFromFelt(w[0])
	if err != nil {
		return FungibleAsset{}, fmt.Errorf("%w: %v", ErrMalformedAssetWord, err)
	}
	return NewFungibleAsset(id, w[3].Uint64())
}

func (a FungibleAsset) String() string {
	return fmt.Sprintf("%d@%s", a.Amount, a.Faucet)
}

// NoteAssets is the non-empty, ordered asset bundle of a note. At most one
// asset per faucet; order is part of the note's identity.
type NoteAssets struct {
	assets []FungibleAsset
}

// NewNoteAssets validates and freezes an asset bundle.
func NewNoteAssets(assets ...FungibleAsset) (NoteAssets, error) {
	if len(assets) == 0 {
		return NoteAssets{}, ErrEmptyAssets
	}
	seen := make(map[AccountID]struct{}, len(assets))
	for _, a := range assets {
		if _, dup := seen[a.Faucet]; dup {
			return NoteAssets{}, fmt.Errorf("%w: %s", ErrDuplicateFaucet, a.Faucet)
		}
		seen[a.Faucet] = struct{}{}
	}
	out := make([]FungibleAsset, len(assets))
	copy(out, assets)
	return NoteAssets{assets: out}, nil
}

// List returns a copy of the bundle in order.
func (na NoteAssets) List() []FungibleAsset {
	out := make([]FungibleAsset, len(na.assets))
	copy(out, na.assets)
	return out
}

// Len returns the number of assets in the bundle.
func (na NoteAssets) Len() int { return len(na.assets) }

// Commitment hashes the bundle into the digest that feeds the note id.
func (na NoteAssets) Commitment() felt.Digest {
	elems := make([]felt.Felt, 0, len(na.assets)*2)
	for _, a := range na.assets {
		elems = append(elems, a.Faucet.Felt(), felt.New(a.Amount))
	}
	return felt.HashFelts(elems...)
}

// MarshalJSON encodes the bundle as a plain asset list.
func (na NoteAssets) MarshalJSON() ([]byte, error) {
	return json.Marshal(na.assets)
}

// UnmarshalJSON decodes and re-validates an asset list.
func (na *NoteAssets) UnmarshalJSON(data []byte) error {
	var assets []FungibleAsset
	if err := json.Unmarshal(data, &assets); err != nil {
		return err
	}
	got, err := NewNoteAssets(assets...)
	if err != nil {
		return err
	}
	*na = got
	return nil
}
