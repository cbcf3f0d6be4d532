// account_id.go - Account identifiers.
//
// An account id is a single felt-safe integer. The two bits below the top
// carry the account kind, so a faucet id is distinguishable from a regular
// wallet id without any lookup.

package note

import (
	"fmt"

	"noteswap/internal/felt"
)

// AccountKind is the coarse account classification baked into the id.
type AccountKind uint8

const (
	// KindRegular is a wallet account with immutable code.
	KindRegular AccountKind = iota
	// KindFaucet is an account authorized to mint and burn one fungible
	// asset.
	KindFaucet
)

const (
	accountKindShift = 60
	accountKindMask  = uint64(0x3) << accountKindShift
	accountIDMax     = uint64(1)<<62 - 1
)

// AccountID identifies an account on the ledger.
type AccountID uint64

// AccountIDFromSeed derives a deterministic id of the given kind from an
// account seed and a code commitment.
func AccountIDFromSeed(seed [32]byte, code felt.Digest, kind AccountKind) AccountID {
	d := felt.Hash(seed[:], code[:])
	raw := d.Word()[0].Uint64() &^ accountKindMask
	raw |= uint64(kind) << accountKindShift
	return AccountID(raw & accountIDMax)
}

// AccountIDFromFelt validates and converts a raw felt into an account id.
func AccountIDFromFelt(f felt.Felt) (AccountID, error) {
	if f.Uint64() > accountIDMax {
		return 0, fmt.Errorf("account id out of range: %d", f.Uint64())
	}
	return AccountID(f.Uint64()), nil
}

// Kind returns the account kind encoded in the id.
func (id AccountID) Kind() AccountKind {
	return AccountKind((uint64(id) & accountKindMask) >> accountKindShift)
}

// IsFaucet reports whether the id identifies a faucet account.
func (id AccountID) IsFaucet() bool { return id.Kind() == KindFaucet }

// Felt returns the id as a field element.
func (id AccountID) Felt() felt.Felt { return felt.New(uint64(id)) }

func (id AccountID) String() string { return fmt.Sprintf("0x%015x", uint64(id)) }
