// digest.go - MiMC digests over the proving field.
//
// Digests (note ids, recipient digests, script roots) are MiMC sums in the
// BW6-761 scalar field, the same hash the settlement circuit evaluates.
// A digest is carried in two forms: the raw field value (what the circuit
// sees) and a 4-limb word (what the script VM pushes).

package felt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"

	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// DigestSize is the size of a MiMC sum in the BW6-761 scalar field.
const DigestSize = 48

// Digest is a MiMC hash value.
type Digest [DigestSize]byte

// Hash absorbs the given chunks into a fresh MiMC instance and returns the
// sum. Each chunk must be a canonical field encoding (at most 48 bytes and
// below the modulus); callers only ever pass 8- or 48-byte values.
func Hash(chunks ...[]byte) Digest {
	h := mimcNative.NewMiMC()
	for _, c := range chunks {
		h.Write(c)
	}
	sum := h.Sum(nil)
	var d Digest
	copy(d[DigestSize-len(sum):], sum)
	return d
}

// HashFelts hashes a sequence of field elements.
func HashFelts(elems ...Felt) Digest {
	chunks := make([][]byte, len(elems))
	for i, e := range elems {
		chunks[i] = e.Bytes()
	}
	return Hash(chunks...)
}

// Big returns the digest as an integer in the proving field.
func (d Digest) Big() *big.Int {
	return new(big.Int).SetBytes(d[:])
}

// Word folds the digest into four felt limbs for the operand stack. The
// limbs are the first four 8-byte windows of the sum, each reduced.
func (d Digest) Word() Word {
	var w Word
	for i := 0; i < 4; i++ {
		w[i] = New(binary.BigEndian.Uint64(d[i*8 : i*8+8]))
	}
	return w
}

// Hex returns the full hex encoding of the digest.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

func (d Digest) String() string { return "0x" + d.Hex()[:16] }

// IsZero reports whether the digest is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalJSON encodes the digest as a hex string.
func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Hex() + `"`), nil
}

// UnmarshalJSON decodes a hex string digest.
func (d *Digest) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("digest: not a JSON string")
	}
	raw, err := hex.DecodeString(string(data[1 : len(data)-1]))
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	if len(raw) != DigestSize {
		return fmt.Errorf("digest: want %d bytes, got %d", DigestSize, len(raw))
	}
	copy(d[:], raw)
	return nil
}
