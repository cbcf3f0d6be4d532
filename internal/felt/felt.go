// felt.go - Field elements and words for the note protocol.
//
// Every value that crosses the note-script boundary (amounts, tags, account
// ids, digest limbs) is a Felt: an unsigned integer reduced modulo the
// 64-bit Goldilocks prime 2^64 - 2^32 + 1. A Word is four felts and is the
// unit in which digests and assets travel on the operand stack.

package felt

import (
	"encoding/binary"
	"fmt"
)

// Modulus is the Goldilocks prime 2^64 - 2^32 + 1.
const Modulus uint64 = 0xFFFFFFFF00000001

// MaxAmount is the largest amount representable in a single felt without
// ambiguity: 2^63 - 1. Asset amounts are capped here.
const MaxAmount uint64 = 1<<63 - 1

// Felt is a single field element.
type Felt uint64

// New reduces v into the field.
func New(v uint64) Felt {
	if v >= Modulus {
		v -= Modulus
	}
	return Felt(v)
}

// Uint64 returns the canonical integer value of the element.
func (f Felt) Uint64() uint64 { return uint64(f) }

// Bytes returns the 8-byte big-endian encoding of the element.
func (f Felt) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(f))
	return b[:]
}

// Word is four field elements, the protocol's digest and asset unit.
type Word [4]Felt

// WordFromUint64 builds a word from four raw integers, reducing each.
func WordFromUint64(a, b, c, d uint64) Word {
	return Word{New(a), New(b), New(c), New(d)}
}

// Bytes returns the 32-byte big-endian encoding of the word.
func (w Word) Bytes() []byte {
	out := make([]byte, 0, 32)
	for _, f := range w {
		out = append(out, f.Bytes()...)
	}
	return out
}

// Felts returns the word's elements in push order (w[0] first).
func (w Word) Felts() []Felt { return []Felt{w[0], w[1], w[2], w[3]} }

func (w Word) String() string {
	return fmt.Sprintf("[%d %d %d %d]", w[0], w[1], w[2], w[3])
}

// IsZero reports whether every element of the word is zero.
func (w Word) IsZero() bool {
	return w == Word{}
}
