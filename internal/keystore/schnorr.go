// schnorr.go - Schnorr signatures over BLS12-377 G1.
//
// The account authorization scheme: accounts declare a public key, the
// keystore holds the matching secret, and the ledger verifies a Schnorr
// signature over the transaction digest. The challenge hash is MiMC, the
// same hash the rest of the protocol runs on.

package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// PublicKey is a point on BLS12-377 G1.
type PublicKey = bls12377.G1Affine

// SecretKey is a Schnorr signing key.
type SecretKey struct {
	scalar bls12377_fr.Element
	pub    PublicKey
}

// Signature is a Schnorr signature (commitment point, response scalar).
type Signature struct {
	R bls12377.G1Affine
	S bls12377_fr.Element
}

// ErrInvalidSignature reports a failed verification.
var ErrInvalidSignature = errors.New("keystore: invalid signature")

type signatureJSON struct {
	R string `json:"r"`
	S string `json:"s"`
}

// MarshalJSON encodes the signature as hex of the compressed commitment
// point and the response scalar, so signed transactions can travel between
// parties.
func (sig Signature) MarshalJSON() ([]byte, error) {
	r := sig.R.Bytes()
	s := sig.S.Bytes()
	return json.Marshal(signatureJSON{
		R: hex.EncodeToString(r[:]),
		S: hex.EncodeToString(s[:]),
	})
}

// UnmarshalJSON decodes a hex-encoded signature.
func (sig *Signature) UnmarshalJSON(data []byte) error {
	var raw signatureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rb, err := hex.DecodeString(raw.R)
	if err != nil {
		return fmt.Errorf("keystore: signature commitment: %w", err)
	}
	if _, err := sig.R.SetBytes(rb); err != nil {
		return fmt.Errorf("keystore: signature commitment: %w", err)
	}
	sb, err := hex.DecodeString(raw.S)
	if err != nil {
		return fmt.Errorf("keystore: signature response: %w", err)
	}
	sig.S.SetBytes(sb)
	return nil
}

func generator() bls12377.G1Affine {
	g1Jac, _, _, _ := bls12377.Generators()
	var g bls12377.G1Affine
	g.FromJacobian(&g1Jac)
	return g
}

// GenerateKey draws a fresh Schnorr keypair.
func GenerateKey() (*SecretKey, error) {
	var sk SecretKey
	if _, err := sk.scalar.SetRandom(); err != nil {
		return nil, err
	}
	g := generator()
	sk.pub.ScalarMultiplication(&g, sk.scalar.BigInt(new(big.Int)))
	return &sk, nil
}

// Public returns the verification key.
func (sk *SecretKey) Public() PublicKey { return sk.pub }

// challenge hashes (R, pk, msg) into a scalar.
func challenge(r, pk *bls12377.G1Affine, msg []byte) bls12377_fr.Element {
	h := mimcNative.NewMiMC()
	rx, ry := r.X.Bytes(), r.Y.Bytes()
	px, py := pk.X.Bytes(), pk.Y.Bytes()
	h.Write(rx[:])
	h.Write(ry[:])
	h.Write(px[:])
	h.Write(py[:])
	h.Write(msg)
	e := new(big.Int).SetBytes(h.Sum(nil))
	e.Mod(e, bls12377_fr.Modulus())
	var out bls12377_fr.Element
	out.SetBigInt(e)
	return out
}

// Sign produces a Schnorr signature over msg.
func (sk *SecretKey) Sign(msg []byte) (Signature, error) {
	var k bls12377_fr.Element
	if _, err := k.SetRandom(); err != nil {
		return Signature{}, err
	}
	g := generator()
	var sig Signature
	sig.R.ScalarMultiplication(&g, k.BigInt(new(big.Int)))
	e := challenge(&sig.R, &sk.pub, msg)
	// s = k + e * sk
	sig.S.Mul(&e, &sk.scalar)
	sig.S.Add(&sig.S, &k)
	return sig, nil
}

// Verify checks a Schnorr signature: g^s == R + pk^e.
func Verify(pk PublicKey, msg []byte, sig Signature) error {
	g := generator()
	var lhs bls12377.G1Affine
	lhs.ScalarMultiplication(&g, sig.S.BigInt(new(big.Int)))

	e := challenge(&sig.R, &pk, msg)
	var rhs bls12377.G1Affine
	rhs.ScalarMultiplication(&pk, e.BigInt(new(big.Int)))
	rhs.Add(&rhs, &sig.R)

	if !lhs.Equal(&rhs) {
		return ErrInvalidSignature
	}
	return nil
}
