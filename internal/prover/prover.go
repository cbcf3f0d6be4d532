// prover.go - Groth16 proving and verification of transaction summaries,
// plus proving/verifying key management.
//
// Keys are generated once and cached on disk; parties and the ledger load
// the same pair.

package prover

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"noteswap/internal/felt"
)

// ErrSlotOverflow reports a transaction with more asset entries than the
// circuit covers.
var ErrSlotOverflow = errors.New("prover: transaction exceeds circuit slots")

// Summary is the public face of a settlement proof.
type Summary struct {
	TotalIn           uint64      `json:"total_in"`
	TotalOut          uint64      `json:"total_out"`
	TotalBurned       uint64      `json:"total_burned"`
	TotalMinted       uint64      `json:"total_minted"`
	AmountsCommitment felt.Digest `json:"amounts_commitment"`
}

// Commit computes the amounts commitment binding salt and flows.
func Commit(salt felt.Felt, inputs, outputs []uint64) (felt.Digest, error) {
	if len(inputs) > MaxSlots || len(outputs) > MaxSlots {
		return felt.Digest{}, ErrSlotOverflow
	}
	elems := make([]felt.Felt, 0, 1+2*MaxSlots)
	elems = append(elems, salt)
	for i := 0; i < MaxSlots; i++ {
		elems = append(elems, padded(inputs, i))
	}
	for i := 0; i < MaxSlots; i++ {
		elems = append(elems, padded(outputs, i))
	}
	return felt.HashFelts(elems...), nil
}

func padded(v []uint64, i int) felt.Felt {
	if i < len(v) {
		return felt.New(v[i])
	}
	return 0
}

// Compile builds the settlement constraint system.
func Compile() (constraint.ConstraintSystem, error) {
	var circuit SettlementCircuit
	ccs, err := frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("prover: circuit compilation failed: %w", err)
	}
	return ccs, nil
}

// Prove generates a settlement proof for the summary and its private flows.
func Prove(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, s Summary, salt felt.Felt, inputs, outputs []uint64) ([]byte, error) {
	if len(inputs) > MaxSlots || len(outputs) > MaxSlots {
		return nil, ErrSlotOverflow
	}
	assignment := &SettlementCircuit{
		TotalIn:           s.TotalIn,
		TotalOut:          s.TotalOut,
		TotalBurned:       s.TotalBurned,
		TotalMinted:       s.TotalMinted,
		AmountsCommitment: s.AmountsCommitment.Big(),
		Salt:              salt.Uint64(),
	}
	for i := 0; i < MaxSlots; i++ {
		assignment.InputAmounts[i] = padded(inputs, i).Uint64()
		assignment.OutputAmounts[i] = padded(outputs, i).Uint64()
	}
	w, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("prover: witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("prover: proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("prover: proof marshaling failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify checks a settlement proof against its public summary.
func Verify(vk groth16.VerifyingKey, proofBytes []byte, s Summary) error {
	assignment := &SettlementCircuit{
		TotalIn:           s.TotalIn,
		TotalOut:          s.TotalOut,
		TotalBurned:       s.TotalBurned,
		TotalMinted:       s.TotalMinted,
		AmountsCommitment: s.AmountsCommitment.Big(),
		Salt:              big.NewInt(0),
	}
	for i := 0; i < MaxSlots; i++ {
		assignment.InputAmounts[i] = 0
		assignment.OutputAmounts[i] = 0
	}
	w, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("prover: public witness creation failed: %w", err)
	}
	proof := groth16.NewProof(ecc.BW6_761)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("prover: proof unmarshaling failed: %w", err)
	}
	if err := groth16.Verify(proof, vk, w); err != nil {
		return fmt.Errorf("prover: proof verification failed: %w", err)
	}
	return nil
}

// SaveProvingKey writes a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey writes a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey reads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BW6_761)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey reads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BW6_761)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// SetupOrLoadKeys loads the key pair from disk when present, otherwise
// generates and saves a fresh pair.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}
