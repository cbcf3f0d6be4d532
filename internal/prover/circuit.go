// circuit.go - The settlement circuit.
//
// The proof attests the conservation relation of a transaction summary:
// claimed totals match the (private) per-asset amounts, inputs plus mints
// equal outputs plus burns, and the amounts are bound to the public
// commitment. Note authorization and script semantics stay with the ledger;
// the proof covers cryptographic consistency of the declared flows.

package prover

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// MaxSlots bounds the per-side asset entries a single proof covers.
const MaxSlots = 8

// SettlementCircuit proves conservation over a fixed number of asset slots.
// Unused slots carry zero.
type SettlementCircuit struct {
	// Public inputs
	TotalIn           frontend.Variable `gnark:",public"`
	TotalOut          frontend.Variable `gnark:",public"`
	TotalBurned       frontend.Variable `gnark:",public"`
	TotalMinted       frontend.Variable `gnark:",public"`
	AmountsCommitment frontend.Variable `gnark:",public"`

	// Private inputs
	Salt          frontend.Variable
	InputAmounts  [MaxSlots]frontend.Variable
	OutputAmounts [MaxSlots]frontend.Variable
}

func (c *SettlementCircuit) Define(api frontend.API) error {
	sumIn := frontend.Variable(0)
	for i := 0; i < MaxSlots; i++ {
		sumIn = api.Add(sumIn, c.InputAmounts[i])
	}
	api.AssertIsEqual(c.TotalIn, sumIn)

	sumOut := frontend.Variable(0)
	for i := 0; i < MaxSlots; i++ {
		sumOut = api.Add(sumOut, c.OutputAmounts[i])
	}
	api.AssertIsEqual(c.TotalOut, sumOut)

	// Conservation: inputs + mints == outputs + burns.
	api.AssertIsEqual(
		api.Add(c.TotalIn, c.TotalMinted),
		api.Add(c.TotalOut, c.TotalBurned),
	)

	// Bind the private amounts to the public commitment.
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(c.Salt)
	for i := 0; i < MaxSlots; i++ {
		hasher.Write(c.InputAmounts[i])
	}
	for i := 0; i < MaxSlots; i++ {
		hasher.Write(c.OutputAmounts[i])
	}
	api.AssertIsEqual(c.AmountsCommitment, hasher.Sum())

	return nil
}
