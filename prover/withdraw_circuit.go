package prover

import (
	"github.com/consensys/gnark/frontend"
	"github.com/reilabs/gnark-lean-extractor/v3/abstractor"
)

// WithdrawCircuit proves knowledge of a deposit note whose commitment is in the commitment
// tree and whose depositor is in the whitelist tree. Public fields are declared in the
// order the verifier receives them.
type WithdrawCircuit struct {
	Root          frontend.Variable `gnark:",public"`
	NullifierHash frontend.Variable `gnark:",public"`
	Recipient     frontend.Variable `gnark:",public"`
	Relayer       frontend.Variable `gnark:",public"`
	Fee           frontend.Variable `gnark:",public"`
	Refund        frontend.Variable `gnark:",public"`
	WhitelistRoot frontend.Variable `gnark:",public"`

	Secret                frontend.Variable   `gnark:",secret"`
	Nullifier             frontend.Variable   `gnark:",secret"`
	AccountHash           frontend.Variable   `gnark:",secret"`
	PathIndex             frontend.Variable   `gnark:",secret"`
	PathElements          []frontend.Variable `gnark:",secret"`
	WhitelistPathIndex    frontend.Variable   `gnark:",secret"`
	WhitelistPathElements []frontend.Variable `gnark:",secret"`

	Height          uint32
	WhitelistHeight uint32
}

func (circuit *WithdrawCircuit) Define(api frontend.API) error {
	nullifierHash := abstractor.Call(api, MiMCHash{Inputs: []frontend.Variable{circuit.Nullifier}})
	api.AssertIsEqual(nullifierHash, circuit.NullifierHash)

	commitment := abstractor.Call(api, CommitmentGadget{
		Secret:      circuit.Secret,
		Nullifier:   circuit.Nullifier,
		AccountHash: circuit.AccountHash,
	})
	abstractor.CallVoid(api, InclusionProof{
		Root:      circuit.Root,
		Leaf:      commitment,
		PathIndex: circuit.PathIndex,
		Path:      circuit.PathElements,
		Height:    int(circuit.Height),
	})
	abstractor.CallVoid(api, InclusionProof{
		Root:      circuit.WhitelistRoot,
		Leaf:      circuit.AccountHash,
		PathIndex: circuit.WhitelistPathIndex,
		Path:      circuit.WhitelistPathElements,
		Height:    int(circuit.WhitelistHeight),
	})

	// recipient, relayer, fee and refund are otherwise unconstrained
	api.Mul(circuit.Recipient, circuit.Recipient)
	api.Mul(circuit.Relayer, circuit.Relayer)
	api.Mul(circuit.Fee, circuit.Fee)
	api.Mul(circuit.Refund, circuit.Refund)
	return nil
}

// NewWithdrawCircuit allocates the path slices for the given tree heights.
func NewWithdrawCircuit(treeHeight, whitelistHeight uint32) WithdrawCircuit {
	return WithdrawCircuit{
		PathElements:          make([]frontend.Variable, treeHeight),
		WhitelistPathElements: make([]frontend.Variable, whitelistHeight),
		Height:                treeHeight,
		WhitelistHeight:       whitelistHeight,
	}
}
