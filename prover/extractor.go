package prover

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/reilabs/gnark-lean-extractor/v3/extractor"
)

// ExtractLean renders the withdraw circuit as a Lean module for formal verification.
func ExtractLean(treeHeight, whitelistHeight uint32) (string, error) {
	circuit := NewWithdrawCircuit(treeHeight, whitelistHeight)
	return extractor.ExtractCircuits("HideYourCash", ecc.BN254, &circuit)
}
