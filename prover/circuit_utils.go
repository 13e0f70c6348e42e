package prover

import (
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/reilabs/gnark-lean-extractor/v3/abstractor"
)

type Proof struct {
	Proof groth16.Proof
}

// MiMCHash mirrors fieldhash.Hash inside the circuit.
type MiMCHash struct {
	Inputs []frontend.Variable
}

func (gadget MiMCHash) DefineGadget(api frontend.API) interface{} {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		panic(err)
	}
	h.Write(gadget.Inputs...)
	return h.Sum()
}

type CommitmentGadget struct {
	Secret      frontend.Variable
	Nullifier   frontend.Variable
	AccountHash frontend.Variable
}

func (gadget CommitmentGadget) DefineGadget(api frontend.API) interface{} {
	inner := abstractor.Call(api, MiMCHash{Inputs: []frontend.Variable{gadget.Secret, gadget.Nullifier}})
	return abstractor.Call(api, MiMCHash{Inputs: []frontend.Variable{inner, gadget.AccountHash}})
}

type ProveParentHash struct {
	Bit     frontend.Variable
	Hash    frontend.Variable
	Sibling frontend.Variable
}

func (gadget ProveParentHash) DefineGadget(api frontend.API) interface{} {
	api.AssertIsBoolean(gadget.Bit)
	d1 := api.Select(gadget.Bit, gadget.Sibling, gadget.Hash)
	d2 := api.Select(gadget.Bit, gadget.Hash, gadget.Sibling)
	return abstractor.Call(api, MiMCHash{Inputs: []frontend.Variable{d1, d2}})
}

// MerkleRootGadget folds a leaf up its path. Index holds the leaf index bits, least significant first.
type MerkleRootGadget struct {
	Hash   frontend.Variable
	Index  []frontend.Variable
	Path   []frontend.Variable
	Height int
}

func (gadget MerkleRootGadget) DefineGadget(api frontend.API) interface{} {
	currentHash := gadget.Hash
	for i := 0; i < gadget.Height; i++ {
		currentHash = abstractor.Call(api, ProveParentHash{
			Bit:     gadget.Index[i],
			Hash:    currentHash,
			Sibling: gadget.Path[i],
		})
	}
	return currentHash
}

type InclusionProof struct {
	Root      frontend.Variable
	Leaf      frontend.Variable
	PathIndex frontend.Variable
	Path      []frontend.Variable
	Height    int
}

func (gadget InclusionProof) DefineGadget(api frontend.API) interface{} {
	currentPath := api.ToBinary(gadget.PathIndex, gadget.Height)
	root := abstractor.Call(api, MerkleRootGadget{
		Hash:   gadget.Leaf,
		Index:  currentPath,
		Path:   gadget.Path,
		Height: gadget.Height,
	})
	api.AssertIsEqual(root, gadget.Root)
	return root
}
