package prover

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"hyc/hyc-node/fieldhash"
	"hyc/hyc-node/logging"
)

// NumPublicInputs is the length of [root, nullifierHash, recipient, relayer, fee, refund, whitelistRoot].
const NumPublicInputs = 7

var ErrArityMismatch = errors.New("verifying key does not expect 7 public inputs")

type WithdrawProofSystem struct {
	TreeHeight       uint32
	WhitelistHeight  uint32
	ProvingKey       groth16.ProvingKey
	VerifyingKey     groth16.VerifyingKey
	ConstraintSystem constraint.ConstraintSystem
}

func R1CSWithdraw(treeHeight, whitelistHeight uint32) (constraint.ConstraintSystem, error) {
	circuit := NewWithdrawCircuit(treeHeight, whitelistHeight)
	return frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
}

// SetupWithdraw runs a local (insecure, single party) groth16 setup. Production keys come
// from a ceremony and are loaded with ReadSystemFromFile / LoadVerifyingKey.
func SetupWithdraw(treeHeight, whitelistHeight uint32) (*WithdrawProofSystem, error) {
	ccs, err := R1CSWithdraw(treeHeight, whitelistHeight)
	if err != nil {
		return nil, err
	}
	logging.Logger().Info().
		Uint32("tree_height", treeHeight).
		Uint32("whitelist_height", whitelistHeight).
		Int("constraints", ccs.GetNbConstraints()).
		Msg("compiled withdraw circuit")
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, err
	}
	return &WithdrawProofSystem{
		TreeHeight:       treeHeight,
		WhitelistHeight:  whitelistHeight,
		ProvingKey:       pk,
		VerifyingKey:     vk,
		ConstraintSystem: ccs,
	}, nil
}

type WithdrawParameters struct {
	Root          big.Int
	NullifierHash big.Int
	Recipient     big.Int
	Relayer       big.Int
	Fee           big.Int
	Refund        big.Int
	WhitelistRoot big.Int

	Secret                big.Int
	Nullifier             big.Int
	AccountHash           big.Int
	PathIndex             uint64
	PathElements          []big.Int
	WhitelistPathIndex    uint64
	WhitelistPathElements []big.Int
}

// PublicInputs returns the vector in circuit order.
func (p *WithdrawParameters) PublicInputs() []*big.Int {
	return []*big.Int{&p.Root, &p.NullifierHash, &p.Recipient, &p.Relayer, &p.Fee, &p.Refund, &p.WhitelistRoot}
}

func (p *WithdrawParameters) ValidateShape(treeHeight, whitelistHeight uint32) error {
	if len(p.PathElements) != int(treeHeight) {
		return fmt.Errorf("wrong size of commitment merkle proof: %d, want %d", len(p.PathElements), treeHeight)
	}
	if len(p.WhitelistPathElements) != int(whitelistHeight) {
		return fmt.Errorf("wrong size of whitelist merkle proof: %d, want %d", len(p.WhitelistPathElements), whitelistHeight)
	}
	for i, v := range p.PublicInputs() {
		if !fieldhash.InField(v) {
			return fmt.Errorf("public input %d is not a field element", i)
		}
	}
	return nil
}

// Assignment fills a full witness for the circuit shape of the given heights.
func (p *WithdrawParameters) Assignment(treeHeight, whitelistHeight uint32) WithdrawCircuit {
	assignment := NewWithdrawCircuit(treeHeight, whitelistHeight)
	assignment.Root = p.Root
	assignment.NullifierHash = p.NullifierHash
	assignment.Recipient = p.Recipient
	assignment.Relayer = p.Relayer
	assignment.Fee = p.Fee
	assignment.Refund = p.Refund
	assignment.WhitelistRoot = p.WhitelistRoot
	assignment.Secret = p.Secret
	assignment.Nullifier = p.Nullifier
	assignment.AccountHash = p.AccountHash
	assignment.PathIndex = p.PathIndex
	assignment.WhitelistPathIndex = p.WhitelistPathIndex
	for i := range p.PathElements {
		assignment.PathElements[i] = p.PathElements[i]
	}
	for i := range p.WhitelistPathElements {
		assignment.WhitelistPathElements[i] = p.WhitelistPathElements[i]
	}
	return assignment
}

func ProveWithdraw(ps *WithdrawProofSystem, params *WithdrawParameters) (*Proof, error) {
	if err := params.ValidateShape(ps.TreeHeight, ps.WhitelistHeight); err != nil {
		return nil, err
	}

	assignment := params.Assignment(ps.TreeHeight, ps.WhitelistHeight)
	witness, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	logging.Logger().Info().
		Uint32("tree_height", ps.TreeHeight).
		Uint32("whitelist_height", ps.WhitelistHeight).
		Msg("proving withdrawal")
	proof, err := groth16.Prove(ps.ConstraintSystem, ps.ProvingKey, witness)
	if err != nil {
		return nil, err
	}
	return &Proof{Proof: proof}, nil
}

// Verifier checks withdrawal proofs against a fixed verifying key.
type Verifier struct {
	vk groth16.VerifyingKey
}

func NewVerifier(vk groth16.VerifyingKey) (*Verifier, error) {
	if vk == nil {
		return nil, errors.New("verifying key is missing")
	}
	if n := vk.NbPublicWitness(); n != NumPublicInputs {
		return nil, fmt.Errorf("%w: key expects %d", ErrArityMismatch, n)
	}
	return &Verifier{vk: vk}, nil
}

// Verify never errors: a malformed proof, a wrong input count and a false statement are all
// just rejections.
func (v *Verifier) Verify(publicInputs []*big.Int, proof *Proof) (ok bool) {
	if len(publicInputs) != NumPublicInputs || proof == nil || proof.Proof == nil {
		return false
	}
	for _, in := range publicInputs {
		if !fieldhash.InField(in) {
			return false
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Logger().Warn().Interface("panic", r).Msg("proof verification panicked")
			ok = false
		}
	}()

	publicAssignment := WithdrawCircuit{
		Root:          publicInputs[0],
		NullifierHash: publicInputs[1],
		Recipient:     publicInputs[2],
		Relayer:       publicInputs[3],
		Fee:           publicInputs[4],
		Refund:        publicInputs[5],
		WhitelistRoot: publicInputs[6],
	}
	witness, err := frontend.NewWitness(&publicAssignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false
	}
	return groth16.Verify(proof.Proof, v.vk, witness) == nil
}
