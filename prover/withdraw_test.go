package prover

import (
	"encoding/json"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"
	"hyc/hyc-node/fieldhash"
)

const (
	testTreeHeight      = 4
	testWhitelistHeight = 3
)

func testNote() Note {
	return Note{Secret: ToHex(big.NewInt(1234)), Nullifier: ToHex(big.NewInt(5678)), Account: "alice.near"}
}

func buildTestParams(t *testing.T, treeHeight, whitelistHeight uint32) *WithdrawParameters {
	t.Helper()
	note := testNote()
	commitment, err := note.Commitment()
	require.NoError(t, err)
	accountHash, err := fieldhash.AccountHash(note.Account)
	require.NoError(t, err)

	req := &WithdrawRequest{
		Note:      note,
		Recipient: "bob.near",
		Relayer:   "relayer.near",
		Commitments: TreeSnapshot{
			Height: treeHeight,
			Leaves: []big.Int{*big.NewInt(11), *commitment, *big.NewInt(22)},
		},
		Whitelist: TreeSnapshot{
			Height: whitelistHeight,
			Leaves: []big.Int{*big.NewInt(33), *accountHash},
		},
	}
	req.Fee.SetInt64(5)
	params, err := BuildWithdrawParameters(req)
	require.NoError(t, err)
	return params
}

func TestWithdrawCircuit(t *testing.T) {
	assert := test.NewAssert(t)
	params := buildTestParams(t, testTreeHeight, testWhitelistHeight)
	circuit := NewWithdrawCircuit(testTreeHeight, testWhitelistHeight)
	opts := []test.TestingOption{
		test.WithBackends(backend.GROTH16), test.WithCurves(ecc.BN254), test.NoSerializationChecks(), test.NoFuzzing(),
	}

	valid := params.Assignment(testTreeHeight, testWhitelistHeight)
	assert.ProverSucceeded(&circuit, &valid, opts...)

	badNullifier := params.Assignment(testTreeHeight, testWhitelistHeight)
	badNullifier.NullifierHash = fieldhash.NullifierHash(big.NewInt(9999))
	assert.ProverFailed(&circuit, &badNullifier, opts...)

	badRoot := params.Assignment(testTreeHeight, testWhitelistHeight)
	badRoot.Root = big.NewInt(1)
	assert.ProverFailed(&circuit, &badRoot, opts...)

	notWhitelisted := params.Assignment(testTreeHeight, testWhitelistHeight)
	notWhitelisted.AccountHash = big.NewInt(42)
	assert.ProverFailed(&circuit, &notWhitelisted, opts...)

	wrongIndex := params.Assignment(testTreeHeight, testWhitelistHeight)
	wrongIndex.PathIndex = params.PathIndex + 1
	assert.ProverFailed(&circuit, &wrongIndex, opts...)
}

var (
	systemOnce sync.Once
	system     *WithdrawProofSystem
	systemErr  error
)

func testSystem(t *testing.T) *WithdrawProofSystem {
	t.Helper()
	systemOnce.Do(func() {
		system, systemErr = SetupWithdraw(testTreeHeight, testWhitelistHeight)
	})
	require.NoError(t, systemErr)
	return system
}

func TestVerifier(t *testing.T) {
	ps := testSystem(t)
	params := buildTestParams(t, testTreeHeight, testWhitelistHeight)
	proof, err := ProveWithdraw(ps, params)
	require.NoError(t, err)

	verifier, err := NewVerifier(ps.VerifyingKey)
	require.NoError(t, err)
	require.True(t, verifier.Verify(params.PublicInputs(), proof))

	for i := 0; i < NumPublicInputs; i++ {
		inputs := params.PublicInputs()
		tampered := make([]*big.Int, len(inputs))
		copy(tampered, inputs)
		tampered[i] = new(big.Int).Add(inputs[i], big.NewInt(1))
		require.False(t, verifier.Verify(tampered, proof), "tampered public input %d accepted", i)
	}

	inputs := params.PublicInputs()
	require.False(t, verifier.Verify(inputs[:6], proof))
	require.False(t, verifier.Verify(append(inputs, big.NewInt(0)), proof))
	require.False(t, verifier.Verify(inputs, nil))
	require.False(t, verifier.Verify(inputs, &Proof{}))

	outOfField := params.PublicInputs()
	outOfField[4] = new(big.Int).Add(&params.Fee, fieldhash.Modulus())
	require.False(t, verifier.Verify(outOfField, proof))
}

func TestProofJSON(t *testing.T) {
	ps := testSystem(t)
	params := buildTestParams(t, testTreeHeight, testWhitelistHeight)
	proof, err := ProveWithdraw(ps, params)
	require.NoError(t, err)

	data, err := json.Marshal(proof)
	require.NoError(t, err)
	var decoded Proof
	require.NoError(t, json.Unmarshal(data, &decoded))

	verifier, err := NewVerifier(ps.VerifyingKey)
	require.NoError(t, err)
	require.True(t, verifier.Verify(params.PublicInputs(), &decoded))

	var garbage Proof
	require.Error(t, json.Unmarshal([]byte(`{"ar":["0x01","0x02"],"bs":[["0x1","0x2"],["0x3","0x4"]],"krs":["0x5","0x6"]}`), &garbage))
}

func TestWithdrawParametersJSON(t *testing.T) {
	params := buildTestParams(t, testTreeHeight, testWhitelistHeight)
	data, err := json.Marshal(params)
	require.NoError(t, err)

	var decoded WithdrawParameters
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.ValidateShape(testTreeHeight, testWhitelistHeight))
	for i, v := range decoded.PublicInputs() {
		require.Zero(t, v.Cmp(params.PublicInputs()[i]))
	}
	require.Zero(t, decoded.Secret.Cmp(&params.Secret))
	require.Equal(t, params.PathIndex, decoded.PathIndex)
}

func TestProveRejectsWrongShape(t *testing.T) {
	ps := testSystem(t)
	params := buildTestParams(t, testTreeHeight+1, testWhitelistHeight)
	_, err := ProveWithdraw(ps, params)
	require.Error(t, err)
}

type squareCircuit struct {
	X frontend.Variable `gnark:",public"`
	Y frontend.Variable
}

func (c *squareCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.Y, c.Y), c.X)
	return nil
}

func TestNewVerifierRejectsForeignKey(t *testing.T) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &squareCircuit{})
	require.NoError(t, err)
	_, vk, err := groth16.Setup(ccs)
	require.NoError(t, err)

	_, err = NewVerifier(vk)
	require.ErrorIs(t, err, ErrArityMismatch)
	_, err = NewVerifier(nil)
	require.Error(t, err)
}

func TestProvingSystemFiles(t *testing.T) {
	ps := testSystem(t)
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "withdraw_4_3.key")
	vkeyPath := filepath.Join(dir, "withdraw_4_3.vkey")
	require.NoError(t, WriteProvingSystem(ps, keyPath, vkeyPath))

	loaded, err := ReadSystemFromFile(keyPath)
	require.NoError(t, err)
	require.Equal(t, uint32(testTreeHeight), loaded.TreeHeight)
	require.Equal(t, uint32(testWhitelistHeight), loaded.WhitelistHeight)

	params := buildTestParams(t, testTreeHeight, testWhitelistHeight)
	proof, err := ProveWithdraw(loaded, params)
	require.NoError(t, err)

	vk, err := LoadVerifyingKey(vkeyPath)
	require.NoError(t, err)
	verifier, err := NewVerifier(vk)
	require.NoError(t, err)
	require.True(t, verifier.Verify(params.PublicInputs(), proof))

	_, err = LoadVerifyingKey(filepath.Join(dir, "missing.vkey"))
	require.Error(t, err)
}

func TestNoteRoundTrip(t *testing.T) {
	note, err := NewNote("carol.near")
	require.NoError(t, err)
	commitment, err := note.Commitment()
	require.NoError(t, err)
	require.True(t, fieldhash.InField(commitment))

	nullifierHash, err := note.NullifierHash()
	require.NoError(t, err)
	var nullifier big.Int
	require.NoError(t, FromHex(&nullifier, note.Nullifier))
	require.Zero(t, nullifierHash.Cmp(fieldhash.NullifierHash(&nullifier)))

	_, err = BuildWithdrawParameters(&WithdrawRequest{
		Note:        *note,
		Recipient:   "bob.near",
		Relayer:     "bob.near",
		Commitments: TreeSnapshot{Height: 2},
		Whitelist:   TreeSnapshot{Height: 2},
	})
	require.Error(t, err)
}
