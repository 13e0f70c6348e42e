package merkle_tree

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark/test"
	"hyc/hyc-node/fieldhash"
)

func TestTreeUpdateProof(t *testing.T) {
	assert := test.NewAssert(t)
	treeDepth := 4
	zero := big.NewInt(0)
	tree := NewTree(treeDepth, zero)
	zeros := ZeroHashes(treeDepth, zero)

	proof := tree.GetProofByIndex(5)
	for i := range proof {
		assert.Equal(zeros[i].String(), proof[i].String())
	}

	leaf := *big.NewInt(42)
	proof = tree.Update(5, leaf)
	root := tree.RootValue()
	assert.Equal(root.String(), VerifyPath(&leaf, 5, proof).String())

	// the sibling of leaf 4 is leaf 5
	proof = tree.GetProofByIndex(4)
	assert.Equal(leaf.String(), proof[0].String())
	assert.Equal(root.String(), VerifyPath(&zeros[0], 4, proof).String())
}

func TestTreeHashOrder(t *testing.T) {
	assert := test.NewAssert(t)
	zero := big.NewInt(0)
	tree := NewTree(1, zero)
	tree.Update(0, *big.NewInt(1))
	tree.Update(1, *big.NewInt(2))
	root := tree.RootValue()
	assert.Equal(fieldhash.HashLeftRight(big.NewInt(1), big.NewInt(2)).String(), root.String())
}

func TestBuildTreeBounds(t *testing.T) {
	assert := test.NewAssert(t)
	_, err := BuildTree(0, big.NewInt(0), nil)
	assert.Error(err)
	_, err = BuildTree(1, big.NewInt(0), make([]big.Int, 3))
	assert.ErrorIs(err, ErrCapacityExceeded)
}
