package merkle_tree

import (
	"fmt"
	"math/big"

	"hyc/hyc-node/fieldhash"
)

// MiMCNode is a persistent tree node; updates return new nodes and share untouched subtrees.
type MiMCNode interface {
	depth() int
	Value() big.Int
	withValue(index int, val big.Int) MiMCNode
	writeProof(index int, out []big.Int)
}

func indexIsLeft(index int, depth int) bool {
	return index&(1<<(depth-1)) == 0
}

type MiMCFullNode struct {
	dep   int
	val   big.Int
	Left  MiMCNode
	Right MiMCNode
}

type MiMCEmptyNode struct {
	dep        int
	zeroHashes []big.Int
}

func (node *MiMCFullNode) depth() int {
	return node.dep
}

func (node *MiMCEmptyNode) depth() int {
	return node.dep
}

func (node *MiMCFullNode) Value() big.Int {
	return node.val
}

func (node *MiMCEmptyNode) Value() big.Int {
	return node.zeroHashes[node.depth()]
}

func (node *MiMCFullNode) withValue(index int, val big.Int) MiMCNode {
	result := MiMCFullNode{
		dep:   node.depth(),
		Left:  node.Left,
		Right: node.Right,
	}
	if node.depth() == 0 {
		result.val = val
	} else {
		if indexIsLeft(index, node.depth()) {
			result.Left = node.Left.withValue(index, val)
		} else {
			result.Right = node.Right.withValue(index, val)
		}
		result.initHash()
	}
	return &result
}

func (node *MiMCEmptyNode) withValue(index int, val big.Int) MiMCNode {
	result := MiMCFullNode{
		dep: node.depth(),
	}
	if node.depth() == 0 {
		result.val = val
	} else {
		emptyChild := MiMCEmptyNode{dep: node.depth() - 1, zeroHashes: node.zeroHashes}
		initializedChild := emptyChild.withValue(index, val)
		if indexIsLeft(index, node.depth()) {
			result.Left = initializedChild
			result.Right = &emptyChild
		} else {
			result.Left = &emptyChild
			result.Right = initializedChild
		}
		result.initHash()
	}
	return &result
}

func (node *MiMCFullNode) writeProof(index int, out []big.Int) {
	if node.depth() == 0 {
		return
	}
	if indexIsLeft(index, node.depth()) {
		out[node.depth()-1] = node.Right.Value()
		node.Left.writeProof(index, out)
	} else {
		out[node.depth()-1] = node.Left.Value()
		node.Right.writeProof(index, out)
	}
}

func (node *MiMCEmptyNode) writeProof(index int, out []big.Int) {
	for i := 0; i < node.depth(); i++ {
		out[i] = node.zeroHashes[i]
	}
}

func (node *MiMCFullNode) initHash() {
	leftVal := node.Left.Value()
	rightVal := node.Right.Value()
	node.val = *fieldhash.HashLeftRight(&leftVal, &rightVal)
}

// MiMCTree is a full in-memory tree. Wallets and the prover use it to turn a leaf log
// into Merkle paths; it hashes exactly like Accumulator, so their roots agree.
type MiMCTree struct {
	Root MiMCNode
}

func NewTree(depth int, zeroValue *big.Int) MiMCTree {
	return MiMCTree{Root: &MiMCEmptyNode{dep: depth, zeroHashes: ZeroHashes(depth, zeroValue)}}
}

// BuildTree inserts leaves at indices 0..len(leaves)-1.
func BuildTree(depth int, zeroValue *big.Int, leaves []big.Int) (*MiMCTree, error) {
	if depth <= 0 || depth > MaxHeight {
		return nil, fmt.Errorf("tree height must be in [1, %d], got %d", MaxHeight, depth)
	}
	if uint64(len(leaves)) > uint64(1)<<depth {
		return nil, ErrCapacityExceeded
	}
	tree := NewTree(depth, zeroValue)
	for i := range leaves {
		tree.Root = tree.Root.withValue(i, *fieldhash.Reduce(&leaves[i]))
	}
	return &tree, nil
}

func (tree *MiMCTree) Update(index int, value big.Int) []big.Int {
	tree.Root = tree.Root.withValue(index, value)
	return tree.GetProofByIndex(index)
}

// GetProofByIndex returns sibling hashes from the leaf level up.
func (tree *MiMCTree) GetProofByIndex(index int) []big.Int {
	proof := make([]big.Int, tree.Root.depth())
	tree.Root.writeProof(index, proof)
	return proof
}

func (tree *MiMCTree) RootValue() big.Int {
	return tree.Root.Value()
}

// VerifyPath recomputes a root from a leaf, its index and sibling path.
func VerifyPath(leaf *big.Int, index uint64, path []big.Int) *big.Int {
	current := new(big.Int).Set(leaf)
	for i := range path {
		if index&(1<<uint(i)) == 0 {
			current = fieldhash.HashLeftRight(current, &path[i])
		} else {
			current = fieldhash.HashLeftRight(&path[i], current)
		}
	}
	return current
}
