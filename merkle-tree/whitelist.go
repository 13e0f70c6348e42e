package merkle_tree

import (
	"context"
	"errors"
	"math/big"
)

var (
	ErrAlreadyWhitelisted = errors.New("account is already whitelisted")
	ErrNotWhitelisted     = errors.New("account is not whitelisted")
)

// WhitelistTree is an accumulator of account hashes plus a denylist. Denying an account
// only changes membership answers; its leaf and every root containing it stay valid.
type WhitelistTree struct {
	acc    *Accumulator
	leaves LeafLog
	deny   Denylist
}

func NewWhitelistTree(acc *Accumulator, leaves LeafLog, deny Denylist) *WhitelistTree {
	return &WhitelistTree{acc: acc, leaves: leaves, deny: deny}
}

func (w *WhitelistTree) Accumulator() *Accumulator {
	return w.acc
}

func (w *WhitelistTree) Leaves() LeafLog {
	return w.leaves
}

// Range returns whitelisted account hashes [from, to) in insertion order.
func (w *WhitelistTree) Range(ctx context.Context, from, to uint64) ([]big.Int, error) {
	return CommittedRange(ctx, w.acc, w.leaves, from, to)
}

// Add inserts accountHash as a new leaf, or lifts a previous denial without inserting.
// It reports whether a leaf was inserted.
func (w *WhitelistTree) Add(ctx context.Context, accountHash *big.Int) (bool, error) {
	_, found, err := CommittedIndexOf(ctx, w.acc, w.leaves, accountHash)
	if err != nil {
		return false, err
	}
	if found {
		denied, err := w.deny.Contains(ctx, accountHash)
		if err != nil {
			return false, err
		}
		if !denied {
			return false, ErrAlreadyWhitelisted
		}
		return false, w.deny.Remove(ctx, accountHash)
	}

	if _, _, err := AppendLeaf(ctx, w.acc, w.leaves, accountHash); err != nil {
		return false, err
	}
	return true, nil
}

func (w *WhitelistTree) Deny(ctx context.Context, accountHash *big.Int) error {
	_, found, err := CommittedIndexOf(ctx, w.acc, w.leaves, accountHash)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotWhitelisted
	}
	return w.deny.Add(ctx, accountHash)
}

func (w *WhitelistTree) Contains(ctx context.Context, accountHash *big.Int) (bool, error) {
	_, found, err := CommittedIndexOf(ctx, w.acc, w.leaves, accountHash)
	if err != nil || !found {
		return false, err
	}
	denied, err := w.deny.Contains(ctx, accountHash)
	if err != nil {
		return false, err
	}
	return !denied, nil
}

func (w *WhitelistTree) IsKnownRoot(root *big.Int) bool {
	return w.acc.IsKnownRoot(root)
}

func (w *WhitelistTree) CurrentRoot() *big.Int {
	return w.acc.CurrentRoot()
}
