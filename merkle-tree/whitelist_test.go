package merkle_tree

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestWhitelist(t *testing.T, height uint32) *WhitelistTree {
	t.Helper()
	acc := newTestAccumulator(t, height, 4)
	return NewWhitelistTree(acc, NewMemoryLeafLog(), NewMemoryDenylist())
}

func TestWhitelistAddAndDeny(t *testing.T) {
	ctx := context.Background()
	wl := newTestWhitelist(t, 4)
	alice, bob := big.NewInt(1001), big.NewInt(2002)

	inserted, err := wl.Add(ctx, alice)
	require.NoError(t, err)
	require.True(t, inserted)
	rootWithAlice := wl.CurrentRoot()

	ok, err := wl.Contains(ctx, alice)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = wl.Contains(ctx, bob)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = wl.Add(ctx, alice)
	require.ErrorIs(t, err, ErrAlreadyWhitelisted)

	require.NoError(t, wl.Deny(ctx, alice))
	ok, err = wl.Contains(ctx, alice)
	require.NoError(t, err)
	require.False(t, ok)
	// denial masks membership but leaves the tree alone
	require.Zero(t, wl.CurrentRoot().Cmp(rootWithAlice))
	require.True(t, wl.IsKnownRoot(rootWithAlice))

	inserted, err = wl.Add(ctx, alice)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, uint64(1), wl.Accumulator().Len())
	ok, err = wl.Contains(ctx, alice)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, wl.Deny(ctx, bob), ErrNotWhitelisted)
}

func TestWhitelistLeafLogFeedsPaths(t *testing.T) {
	ctx := context.Background()
	wl := newTestWhitelist(t, 3)
	for i := 1; i <= 5; i++ {
		_, err := wl.Add(ctx, big.NewInt(int64(i*17)))
		require.NoError(t, err)
	}

	n, err := wl.Leaves().Len(ctx)
	require.NoError(t, err)
	leaves, err := wl.Leaves().Range(ctx, 0, n)
	require.NoError(t, err)
	require.Len(t, leaves, 5)

	tree, err := BuildTree(3, big.NewInt(0), leaves)
	require.NoError(t, err)
	root := tree.RootValue()
	require.Zero(t, wl.CurrentRoot().Cmp(&root))

	index, found, err := wl.Leaves().IndexOf(ctx, big.NewInt(3*17))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), index)
}

func TestWhitelistFull(t *testing.T) {
	ctx := context.Background()
	wl := newTestWhitelist(t, 1)
	_, err := wl.Add(ctx, big.NewInt(1))
	require.NoError(t, err)
	_, err = wl.Add(ctx, big.NewInt(2))
	require.NoError(t, err)
	_, err = wl.Add(ctx, big.NewInt(3))
	require.ErrorIs(t, err, ErrCapacityExceeded)

	found, err := wl.Contains(ctx, big.NewInt(3))
	require.NoError(t, err)
	require.False(t, found)
}
