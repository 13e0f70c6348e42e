package merkle_tree

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"hyc/hyc-node/kv/kvtest"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	client := kvtest.Setup(t)
	ctx := context.Background()
	store := NewRedisStore(client, "test:commitments:state")

	state, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, state)

	acc, err := NewAccumulator(ctx, testParams(6, 4), store)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := acc.Insert(ctx, big.NewInt(int64(i+3)))
		require.NoError(t, err)
	}

	resumed, err := NewAccumulator(ctx, testParams(6, 4), store)
	require.NoError(t, err)
	require.Equal(t, uint64(6), resumed.Len())
	require.Zero(t, resumed.CurrentRoot().Cmp(acc.CurrentRoot()))
	for _, root := range acc.RecentRoots() {
		require.True(t, resumed.IsKnownRoot(&root))
	}
}

func TestRedisLeafLogAndDenylist(t *testing.T) {
	client := kvtest.Setup(t)
	ctx := context.Background()
	leaves := NewRedisLeafLog(client, "test:whitelist")
	deny := NewRedisDenylist(client, "test:whitelist:denied")
	wl := NewWhitelistTree(newTestAccumulator(t, 4, 2), leaves, deny)

	for i := 1; i <= 3; i++ {
		_, err := wl.Add(ctx, big.NewInt(int64(i)))
		require.NoError(t, err)
	}
	got, err := leaves.Range(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].Int64())

	require.NoError(t, wl.Deny(ctx, big.NewInt(2)))
	ok, err := wl.Contains(ctx, big.NewInt(2))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = wl.Add(ctx, big.NewInt(2))
	require.NoError(t, err)
	ok, err = wl.Contains(ctx, big.NewInt(2))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLeafLogTruncate(t *testing.T) {
	client := kvtest.Setup(t)
	ctx := context.Background()
	log := NewRedisLeafLog(client, "test:commitments")
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, log.Append(ctx, new(big.Int).SetUint64(i+10), i))
	}

	leaves, err := log.Range(ctx, 1<<63, 1<<63+2)
	require.NoError(t, err)
	require.Empty(t, leaves)

	require.NoError(t, log.Truncate(ctx, 5))
	require.NoError(t, log.Truncate(ctx, 1))
	n, err := log.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
	_, found, err := log.IndexOf(ctx, big.NewInt(11))
	require.NoError(t, err)
	require.False(t, found)
	index, found, err := log.IndexOf(ctx, big.NewInt(10))
	require.NoError(t, err)
	require.True(t, found)
	require.Zero(t, index)

	require.NoError(t, log.Truncate(ctx, 0))
	n, err = log.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	_, found, err = log.IndexOf(ctx, big.NewInt(10))
	require.NoError(t, err)
	require.False(t, found)
}
