package merkle_tree

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

// failingLog fails the next failAppends calls to Append.
type failingLog struct {
	LeafLog
	failAppends int
}

func (l *failingLog) Append(ctx context.Context, leaf *big.Int, index uint64) error {
	if l.failAppends > 0 {
		l.failAppends--
		return errStoreDown
	}
	return l.LeafLog.Append(ctx, leaf, index)
}

// failingStore fails the next failSaves calls to Save.
type failingStore struct {
	Store
	failSaves int
}

func (s *failingStore) Save(ctx context.Context, state *State) error {
	if s.failSaves > 0 {
		s.failSaves--
		return errStoreDown
	}
	return s.Store.Save(ctx, state)
}

func TestAppendLeafFailedLogWrite(t *testing.T) {
	ctx := context.Background()
	acc := newTestAccumulator(t, 4, 4)
	log := &failingLog{LeafLog: NewMemoryLeafLog(), failAppends: 1}
	emptyRoot := acc.CurrentRoot()

	_, _, err := AppendLeaf(ctx, acc, log, big.NewInt(77))
	require.ErrorIs(t, err, errStoreDown)
	require.Zero(t, acc.Len())
	require.Zero(t, acc.CurrentRoot().Cmp(emptyRoot))
	_, found, err := CommittedIndexOf(ctx, acc, log, big.NewInt(77))
	require.NoError(t, err)
	require.False(t, found)

	index, root, err := AppendLeaf(ctx, acc, log, big.NewInt(77))
	require.NoError(t, err)
	require.Zero(t, index)
	require.Equal(t, uint64(1), acc.Len())
	n, err := log.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	leaves, err := CommittedRange(ctx, acc, log, 0, 16)
	require.NoError(t, err)
	tree, err := BuildTree(4, big.NewInt(0), leaves)
	require.NoError(t, err)
	rebuilt := tree.RootValue()
	require.Zero(t, rebuilt.Cmp(root))
}

func TestAppendLeafFailedAccumulatorWrite(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: NewMemoryStore()}
	acc, err := NewAccumulator(ctx, testParams(4, 4), store)
	require.NoError(t, err)
	log := NewMemoryLeafLog()

	_, _, err = AppendLeaf(ctx, acc, log, big.NewInt(5))
	require.NoError(t, err)

	store.failSaves = 1
	_, _, err = AppendLeaf(ctx, acc, log, big.NewInt(6))
	require.ErrorIs(t, err, errStoreDown)
	require.Equal(t, uint64(1), acc.Len())
	n, err := log.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
	_, found, err := CommittedIndexOf(ctx, acc, log, big.NewInt(6))
	require.NoError(t, err)
	require.False(t, found)

	index, _, err := AppendLeaf(ctx, acc, log, big.NewInt(6))
	require.NoError(t, err)
	require.Equal(t, uint64(1), index)
}

func TestCommittedViewsIgnoreUnacceptedTail(t *testing.T) {
	ctx := context.Background()
	acc := newTestAccumulator(t, 4, 4)
	log := NewMemoryLeafLog()
	_, _, err := AppendLeaf(ctx, acc, log, big.NewInt(1))
	require.NoError(t, err)
	// A leaf logged by a writer that died before the accumulator saved.
	require.NoError(t, log.Append(ctx, big.NewInt(2), 1))

	_, found, err := CommittedIndexOf(ctx, acc, log, big.NewInt(2))
	require.NoError(t, err)
	require.False(t, found)
	leaves, err := CommittedRange(ctx, acc, log, 0, 16)
	require.NoError(t, err)
	require.Len(t, leaves, 1)

	index, _, err := AppendLeaf(ctx, acc, log, big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, uint64(1), index)
	_, found, err = log.IndexOf(ctx, big.NewInt(2))
	require.NoError(t, err)
	require.False(t, found)
	leaves, err = log.Range(ctx, 0, 16)
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	require.Equal(t, int64(3), leaves[1].Int64())
}

func TestLeafLogRangeBounds(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLeafLog()
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, log.Append(ctx, new(big.Int).SetUint64(i+10), i))
	}
	leaves, err := log.Range(ctx, 1<<63, 1<<63+5)
	require.NoError(t, err)
	require.Empty(t, leaves)
	leaves, err = log.Range(ctx, 2, 1<<64-1)
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	require.Equal(t, int64(12), leaves[0].Int64())
}
