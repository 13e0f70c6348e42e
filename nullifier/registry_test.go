package nullifier

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"hyc/hyc-node/kv/kvtest"
)

func exerciseRegistry(t *testing.T, r Registry) {
	ctx := context.Background()
	n := big.NewInt(77)

	ok, err := r.Contains(ctx, n)
	require.NoError(t, err)
	require.False(t, ok)

	count, err := r.Insert(ctx, n)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	ok, err = r.Contains(ctx, n)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.Insert(ctx, big.NewInt(77))
	require.ErrorIs(t, err, ErrAlreadySpent)

	count, err = r.Insert(ctx, big.NewInt(78))
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	count, err = r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
}

func TestMemoryRegistry(t *testing.T) {
	exerciseRegistry(t, NewMemoryRegistry())
}

func TestRedisRegistry(t *testing.T) {
	client := kvtest.Setup(t)
	exerciseRegistry(t, NewRedisRegistry(client, "test:nullifiers"))
}

func TestConcurrentInsertSpendsOnce(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Insert(ctx, big.NewInt(5)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
