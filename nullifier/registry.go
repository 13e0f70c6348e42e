// Package nullifier records spent nullifier hashes. Nothing is ever removed.
package nullifier

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/redis/go-redis/v9"
)

var ErrAlreadySpent = errors.New("nullifier already spent")

type Registry interface {
	Contains(ctx context.Context, nullifier *big.Int) (bool, error)
	// Insert fails with ErrAlreadySpent when nullifier is present and returns the new set size.
	Insert(ctx context.Context, nullifier *big.Int) (uint64, error)
	Count(ctx context.Context) (uint64, error)
}

type MemoryRegistry struct {
	mu    sync.RWMutex
	spent map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{spent: make(map[string]struct{})}
}

func (r *MemoryRegistry) Contains(_ context.Context, nullifier *big.Int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.spent[nullifier.String()]
	return ok, nil
}

func (r *MemoryRegistry) Insert(_ context.Context, nullifier *big.Int) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nullifier.String()
	if _, ok := r.spent[key]; ok {
		return 0, ErrAlreadySpent
	}
	r.spent[key] = struct{}{}
	return uint64(len(r.spent)), nil
}

func (r *MemoryRegistry) Count(_ context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.spent)), nil
}

// RedisRegistry keeps the set and its size under one key prefix. The counter is bumped in
// the same transaction as SADD so indexers can order withdrawals by it.
type RedisRegistry struct {
	Client *redis.Client
	Prefix string
}

func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	return &RedisRegistry{Client: client, Prefix: prefix}
}

func (r *RedisRegistry) setKey() string   { return r.Prefix + ":spent" }
func (r *RedisRegistry) countKey() string { return r.Prefix + ":count" }

func (r *RedisRegistry) Contains(ctx context.Context, nullifier *big.Int) (bool, error) {
	ok, err := r.Client.SIsMember(ctx, r.setKey(), nullifier.String()).Result()
	if err != nil {
		return false, fmt.Errorf("checking nullifier: %w", err)
	}
	return ok, nil
}

var insertScript = redis.NewScript(`
if redis.call("SADD", KEYS[1], ARGV[1]) == 0 then
  return -1
end
return redis.call("INCR", KEYS[2])
`)

func (r *RedisRegistry) Insert(ctx context.Context, nullifier *big.Int) (uint64, error) {
	n, err := insertScript.Run(ctx, r.Client, []string{r.setKey(), r.countKey()}, nullifier.String()).Int64()
	if err != nil {
		return 0, fmt.Errorf("inserting nullifier: %w", err)
	}
	if n < 0 {
		return 0, ErrAlreadySpent
	}
	return uint64(n), nil
}

func (r *RedisRegistry) Count(ctx context.Context) (uint64, error) {
	n, err := r.Client.Get(ctx, r.countKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
