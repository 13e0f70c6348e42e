package disburse

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/redis/go-redis/v9"
	"hyc/hyc-node/kv"
)

// Ledger is the balance book transfers are credited to.
type Ledger interface {
	Credit(ctx context.Context, account string, amount *big.Int) error
	Balance(ctx context.Context, account string) (*big.Int, error)
}

type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	// Reject, when set, fails credits to the accounts it returns an error for.
	Reject func(account string) error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]*big.Int)}
}

func (l *MemoryLedger) Credit(_ context.Context, account string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Reject != nil {
		if err := l.Reject(account); err != nil {
			return err
		}
	}
	b, ok := l.balances[account]
	if !ok {
		b = new(big.Int)
		l.balances[account] = b
	}
	b.Add(b, amount)
	return nil
}

func (l *MemoryLedger) Balance(_ context.Context, account string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// RedisLedger keeps decimal balances in a hash. Amounts overflow int64, so credits use an
// optimistic WATCH transaction instead of HINCRBY.
type RedisLedger struct {
	Client *redis.Client
	Prefix string
}

const maxCreditRetries = 16

func (l *RedisLedger) key() string {
	return kv.Key(l.Prefix, "balances")
}

func (l *RedisLedger) Credit(ctx context.Context, account string, amount *big.Int) error {
	key := l.key()
	txf := func(tx *redis.Tx) error {
		current, err := readBalance(ctx, tx, key, account)
		if err != nil {
			return err
		}
		current.Add(current, amount)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, account, current.String())
			return nil
		})
		return err
	}

	for i := 0; i < maxCreditRetries; i++ {
		err := l.Client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("credit %s: too much contention on %s", account, key)
}

func (l *RedisLedger) Balance(ctx context.Context, account string) (*big.Int, error) {
	return readBalance(ctx, l.Client, l.key(), account)
}

func readBalance(ctx context.Context, c redis.Cmdable, key, account string) (*big.Int, error) {
	s, err := c.HGet(ctx, key, account).Result()
	if err == redis.Nil {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt balance for %s: %q", account, s)
	}
	return b, nil
}
