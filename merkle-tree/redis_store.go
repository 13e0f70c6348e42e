package merkle_tree

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
}

type storedState struct {
	Height         uint32   `cbor:"1,keyasint"`
	RootWindow     uint32   `cbor:"2,keyasint"`
	ZeroValue      []byte   `cbor:"3,keyasint"`
	NextIndex      uint64   `cbor:"4,keyasint"`
	FilledSubtrees [][]byte `cbor:"5,keyasint"`
	Roots          [][]byte `cbor:"6,keyasint"`
	CurrentRoot    uint32   `cbor:"7,keyasint"`
}

func toBytes(values []big.Int) [][]byte {
	out := make([][]byte, len(values))
	for i := range values {
		out[i] = values[i].Bytes()
	}
	return out
}

func fromBytes(values [][]byte) []big.Int {
	out := make([]big.Int, len(values))
	for i, b := range values {
		out[i].SetBytes(b)
	}
	return out
}

func EncodeState(s *State) ([]byte, error) {
	return encMode.Marshal(storedState{
		Height:         s.Height,
		RootWindow:     s.RootWindow,
		ZeroValue:      s.ZeroValue.Bytes(),
		NextIndex:      s.NextIndex,
		FilledSubtrees: toBytes(s.FilledSubtrees),
		Roots:          toBytes(s.Roots),
		CurrentRoot:    s.CurrentRoot,
	})
}

func DecodeState(data []byte) (*State, error) {
	var stored storedState
	if err := cbor.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decoding accumulator state: %w", err)
	}
	if stored.RootWindow == 0 || len(stored.Roots) > int(stored.RootWindow) || int(stored.CurrentRoot) >= len(stored.Roots) {
		return nil, fmt.Errorf("corrupt accumulator state: %d roots, window %d, current %d",
			len(stored.Roots), stored.RootWindow, stored.CurrentRoot)
	}
	roots := make([]big.Int, len(stored.Roots), stored.RootWindow)
	copy(roots, fromBytes(stored.Roots))
	s := &State{
		Height:         stored.Height,
		RootWindow:     stored.RootWindow,
		NextIndex:      stored.NextIndex,
		FilledSubtrees: fromBytes(stored.FilledSubtrees),
		Roots:          roots,
		CurrentRoot:    stored.CurrentRoot,
	}
	s.ZeroValue.SetBytes(stored.ZeroValue)
	return s, nil
}

// RedisStore keeps the whole accumulator state under one key so every save is atomic.
type RedisStore struct {
	Client *redis.Client
	Key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{Client: client, Key: key}
}

func (s *RedisStore) Load(ctx context.Context) (*State, error) {
	data, err := s.Client.Get(ctx, s.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Key, err)
	}
	return DecodeState(data)
}

func (s *RedisStore) Save(ctx context.Context, state *State) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	if err := s.Client.Set(ctx, s.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", s.Key, err)
	}
	return nil
}

// RedisLeafLog stores leaves in a list and their positions in a hash.
type RedisLeafLog struct {
	Client *redis.Client
	// Prefix namespaces the ":leaves" list and ":index" hash.
	Prefix string
}

func NewRedisLeafLog(client *redis.Client, prefix string) *RedisLeafLog {
	return &RedisLeafLog{Client: client, Prefix: prefix}
}

func (l *RedisLeafLog) listKey() string  { return l.Prefix + ":leaves" }
func (l *RedisLeafLog) indexKey() string { return l.Prefix + ":index" }

func (l *RedisLeafLog) Append(ctx context.Context, leaf *big.Int, index uint64) error {
	_, err := l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, l.listKey(), leaf.String())
		pipe.HSet(ctx, l.indexKey(), leaf.String(), index)
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending leaf %d: %w", index, err)
	}
	return nil
}

func (l *RedisLeafLog) IndexOf(ctx context.Context, leaf *big.Int) (uint64, bool, error) {
	raw, err := l.Client.HGet(ctx, l.indexKey(), leaf.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt leaf index %q: %w", raw, err)
	}
	return index, true, nil
}

func (l *RedisLeafLog) Range(ctx context.Context, from, to uint64) ([]big.Int, error) {
	n, err := l.Len(ctx)
	if err != nil {
		return nil, err
	}
	if to > n {
		to = n
	}
	if to <= from {
		return nil, nil
	}
	raw, err := l.Client.LRange(ctx, l.listKey(), int64(from), int64(to-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]big.Int, len(raw))
	for i, s := range raw {
		if _, ok := out[i].SetString(s, 10); !ok {
			return nil, fmt.Errorf("corrupt leaf at %d: %q", from+uint64(i), s)
		}
	}
	return out, nil
}

func (l *RedisLeafLog) Len(ctx context.Context) (uint64, error) {
	n, err := l.Client.LLen(ctx, l.listKey()).Result()
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (l *RedisLeafLog) Truncate(ctx context.Context, n uint64) error {
	length, err := l.Len(ctx)
	if err != nil {
		return err
	}
	if n >= length {
		return nil
	}
	tail, err := l.Client.LRange(ctx, l.listKey(), int64(n), -1).Result()
	if err != nil {
		return err
	}
	_, err = l.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(tail) > 0 {
			pipe.HDel(ctx, l.indexKey(), tail...)
		}
		if n == 0 {
			pipe.Del(ctx, l.listKey())
		} else {
			pipe.LTrim(ctx, l.listKey(), 0, int64(n)-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("truncating leaves to %d: %w", n, err)
	}
	return nil
}

type RedisDenylist struct {
	Client *redis.Client
	Key    string
}

func NewRedisDenylist(client *redis.Client, key string) *RedisDenylist {
	return &RedisDenylist{Client: client, Key: key}
}

func (d *RedisDenylist) Add(ctx context.Context, leaf *big.Int) error {
	return d.Client.SAdd(ctx, d.Key, leaf.String()).Err()
}

func (d *RedisDenylist) Remove(ctx context.Context, leaf *big.Int) error {
	return d.Client.SRem(ctx, d.Key, leaf.String()).Err()
}

func (d *RedisDenylist) Contains(ctx context.Context, leaf *big.Int) (bool, error) {
	return d.Client.SIsMember(ctx, d.Key, leaf.String()).Result()
}
