package merkle_tree

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// LeafLog records inserted leaves in order so clients can rebuild a tree and derive
// Merkle paths. The accumulator itself cannot answer path queries.
type LeafLog interface {
	Append(ctx context.Context, leaf *big.Int, index uint64) error
	IndexOf(ctx context.Context, leaf *big.Int) (uint64, bool, error)
	// Range returns leaves with index in [from, to).
	Range(ctx context.Context, from, to uint64) ([]big.Int, error)
	Len(ctx context.Context) (uint64, error)
	// Truncate drops every leaf with index >= n.
	Truncate(ctx context.Context, n uint64) error
}

// AppendLeaf inserts leaf into acc and records it in log. The log entry is written first and
// only counts once acc holds it: entries at or past acc.Len() are discarded here and ignored
// by CommittedIndexOf and CommittedRange, so a failure between the two writes leaves nothing
// that one side knows and the other does not.
func AppendLeaf(ctx context.Context, acc *Accumulator, log LeafLog, leaf *big.Int) (uint64, *big.Int, error) {
	if acc.Full() {
		return 0, nil, ErrCapacityExceeded
	}
	index := acc.Len()
	if err := log.Truncate(ctx, index); err != nil {
		return 0, nil, fmt.Errorf("discarding uncommitted leaves: %w", err)
	}
	if err := log.Append(ctx, leaf, index); err != nil {
		return 0, nil, err
	}
	root, err := acc.Insert(ctx, leaf)
	if err != nil {
		if terr := log.Truncate(ctx, index); terr != nil {
			return 0, nil, errors.Join(err, fmt.Errorf("discarding leaf %d: %w", index, terr))
		}
		return 0, nil, err
	}
	return index, root, nil
}

// CommittedIndexOf is log.IndexOf restricted to leaves acc has accepted.
func CommittedIndexOf(ctx context.Context, acc *Accumulator, log LeafLog, leaf *big.Int) (uint64, bool, error) {
	index, found, err := log.IndexOf(ctx, leaf)
	if err != nil || !found {
		return 0, false, err
	}
	return index, index < acc.Len(), nil
}

// CommittedRange is log.Range clamped to leaves acc has accepted.
func CommittedRange(ctx context.Context, acc *Accumulator, log LeafLog, from, to uint64) ([]big.Int, error) {
	if n := acc.Len(); to > n {
		to = n
	}
	if to <= from {
		return nil, nil
	}
	return log.Range(ctx, from, to)
}

type MemoryLeafLog struct {
	mu     sync.RWMutex
	leaves []big.Int
	index  map[string]uint64
}

func NewMemoryLeafLog() *MemoryLeafLog {
	return &MemoryLeafLog{index: make(map[string]uint64)}
}

func (l *MemoryLeafLog) Append(_ context.Context, leaf *big.Int, index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leaves = append(l.leaves, *new(big.Int).Set(leaf))
	l.index[leaf.String()] = index
	return nil
}

func (l *MemoryLeafLog) IndexOf(_ context.Context, leaf *big.Int) (uint64, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	index, ok := l.index[leaf.String()]
	return index, ok, nil
}

func (l *MemoryLeafLog) Range(_ context.Context, from, to uint64) ([]big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if to > uint64(len(l.leaves)) {
		to = uint64(len(l.leaves))
	}
	if to <= from {
		return nil, nil
	}
	out := make([]big.Int, to-from)
	for i := range out {
		out[i].Set(&l.leaves[from+uint64(i)])
	}
	return out, nil
}

func (l *MemoryLeafLog) Len(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.leaves)), nil
}

func (l *MemoryLeafLog) Truncate(_ context.Context, n uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n >= uint64(len(l.leaves)) {
		return nil
	}
	for i := n; i < uint64(len(l.leaves)); i++ {
		delete(l.index, l.leaves[i].String())
	}
	l.leaves = l.leaves[:n]
	return nil
}

// Denylist masks whitelist entries without touching the tree.
type Denylist interface {
	Add(ctx context.Context, leaf *big.Int) error
	Remove(ctx context.Context, leaf *big.Int) error
	Contains(ctx context.Context, leaf *big.Int) (bool, error)
}

type MemoryDenylist struct {
	mu     sync.RWMutex
	denied map[string]struct{}
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{denied: make(map[string]struct{})}
}

func (d *MemoryDenylist) Add(_ context.Context, leaf *big.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denied[leaf.String()] = struct{}{}
	return nil
}

func (d *MemoryDenylist) Remove(_ context.Context, leaf *big.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.denied, leaf.String())
	return nil
}

func (d *MemoryDenylist) Contains(_ context.Context, leaf *big.Int) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.denied[leaf.String()]
	return ok, nil
}
