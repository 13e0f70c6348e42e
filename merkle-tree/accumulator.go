package merkle_tree

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"hyc/hyc-node/fieldhash"
)

const MaxHeight = 32

var (
	ErrCapacityExceeded = errors.New("merkle tree capacity exceeded")
	ErrParamsMismatch   = errors.New("stored accumulator does not match parameters")
)

type Params struct {
	Height     uint32
	RootWindow uint32
	ZeroValue  big.Int
}

func (p *Params) Validate() error {
	if p.Height == 0 || p.Height > MaxHeight {
		return fmt.Errorf("tree height must be in [1, %d], got %d", MaxHeight, p.Height)
	}
	if p.RootWindow == 0 {
		return fmt.Errorf("root window must be at least 1")
	}
	if !fieldhash.InField(&p.ZeroValue) {
		return fmt.Errorf("zero value is not a field element")
	}
	return nil
}

// State is the persisted part of an accumulator. It never holds leaves.
type State struct {
	Height     uint32
	RootWindow uint32
	ZeroValue  big.Int
	NextIndex  uint64
	// FilledSubtrees[i] is the left node at level i on the path of the last inserted leaf.
	FilledSubtrees []big.Int
	// Roots is a ring buffer of at most RootWindow roots; CurrentRoot points at the newest.
	Roots       []big.Int
	CurrentRoot uint32
}

func (s *State) Clone() *State {
	out := &State{
		Height:         s.Height,
		RootWindow:     s.RootWindow,
		NextIndex:      s.NextIndex,
		FilledSubtrees: make([]big.Int, len(s.FilledSubtrees)),
		Roots:          make([]big.Int, len(s.Roots), s.RootWindow),
		CurrentRoot:    s.CurrentRoot,
	}
	out.ZeroValue.Set(&s.ZeroValue)
	for i := range s.FilledSubtrees {
		out.FilledSubtrees[i].Set(&s.FilledSubtrees[i])
	}
	for i := range s.Roots {
		out.Roots[i].Set(&s.Roots[i])
	}
	return out
}

func (s *State) matches(p *Params) bool {
	return s.Height == p.Height && s.RootWindow == p.RootWindow && s.ZeroValue.Cmp(&p.ZeroValue) == 0 &&
		len(s.FilledSubtrees) == int(p.Height) && len(s.Roots) > 0 && len(s.Roots) <= int(p.RootWindow)
}

// Store persists accumulator state. Load returns nil, nil when nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// Accumulator is an append-only Merkle tree that keeps O(height) state and remembers
// its last RootWindow roots.
type Accumulator struct {
	mu     sync.RWMutex
	params Params
	zeros  []big.Int
	state  *State
	store  Store
}

// ZeroHashes returns the empty subtree roots for levels 0..height, zeros[0] being the leaf.
func ZeroHashes(height int, zeroValue *big.Int) []big.Int {
	zeros := make([]big.Int, height+1)
	zeros[0].Set(zeroValue)
	for i := 1; i <= height; i++ {
		zeros[i].Set(fieldhash.HashLeftRight(&zeros[i-1], &zeros[i-1]))
	}
	return zeros
}

// NewAccumulator resumes from store when it holds a state, otherwise saves a fresh empty tree.
func NewAccumulator(ctx context.Context, params Params, store Store) (*Accumulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	acc := &Accumulator{
		params: params,
		zeros:  ZeroHashes(int(params.Height), &params.ZeroValue),
		store:  store,
	}

	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading accumulator state: %w", err)
	}
	if state != nil {
		if !state.matches(&params) {
			return nil, fmt.Errorf("%w: height %d window %d", ErrParamsMismatch, state.Height, state.RootWindow)
		}
		acc.state = state
		return acc, nil
	}

	state = &State{
		Height:         params.Height,
		RootWindow:     params.RootWindow,
		FilledSubtrees: make([]big.Int, params.Height),
		Roots:          make([]big.Int, 1, params.RootWindow),
	}
	state.ZeroValue.Set(&params.ZeroValue)
	for i := range state.FilledSubtrees {
		state.FilledSubtrees[i].Set(&acc.zeros[i])
	}
	state.Roots[0].Set(&acc.zeros[params.Height])
	if err := store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("saving empty accumulator: %w", err)
	}
	acc.state = state
	return acc, nil
}

func (a *Accumulator) Params() Params {
	return a.params
}

func (a *Accumulator) Capacity() uint64 {
	return uint64(1) << a.params.Height
}

// Len is the number of leaves inserted so far, which is also the index of the next leaf.
func (a *Accumulator) Len() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.NextIndex
}

func (a *Accumulator) Full() bool {
	return a.Len() >= a.Capacity()
}

// Insert appends leaf and returns the new root. The new state is saved before it becomes visible.
func (a *Accumulator) Insert(ctx context.Context, leaf *big.Int) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.NextIndex >= a.Capacity() {
		return nil, ErrCapacityExceeded
	}

	next := a.state.Clone()
	index := next.NextIndex
	current := fieldhash.Reduce(leaf)
	for level := uint32(0); level < a.params.Height; level++ {
		var left, right *big.Int
		if index%2 == 0 {
			left, right = current, &a.zeros[level]
			next.FilledSubtrees[level].Set(current)
		} else {
			left, right = &next.FilledSubtrees[level], current
		}
		current = fieldhash.HashLeftRight(left, right)
		index /= 2
	}

	if len(next.Roots) < int(next.RootWindow) {
		next.Roots = append(next.Roots, big.Int{})
		next.CurrentRoot = uint32(len(next.Roots) - 1)
	} else {
		next.CurrentRoot = (next.CurrentRoot + 1) % next.RootWindow
	}
	next.Roots[next.CurrentRoot].Set(current)
	next.NextIndex++

	if err := a.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("saving accumulator state: %w", err)
	}
	a.state = next
	return new(big.Int).Set(current), nil
}

func (a *Accumulator) IsKnownRoot(root *big.Int) bool {
	if root == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for i := range a.state.Roots {
		if a.state.Roots[i].Cmp(root) == 0 {
			return true
		}
	}
	return false
}

func (a *Accumulator) CurrentRoot() *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return new(big.Int).Set(&a.state.Roots[a.state.CurrentRoot])
}

// RecentRoots lists the retained roots, newest first.
func (a *Accumulator) RecentRoots() []big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := len(a.state.Roots)
	out := make([]big.Int, n)
	for i := 0; i < n; i++ {
		j := (int(a.state.CurrentRoot) - i + n) % n
		out[i].Set(&a.state.Roots[j])
	}
	return out
}

type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	return s.state.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	return nil
}
