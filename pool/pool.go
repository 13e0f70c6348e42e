// Package pool is the withdrawal engine: it owns both accumulators, the nullifier registry and
// the pool settings, and serializes every state transition through one lock.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"hyc/hyc-node/config"
	"hyc/hyc-node/disburse"
	"hyc/hyc-node/fieldhash"
	"hyc/hyc-node/logging"
	merkle_tree "hyc/hyc-node/merkle-tree"
	"hyc/hyc-node/nullifier"
	"hyc/hyc-node/prover"
)

type ProofVerifier interface {
	Verify(publicInputs []*big.Int, proof *prover.Proof) bool
}

// Deps are the stores and collaborators a Pool runs on.
type Deps struct {
	Commitments      *merkle_tree.Accumulator
	CommitmentLeaves merkle_tree.LeafLog
	Whitelist        *merkle_tree.WhitelistTree
	Nullifiers       nullifier.Registry
	Verifier         ProofVerifier
	Disburser        disburse.Disburser
	Events           EventSink
	Authorizer       Authorizer
	Meta             MetaStore
}

func (d *Deps) validate() error {
	switch {
	case d.Commitments == nil || d.CommitmentLeaves == nil:
		return errors.New("commitment tree is not configured")
	case d.Whitelist == nil:
		return errors.New("whitelist tree is not configured")
	case d.Nullifiers == nil:
		return errors.New("nullifier registry is not configured")
	case d.Verifier == nil:
		return errors.New("verifier is not configured")
	case d.Disburser == nil:
		return errors.New("disburser is not configured")
	case d.Meta == nil:
		return errors.New("metadata store is not configured")
	}
	return nil
}

type Pool struct {
	mu       sync.Mutex
	settings Settings
	deps     Deps
}

// Init creates a new pool. It fails with ErrAlreadyInitialized if the metadata store is in use.
func Init(ctx context.Context, settings Settings, deps Deps) (*Pool, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if settings.PercentFee >= config.FeeDivisor {
		return nil, fmt.Errorf("%w: %d / %d", ErrInvalidFeeRate, settings.PercentFee, config.FeeDivisor)
	}
	if settings.Owner == "" {
		return nil, errors.New("owner is required")
	}
	if settings.DepositValue.Sign() <= 0 {
		return nil, errors.New("deposit value must be positive")
	}

	s := settings.clone()
	s.ProtocolFee.Mul(&s.DepositValue, new(big.Int).SetUint64(s.PercentFee))
	s.ProtocolFee.Quo(&s.ProtocolFee, big.NewInt(config.FeeDivisor))
	if err := deps.Meta.Create(ctx, &s); err != nil {
		return nil, err
	}

	logging.Logger().Info().
		Str("owner", s.Owner).
		Str("currency", s.Currency).
		Str("deposit_value", s.DepositValue.String()).
		Str("protocol_fee", s.ProtocolFee.String()).
		Msg("Pool initialized")
	return newPool(s, deps), nil
}

// Open resumes a pool from its stored settings.
func Open(ctx context.Context, deps Deps) (*Pool, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s, err := deps.Meta.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotInitialized
	}
	logging.Logger().Info().
		Str("owner", s.Owner).
		Uint64("commitments", deps.Commitments.Len()).
		Uint64("whitelisted", deps.Whitelist.Accumulator().Len()).
		Msg("Pool opened")
	return newPool(*s, deps), nil
}

func newPool(s Settings, deps Deps) *Pool {
	if deps.Events == nil {
		deps.Events = NewLogSink()
	}
	if deps.Authorizer == nil {
		deps.Authorizer = StaticAuthorizer{}
	}
	return &Pool{settings: s, deps: deps}
}

func (p *Pool) emit(ctx context.Context, e Event) {
	if err := p.deps.Events.Emit(ctx, e); err != nil {
		logging.Logger().Error().Err(err).Str("event", string(e.Type)).Msg("Failed to emit pool event")
	}
}

func (p *Pool) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings.clone()
}

func (p *Pool) CommitmentsRoot() *big.Int {
	return p.deps.Commitments.CurrentRoot()
}

func (p *Pool) WhitelistRoot() *big.Int {
	return p.deps.Whitelist.CurrentRoot()
}

func (p *Pool) CommitmentRoots() []big.Int {
	return p.deps.Commitments.RecentRoots()
}

func (p *Pool) WhitelistRoots() []big.Int {
	return p.deps.Whitelist.Accumulator().RecentRoots()
}

func (p *Pool) IsInWhitelist(ctx context.Context, account string) (bool, error) {
	h, err := fieldhash.AccountHash(account)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return p.deps.Whitelist.Contains(ctx, h)
}

func (p *Pool) WasNullifierSpent(ctx context.Context, nullifierHash *big.Int) (bool, error) {
	return p.deps.Nullifiers.Contains(ctx, nullifierHash)
}

func (p *Pool) NullifierCount(ctx context.Context) (uint64, error) {
	return p.deps.Nullifiers.Count(ctx)
}

// CommitmentLeaves returns leaves [from, to) so clients can rebuild the tree for a path.
func (p *Pool) CommitmentLeaves(ctx context.Context, from, to uint64) ([]big.Int, error) {
	return merkle_tree.CommittedRange(ctx, p.deps.Commitments, p.deps.CommitmentLeaves, from, to)
}

func (p *Pool) WhitelistLeaves(ctx context.Context, from, to uint64) ([]big.Int, error) {
	return p.deps.Whitelist.Range(ctx, from, to)
}

// Leaves reports how many leaves each tree holds.
func (p *Pool) Leaves() (commitments, whitelist uint64) {
	return p.deps.Commitments.Len(), p.deps.Whitelist.Accumulator().Len()
}

func (p *Pool) TreeParams() (commitments, whitelist merkle_tree.Params) {
	return p.deps.Commitments.Params(), p.deps.Whitelist.Accumulator().Params()
}
