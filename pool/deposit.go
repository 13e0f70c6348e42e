package pool

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"hyc/hyc-node/disburse"
	"hyc/hyc-node/fieldhash"
	"hyc/hyc-node/logging"
	merkle_tree "hyc/hyc-node/merkle-tree"
)

var now = func() time.Time { return time.Now().UTC() }

type DepositRequest struct {
	Sender     string
	Commitment big.Int
	Amount     big.Int
}

type DepositReceipt struct {
	LeafIndex uint64
	Root      big.Int
	Transfers []disburse.Transfer
}

// Deposit records a funded commitment. The protocol fee part of Amount goes to the owner.
func (p *Pool) Deposit(ctx context.Context, req *DepositRequest) (*DepositReceipt, error) {
	log := logging.Logger().With().
		Str("sender", req.Sender).
		Str("commitment", fieldhash.ToHex(&req.Commitment)).
		Logger()

	p.mu.Lock()
	receipt, err := p.commitDeposit(ctx, req)
	p.mu.Unlock()
	if err != nil {
		log.Info().Err(err).Msg("Deposit rejected")
		return nil, err
	}
	log.Info().Uint64("leaf_index", receipt.LeafIndex).Msg("Deposit accepted")

	if len(receipt.Transfers) > 0 {
		if err := p.deps.Disburser.Disburse(ctx, receipt.Transfers...); err != nil {
			log.Error().Err(err).Msg("Protocol fee disbursement failed")
			return receipt, fmt.Errorf("%w: %w", ErrDisbursementFailed, err)
		}
	}
	return receipt, nil
}

func (p *Pool) commitDeposit(ctx context.Context, req *DepositRequest) (*DepositReceipt, error) {
	if p.settings.KillSwitch {
		return nil, ErrKillSwitchActive
	}
	if req.Amount.Cmp(p.settings.DepositAmount()) != 0 {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongDepositAmount, req.Amount.String(), p.settings.DepositAmount().String())
	}
	if !fieldhash.InField(&req.Commitment) {
		return nil, ErrInvalidCommitment
	}
	_, found, err := merkle_tree.CommittedIndexOf(ctx, p.deps.Commitments, p.deps.CommitmentLeaves, &req.Commitment)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ErrDuplicateCommitment
	}

	index, root, err := merkle_tree.AppendLeaf(ctx, p.deps.Commitments, p.deps.CommitmentLeaves, &req.Commitment)
	if err != nil {
		return nil, err
	}

	rootHex := fieldhash.ToHex(root)
	p.emit(ctx, Event{
		Type:       EventDeposit,
		Commitment: fieldhash.ToHex(&req.Commitment),
		LeafIndex:  &index,
		Root:       rootHex,
		Time:       now(),
	})

	receipt := &DepositReceipt{LeafIndex: index}
	receipt.Root.Set(root)
	if p.settings.ProtocolFee.Sign() > 0 {
		receipt.Transfers = append(receipt.Transfers, disburse.NewTransfer(
			disburse.KindProtocolFee, p.settings.Owner, &p.settings.ProtocolFee, p.settings.Currency, rootHex))
	}
	return receipt, nil
}
