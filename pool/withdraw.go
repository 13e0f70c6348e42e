package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
	"hyc/hyc-node/disburse"
	"hyc/hyc-node/fieldhash"
	"hyc/hyc-node/logging"
	"hyc/hyc-node/nullifier"
	"hyc/hyc-node/prover"
)

type WithdrawRequest struct {
	Root          big.Int
	NullifierHash big.Int
	Recipient     string
	Relayer       string
	Fee           big.Int
	Refund        big.Int
	WhitelistRoot big.Int
	Proof         *prover.Proof
}

type WithdrawReceipt struct {
	NullifierHash  big.Int
	NullifierCount uint64
	Transfers      []disburse.Transfer
}

// Withdraw runs the checks in a fixed order and stops at the first failure without touching
// state. Once the nullifier is recorded the withdrawal is final: a disbursement failure is
// returned wrapped in ErrDisbursementFailed together with the receipt.
func (p *Pool) Withdraw(ctx context.Context, req *WithdrawRequest) (*WithdrawReceipt, error) {
	log := logging.Logger().With().
		Str("nullifier_hash", fieldhash.ToHex(&req.NullifierHash)).
		Str("recipient", req.Recipient).
		Str("relayer", req.Relayer).
		Logger()

	p.mu.Lock()
	receipt, err := p.commitWithdrawal(ctx, req, &log)
	p.mu.Unlock()
	if err != nil {
		log.Info().Err(err).Msg("Withdrawal rejected")
		return nil, err
	}

	if err := p.deps.Disburser.Disburse(ctx, receipt.Transfers...); err != nil {
		log.Error().Err(err).Msg("Withdrawal committed but disbursement failed")
		return receipt, fmt.Errorf("%w: %w", ErrDisbursementFailed, err)
	}
	log.Info().Uint64("nullifier_count", receipt.NullifierCount).Msg("Withdrawal disbursed")
	return receipt, nil
}

func (p *Pool) commitWithdrawal(ctx context.Context, req *WithdrawRequest, log *zerolog.Logger) (*WithdrawReceipt, error) {
	if req.Fee.Cmp(&p.settings.DepositValue) >= 0 {
		return nil, ErrFeeExceedsDeposit
	}

	spent, err := p.deps.Nullifiers.Contains(ctx, &req.NullifierHash)
	if err != nil {
		return nil, fmt.Errorf("nullifier lookup: %w", err)
	}
	if spent {
		return nil, ErrNullifierAlreadySpent
	}
	if !p.deps.Commitments.IsKnownRoot(&req.Root) {
		return nil, ErrUnknownCommitmentRoot
	}
	if !p.deps.Whitelist.IsKnownRoot(&req.WhitelistRoot) {
		return nil, ErrUnknownWhitelistRoot
	}
	log.Debug().Msg("Withdrawal validated")

	recipientHash, err := fieldhash.AccountHash(req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrInvalidAccount, err)
	}
	relayerHash, err := fieldhash.AccountHash(req.Relayer)
	if err != nil {
		return nil, fmt.Errorf("%w: relayer: %v", ErrInvalidAccount, err)
	}

	publicInputs := []*big.Int{
		&req.Root, &req.NullifierHash, recipientHash, relayerHash, &req.Fee, &req.Refund, &req.WhitelistRoot,
	}
	if !p.deps.Verifier.Verify(publicInputs, req.Proof) {
		return nil, ErrInvalidProof
	}
	log.Debug().Msg("Withdrawal proof verified")

	count, err := p.deps.Nullifiers.Insert(ctx, &req.NullifierHash)
	if errors.Is(err, nullifier.ErrAlreadySpent) {
		return nil, ErrNullifierAlreadySpent
	}
	if err != nil {
		return nil, fmt.Errorf("recording nullifier: %w", err)
	}
	nullifierHex := fieldhash.ToHex(&req.NullifierHash)
	p.emit(ctx, Event{
		Type:           EventWithdrawalCommitted,
		NullifierHash:  nullifierHex,
		NullifierCount: count,
		Time:           now(),
	})
	log.Info().Uint64("nullifier_count", count).Msg("Withdrawal committed")

	receipt := &WithdrawReceipt{NullifierCount: count}
	receipt.NullifierHash.Set(&req.NullifierHash)
	currency := p.settings.Currency
	if req.Fee.Sign() > 0 {
		receipt.Transfers = append(receipt.Transfers,
			disburse.NewTransfer(disburse.KindRelayerFee, req.Relayer, &req.Fee, currency, nullifierHex))
	}
	payout := new(big.Int).Sub(&p.settings.DepositValue, &req.Fee)
	receipt.Transfers = append(receipt.Transfers,
		disburse.NewTransfer(disburse.KindWithdrawal, req.Recipient, payout, currency, nullifierHex))
	return receipt, nil
}
