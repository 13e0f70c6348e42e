package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"hyc/hyc-node/config"
	"hyc/hyc-node/disburse"
	"hyc/hyc-node/prover"
)

func TestEndToEndWithRealProof(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup for height 20 is slow")
	}
	ctx := context.Background()
	cfg := config.Default()
	cfg.Pool.Owner = owner

	ps, err := prover.SetupWithdraw(cfg.Commitments.Height, cfg.Whitelist.Height)
	require.NoError(t, err)
	verifier, err := prover.NewVerifier(ps.VerifyingKey)
	require.NoError(t, err)

	deps, err := NewDeps(ctx, &cfg, nil)
	require.NoError(t, err)
	ledger := disburse.NewMemoryLedger()
	deps.Verifier = verifier
	deps.Disburser = &disburse.SyncDisburser{Ledger: ledger}
	events := &Recorder{}
	deps.Events = events
	p, err := InitOrOpen(ctx, &cfg, deps)
	require.NoError(t, err)

	note, err := prover.NewNote(alice)
	require.NoError(t, err)
	commitment, err := note.Commitment()
	require.NoError(t, err)

	require.NoError(t, p.AddToWhitelist(ctx, owner, alice))
	deposit := &DepositRequest{Sender: alice}
	deposit.Commitment.Set(commitment)
	deposit.Amount.Set(p.Settings().DepositAmount())
	_, err = p.Deposit(ctx, deposit)
	require.NoError(t, err)

	commitmentParams, whitelistParams := p.TreeParams()
	commitmentLeaves, err := p.CommitmentLeaves(ctx, 0, uint64(1)<<commitmentParams.Height)
	require.NoError(t, err)
	whitelistLeaves, err := p.WhitelistLeaves(ctx, 0, uint64(1)<<whitelistParams.Height)
	require.NoError(t, err)

	params, err := prover.BuildWithdrawParameters(&prover.WithdrawRequest{
		Note:        *note,
		Recipient:   bob,
		Relayer:     relayer,
		Commitments: prover.TreeSnapshot{Height: commitmentParams.Height, ZeroValue: commitmentParams.ZeroValue, Leaves: commitmentLeaves},
		Whitelist:   prover.TreeSnapshot{Height: whitelistParams.Height, ZeroValue: whitelistParams.ZeroValue, Leaves: whitelistLeaves},
	})
	require.NoError(t, err)
	require.Zero(t, params.Root.Cmp(p.CommitmentsRoot()), "rebuilt tree must match the accumulator")
	require.Zero(t, params.WhitelistRoot.Cmp(p.WhitelistRoot()))

	proof, err := prover.ProveWithdraw(ps, params)
	require.NoError(t, err)

	req := &WithdrawRequest{Recipient: bob, Relayer: relayer, Proof: proof}
	req.Root.Set(&params.Root)
	req.NullifierHash.Set(&params.NullifierHash)
	req.WhitelistRoot.Set(&params.WhitelistRoot)

	wrongRecipient := *req
	wrongRecipient.Recipient = "mallory.near"
	_, err = p.Withdraw(ctx, &wrongRecipient)
	require.ErrorIs(t, err, ErrInvalidProof)

	_, err = p.Withdraw(ctx, req)
	require.NoError(t, err)
	balance, err := ledger.Balance(ctx, bob)
	require.NoError(t, err)
	want, err := cfg.DepositValue()
	require.NoError(t, err)
	require.Zero(t, want.Cmp(balance))
	require.Len(t, events.OfType(EventWithdrawalCommitted), 1)

	_, err = p.Withdraw(ctx, req)
	require.ErrorIs(t, err, ErrNullifierAlreadySpent)
}
