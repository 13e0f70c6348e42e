package pool

import "errors"

// Withdrawal rejections, in the order the checks run.
var (
	ErrFeeExceedsDeposit     = errors.New("fee cannot be greater than deposit value")
	ErrNullifierAlreadySpent = errors.New("nullifier was already used")
	ErrUnknownCommitmentRoot = errors.New("commitment tree root is invalid")
	ErrUnknownWhitelistRoot  = errors.New("whitelist tree root is invalid")
	ErrInvalidProof          = errors.New("proof submitted is invalid")
)

var (
	ErrKillSwitchActive    = errors.New("kill switch is active")
	ErrNotOwner            = errors.New("only the owner can call this method")
	ErrDuplicateCommitment = errors.New("commitment already deposited")
	ErrInvalidCommitment   = errors.New("commitment is not a field element")
	ErrWrongDepositAmount  = errors.New("deposit amount does not match deposit value plus protocol fee")
	ErrInvalidAccount      = errors.New("invalid account identifier")
	ErrRiskTooHigh         = errors.New("account risk is above the accepted level")
	ErrDisbursementFailed  = errors.New("disbursement failed")

	ErrAlreadyInitialized = errors.New("pool is already initialized")
	ErrNotInitialized     = errors.New("pool is not initialized")
	ErrInvalidFeeRate     = errors.New("protocol fee rate must be below 100%")
)
