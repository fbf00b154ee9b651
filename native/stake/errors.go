package stake

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPool is returned when a pool identifier is out of range.
	ErrInvalidPool = errors.New("stake: invalid pool")
	// ErrBelowMinimumDeposit is returned when a deposit is zero or below the pool minimum.
	ErrBelowMinimumDeposit = errors.New("stake: deposit below pool minimum")
	// ErrInsufficientStake is returned when an unstake exceeds the staked balance.
	ErrInsufficientStake = errors.New("stake: insufficient staked balance")
	// ErrTransferFailed wraps asset gateway rejections.
	ErrTransferFailed = errors.New("stake: asset transfer failed")
	// ErrUnauthorized is returned when a non-administrator invokes an admin operation.
	ErrUnauthorized = errors.New("stake: unauthorized")
	// ErrAlreadyInState is returned when a gate transition targets its current state.
	ErrAlreadyInState = errors.New("stake: gate already in requested state")
	// ErrGatePaused is the parent of every paused-gate rejection.
	ErrGatePaused = errors.New("stake: gate paused")

	ErrInvalidAmount      = errors.New("stake: amount must be positive")
	ErrInvalidParams      = errors.New("stake: invalid parameters")
	ErrRewardEnded        = errors.New("stake: reward window already ended")
	ErrNotInitialised     = errors.New("stake: global configuration not initialised")
	ErrAlreadyInitialised = errors.New("stake: global configuration already initialised")
)

var (
	// ErrWithdrawPaused reports a rejected unstake or withdraw.
	ErrWithdrawPaused = fmt.Errorf("%w: withdraw is paused", ErrGatePaused)
	// ErrClaimPaused reports a rejected claim.
	ErrClaimPaused = fmt.Errorf("%w: claim is paused", ErrGatePaused)
	// ErrAssetMismatch is returned when the deposit variant does not match the pool asset.
	ErrAssetMismatch = fmt.Errorf("%w: asset kind mismatch", ErrInvalidPool)
)

var (
	errNilState   = errors.New("stake engine: state not configured")
	errNilGateway = errors.New("stake engine: asset gateway not configured")
)
