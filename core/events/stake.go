package events

import (
	"math/big"
	"strconv"

	"metanode/core/types"
	"metanode/crypto"
)

const (
	// TypeStakePoolAdded is emitted when the administrator registers a pool.
	TypeStakePoolAdded = "stake.poolAdded"
	// TypeStakePoolUpdated is emitted when a pool's weight or limits change.
	TypeStakePoolUpdated = "stake.poolUpdated"
	// TypeStakeDeposited captures principal entering a pool.
	TypeStakeDeposited = "stake.deposited"
	// TypeStakeUnstakeRequested captures principal leaving reward eligibility.
	TypeStakeUnstakeRequested = "stake.unstakeRequested"
	// TypeStakeWithdrawn captures matured unstake requests paid out.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeRewardPaid is emitted when reward tokens are transferred to a staker.
	TypeStakeRewardPaid = "stake.rewardPaid"
	// TypeStakeRewardShortfall signals that the reward reserve could not cover a payout.
	TypeStakeRewardShortfall = "stake.rewardShortfall"
	// TypeStakeGateChanged is emitted when a pause gate flips.
	TypeStakeGateChanged = "stake.gateChanged"
	// TypeStakeWindowUpdated is emitted when the reward window or rate changes.
	TypeStakeWindowUpdated = "stake.windowUpdated"
	// TypeStakeRewardsFunded is emitted when the reward reserve is topped up.
	TypeStakeRewardsFunded = "stake.rewardsFunded"
)

// StakePoolAdded describes a newly registered pool.
type StakePoolAdded struct {
	Height     uint64
	PoolID     uint64
	Asset      string
	Weight     uint64
	MinDeposit *big.Int
	LockBlocks uint64
}

// EventType satisfies the Event interface.
func (StakePoolAdded) EventType() string { return TypeStakePoolAdded }

// Event converts the structured payload into a broadcastable event.
func (e StakePoolAdded) Event() *types.Event {
	return &types.Event{Type: TypeStakePoolAdded, Height: e.Height, Attributes: map[string]string{
		"pool":       formatUint(e.PoolID),
		"asset":      normalizeAsset(e.Asset),
		"weight":     formatUint(e.Weight),
		"minDeposit": formatAmount(e.MinDeposit),
		"lockBlocks": formatUint(e.LockBlocks),
	}}
}

// StakePoolUpdated describes a weight or parameter change.
type StakePoolUpdated struct {
	Height      uint64
	PoolID      uint64
	Weight      uint64
	TotalWeight uint64
	MinDeposit  *big.Int
	LockBlocks  uint64
}

// EventType satisfies the Event interface.
func (StakePoolUpdated) EventType() string { return TypeStakePoolUpdated }

// Event converts the structured payload into a broadcastable event.
func (e StakePoolUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStakePoolUpdated, Height: e.Height, Attributes: map[string]string{
		"pool":        formatUint(e.PoolID),
		"weight":      formatUint(e.Weight),
		"totalWeight": formatUint(e.TotalWeight),
		"minDeposit":  formatAmount(e.MinDeposit),
		"lockBlocks":  formatUint(e.LockBlocks),
	}}
}

// StakeDeposited captures a deposit into a pool.
type StakeDeposited struct {
	Height  uint64
	PoolID  uint64
	Account crypto.Address
	Amount  *big.Int
	Staked  *big.Int
}

// EventType satisfies the Event interface.
func (StakeDeposited) EventType() string { return TypeStakeDeposited }

// Event converts the structured payload into a broadcastable event.
func (e StakeDeposited) Event() *types.Event {
	return &types.Event{Type: TypeStakeDeposited, Height: e.Height, Attributes: map[string]string{
		"pool":   formatUint(e.PoolID),
		"addr":   e.Account.String(),
		"amount": formatAmount(e.Amount),
		"staked": formatAmount(e.Staked),
	}}
}

// StakeUnstakeRequested captures a queued unstake request.
type StakeUnstakeRequested struct {
	Height      uint64
	PoolID      uint64
	Account     crypto.Address
	Amount      *big.Int
	UnlockBlock uint64
}

// EventType satisfies the Event interface.
func (StakeUnstakeRequested) EventType() string { return TypeStakeUnstakeRequested }

// Event converts the structured payload into a broadcastable event.
func (e StakeUnstakeRequested) Event() *types.Event {
	return &types.Event{Type: TypeStakeUnstakeRequested, Height: e.Height, Attributes: map[string]string{
		"pool":        formatUint(e.PoolID),
		"addr":        e.Account.String(),
		"amount":      formatAmount(e.Amount),
		"unlockBlock": formatUint(e.UnlockBlock),
	}}
}

// StakeWithdrawn captures the payout of matured requests.
type StakeWithdrawn struct {
	Height   uint64
	PoolID   uint64
	Account  crypto.Address
	Amount   *big.Int
	Requests int
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeStakeWithdrawn, Height: e.Height, Attributes: map[string]string{
		"pool":     formatUint(e.PoolID),
		"addr":     e.Account.String(),
		"amount":   formatAmount(e.Amount),
		"requests": strconv.Itoa(e.Requests),
	}}
}

// StakeRewardPaid captures reward tokens leaving the reserve.
type StakeRewardPaid struct {
	Height  uint64
	PoolID  uint64
	Account crypto.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (StakeRewardPaid) EventType() string { return TypeStakeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardPaid) Event() *types.Event {
	return &types.Event{Type: TypeStakeRewardPaid, Height: e.Height, Attributes: map[string]string{
		"pool":   formatUint(e.PoolID),
		"addr":   e.Account.String(),
		"amount": formatAmount(e.Amount),
	}}
}

// StakeRewardShortfall records an under-funded payout. Outstanding remains
// owed to the account.
type StakeRewardShortfall struct {
	Height      uint64
	PoolID      uint64
	Account     crypto.Address
	Owed        *big.Int
	Paid        *big.Int
	Outstanding *big.Int
}

// EventType satisfies the Event interface.
func (StakeRewardShortfall) EventType() string { return TypeStakeRewardShortfall }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardShortfall) Event() *types.Event {
	return &types.Event{Type: TypeStakeRewardShortfall, Height: e.Height, Attributes: map[string]string{
		"pool":        formatUint(e.PoolID),
		"addr":        e.Account.String(),
		"owed":        formatAmount(e.Owed),
		"paid":        formatAmount(e.Paid),
		"outstanding": formatAmount(e.Outstanding),
	}}
}

// StakeGateChanged records a pause gate transition.
type StakeGateChanged struct {
	Height uint64
	Gate   string
	Paused bool
	Admin  crypto.Address
}

// EventType satisfies the Event interface.
func (StakeGateChanged) EventType() string { return TypeStakeGateChanged }

// Event converts the structured payload into a broadcastable event.
func (e StakeGateChanged) Event() *types.Event {
	return &types.Event{Type: TypeStakeGateChanged, Height: e.Height, Attributes: map[string]string{
		"gate":   e.Gate,
		"paused": strconv.FormatBool(e.Paused),
		"admin":  e.Admin.String(),
	}}
}

// StakeWindowUpdated records a change to the global reward schedule.
type StakeWindowUpdated struct {
	Height         uint64
	StartBlock     uint64
	EndBlock       uint64
	RewardPerBlock *big.Int
}

// EventType satisfies the Event interface.
func (StakeWindowUpdated) EventType() string { return TypeStakeWindowUpdated }

// Event converts the structured payload into a broadcastable event.
func (e StakeWindowUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStakeWindowUpdated, Height: e.Height, Attributes: map[string]string{
		"startBlock":     formatUint(e.StartBlock),
		"endBlock":       formatUint(e.EndBlock),
		"rewardPerBlock": formatAmount(e.RewardPerBlock),
	}}
}

// StakeRewardsFunded records a top-up of the reward reserve.
type StakeRewardsFunded struct {
	Height uint64
	Funder crypto.Address
	Token  string
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (StakeRewardsFunded) EventType() string { return TypeStakeRewardsFunded }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardsFunded) Event() *types.Event {
	return &types.Event{Type: TypeStakeRewardsFunded, Height: e.Height, Attributes: map[string]string{
		"funder": e.Funder.String(),
		"token":  normalizeAsset(e.Token),
		"amount": formatAmount(e.Amount),
	}}
}
