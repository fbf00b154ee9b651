package stake

import (
	"fmt"
	"math/big"
	"strings"
)

// AssetKind selects the gateway a pool settles through.
type AssetKind uint8

const (
	// AssetNative pools hold the settlement asset attached to calls.
	AssetNative AssetKind = iota
	// AssetFungible pools hold a registered token pulled through allowances.
	AssetFungible
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetFungible:
		return "fungible"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Asset binds a pool to the native asset or to a fungible token handle. It is
// fixed at pool creation.
type Asset struct {
	Kind  AssetKind
	Token string
}

// NativeAsset returns the native settlement asset binding.
func NativeAsset() Asset { return Asset{Kind: AssetNative} }

// FungibleAsset returns a binding for the supplied token symbol.
func FungibleAsset(token string) Asset {
	return Asset{Kind: AssetFungible, Token: strings.ToUpper(strings.TrimSpace(token))}
}

// Validate checks that the binding is well formed.
func (a Asset) Validate() error {
	switch a.Kind {
	case AssetNative:
		if a.Token != "" {
			return fmt.Errorf("%w: native asset must not name a token", ErrInvalidParams)
		}
	case AssetFungible:
		if strings.TrimSpace(a.Token) == "" {
			return fmt.Errorf("%w: fungible asset requires a token", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown asset kind %d", ErrInvalidParams, a.Kind)
	}
	return nil
}

func (a Asset) String() string {
	if a.Kind == AssetFungible {
		return a.Token
	}
	return a.Kind.String()
}

// Pool is an independently configured staking bucket.
type Pool struct {
	Asset      Asset
	Weight     uint64
	MinDeposit *big.Int
	LockBlocks uint64
	// TotalStaked equals the sum of every user's StakedAmount in the pool.
	TotalStaked *big.Int
	// AccRewardPerShare is the cumulative reward per staked unit scaled by
	// RewardScale. It never decreases.
	AccRewardPerShare *big.Int
	// LastRewardBlock is the block the accumulator was last brought current
	// at. It never decreases.
	LastRewardBlock uint64
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	return &Pool{
		Asset:             p.Asset,
		Weight:            p.Weight,
		MinDeposit:        copyBig(p.MinDeposit),
		LockBlocks:        p.LockBlocks,
		TotalStaked:       copyBig(p.TotalStaked),
		AccRewardPerShare: copyBig(p.AccRewardPerShare),
		LastRewardBlock:   p.LastRewardBlock,
	}
}

func (p *Pool) ensureDefaults() {
	if p.MinDeposit == nil {
		p.MinDeposit = big.NewInt(0)
	}
	if p.TotalStaked == nil {
		p.TotalStaked = big.NewInt(0)
	}
	if p.AccRewardPerShare == nil {
		p.AccRewardPerShare = big.NewInt(0)
	}
}

// UnstakeRequest is a queued intent to withdraw Amount once the clock reaches
// UnlockBlock.
type UnstakeRequest struct {
	Amount      *big.Int
	UnlockBlock uint64
}

// UserStake is the per (pool, user) ledger entry.
type UserStake struct {
	StakedAmount *big.Int
	// RewardDebt is StakedAmount * AccRewardPerShare / RewardScale at the last
	// settlement.
	RewardDebt *big.Int
	// UnpaidReward holds settled reward the reserve could not cover yet, or
	// reward settled while the claim gate was paused.
	UnpaidReward *big.Int
	Requests     []UnstakeRequest
}

func newUserStake() *UserStake {
	return &UserStake{
		StakedAmount: big.NewInt(0),
		RewardDebt:   big.NewInt(0),
		UnpaidReward: big.NewInt(0),
	}
}

// Clone returns a deep copy of the ledger entry.
func (u *UserStake) Clone() *UserStake {
	if u == nil {
		return nil
	}
	clone := &UserStake{
		StakedAmount: copyBig(u.StakedAmount),
		RewardDebt:   copyBig(u.RewardDebt),
		UnpaidReward: copyBig(u.UnpaidReward),
	}
	if len(u.Requests) > 0 {
		clone.Requests = make([]UnstakeRequest, len(u.Requests))
		for i, req := range u.Requests {
			clone.Requests[i] = UnstakeRequest{Amount: copyBig(req.Amount), UnlockBlock: req.UnlockBlock}
		}
	}
	return clone
}

func (u *UserStake) ensureDefaults() {
	if u.StakedAmount == nil {
		u.StakedAmount = big.NewInt(0)
	}
	if u.RewardDebt == nil {
		u.RewardDebt = big.NewInt(0)
	}
	if u.UnpaidReward == nil {
		u.UnpaidReward = big.NewInt(0)
	}
	for i := range u.Requests {
		if u.Requests[i].Amount == nil {
			u.Requests[i].Amount = big.NewInt(0)
		}
	}
}

// Pause gate identifiers.
const (
	GateWithdraw = "withdraw"
	GateClaim    = "claim"
)

// Global is the single configuration record shared by every pool.
type Global struct {
	StartBlock     uint64
	EndBlock       uint64
	RewardPerBlock *big.Int
	TotalWeight    uint64
	RewardToken    string
	WithdrawPaused bool
	ClaimPaused    bool
}

// IsPaused reports the state of the named gate.
func (g *Global) IsPaused(gate string) bool {
	if g == nil {
		return false
	}
	switch gate {
	case GateWithdraw:
		return g.WithdrawPaused
	case GateClaim:
		return g.ClaimPaused
	default:
		return false
	}
}

// Clone returns a deep copy of the configuration.
func (g *Global) Clone() *Global {
	if g == nil {
		return nil
	}
	clone := *g
	clone.RewardPerBlock = copyBig(g.RewardPerBlock)
	return &clone
}

// WithdrawSummary reports the queued unstake totals for a user.
type WithdrawSummary struct {
	// Locked is the sum of every queued request, matured or not.
	Locked *big.Int
	// Withdrawable is the portion whose unlock block has been reached.
	Withdrawable *big.Int
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
