package stake

import (
	"fmt"
	"math/big"
	"math/bits"
)

// RewardScale is the fixed-point precision of AccRewardPerShare.
var RewardScale = big.NewInt(1_000_000_000_000_000_000)

// AccrualInput captures everything the accumulator update depends on.
type AccrualInput struct {
	Now             uint64
	LastRewardBlock uint64
	StartBlock      uint64
	EndBlock        uint64
	TotalStaked     *big.Int
	Weight          uint64
	TotalWeight     uint64
	RewardPerBlock  *big.Int
}

func accrualInput(pool *Pool, global *Global, now uint64) AccrualInput {
	return AccrualInput{
		Now:             now,
		LastRewardBlock: pool.LastRewardBlock,
		StartBlock:      global.StartBlock,
		EndBlock:        global.EndBlock,
		TotalStaked:     pool.TotalStaked,
		Weight:          pool.Weight,
		TotalWeight:     global.TotalWeight,
		RewardPerBlock:  global.RewardPerBlock,
	}
}

// Accrue returns the accumulator and last reward block that result from
// bringing a pool current at in.Now. Reward only accrues for blocks inside
// [StartBlock, EndBlock] and never against an empty pool. The inputs are not
// modified.
func Accrue(acc *big.Int, in AccrualInput) (*big.Int, uint64) {
	current := copyBig(acc)
	if in.Now < in.StartBlock {
		return current, in.LastRewardBlock
	}
	effective := in.Now
	if effective > in.EndBlock {
		effective = in.EndBlock
	}
	last := in.LastRewardBlock
	if effective > last {
		last = effective
	}

	from := in.LastRewardBlock
	if from < in.StartBlock {
		from = in.StartBlock
	}
	if effective <= from {
		return current, last
	}
	if in.TotalStaked == nil || in.TotalStaked.Sign() <= 0 {
		return current, last
	}
	if in.Weight == 0 || in.TotalWeight == 0 || in.RewardPerBlock == nil || in.RewardPerBlock.Sign() <= 0 {
		return current, last
	}

	poolReward := new(big.Int).Mul(in.RewardPerBlock, new(big.Int).SetUint64(effective-from))
	poolReward.Mul(poolReward, new(big.Int).SetUint64(in.Weight))
	poolReward.Quo(poolReward, new(big.Int).SetUint64(in.TotalWeight))

	increment := new(big.Int).Mul(poolReward, RewardScale)
	increment.Quo(increment, in.TotalStaked)
	return current.Add(current, increment), last
}

// accumulated is staked * acc / RewardScale.
func accumulated(staked, acc *big.Int) *big.Int {
	if staked == nil || acc == nil || staked.Sign() == 0 || acc.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(staked, acc)
	return out.Quo(out, RewardScale)
}

// pendingFor returns the reward owed to the user against the supplied
// accumulator, including any unpaid carry.
func pendingFor(user *UserStake, acc *big.Int) *big.Int {
	if user == nil {
		return big.NewInt(0)
	}
	pending := accumulated(user.StakedAmount, acc)
	pending.Sub(pending, user.RewardDebt)
	if pending.Sign() < 0 {
		pending.SetInt64(0)
	}
	return pending.Add(pending, copyBig(user.UnpaidReward))
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// addWeight returns total + weight, rejecting sums that do not fit in uint64.
func addWeight(total, weight uint64) (uint64, error) {
	sum, carry := bits.Add64(total, weight, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: total weight overflows", ErrInvalidParams)
	}
	return sum, nil
}

// unlockAt returns the block an unstake request made at height matures.
func unlockAt(height, lockBlocks uint64) (uint64, error) {
	unlock, carry := bits.Add64(height, lockBlocks, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: unlock block overflows", ErrInvalidParams)
	}
	return unlock, nil
}
