package stake

import (
	"fmt"
	"math/big"

	"metanode/core/events"
	"metanode/crypto"
	nativecommon "metanode/native/common"
)

// Initialize stores the genesis reward schedule. It may only run once.
func (e *Engine) Initialize(global *Global) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if global == nil {
		return fmt.Errorf("%w: nil configuration", ErrInvalidParams)
	}
	existing, err := e.state.StakeGlobal()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialised
	}
	if global.StartBlock > global.EndBlock {
		return fmt.Errorf("%w: start block %d after end block %d", ErrInvalidParams, global.StartBlock, global.EndBlock)
	}
	if global.RewardPerBlock == nil || global.RewardPerBlock.Sign() <= 0 {
		return fmt.Errorf("%w: reward per block must be positive", ErrInvalidParams)
	}
	stored := global.Clone()
	stored.TotalWeight = 0
	stored.WithdrawPaused = false
	stored.ClaimPaused = false
	return e.state.PutStakeGlobal(stored)
}

// AddPool registers a new pool and returns its index. When withUpdate is set
// every existing pool is brought current before the total weight changes.
func (e *Engine) AddPool(caller crypto.Address, asset Asset, weight uint64, minDeposit *big.Int, lockBlocks uint64, withUpdate bool) (uint64, error) {
	if err := e.requireAdmin(caller); err != nil {
		return 0, err
	}
	if err := asset.Validate(); err != nil {
		return 0, err
	}
	if weight == 0 {
		return 0, fmt.Errorf("%w: weight must be positive", ErrInvalidParams)
	}
	if lockBlocks == 0 {
		return 0, fmt.Errorf("%w: lock blocks must be positive", ErrInvalidParams)
	}
	if _, err := unlockAt(e.blockHeight, lockBlocks); err != nil {
		return 0, err
	}
	if minDeposit != nil && minDeposit.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative minimum deposit", ErrInvalidParams)
	}
	if _, err := e.gateway(asset); err != nil {
		return 0, err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return 0, err
	}
	if e.blockHeight >= global.EndBlock {
		return 0, ErrRewardEnded
	}
	totalWeight, err := addWeight(global.TotalWeight, weight)
	if err != nil {
		return 0, err
	}
	if withUpdate {
		if err := e.MassUpdatePools(); err != nil {
			return 0, err
		}
	}

	last := e.blockHeight
	if last < global.StartBlock {
		last = global.StartBlock
	}
	pool := &Pool{
		Asset:             asset,
		Weight:            weight,
		MinDeposit:        copyBig(minDeposit),
		LockBlocks:        lockBlocks,
		TotalStaked:       big.NewInt(0),
		AccRewardPerShare: big.NewInt(0),
		LastRewardBlock:   last,
	}
	id, err := e.state.AppendStakePool(pool)
	if err != nil {
		return 0, err
	}
	global.TotalWeight = totalWeight
	if err := e.state.PutStakeGlobal(global); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.StakePoolAdded{
		Height:     e.blockHeight,
		PoolID:     id,
		Asset:      asset.String(),
		Weight:     weight,
		MinDeposit: copyBig(minDeposit),
		LockBlocks: lockBlocks,
	})
	return id, nil
}

// SetPoolWeight changes a pool's share of the global reward rate.
func (e *Engine) SetPoolWeight(caller crypto.Address, id uint64, weight uint64, withUpdate bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if weight == 0 {
		return fmt.Errorf("%w: weight must be positive", ErrInvalidParams)
	}
	global, pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	totalWeight, err := addWeight(global.TotalWeight-pool.Weight, weight)
	if err != nil {
		return err
	}
	if withUpdate {
		if err := e.MassUpdatePools(); err != nil {
			return err
		}
		if global, pool, err = e.loadPool(id); err != nil {
			return err
		}
	}
	global.TotalWeight = totalWeight
	pool.Weight = weight
	if err := e.state.PutStakePool(id, pool); err != nil {
		return err
	}
	if err := e.state.PutStakeGlobal(global); err != nil {
		return err
	}
	e.emitPoolUpdated(id, pool, global)
	return nil
}

// SetPoolParams updates the minimum deposit and unstake lock of a pool.
func (e *Engine) SetPoolParams(caller crypto.Address, id uint64, minDeposit *big.Int, lockBlocks uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if lockBlocks == 0 {
		return fmt.Errorf("%w: lock blocks must be positive", ErrInvalidParams)
	}
	if _, err := unlockAt(e.blockHeight, lockBlocks); err != nil {
		return err
	}
	if minDeposit != nil && minDeposit.Sign() < 0 {
		return fmt.Errorf("%w: negative minimum deposit", ErrInvalidParams)
	}
	global, pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	pool.MinDeposit = copyBig(minDeposit)
	pool.LockBlocks = lockBlocks
	if err := e.state.PutStakePool(id, pool); err != nil {
		return err
	}
	e.emitPoolUpdated(id, pool, global)
	return nil
}

// SetStartBlock moves the beginning of the reward window.
func (e *Engine) SetStartBlock(caller crypto.Address, start uint64) error {
	return e.updateWindow(caller, func(g *Global) error {
		if start > g.EndBlock {
			return fmt.Errorf("%w: start block %d after end block %d", ErrInvalidParams, start, g.EndBlock)
		}
		g.StartBlock = start
		return nil
	})
}

// SetEndBlock moves the end of the reward window.
func (e *Engine) SetEndBlock(caller crypto.Address, end uint64) error {
	return e.updateWindow(caller, func(g *Global) error {
		if g.StartBlock > end {
			return fmt.Errorf("%w: end block %d before start block %d", ErrInvalidParams, end, g.StartBlock)
		}
		g.EndBlock = end
		return nil
	})
}

// SetRewardPerBlock changes the total reward emitted per block.
func (e *Engine) SetRewardPerBlock(caller crypto.Address, reward *big.Int) error {
	return e.updateWindow(caller, func(g *Global) error {
		if reward == nil || reward.Sign() <= 0 {
			return fmt.Errorf("%w: reward per block must be positive", ErrInvalidParams)
		}
		g.RewardPerBlock = new(big.Int).Set(reward)
		return nil
	})
}

func (e *Engine) updateWindow(caller crypto.Address, apply func(*Global) error) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if err := apply(global.Clone()); err != nil {
		return err
	}
	if err := e.MassUpdatePools(); err != nil {
		return err
	}
	global, err = e.loadGlobal()
	if err != nil {
		return err
	}
	if err := apply(global); err != nil {
		return err
	}
	if err := e.state.PutStakeGlobal(global); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeWindowUpdated{
		Height:         e.blockHeight,
		StartBlock:     global.StartBlock,
		EndBlock:       global.EndBlock,
		RewardPerBlock: copyBig(global.RewardPerBlock),
	})
	return nil
}

// PauseWithdraw disables unstake and withdraw.
func (e *Engine) PauseWithdraw(caller crypto.Address) error {
	return e.setGate(caller, GateWithdraw, true)
}

// UnpauseWithdraw re-enables unstake and withdraw.
func (e *Engine) UnpauseWithdraw(caller crypto.Address) error {
	return e.setGate(caller, GateWithdraw, false)
}

// PauseClaim disables reward payouts.
func (e *Engine) PauseClaim(caller crypto.Address) error {
	return e.setGate(caller, GateClaim, true)
}

// UnpauseClaim re-enables reward payouts.
func (e *Engine) UnpauseClaim(caller crypto.Address) error {
	return e.setGate(caller, GateClaim, false)
}

func (e *Engine) setGate(caller crypto.Address, gate string, paused bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if err := nativecommon.Transition(global.IsPaused(gate), paused, ErrAlreadyInState); err != nil {
		return fmt.Errorf("%w: %s", err, gate)
	}
	switch gate {
	case GateWithdraw:
		global.WithdrawPaused = paused
	case GateClaim:
		global.ClaimPaused = paused
	default:
		return fmt.Errorf("%w: unknown gate %q", ErrInvalidParams, gate)
	}
	if err := e.state.PutStakeGlobal(global); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeGateChanged{Height: e.blockHeight, Gate: gate, Paused: paused, Admin: caller})
	return nil
}

// FundRewards moves reward tokens from the administrator into the reward
// reserve.
func (e *Engine) FundRewards(caller crypto.Address, amount *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	global, err := e.loadGlobal()
	if err != nil {
		return err
	}
	if e.rewards == nil {
		return errNilGateway
	}
	if err := e.rewards.CreditIn(caller, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emitter.Emit(events.StakeRewardsFunded{
		Height: e.blockHeight,
		Funder: caller,
		Token:  global.RewardToken,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

func (e *Engine) requireAdmin(caller crypto.Address) error {
	if e == nil {
		return errNilState
	}
	if e.admin == nil || !e.admin.IsAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) emitPoolUpdated(id uint64, pool *Pool, global *Global) {
	e.emitter.Emit(events.StakePoolUpdated{
		Height:      e.blockHeight,
		PoolID:      id,
		Weight:      pool.Weight,
		TotalWeight: global.TotalWeight,
		MinDeposit:  copyBig(pool.MinDeposit),
		LockBlocks:  pool.LockBlocks,
	})
}
