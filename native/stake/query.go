package stake

import (
	"fmt"
	"math/big"

	"metanode/crypto"
)

// PoolCount returns the number of registered pools.
func (e *Engine) PoolCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.StakePoolCount()
}

// Pool returns a copy of the stored pool record.
func (e *Engine) Pool(id uint64) (*Pool, error) {
	_, pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Global returns a copy of the shared configuration.
func (e *Engine) Global() (*Global, error) {
	global, err := e.loadGlobal()
	if err != nil {
		return nil, err
	}
	return global.Clone(), nil
}

// PendingReward returns the reward the user could claim at the current block.
// The pool accumulator is simulated, never written.
func (e *Engine) PendingReward(id uint64, addr crypto.Address) (*big.Int, error) {
	return e.pendingAt(id, addr, e.BlockHeight(), false)
}

// PendingRewardAt simulates the pending reward at an arbitrary block, which
// must not precede the pool's last reward block.
func (e *Engine) PendingRewardAt(id uint64, addr crypto.Address, block uint64) (*big.Int, error) {
	return e.pendingAt(id, addr, block, true)
}

func (e *Engine) pendingAt(id uint64, addr crypto.Address, block uint64, strict bool) (*big.Int, error) {
	global, pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	if strict && block < pool.LastRewardBlock {
		return nil, fmt.Errorf("%w: block %d precedes last reward block %d", ErrInvalidParams, block, pool.LastRewardBlock)
	}
	user, err := e.loadUser(id, addr)
	if err != nil {
		return nil, err
	}
	acc, _ := Accrue(pool.AccRewardPerShare, accrualInput(pool, global, block))
	return pendingFor(user, acc), nil
}

// StakedBalance returns the reward-earning balance of the user.
func (e *Engine) StakedBalance(id uint64, addr crypto.Address) (*big.Int, error) {
	if _, _, err := e.loadPool(id); err != nil {
		return nil, err
	}
	user, err := e.loadUser(id, addr)
	if err != nil {
		return nil, err
	}
	return copyBig(user.StakedAmount), nil
}

// WithdrawAmount totals the user's queued unstake requests and the portion
// already unlocked at the current block.
func (e *Engine) WithdrawAmount(id uint64, addr crypto.Address) (*WithdrawSummary, error) {
	requests, err := e.UnstakeRequests(id, addr)
	if err != nil {
		return nil, err
	}
	summary := &WithdrawSummary{Locked: big.NewInt(0), Withdrawable: big.NewInt(0)}
	for _, req := range requests {
		summary.Locked.Add(summary.Locked, req.Amount)
		if req.UnlockBlock <= e.BlockHeight() {
			summary.Withdrawable.Add(summary.Withdrawable, req.Amount)
		}
	}
	return summary, nil
}

// UnstakeRequests returns a copy of the user's queue in request order.
func (e *Engine) UnstakeRequests(id uint64, addr crypto.Address) ([]UnstakeRequest, error) {
	if _, _, err := e.loadPool(id); err != nil {
		return nil, err
	}
	user, err := e.loadUser(id, addr)
	if err != nil {
		return nil, err
	}
	return user.Clone().Requests, nil
}
