package stake

import (
	"fmt"
	"math/big"

	"metanode/core/events"
	"metanode/crypto"
	nativecommon "metanode/native/common"
)

const (
	moduleName        = "stake"
	rewardReserveName = "stake/rewards"
)

// ModuleName identifies the staking module in logs, metrics and module
// account derivation.
func ModuleName() string { return moduleName }

// RewardReserveName names the module account holding the reward reserve,
// distinct from the principal escrow.
func RewardReserveName() string { return rewardReserveName }

type engineState interface {
	StakeGlobal() (*Global, error)
	PutStakeGlobal(global *Global) error
	StakePoolCount() (uint64, error)
	StakePool(id uint64) (*Pool, error)
	PutStakePool(id uint64, pool *Pool) error
	AppendStakePool(pool *Pool) (uint64, error)
	StakeUser(id uint64, addr crypto.Address) (*UserStake, error)
	PutStakeUser(id uint64, addr crypto.Address, user *UserStake) error
}

// Gateway moves one asset between accounts and the module escrow.
type Gateway interface {
	// CreditIn pulls amount from the account into the module.
	CreditIn(from crypto.Address, amount *big.Int) error
	// PayOut pushes amount from the module to the account.
	PayOut(to crypto.Address, amount *big.Int) error
	BalanceOf(account crypto.Address) (*big.Int, error)
}

// AssetResolver selects the gateway serving a pool's asset binding.
type AssetResolver interface {
	Gateway(asset Asset) (Gateway, error)
}

// AdminView answers whether a caller holds the administrator role.
type AdminView interface {
	IsAdmin(addr crypto.Address) bool
}

// Engine applies staking state transitions against the injected state, asset
// gateways and clock height. An Engine is not safe for concurrent use; the
// caller serialises mutations.
type Engine struct {
	state         engineState
	moduleAddress crypto.Address
	assets        AssetResolver
	rewards       Gateway
	rewardReserve crypto.Address
	admin         AdminView
	emitter       events.Emitter
	blockHeight   uint64
}

// NewEngine constructs a staking engine escrowing principal at moduleAddr.
func NewEngine(moduleAddr crypto.Address) *Engine {
	return &Engine{moduleAddress: moduleAddr, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the gateway resolver used for principal transfers.
func (e *Engine) SetAssets(resolver AssetResolver) {
	if e == nil {
		return
	}
	e.assets = resolver
}

// SetRewards configures the gateway paying reward tokens and the account the
// gateway pays them from.
func (e *Engine) SetRewards(gateway Gateway, reserve crypto.Address) {
	if e == nil {
		return
	}
	e.rewards = gateway
	e.rewardReserve = reserve
}

// SetAdmin wires the administrator capability.
func (e *Engine) SetAdmin(admin AdminView) {
	if e == nil {
		return
	}
	e.admin = admin
}

// SetEmitter configures the sink receiving state transition events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetBlockHeight records the clock height used by subsequent operations.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

// BlockHeight returns the configured clock height.
func (e *Engine) BlockHeight() uint64 {
	if e == nil {
		return 0
	}
	return e.blockHeight
}

// ModuleAddress returns the escrow account of the engine.
func (e *Engine) ModuleAddress() crypto.Address {
	return e.moduleAddress
}

// RewardReserve returns the account reward payouts are drawn from.
func (e *Engine) RewardReserve() crypto.Address {
	return e.rewardReserve
}

// DepositNative stakes amount of the native asset into pool id.
func (e *Engine) DepositNative(caller crypto.Address, id uint64, amount *big.Int) error {
	return e.deposit(caller, id, amount, AssetNative)
}

// Deposit stakes amount of the pool's fungible token. The caller must have
// approved the module for at least amount beforehand.
func (e *Engine) Deposit(caller crypto.Address, id uint64, amount *big.Int) error {
	return e.deposit(caller, id, amount, AssetFungible)
}

func (e *Engine) deposit(caller crypto.Address, id uint64, amount *big.Int, kind AssetKind) error {
	global, pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	if pool.Asset.Kind != kind {
		return fmt.Errorf("%w: pool %d holds %s", ErrAssetMismatch, id, pool.Asset)
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(pool.MinDeposit) < 0 {
		return fmt.Errorf("%w: minimum %s", ErrBelowMinimumDeposit, pool.MinDeposit)
	}
	gateway, err := e.gateway(pool.Asset)
	if err != nil {
		return err
	}

	e.accrue(pool, global)
	user, err := e.loadUser(id, caller)
	if err != nil {
		return err
	}
	if user.StakedAmount.Sign() > 0 {
		if err := e.settle(id, caller, user, pool, global); err != nil {
			return err
		}
	}

	if err := gateway.CreditIn(caller, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	user.StakedAmount = new(big.Int).Add(user.StakedAmount, amount)
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
	user.RewardDebt = accumulated(user.StakedAmount, pool.AccRewardPerShare)

	if err := e.state.PutStakeUser(id, caller, user); err != nil {
		return err
	}
	if err := e.state.PutStakePool(id, pool); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeDeposited{
		Height:  e.blockHeight,
		PoolID:  id,
		Account: caller,
		Amount:  new(big.Int).Set(amount),
		Staked:  new(big.Int).Set(user.StakedAmount),
	})
	return nil
}

// Unstake removes amount from reward eligibility immediately and queues it
// for withdrawal after the pool's lock period.
func (e *Engine) Unstake(caller crypto.Address, id uint64, amount *big.Int) error {
	global, pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	if err := guard(global, GateWithdraw); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	user, err := e.loadUser(id, caller)
	if err != nil {
		return err
	}
	if user.StakedAmount.Cmp(amount) < 0 {
		return fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientStake, user.StakedAmount, amount)
	}
	unlock, err := unlockAt(e.blockHeight, pool.LockBlocks)
	if err != nil {
		return err
	}

	e.accrue(pool, global)
	if err := e.settle(id, caller, user, pool, global); err != nil {
		return err
	}

	user.StakedAmount = new(big.Int).Sub(user.StakedAmount, amount)
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
	user.Requests = append(user.Requests, UnstakeRequest{Amount: new(big.Int).Set(amount), UnlockBlock: unlock})
	user.RewardDebt = accumulated(user.StakedAmount, pool.AccRewardPerShare)

	if err := e.state.PutStakeUser(id, caller, user); err != nil {
		return err
	}
	if err := e.state.PutStakePool(id, pool); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeUnstakeRequested{
		Height:      e.blockHeight,
		PoolID:      id,
		Account:     caller,
		Amount:      new(big.Int).Set(amount),
		UnlockBlock: unlock,
	})
	return nil
}

// Withdraw pays out every matured unstake request and keeps the locked ones
// queued in their original order. Nothing matured is a successful no-op
// returning zero.
func (e *Engine) Withdraw(caller crypto.Address, id uint64) (*big.Int, error) {
	global, pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	if err := guard(global, GateWithdraw); err != nil {
		return nil, err
	}
	gateway, err := e.gateway(pool.Asset)
	if err != nil {
		return nil, err
	}
	e.accrue(pool, global)
	if err := e.state.PutStakePool(id, pool); err != nil {
		return nil, err
	}

	user, err := e.loadUser(id, caller)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	matured := 0
	kept := user.Requests[:0]
	for _, req := range user.Requests {
		if req.UnlockBlock <= e.blockHeight {
			total.Add(total, req.Amount)
			matured++
			continue
		}
		kept = append(kept, req)
	}
	if matured == 0 {
		return total, nil
	}
	user.Requests = kept
	if len(user.Requests) == 0 {
		user.Requests = nil
	}

	if total.Sign() > 0 {
		if err := gateway.PayOut(caller, total); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	if err := e.state.PutStakeUser(id, caller, user); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.StakeWithdrawn{
		Height:   e.blockHeight,
		PoolID:   id,
		Account:  caller,
		Amount:   new(big.Int).Set(total),
		Requests: matured,
	})
	return total, nil
}

// Claim pays the caller's pending reward for the pool. An empty or
// under-funded reserve pays what is available and keeps the remainder owed.
func (e *Engine) Claim(caller crypto.Address, id uint64) (*big.Int, error) {
	global, pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	if err := guard(global, GateClaim); err != nil {
		return nil, err
	}
	e.accrue(pool, global)
	if err := e.state.PutStakePool(id, pool); err != nil {
		return nil, err
	}

	user, err := e.state.StakeUser(id, caller)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Never deposited: nothing staked or carried.
		return big.NewInt(0), nil
	}
	user.ensureDefaults()
	e.settleInto(user, pool)
	paid := e.payReward(id, caller, user)
	if err := e.state.PutStakeUser(id, caller, user); err != nil {
		return nil, err
	}
	return paid, nil
}

// UpdatePool brings the pool's accumulator current. Anyone may call it.
func (e *Engine) UpdatePool(id uint64) error {
	global, pool, err := e.loadPool(id)
	if err != nil {
		return err
	}
	e.accrue(pool, global)
	return e.state.PutStakePool(id, pool)
}

// MassUpdatePools brings every pool current.
func (e *Engine) MassUpdatePools() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	count, err := e.state.StakePoolCount()
	if err != nil {
		return err
	}
	for id := uint64(0); id < count; id++ {
		if err := e.UpdatePool(id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) accrue(pool *Pool, global *Global) {
	acc, last := Accrue(pool.AccRewardPerShare, accrualInput(pool, global, e.blockHeight))
	pool.AccRewardPerShare = acc
	pool.LastRewardBlock = last
}

// settleInto moves reward accrued since the last settlement into the unpaid
// carry and advances the debt baseline.
func (e *Engine) settleInto(user *UserStake, pool *Pool) {
	current := accumulated(user.StakedAmount, pool.AccRewardPerShare)
	delta := new(big.Int).Sub(current, user.RewardDebt)
	if delta.Sign() > 0 {
		user.UnpaidReward = new(big.Int).Add(user.UnpaidReward, delta)
	}
	user.RewardDebt = current
}

// settle is the deposit/unstake variant: reward is paid right away unless the
// claim gate is paused, in which case it stays in the carry.
func (e *Engine) settle(id uint64, caller crypto.Address, user *UserStake, pool *Pool, global *Global) error {
	e.settleInto(user, pool)
	if global.ClaimPaused {
		return nil
	}
	e.payReward(id, caller, user)
	return nil
}

func (e *Engine) payReward(id uint64, caller crypto.Address, user *UserStake) *big.Int {
	owed := copyBig(user.UnpaidReward)
	if owed.Sign() <= 0 {
		return big.NewInt(0)
	}
	paid := big.NewInt(0)
	if e.rewards != nil {
		if reserve, err := e.rewards.BalanceOf(e.rewardReserve); err == nil && reserve != nil && reserve.Sign() > 0 {
			amount := minBig(owed, reserve)
			if err := e.rewards.PayOut(caller, amount); err == nil {
				paid = amount
			}
		}
	}
	user.UnpaidReward = new(big.Int).Sub(owed, paid)
	if paid.Sign() > 0 {
		e.emitter.Emit(events.StakeRewardPaid{
			Height:  e.blockHeight,
			PoolID:  id,
			Account: caller,
			Amount:  new(big.Int).Set(paid),
		})
	}
	if user.UnpaidReward.Sign() > 0 {
		e.emitter.Emit(events.StakeRewardShortfall{
			Height:      e.blockHeight,
			PoolID:      id,
			Account:     caller,
			Owed:        owed,
			Paid:        new(big.Int).Set(paid),
			Outstanding: new(big.Int).Set(user.UnpaidReward),
		})
	}
	return paid
}

func (e *Engine) loadGlobal() (*Global, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	global, err := e.state.StakeGlobal()
	if err != nil {
		return nil, err
	}
	if global == nil {
		return nil, ErrNotInitialised
	}
	if global.RewardPerBlock == nil {
		global.RewardPerBlock = big.NewInt(0)
	}
	return global, nil
}

func (e *Engine) loadPool(id uint64) (*Global, *Pool, error) {
	global, err := e.loadGlobal()
	if err != nil {
		return nil, nil, err
	}
	count, err := e.state.StakePoolCount()
	if err != nil {
		return nil, nil, err
	}
	if id >= count {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidPool, id)
	}
	pool, err := e.state.StakePool(id)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidPool, id)
	}
	pool.ensureDefaults()
	return global, pool, nil
}

func (e *Engine) loadUser(id uint64, addr crypto.Address) (*UserStake, error) {
	user, err := e.state.StakeUser(id, addr)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return newUserStake(), nil
	}
	user.ensureDefaults()
	return user, nil
}

func (e *Engine) gateway(asset Asset) (Gateway, error) {
	if e.assets == nil {
		return nil, errNilGateway
	}
	gateway, err := e.assets.Gateway(asset)
	if err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, errNilGateway
	}
	return gateway, nil
}

func guard(global *Global, gate string) error {
	if err := nativecommon.Guard(global, gate); err != nil {
		if gate == GateClaim {
			return ErrClaimPaused
		}
		return ErrWithdrawPaused
	}
	return nil
}
