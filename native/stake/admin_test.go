package stake

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"metanode/core/events"
	nativecommon "metanode/native/common"
)

func TestGateTransitions(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))

	gates := []struct {
		name    string
		pause   func() error
		unpause func() error
		paused  func(*Global) bool
	}{
		{
			name:    GateWithdraw,
			pause:   func() error { return f.engine.PauseWithdraw(f.admin) },
			unpause: func() error { return f.engine.UnpauseWithdraw(f.admin) },
			paused:  func(g *Global) bool { return g.WithdrawPaused },
		},
		{
			name:    GateClaim,
			pause:   func() error { return f.engine.PauseClaim(f.admin) },
			unpause: func() error { return f.engine.UnpauseClaim(f.admin) },
			paused:  func(g *Global) bool { return g.ClaimPaused },
		},
	}
	for _, gate := range gates {
		t.Run(gate.name, func(t *testing.T) {
			if err := gate.unpause(); !errors.Is(err, ErrAlreadyInState) {
				t.Fatalf("unpause active gate: expected ErrAlreadyInState, got %v", err)
			}
			if err := gate.pause(); err != nil {
				t.Fatalf("pause: %v", err)
			}
			if !gate.paused(f.state.global) {
				t.Fatalf("expected gate paused")
			}
			if err := gate.pause(); !errors.Is(err, ErrAlreadyInState) {
				t.Fatalf("pause paused gate: expected ErrAlreadyInState, got %v", err)
			}
			if err := gate.unpause(); err != nil {
				t.Fatalf("unpause: %v", err)
			}
			if gate.paused(f.state.global) {
				t.Fatalf("expected gate active")
			}
		})
	}
}

func TestGatesAreIndependent(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	if err := f.engine.PauseWithdraw(f.admin); err != nil {
		t.Fatalf("pause withdraw: %v", err)
	}
	if f.state.global.ClaimPaused {
		t.Fatalf("pausing withdraw must not pause claim")
	}
	if err := f.engine.PauseClaim(f.admin); err != nil {
		t.Fatalf("pause claim: %v", err)
	}
	if err := f.engine.UnpauseWithdraw(f.admin); err != nil {
		t.Fatalf("unpause withdraw: %v", err)
	}
	if !f.state.global.ClaimPaused || f.state.global.WithdrawPaused {
		t.Fatalf("unexpected gates: %+v", f.state.global)
	}
}

func TestAdminChecksPrecedeStateChecks(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)
	mallory := makeAddress(0x66)
	if err := f.engine.PauseClaim(f.admin); err != nil {
		t.Fatalf("pause claim: %v", err)
	}

	calls := map[string]func() error{
		"pause paused gate":   func() error { return f.engine.PauseClaim(mallory) },
		"unpause active gate": func() error { return f.engine.UnpauseWithdraw(mallory) },
		"pause withdraw":      func() error { return f.engine.PauseWithdraw(mallory) },
		"unpause claim":       func() error { return f.engine.UnpauseClaim(mallory) },
		"add pool": func() error {
			_, err := f.engine.AddPool(mallory, NativeAsset(), 1, big.NewInt(1), 5, false)
			return err
		},
		"set weight":      func() error { return f.engine.SetPoolWeight(mallory, pid, 5, true) },
		"set params":      func() error { return f.engine.SetPoolParams(mallory, pid, big.NewInt(1), 5) },
		"set start":       func() error { return f.engine.SetStartBlock(mallory, 1) },
		"set end":         func() error { return f.engine.SetEndBlock(mallory, 2000) },
		"set reward rate": func() error { return f.engine.SetRewardPerBlock(mallory, big.NewInt(5)) },
		"fund rewards":    func() error { return f.engine.FundRewards(mallory, big.NewInt(5)) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if err := call(); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
	if !f.state.global.ClaimPaused || f.state.global.WithdrawPaused {
		t.Fatalf("gates changed by unauthorised calls: %+v", f.state.global)
	}
}

func TestWithdrawGateBlocksUnstakeAndWithdraw(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 1)
	alice := makeAddress(0x10)
	f.native.fund(alice, 100)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Unstake(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if err := f.engine.PauseWithdraw(f.admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.engine.SetBlockHeight(10)

	err := f.engine.Unstake(alice, pid, big.NewInt(10))
	if !errors.Is(err, ErrWithdrawPaused) || !errors.Is(err, ErrGatePaused) {
		t.Fatalf("expected ErrWithdrawPaused, got %v", err)
	}
	if _, err := f.engine.Withdraw(alice, pid); !errors.Is(err, ErrWithdrawPaused) {
		t.Fatalf("expected ErrWithdrawPaused, got %v", err)
	}
	if bal := f.native.balance(alice); bal.Sign() != 0 {
		t.Fatalf("expected no payout while paused, got %s", bal)
	}
	// Deposits stay open.
	f.native.fund(alice, 5)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(5)); err != nil {
		t.Fatalf("deposit while withdraw paused: %v", err)
	}

	if err := f.engine.UnpauseWithdraw(f.admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	amount, err := f.engine.Withdraw(alice, pid)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected 10 withdrawn, got %s", amount)
	}
}

func TestClaimGateDefersSettlement(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 100)
	f.rewards.fund(f.reserve, 1_000_000)

	f.engine.SetBlockHeight(1)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.PauseClaim(f.admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.engine.SetBlockHeight(4)
	if _, err := f.engine.Claim(alice, pid); !errors.Is(err, ErrClaimPaused) {
		t.Fatalf("expected ErrClaimPaused, got %v", err)
	}
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit while claim paused: %v", err)
	}
	if err := f.engine.Unstake(alice, pid, big.NewInt(5)); err != nil {
		t.Fatalf("unstake while claim paused: %v", err)
	}
	if bal := f.rewards.balance(alice); bal.Sign() != 0 {
		t.Fatalf("claim gate bypassed, paid %s", bal)
	}
	if pending := f.pending(t, pid, alice); pending.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected 300 carried, got %s", pending)
	}

	if err := f.engine.UnpauseClaim(f.admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	paid, err := f.engine.Claim(alice, pid)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected 300 paid, got %s", paid)
	}
}

func TestGateErrorsWrapModulePause(t *testing.T) {
	global := &Global{ClaimPaused: true}
	if err := nativecommon.Guard(global, GateClaim); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := guard(global, GateWithdraw); err != nil {
		t.Fatalf("withdraw gate should be open: %v", err)
	}
}

func TestAddPoolValidation(t *testing.T) {
	f := newFixture(t, 100, 200, big.NewInt(100))

	if _, err := f.engine.AddPool(f.admin, NativeAsset(), 1, big.NewInt(1), 0, false); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for zero lock, got %v", err)
	}
	if _, err := f.engine.AddPool(f.admin, NativeAsset(), 0, big.NewInt(1), 5, false); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for zero weight, got %v", err)
	}
	if _, err := f.engine.AddPool(f.admin, Asset{Kind: AssetFungible}, 1, big.NewInt(1), 5, false); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for missing token, got %v", err)
	}
	if _, err := f.engine.AddPool(f.admin, FungibleAsset("NOPE"), 1, big.NewInt(1), 5, false); err == nil {
		t.Fatalf("expected unknown token to be rejected")
	}

	f.engine.SetBlockHeight(10)
	id, err := f.engine.AddPool(f.admin, NativeAsset(), 40, big.NewInt(1), 5, false)
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	pool, err := f.engine.Pool(id)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.LastRewardBlock != 100 {
		t.Fatalf("expected last reward block clamped to start, got %d", pool.LastRewardBlock)
	}
	f.engine.SetBlockHeight(150)
	id, err = f.engine.AddPool(f.admin, FungibleAsset("stk"), 60, big.NewInt(1), 5, false)
	if err != nil {
		t.Fatalf("add token pool: %v", err)
	}
	if pool, _ := f.engine.Pool(id); pool.LastRewardBlock != 150 || pool.Asset.Token != "STK" {
		t.Fatalf("unexpected pool %+v", pool)
	}
	if global, _ := f.engine.Global(); global.TotalWeight != 100 {
		t.Fatalf("expected total weight 100, got %d", global.TotalWeight)
	}
	if count, _ := f.engine.PoolCount(); count != 2 {
		t.Fatalf("expected 2 pools, got %d", count)
	}

	f.engine.SetBlockHeight(200)
	if _, err := f.engine.AddPool(f.admin, NativeAsset(), 1, big.NewInt(1), 5, false); !errors.Is(err, ErrRewardEnded) {
		t.Fatalf("expected ErrRewardEnded, got %v", err)
	}

	var added int
	for _, evt := range f.events.Events() {
		if evt.EventType() == events.TypeStakePoolAdded {
			added++
		}
	}
	if added != 2 {
		t.Fatalf("expected 2 pool added events, got %d", added)
	}
}

func TestAddPoolWithUpdatePreservesAccruedShares(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 100, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 10)

	f.engine.SetBlockHeight(1)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(11)
	if _, err := f.engine.AddPool(f.admin, NativeAsset(), 100, big.NewInt(1), 5, true); err != nil {
		t.Fatalf("add pool: %v", err)
	}
	// 10 blocks at full rate, then 10 blocks at half.
	f.engine.SetBlockHeight(21)
	if pending := f.pending(t, pid, alice); pending.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("expected 1500 pending, got %s", pending)
	}
}

func TestSetPoolWeight(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	first := f.addNativePool(t, 50, 1, 5)
	f.addNativePool(t, 50, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 10)

	f.engine.SetBlockHeight(1)
	if err := f.engine.DepositNative(alice, first, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.SetPoolWeight(f.admin, first, 0, true); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for zero weight, got %v", err)
	}
	if err := f.engine.SetPoolWeight(f.admin, 9, 10, true); !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("expected ErrInvalidPool, got %v", err)
	}
	f.engine.SetBlockHeight(11)
	if err := f.engine.SetPoolWeight(f.admin, first, 150, true); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	if g := f.state.global; g.TotalWeight != 200 {
		t.Fatalf("expected total weight 200, got %d", g.TotalWeight)
	}
	// 10 blocks at half, then 10 blocks at three quarters.
	f.engine.SetBlockHeight(21)
	if pending := f.pending(t, first, alice); pending.Cmp(big.NewInt(1250)) != 0 {
		t.Fatalf("expected 1250 pending, got %s", pending)
	}
}

func TestSetPoolParams(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)

	if err := f.engine.SetPoolParams(f.admin, pid, big.NewInt(10), 0); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if err := f.engine.SetPoolParams(f.admin, pid, big.NewInt(25), 8); err != nil {
		t.Fatalf("set params: %v", err)
	}
	pool := f.state.pools[pid]
	if pool.MinDeposit.Cmp(big.NewInt(25)) != 0 || pool.LockBlocks != 8 {
		t.Fatalf("unexpected pool params %+v", pool)
	}
	alice := makeAddress(0x10)
	f.native.fund(alice, 100)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(24)); !errors.Is(err, ErrBelowMinimumDeposit) {
		t.Fatalf("expected new minimum enforced, got %v", err)
	}
}

func TestRewardWindowAdministration(t *testing.T) {
	f := newFixture(t, 10, 100, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 10)

	if err := f.engine.SetStartBlock(f.admin, 101); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected start after end rejected, got %v", err)
	}
	if err := f.engine.SetEndBlock(f.admin, 9); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected end before start rejected, got %v", err)
	}
	if err := f.engine.SetRewardPerBlock(f.admin, big.NewInt(0)); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected zero rate rejected, got %v", err)
	}

	f.engine.SetBlockHeight(10)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(20)
	if err := f.engine.SetRewardPerBlock(f.admin, big.NewInt(300)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := f.engine.SetEndBlock(f.admin, 25); err != nil {
		t.Fatalf("set end: %v", err)
	}
	// 10 blocks at 100, then 5 blocks at 300 before the window closes.
	f.engine.SetBlockHeight(40)
	if pending := f.pending(t, pid, alice); pending.Cmp(big.NewInt(2500)) != 0 {
		t.Fatalf("expected 2500 pending, got %s", pending)
	}

	var windows int
	for _, evt := range f.events.Events() {
		if _, ok := evt.(events.StakeWindowUpdated); ok {
			windows++
		}
	}
	if windows != 2 {
		t.Fatalf("expected 2 window events, got %d", windows)
	}
}

func TestPendingRewardAt(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 10)

	f.engine.SetBlockHeight(10)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.engine.PendingRewardAt(pid, alice, 9); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	pending, err := f.engine.PendingRewardAt(pid, alice, 30)
	if err != nil {
		t.Fatalf("pending at: %v", err)
	}
	if pending.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("expected 2000, got %s", pending)
	}
	before := f.state.pools[pid].Clone()
	if _, err := f.engine.PendingReward(pid, alice); err != nil {
		t.Fatalf("pending: %v", err)
	}
	after := f.state.pools[pid]
	if before.AccRewardPerShare.Cmp(after.AccRewardPerShare) != 0 || before.LastRewardBlock != after.LastRewardBlock {
		t.Fatalf("query mutated pool state")
	}
}

func TestFundRewards(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	f.rewards.fund(f.admin, 500)

	if err := f.engine.FundRewards(f.admin, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.FundRewards(f.admin, big.NewInt(600)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if err := f.engine.FundRewards(f.admin, big.NewInt(400)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if bal := f.rewards.balance(f.reserve); bal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected reserve 400, got %s", bal)
	}
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	if err := f.engine.Initialize(&Global{EndBlock: 10, RewardPerBlock: big.NewInt(1)}); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected ErrAlreadyInitialised, got %v", err)
	}

	engine := NewEngine(makeAddress(0xEE))
	engine.SetState(newMockEngineState())
	if err := engine.Initialize(&Global{StartBlock: 10, EndBlock: 5, RewardPerBlock: big.NewInt(1)}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if err := engine.Initialize(&Global{EndBlock: 5}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for missing rate, got %v", err)
	}
}

func TestMassUpdatePools(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	first := f.addNativePool(t, 50, 1, 5)
	second := f.addNativePool(t, 50, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 10)

	f.engine.SetBlockHeight(1)
	if err := f.engine.DepositNative(alice, first, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(11)
	for i := 0; i < 2; i++ {
		if err := f.engine.MassUpdatePools(); err != nil {
			t.Fatalf("mass update: %v", err)
		}
		staked := f.state.pools[first]
		if staked.LastRewardBlock != 11 {
			t.Fatalf("expected staked pool current at 11, got %d", staked.LastRewardBlock)
		}
		want := new(big.Int).Mul(big.NewInt(50), RewardScale)
		if staked.AccRewardPerShare.Cmp(want) != 0 {
			t.Fatalf("expected accumulator %s, got %s", want, staked.AccRewardPerShare)
		}
		empty := f.state.pools[second]
		if empty.LastRewardBlock != 11 || empty.AccRewardPerShare.Sign() != 0 {
			t.Fatalf("empty pool: block %d acc %s", empty.LastRewardBlock, empty.AccRewardPerShare)
		}
	}
}

func TestTotalWeightOverflowRejected(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	first := f.addNativePool(t, 100, 1, 5)
	f.addNativePool(t, 100, 1, 5)

	if _, err := f.engine.AddPool(f.admin, NativeAsset(), math.MaxUint64, big.NewInt(1), 5, false); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if count, _ := f.engine.PoolCount(); count != 2 {
		t.Fatalf("rejected pool was stored, count %d", count)
	}
	if err := f.engine.SetPoolWeight(f.admin, first, math.MaxUint64, true); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	if f.state.global.TotalWeight != 200 || f.state.pools[first].Weight != 100 {
		t.Fatalf("weights changed: total %d pool %d", f.state.global.TotalWeight, f.state.pools[first].Weight)
	}
	if err := f.engine.SetPoolWeight(f.admin, first, math.MaxUint64-100, false); err != nil {
		t.Fatalf("largest fitting weight: %v", err)
	}
	if f.state.global.TotalWeight != math.MaxUint64 {
		t.Fatalf("unexpected total weight %d", f.state.global.TotalWeight)
	}
}

func TestUnlockBlockOverflowRejected(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	f.engine.SetBlockHeight(1)
	if _, err := f.engine.AddPool(f.admin, NativeAsset(), 1, big.NewInt(1), math.MaxUint64, false); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	pid := f.addNativePool(t, 1, 1, math.MaxUint64-10)
	if err := f.engine.SetPoolParams(f.admin, pid, big.NewInt(1), math.MaxUint64); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}

	alice := makeAddress(0x10)
	f.native.fund(alice, 10)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(20)
	if err := f.engine.Unstake(alice, pid, big.NewInt(10)); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
	user := f.state.users[userKey{pid, string(alice.Bytes())}]
	if user.StakedAmount.Cmp(big.NewInt(10)) != 0 || len(user.Requests) != 0 {
		t.Fatalf("rejected unstake changed the ledger: staked %s requests %d", user.StakedAmount, len(user.Requests))
	}
}
