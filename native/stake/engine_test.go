package stake

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"metanode/core/events"
	"metanode/crypto"
)

type userKey struct {
	pool uint64
	addr string
}

type mockEngineState struct {
	global *Global
	pools  []*Pool
	users  map[userKey]*UserStake
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{users: make(map[userKey]*UserStake)}
}

func (m *mockEngineState) StakeGlobal() (*Global, error) {
	return m.global.Clone(), nil
}

func (m *mockEngineState) PutStakeGlobal(global *Global) error {
	m.global = global.Clone()
	return nil
}

func (m *mockEngineState) StakePoolCount() (uint64, error) {
	return uint64(len(m.pools)), nil
}

func (m *mockEngineState) StakePool(id uint64) (*Pool, error) {
	if id >= uint64(len(m.pools)) {
		return nil, nil
	}
	return m.pools[id].Clone(), nil
}

func (m *mockEngineState) PutStakePool(id uint64, pool *Pool) error {
	if id >= uint64(len(m.pools)) {
		return fmt.Errorf("pool %d out of range", id)
	}
	m.pools[id] = pool.Clone()
	return nil
}

func (m *mockEngineState) AppendStakePool(pool *Pool) (uint64, error) {
	m.pools = append(m.pools, pool.Clone())
	return uint64(len(m.pools) - 1), nil
}

func (m *mockEngineState) StakeUser(id uint64, addr crypto.Address) (*UserStake, error) {
	return m.users[userKey{id, string(addr.Bytes())}].Clone(), nil
}

func (m *mockEngineState) PutStakeUser(id uint64, addr crypto.Address, user *UserStake) error {
	m.users[userKey{id, string(addr.Bytes())}] = user.Clone()
	return nil
}

var (
	errMockBalance   = errors.New("mock: insufficient balance")
	errMockAllowance = errors.New("mock: insufficient allowance")
)

// mockGateway keeps one asset's balances, the module escrow included.
type mockGateway struct {
	module     crypto.Address
	balances   map[string]*big.Int
	allowances map[string]*big.Int
	failPayOut bool
}

func newMockGateway(module crypto.Address) *mockGateway {
	return &mockGateway{module: module, balances: make(map[string]*big.Int)}
}

func (g *mockGateway) fund(addr crypto.Address, amount int64) {
	g.balances[string(addr.Bytes())] = new(big.Int).Add(g.balance(addr), big.NewInt(amount))
}

func (g *mockGateway) fundBig(addr crypto.Address, amount *big.Int) {
	g.balances[string(addr.Bytes())] = new(big.Int).Add(g.balance(addr), amount)
}

func (g *mockGateway) balance(addr crypto.Address) *big.Int {
	if bal, ok := g.balances[string(addr.Bytes())]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (g *mockGateway) move(from, to crypto.Address, amount *big.Int) error {
	if g.balance(from).Cmp(amount) < 0 {
		return errMockBalance
	}
	g.balances[string(from.Bytes())] = new(big.Int).Sub(g.balance(from), amount)
	g.balances[string(to.Bytes())] = new(big.Int).Add(g.balance(to), amount)
	return nil
}

func (g *mockGateway) CreditIn(from crypto.Address, amount *big.Int) error {
	if g.allowances != nil {
		allowed, ok := g.allowances[string(from.Bytes())]
		if !ok || allowed.Cmp(amount) < 0 {
			return errMockAllowance
		}
		if err := g.move(from, g.module, amount); err != nil {
			return err
		}
		g.allowances[string(from.Bytes())] = new(big.Int).Sub(allowed, amount)
		return nil
	}
	return g.move(from, g.module, amount)
}

func (g *mockGateway) PayOut(to crypto.Address, amount *big.Int) error {
	if g.failPayOut {
		return errMockBalance
	}
	return g.move(g.module, to, amount)
}

func (g *mockGateway) BalanceOf(addr crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(g.balance(addr)), nil
}

type mockResolver struct {
	native *mockGateway
	tokens map[string]*mockGateway
}

func (r *mockResolver) Gateway(asset Asset) (Gateway, error) {
	if asset.Kind == AssetNative {
		return r.native, nil
	}
	gw, ok := r.tokens[asset.Token]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", asset.Token)
	}
	return gw, nil
}

type mockAdmin struct {
	admin crypto.Address
}

func (m mockAdmin) IsAdmin(addr crypto.Address) bool {
	return addr.Equal(m.admin)
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.MNDPrefix, raw)
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), RewardScale)
}

type fixture struct {
	engine  *Engine
	state   *mockEngineState
	native  *mockGateway
	token   *mockGateway
	rewards *mockGateway
	events  *events.Buffer
	admin   crypto.Address
	module  crypto.Address
	reserve crypto.Address
}

func newFixture(t *testing.T, start, end uint64, rewardPerBlock *big.Int) *fixture {
	t.Helper()
	f := &fixture{
		state:   newMockEngineState(),
		events:  &events.Buffer{},
		admin:   makeAddress(0x01),
		module:  makeAddress(0xEE),
		reserve: makeAddress(0xEF),
	}
	f.native = newMockGateway(f.module)
	f.token = newMockGateway(f.module)
	f.token.allowances = make(map[string]*big.Int)
	f.rewards = newMockGateway(f.reserve)

	f.engine = NewEngine(f.module)
	f.engine.SetState(f.state)
	f.engine.SetAssets(&mockResolver{native: f.native, tokens: map[string]*mockGateway{"STK": f.token}})
	f.engine.SetRewards(f.rewards, f.reserve)
	f.engine.SetAdmin(mockAdmin{admin: f.admin})
	f.engine.SetEmitter(f.events)
	if err := f.engine.Initialize(&Global{
		StartBlock:     start,
		EndBlock:       end,
		RewardPerBlock: rewardPerBlock,
		RewardToken:    "MND",
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

func (f *fixture) addNativePool(t *testing.T, weight uint64, minDeposit int64, lockBlocks uint64) uint64 {
	t.Helper()
	id, err := f.engine.AddPool(f.admin, NativeAsset(), weight, big.NewInt(minDeposit), lockBlocks, true)
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	return id
}

func (f *fixture) user(t *testing.T, id uint64, addr crypto.Address) *UserStake {
	t.Helper()
	user, err := f.state.StakeUser(id, addr)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user == nil {
		return newUserStake()
	}
	return user
}

func (f *fixture) pending(t *testing.T, id uint64, addr crypto.Address) *big.Int {
	t.Helper()
	pending, err := f.engine.PendingReward(id, addr)
	if err != nil {
		t.Fatalf("pending reward: %v", err)
	}
	return pending
}

func TestDepositThenImmediateClaimYieldsZero(t *testing.T) {
	f := newFixture(t, 0, 1000, e18(1))
	pid := f.addNativePool(t, 100, 1, 10)
	alice := makeAddress(0x10)
	f.native.fund(alice, 100)
	f.rewards.fundBig(f.reserve, e18(100))

	f.engine.SetBlockHeight(5)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if pending := f.pending(t, pid, alice); pending.Sign() != 0 {
		t.Fatalf("expected zero pending, got %s", pending)
	}
	paid, err := f.engine.Claim(alice, pid)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("expected no payout, got %s", paid)
	}
	if bal := f.rewards.balance(alice); bal.Sign() != 0 {
		t.Fatalf("expected no reward balance, got %s", bal)
	}
}

func TestClaimAfterFiveBlocks(t *testing.T) {
	f := newFixture(t, 0, 1000, e18(1))
	pid := f.addNativePool(t, 100, 1, 10)
	alice := makeAddress(0x10)
	f.native.fund(alice, 1)
	f.rewards.fundBig(f.reserve, e18(100))

	f.engine.SetBlockHeight(10)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(15)
	if pending := f.pending(t, pid, alice); pending.Cmp(e18(5)) != 0 {
		t.Fatalf("unexpected pending before claim: got %s want %s", pending, e18(5))
	}
	paid, err := f.engine.Claim(alice, pid)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(e18(5)) != 0 {
		t.Fatalf("unexpected payout: got %s", paid)
	}
	if pending := f.pending(t, pid, alice); pending.Sign() != 0 {
		t.Fatalf("expected zero pending after claim, got %s", pending)
	}
	if bal := f.rewards.balance(alice); bal.Cmp(e18(5)) != 0 {
		t.Fatalf("unexpected reward balance: got %s", bal)
	}
}

func TestRewardSplitsAcrossUsersAndPools(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(1000))
	first := f.addNativePool(t, 300, 1, 10)
	second := f.addNativePool(t, 100, 1, 10)
	alice := makeAddress(0x10)
	bob := makeAddress(0x11)
	carol := makeAddress(0x12)
	for _, addr := range []crypto.Address{alice, bob, carol} {
		f.native.fund(addr, 1000)
	}

	f.engine.SetBlockHeight(10)
	for _, step := range []struct {
		addr   crypto.Address
		pool   uint64
		amount int64
	}{
		{alice, first, 100},
		{bob, first, 300},
		{carol, second, 50},
	} {
		if err := f.engine.DepositNative(step.addr, step.pool, big.NewInt(step.amount)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	f.engine.SetBlockHeight(20)

	// 10 blocks * 1000 = 10000; pool 0 gets 7500, pool 1 gets 2500.
	cases := []struct {
		addr crypto.Address
		pool uint64
		want int64
	}{
		{alice, first, 1875},
		{bob, first, 5625},
		{carol, second, 2500},
	}
	for _, tc := range cases {
		if got := f.pending(t, tc.pool, tc.addr); got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("pool %d: unexpected pending %s want %d", tc.pool, got, tc.want)
		}
	}
}

func TestTotalStakedMatchesUserBalances(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(1000))
	pid := f.addNativePool(t, 1, 1, 5)
	users := []crypto.Address{makeAddress(0x10), makeAddress(0x11), makeAddress(0x12)}
	for _, addr := range users {
		f.native.fund(addr, 10_000)
	}

	prevAcc := big.NewInt(0)
	var prevLast uint64
	check := func(step int) {
		t.Helper()
		pool := f.state.pools[pid]
		sum := big.NewInt(0)
		for _, addr := range users {
			sum.Add(sum, f.user(t, pid, addr).StakedAmount)
		}
		if pool.TotalStaked.Cmp(sum) != 0 {
			t.Fatalf("step %d: total staked %s != sum %s", step, pool.TotalStaked, sum)
		}
		if pool.AccRewardPerShare.Cmp(prevAcc) < 0 {
			t.Fatalf("step %d: accumulator decreased %s -> %s", step, prevAcc, pool.AccRewardPerShare)
		}
		if pool.LastRewardBlock < prevLast {
			t.Fatalf("step %d: last reward block decreased %d -> %d", step, prevLast, pool.LastRewardBlock)
		}
		prevAcc = new(big.Int).Set(pool.AccRewardPerShare)
		prevLast = pool.LastRewardBlock
	}

	height := uint64(1)
	for i := 0; i < 30; i++ {
		addr := users[i%len(users)]
		height += uint64(i % 4)
		f.engine.SetBlockHeight(height)
		if i%5 == 4 {
			staked := f.user(t, pid, addr).StakedAmount
			if staked.Sign() > 0 {
				half := new(big.Int).Rsh(staked, 1)
				if half.Sign() == 0 {
					half = staked
				}
				if err := f.engine.Unstake(addr, pid, half); err != nil {
					t.Fatalf("step %d: unstake: %v", i, err)
				}
			}
		} else {
			if err := f.engine.DepositNative(addr, pid, big.NewInt(int64(10+i*7))); err != nil {
				t.Fatalf("step %d: deposit: %v", i, err)
			}
		}
		check(i)
	}
}

func TestDepositBelowMinimumRejected(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(1000))
	nativePool := f.addNativePool(t, 1, 100, 5)
	tokenPool, err := f.engine.AddPool(f.admin, FungibleAsset("stk"), 1, big.NewInt(100), 5, false)
	if err != nil {
		t.Fatalf("add token pool: %v", err)
	}
	zeroMinPool := f.addNativePool(t, 1, 0, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 1000)
	f.token.fund(alice, 1000)
	f.token.allowances[string(alice.Bytes())] = big.NewInt(1000)

	cases := []struct {
		name    string
		deposit func(crypto.Address, uint64, *big.Int) error
		pool    uint64
		amount  int64
	}{
		{"native zero", f.engine.DepositNative, nativePool, 0},
		{"native below", f.engine.DepositNative, nativePool, 99},
		{"fungible zero", f.engine.Deposit, tokenPool, 0},
		{"fungible below", f.engine.Deposit, tokenPool, 50},
		{"zero minimum still rejects zero", f.engine.DepositNative, zeroMinPool, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.deposit(alice, tc.pool, big.NewInt(tc.amount)); !errors.Is(err, ErrBelowMinimumDeposit) {
				t.Fatalf("expected ErrBelowMinimumDeposit, got %v", err)
			}
		})
	}
	if bal := f.native.balance(alice); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("native balance changed: %s", bal)
	}
	if bal := f.token.balance(alice); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("token balance changed: %s", bal)
	}
}

func TestDepositRejectsInvalidPoolAndAssetMismatch(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(1000))
	pid := f.addNativePool(t, 1, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 1000)

	if err := f.engine.DepositNative(alice, pid+1, big.NewInt(10)); !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("expected ErrInvalidPool, got %v", err)
	}
	err := f.engine.Deposit(alice, pid, big.NewInt(10))
	if !errors.Is(err, ErrAssetMismatch) || !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("expected ErrAssetMismatch, got %v", err)
	}
}

func TestFungibleDepositRequiresAllowance(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(1000))
	pid, err := f.engine.AddPool(f.admin, FungibleAsset("STK"), 1, big.NewInt(1), 5, false)
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	alice := makeAddress(0x10)
	f.token.fund(alice, 500)

	if err := f.engine.Deposit(alice, pid, big.NewInt(100)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if staked := f.user(t, pid, alice).StakedAmount; staked.Sign() != 0 {
		t.Fatalf("expected no stake, got %s", staked)
	}
	if total := f.state.pools[pid].TotalStaked; total.Sign() != 0 {
		t.Fatalf("expected empty pool, got %s", total)
	}

	f.token.allowances[string(alice.Bytes())] = big.NewInt(100)
	if err := f.engine.Deposit(alice, pid, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if bal := f.token.balance(f.module); bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected escrow %s", bal)
	}
}

func TestSecondDepositSettlesPendingReward(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 1000)
	f.rewards.fund(f.reserve, 10_000)

	f.engine.SetBlockHeight(10)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(14)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(30)); err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if bal := f.rewards.balance(alice); bal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected settled reward 400, got %s", bal)
	}
	user := f.user(t, pid, alice)
	if user.StakedAmount.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected stake %s", user.StakedAmount)
	}
	if pending := f.pending(t, pid, alice); pending.Sign() != 0 {
		t.Fatalf("expected zero pending after settlement, got %s", pending)
	}
	f.engine.SetBlockHeight(16)
	if pending := f.pending(t, pid, alice); pending.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected 200 pending on new balance, got %s", pending)
	}
}

func TestClaimShortfallCarriesRemainder(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 10)
	f.rewards.fund(f.reserve, 300)

	f.engine.SetBlockHeight(10)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(20)
	paid, err := f.engine.Claim(alice, pid)
	if err != nil {
		t.Fatalf("under-funded claim must not fail: %v", err)
	}
	if paid.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected partial payout 300, got %s", paid)
	}
	if pending := f.pending(t, pid, alice); pending.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected 700 outstanding, got %s", pending)
	}
	var shortfall *events.StakeRewardShortfall
	for _, evt := range f.events.Events() {
		if sf, ok := evt.(events.StakeRewardShortfall); ok {
			shortfall = &sf
		}
	}
	if shortfall == nil || shortfall.Outstanding.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected shortfall event with 700 outstanding, got %+v", shortfall)
	}

	// Empty reserve: no-op, nothing lost.
	paid, err = f.engine.Claim(alice, pid)
	if err != nil {
		t.Fatalf("claim against empty reserve: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("expected zero payout, got %s", paid)
	}

	f.rewards.fund(f.reserve, 1000)
	paid, err = f.engine.Claim(alice, pid)
	if err != nil {
		t.Fatalf("claim after funding: %v", err)
	}
	if paid.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected carried 700, got %s", paid)
	}
	if bal := f.rewards.balance(alice); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected total reward 1000, got %s", bal)
	}
}

func TestClaimToleratesPayOutFailure(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 10)
	f.rewards.fund(f.reserve, 10_000)
	f.rewards.failPayOut = true

	f.engine.SetBlockHeight(1)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(3)
	paid, err := f.engine.Claim(alice, pid)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("expected zero payout, got %s", paid)
	}
	if pending := f.pending(t, pid, alice); pending.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected 200 still owed, got %s", pending)
	}
}

func TestRewardStopsAtEndBlock(t *testing.T) {
	f := newFixture(t, 0, 20, big.NewInt(10))
	pid := f.addNativePool(t, 1, 1, 5)
	alice := makeAddress(0x10)
	f.native.fund(alice, 10)

	f.engine.SetBlockHeight(10)
	if err := f.engine.DepositNative(alice, pid, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.engine.SetBlockHeight(500)
	if pending := f.pending(t, pid, alice); pending.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected reward capped at end block, got %s", pending)
	}
}

func TestClaimWithoutDepositLeavesNoEntry(t *testing.T) {
	f := newFixture(t, 0, 1000, big.NewInt(100))
	pid := f.addNativePool(t, 1, 1, 5)
	f.rewards.fund(f.reserve, 1000)
	stranger := makeAddress(0x30)

	f.engine.SetBlockHeight(10)
	paid, err := f.engine.Claim(stranger, pid)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("expected nothing paid, got %s", paid)
	}
	if _, ok := f.state.users[userKey{pid, string(stranger.Bytes())}]; ok {
		t.Fatalf("claim created a ledger entry for an address that never deposited")
	}
}

func TestNilEngineState(t *testing.T) {
	engine := NewEngine(makeAddress(0xEE))
	if _, err := engine.PoolCount(); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	engine.SetState(newMockEngineState())
	if _, err := engine.Global(); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected ErrNotInitialised, got %v", err)
	}
}
