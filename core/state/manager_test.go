package state

import (
	"math/big"
	"testing"

	"metanode/crypto"
	"metanode/native/stake"
	"metanode/storage"
)

func testAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.MNDPrefix, raw)
}

func TestStakeKeyFormats(t *testing.T) {
	if string(StakeGlobalKey()) != "stake/global" {
		t.Fatalf("unexpected global key: %s", StakeGlobalKey())
	}
	if string(StakePoolCountKey()) != "stake/pools/count" {
		t.Fatalf("unexpected count key: %s", StakePoolCountKey())
	}
	if string(StakePoolKey(42)) != "stake/pool/42" {
		t.Fatalf("unexpected pool key: %s", StakePoolKey(42))
	}
	if key := StakeUserKey(3, []byte{0x01, 0xab}); string(key) != "stake/user/3/01ab" {
		t.Fatalf("unexpected user key: %s", key)
	}
}

func TestStakeRecordsRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(NewJournal(db))

	if global, err := mgr.StakeGlobal(); err != nil || global != nil {
		t.Fatalf("expected missing global, got %+v %v", global, err)
	}
	global := &stake.Global{
		StartBlock:     5,
		EndBlock:       500,
		RewardPerBlock: big.NewInt(1_000),
		TotalWeight:    30,
		RewardToken:    "META",
		ClaimPaused:    true,
	}
	if err := mgr.PutStakeGlobal(global); err != nil {
		t.Fatalf("put global: %v", err)
	}
	loaded, err := mgr.StakeGlobal()
	if err != nil {
		t.Fatalf("load global: %v", err)
	}
	if loaded.EndBlock != 500 || loaded.RewardPerBlock.Cmp(big.NewInt(1_000)) != 0 || !loaded.ClaimPaused || loaded.WithdrawPaused {
		t.Fatalf("unexpected global %+v", loaded)
	}

	pool := &stake.Pool{
		Asset:             stake.FungibleAsset("stk"),
		Weight:            30,
		MinDeposit:        big.NewInt(10),
		LockBlocks:        7,
		TotalStaked:       big.NewInt(0),
		AccRewardPerShare: big.NewInt(0),
		LastRewardBlock:   5,
	}
	if err := mgr.PutStakePool(0, pool); err == nil {
		t.Fatalf("expected overwrite of unregistered pool to fail")
	}
	id, err := mgr.AppendStakePool(pool)
	if err != nil || id != 0 {
		t.Fatalf("append pool: id %d err %v", id, err)
	}
	pool.TotalStaked = big.NewInt(99)
	if err := mgr.PutStakePool(id, pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	if count, _ := mgr.StakePoolCount(); count != 1 {
		t.Fatalf("expected 1 pool, got %d", count)
	}
	storedPool, err := mgr.StakePool(0)
	if err != nil {
		t.Fatalf("load pool: %v", err)
	}
	if storedPool.Asset.Kind != stake.AssetFungible || storedPool.Asset.Token != "STK" || storedPool.TotalStaked.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("unexpected pool %+v", storedPool)
	}

	addr := testAddress(0x22)
	user := &stake.UserStake{
		StakedAmount: big.NewInt(50),
		RewardDebt:   big.NewInt(7),
		UnpaidReward: big.NewInt(3),
		Requests: []stake.UnstakeRequest{
			{Amount: big.NewInt(4), UnlockBlock: 12},
			{Amount: big.NewInt(6), UnlockBlock: 19},
		},
	}
	if err := mgr.PutStakeUser(0, addr, user); err != nil {
		t.Fatalf("put user: %v", err)
	}
	storedUser, err := mgr.StakeUser(0, addr)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if len(storedUser.Requests) != 2 || storedUser.Requests[1].UnlockBlock != 19 || storedUser.UnpaidReward.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("unexpected user %+v", storedUser)
	}
	if other, err := mgr.StakeUser(1, addr); err != nil || other != nil {
		t.Fatalf("expected missing entry in another pool, got %+v %v", other, err)
	}
}

func TestBalancesAndAllowances(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(NewJournal(db))
	owner := testAddress(0x01)
	spender := testAddress(0x02)

	if err := mgr.SetBalance(owner.Bytes(), "stk", big.NewInt(10)); err == nil {
		t.Fatalf("expected unregistered token to be rejected")
	}
	if err := mgr.RegisterToken("stk", "Stake Token", 18); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.RegisterToken(NativeSymbol, "Native", 18); err == nil {
		t.Fatalf("expected native symbol to be reserved")
	}
	if err := mgr.SetBalance(owner.Bytes(), "STK", big.NewInt(10)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := mgr.SetBalance(owner.Bytes(), NativeSymbol, big.NewInt(25)); err != nil {
		t.Fatalf("set native balance: %v", err)
	}
	if bal, _ := mgr.Balance(owner.Bytes(), "stk"); bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected token balance %s", bal)
	}
	if bal, _ := mgr.Balance(owner.Bytes(), NativeSymbol); bal.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("unexpected native balance %s", bal)
	}
	if err := mgr.SetBalance(owner.Bytes(), "STK", big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative balance rejected")
	}

	if allowance, _ := mgr.Allowance(owner.Bytes(), spender.Bytes(), "STK"); allowance.Sign() != 0 {
		t.Fatalf("expected zero allowance, got %s", allowance)
	}
	if err := mgr.SetAllowance(owner.Bytes(), spender.Bytes(), "stk", big.NewInt(8)); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	if allowance, _ := mgr.Allowance(owner.Bytes(), spender.Bytes(), "STK"); allowance.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("unexpected allowance %s", allowance)
	}
	if allowance, _ := mgr.Allowance(spender.Bytes(), owner.Bytes(), "STK"); allowance.Sign() != 0 {
		t.Fatalf("allowance must be directional, got %s", allowance)
	}
}

func TestRoles(t *testing.T) {
	mgr := NewManager(NewJournal(storage.NewMemDB()))
	admin := testAddress(0x09)
	if mgr.HasRole(RoleAdmin, admin.Bytes()) {
		t.Fatalf("unexpected admin")
	}
	for i := 0; i < 2; i++ {
		if err := mgr.SetRole(RoleAdmin, admin.Bytes()); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	members, err := mgr.RoleMembers(RoleAdmin)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || !mgr.HasRole(RoleAdmin, admin.Bytes()) {
		t.Fatalf("unexpected members %x", members)
	}
}
