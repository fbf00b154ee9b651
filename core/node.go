package core

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"metanode/core/clock"
	"metanode/core/events"
	"metanode/core/genesis"
	nhbstate "metanode/core/state"
	"metanode/crypto"
	"metanode/native/bank"
	"metanode/native/stake"
	"metanode/observability/metrics"
	"metanode/storage"
)

var (
	ErrGenesisApplied = errors.New("node: genesis already applied")
	ErrNilClock       = errors.New("node: clock source required")

	// ErrModuleRecipient rejects direct transfers into the escrow account.
	ErrModuleRecipient = errors.New("node: module account is not a valid recipient")
	ErrMintPaused      = errors.New("node: minting paused")
)

var eventSeqKey = []byte("node/event-seq")

// Node is the central controller. It serialises every state mutation, runs it
// inside one journal and forwards the resulting events only after the journal
// has committed.
type Node struct {
	stateMu sync.RWMutex
	db      storage.Database
	clock   clock.Source
	module  crypto.Address
	reserve crypto.Address
	fanout  *events.Fanout
	logger  *slog.Logger
	metrics *metrics.StakeMetrics
}

// NewNode wires a node over db. The stored schema version is verified before
// any state is read.
func NewNode(db storage.Database, src clock.Source) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if src == nil {
		return nil, ErrNilClock
	}
	if err := nhbstate.EnsureStateVersion(db); err != nil {
		return nil, err
	}
	return &Node{
		db:      db,
		clock:   src,
		module:  crypto.ModuleAddress(stake.ModuleName()),
		reserve: crypto.ModuleAddress(stake.RewardReserveName()),
		fanout:  events.NewFanout(),
		logger:  slog.Default().With("module", stake.ModuleName()),
		metrics: metrics.Stake(),
	}, nil
}

// SetLogger replaces the node logger.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	n.logger = logger.With("module", stake.ModuleName())
}

// Subscribe registers a sink for committed events.
func (n *Node) Subscribe(target events.Emitter) { n.fanout.Add(target) }

// ModuleAddress returns the account escrowing staked principal.
func (n *Node) ModuleAddress() crypto.Address { return n.module }

// RewardReserveAddress returns the account reward payouts are drawn from.
func (n *Node) RewardReserveAddress() crypto.Address { return n.reserve }

// BlockHeight returns the clock's current block.
func (n *Node) BlockHeight() uint64 { return n.clock.CurrentBlock() }

// txn bundles the per-operation components sharing one journal.
type txn struct {
	journal *nhbstate.Journal
	manager *nhbstate.Manager
	bank    *bank.Bank
	engine  *stake.Engine
	buffer  *events.Buffer
	height  uint64
}

type roleView struct{ manager *nhbstate.Manager }

func (r roleView) IsAdmin(addr crypto.Address) bool {
	return r.manager.HasRole(nhbstate.RoleAdmin, addr.Bytes())
}

func (n *Node) begin(height uint64) (*txn, error) {
	journal := nhbstate.NewJournal(n.db)
	manager := nhbstate.NewManager(journal)
	buffer := &events.Buffer{}

	b := bank.New(manager, n.module)
	b.SetEmitter(buffer)
	b.SetBlockHeight(height)

	engine := stake.NewEngine(n.module)
	engine.SetState(manager)
	engine.SetAssets(b)
	engine.SetAdmin(roleView{manager: manager})
	engine.SetEmitter(buffer)
	engine.SetBlockHeight(height)

	global, err := manager.StakeGlobal()
	if err != nil {
		return nil, err
	}
	if global != nil {
		engine.SetRewards(b.Rewards(global.RewardToken, n.reserve), n.reserve)
	}
	return &txn{journal: journal, manager: manager, bank: b, engine: engine, buffer: buffer, height: height}, nil
}

// op describes one mutation for logging and metrics.
type op struct {
	name   string
	caller crypto.Address
	pool   *uint64
}

func poolRef(id uint64) *uint64 { return &id }

// mutate runs fn under the write lock. Any error discards every write fn made.
func (n *Node) mutate(o op, fn func(*txn) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	height := n.clock.CurrentBlock()
	tx, err := n.begin(height)
	if err == nil {
		err = fn(tx)
	}
	var committed []events.Event
	if err == nil {
		committed, err = n.commit(tx)
	}
	if err != nil {
		if tx != nil {
			tx.journal.Discard()
		}
		n.metrics.ObserveOperation(o.name, err)
		n.logReject(o, height, err)
		return err
	}

	n.metrics.ObserveOperation(o.name, nil)
	n.observe(committed)
	n.logger.Info("committed", n.logArgs(o, height, "events", len(committed))...)
	for _, evt := range committed {
		n.fanout.Emit(evt)
	}
	return nil
}

// commit stamps the buffered events with ledger sequence numbers inside the
// journal and flushes it in a single batch.
func (n *Node) commit(tx *txn) ([]events.Event, error) {
	pending := tx.buffer.Events()
	var seq uint64
	if _, err := tx.manager.KVGet(eventSeqKey, &seq); err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(pending))
	for _, evt := range pending {
		seq++
		out = append(out, events.Committed{Seq: seq, Inner: evt})
	}
	if len(pending) > 0 {
		if err := tx.manager.KVPut(eventSeqKey, seq); err != nil {
			return nil, err
		}
	}
	if err := tx.journal.Commit(); err != nil {
		return nil, fmt.Errorf("node: commit: %w", err)
	}
	return out, nil
}

func (n *Node) logArgs(o op, height uint64, extra ...any) []any {
	args := []any{"op", o.name, "block", height}
	if !o.caller.IsZero() {
		args = append(args, "caller", o.caller.String())
	}
	if o.pool != nil {
		args = append(args, "pool", *o.pool)
	}
	return append(args, extra...)
}

func (n *Node) logReject(o op, height uint64, err error) {
	args := n.logArgs(o, height, "error", err)
	if errors.Is(err, stake.ErrUnauthorized) {
		n.logger.Warn("rejected", args...)
		return
	}
	n.logger.Debug("rejected", args...)
}

func (n *Node) observe(committed []events.Event) {
	touched := map[uint64]struct{}{}
	for _, c := range committed {
		wrapped, ok := c.(events.Committed)
		if !ok {
			continue
		}
		switch evt := wrapped.Inner.(type) {
		case events.StakeDeposited:
			n.metrics.AddDeposited(evt.PoolID, evt.Amount)
			touched[evt.PoolID] = struct{}{}
		case events.StakeUnstakeRequested:
			touched[evt.PoolID] = struct{}{}
		case events.StakeWithdrawn:
			n.metrics.AddWithdrawn(evt.PoolID, evt.Amount)
		case events.StakeRewardPaid:
			n.metrics.AddRewardPaid(evt.Amount)
		case events.StakeRewardShortfall:
			n.metrics.IncShortfall()
		}
	}
	if len(touched) == 0 {
		return
	}
	manager := nhbstate.NewManager(nhbstate.NewJournal(n.db))
	for id := range touched {
		pool, err := manager.StakePool(id)
		if err != nil || pool == nil {
			continue
		}
		n.metrics.SetTotalStaked(id, pool.TotalStaked)
	}
}

// view runs fn under the read lock against an uncommitted journal.
func (n *Node) view(fn func(*txn) error) error {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	tx, err := n.begin(n.clock.CurrentBlock())
	if err != nil {
		return err
	}
	defer tx.journal.Discard()
	return fn(tx)
}

// --- Bootstrap ---

// ApplyGenesis writes the genesis document. It fails once the staking
// configuration exists.
func (n *Node) ApplyGenesis(spec *genesis.GenesisSpec) error {
	if spec == nil {
		return fmt.Errorf("node: genesis spec required")
	}
	return n.mutate(op{name: "genesis"}, func(tx *txn) error {
		global, err := tx.manager.StakeGlobal()
		if err != nil {
			return err
		}
		if global != nil {
			return ErrGenesisApplied
		}
		tx.engine.SetRewards(tx.bank.Rewards(spec.Stake.RewardToken, n.reserve), n.reserve)
		return genesis.Apply(spec, tx.manager, tx.bank, tx.engine)
	})
}

// Initialized reports whether the staking configuration exists.
func (n *Node) Initialized() bool {
	var ok bool
	_ = n.view(func(tx *txn) error {
		global, err := tx.manager.StakeGlobal()
		ok = err == nil && global != nil
		return nil
	})
	return ok
}

// EnsureAdmins grants the admin role to every address. It backs operator
// configuration and bypasses the caller check.
func (n *Node) EnsureAdmins(addrs []crypto.Address) error {
	if len(addrs) == 0 {
		return nil
	}
	return n.mutate(op{name: "ensureAdmins"}, func(tx *txn) error {
		for _, addr := range addrs {
			if err := tx.manager.SetRole(nhbstate.RoleAdmin, addr.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

// GrantAdmin lets an existing admin add another.
func (n *Node) GrantAdmin(caller, addr crypto.Address) error {
	return n.mutate(op{name: "grantAdmin", caller: caller}, func(tx *txn) error {
		if !tx.manager.HasRole(nhbstate.RoleAdmin, caller.Bytes()) {
			return stake.ErrUnauthorized
		}
		return tx.manager.SetRole(nhbstate.RoleAdmin, addr.Bytes())
	})
}

// IsAdmin reports whether addr holds the admin role.
func (n *Node) IsAdmin(addr crypto.Address) bool {
	var ok bool
	_ = n.view(func(tx *txn) error {
		ok = tx.manager.HasRole(nhbstate.RoleAdmin, addr.Bytes())
		return nil
	})
	return ok
}

// --- Staking ---

func (n *Node) StakeDepositNative(caller crypto.Address, id uint64, amount *big.Int) error {
	return n.mutate(op{name: "depositNative", caller: caller, pool: poolRef(id)}, func(tx *txn) error {
		return tx.engine.DepositNative(caller, id, amount)
	})
}

func (n *Node) StakeDeposit(caller crypto.Address, id uint64, amount *big.Int) error {
	return n.mutate(op{name: "deposit", caller: caller, pool: poolRef(id)}, func(tx *txn) error {
		return tx.engine.Deposit(caller, id, amount)
	})
}

func (n *Node) StakeUnstake(caller crypto.Address, id uint64, amount *big.Int) error {
	return n.mutate(op{name: "unstake", caller: caller, pool: poolRef(id)}, func(tx *txn) error {
		return tx.engine.Unstake(caller, id, amount)
	})
}

func (n *Node) StakeWithdraw(caller crypto.Address, id uint64) (*big.Int, error) {
	var out *big.Int
	err := n.mutate(op{name: "withdraw", caller: caller, pool: poolRef(id)}, func(tx *txn) error {
		amount, err := tx.engine.Withdraw(caller, id)
		out = amount
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) StakeClaim(caller crypto.Address, id uint64) (*big.Int, error) {
	var out *big.Int
	err := n.mutate(op{name: "claim", caller: caller, pool: poolRef(id)}, func(tx *txn) error {
		paid, err := tx.engine.Claim(caller, id)
		out = paid
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) StakeUpdatePool(id uint64) error {
	return n.mutate(op{name: "updatePool", pool: poolRef(id)}, func(tx *txn) error {
		return tx.engine.UpdatePool(id)
	})
}

func (n *Node) StakeMassUpdatePools() error {
	return n.mutate(op{name: "massUpdatePools"}, func(tx *txn) error {
		return tx.engine.MassUpdatePools()
	})
}

// --- Administration ---

func (n *Node) StakeAddPool(caller crypto.Address, asset stake.Asset, weight uint64, minDeposit *big.Int, lockBlocks uint64, withUpdate bool) (uint64, error) {
	var id uint64
	err := n.mutate(op{name: "addPool", caller: caller}, func(tx *txn) error {
		created, err := tx.engine.AddPool(caller, asset, weight, minDeposit, lockBlocks, withUpdate)
		id = created
		return err
	})
	return id, err
}

func (n *Node) StakeSetPoolWeight(caller crypto.Address, id uint64, weight uint64, withUpdate bool) error {
	return n.mutate(op{name: "setPoolWeight", caller: caller, pool: poolRef(id)}, func(tx *txn) error {
		return tx.engine.SetPoolWeight(caller, id, weight, withUpdate)
	})
}

func (n *Node) StakeSetPoolParams(caller crypto.Address, id uint64, minDeposit *big.Int, lockBlocks uint64) error {
	return n.mutate(op{name: "setPoolParams", caller: caller, pool: poolRef(id)}, func(tx *txn) error {
		return tx.engine.SetPoolParams(caller, id, minDeposit, lockBlocks)
	})
}

func (n *Node) StakeSetStartBlock(caller crypto.Address, start uint64) error {
	return n.mutate(op{name: "setStartBlock", caller: caller}, func(tx *txn) error {
		return tx.engine.SetStartBlock(caller, start)
	})
}

func (n *Node) StakeSetEndBlock(caller crypto.Address, end uint64) error {
	return n.mutate(op{name: "setEndBlock", caller: caller}, func(tx *txn) error {
		return tx.engine.SetEndBlock(caller, end)
	})
}

func (n *Node) StakeSetRewardPerBlock(caller crypto.Address, reward *big.Int) error {
	return n.mutate(op{name: "setRewardPerBlock", caller: caller}, func(tx *txn) error {
		return tx.engine.SetRewardPerBlock(caller, reward)
	})
}

// StakeSetGate pauses or resumes the named gate.
func (n *Node) StakeSetGate(caller crypto.Address, gate string, paused bool) error {
	name := "unpause." + gate
	if paused {
		name = "pause." + gate
	}
	return n.mutate(op{name: name, caller: caller}, func(tx *txn) error {
		switch {
		case gate == stake.GateWithdraw && paused:
			return tx.engine.PauseWithdraw(caller)
		case gate == stake.GateWithdraw:
			return tx.engine.UnpauseWithdraw(caller)
		case gate == stake.GateClaim && paused:
			return tx.engine.PauseClaim(caller)
		case gate == stake.GateClaim:
			return tx.engine.UnpauseClaim(caller)
		default:
			return fmt.Errorf("%w: unknown gate %q", stake.ErrInvalidParams, gate)
		}
	})
}

func (n *Node) StakeFundRewards(caller crypto.Address, amount *big.Int) error {
	return n.mutate(op{name: "fundRewards", caller: caller}, func(tx *txn) error {
		return tx.engine.FundRewards(caller, amount)
	})
}

// --- Bank ---

// RegisterToken lets an admin register a fungible token.
func (n *Node) RegisterToken(caller crypto.Address, symbol, name string, decimals uint8) error {
	return n.mutate(op{name: "registerToken", caller: caller}, func(tx *txn) error {
		if !tx.manager.HasRole(nhbstate.RoleAdmin, caller.Bytes()) {
			return stake.ErrUnauthorized
		}
		return tx.manager.RegisterToken(symbol, name, decimals)
	})
}

// SetMintPaused lets an admin halt or resume minting of a registered token.
// Administrators may still mint while a token is paused.
func (n *Node) SetMintPaused(caller crypto.Address, symbol string, paused bool) error {
	return n.mutate(op{name: "setMintPaused", caller: caller}, func(tx *txn) error {
		if !tx.manager.HasRole(nhbstate.RoleAdmin, caller.Bytes()) {
			return stake.ErrUnauthorized
		}
		if !tx.manager.TokenExists(symbol) {
			return fmt.Errorf("%w: %s", bank.ErrUnknownToken, symbol)
		}
		return tx.manager.SetTokenMintPaused(symbol, paused)
	})
}

// Mint credits fresh supply. Only admins and a token's mint authority may
// mint; the native asset is admin-only.
func (n *Node) Mint(caller, to crypto.Address, symbol string, amount *big.Int) error {
	return n.mutate(op{name: "mint", caller: caller}, func(tx *txn) error {
		if !tx.manager.HasRole(nhbstate.RoleAdmin, caller.Bytes()) {
			meta, err := tx.manager.Token(symbol)
			if err != nil {
				return err
			}
			if meta == nil || len(meta.MintAuthority) == 0 || !bytes.Equal(meta.MintAuthority, caller.Bytes()) {
				return stake.ErrUnauthorized
			}
			if meta.MintPaused {
				return fmt.Errorf("%w: %s", ErrMintPaused, meta.Symbol)
			}
		}
		return tx.bank.Mint(to, symbol, amount)
	})
}

// Approve sets how much of symbol the staking module may pull from owner.
func (n *Node) Approve(owner crypto.Address, symbol string, amount *big.Int) error {
	return n.mutate(op{name: "approve", caller: owner}, func(tx *txn) error {
		return tx.bank.Approve(owner, n.module, symbol, amount)
	})
}

func (n *Node) Transfer(from, to crypto.Address, symbol string, amount *big.Int) error {
	return n.mutate(op{name: "transfer", caller: from}, func(tx *txn) error {
		if to.Equal(n.module) {
			return ErrModuleRecipient
		}
		return tx.bank.Transfer(from, to, symbol, amount)
	})
}

// --- Queries ---

func (n *Node) StakePoolCount() (uint64, error) {
	var count uint64
	err := n.view(func(tx *txn) error {
		var err error
		count, err = tx.engine.PoolCount()
		return err
	})
	return count, err
}

func (n *Node) StakePool(id uint64) (*stake.Pool, error) {
	var pool *stake.Pool
	err := n.view(func(tx *txn) error {
		var err error
		pool, err = tx.engine.Pool(id)
		return err
	})
	return pool, err
}

func (n *Node) StakeGlobal() (*stake.Global, error) {
	var global *stake.Global
	err := n.view(func(tx *txn) error {
		var err error
		global, err = tx.engine.Global()
		return err
	})
	return global, err
}

func (n *Node) StakePendingReward(id uint64, addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.engine.PendingReward(id, addr)
		return err
	})
	return out, err
}

func (n *Node) StakePendingRewardAt(id uint64, addr crypto.Address, block uint64) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.engine.PendingRewardAt(id, addr, block)
		return err
	})
	return out, err
}

func (n *Node) StakeBalance(id uint64, addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.engine.StakedBalance(id, addr)
		return err
	})
	return out, err
}

func (n *Node) StakeWithdrawAmount(id uint64, addr crypto.Address) (*stake.WithdrawSummary, error) {
	var out *stake.WithdrawSummary
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.engine.WithdrawAmount(id, addr)
		return err
	})
	return out, err
}

func (n *Node) StakeUnstakeRequests(id uint64, addr crypto.Address) ([]stake.UnstakeRequest, error) {
	var out []stake.UnstakeRequest
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.engine.UnstakeRequests(id, addr)
		return err
	})
	return out, err
}

func (n *Node) Balance(addr crypto.Address, symbol string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.bank.Balance(addr, symbol)
		return err
	})
	return out, err
}

// Allowance returns how much of symbol the staking module may pull from owner.
func (n *Node) Allowance(owner crypto.Address, symbol string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.bank.Allowance(owner, n.module, symbol)
		return err
	})
	return out, err
}

func (n *Node) Supply(symbol string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.bank.Supply(symbol)
		return err
	})
	return out, err
}

func (n *Node) Tokens() ([]*nhbstate.TokenMetadata, error) {
	var out []*nhbstate.TokenMetadata
	err := n.view(func(tx *txn) error {
		symbols, err := tx.manager.TokenList()
		if err != nil {
			return err
		}
		for _, symbol := range symbols {
			meta, err := tx.manager.Token(symbol)
			if err != nil {
				return err
			}
			if meta != nil {
				out = append(out, meta)
			}
		}
		return nil
	})
	return out, err
}

// EventSeq returns the sequence number of the last committed event.
func (n *Node) EventSeq() (uint64, error) {
	var seq uint64
	err := n.view(func(tx *txn) error {
		_, err := tx.manager.KVGet(eventSeqKey, &seq)
		return err
	})
	return seq, err
}
