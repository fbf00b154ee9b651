package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"metanode/core/events"
	nhbstate "metanode/core/state"
	"metanode/crypto"
	"metanode/native/stake"
)

var (
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrUnknownToken          = errors.New("bank: unknown token")
	ErrInvalidAmount         = errors.New("bank: amount must not be negative")
)

// Ledger is the balance and allowance storage the bank operates on.
// *state.Manager satisfies it.
type Ledger interface {
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	Allowance(owner, spender []byte, symbol string) (*big.Int, error)
	SetAllowance(owner, spender []byte, symbol string, amount *big.Int) error
	TokenExists(symbol string) bool
	TokenSupply(symbol string) (*big.Int, error)
	AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error)
}

// Bank moves native and fungible balances and hands out the asset gateways
// consumed by the staking engine.
type Bank struct {
	ledger      Ledger
	module      crypto.Address
	emitter     events.Emitter
	blockHeight uint64
}

// New constructs a bank whose gateways escrow funds at module.
func New(ledger Ledger, module crypto.Address) *Bank {
	return &Bank{ledger: ledger, module: module, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the sink receiving transfer events.
func (b *Bank) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	b.emitter = emitter
}

// SetBlockHeight records the height stamped on emitted events.
func (b *Bank) SetBlockHeight(height uint64) { b.blockHeight = height }

// Native returns the gateway for the native settlement asset.
func (b *Bank) Native() *Gateway {
	return &Gateway{bank: b, symbol: nhbstate.NativeSymbol, escrow: b.module}
}

// Token returns the allowance-based gateway for a registered token.
func (b *Bank) Token(symbol string) (*Gateway, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" || normalized == nhbstate.NativeSymbol || !b.ledger.TokenExists(normalized) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
	}
	return &Gateway{bank: b, symbol: normalized, escrow: b.module, pull: true}, nil
}

// Rewards returns the gateway paying symbol out of reserve. Funding pulls
// through the allowance granted to the module. The token does not have to be
// registered yet; transfers fail until it exists.
func (b *Bank) Rewards(symbol string, reserve crypto.Address) *Gateway {
	return &Gateway{bank: b, symbol: strings.ToUpper(strings.TrimSpace(symbol)), escrow: reserve, pull: true}
}

// Gateway resolves the gateway serving a pool's asset binding.
func (b *Bank) Gateway(asset stake.Asset) (stake.Gateway, error) {
	switch asset.Kind {
	case stake.AssetNative:
		return b.Native(), nil
	case stake.AssetFungible:
		return b.Token(asset.Token)
	default:
		return nil, fmt.Errorf("%w: asset kind %s", ErrUnknownToken, asset.Kind)
	}
}

// Balance returns addr's balance of symbol.
func (b *Bank) Balance(addr crypto.Address, symbol string) (*big.Int, error) {
	return b.ledger.Balance(addr.Bytes(), symbol)
}

// Supply returns the amount of symbol minted so far.
func (b *Bank) Supply(symbol string) (*big.Int, error) {
	return b.ledger.TokenSupply(symbol)
}

// Allowance returns how much of symbol spender may still pull from owner.
func (b *Bank) Allowance(owner, spender crypto.Address, symbol string) (*big.Int, error) {
	return b.ledger.Allowance(owner.Bytes(), spender.Bytes(), symbol)
}

// Approve replaces owner's allowance for spender.
func (b *Bank) Approve(owner, spender crypto.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, err := b.Token(symbol); err != nil {
		return err
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if err := b.ledger.SetAllowance(owner.Bytes(), spender.Bytes(), normalized, amount); err != nil {
		return err
	}
	b.emitter.Emit(events.BankApproval{
		Height:  b.blockHeight,
		Owner:   owner,
		Spender: spender,
		Token:   normalized,
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// Mint credits amount of symbol to the account out of thin air. It backs
// genesis allocations and operator faucets.
func (b *Bank) Mint(to crypto.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	current, err := b.ledger.Balance(to.Bytes(), symbol)
	if err != nil {
		return err
	}
	if err := b.ledger.SetBalance(to.Bytes(), symbol, new(big.Int).Add(current, amount)); err != nil {
		return err
	}
	if amount.Sign() > 0 {
		total, err := b.ledger.AdjustTokenSupply(symbol, amount)
		if err != nil {
			return err
		}
		b.emitter.Emit(events.TokenSupply{
			Height: b.blockHeight,
			Token:  symbol,
			To:     to,
			Delta:  new(big.Int).Set(amount),
			Total:  new(big.Int).Set(total),
			Reason: events.SupplyReasonMint,
		})
	}
	return nil
}

// Transfer moves amount of symbol between two accounts.
func (b *Bank) Transfer(from, to crypto.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if amount.Sign() == 0 || from.Equal(to) {
		return nil
	}
	fromBal, err := b.ledger.Balance(from.Bytes(), normalized)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s %s", ErrInsufficientBalance, fromBal, amount, normalized)
	}
	toBal, err := b.ledger.Balance(to.Bytes(), normalized)
	if err != nil {
		return err
	}
	if err := b.ledger.SetBalance(from.Bytes(), normalized, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := b.ledger.SetBalance(to.Bytes(), normalized, new(big.Int).Add(toBal, amount)); err != nil {
		return err
	}
	b.emitter.Emit(events.BankTransfer{
		Height: b.blockHeight,
		From:   from,
		To:     to,
		Asset:  normalized,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}
