package bank

import (
	"fmt"
	"math/big"

	"metanode/crypto"
)

// Gateway moves one asset between accounts and a module-owned account.
// Token gateways pull deposits through the owner's allowance to the module;
// the native gateway debits the attached value directly.
type Gateway struct {
	bank   *Bank
	symbol string
	escrow crypto.Address
	pull   bool
}

// Symbol reports the ledger symbol the gateway settles in.
func (g *Gateway) Symbol() string { return g.symbol }

// CreditIn moves amount from the account into the gateway's escrow.
func (g *Gateway) CreditIn(from crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if g.pull {
		allowed, err := g.bank.ledger.Allowance(from.Bytes(), g.bank.module.Bytes(), g.symbol)
		if err != nil {
			return err
		}
		if allowed.Cmp(amount) < 0 {
			return fmt.Errorf("%w: approved %s, need %s %s", ErrInsufficientAllowance, allowed, amount, g.symbol)
		}
		if err := g.bank.Transfer(from, g.escrow, g.symbol, amount); err != nil {
			return err
		}
		return g.bank.ledger.SetAllowance(from.Bytes(), g.bank.module.Bytes(), g.symbol, new(big.Int).Sub(allowed, amount))
	}
	return g.bank.Transfer(from, g.escrow, g.symbol, amount)
}

// PayOut moves amount from the gateway's escrow to the account.
func (g *Gateway) PayOut(to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return g.bank.Transfer(g.escrow, to, g.symbol, amount)
}

// BalanceOf returns the account's balance in the gateway's asset.
func (g *Gateway) BalanceOf(account crypto.Address) (*big.Int, error) {
	return g.bank.ledger.Balance(account.Bytes(), g.symbol)
}
