package state

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	balanceNamespace   = []byte("balance")
	allowanceNamespace = []byte("allowance")

	errNegativeAmount = errors.New("state: negative amount")
)

func balanceKey(addr []byte, symbol string) []byte {
	return hashedKey(balanceNamespace, []byte(symbol), addr)
}

func allowanceKey(owner, spender []byte, symbol string) []byte {
	return hashedKey(allowanceNamespace, []byte(symbol), owner, spender)
}

// SetBalance stores the balance of addr in the native asset or a registered
// token.
func (m *Manager) SetBalance(addr []byte, symbol string, amount *big.Int) error {
	if len(addr) == 0 {
		return fmt.Errorf("balance: address must not be empty")
	}
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("%w: symbol must not be empty", ErrInvalidToken)
	}
	if sym != NativeSymbol && !m.TokenExists(sym) {
		return fmt.Errorf("%w: %s", errTokenMissing, sym)
	}
	return m.writeAmount(balanceKey(addr, sym), amount)
}

// Balance returns the balance of addr in symbol, zero when never written.
func (m *Manager) Balance(addr []byte, symbol string) (*big.Int, error) {
	return m.loadAmount(balanceKey(addr, normalizeSymbol(symbol)))
}

// SetAllowance records how much of symbol spender may pull from owner.
func (m *Manager) SetAllowance(owner, spender []byte, symbol string, amount *big.Int) error {
	if len(owner) == 0 || len(spender) == 0 {
		return fmt.Errorf("allowance: owner and spender required")
	}
	return m.writeAmount(allowanceKey(owner, spender, normalizeSymbol(symbol)), amount)
}

// Allowance returns the remaining amount spender may pull from owner.
func (m *Manager) Allowance(owner, spender []byte, symbol string) (*big.Int, error) {
	return m.loadAmount(allowanceKey(owner, spender, normalizeSymbol(symbol)))
}

func (m *Manager) writeAmount(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s", errNegativeAmount, amount)
	}
	return m.write(key, amount)
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := m.read(key, amount); err != nil {
		return nil, err
	}
	return amount, nil
}
