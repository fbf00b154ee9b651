package state

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	supplyNamespace = []byte("supply")

	ErrSupplyUnderflow = errors.New("state: supply underflow")
)

func supplyKey(symbol string) []byte {
	return hashedKey(supplyNamespace, []byte(normalizeSymbol(symbol)))
}

// TokenSupply returns the minted total of symbol, zero when nothing was
// minted yet.
func (m *Manager) TokenSupply(symbol string) (*big.Int, error) {
	if normalizeSymbol(symbol) == "" {
		return nil, fmt.Errorf("token symbol required")
	}
	return m.loadAmount(supplyKey(symbol))
}

// AdjustTokenSupply applies delta to the minted total of symbol.
func (m *Manager) AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error) {
	total, err := m.TokenSupply(symbol)
	if err != nil {
		return nil, err
	}
	if delta != nil {
		total.Add(total, delta)
	}
	if total.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSupplyUnderflow, normalizeSymbol(symbol))
	}
	return total, m.write(supplyKey(symbol), total)
}
