package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NativeSymbol is the balance ledger symbol of the native settlement asset.
const NativeSymbol = "MND"

// ErrInvalidToken reports a rejected token registration.
var ErrInvalidToken = errors.New("state: invalid token")

var (
	tokenNamespace  = []byte("token")
	tokenIndexKey   = hashedKey([]byte("token"), []byte("index"))
	errTokenMissing = errors.New("state: token not registered")
)

// TokenMetadata describes a registered fungible token.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
	// MintAuthority may mint besides the administrators. Empty means admins only.
	MintAuthority []byte
	MintPaused    bool
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func tokenKey(symbol string) []byte {
	return hashedKey(tokenNamespace, []byte(symbol))
}

// RegisterToken stores the metadata of a new fungible token and adds it to
// the sorted token index.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	sym := normalizeSymbol(symbol)
	switch {
	case sym == "":
		return fmt.Errorf("%w: symbol must not be empty", ErrInvalidToken)
	case sym == NativeSymbol:
		return fmt.Errorf("%w: %s is reserved for the native asset", ErrInvalidToken, sym)
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: %s name must not be empty", ErrInvalidToken, sym)
	}
	exists, err := m.read(tokenKey(sym), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s already registered", ErrInvalidToken, sym)
	}
	index, err := m.TokenList()
	if err != nil {
		return err
	}
	index = append(index, sym)
	sort.Strings(index)
	if err := m.write(tokenIndexKey, index); err != nil {
		return err
	}
	return m.write(tokenKey(sym), &TokenMetadata{Symbol: sym, Name: strings.TrimSpace(name), Decimals: decimals})
}

// updateToken applies fn to the stored metadata of symbol.
func (m *Manager) updateToken(symbol string, fn func(*TokenMetadata)) error {
	sym := normalizeSymbol(symbol)
	meta, err := m.Token(sym)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%w: %s", errTokenMissing, sym)
	}
	fn(meta)
	return m.write(tokenKey(sym), meta)
}

// SetTokenMintAuthority records the account allowed to mint symbol.
func (m *Manager) SetTokenMintAuthority(symbol string, authority []byte) error {
	return m.updateToken(symbol, func(meta *TokenMetadata) {
		meta.MintAuthority = append([]byte(nil), authority...)
	})
}

// SetTokenMintPaused halts or resumes minting of symbol.
func (m *Manager) SetTokenMintPaused(symbol string, paused bool) error {
	return m.updateToken(symbol, func(meta *TokenMetadata) {
		meta.MintPaused = paused
	})
}

// Token returns the metadata of symbol, nil when it is not registered.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	meta := new(TokenMetadata)
	ok, err := m.read(tokenKey(normalizeSymbol(symbol)), meta)
	if err != nil || !ok {
		return nil, err
	}
	return meta, nil
}

// TokenList returns every registered symbol in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	var index []string
	if _, err := m.read(tokenIndexKey, &index); err != nil {
		return nil, err
	}
	if index == nil {
		index = []string{}
	}
	return index, nil
}

// TokenExists reports whether symbol is registered. Read errors report false.
func (m *Manager) TokenExists(symbol string) bool {
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return false
	}
	ok, err := m.read(tokenKey(sym), nil)
	return err == nil && ok
}
