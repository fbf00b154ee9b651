// core/genesis/loader.go
package genesis

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"metanode/core/state"
	"metanode/crypto"
	"metanode/native/bank"
	"metanode/native/stake"
)

// Apply writes the genesis state through manager. engine must already be
// wired to manager, the bank's gateways and an admin view reading the
// manager's admin role.
func Apply(spec *GenesisSpec, manager *state.Manager, b *bank.Bank, engine *stake.Engine) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil || b == nil || engine == nil {
		return fmt.Errorf("genesis: state, bank and engine required")
	}

	// 1) Tokens (sorted)
	tokens := append([]TokenSpec(nil), spec.Tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		return strings.ToUpper(tokens[i].Symbol) < strings.ToUpper(tokens[j].Symbol)
	})
	for i := range tokens {
		token := &tokens[i]
		if err := manager.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			return fmt.Errorf("register token %q: %w", token.Symbol, err)
		}
		if strings.TrimSpace(token.MintAuthority) != "" {
			addr, err := ParseBech32Account(token.MintAuthority)
			if err != nil {
				return fmt.Errorf("token %q mintAuthority: %w", token.Symbol, err)
			}
			if err := manager.SetTokenMintAuthority(token.Symbol, addr.Bytes()); err != nil {
				return fmt.Errorf("token %q: %w", token.Symbol, err)
			}
		}
		if token.MintPaused {
			if err := manager.SetTokenMintPaused(token.Symbol, true); err != nil {
				return fmt.Errorf("token %q: %w", token.Symbol, err)
			}
		}
	}

	// 2) Allocations (outer: addresses sorted; inner: symbols sorted)
	allocAddresses := make([]string, 0, len(spec.Alloc))
	for addr := range spec.Alloc {
		allocAddresses = append(allocAddresses, addr)
	}
	sort.Strings(allocAddresses)
	for _, addrStr := range allocAddresses {
		addr, err := ParseBech32Account(addrStr)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		balances := spec.Alloc[addrStr]
		symbols := make([]string, 0, len(balances))
		for symbol := range balances {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			amount, err := parseAmountString(balances[symbol])
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
			if err := b.Mint(addr, symbol, amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, symbol, err)
			}
		}
	}

	// 3) Admin role (sorted)
	admins := append([]string(nil), spec.Admins...)
	sort.Strings(admins)
	var firstAdmin crypto.Address
	for i, addrStr := range admins {
		addr, err := ParseBech32Account(addrStr)
		if err != nil {
			return fmt.Errorf("admins[%q]: %w", addrStr, err)
		}
		if err := manager.SetRole(state.RoleAdmin, addr.Bytes()); err != nil {
			return fmt.Errorf("admins[%q]: %w", addrStr, err)
		}
		if i == 0 {
			firstAdmin = addr
		}
	}

	// 4) Staking schedule, reward reserve and pools (declaration order)
	if err := engine.Initialize(spec.Stake.Global()); err != nil {
		return fmt.Errorf("stake: %w", err)
	}
	reserve, err := parseAmountString(spec.Stake.RewardReserve)
	if err != nil {
		return fmt.Errorf("stake rewardReserve: %w", err)
	}
	if reserve.Sign() > 0 {
		if err := b.Mint(engine.RewardReserve(), spec.Stake.RewardToken, reserve); err != nil {
			return fmt.Errorf("stake rewardReserve: %w", err)
		}
	}
	for i := range spec.Pools {
		pool := &spec.Pools[i]
		if err := pool.validate(tokenSet(spec.Tokens)); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if _, err := engine.AddPool(firstAdmin, pool.asset, pool.Weight, new(big.Int).Set(pool.minDeposit), pool.LockBlocks, false); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
	}
	return nil
}

func tokenSet(tokens []TokenSpec) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[strings.ToUpper(strings.TrimSpace(token.Symbol))] = struct{}{}
	}
	return set
}
