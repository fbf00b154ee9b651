// core/genesis/spec.go
package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	nhbstate "metanode/core/state"
	"metanode/native/stake"
)

type GenesisSpec struct {
	Admins []string                     `yaml:"admins"`
	Tokens []TokenSpec                  `yaml:"tokens"`
	Alloc  map[string]map[string]string `yaml:"alloc"` // addr -> symbol -> amount
	Stake  StakeSpec                    `yaml:"stake"`
	Pools  []PoolSpec                   `yaml:"pools"`
}

type TokenSpec struct {
	Symbol        string `yaml:"symbol"`
	Name          string `yaml:"name"`
	Decimals      uint8  `yaml:"decimals"`
	MintAuthority string `yaml:"mintAuthority,omitempty"`
	MintPaused    bool   `yaml:"mintPaused,omitempty"`
}

type StakeSpec struct {
	StartBlock     uint64 `yaml:"startBlock"`
	EndBlock       uint64 `yaml:"endBlock"`
	RewardPerBlock string `yaml:"rewardPerBlock"`
	RewardToken    string `yaml:"rewardToken"`
	// RewardReserve is minted straight into the reward reserve account.
	RewardReserve string `yaml:"rewardReserve,omitempty"`

	rewardPerBlock *big.Int
	rewardReserve  *big.Int
}

type PoolSpec struct {
	// Asset is "native" or a registered token symbol.
	Asset      string `yaml:"asset"`
	Weight     uint64 `yaml:"weight"`
	MinDeposit string `yaml:"minDeposit"`
	LockBlocks uint64 `yaml:"lockBlocks"`

	asset      stake.Asset
	minDeposit *big.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a YAML genesis document.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *GenesisSpec) validate() error {
	if len(s.Admins) == 0 {
		return fmt.Errorf("at least one admin must be provided")
	}
	for i, admin := range s.Admins {
		if _, err := ParseBech32Account(admin); err != nil {
			return fmt.Errorf("admins[%d]: %w", i, err)
		}
	}

	tokenSymbols := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		token := &s.Tokens[i]
		key := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if key == "" {
			return fmt.Errorf("tokens[%d]: symbol must be provided", i)
		}
		if key == nhbstate.NativeSymbol {
			return fmt.Errorf("tokens[%d]: symbol %s is reserved for the native asset", i, key)
		}
		if strings.TrimSpace(token.Name) == "" {
			return fmt.Errorf("tokens[%d]: name must be provided", i)
		}
		if token.MintAuthority != "" {
			if _, err := ParseBech32Account(token.MintAuthority); err != nil {
				return fmt.Errorf("tokens[%d] mintAuthority: %w", i, err)
			}
		}
		if _, exists := tokenSymbols[key]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, token.Symbol)
		}
		tokenSymbols[key] = struct{}{}
	}

	for addr, balances := range s.Alloc {
		if _, err := ParseBech32Account(addr); err != nil {
			return fmt.Errorf("alloc[%q]: %w", addr, err)
		}
		for symbol, amount := range balances {
			normalized := strings.ToUpper(strings.TrimSpace(symbol))
			if _, ok := tokenSymbols[normalized]; !ok && normalized != nhbstate.NativeSymbol {
				return fmt.Errorf("alloc[%q]: unknown symbol %q", addr, symbol)
			}
			if _, err := parseAmountString(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addr, symbol, err)
			}
		}
	}

	if err := s.Stake.validate(tokenSymbols); err != nil {
		return fmt.Errorf("stake: %w", err)
	}
	for i := range s.Pools {
		if err := s.Pools[i].validate(tokenSymbols); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
	}
	return nil
}

func (s *StakeSpec) validate(tokenSymbols map[string]struct{}) error {
	if s.StartBlock > s.EndBlock {
		return fmt.Errorf("startBlock %d after endBlock %d", s.StartBlock, s.EndBlock)
	}
	rate, err := parseAmountString(s.RewardPerBlock)
	if err != nil {
		return fmt.Errorf("rewardPerBlock: %w", err)
	}
	if rate.Sign() <= 0 {
		return fmt.Errorf("rewardPerBlock must be positive")
	}
	s.RewardToken = strings.ToUpper(strings.TrimSpace(s.RewardToken))
	if _, ok := tokenSymbols[s.RewardToken]; !ok {
		return fmt.Errorf("rewardToken %q not registered", s.RewardToken)
	}
	reserve, err := parseAmountString(s.RewardReserve)
	if err != nil {
		return fmt.Errorf("rewardReserve: %w", err)
	}
	s.rewardPerBlock = rate
	s.rewardReserve = reserve
	return nil
}

func (p *PoolSpec) validate(tokenSymbols map[string]struct{}) error {
	asset := strings.TrimSpace(p.Asset)
	switch {
	case strings.EqualFold(asset, "native"):
		p.asset = stake.NativeAsset()
	case asset == "":
		return fmt.Errorf("asset must be provided")
	default:
		p.asset = stake.FungibleAsset(asset)
		if _, ok := tokenSymbols[p.asset.Token]; !ok {
			return fmt.Errorf("asset %q not registered", p.Asset)
		}
	}
	if p.LockBlocks == 0 {
		return fmt.Errorf("lockBlocks must be positive")
	}
	minDeposit, err := parseAmountString(p.MinDeposit)
	if err != nil {
		return fmt.Errorf("minDeposit: %w", err)
	}
	p.minDeposit = minDeposit
	return nil
}

// Global returns the staking configuration the spec describes.
func (s *StakeSpec) Global() *stake.Global {
	rate := s.rewardPerBlock
	if rate == nil {
		rate, _ = parseAmountString(s.RewardPerBlock)
	}
	return &stake.Global{
		StartBlock:     s.StartBlock,
		EndBlock:       s.EndBlock,
		RewardPerBlock: new(big.Int).Set(rate),
		RewardToken:    s.RewardToken,
	}
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
