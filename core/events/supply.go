package events

import (
	"math/big"
	"strings"

	"metanode/core/types"
	"metanode/crypto"
)

const (
	// TypeTokenSupply is emitted whenever minting grows an asset's supply.
	TypeTokenSupply = "token.supply"

	SupplyReasonMint = "mint"
)

// TokenSupply records newly minted units of an asset together with the
// resulting total.
type TokenSupply struct {
	Height uint64
	Token  string
	To     crypto.Address
	Delta  *big.Int
	Total  *big.Int
	Reason string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

func (e TokenSupply) Event() *types.Event {
	token := normalizeAsset(e.Token)
	if token == "" {
		token = "UNKNOWN"
	}
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = SupplyReasonMint
	}
	attrs := map[string]string{
		"token":  token,
		"delta":  formatAmount(e.Delta),
		"reason": reason,
	}
	if e.Total != nil {
		attrs["total"] = e.Total.String()
	}
	if !e.To.IsZero() {
		attrs["to"] = e.To.String()
	}
	return &types.Event{Type: TypeTokenSupply, Height: e.Height, Attributes: attrs}
}
