package events

import (
	"math/big"

	"metanode/core/types"
	"metanode/crypto"
)

const (
	// TypeBankApproval is emitted when an owner sets a spender allowance.
	TypeBankApproval = "bank.approval"
	// TypeBankTransfer is emitted for every balance movement performed by a gateway.
	TypeBankTransfer = "bank.transfer"
)

// BankApproval captures an allowance update.
type BankApproval struct {
	Height  uint64
	Owner   crypto.Address
	Spender crypto.Address
	Token   string
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (BankApproval) EventType() string { return TypeBankApproval }

// Event converts the structured payload into a broadcastable event.
func (e BankApproval) Event() *types.Event {
	return &types.Event{Type: TypeBankApproval, Height: e.Height, Attributes: map[string]string{
		"owner":   e.Owner.String(),
		"spender": e.Spender.String(),
		"token":   normalizeAsset(e.Token),
		"amount":  formatAmount(e.Amount),
	}}
}

// BankTransfer captures a balance movement between two accounts.
type BankTransfer struct {
	Height uint64
	From   crypto.Address
	To     crypto.Address
	Asset  string
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (BankTransfer) EventType() string { return TypeBankTransfer }

// Event converts the structured payload into a broadcastable event.
func (e BankTransfer) Event() *types.Event {
	return &types.Event{Type: TypeBankTransfer, Height: e.Height, Attributes: map[string]string{
		"from":   e.From.String(),
		"to":     e.To.String(),
		"asset":  normalizeAsset(e.Asset),
		"amount": formatAmount(e.Amount),
	}}
}
