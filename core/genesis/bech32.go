package genesis

import (
	"fmt"

	"metanode/crypto"
)

// ParseBech32Account decodes an account address carrying the ledger prefix.
func ParseBech32Account(addr string) (crypto.Address, error) {
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("decode bech32 account: %w", err)
	}
	if decoded.Prefix() != crypto.MNDPrefix {
		return crypto.Address{}, fmt.Errorf("decode bech32 account: unsupported hrp %q", decoded.Prefix())
	}
	return decoded, nil
}
