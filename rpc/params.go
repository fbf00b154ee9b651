package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"metanode/core/genesis"
	"metanode/crypto"
	"metanode/native/stake"
)

// decodeParams unmarshals the single parameter object of req into dst and
// rejects unknown fields.
func decodeParams(w http.ResponseWriter, req *RPCRequest, dst interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func invalidParam(w http.ResponseWriter, req *RPCRequest, err error) {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
}

// parseAmount parses a base-10 amount bounded to 256 bits.
func parseAmount(field, amount string, allowZero bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s", field)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	if !allowZero && value.Sign() == 0 {
		return nil, fmt.Errorf("%s must be positive", field)
	}
	if _, overflow := uint256.FromBig(value); overflow {
		return nil, fmt.Errorf("%s exceeds 256 bits", field)
	}
	return value, nil
}

// optionalAmount treats an empty value as zero.
func optionalAmount(field, amount string) (*big.Int, error) {
	if strings.TrimSpace(amount) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, amount, true)
}

func parseAddress(field, value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("%s is required", field)
	}
	addr, err := genesis.ParseBech32Account(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid %s: %v", field, err)
	}
	return addr, nil
}

func requirePool(pool *uint64) (uint64, error) {
	if pool == nil {
		return 0, fmt.Errorf("pool is required")
	}
	return *pool, nil
}

func parseAsset(value string) (stake.Asset, error) {
	trimmed := strings.TrimSpace(value)
	switch {
	case trimmed == "":
		return stake.Asset{}, fmt.Errorf("asset is required")
	case strings.EqualFold(trimmed, "native"):
		return stake.NativeAsset(), nil
	default:
		return stake.FungibleAsset(trimmed), nil
	}
}

func parseGate(value string) (string, error) {
	gate := strings.ToLower(strings.TrimSpace(value))
	switch gate {
	case stake.GateWithdraw, stake.GateClaim:
		return gate, nil
	default:
		return "", fmt.Errorf("gate must be %q or %q", stake.GateWithdraw, stake.GateClaim)
	}
}
