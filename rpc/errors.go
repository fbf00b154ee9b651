package rpc

import (
	"errors"
	"net/http"

	"metanode/core"
	nhbstate "metanode/core/state"
	"metanode/native/bank"
	"metanode/native/stake"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeRateLimited    = -32020
	codeModulePaused   = -32030
	codeInvalidPool    = -32040
	codeBelowMinimum   = -32041
	codeInsufficient   = -32042
	codeTransferFailed = -32043
	codeAlreadyInState = -32044
	codeRewardEnded    = -32045
	codeNotInitialised = -32046
	codeHistoryOff     = -32050
)

type errorMapping struct {
	target  error
	status  int
	code    int
	message string
}

// Order matters: wrapped sentinels are listed before their parents.
var nodeErrorMappings = []errorMapping{
	{stake.ErrUnauthorized, http.StatusForbidden, codeForbidden, "caller is not an administrator"},
	{stake.ErrWithdrawPaused, http.StatusServiceUnavailable, codeModulePaused, "withdraw is paused"},
	{stake.ErrClaimPaused, http.StatusServiceUnavailable, codeModulePaused, "claim is paused"},
	{stake.ErrGatePaused, http.StatusServiceUnavailable, codeModulePaused, "gate paused"},
	{stake.ErrAssetMismatch, http.StatusBadRequest, codeInvalidPool, "pool holds a different asset"},
	{stake.ErrInvalidPool, http.StatusBadRequest, codeInvalidPool, "invalid pool"},
	{stake.ErrBelowMinimumDeposit, http.StatusBadRequest, codeBelowMinimum, "deposit below pool minimum"},
	{stake.ErrInsufficientStake, http.StatusBadRequest, codeInsufficient, "insufficient staked balance"},
	{stake.ErrTransferFailed, http.StatusBadRequest, codeTransferFailed, "asset transfer failed"},
	{bank.ErrInsufficientBalance, http.StatusBadRequest, codeTransferFailed, "insufficient balance"},
	{bank.ErrInsufficientAllowance, http.StatusBadRequest, codeTransferFailed, "insufficient allowance"},
	{bank.ErrUnknownToken, http.StatusBadRequest, codeInvalidParams, "unknown token"},
	{nhbstate.ErrInvalidToken, http.StatusBadRequest, codeInvalidParams, "invalid token"},
	{bank.ErrInvalidAmount, http.StatusBadRequest, codeInvalidParams, "invalid amount"},
	{core.ErrModuleRecipient, http.StatusBadRequest, codeInvalidParams, "module account is not a valid recipient"},
	{core.ErrMintPaused, http.StatusServiceUnavailable, codeModulePaused, "minting paused"},
	{stake.ErrAlreadyInState, http.StatusConflict, codeAlreadyInState, "gate already in requested state"},
	{stake.ErrRewardEnded, http.StatusBadRequest, codeRewardEnded, "reward window already ended"},
	{stake.ErrNotInitialised, http.StatusServiceUnavailable, codeNotInitialised, "staking not initialised"},
	{stake.ErrInvalidAmount, http.StatusBadRequest, codeInvalidParams, "amount must be positive"},
	{stake.ErrInvalidParams, http.StatusBadRequest, codeInvalidParams, "invalid parameters"},
}

// writeNodeError translates a node failure into a JSON-RPC error. Unknown
// failures are reported as server errors.
func (s *Server) writeNodeError(w http.ResponseWriter, id interface{}, err error) {
	for _, m := range nodeErrorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, id, m.code, m.message, err.Error())
			return
		}
	}
	s.logger.Error("rpc call failed", "error", err)
	writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
}
