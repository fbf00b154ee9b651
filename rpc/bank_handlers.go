package rpc

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"metanode/crypto"
)

type bankMintParams struct {
	To     string `json:"to"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type bankApproveParams struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type bankTransferParams struct {
	To     string `json:"to"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type bankQueryParams struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type bankSymbolParams struct {
	Symbol string `json:"symbol"`
}

func requireSymbol(symbol string) (string, error) {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" {
		return "", fmt.Errorf("symbol is required")
	}
	return trimmed, nil
}

func (s *Server) handleBankMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params bankMintParams
	if !decodeParams(w, req, &params) {
		return
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	symbol, err := requireSymbol(params.Symbol)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount, false)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.Mint(caller, to, symbol, amount); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.writeBalance(w, req, to, symbol)
}

func (s *Server) handleBankApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params bankApproveParams
	if !decodeParams(w, req, &params) {
		return
	}
	symbol, err := requireSymbol(params.Symbol)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount, true)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.Approve(caller, symbol, amount); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amount.String()})
}

func (s *Server) handleBankTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params bankTransferParams
	if !decodeParams(w, req, &params) {
		return
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	symbol, err := requireSymbol(params.Symbol)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount, false)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.Transfer(caller, to, symbol, amount); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.writeBalance(w, req, caller, symbol)
}

func (s *Server) decodeBankQuery(w http.ResponseWriter, req *RPCRequest) (crypto.Address, string, bool) {
	var params bankQueryParams
	if !decodeParams(w, req, &params) {
		return crypto.Address{}, "", false
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		invalidParam(w, req, err)
		return crypto.Address{}, "", false
	}
	symbol, err := requireSymbol(params.Symbol)
	if err != nil {
		invalidParam(w, req, err)
		return crypto.Address{}, "", false
	}
	return addr, symbol, true
}

func (s *Server) handleBankBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, symbol, ok := s.decodeBankQuery(w, req)
	if !ok {
		return
	}
	s.writeBalance(w, req, addr, symbol)
}

func (s *Server) writeBalance(w http.ResponseWriter, req *RPCRequest, addr crypto.Address, symbol string) {
	bal, err := s.node.Balance(addr, symbol)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amountString(bal)})
}

// handleBankAllowance reports what the staking module may still pull from the
// address.
func (s *Server) handleBankAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, symbol, ok := s.decodeBankQuery(w, req)
	if !ok {
		return
	}
	allowance, err := s.node.Allowance(addr, symbol)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amountString(allowance)})
}

func (s *Server) handleBankSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params bankSymbolParams
	if !decodeParams(w, req, &params) {
		return
	}
	symbol, err := requireSymbol(params.Symbol)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	supply, err := s.node.Supply(symbol)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amountString(supply)})
}

func (s *Server) handleBankTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	tokens, err := s.node.Tokens()
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	out := make([]tokenResult, 0, len(tokens))
	for _, meta := range tokens {
		out = append(out, tokenResultFrom(meta))
	}
	writeResult(w, req.ID, out)
}

// rewardReserve returns the reserve account's balance of the reward token.
func (s *Server) rewardReserve() (*big.Int, error) {
	global, err := s.node.StakeGlobal()
	if err != nil {
		return nil, err
	}
	return s.node.Balance(s.node.RewardReserveAddress(), global.RewardToken)
}
