package rpc

import (
	"fmt"
	"net/http"
	"strings"

	"metanode/crypto"
)

type adminAddPoolParams struct {
	Asset      string `json:"asset"`
	Weight     uint64 `json:"weight"`
	MinDeposit string `json:"minDeposit"`
	LockBlocks uint64 `json:"lockBlocks"`
	WithUpdate bool   `json:"withUpdate"`
}

type adminPoolWeightParams struct {
	Pool       *uint64 `json:"pool"`
	Weight     uint64  `json:"weight"`
	WithUpdate bool    `json:"withUpdate"`
}

type adminPoolParams struct {
	Pool       *uint64 `json:"pool"`
	MinDeposit string  `json:"minDeposit"`
	LockBlocks uint64  `json:"lockBlocks"`
}

type adminBlockParams struct {
	Block *uint64 `json:"block"`
}

type adminAmountParams struct {
	Amount string `json:"amount"`
}

type adminGateParams struct {
	Gate string `json:"gate"`
}

type adminGrantParams struct {
	Address string `json:"address"`
}

type adminMintPauseParams struct {
	Symbol string `json:"symbol"`
	Paused bool   `json:"paused"`
}

type adminTokenParams struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

func (s *Server) handleAdminAddPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params adminAddPoolParams
	if !decodeParams(w, req, &params) {
		return
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	minDeposit, err := optionalAmount("minDeposit", params.MinDeposit)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	id, err := s.node.StakeAddPool(caller, asset, params.Weight, minDeposit, params.LockBlocks, params.WithUpdate)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, poolIDResult{Pool: id})
}

func (s *Server) handleAdminSetPoolWeight(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params adminPoolWeightParams
	if !decodeParams(w, req, &params) {
		return
	}
	id, err := requirePool(params.Pool)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeSetPoolWeight(caller, id, params.Weight, params.WithUpdate); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.writePool(w, req, id)
}

func (s *Server) handleAdminSetPoolParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params adminPoolParams
	if !decodeParams(w, req, &params) {
		return
	}
	id, err := requirePool(params.Pool)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	minDeposit, err := optionalAmount("minDeposit", params.MinDeposit)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeSetPoolParams(caller, id, minDeposit, params.LockBlocks); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.writePool(w, req, id)
}

func (s *Server) decodeBlock(w http.ResponseWriter, req *RPCRequest) (uint64, bool) {
	var params adminBlockParams
	if !decodeParams(w, req, &params) {
		return 0, false
	}
	if params.Block == nil {
		invalidParam(w, req, fmt.Errorf("block is required"))
		return 0, false
	}
	return *params.Block, true
}

func (s *Server) handleAdminSetStartBlock(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller crypto.Address) {
	block, ok := s.decodeBlock(w, req)
	if !ok {
		return
	}
	if err := s.node.StakeSetStartBlock(caller, block); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.handleStakeGetGlobal(w, r, req)
}

func (s *Server) handleAdminSetEndBlock(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller crypto.Address) {
	block, ok := s.decodeBlock(w, req)
	if !ok {
		return
	}
	if err := s.node.StakeSetEndBlock(caller, block); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.handleStakeGetGlobal(w, r, req)
}

func (s *Server) handleAdminSetRewardPerBlock(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller crypto.Address) {
	var params adminAmountParams
	if !decodeParams(w, req, &params) {
		return
	}
	reward, err := parseAmount("amount", params.Amount, false)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeSetRewardPerBlock(caller, reward); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.handleStakeGetGlobal(w, r, req)
}

func (s *Server) handleAdminPause(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller crypto.Address) {
	s.setGate(w, r, req, caller, true)
}

func (s *Server) handleAdminUnpause(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller crypto.Address) {
	s.setGate(w, r, req, caller, false)
}

func (s *Server) setGate(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller crypto.Address, paused bool) {
	var params adminGateParams
	if !decodeParams(w, req, &params) {
		return
	}
	gate, err := parseGate(params.Gate)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeSetGate(caller, gate, paused); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.handleStakeGetGlobal(w, r, req)
}

func (s *Server) handleAdminFundRewards(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params adminAmountParams
	if !decodeParams(w, req, &params) {
		return
	}
	amount, err := parseAmount("amount", params.Amount, false)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeFundRewards(caller, amount); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	reserve, err := s.rewardReserve()
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amountString(reserve)})
}

func (s *Server) handleAdminGrant(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params adminGrantParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.GrantAdmin(caller, addr); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminRegisterToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params adminTokenParams
	if !decodeParams(w, req, &params) {
		return
	}
	if strings.TrimSpace(params.Symbol) == "" || strings.TrimSpace(params.Name) == "" {
		invalidParam(w, req, fmt.Errorf("symbol and name are required"))
		return
	}
	if err := s.node.RegisterToken(caller, params.Symbol, params.Name, params.Decimals); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminSetMintPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params adminMintPauseParams
	if !decodeParams(w, req, &params) {
		return
	}
	if strings.TrimSpace(params.Symbol) == "" {
		invalidParam(w, req, fmt.Errorf("symbol is required"))
		return
	}
	if err := s.node.SetMintPaused(caller, params.Symbol, params.Paused); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}
