package rpc

import (
	"math/big"
	"net/http"

	"metanode/crypto"
)

type stakeAmountParams struct {
	Pool   *uint64 `json:"pool"`
	Amount string  `json:"amount"`
}

type stakePoolParams struct {
	Pool *uint64 `json:"pool"`
}

type stakeAccountParams struct {
	Pool    *uint64 `json:"pool"`
	Address string  `json:"address"`
	// Block optionally simulates the pending reward at a later block.
	Block *uint64 `json:"block,omitempty"`
}

func (s *Server) decodeStakeAmount(w http.ResponseWriter, req *RPCRequest) (uint64, stakeAmountParams, bool) {
	var params stakeAmountParams
	if !decodeParams(w, req, &params) {
		return 0, params, false
	}
	id, err := requirePool(params.Pool)
	if err != nil {
		invalidParam(w, req, err)
		return 0, params, false
	}
	return id, params, true
}

func (s *Server) handleStakeDepositNative(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	id, params, ok := s.decodeStakeAmount(w, req)
	if !ok {
		return
	}
	// Zero is left to the engine so it reports the minimum deposit error.
	amount, err := parseAmount("amount", params.Amount, true)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeDepositNative(caller, id, amount); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleStakeDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	id, params, ok := s.decodeStakeAmount(w, req)
	if !ok {
		return
	}
	amount, err := parseAmount("amount", params.Amount, true)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeDeposit(caller, id, amount); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleStakeUnstake(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	id, params, ok := s.decodeStakeAmount(w, req)
	if !ok {
		return
	}
	amount, err := parseAmount("amount", params.Amount, false)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeUnstake(caller, id, amount); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleStakeWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params stakePoolParams
	if !decodeParams(w, req, &params) {
		return
	}
	id, err := requirePool(params.Pool)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	amount, err := s.node.StakeWithdraw(caller, id)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amountString(amount)})
}

func (s *Server) handleStakeClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest, caller crypto.Address) {
	var params stakePoolParams
	if !decodeParams(w, req, &params) {
		return
	}
	id, err := requirePool(params.Pool)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	paid, err := s.node.StakeClaim(caller, id)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amountString(paid)})
}

func (s *Server) handleStakeUpdatePool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakePoolParams
	if !decodeParams(w, req, &params) {
		return
	}
	id, err := requirePool(params.Pool)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	if err := s.node.StakeUpdatePool(id); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	s.writePool(w, req, id)
}

func (s *Server) handleStakeMassUpdatePools(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := s.node.StakeMassUpdatePools(); err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleStakePoolCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.node.StakePoolCount()
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"count": count})
}

func (s *Server) handleStakeGetPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakePoolParams
	if !decodeParams(w, req, &params) {
		return
	}
	id, err := requirePool(params.Pool)
	if err != nil {
		invalidParam(w, req, err)
		return
	}
	s.writePool(w, req, id)
}

func (s *Server) writePool(w http.ResponseWriter, req *RPCRequest, id uint64) {
	pool, err := s.node.StakePool(id)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, poolResultFrom(id, pool))
}

func (s *Server) handleStakeGetGlobal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	global, err := s.node.StakeGlobal()
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, globalResultFrom(global))
}

func (s *Server) decodeStakeAccount(w http.ResponseWriter, req *RPCRequest) (uint64, crypto.Address, *uint64, bool) {
	var params stakeAccountParams
	if !decodeParams(w, req, &params) {
		return 0, crypto.Address{}, nil, false
	}
	id, err := requirePool(params.Pool)
	if err != nil {
		invalidParam(w, req, err)
		return 0, crypto.Address{}, nil, false
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		invalidParam(w, req, err)
		return 0, crypto.Address{}, nil, false
	}
	return id, addr, params.Block, true
}

func (s *Server) handleStakePendingReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, addr, block, ok := s.decodeStakeAccount(w, req)
	if !ok {
		return
	}
	var (
		pending *big.Int
		err     error
	)
	if block != nil {
		pending, err = s.node.StakePendingRewardAt(id, addr, *block)
	} else {
		pending, err = s.node.StakePendingReward(id, addr)
	}
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amountString(pending)})
}

func (s *Server) handleStakeBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, addr, _, ok := s.decodeStakeAccount(w, req)
	if !ok {
		return
	}
	staked, err := s.node.StakeBalance(id, addr)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: amountString(staked)})
}

func (s *Server) handleStakeWithdrawAmount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, addr, _, ok := s.decodeStakeAccount(w, req)
	if !ok {
		return
	}
	summary, err := s.node.StakeWithdrawAmount(id, addr)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawAmountResult{
		Locked:       amountString(summary.Locked),
		Withdrawable: amountString(summary.Withdrawable),
	})
}

func (s *Server) handleStakeUnstakeRequests(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, addr, _, ok := s.decodeStakeAccount(w, req)
	if !ok {
		return
	}
	requests, err := s.node.StakeUnstakeRequests(id, addr)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	out := make([]unstakeRequestResult, 0, len(requests))
	for _, r := range requests {
		out = append(out, unstakeRequestResult{Amount: amountString(r.Amount), UnlockBlock: r.UnlockBlock})
	}
	writeResult(w, req.ID, out)
}
