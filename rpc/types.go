package rpc

import (
	"math/big"
	"time"

	nhbstate "metanode/core/state"
	"metanode/crypto"
	"metanode/native/stake"
	"metanode/storage/history"
)

type statusResult struct {
	Height        uint64 `json:"height"`
	EventSeq      uint64 `json:"eventSeq"`
	Initialized   bool   `json:"initialized"`
	ModuleAddress string `json:"moduleAddress"`
	RewardReserve string `json:"rewardReserve"`
	History       bool   `json:"history"`
}

type poolResult struct {
	ID                uint64 `json:"id"`
	Asset             string `json:"asset"`
	Kind              string `json:"kind"`
	Weight            uint64 `json:"weight"`
	MinDeposit        string `json:"minDeposit"`
	LockBlocks        uint64 `json:"lockBlocks"`
	TotalStaked       string `json:"totalStaked"`
	AccRewardPerShare string `json:"accRewardPerShare"`
	LastRewardBlock   uint64 `json:"lastRewardBlock"`
}

func poolResultFrom(id uint64, pool *stake.Pool) poolResult {
	return poolResult{
		ID:                id,
		Asset:             pool.Asset.String(),
		Kind:              pool.Asset.Kind.String(),
		Weight:            pool.Weight,
		MinDeposit:        amountString(pool.MinDeposit),
		LockBlocks:        pool.LockBlocks,
		TotalStaked:       amountString(pool.TotalStaked),
		AccRewardPerShare: amountString(pool.AccRewardPerShare),
		LastRewardBlock:   pool.LastRewardBlock,
	}
}

type globalResult struct {
	StartBlock     uint64 `json:"startBlock"`
	EndBlock       uint64 `json:"endBlock"`
	RewardPerBlock string `json:"rewardPerBlock"`
	TotalWeight    uint64 `json:"totalWeight"`
	RewardToken    string `json:"rewardToken"`
	WithdrawPaused bool   `json:"withdrawPaused"`
	ClaimPaused    bool   `json:"claimPaused"`
}

func globalResultFrom(g *stake.Global) globalResult {
	return globalResult{
		StartBlock:     g.StartBlock,
		EndBlock:       g.EndBlock,
		RewardPerBlock: amountString(g.RewardPerBlock),
		TotalWeight:    g.TotalWeight,
		RewardToken:    g.RewardToken,
		WithdrawPaused: g.WithdrawPaused,
		ClaimPaused:    g.ClaimPaused,
	}
}

type amountResult struct {
	Amount string `json:"amount"`
}

type poolIDResult struct {
	Pool uint64 `json:"pool"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type withdrawAmountResult struct {
	Locked       string `json:"locked"`
	Withdrawable string `json:"withdrawable"`
}

type unstakeRequestResult struct {
	Amount      string `json:"amount"`
	UnlockBlock uint64 `json:"unlockBlock"`
}

type tokenResult struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Decimals      uint8  `json:"decimals"`
	MintAuthority string `json:"mintAuthority,omitempty"`
	MintPaused    bool   `json:"mintPaused"`
}

func tokenResultFrom(meta *nhbstate.TokenMetadata) tokenResult {
	out := tokenResult{
		Symbol:     meta.Symbol,
		Name:       meta.Name,
		Decimals:   meta.Decimals,
		MintPaused: meta.MintPaused,
	}
	if len(meta.MintAuthority) == 20 {
		out.MintAuthority = crypto.NewAddress(crypto.MNDPrefix, meta.MintAuthority).String()
	}
	return out
}

type historyRecordResult struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	Pool       *uint64           `json:"pool,omitempty"`
	Account    string            `json:"account,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func historyRecordFrom(r history.Record) (historyRecordResult, error) {
	attrs, err := r.Decode()
	if err != nil {
		return historyRecordResult{}, err
	}
	return historyRecordResult{
		ID:         r.ID.String(),
		Seq:        r.Seq,
		Height:     r.Height,
		Type:       r.Type,
		Pool:       r.Pool,
		Account:    r.Account,
		Attributes: attrs,
		CreatedAt:  r.CreatedAt,
	}, nil
}

type exportResult struct {
	Format   string `json:"format"`
	Records  int    `json:"records"`
	Checksum string `json:"checksum"`
	Data     string `json:"data"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
