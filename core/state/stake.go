package state

import (
	"encoding/hex"
	"fmt"

	"metanode/crypto"
	"metanode/native/stake"
)

var (
	stakeGlobalKeyBytes    = []byte("stake/global")
	stakePoolCountKeyBytes = []byte("stake/pools/count")
	stakePoolKeyFormat     = "stake/pool/%d"
	stakeUserKeyFormat     = "stake/user/%d/%s"
)

// StakeGlobalKey is the key of the shared staking configuration.
func StakeGlobalKey() []byte { return append([]byte(nil), stakeGlobalKeyBytes...) }

// StakePoolCountKey is the key of the pool registry length.
func StakePoolCountKey() []byte { return append([]byte(nil), stakePoolCountKeyBytes...) }

// StakePoolKey is the key of the pool stored at index id.
func StakePoolKey(id uint64) []byte { return []byte(fmt.Sprintf(stakePoolKeyFormat, id)) }

// StakeUserKey is the key of the ledger entry for addr in pool id.
func StakeUserKey(id uint64, addr []byte) []byte {
	return []byte(fmt.Sprintf(stakeUserKeyFormat, id, hex.EncodeToString(addr)))
}

// StakeGlobal loads the shared configuration. A missing record returns nil.
func (m *Manager) StakeGlobal() (*stake.Global, error) {
	if m == nil {
		return nil, fmt.Errorf("stake: state manager not initialised")
	}
	var stored stake.Global
	ok, err := m.KVGet(StakeGlobalKey(), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &stored, nil
}

// PutStakeGlobal persists the shared configuration.
func (m *Manager) PutStakeGlobal(global *stake.Global) error {
	if m == nil {
		return fmt.Errorf("stake: state manager not initialised")
	}
	if global == nil {
		return fmt.Errorf("stake: global configuration required")
	}
	return m.KVPut(StakeGlobalKey(), global.Clone())
}

// StakePoolCount returns the number of registered pools.
func (m *Manager) StakePoolCount() (uint64, error) {
	if m == nil {
		return 0, fmt.Errorf("stake: state manager not initialised")
	}
	var count uint64
	if _, err := m.KVGet(StakePoolCountKey(), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// StakePool loads the pool at index id. A missing pool returns nil.
func (m *Manager) StakePool(id uint64) (*stake.Pool, error) {
	if m == nil {
		return nil, fmt.Errorf("stake: state manager not initialised")
	}
	var stored stake.Pool
	ok, err := m.KVGet(StakePoolKey(id), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &stored, nil
}

// PutStakePool overwrites an existing pool.
func (m *Manager) PutStakePool(id uint64, pool *stake.Pool) error {
	if m == nil {
		return fmt.Errorf("stake: state manager not initialised")
	}
	if pool == nil {
		return fmt.Errorf("stake: pool required")
	}
	count, err := m.StakePoolCount()
	if err != nil {
		return err
	}
	if id >= count {
		return fmt.Errorf("stake: pool %d not registered", id)
	}
	return m.KVPut(StakePoolKey(id), pool.Clone())
}

// AppendStakePool stores pool at the next free index and returns it.
func (m *Manager) AppendStakePool(pool *stake.Pool) (uint64, error) {
	if m == nil {
		return 0, fmt.Errorf("stake: state manager not initialised")
	}
	if pool == nil {
		return 0, fmt.Errorf("stake: pool required")
	}
	id, err := m.StakePoolCount()
	if err != nil {
		return 0, err
	}
	if err := m.KVPut(StakePoolKey(id), pool.Clone()); err != nil {
		return 0, err
	}
	if err := m.KVPut(StakePoolCountKey(), id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// StakeUser loads the ledger entry of addr in pool id. A missing entry
// returns nil.
func (m *Manager) StakeUser(id uint64, addr crypto.Address) (*stake.UserStake, error) {
	if m == nil {
		return nil, fmt.Errorf("stake: state manager not initialised")
	}
	var stored stake.UserStake
	ok, err := m.KVGet(StakeUserKey(id, addr.Bytes()), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &stored, nil
}

// PutStakeUser persists the ledger entry of addr in pool id.
func (m *Manager) PutStakeUser(id uint64, addr crypto.Address, user *stake.UserStake) error {
	if m == nil {
		return fmt.Errorf("stake: state manager not initialised")
	}
	if user == nil {
		return fmt.Errorf("stake: user entry required")
	}
	if len(addr.Bytes()) == 0 {
		return fmt.Errorf("stake: address required")
	}
	return m.KVPut(StakeUserKey(id, addr.Bytes()), user.Clone())
}
