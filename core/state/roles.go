package state

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// RoleAdmin is the role consulted by administrative operations.
const RoleAdmin = "admin"

var roleNamespace = []byte("role")

func roleKey(role string) []byte {
	return hashedKey(roleNamespace, []byte(role))
}

// SetRole adds addr to role. Members are kept sorted and unique.
func (m *Manager) SetRole(role string, addr []byte) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("role %s: address must not be empty", role)
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return err
	}
	at := sort.Search(len(members), func(i int) bool { return bytes.Compare(members[i], addr) >= 0 })
	if at < len(members) && bytes.Equal(members[at], addr) {
		return nil
	}
	members = append(members, nil)
	copy(members[at+1:], members[at:])
	members[at] = append([]byte(nil), addr...)
	return m.write(roleKey(role), members)
}

// RoleMembers returns every address holding role in byte order.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	var members [][]byte
	if _, err := m.read(roleKey(strings.TrimSpace(role)), &members); err != nil {
		return nil, err
	}
	if members == nil {
		members = [][]byte{}
	}
	return members, nil
}

// HasRole reports whether addr holds role. Read errors report false.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	at := sort.Search(len(members), func(i int) bool { return bytes.Compare(members[i], addr) >= 0 })
	return at < len(members) && bytes.Equal(members[at], addr)
}
