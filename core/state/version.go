package state

import (
	"errors"
	"fmt"

	"metanode/storage"
)

// SchemaVersion is the ledger layout this binary reads and writes. Bump it on
// any incompatible change to stored pool, user or bank records.
const SchemaVersion uint64 = 1

var (
	schemaVersionKey = []byte("ledger/schema-version")

	ErrSchemaMismatch = errors.New("state: ledger schema mismatch")
)

// SchemaVersion reports the stamped layout version, if any.
func (m *Manager) SchemaVersion() (uint64, bool, error) {
	var stored uint64
	ok, err := m.KVGet(schemaVersionKey, &stored)
	return stored, ok, err
}

// EnsureStateVersion stamps an empty database with SchemaVersion and refuses
// databases written by a different layout.
func EnsureStateVersion(db storage.Database) error {
	if db == nil {
		return fmt.Errorf("state: database must not be nil")
	}
	journal := NewJournal(db)
	manager := NewManager(journal)
	stored, ok, err := manager.SchemaVersion()
	switch {
	case err != nil:
		return err
	case !ok:
		if err := manager.KVPut(schemaVersionKey, SchemaVersion); err != nil {
			return err
		}
		return journal.Commit()
	case stored != SchemaVersion:
		return fmt.Errorf("%w: stored %d, binary %d", ErrSchemaMismatch, stored, SchemaVersion)
	}
	return nil
}
