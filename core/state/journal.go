package state

import (
	"errors"
	"fmt"
	"sort"

	"metanode/storage"
)

// Journal buffers writes over a database until Commit flushes them in one
// batch. Reads observe the buffered writes first. A Journal is not safe for
// concurrent use.
type Journal struct {
	db      storage.Database
	dirty   map[string][]byte
	deleted map[string]struct{}
}

// NewJournal opens an empty write buffer over db.
func NewJournal(db storage.Database) *Journal {
	return &Journal{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Get returns the value stored under key. Missing keys return (nil, nil).
func (j *Journal) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, ok := j.deleted[k]; ok {
		return nil, nil
	}
	if v, ok := j.dirty[k]; ok {
		return append([]byte(nil), v...), nil
	}
	if j.db == nil {
		return nil, nil
	}
	v, err := j.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}
	return v, nil
}

// Update buffers a write of value under key.
func (j *Journal) Update(key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("journal: key must not be empty")
	}
	k := string(key)
	delete(j.deleted, k)
	j.dirty[k] = append([]byte(nil), value...)
	return nil
}

// Delete buffers the removal of key.
func (j *Journal) Delete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("journal: key must not be empty")
	}
	k := string(key)
	delete(j.dirty, k)
	j.deleted[k] = struct{}{}
	return nil
}

// Pending reports the number of buffered operations.
func (j *Journal) Pending() int {
	return len(j.dirty) + len(j.deleted)
}

// Commit writes every buffered operation to the database atomically and
// empties the buffer. Keys are applied in sorted order.
func (j *Journal) Commit() error {
	if j.db == nil {
		return fmt.Errorf("journal: database not configured")
	}
	if j.Pending() == 0 {
		return nil
	}
	keys := make([]string, 0, j.Pending())
	for k := range j.dirty {
		keys = append(keys, k)
	}
	for k := range j.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := storage.NewBatch()
	for _, k := range keys {
		if v, ok := j.dirty[k]; ok {
			batch.Put([]byte(k), v)
			continue
		}
		batch.Delete([]byte(k))
	}
	if err := j.db.Write(batch); err != nil {
		return fmt.Errorf("journal: commit: %w", err)
	}
	j.Discard()
	return nil
}

// Discard drops every buffered operation.
func (j *Journal) Discard() {
	j.dirty = make(map[string][]byte)
	j.deleted = make(map[string]struct{})
}
