package clock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"metanode/storage"
)

// Source reports the current block number. Block numbers never decrease.
type Source interface {
	CurrentBlock() uint64
}

var errRewind = errors.New("clock: block number must not decrease")

// Manual is a clock advanced explicitly by its owner.
type Manual struct {
	mu     sync.RWMutex
	height uint64
}

// NewManual returns a manual clock positioned at start.
func NewManual(start uint64) *Manual {
	return &Manual{height: start}
}

// CurrentBlock implements Source.
func (m *Manual) CurrentBlock() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height
}

// Advance moves the clock forward by n blocks and returns the new height.
func (m *Manual) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height += n
	return m.height
}

// Set jumps the clock to height, which must not precede the current one.
func (m *Manual) Set(height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height < m.height {
		return fmt.Errorf("%w: %d < %d", errRewind, height, m.height)
	}
	m.height = height
	return nil
}

var heightKey = []byte("clock/height")

// Producer advances the block number on a fixed interval and persists it so
// restarts resume where they stopped.
type Producer struct {
	db       storage.Database
	interval time.Duration

	mu      sync.RWMutex
	height  uint64
	onBlock []func(uint64)
}

// NewProducer loads the persisted height from db.
func NewProducer(db storage.Database, interval time.Duration) (*Producer, error) {
	if db == nil {
		return nil, fmt.Errorf("clock: database required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("clock: interval must be positive")
	}
	p := &Producer{db: db, interval: interval}
	raw, err := db.Get(heightKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("clock: load height: %w", err)
	case len(raw) != 8:
		return nil, fmt.Errorf("clock: corrupt height record (%d bytes)", len(raw))
	default:
		p.height = binary.BigEndian.Uint64(raw)
	}
	return p, nil
}

// CurrentBlock implements Source.
func (p *Producer) CurrentBlock() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.height
}

// OnBlock registers a hook invoked with every new height after it persists.
func (p *Producer) OnBlock(fn func(uint64)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	p.onBlock = append(p.onBlock, fn)
	p.mu.Unlock()
}

// Tick produces the next block.
func (p *Producer) Tick() (uint64, error) {
	p.mu.Lock()
	next := p.height + 1
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := p.db.Put(heightKey, buf[:]); err != nil {
		p.mu.Unlock()
		return 0, fmt.Errorf("clock: persist height: %w", err)
	}
	p.height = next
	hooks := append([]func(uint64){}, p.onBlock...)
	p.mu.Unlock()

	for _, hook := range hooks {
		hook(next)
	}
	return next, nil
}

// Run produces blocks until the context is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Tick(); err != nil {
				slog.Error("block production failed", "module", "clock", "error", err)
			}
		}
	}
}
