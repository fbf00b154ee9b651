package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"metanode/storage"
)

func TestManualClock(t *testing.T) {
	c := NewManual(10)
	if got := c.Advance(5); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
	if err := c.Set(15); err != nil {
		t.Fatalf("set same height: %v", err)
	}
	if err := c.Set(14); !errors.Is(err, errRewind) {
		t.Fatalf("expected errRewind, got %v", err)
	}
	if err := c.Set(40); err != nil {
		t.Fatalf("set: %v", err)
	}
	if c.CurrentBlock() != 40 {
		t.Fatalf("expected 40, got %d", c.CurrentBlock())
	}
}

func TestProducerPersistsHeight(t *testing.T) {
	db := storage.NewMemDB()
	p, err := NewProducer(db, time.Second)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	var seen []uint64
	p.OnBlock(func(h uint64) { seen = append(seen, h) })
	for i := 0; i < 3; i++ {
		if _, err := p.Tick(); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	if p.CurrentBlock() != 3 || len(seen) != 3 || seen[2] != 3 {
		t.Fatalf("unexpected height %d hooks %v", p.CurrentBlock(), seen)
	}

	restarted, err := NewProducer(db, time.Second)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if restarted.CurrentBlock() != 3 {
		t.Fatalf("expected resumed height 3, got %d", restarted.CurrentBlock())
	}
}

func TestProducerValidation(t *testing.T) {
	if _, err := NewProducer(nil, time.Second); err == nil {
		t.Fatalf("expected nil database rejected")
	}
	if _, err := NewProducer(storage.NewMemDB(), 0); err == nil {
		t.Fatalf("expected zero interval rejected")
	}
	db := storage.NewMemDB()
	if err := db.Put(heightKey, []byte{1, 2}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := NewProducer(db, time.Second); err == nil {
		t.Fatalf("expected corrupt height rejected")
	}
}

func TestProducerRunStopsOnCancel(t *testing.T) {
	p, err := NewProducer(storage.NewMemDB(), 5*time.Millisecond)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	produced := make(chan uint64, 16)
	p.OnBlock(func(h uint64) {
		select {
		case produced <- h:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-produced:
	case <-time.After(2 * time.Second):
		t.Fatalf("no block produced")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}
