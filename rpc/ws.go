package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"metanode/core/events"
	"metanode/observability"
	"metanode/storage/history"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsSubscriberSize = 256
	wsBacklogLimit   = 1000
)

// eventPayload is the websocket frame for one committed event.
type eventPayload struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

func payloadFromEvent(evt events.Event) (eventPayload, bool) {
	committed, ok := evt.(events.Committed)
	if !ok {
		return eventPayload{}, false
	}
	wire := committed.Event()
	if wire == nil {
		return eventPayload{}, false
	}
	return eventPayload{Seq: committed.Seq, Type: wire.Type, Height: wire.Height, Attributes: wire.Attributes}, true
}

func payloadFromRecord(rec history.Record) (eventPayload, error) {
	attrs, err := rec.Decode()
	if err != nil {
		return eventPayload{}, err
	}
	return eventPayload{Seq: rec.Seq, Type: rec.Type, Height: rec.Height, Attributes: attrs}, nil
}

// eventHub fans committed events out to websocket subscribers. Slow
// subscribers lose events rather than stalling the node.
type eventHub struct {
	mu     sync.Mutex
	subs   map[chan eventPayload]struct{}
	closed bool
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan eventPayload]struct{})}
}

// Emit implements events.Emitter.
func (h *eventHub) Emit(evt events.Event) {
	payload, ok := payloadFromEvent(evt)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (h *eventHub) subscribe() (<-chan eventPayload, func()) {
	ch := make(chan eventPayload, wsSubscriberSize)
	h.mu.Lock()
	if h.closed {
		close(ch)
		h.mu.Unlock()
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	observability.RPC().StreamOpened()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
			observability.RPC().StreamClosed()
		})
	}
}

func (h *eventHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *eventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

type streamFilter struct {
	types   map[string]struct{}
	fromSeq uint64
}

func parseStreamFilter(r *http.Request) (streamFilter, error) {
	q := r.URL.Query()
	f := streamFilter{}
	if raw := strings.TrimSpace(q.Get("types")); raw != "" {
		f.types = make(map[string]struct{})
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.types[t] = struct{}{}
			}
		}
	}
	if raw := strings.TrimSpace(q.Get("fromSeq")); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return f, err
		}
		f.fromSeq = seq
	}
	return f, nil
}

func (f streamFilter) match(p eventPayload) bool {
	if len(f.types) == 0 {
		return true
	}
	_, ok := f.types[p.Type]
	return ok
}

// handleEventsWS streams committed events. With fromSeq set and the history
// index enabled, indexed events from that sequence are replayed first.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStreamFilter(r)
	if err != nil {
		http.Error(w, "invalid fromSeq", http.StatusBadRequest)
		return
	}
	if filter.fromSeq > 0 && s.history == nil {
		http.Error(w, "history index disabled", http.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter streamFilter) error {
	updates, cancel := s.stream.subscribe()
	defer cancel()

	var last uint64
	if filter.fromSeq > 0 {
		backlog, err := s.history.Query(ctx, history.Filter{FromSeq: filter.fromSeq, Limit: wsBacklogLimit})
		if err != nil {
			return err
		}
		for _, rec := range backlog {
			payload, err := payloadFromRecord(rec)
			if err != nil {
				return err
			}
			last = payload.Seq
			if !filter.match(payload) {
				continue
			}
			if err := writeEventPayload(ctx, conn, payload); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-updates:
			if !ok {
				return nil
			}
			if payload.Seq <= last || !filter.match(payload) {
				continue
			}
			if err := writeEventPayload(ctx, conn, payload); err != nil {
				return err
			}
		}
	}
}

func writeEventPayload(ctx context.Context, conn *websocket.Conn, payload eventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
