package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	Backend       string            `json:"backend,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// Query selects events from a StreamHub. Empty filters match everything.
type Query struct {
	// Since excludes events at or below this sequence.
	Since     uint64
	Limit     int
	JobID     string
	Component string
}

func (q Query) matches(evt LogEvent) bool {
	if q.JobID != "" && evt.JobID != q.JobID {
		return false
	}
	return q.Component == "" || strings.EqualFold(q.Component, evt.Component)
}

// StreamHub is a bounded ring of recent log events. Readers long-poll it by
// sequence number; publishers never block on readers.
type StreamHub struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ring    []LogEvent
	head    int
	size    int
	lastSeq uint64
}

// NewStreamHub constructs a hub holding the latest capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &StreamHub{ring: make([]LogEvent, capacity)}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish stamps evt with the next sequence and stores it, overwriting the
// oldest event when the ring is full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.lastSeq++
	evt.Sequence = h.lastSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	slot := (h.head + h.size) % len(h.ring)
	if h.size == len(h.ring) {
		h.head = (h.head + 1) % len(h.ring)
	} else {
		h.size++
	}
	h.ring[slot] = evt
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns matching events newer than q.Since in order, at most
// q.Limit of them, plus the cursor for the next call. With wait, Fetch
// blocks until a matching event arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, q Query, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, q.Since, nil
	}
	q.Limit = h.clampLimit(q.Limit)

	stop := make(chan struct{})
	defer close(stop)
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-stop:
			}
		}()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		events, next := h.scanLocked(q)
		if len(events) > 0 || !wait {
			return events, next, nil
		}
		// Nothing matched up to next, so later scans can start there.
		q.Since = next
		if ctx != nil && ctx.Err() != nil {
			return nil, next, ctx.Err()
		}
		h.cond.Wait()
	}
}

// Tail returns the most recent q.Limit matching events without blocking.
// q.Since is ignored.
func (h *StreamHub) Tail(q Query) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	limit := h.clampLimit(q.Limit)
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []LogEvent
	for i := h.size - 1; i >= 0 && len(out) < limit; i-- {
		if evt := h.at(i); q.matches(evt) {
			out = append(out, evt)
		}
	}
	slices.Reverse(out)
	return out, h.lastSeq
}

func (h *StreamHub) clampLimit(limit int) int {
	if limit <= 0 || limit > len(h.ring) {
		return len(h.ring)
	}
	return limit
}

func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.head+i)%len(h.ring)]
}

// scanLocked collects matches after q.Since. When the limit cuts the page
// short the cursor stops at the last returned event so nothing is skipped.
func (h *StreamHub) scanLocked(q Query) ([]LogEvent, uint64) {
	var out []LogEvent
	for i := 0; i < h.size; i++ {
		evt := h.at(i)
		if evt.Sequence <= q.Since || !q.matches(evt) {
			continue
		}
		if len(out) == q.Limit {
			return out, out[len(out)-1].Sequence
		}
		out = append(out, evt)
	}
	return out, h.lastSeq
}

type streamHandler struct {
	next   slog.Handler
	hub    *StreamHub
	attrs  []slog.Attr
	groups []string
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(h.event(record))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &streamHandler{
		next:   h.next.WithAttrs(attrs),
		hub:    h.hub,
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
		groups: h.groups,
	}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{
		next:   h.next.WithGroup(name),
		hub:    h.hub,
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
	}
}

// event flattens pre-bound attrs first so call-site attrs win on conflicts.
func (h *streamHandler) event(record slog.Record) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}

	visit := func(key string, v slog.Value) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		value := valueText(v)
		switch key {
		case FieldComponent:
			event.Component = value
		case FieldJobID:
			event.JobID = value
		case FieldStage:
			event.Stage = value
		case FieldBackend:
			event.Backend = value
		case FieldCorrelationID:
			event.CorrelationID = value
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[key] = value
		}
	}
	for _, attr := range h.attrs {
		walkAttr(nil, attr, visit)
	}
	record.Attrs(func(attr slog.Attr) bool {
		walkAttr(h.groups, attr, visit)
		return true
	})
	return event
}
