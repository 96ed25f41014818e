package provider

import (
	"sync"
	"time"
)

// HealthRecord is the availability state of one backend.
type HealthRecord struct {
	Available bool      `json:"available"`
	LastError string    `json:"lastError,omitempty"`
	FailedAt  time.Time `json:"failedAt,omitzero"`
}

// Health tracks per-backend availability. A backend marked down stays down
// until Reset, or until cooldown elapses when cooldown is positive.
type Health struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	records  map[string]HealthRecord
}

// NewHealth constructs a tracker. A zero cooldown disables automatic recovery.
func NewHealth(cooldown time.Duration, now func() time.Time) *Health {
	if now == nil {
		now = time.Now
	}
	return &Health{
		cooldown: cooldown,
		now:      now,
		records:  make(map[string]HealthRecord),
	}
}

// MarkFailure marks backendID unavailable and remembers message.
func (h *Health) MarkFailure(backendID, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[backendID] = HealthRecord{Available: false, LastError: message, FailedAt: h.now()}
}

// MarkSuccess clears the last error without changing availability.
func (h *Health) MarkSuccess(backendID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[backendID]
	if !ok {
		return
	}
	rec.LastError = ""
	h.records[backendID] = rec
}

// Available reports whether backendID may be routed to. Unknown ids are available.
func (h *Health) Available(backendID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.effectiveLocked(backendID).Available
}

// Record returns the effective record for backendID.
func (h *Health) Record(backendID string) HealthRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.effectiveLocked(backendID)
}

// Reset marks backendID available again.
func (h *Health) Reset(backendID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.records, backendID)
}

// Snapshot returns the effective records of every tracked backend.
func (h *Health) Snapshot() map[string]HealthRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]HealthRecord, len(h.records))
	for id := range h.records {
		out[id] = h.effectiveLocked(id)
	}
	return out
}

func (h *Health) effectiveLocked(backendID string) HealthRecord {
	rec, ok := h.records[backendID]
	if !ok {
		return HealthRecord{Available: true}
	}
	if !rec.Available && h.cooldown > 0 && h.now().Sub(rec.FailedAt) >= h.cooldown {
		rec.Available = true
	}
	return rec
}
