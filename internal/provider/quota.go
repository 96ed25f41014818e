package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidpipe/internal/logging"
)

// UsageRetention is how long usage records are kept.
const UsageRetention = 30 * 24 * time.Hour

// QuotaLimits are the per-backend token budgets.
type QuotaLimits struct {
	Daily    int64
	Monthly  int64
	ResetDay int
}

// UsageRecord is one successful call's token usage.
type UsageRecord struct {
	BackendID string
	Tokens    int
	At        time.Time
}

// Usage is a backend's consumption in the current windows.
type Usage struct {
	Daily   int64
	Monthly int64
}

// UsageSink persists usage records outside the process.
type UsageSink interface {
	Append(ctx context.Context, rec UsageRecord) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Ledger is the rolling in-memory record of token usage per backend.
type Ledger struct {
	mu      sync.Mutex
	limits  QuotaLimits
	records map[string][]UsageRecord
	now     func() time.Time
	sink    UsageSink
	logger  *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the clock used for pruning.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithUsageSink mirrors every record into sink.
func WithUsageSink(sink UsageSink) LedgerOption {
	return func(l *Ledger) { l.sink = sink }
}

// WithLedgerLogger sets the logger used for sink failures.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger constructs an empty ledger.
func NewLedger(limits QuotaLimits, opts ...LedgerOption) *Ledger {
	if limits.ResetDay < 1 {
		limits.ResetDay = 1
	}
	l := &Ledger{
		limits:  limits,
		records: make(map[string][]UsageRecord),
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limits returns the configured budgets.
func (l *Ledger) Limits() QuotaLimits {
	return l.limits
}

// Record appends usage for backendID and prunes expired records.
func (l *Ledger) Record(backendID string, tokens int, at time.Time) {
	rec := UsageRecord{BackendID: backendID, Tokens: tokens, At: at}
	l.mu.Lock()
	l.records[backendID] = append(l.records[backendID], rec)
	l.pruneLocked(l.now().Add(-UsageRetention))
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Append(context.Background(), rec); err != nil {
			logging.WarnWithContext(l.logger, "usage record not persisted", "quota_sink_failed",
				logging.String(logging.FieldBackend, backendID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check quota.store_path permissions"),
				logging.String(logging.FieldImpact, "usage will be lost on restart"),
			)
		}
	}
}

// Seed loads previously persisted records without mirroring them back.
func (l *Ledger) Seed(records []UsageRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range records {
		l.records[rec.BackendID] = append(l.records[rec.BackendID], rec)
	}
	l.pruneLocked(l.now().Add(-UsageRetention))
}

// Prune drops records older than the retention window relative to now,
// including those held by the sink. It returns the in-memory count removed.
func (l *Ledger) Prune(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-UsageRetention)
	l.mu.Lock()
	removed := l.pruneLocked(cutoff)
	sink := l.sink
	l.mu.Unlock()
	if sink != nil {
		if _, err := sink.Prune(ctx, cutoff); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// WithinBudget reports whether backendID is strictly below both budgets at now.
func (l *Ledger) WithinBudget(backendID string, now time.Time) bool {
	usage := l.Usage(backendID, now)
	return usage.Daily < l.limits.Daily && usage.Monthly < l.limits.Monthly
}

// Usage returns the daily and monthly consumption of backendID at now.
func (l *Ledger) Usage(backendID string, now time.Time) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usageLocked(backendID, now)
}

// Snapshot returns the usage of every backend with records.
func (l *Ledger) Snapshot(now time.Time) map[string]Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Usage, len(l.records))
	for id := range l.records {
		out[id] = l.usageLocked(id, now)
	}
	return out
}

func (l *Ledger) usageLocked(backendID string, now time.Time) Usage {
	dayStart := startOfDay(now)
	monthStart := BillingWindowStart(now, l.limits.ResetDay)
	var usage Usage
	for _, rec := range l.records[backendID] {
		if rec.At.After(now) {
			continue
		}
		if !rec.At.Before(dayStart) {
			usage.Daily += int64(rec.Tokens)
		}
		if !rec.At.Before(monthStart) {
			usage.Monthly += int64(rec.Tokens)
		}
	}
	return usage
}

func (l *Ledger) pruneLocked(cutoff time.Time) int {
	removed := 0
	for id, recs := range l.records {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.At.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(l.records, id)
			continue
		}
		l.records[id] = kept
	}
	return removed
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// BillingWindowStart returns the most recent reset-day boundary at or before
// now. Reset days past a month's end clamp to its last day.
func BillingWindowStart(now time.Time, resetDay int) time.Time {
	y, m, _ := now.Date()
	start := resetBoundary(y, m, resetDay, now.Location())
	if start.After(now) {
		start = resetBoundary(y, m-1, resetDay, now.Location())
	}
	return start
}

func resetBoundary(year int, month time.Month, resetDay int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := min(max(resetDay, 1), lastDay)
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}
