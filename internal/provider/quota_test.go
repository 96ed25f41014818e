package provider_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidpipe/internal/provider"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLedgerWithinBudgetIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)
	ledger := provider.NewLedger(provider.QuotaLimits{Daily: 100, Monthly: 1000, ResetDay: 1}, provider.WithLedgerClock(fixedClock(now)))
	ledger.Record("a", 60, now.Add(-time.Hour))

	first := ledger.WithinBudget("a", now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ledger.WithinBudget("a", now))
	}
	assert.True(t, first)

	ledger.Record("a", 40, now.Add(-time.Minute))
	assert.False(t, ledger.WithinBudget("a", now), "usage equal to the daily limit is over budget")
	assert.True(t, ledger.WithinBudget("unknown", now))
}

func TestLedgerDailyWindowStartsAtMidnight(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 30, 0, 0, time.Local)
	ledger := provider.NewLedger(provider.QuotaLimits{Daily: 100, Monthly: 1000, ResetDay: 1}, provider.WithLedgerClock(fixedClock(now)))
	ledger.Record("a", 90, now.Add(-time.Hour))
	ledger.Record("a", 5, now.Add(-10*time.Minute))

	usage := ledger.Usage("a", now)
	assert.Equal(t, int64(5), usage.Daily)
	assert.Equal(t, int64(95), usage.Monthly)
}

func TestLedgerMonthlyWindowUsesResetDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	ledger := provider.NewLedger(provider.QuotaLimits{Daily: 1000, Monthly: 100, ResetDay: 15}, provider.WithLedgerClock(fixedClock(now)))
	ledger.Record("a", 50, time.Date(2026, 2, 14, 12, 0, 0, 0, time.Local))
	ledger.Record("a", 70, time.Date(2026, 2, 15, 12, 0, 0, 0, time.Local))

	usage := ledger.Usage("a", now)
	assert.Equal(t, int64(70), usage.Monthly, "window starts on the previous month's reset day")
	assert.True(t, ledger.WithinBudget("a", now))
}

func TestBillingWindowStartClampsToMonthEnd(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	start := provider.BillingWindowStart(now, 31)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), start)

	now = time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), provider.BillingWindowStart(now, 31))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), provider.BillingWindowStart(now, 1))
}

func TestLedgerPrunesRecordsOlderThanRetention(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.Local)
	ledger := provider.NewLedger(provider.QuotaLimits{Daily: 10, Monthly: 10, ResetDay: 1}, provider.WithLedgerClock(fixedClock(now)))
	ledger.Seed([]provider.UsageRecord{
		{BackendID: "a", Tokens: 5, At: now.Add(-31 * 24 * time.Hour)},
		{BackendID: "a", Tokens: 3, At: now.Add(-2 * time.Hour)},
	})
	snapshot := ledger.Snapshot(now)
	require.Contains(t, snapshot, "a")
	assert.Equal(t, int64(3), snapshot["a"].Daily)

	later := now.Add(29 * 24 * time.Hour)
	removed, err := ledger.Prune(context.Background(), later.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, ledger.Snapshot(later))
}

type memorySink struct {
	mu      sync.Mutex
	records []provider.UsageRecord
	pruned  []time.Time
}

func (s *memorySink) Append(_ context.Context, rec provider.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned = append(s.pruned, before)
	return 0, nil
}

func TestLedgerMirrorsToSink(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)
	sink := &memorySink{}
	ledger := provider.NewLedger(provider.QuotaLimits{Daily: 10, Monthly: 10, ResetDay: 1},
		provider.WithLedgerClock(fixedClock(now)), provider.WithUsageSink(sink))

	ledger.Record("a", 4, now)
	ledger.Seed([]provider.UsageRecord{{BackendID: "a", Tokens: 1, At: now}})
	_, err := ledger.Prune(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, sink.records, 1, "seeded records are not mirrored back")
	assert.Equal(t, 4, sink.records[0].Tokens)
	require.Len(t, sink.pruned, 1)
	assert.Equal(t, now.Add(-provider.UsageRetention), sink.pruned[0])
}

func TestLedgerConcurrentRecords(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)
	ledger := provider.NewLedger(provider.QuotaLimits{Daily: 1 << 30, Monthly: 1 << 30, ResetDay: 1}, provider.WithLedgerClock(fixedClock(now)))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.Record("a", 2, now)
			_ = ledger.WithinBudget("a", now)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), ledger.Usage("a", now).Daily)
}
