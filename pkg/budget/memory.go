package budget

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pario-ai/stylist/pkg/models"
)

type memEntry struct {
	accNanos int64
	requests int64
	updated  time.Time
}

// MemoryLedger is a process-local Ledger. Spend is lost on restart.
type MemoryLedger struct {
	capNan  int64
	now     func() time.Time
	mu      sync.Mutex
	periods map[string]*memEntry
}

// NewMemoryLedger creates an empty in-memory ledger with the given monthly cap.
func NewMemoryLedger(capUSD float64, opts ...Option) *MemoryLedger {
	o := buildOptions(opts)
	return &MemoryLedger{
		capNan:  toNanos(capUSD),
		now:     o.now,
		periods: make(map[string]*memEntry),
	}
}

// Seed sets the accumulated spend for a period. Intended for tests and imports.
func (l *MemoryLedger) Seed(period string, spentUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.periods[period] = &memEntry{accNanos: toNanos(spentUSD), updated: l.now().UTC()}
}

// CurrentPeriodKey derives the active period from the ledger's clock.
func (l *MemoryLedger) CurrentPeriodKey() string {
	return PeriodKey(l.now())
}

// CheckAvailable returns a *RejectedError when nothing is left in the current period.
func (l *MemoryLedger) CheckAvailable(ctx context.Context, estimatedCost float64) error {
	e, err := l.Current(ctx)
	if err != nil {
		return err
	}
	return checkEntry(e, estimatedCost)
}

// Current returns the entry for the current period, creating it if needed.
func (l *MemoryLedger) Current(ctx context.Context) (models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.LedgerEntry{}, unavailable("current", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := l.CurrentPeriodKey()
	return l.entry(key, l.get(key)), nil
}

// RecordSpend atomically adds cost to the current period.
func (l *MemoryLedger) RecordSpend(ctx context.Context, cost float64) (models.LedgerEntry, error) {
	if cost < 0 {
		return models.LedgerEntry{}, fmt.Errorf("record spend: negative cost %v", cost)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := l.CurrentPeriodKey()
	m := l.get(key)
	m.accNanos += toNanos(cost)
	m.requests++
	m.updated = l.now().UTC()
	return l.entry(key, m), nil
}

// History returns the most recent periods, newest first.
func (l *MemoryLedger) History(_ context.Context, limit int) ([]models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.periods))
	for k := range l.periods {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	entries := make([]models.LedgerEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, l.entry(k, l.periods[k]))
	}
	return entries, nil
}

// Close is a no-op.
func (l *MemoryLedger) Close() error { return nil }

func (l *MemoryLedger) get(key string) *memEntry {
	m, ok := l.periods[key]
	if !ok {
		m = &memEntry{updated: l.now().UTC()}
		l.periods[key] = m
	}
	return m
}

func (l *MemoryLedger) entry(key string, m *memEntry) models.LedgerEntry {
	return models.LedgerEntry{
		PeriodKey:          key,
		AccumulatedCostUSD: fromNanos(m.accNanos),
		CapUSD:             fromNanos(l.capNan),
		RequestCount:       m.requests,
		UpdatedAt:          m.updated,
	}
}
