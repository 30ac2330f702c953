package budget

import (
	"context"
	"testing"
	"time"

	"github.com/pario-ai/stylist/pkg/models"
)

type countingPruner struct {
	before time.Time
	calls  int
}

func (p *countingPruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.calls++
	p.before = before
	return 3, nil
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(nil)
	if err := s.Add("bad", "every tuesday", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected invalid schedule error")
	}
}

func TestSchedulerEmptyScheduleDisables(t *testing.T) {
	s := NewScheduler(nil)
	if err := s.Add("off", "", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Next("off"); ok {
		t.Error("expected disabled job to have no entry")
	}
}

func TestSchedulerNext(t *testing.T) {
	s := NewScheduler(nil)
	if err := s.Add("rollover", "0 0 1 * *", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop(context.Background())

	// Entries get their next time once the cron loop has started.
	deadline := time.Now().Add(time.Second)
	for {
		next, ok := s.Next("rollover")
		if !ok {
			t.Fatal("expected rollover entry")
		}
		if !next.IsZero() {
			if next.UTC().Day() != 1 || next.UTC().Hour() != 0 {
				t.Errorf("expected first of month at midnight, got %v", next)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("next run time never computed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRolloverJob(t *testing.T) {
	clock := newClock()
	l := NewMemoryLedger(5, WithClock(clock.Now))
	ctx := context.Background()
	_, _ = l.RecordSpend(ctx, 2)

	clock.Set(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))
	if err := RolloverJob(l, nil)(ctx); err != nil {
		t.Fatal(err)
	}

	hist, _ := l.History(ctx, 0)
	if len(hist) != 2 {
		t.Fatalf("expected 2 periods after rollover, got %d", len(hist))
	}
	if hist[0].PeriodKey != "2026-04" || hist[0].AccumulatedCostUSD != 0 {
		t.Errorf("unexpected new period: %+v", hist[0])
	}
	if hist[1] != (models.LedgerEntry{
		PeriodKey: "2026-03", AccumulatedCostUSD: 2, CapUSD: 5, RequestCount: 1, UpdatedAt: hist[1].UpdatedAt,
	}) {
		t.Errorf("previous period changed: %+v", hist[1])
	}
}

func TestPruneJob(t *testing.T) {
	p := &countingPruner{}
	if err := PruneJob(p, 30, nil)(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.calls != 1 {
		t.Fatalf("expected 1 prune call, got %d", p.calls)
	}
	age := time.Since(p.before)
	if age < 29*24*time.Hour || age > 31*24*time.Hour {
		t.Errorf("unexpected cutoff age %v", age)
	}

	if err := PruneJob(p, 0, nil)(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.calls != 1 {
		t.Error("expected zero retention to skip pruning")
	}
}
