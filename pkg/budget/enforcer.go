package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/tracker"
)

// Window is a request-limit period.
type Window string

const (
	WindowDaily  Window = "daily"
	WindowHourly Window = "hourly"
)

// LimitError reports a request-count limit that has been reached.
type LimitError struct {
	Window Window
	Limit  int64
	Count  int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s request limit reached (%d requests)", e.Window, e.Limit)
}

// Is lets errors.Is match ErrRateLimited.
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Limits caps request counts. Zero disables a limit.
type Limits struct {
	Daily  int64
	Hourly int64
}

// Enforcer combines the spend ledger with per-window request limits.
// Request counts come from the usage tracker; a nil tracker disables them.
type Enforcer struct {
	ledger  Ledger
	tracker tracker.Tracker
	limits  Limits
	now     func() time.Time
	logger  *slog.Logger
}

// NewEnforcer creates an Enforcer over the given ledger and tracker.
func NewEnforcer(l Ledger, t tracker.Tracker, limits Limits, logger *slog.Logger, opts ...Option) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &Enforcer{
		ledger:  l,
		tracker: t,
		limits:  limits,
		now:     o.now,
		logger:  logger.With("component", "budget"),
	}
}

// Ledger returns the underlying spend ledger.
func (e *Enforcer) Ledger() Ledger { return e.ledger }

// Check returns a *RejectedError when the month's cap is spent, or a
// *LimitError when a request limit is reached. Persistence failures wrap
// ErrLedgerUnavailable.
func (e *Enforcer) Check(ctx context.Context, estimatedCost float64) error {
	if err := e.ledger.CheckAvailable(ctx, estimatedCost); err != nil {
		return err
	}
	if e.tracker == nil {
		return nil
	}
	now := e.now().UTC()
	for _, w := range []struct {
		window Window
		limit  int64
	}{
		{WindowDaily, e.limits.Daily},
		{WindowHourly, e.limits.Hourly},
	} {
		if w.limit <= 0 {
			continue
		}
		n, err := e.tracker.CountSince(ctx, windowStart(w.window, now))
		if err != nil {
			return unavailable("count requests", err)
		}
		if n >= w.limit {
			return &LimitError{Window: w.window, Limit: w.limit, Count: n}
		}
	}
	return nil
}

// Record adds the record's cost to the ledger and stores the record with the
// tracker. The ledger is authoritative: a tracker failure is logged, not returned.
func (e *Enforcer) Record(ctx context.Context, rec models.UsageRecord) (models.UsageStats, error) {
	entry, err := e.ledger.RecordSpend(ctx, rec.CostUSD)
	if err != nil {
		return models.UsageStats{}, err
	}
	if e.tracker != nil {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = e.now().UTC()
		}
		if err := e.tracker.Record(ctx, rec); err != nil {
			e.logger.Warn("usage record failed", "request_id", rec.RequestID, "error", err)
		}
	}
	return e.stats(ctx, entry)
}

// Usage returns the current budget snapshot.
func (e *Enforcer) Usage(ctx context.Context) (models.UsageStats, error) {
	entry, err := e.ledger.Current(ctx)
	if err != nil {
		return models.UsageStats{}, err
	}
	return e.stats(ctx, entry)
}

func (e *Enforcer) stats(ctx context.Context, entry models.LedgerEntry) (models.UsageStats, error) {
	s := models.UsageStats{
		Period:             entry.PeriodKey,
		MonthlyCostUSD:     entry.AccumulatedCostUSD,
		MonthlyBudgetUSD:   entry.CapUSD,
		RemainingBudgetUSD: entry.Remaining(),
		DailyLimit:         e.limits.Daily,
		HourlyLimit:        e.limits.Hourly,
	}
	if e.tracker != nil {
		now := e.now().UTC()
		var err error
		if s.DailyRequests, err = e.tracker.CountSince(ctx, windowStart(WindowDaily, now)); err != nil {
			return s, unavailable("count daily requests", err)
		}
		if s.HourlyRequests, err = e.tracker.CountSince(ctx, windowStart(WindowHourly, now)); err != nil {
			return s, unavailable("count hourly requests", err)
		}
	}
	s.CanMakeRequest = s.RemainingBudgetUSD > 0 &&
		(s.DailyLimit <= 0 || s.DailyRequests < s.DailyLimit) &&
		(s.HourlyLimit <= 0 || s.HourlyRequests < s.HourlyLimit)
	return s, nil
}

func windowStart(w Window, now time.Time) time.Time {
	switch w {
	case WindowHourly:
		return now.Truncate(time.Hour)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
