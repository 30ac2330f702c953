// Package budget tracks monthly model spend against a fixed cap.
//
// A Ledger holds one entry per calendar month (UTC). CheckAvailable is a
// pre-flight test that never reserves funds, and RecordSpend is an atomic
// increment. Two concurrent requests may both pass CheckAvailable and both
// record spend, so the ledger can overshoot the cap by the cost of the calls
// in flight when it was crossed.
package budget

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pario-ai/stylist/pkg/models"
)

var (
	// ErrBudgetExceeded is returned when the period's cap has been spent.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrRateLimited is returned when a daily or hourly request limit is reached.
	ErrRateLimited = errors.New("request limit reached")
	// ErrLedgerUnavailable wraps persistence failures. Callers must fail closed.
	ErrLedgerUnavailable = errors.New("budget ledger unavailable")
)

// RejectedError reports a budget rejection with the remaining balance.
type RejectedError struct {
	Period       string
	CapUSD       float64
	SpentUSD     float64
	RemainingUSD float64
	EstimatedUSD float64
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("monthly budget limit reached ($%.2f): remaining budget $%.2f for %s",
		e.CapUSD, e.RemainingUSD, e.Period)
}

// Is lets errors.Is match ErrBudgetExceeded.
func (e *RejectedError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// Ledger is the persistent monthly spend counter.
type Ledger interface {
	// CheckAvailable returns a *RejectedError when nothing is left in the
	// current period. The estimate is reported but does not change the decision.
	CheckAvailable(ctx context.Context, estimatedCost float64) error
	// RecordSpend atomically adds cost to the current period.
	RecordSpend(ctx context.Context, cost float64) (models.LedgerEntry, error)
	// Current returns the entry for the current period, creating it if needed.
	Current(ctx context.Context) (models.LedgerEntry, error)
	// History returns the most recent periods, newest first.
	History(ctx context.Context, limit int) ([]models.LedgerEntry, error)
	// CurrentPeriodKey derives the active period from the ledger's clock.
	CurrentPeriodKey() string
	// Close releases resources.
	Close() error
}

// Option configures a ledger.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the wall clock used to derive periods.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PeriodKey returns the calendar-month key for t, e.g. "2026-10".
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Spend is stored as integer nano-dollars so sums stay exact.
const nanosPerUSD = 1e9

func toNanos(usd float64) int64 {
	return int64(math.Round(usd * nanosPerUSD))
}

func fromNanos(n int64) float64 {
	return float64(n) / nanosPerUSD
}

func checkEntry(e models.LedgerEntry, estimated float64) error {
	if e.Remaining() <= 0 {
		return &RejectedError{
			Period:       e.PeriodKey,
			CapUSD:       e.CapUSD,
			SpentUSD:     e.AccumulatedCostUSD,
			RemainingUSD: e.Remaining(),
			EstimatedUSD: estimated,
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLedgerUnavailable, op, err)
}
