package models

import (
	"math"
	"time"
)

// LedgerEntry is the persisted spend for one budget period.
type LedgerEntry struct {
	PeriodKey          string    `json:"period_key"`
	AccumulatedCostUSD float64   `json:"accumulated_cost_usd"`
	CapUSD             float64   `json:"cap_usd"`
	RequestCount       int64     `json:"request_count"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Remaining returns the budget left in the period, rounded to the
// nano-dollar. It is negative once the period has overshot its cap.
func (e LedgerEntry) Remaining() float64 {
	return math.Round((e.CapUSD-e.AccumulatedCostUSD)*1e9) / 1e9
}

// UsageStats is the budget snapshot returned with every recommendation.
type UsageStats struct {
	Period             string  `json:"period"`
	MonthlyCostUSD     float64 `json:"monthly_cost_usd"`
	MonthlyBudgetUSD   float64 `json:"monthly_budget_usd"`
	RemainingBudgetUSD float64 `json:"remaining_budget_usd"`
	DailyRequests      int64   `json:"daily_requests"`
	DailyLimit         int64   `json:"daily_limit"`
	HourlyRequests     int64   `json:"hourly_requests"`
	HourlyLimit        int64   `json:"hourly_limit"`
	CanMakeRequest     bool    `json:"can_make_request"`
}
