package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pario-ai/stylist/pkg/budget"
	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/recommend"
)

func formatRecommendation(rec *models.OutfitRecommendation) string {
	var b strings.Builder
	for _, s := range rec.Outfit.Slots() {
		fmt.Fprintf(&b, "%s: #%d %s %s", s.Role, s.Item.ID, s.Item.Color, s.Item.Category)
		if s.Reason != "" {
			fmt.Fprintf(&b, " (%s)", s.Reason)
		}
		b.WriteString("\n")
	}
	if rec.Outfit.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", rec.Outfit.Description)
	}
	if rec.Outfit.StylingTips != "" {
		fmt.Fprintf(&b, "Tips: %s\n", rec.Outfit.StylingTips)
	}
	fmt.Fprintf(&b, "\nConfidence: %s. Cost $%.6f, $%.2f left this month.\n",
		rec.Confidence, rec.Metadata.CostUSD, rec.Metadata.UsageStats.RemainingBudgetUSD)
	return b.String()
}

func formatFailure(err error) string {
	cat := recommend.Classify(err)
	var rej *budget.RejectedError
	if errors.As(err, &rej) {
		return fmt.Sprintf("%s: monthly cap of $%.2f reached ($%.2f remaining); resets next month", cat, rej.CapUSD, rej.RemainingUSD)
	}
	if cat.Retryable() {
		return fmt.Sprintf("%s: %v (try again)", cat, err)
	}
	return fmt.Sprintf("%s: %v", cat, err)
}

func formatUsage(s models.UsageStats) string {
	return fmt.Sprintf("Period %s: $%.4f of $%.2f spent, $%.4f remaining.\nRequests today: %d (limit %d), this hour: %d (limit %d).\nCan make request: %t\n",
		s.Period, s.MonthlyCostUSD, s.MonthlyBudgetUSD, s.RemainingBudgetUSD,
		s.DailyRequests, s.DailyLimit, s.HourlyRequests, s.HourlyLimit, s.CanMakeRequest)
}

func formatHistory(entries []models.LedgerEntry) string {
	if len(entries) == 0 {
		return "No budget periods recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %10s %12s %12s %6s\n", "Period", "Cap", "Spent", "Remaining", "Calls")
	b.WriteString(strings.Repeat("-", 52) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-8s %10.2f %12.4f %12.4f %6d\n",
			e.PeriodKey, e.CapUSD, e.AccumulatedCostUSD, e.Remaining(), e.RequestCount)
	}
	return b.String()
}

func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	var total float64
	fmt.Fprintf(&b, "%-25s %-10s %8s %10s %12s\n", "Model", "Purpose", "Calls", "Tokens", "Cost")
	b.WriteString(strings.Repeat("-", 69) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-25s %-10s %8d %10d %12.6f\n",
			r.Model, r.Purpose, r.RequestCount, r.TotalTokens, r.TotalCostUSD)
		total += r.TotalCostUSD
	}
	fmt.Fprintf(&b, "%-56s %12.6f\n", "Total", total)
	return b.String()
}

func formatSaved(list []models.SavedOutfit) string {
	if len(list) == 0 {
		return "No saved outfits."
	}
	var b strings.Builder
	for _, o := range list {
		fmt.Fprintf(&b, "#%d %s (%s, %s)", o.ID, o.Name, o.Gender, o.CreatedAt.Format("2006-01-02"))
		if o.OriginalRequest != "" {
			fmt.Fprintf(&b, " for %q", o.OriginalRequest)
		}
		b.WriteString("\n")
	}
	return b.String()
}
