package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pario-ai/stylist/pkg/models"
)

func newUsageCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show spend and request counts for the current period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			enf, closeFn, err := openEnforcer(cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := enf.Usage(cmd.Context())
			if err != nil {
				return err
			}
			printUsage(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func printUsage(w io.Writer, s models.UsageStats) {
	fmt.Fprintf(w, "Period:     %s\n", s.Period)
	fmt.Fprintf(w, "Spent:      $%.4f of $%.2f\n", s.MonthlyCostUSD, s.MonthlyBudgetUSD)
	fmt.Fprintf(w, "Remaining:  $%.4f\n", s.RemainingBudgetUSD)
	fmt.Fprintf(w, "Today:      %s\n", formatLimit(s.DailyRequests, s.DailyLimit))
	fmt.Fprintf(w, "This hour:  %s\n", formatLimit(s.HourlyRequests, s.HourlyLimit))
	fmt.Fprintf(w, "Can request: %t\n", s.CanMakeRequest)
}

func formatLimit(n, limit int64) string {
	if limit <= 0 {
		return fmt.Sprintf("%d requests (no limit)", n)
	}
	return fmt.Sprintf("%d / %d requests", n, limit)
}
