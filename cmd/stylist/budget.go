package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBudgetCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect the monthly spend ledger",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current period against its cap",
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

			entry, err := enf.Ledger().Current(cmd.Context())
			if err != nil {
				return err
			}
			state := "open"
			if entry.Remaining() <= 0 {
				state = "exhausted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Period %s is %s: $%.4f spent of $%.2f ($%.4f remaining, %d calls)\n",
				entry.PeriodKey, state, entry.AccumulatedCostUSD, entry.CapUSD, entry.Remaining(), entry.RequestCount)
			return nil
		},
	}

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past periods, newest first",
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

			entries, err := enf.Ledger().History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No budget periods recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PERIOD\tCAP\tSPENT\tREMAINING\tCALLS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t$%.2f\t$%.4f\t$%.4f\t%d\n",
					e.PeriodKey, e.CapUSD, e.AccumulatedCostUSD, e.Remaining(), e.RequestCount)
			}
			return w.Flush()
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 12, "number of periods to show")

	cmd.AddCommand(statusCmd, historyCmd)
	return cmd
}
