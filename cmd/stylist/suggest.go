package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/recommend"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

const defaultTimeout = 2 * time.Minute

func newSuggestCmd(configPath *string) *cobra.Command {
	var (
		filter  wardrobe.Filter
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "suggest <request>",
		Short: "Recommend an outfit for a styling request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			rec, err := a.service.Suggest(ctx, recommend.Request{
				Text:   strings.Join(args, " "),
				Filter: filter,
			})
			if err != nil {
				cat := recommend.Classify(err)
				hint := "rephrase the request"
				if cat.Retryable() {
					hint = "try again"
				} else if cat == recommend.CategoryBudgetExceeded {
					hint = "wait until next month"
				}
				return fmt.Errorf("%s (%s): %w", cat, hint, err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			printRecommendation(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Season, "season", "", "only consider items for this season")
	cmd.Flags().StringVar(&filter.Style, "style", "", "only consider items with this style")
	cmd.Flags().StringVar(&filter.Category, "category", "", "only consider items in this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw recommendation as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "overall request timeout")
	return cmd
}

func printRecommendation(w io.Writer, rec *models.OutfitRecommendation) {
	for _, s := range rec.Outfit.Slots() {
		fmt.Fprintf(w, "%-10s #%-5d %s\n", strings.ToUpper(string(s.Role)), s.Item.ID, describeItem(s.Item))
		if s.Reason != "" {
			fmt.Fprintf(w, "           %s\n", s.Reason)
		}
	}
	if rec.Outfit.Description != "" {
		fmt.Fprintf(w, "\n%s\n", rec.Outfit.Description)
	}
	if rec.Outfit.StylingTips != "" {
		fmt.Fprintf(w, "Tips: %s\n", rec.Outfit.StylingTips)
	}
	for i, alt := range rec.Alternatives {
		var parts []string
		if alt.Top != nil {
			parts = append(parts, fmt.Sprintf("top #%d", alt.Top.ID))
		}
		if alt.Bottom != nil {
			parts = append(parts, fmt.Sprintf("bottom #%d", alt.Bottom.ID))
		}
		fmt.Fprintf(w, "Alternative %d: %s. %s\n", i+1, strings.Join(parts, " + "), alt.Reason)
	}
	md := rec.Metadata
	fmt.Fprintf(w, "\nConfidence: %s  Cost: $%.6f  Tokens: %d  Cached: %t\n", rec.Confidence, md.CostUSD, md.TokensUsed, md.Cached)
	fmt.Fprintf(w, "Budget: $%.2f of $%.2f spent, $%.2f remaining\n",
		md.UsageStats.MonthlyCostUSD, md.UsageStats.MonthlyBudgetUSD, md.UsageStats.RemainingBudgetUSD)
}

func describeItem(it models.ClothingItemRef) string {
	var parts []string
	for _, v := range []string{it.Color, it.ClothingType, string(it.Category), it.Name} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
