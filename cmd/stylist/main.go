package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "stylist",
		Short:        "Budget-capped outfit recommendations from your wardrobe",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "stylist.yaml", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newSuggestCmd(&configPath),
		newUsageCmd(&configPath),
		newBudgetCmd(&configPath),
		newCacheCmd(&configPath),
		newAuditCmd(&configPath),
		newSavedCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
