package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/stylist/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve stylist tools to MCP clients over stdio",
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

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return newMCPServer(a).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}

func newMCPServer(a *app) *mcp.Server {
	return mcp.New(mcp.Deps{
		Recommender: a.service,
		History:     a.ledger,
		Usage:       a.tracker,
		Saved:       a.gateway,
	}, version, a.logger)
}
