package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/stylist/pkg/budget"
	"github.com/pario-ai/stylist/pkg/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recommendation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sched, err := newScheduler(a)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Materialize the current period before taking traffic.
			if err := budget.RolloverJob(a.ledger, logger)(ctx); err != nil {
				return err
			}

			srv := server.New(cfg.Listen, a.service, a.gateway, a.metrics, logger)
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(ctx)
			})
			g.Go(func() error {
				sched.Start()
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				sched.Stop(stopCtx)
				return nil
			})

			logger.Info("starting stylist", "config", *configPath, "model", a.client.Model(), "cap_usd", cfg.Budget.MonthlyCapUSD)
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override listen address")
	return cmd
}

type maintenanceJob struct {
	name     string
	schedule string
	run      func(context.Context) error
}

func newScheduler(a *app) (*budget.Scheduler, error) {
	m := a.cfg.Maintenance
	jobs := []maintenanceJob{
		{"ledger-rollover", m.RolloverSchedule, budget.RolloverJob(a.ledger, a.logger)},
		{"usage-prune", m.PruneSchedule, budget.PruneJob(a.tracker, m.RetentionDays, a.logger)},
	}
	if a.cache != nil {
		// Entries carry their own TTL; any positive retention prunes expired ones.
		jobs = append(jobs, maintenanceJob{"cache-prune", m.PruneSchedule, budget.PruneJob(a.cache, 1, a.logger)})
	}
	if a.auditor != nil {
		jobs = append(jobs, maintenanceJob{"audit-prune", m.PruneSchedule, budget.PruneJob(a.auditor, a.auditor.RetentionDays(), a.logger)})
	}

	s := budget.NewScheduler(a.logger)
	for _, j := range jobs {
		if err := s.Add(j.name, j.schedule, j.run); err != nil {
			return nil, fmt.Errorf("schedule maintenance: %w", err)
		}
	}
	return s, nil
}
