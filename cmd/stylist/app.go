package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pario-ai/stylist/pkg/audit"
	"github.com/pario-ai/stylist/pkg/budget"
	cachepkg "github.com/pario-ai/stylist/pkg/cache/sqlite"
	"github.com/pario-ai/stylist/pkg/config"
	"github.com/pario-ai/stylist/pkg/llm"
	"github.com/pario-ai/stylist/pkg/metrics"
	"github.com/pario-ai/stylist/pkg/outfits"
	"github.com/pario-ai/stylist/pkg/prompt"
	"github.com/pario-ai/stylist/pkg/recommend"
	"github.com/pario-ai/stylist/pkg/tracker"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

// app holds every component built from one config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	ledger   *budget.SQLiteLedger
	tracker  *tracker.SQLiteTracker
	enforcer *budget.Enforcer
	client   llm.Client
	cache    *cachepkg.Cache
	auditor  *audit.Logger
	metrics  *metrics.Collector
	service  *recommend.Service
	gateway  *outfits.Gateway

	closers []func() error
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	if cfg.LLM.Provider == "demo" {
		return llm.DemoClient{}
	}
	return llm.NewHTTPClient(cfg.LLM, llm.WithLogger(logger))
}

func newSource(cfg config.WardrobeConfig) (wardrobe.Source, func() error, error) {
	if cfg.Source == "file" {
		return wardrobe.NewFileSource(cfg.File), func() error { return nil }, nil
	}
	src, err := wardrobe.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return src, src.Close, nil
}

// openEnforcer opens the ledger and tracker without the rest of the app.
func openEnforcer(cfg *config.Config, logger *slog.Logger) (*budget.Enforcer, func(), error) {
	ledger, err := budget.NewSQLiteLedger(cfg.DBPath, cfg.Budget.MonthlyCapUSD)
	if err != nil {
		return nil, nil, fmt.Errorf("init ledger: %w", err)
	}
	tr, err := tracker.New(cfg.DBPath)
	if err != nil {
		_ = ledger.Close()
		return nil, nil, fmt.Errorf("init tracker: %w", err)
	}
	limits := budget.Limits{Daily: cfg.Budget.DailyRequests, Hourly: cfg.Budget.HourlyRequests}
	return budget.NewEnforcer(ledger, tr, limits, logger), func() {
		_ = tr.Close()
		_ = ledger.Close()
	}, nil
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	var err error
	if a.ledger, err = budget.NewSQLiteLedger(cfg.DBPath, cfg.Budget.MonthlyCapUSD); err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	a.closers = append(a.closers, a.ledger.Close)

	if a.tracker, err = tracker.New(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("init tracker: %w", err)
	}
	a.closers = append(a.closers, a.tracker.Close)

	limits := budget.Limits{Daily: cfg.Budget.DailyRequests, Hourly: cfg.Budget.HourlyRequests}
	a.enforcer = budget.NewEnforcer(a.ledger, a.tracker, limits, logger)
	a.client = newClient(cfg, logger)

	src, closeSrc, err := newSource(cfg.Wardrobe)
	if err != nil {
		return nil, fmt.Errorf("init wardrobe: %w", err)
	}
	a.closers = append(a.closers, closeSrc)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics, nil)
	}

	opts := []recommend.Option{
		recommend.WithBuilder(prompt.Builder{Model: a.client.Model(), MaxItems: cfg.Prompt.MaxItems}),
		recommend.WithPricing(llm.NewPricing(cfg.LLM.Pricing), cfg.LLM.MaxTokens),
		recommend.WithMetrics(a.metrics),
		recommend.WithLogger(logger),
	}
	if cfg.Cache.Enabled {
		if a.cache, err = cachepkg.New(cfg.DBPath, cfg.Cache.TTL); err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		a.closers = append(a.closers, a.cache.Close)
		opts = append(opts, recommend.WithCache(a.cache))
	}
	if cfg.Audit.Enabled {
		if a.auditor, err = audit.New(cfg.Audit); err != nil {
			return nil, fmt.Errorf("init audit: %w", err)
		}
		a.closers = append(a.closers, a.auditor.Close)
		opts = append(opts, recommend.WithAuditor(a.auditor))
	}
	a.service = recommend.NewService(src, a.client, a.enforcer, opts...)

	store, err := outfits.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init saved outfits: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	a.gateway = outfits.NewGateway(store, outfits.NewNamer(a.client, a.enforcer, logger))
	ok = true
	return a, nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
