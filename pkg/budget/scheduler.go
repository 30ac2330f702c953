package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic maintenance jobs such as period rollover and
// usage pruning on standard five-field cron schedules (UTC).
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		logger:  logger.With("component", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a named job. An empty schedule disables the job.
func (s *Scheduler) Add(name, schedule string, job func(context.Context) error) error {
	if schedule == "" {
		s.logger.Info("job disabled", "job", name)
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, schedule, err)
	}

	id, err := s.cron.AddFunc(schedule, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	s.entries[name] = id
	s.mu.Unlock()
	s.logger.Info("job scheduled", "job", name, "schedule", schedule)
	return nil
}

// Next returns the next run time of a named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) run(name string, job func(context.Context) error) {
	start := time.Now()
	if err := job(s.ctx); err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.cancel()
}

// RolloverJob materializes the current period's ledger entry and logs the
// closing totals of the previous one.
func RolloverJob(l Ledger, logger *slog.Logger) func(context.Context) error {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		cur, err := l.Current(ctx)
		if err != nil {
			return fmt.Errorf("rollover: %w", err)
		}
		hist, err := l.History(ctx, 2)
		if err != nil {
			return fmt.Errorf("rollover: %w", err)
		}
		for _, e := range hist {
			if e.PeriodKey == cur.PeriodKey {
				continue
			}
			logger.Info("budget period closed",
				"period", e.PeriodKey,
				"spent_usd", e.AccumulatedCostUSD,
				"cap_usd", e.CapUSD,
				"requests", e.RequestCount,
			)
		}
		logger.Info("budget period open", "period", cur.PeriodKey, "cap_usd", cur.CapUSD)
		return nil
	}
}

// Pruner deletes records older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PruneJob deletes records older than the retention window.
func PruneJob(p Pruner, retentionDays int, logger *slog.Logger) func(context.Context) error {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		if retentionDays <= 0 {
			return nil
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		n, err := p.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		if n > 0 {
			logger.Info("pruned records", "count", n, "before", cutoff)
		}
		return nil
	}
}
