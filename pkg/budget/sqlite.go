package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/stylist/pkg/models"
)

// SQLiteLedger persists period entries in SQLite so spend survives restarts.
type SQLiteLedger struct {
	db     *sql.DB
	capNan int64
	now    func() time.Time

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

const createLedgerTable = `
CREATE TABLE IF NOT EXISTS budget_ledger (
	period_key TEXT PRIMARY KEY,
	accumulated_nanos INTEGER NOT NULL DEFAULT 0,
	cap_nanos INTEGER NOT NULL,
	request_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// NewSQLiteLedger opens (or creates) a ledger database with the given monthly cap.
func NewSQLiteLedger(dbPath string, capUSD float64, opts ...Option) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if _, err := db.Exec(createLedgerTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	o := buildOptions(opts)
	return &SQLiteLedger{db: db, capNan: toNanos(capUSD), now: o.now}, nil
}

// CurrentPeriodKey derives the active period from the ledger's clock.
func (l *SQLiteLedger) CurrentPeriodKey() string {
	return PeriodKey(l.now())
}

// CheckAvailable returns a *RejectedError when nothing is left in the current period.
func (l *SQLiteLedger) CheckAvailable(ctx context.Context, estimatedCost float64) error {
	e, err := l.Current(ctx)
	if err != nil {
		return err
	}
	return checkEntry(e, estimatedCost)
}

// Current returns the entry for the current period, creating it if needed.
// The configured cap always overrides the stored one.
func (l *SQLiteLedger) Current(ctx context.Context) (models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upsert(ctx, 0, false)
}

// RecordSpend atomically adds cost to the current period.
func (l *SQLiteLedger) RecordSpend(ctx context.Context, cost float64) (models.LedgerEntry, error) {
	if cost < 0 {
		return models.LedgerEntry{}, fmt.Errorf("record spend: negative cost %v", cost)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upsert(ctx, toNanos(cost), true)
}

func (l *SQLiteLedger) upsert(ctx context.Context, addNanos int64, countRequest bool) (models.LedgerEntry, error) {
	now := l.now().UTC()
	key := PeriodKey(now)
	var inc int64
	if countRequest {
		inc = 1
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return models.LedgerEntry{}, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO budget_ledger (period_key, accumulated_nanos, cap_nanos, request_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (period_key) DO UPDATE SET
			accumulated_nanos = accumulated_nanos + excluded.accumulated_nanos,
			cap_nanos = excluded.cap_nanos,
			request_count = request_count + excluded.request_count,
			updated_at = CASE WHEN excluded.request_count > 0 THEN excluded.updated_at ELSE updated_at END`,
		key, addNanos, l.capNan, inc, now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return models.LedgerEntry{}, unavailable("update", err)
	}

	e, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT period_key, accumulated_nanos, cap_nanos, request_count, updated_at
		 FROM budget_ledger WHERE period_key = ?`, key))
	if err != nil {
		return models.LedgerEntry{}, unavailable("read", err)
	}

	if err := tx.Commit(); err != nil {
		return models.LedgerEntry{}, unavailable("commit", err)
	}
	return e, nil
}

// History returns the most recent periods, newest first.
func (l *SQLiteLedger) History(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT period_key, accumulated_nanos, cap_nanos, request_count, updated_at
		 FROM budget_ledger ORDER BY period_key DESC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("history", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, unavailable("scan history", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("history", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (models.LedgerEntry, error) {
	var (
		e                  models.LedgerEntry
		accNanos, capNanos int64
		updated            int64
	)
	if err := s.Scan(&e.PeriodKey, &accNanos, &capNanos, &e.RequestCount, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, fmt.Errorf("ledger entry missing: %w", err)
		}
		return e, err
	}
	e.AccumulatedCostUSD = fromNanos(accNanos)
	e.CapUSD = fromNanos(capNanos)
	e.UpdatedAt = time.Unix(0, updated).UTC()
	return e, nil
}

// Close releases the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
