// Package recommend turns a styling request into a validated outfit
// recommendation while keeping model spend inside the monthly budget.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/stylist/pkg/llm"
	"github.com/pario-ai/stylist/pkg/metrics"
	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/prompt"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

// Budget admits and meters model calls. *budget.Enforcer implements it.
type Budget interface {
	Check(ctx context.Context, estimatedCost float64) error
	Record(ctx context.Context, rec models.UsageRecord) (models.UsageStats, error)
	Usage(ctx context.Context) (models.UsageStats, error)
}

// Cache stores raw model responses by prompt hash.
type Cache interface {
	Get(ctx context.Context, promptHash, model string) (string, bool)
	Put(ctx context.Context, promptHash, model, response string) error
}

// Auditor records finished requests.
type Auditor interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// Request is one styling request.
type Request struct {
	Text   string          `json:"request"`
	Filter wardrobe.Filter `json:"filter"`
}

// Service orchestrates a recommendation. It is safe for concurrent use.
type Service struct {
	wardrobe  wardrobe.Source
	client    llm.Client
	budget    Budget
	builder   prompt.Builder
	pricing   llm.Pricing
	maxTokens int
	cache     Cache
	auditor   Auditor
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBuilder sets the prompt builder.
func WithBuilder(b prompt.Builder) Option { return func(s *Service) { s.builder = b } }

// WithPricing sets the price table and completion size used for pre-flight estimates.
func WithPricing(p llm.Pricing, maxTokens int) Option {
	return func(s *Service) { s.pricing, s.maxTokens = p, maxTokens }
}

// WithCache enables response caching.
func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

// WithAuditor enables the audit trail.
func WithAuditor(a Auditor) Option { return func(s *Service) { s.auditor = a } }

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService wires the orchestrator.
func NewService(src wardrobe.Source, client llm.Client, b Budget, opts ...Option) *Service {
	s := &Service{
		wardrobe:  src,
		client:    client,
		budget:    b,
		builder:   prompt.Builder{Model: client.Model()},
		pricing:   llm.NewPricing(nil),
		maxTokens: 800,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "recommend")
	return s
}

// Usage returns the current budget snapshot.
func (s *Service) Usage(ctx context.Context) (models.UsageStats, error) {
	stats, err := s.budget.Usage(ctx)
	if err == nil {
		s.metrics.SetBudget(stats)
	}
	return stats, err
}

// Suggest runs one request through the stages idle, budget_checked,
// prompted, awaiting_model, validating and assembled. A failure ends the
// request in one of the terminal states; no stage is re-entered.
func (s *Service) Suggest(ctx context.Context, req Request) (*models.OutfitRecommendation, error) {
	r := &run{
		svc:   s,
		id:    uuid.NewString(),
		text:  strings.TrimSpace(req.Text),
		start: s.now(),
		state: StateIdle,
	}
	r.logger = s.logger.With("request_id", r.id)
	rec, err := r.execute(ctx, req.Filter)
	r.finish(ctx, rec, err)
	return rec, err
}

// State is a stage of one request.
type State string

const (
	StateIdle             State = "idle"
	StateBudgetChecked    State = "budget_checked"
	StatePrompted         State = "prompted"
	StateAwaitingModel    State = "awaiting_model"
	StateValidating       State = "validating"
	StateAssembled        State = "assembled"
	StateInputRejected    State = "input_rejected"
	StateWardrobeFailed   State = "wardrobe_failed"
	StateBudgetRejected   State = "budget_rejected"
	StateLedgerFailed     State = "ledger_failed"
	StateClientFailed     State = "client_failed"
	StateValidationFailed State = "validation_failed"
)

// Terminal reports whether no further transition is possible.
func (st State) Terminal() bool {
	switch st {
	case StateAssembled, StateInputRejected, StateWardrobeFailed, StateBudgetRejected,
		StateLedgerFailed, StateClientFailed, StateValidationFailed:
		return true
	}
	return false
}

type run struct {
	svc    *Service
	id     string
	text   string
	start  time.Time
	state  State
	logger *slog.Logger

	payload prompt.Payload
	resp    *llm.Response
	spent   float64
	items   int
}

func (r *run) to(next State, attrs ...any) {
	if r.state.Terminal() {
		panic(fmt.Sprintf("recommend: transition from terminal state %s to %s", r.state, next))
	}
	level := slog.LevelDebug
	if next.Terminal() {
		level = slog.LevelInfo
	}
	r.logger.Log(context.Background(), level, "request state",
		append([]any{"from", r.state, "to", next}, attrs...)...)
	r.state = next
}

func (r *run) execute(ctx context.Context, filter wardrobe.Filter) (*models.OutfitRecommendation, error) {
	s := r.svc
	if r.text == "" {
		r.to(StateInputRejected)
		return nil, ErrEmptyRequest
	}

	items, err := s.wardrobe.Items(ctx, filter)
	if err != nil {
		r.to(StateWardrobeFailed, "error", err)
		return nil, fmt.Errorf("load wardrobe: %w", err)
	}
	idx := wardrobe.Build(items)
	r.payload, err = s.builder.Build(r.text, idx.All())
	if err != nil {
		r.to(StateInputRejected, "error", err)
		return nil, err
	}

	// The estimate covers the rendered prompt and is not reserved.
	estimate := s.pricing.Estimate(s.client.Model(), len(r.payload.System)+len(r.payload.User), s.maxTokens)
	if err := s.budget.Check(ctx, estimate); err != nil {
		r.failBudget(err)
		return nil, err
	}
	r.to(StateBudgetChecked, "estimated_cost_usd", estimate)
	r.to(StatePrompted, "items", idx.Len(), "truncated", r.payload.Truncated)

	if idx.Len() == 0 {
		// Nothing could resolve, so the model is not called.
		r.to(StateValidationFailed, "error", ErrNoValidItems)
		return nil, fmt.Errorf("%w: wardrobe is empty", ErrNoValidItems)
	}

	cached := false
	if s.cache != nil {
		if content, ok := s.cache.Get(ctx, r.payload.Hash, s.client.Model()); ok {
			cached = true
			r.resp = &llm.Response{Content: content, Model: s.client.Model()}
		}
		s.metrics.RecordCache(cached)
	}

	var stats models.UsageStats
	if !cached {
		r.to(StateAwaitingModel)
		kept := make([]models.ClothingItemRef, 0, len(r.payload.CandidateIDs))
		for _, id := range r.payload.CandidateIDs {
			it, _ := idx.Lookup(id)
			kept = append(kept, it)
		}
		resp, err := s.client.Complete(ctx, llm.Request{
			Messages: r.payload.Messages(),
			JSON:     true,
			Items:    kept,
		})
		if err != nil {
			r.recordFailedCall(ctx, err)
			r.to(StateClientFailed, "error", err)
			return nil, err
		}
		r.resp = billed(resp)
		s.metrics.RecordAttempts(r.resp.Model, "success", r.resp.Attempts)

		// Billed calls are recorded before validation so a response that
		// fails the schema still counts against the budget.
		stats, err = r.record(ctx, r.resp.Model, r.resp.Usage, r.resp.BilledCostUSD, r.resp.Attempts, "completed")
		if err != nil {
			r.to(StateLedgerFailed, "error", err)
			return nil, err
		}
	} else if stats, err = s.budget.Usage(ctx); err != nil {
		r.to(StateLedgerFailed, "error", err)
		return nil, err
	}
	s.metrics.SetBudget(stats)

	r.to(StateValidating, "cached", cached)
	rec, report, err := Assemble(r.resp.Content, idx)
	if len(report.DroppedIDs) > 0 {
		s.metrics.RecordHallucinated(len(report.DroppedIDs))
		r.logger.Warn("dropped unknown items", "ids", report.DroppedIDs)
	}
	if err != nil {
		r.to(StateValidationFailed, "error", err)
		return nil, err
	}

	if s.cache != nil && !cached {
		if err := s.cache.Put(ctx, r.payload.Hash, s.client.Model(), r.resp.Content); err != nil {
			r.logger.Warn("cache put failed", "error", err)
		}
	}

	rec.Metadata = models.RecommendationMetadata{
		RequestID:     r.id,
		Model:         r.resp.Model,
		CostUSD:       r.resp.CostUSD,
		BilledCostUSD: r.resp.BilledCostUSD,
		TokensUsed:    r.resp.Usage.TotalTokens,
		Attempts:      r.resp.Attempts,
		Cached:        cached,
		Truncated:     r.payload.Truncated,
		UsageStats:    stats,
	}
	r.items = len(rec.Outfit.Slots())
	r.to(StateAssembled, "confidence", rec.Confidence, "items", r.items, "cost_usd", rec.Metadata.CostUSD)
	return rec, nil
}

// billed returns a copy of resp whose billed cost is never below the cost
// of the attempt that succeeded.
func billed(resp *llm.Response) *llm.Response {
	out := *resp
	if out.BilledCostUSD < out.CostUSD {
		out.BilledCostUSD = out.CostUSD
	}
	return &out
}

func (r *run) failBudget(err error) {
	switch Classify(err) {
	case CategoryBudgetExceeded, CategoryRateLimited:
		r.to(StateBudgetRejected, "error", err)
	default:
		r.to(StateLedgerFailed, "error", err)
	}
}

// record meters a model call. It is detached from the caller's context:
// a disconnect must not skip billing for a call the provider answered.
func (r *run) record(ctx context.Context, model string, usage models.Usage, cost float64, attempts int, outcome string) (models.UsageStats, error) {
	s := r.svc
	r.spent += cost
	s.metrics.RecordSpend(model, models.PurposeRecommend, cost, usage.TotalTokens)
	return s.budget.Record(context.WithoutCancel(ctx), models.UsageRecord{
		RequestID:        r.id,
		Model:            model,
		Purpose:          models.PurposeRecommend,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CostUSD:          cost,
		Attempts:         attempts,
		Outcome:          outcome,
		CreatedAt:        r.svc.now().UTC(),
	})
}

func (r *run) recordFailedCall(ctx context.Context, err error) {
	var cerr *llm.Error
	if !errors.As(err, &cerr) {
		return
	}
	r.svc.metrics.RecordAttempts(r.svc.client.Model(), string(cerr.Kind), cerr.Attempts)
	if cerr.BilledCostUSD <= 0 {
		return
	}
	if _, rerr := r.record(ctx, r.svc.client.Model(), models.Usage{}, cerr.BilledCostUSD, cerr.Attempts, string(cerr.Kind)); rerr != nil {
		r.logger.Error("recording billed failure", "error", rerr, "cost_usd", cerr.BilledCostUSD)
	}
}

func (r *run) finish(ctx context.Context, rec *models.OutfitRecommendation, err error) {
	s := r.svc
	elapsed := s.now().Sub(r.start)
	s.metrics.RecordRecommendation(string(r.state), elapsed)
	if s.auditor == nil {
		return
	}

	entry := models.AuditEntry{
		RequestID:   r.id,
		Model:       s.client.Model(),
		RequestText: r.text,
		Prompt:      r.payload.User,
		Outcome:     string(r.state),
		CostUSD:     r.spent,
		LatencyMs:   elapsed.Milliseconds(),
		CreatedAt:   r.start.UTC(),
	}
	if r.resp != nil {
		entry.Model = r.resp.Model
		entry.Response = r.resp.Content
		entry.TokensUsed = r.resp.Usage.TotalTokens
	}
	if rec != nil {
		entry.Confidence = string(rec.Confidence)
		entry.ItemCount = r.items
	}
	if err != nil && r.resp == nil {
		entry.Response = err.Error()
	}
	if aerr := s.auditor.Log(context.WithoutCancel(ctx), entry); aerr != nil {
		r.logger.Warn("audit log failed", "error", aerr)
	}
}
