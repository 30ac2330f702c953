package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/stylist/pkg/budget"
	"github.com/pario-ai/stylist/pkg/llm"
	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/prompt"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

type fakeClient struct {
	mu      sync.Mutex
	content string
	cost    float64
	err     error
	calls   int
	last    llm.Request
	hook    func(ctx context.Context)
}

func (f *fakeClient) Model() string { return "gpt-3.5-turbo" }

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.hook != nil {
		f.hook(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{
		Content:       f.content,
		Model:         "gpt-3.5-turbo",
		Usage:         models.Usage{PromptTokens: 900, CompletionTokens: 100, TotalTokens: 1000},
		CostUSD:       f.cost,
		BilledCostUSD: f.cost,
		Attempts:      1,
	}, nil
}

type memAuditor struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (a *memAuditor) Log(_ context.Context, e models.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func closet() wardrobe.Static {
	return wardrobe.Static{
		{ID: 1, Category: models.CategoryShirt, Color: "red", ClothingType: "t-shirt"},
		{ID: 2, Category: models.CategoryPants, Color: "black", ClothingType: "jeans"},
		{ID: 3, Category: models.CategoryHoodie, Color: "grey"},
	}
}

const redBlack = `{
  "outfit": {
    "top": {"id": 1, "reason": "red pops"},
    "bottom": {"id": 2, "reason": "black grounds it"},
    "description": "Red and black",
    "styling_tips": "Roll the sleeves"
  },
  "alternatives": [{"top_id": 3, "bottom_id": 2, "reason": "cosier"}],
  "confidence": "high"
}`

func newService(t *testing.T, src wardrobe.Source, c llm.Client, ledger *budget.MemoryLedger, opts ...Option) *Service {
	t.Helper()
	enf := budget.NewEnforcer(ledger, nil, budget.Limits{}, nil)
	return NewService(src, c, enf, opts...)
}

func TestSuggestHappyPath(t *testing.T) {
	client := &fakeClient{content: redBlack, cost: 0.0021}
	ledger := budget.NewMemoryLedger(5)
	audit := &memAuditor{}
	svc := newService(t, closet(), client, ledger, WithAuditor(audit))

	rec, err := svc.Suggest(context.Background(), Request{Text: "  casual date night  "})
	require.NoError(t, err)

	require.NotNil(t, rec.Outfit.Top)
	require.NotNil(t, rec.Outfit.Bottom)
	assert.Equal(t, int64(1), rec.Outfit.Top.Item.ID)
	assert.Equal(t, "red", rec.Outfit.Top.Item.Color)
	assert.Equal(t, int64(2), rec.Outfit.Bottom.Item.ID)
	assert.Equal(t, models.ConfidenceHigh, rec.Confidence)
	assert.True(t, rec.RequestFulfilled)
	assert.Len(t, rec.Alternatives, 1)

	assert.Equal(t, 0.0021, rec.Metadata.CostUSD)
	assert.Equal(t, 1000, rec.Metadata.TokensUsed)
	assert.NotEmpty(t, rec.Metadata.RequestID)
	assert.InDelta(t, 5-0.0021, rec.Metadata.UsageStats.RemainingBudgetUSD, 1e-9)

	entry, err := ledger.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0021, entry.AccumulatedCostUSD)
	assert.Equal(t, int64(1), entry.RequestCount)

	assert.Len(t, client.last.Items, 3)
	assert.True(t, client.last.JSON)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, string(StateAssembled), audit.entries[0].Outcome)
	assert.Equal(t, "casual date night", audit.entries[0].RequestText)
	assert.Equal(t, 2, audit.entries[0].ItemCount)
}

func TestSuggestDropsUnknownItems(t *testing.T) {
	client := &fakeClient{content: `{"outfit":{"top":{"id":1,"reason":"x"},"bottom":{"id":99,"reason":"y"}},"confidence":"high"}`}
	svc := newService(t, closet(), client, budget.NewMemoryLedger(5))

	rec, err := svc.Suggest(context.Background(), Request{Text: "work"})
	require.NoError(t, err)
	assert.NotNil(t, rec.Outfit.Top)
	assert.Nil(t, rec.Outfit.Bottom)
	assert.Equal(t, models.ConfidenceMedium, rec.Confidence)
}

func TestSuggestNoValidItems(t *testing.T) {
	client := &fakeClient{content: `{"outfit":{"top":{"id":42},"bottom":{"id":"abc"}},"confidence":"high"}`, cost: 0.01}
	ledger := budget.NewMemoryLedger(5)
	svc := newService(t, closet(), client, ledger)

	_, err := svc.Suggest(context.Background(), Request{Text: "gym"})
	require.ErrorIs(t, err, ErrNoValidItems)
	assert.Equal(t, CategoryNoValidItems, Classify(err))

	entry, _ := ledger.Current(context.Background())
	assert.Equal(t, 0.01, entry.AccumulatedCostUSD)
}

func TestSuggestEmptyWardrobe(t *testing.T) {
	client := &fakeClient{content: redBlack}
	ledger := budget.NewMemoryLedger(5)
	svc := newService(t, wardrobe.Static{}, client, ledger)

	_, err := svc.Suggest(context.Background(), Request{Text: "anything"})
	require.ErrorIs(t, err, ErrNoValidItems)
	assert.Zero(t, client.calls)

	entry, _ := ledger.Current(context.Background())
	assert.Zero(t, entry.AccumulatedCostUSD)
}

func TestSuggestEmptyRequest(t *testing.T) {
	client := &fakeClient{content: redBlack}
	audit := &memAuditor{}
	svc := newService(t, closet(), client, budget.NewMemoryLedger(5), WithAuditor(audit))

	_, err := svc.Suggest(context.Background(), Request{Text: " \n\t "})
	require.ErrorIs(t, err, ErrEmptyRequest)
	assert.Equal(t, CategoryEmptyRequest, Classify(err))
	assert.Zero(t, client.calls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, string(StateInputRejected), audit.entries[0].Outcome)
}

func TestSuggestOvershootThenReject(t *testing.T) {
	client := &fakeClient{content: redBlack, cost: 1.20}
	ledger := budget.NewMemoryLedger(50)
	ledger.Seed(ledger.CurrentPeriodKey(), 49.50)
	svc := newService(t, closet(), client, ledger)

	rec, err := svc.Suggest(context.Background(), Request{Text: "wedding guest"})
	require.NoError(t, err)
	assert.Equal(t, 50.70, rec.Metadata.UsageStats.MonthlyCostUSD)
	assert.Equal(t, -0.70, rec.Metadata.UsageStats.RemainingBudgetUSD)
	assert.False(t, rec.Metadata.UsageStats.CanMakeRequest)

	_, err = svc.Suggest(context.Background(), Request{Text: "wedding guest"})
	require.ErrorIs(t, err, budget.ErrBudgetExceeded)
	assert.Equal(t, CategoryBudgetExceeded, Classify(err))
	assert.False(t, Classify(err).Retryable())
	assert.Equal(t, 1, client.calls)

	var rej *budget.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, -0.70, rej.RemainingUSD)
}

func TestSuggestSchemaMismatchStillBilled(t *testing.T) {
	client := &fakeClient{content: "Sorry, I can't help with that.", cost: 0.004}
	ledger := budget.NewMemoryLedger(5)
	audit := &memAuditor{}
	svc := newService(t, closet(), client, ledger, WithAuditor(audit))

	_, err := svc.Suggest(context.Background(), Request{Text: "party"})
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Equal(t, CategorySchemaMismatch, Classify(err))

	entry, _ := ledger.Current(context.Background())
	assert.Equal(t, 0.004, entry.AccumulatedCostUSD)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, string(StateValidationFailed), audit.entries[0].Outcome)
	assert.Equal(t, 0.004, audit.entries[0].CostUSD)
}

func TestSuggestClientErrorRecordsBilledCost(t *testing.T) {
	client := &fakeClient{err: &llm.Error{Kind: llm.KindMalformed, StatusCode: 200, Attempts: 1, BilledCostUSD: 0.03}}
	ledger := budget.NewMemoryLedger(5)
	svc := newService(t, closet(), client, ledger)

	_, err := svc.Suggest(context.Background(), Request{Text: "brunch"})
	require.ErrorIs(t, err, llm.ErrMalformed)
	assert.Equal(t, CategoryProviderError, Classify(err))

	entry, _ := ledger.Current(context.Background())
	assert.Equal(t, 0.03, entry.AccumulatedCostUSD)
}

func TestSuggestTimeoutNotBilled(t *testing.T) {
	client := &fakeClient{err: &llm.Error{Kind: llm.KindTimeout, Attempts: 3, Err: context.DeadlineExceeded}}
	ledger := budget.NewMemoryLedger(5)
	svc := newService(t, closet(), client, ledger)

	_, err := svc.Suggest(context.Background(), Request{Text: "hike"})
	assert.Equal(t, CategoryTimeout, Classify(err))
	assert.True(t, Classify(err).Retryable())

	entry, _ := ledger.Current(context.Background())
	assert.Zero(t, entry.AccumulatedCostUSD)
	assert.Zero(t, entry.RequestCount)
}

func TestSuggestCallerCancelStillRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeClient{content: redBlack, cost: 0.02, hook: func(context.Context) { cancel() }}
	ledger := budget.NewMemoryLedger(5)
	svc := newService(t, closet(), client, ledger)

	_, _ = svc.Suggest(ctx, Request{Text: "concert"})

	entry, err := ledger.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.02, entry.AccumulatedCostUSD)
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *mapCache) Get(_ context.Context, hash, model string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[hash+model]
	return v, ok
}

func (c *mapCache) Put(_ context.Context, hash, model, resp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[hash+model] = resp
	return nil
}

func TestSuggestCacheHitIsFree(t *testing.T) {
	client := &fakeClient{content: redBlack, cost: 0.05}
	ledger := budget.NewMemoryLedger(5)
	svc := newService(t, closet(), client, ledger, WithCache(&mapCache{m: map[string]string{}}))

	first, err := svc.Suggest(context.Background(), Request{Text: "picnic"})
	require.NoError(t, err)
	assert.False(t, first.Metadata.Cached)

	second, err := svc.Suggest(context.Background(), Request{Text: "picnic"})
	require.NoError(t, err)
	assert.True(t, second.Metadata.Cached)
	assert.Zero(t, second.Metadata.CostUSD)
	assert.Equal(t, 1, client.calls)

	entry, _ := ledger.Current(context.Background())
	assert.Equal(t, 0.05, entry.AccumulatedCostUSD)
}

func TestSuggestCacheSkipsInvalidResponse(t *testing.T) {
	client := &fakeClient{content: "not json"}
	cache := &mapCache{m: map[string]string{}}
	svc := newService(t, closet(), client, budget.NewMemoryLedger(5), WithCache(cache))

	_, err := svc.Suggest(context.Background(), Request{Text: "picnic"})
	require.Error(t, err)
	assert.Empty(t, cache.m)
}

func TestSuggestLedgerFailureFailsClosed(t *testing.T) {
	client := &fakeClient{content: redBlack}
	ledger := budget.NewMemoryLedger(5)
	svc := newService(t, closet(), client, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Suggest(ctx, Request{Text: "office"})
	require.ErrorIs(t, err, budget.ErrLedgerUnavailable)
	assert.Equal(t, CategoryLedgerUnavailable, Classify(err))
	assert.Zero(t, client.calls)
}

func TestSuggestDemoClient(t *testing.T) {
	svc := newService(t, closet(), llm.DemoClient{}, budget.NewMemoryLedger(5))

	rec, err := svc.Suggest(context.Background(), Request{Text: "casual"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Outfit.Top.Item.ID)
	assert.Equal(t, int64(2), rec.Outfit.Bottom.Item.ID)
	assert.Equal(t, models.ConfidenceMedium, rec.Confidence)
	assert.Zero(t, rec.Metadata.CostUSD)
}

func TestUsagePassthrough(t *testing.T) {
	ledger := budget.NewMemoryLedger(10)
	ledger.Seed(ledger.CurrentPeriodKey(), 2.5)
	svc := newService(t, closet(), &fakeClient{}, ledger)

	stats, err := svc.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7.5, stats.RemainingBudgetUSD)
	assert.True(t, stats.CanMakeRequest)
}

func TestStateTerminal(t *testing.T) {
	for _, st := range []State{StateAssembled, StateWardrobeFailed, StateBudgetRejected, StateLedgerFailed, StateClientFailed, StateValidationFailed, StateInputRejected} {
		assert.True(t, st.Terminal(), st)
	}
	for _, st := range []State{StateIdle, StateBudgetChecked, StatePrompted, StateAwaitingModel, StateValidating} {
		assert.False(t, st.Terminal(), st)
	}
}

type brokenSource struct{}

func (brokenSource) Items(context.Context, wardrobe.Filter) ([]models.ClothingItemRef, error) {
	return nil, errors.New("disk on fire")
}

func TestSuggestWardrobeFailure(t *testing.T) {
	client := &fakeClient{content: redBlack}
	audit := &memAuditor{}
	svc := newService(t, brokenSource{}, client, budget.NewMemoryLedger(5), WithAuditor(audit))

	_, err := svc.Suggest(context.Background(), Request{Text: "office"})
	require.Error(t, err)
	assert.Equal(t, CategoryInternal, Classify(err))
	assert.Zero(t, client.calls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, string(StateWardrobeFailed), audit.entries[0].Outcome)
}

func genericCloset() wardrobe.Static {
	return wardrobe.Static{
		{ID: 1, Category: models.CategoryTop, Color: "red"},
		{ID: 2, Category: models.CategoryBottom, Color: "black"},
	}
}

func TestSuggestGenericCategories(t *testing.T) {
	client := &fakeClient{content: `{"outfit":{"top":{"id":1,"reason":"bold"},"bottom":{"id":2,"reason":"neutral"}},"confidence":"high"}`, cost: 0.002}
	svc := newService(t, genericCloset(), client, budget.NewMemoryLedger(5))

	rec, err := svc.Suggest(context.Background(), Request{Text: "casual red outfit"})
	require.NoError(t, err)
	require.NotNil(t, rec.Outfit.Top)
	require.NotNil(t, rec.Outfit.Bottom)
	assert.Equal(t, models.RoleTop, rec.Outfit.Top.Role)
	assert.Equal(t, "red", rec.Outfit.Top.Item.Color)
	assert.Equal(t, "black", rec.Outfit.Bottom.Item.Color)
	assert.Equal(t, models.ConfidenceHigh, rec.Confidence)

	demo := newService(t, genericCloset(), llm.DemoClient{}, budget.NewMemoryLedger(5))
	rec, err = demo.Suggest(context.Background(), Request{Text: "casual red outfit"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Outfit.Top.Item.ID)
	assert.Equal(t, int64(2), rec.Outfit.Bottom.Item.ID)
}

// costOnlyClient reports the cost of the call without a billed total.
type costOnlyClient struct{ cost float64 }

func (costOnlyClient) Model() string { return "gpt-3.5-turbo" }

func (c costOnlyClient) Complete(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: redBlack, Model: "gpt-3.5-turbo", CostUSD: c.cost, Attempts: 1}, nil
}

func TestSuggestRecordsCostWithoutBilledTotal(t *testing.T) {
	ledger := budget.NewMemoryLedger(50)
	ledger.Seed(ledger.CurrentPeriodKey(), 49.50)
	svc := newService(t, closet(), costOnlyClient{cost: 1.20}, ledger)

	rec, err := svc.Suggest(context.Background(), Request{Text: "gala"})
	require.NoError(t, err)
	assert.Equal(t, 1.20, rec.Metadata.CostUSD)
	assert.Equal(t, 1.20, rec.Metadata.BilledCostUSD)

	entry, err := ledger.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50.70, entry.AccumulatedCostUSD)
	assert.Equal(t, -0.70, entry.Remaining())

	_, err = svc.Suggest(context.Background(), Request{Text: "gala"})
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
}

type estimateRecorder struct {
	*budget.Enforcer
	estimate float64
}

func (b *estimateRecorder) Check(ctx context.Context, est float64) error {
	b.estimate = est
	return b.Enforcer.Check(ctx, est)
}

func TestSuggestEstimateCoversWardrobe(t *testing.T) {
	var items wardrobe.Static
	for i := int64(1); i <= 40; i++ {
		items = append(items, models.ClothingItemRef{ID: i, Category: models.CategoryShirt, Color: "navy", Style: "smart casual", Material: "cotton"})
	}
	b := &estimateRecorder{Enforcer: budget.NewEnforcer(budget.NewMemoryLedger(5), nil, budget.Limits{}, nil)}
	svc := NewService(items, &fakeClient{content: `{"outfit":{"top":{"id":1}}}`}, b)

	_, err := svc.Suggest(context.Background(), Request{Text: "office"})
	require.NoError(t, err)

	pricing := llm.NewPricing(nil)
	textOnly := pricing.Estimate("gpt-3.5-turbo", len("office")+len(prompt.SystemMessage), 800)
	assert.Greater(t, b.estimate, textOnly)
}
