package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pario-ai/stylist/pkg/budget"
	"github.com/pario-ai/stylist/pkg/config"
	"github.com/pario-ai/stylist/pkg/llm"
	"github.com/pario-ai/stylist/pkg/metrics"
	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/outfits"
	"github.com/pario-ai/stylist/pkg/recommend"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

type stubClient struct {
	content string
	cost    float64
	err     error
}

func (c stubClient) Model() string { return "gpt-3.5-turbo" }

func (c stubClient) Complete(context.Context, llm.Request) (*llm.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Content: c.content, Model: "gpt-3.5-turbo", CostUSD: c.cost, BilledCostUSD: c.cost, Attempts: 1}, nil
}

const outfitJSON = `{"outfit":{"top":{"id":1,"reason":"bright"},"bottom":{"id":2,"reason":"neutral"},"description":"Red on black"},"confidence":"high"}`

type fixture struct {
	srv    *Server
	ledger *budget.MemoryLedger
}

func setup(t *testing.T, client llm.Client) fixture {
	t.Helper()
	items := wardrobe.Static{
		{ID: 1, Category: models.CategoryShirt, Color: "red", Season: "summer"},
		{ID: 2, Category: models.CategoryPants, Color: "black", Season: "all-season"},
	}
	ledger := budget.NewMemoryLedger(50)
	m := metrics.NewCollector(config.MetricsConfig{Namespace: "test"}, nil)
	svc := recommend.NewService(items, client,
		budget.NewEnforcer(ledger, nil, budget.Limits{}, nil),
		recommend.WithMetrics(m))

	store, err := outfits.NewStore(filepath.Join(t.TempDir(), "outfits.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return fixture{srv: New(":0", svc, outfits.NewGateway(store, nil), m, nil), ledger: ledger}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error
}

func TestSuggest(t *testing.T) {
	f := setup(t, stubClient{content: outfitJSON, cost: 0.002})

	rec := do(t, f.srv, http.MethodPost, "/api/outfits/suggest", `{"request":"summer picnic","season":"summer"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out models.OutfitRecommendation
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Outfit.Top == nil || out.Outfit.Top.Item.ID != 1 {
		t.Errorf("unexpected top: %+v", out.Outfit.Top)
	}
	if out.Confidence != models.ConfidenceHigh {
		t.Errorf("expected high confidence, got %s", out.Confidence)
	}
	if out.Metadata.UsageStats.MonthlyBudgetUSD != 50 {
		t.Errorf("expected usage stats in metadata, got %+v", out.Metadata.UsageStats)
	}
}

func TestSuggestErrors(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		body   string
		status int
		code   string
	}{
		{"empty", stubClient{content: outfitJSON}, `{"request":"   "}`, http.StatusBadRequest, "empty_request"},
		{"bad body", stubClient{content: outfitJSON}, `{`, http.StatusBadRequest, "invalid_request"},
		{"schema", stubClient{content: "no idea"}, `{"request":"gala"}`, http.StatusBadGateway, "schema_mismatch"},
		{"no items", stubClient{content: `{"outfit":{"top":{"id":9}}}`}, `{"request":"gala"}`, http.StatusUnprocessableEntity, "no_valid_items"},
		{"timeout", stubClient{err: &llm.Error{Kind: llm.KindTimeout}}, `{"request":"gala"}`, http.StatusGatewayTimeout, "timeout"},
		{"provider 429", stubClient{err: &llm.Error{Kind: llm.KindRateLimited, StatusCode: 429}}, `{"request":"gala"}`, http.StatusBadGateway, "provider_rate_limited"},
		{"provider", stubClient{err: &llm.Error{Kind: llm.KindProvider, StatusCode: 500}}, `{"request":"gala"}`, http.StatusBadGateway, "provider_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.client)
			rec := do(t, f.srv, http.MethodPost, "/api/outfits/suggest", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, got.Code)
			}
		})
	}
}

func TestSuggestBudgetExceeded(t *testing.T) {
	f := setup(t, stubClient{content: outfitJSON})
	f.ledger.Seed(f.ledger.CurrentPeriodKey(), 50.70)

	rec := do(t, f.srv, http.MethodPost, "/api/outfits/suggest", `{"request":"gala"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != "budget_exceeded" {
		t.Errorf("unexpected code %s", body.Code)
	}
	if body.RemainingBudgetUSD == nil || *body.RemainingBudgetUSD != -0.70 {
		t.Errorf("expected remaining -0.70, got %v", body.RemainingBudgetUSD)
	}
	if !strings.Contains(body.Message, "-0.70") {
		t.Errorf("message should include remaining budget: %q", body.Message)
	}
}

func TestUsage(t *testing.T) {
	f := setup(t, stubClient{})
	f.ledger.Seed(f.ledger.CurrentPeriodKey(), 12.5)

	rec := do(t, f.srv, http.MethodGet, "/api/outfits/usage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats models.UsageStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.RemainingBudgetUSD != 37.5 || !stats.CanMakeRequest {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestSavedOutfitsLifecycle(t *testing.T) {
	f := setup(t, stubClient{})
	body := `{"outfit":{"top":{"role":"top","item":{"id":1,"category":"shirt"}},"description":"Red on black"},"gender":"male","original_request":"gala"}`

	rec := do(t, f.srv, http.MethodPost, "/api/outfits/save", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved saveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	if saved.ID == 0 || !strings.HasPrefix(saved.Name, "Outfit ") {
		t.Errorf("unexpected save response: %+v", saved)
	}

	rec = do(t, f.srv, http.MethodGet, "/api/outfits/saved", "")
	var list []models.SavedOutfit
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Gender != "male" || list[0].TopID == nil || *list[0].TopID != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	path := "/api/outfits/saved/" + strconv.FormatInt(saved.ID, 10)
	if rec := do(t, f.srv, http.MethodDelete, path, ""); rec.Code != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", rec.Code)
	}
	if rec := do(t, f.srv, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
	if rec := do(t, f.srv, http.MethodDelete, "/api/outfits/saved/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestSaveRejectsGender(t *testing.T) {
	f := setup(t, stubClient{})
	rec := do(t, f.srv, http.MethodPost, "/api/outfits/save", `{"outfit":{},"gender":"robot"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t, stubClient{content: outfitJSON})
	if rec := do(t, f.srv, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}

	do(t, f.srv, http.MethodPost, "/api/outfits/suggest", `{"request":"gala"}`)
	rec := do(t, f.srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_recommendations_total{outcome="assembled"} 1`) {
		t.Errorf("metrics missing recommendation count:\n%s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := setup(t, stubClient{})
	if rec := do(t, f.srv, http.MethodGet, "/api/outfits/suggest", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
