package outfits

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/stylist/pkg/llm"
	"github.com/pario-ai/stylist/pkg/models"
)

// Budget admits and meters naming calls. *budget.Enforcer implements it.
type Budget interface {
	Check(ctx context.Context, estimatedCost float64) error
	Record(ctx context.Context, rec models.UsageRecord) (models.UsageStats, error)
}

const (
	nameTemperature = 0.8
	nameMaxTokens   = 20
	maxNameLen      = 60
)

// Namer asks the model for a short display name. Naming never fails: any
// error, including a budget rejection, yields FallbackName.
type Namer struct {
	client llm.Client
	budget Budget
	logger *slog.Logger
	now    func() time.Time
}

// NewNamer creates a Namer. A nil client always falls back.
func NewNamer(client llm.Client, b Budget, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		client: client,
		budget: b,
		logger: logger.With("component", "outfits"),
		now:    time.Now,
	}
}

// FallbackName is the name used when the model is unavailable.
func FallbackName(t time.Time) string {
	return "Outfit " + t.Format("Jan 02")
}

func namePrompt(originalRequest, description string) string {
	return fmt.Sprintf(`Generate a short, creative, and catchy name (2-4 words max) for this outfit:
Request: %s
Description: %s

Examples: "Summer Breeze", "Office Chic", "Casual Friday", "Date Night Glam"

Respond with ONLY the outfit name, nothing else.`, originalRequest, description)
}

// Name returns a display name for the outfit.
func (n *Namer) Name(ctx context.Context, originalRequest, description string) string {
	fallback := FallbackName(n.now())
	if n.client == nil || n.budget == nil {
		return fallback
	}
	if err := n.budget.Check(ctx, 0); err != nil {
		n.logger.Info("naming skipped", "reason", err)
		return fallback
	}

	temp, maxTokens := nameTemperature, nameMaxTokens
	resp, err := n.client.Complete(ctx, llm.Request{
		Messages:    []models.ChatMessage{{Role: "user", Content: namePrompt(originalRequest, description)}},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		if billed := llm.BilledCost(err); billed > 0 {
			n.record(ctx, models.UsageRecord{Model: n.client.Model(), CostUSD: billed, Outcome: "failed"})
		}
		n.logger.Warn("naming failed", "error", err)
		return fallback
	}
	n.record(ctx, models.UsageRecord{
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostUSD:          resp.BilledCostUSD,
		Attempts:         resp.Attempts,
		Outcome:          "completed",
	})

	name := cleanName(resp.Content)
	if name == "" {
		return fallback
	}
	return name
}

func (n *Namer) record(ctx context.Context, rec models.UsageRecord) {
	rec.RequestID = uuid.NewString()
	rec.Purpose = models.PurposeName
	rec.CreatedAt = n.now().UTC()
	if _, err := n.budget.Record(context.WithoutCancel(ctx), rec); err != nil {
		n.logger.Error("recording naming spend", "error", err, "cost_usd", rec.CostUSD)
	}
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.Trim(s, `"'`))
	if r := []rune(s); len(r) > maxNameLen {
		s = strings.TrimSpace(string(r[:maxNameLen]))
	}
	return s
}
