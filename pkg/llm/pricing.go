package llm

import (
	"strings"

	"github.com/pario-ai/stylist/pkg/models"
)

// FallbackModel is the model whose prices apply to unknown models.
const FallbackModel = "gpt-3.5-turbo"

// DefaultPricing lists per-1K token prices in USD.
var DefaultPricing = []models.ModelPricing{
	{Model: "gpt-3.5-turbo", PromptCost: 0.0005, CompletionCost: 0.0015},
	{Model: "gpt-4", PromptCost: 0.03, CompletionCost: 0.06},
	{Model: "gpt-4-turbo", PromptCost: 0.01, CompletionCost: 0.03},
}

// Pricing resolves model names to prices.
type Pricing struct {
	table map[string]models.ModelPricing
}

// NewPricing builds a table from DefaultPricing with overrides applied.
func NewPricing(overrides []models.ModelPricing) Pricing {
	p := Pricing{table: make(map[string]models.ModelPricing)}
	for _, m := range DefaultPricing {
		p.table[m.Model] = m
	}
	for _, m := range overrides {
		p.table[m.Model] = m
	}
	return p
}

// Lookup returns the prices for a model. Provider snapshot names such as
// "gpt-4-0613" match their longest known prefix; anything else falls back
// to FallbackModel.
func (p Pricing) Lookup(model string) models.ModelPricing {
	if m, ok := p.table[model]; ok {
		return m
	}
	best := ""
	for name := range p.table {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return p.table[best]
	}
	return p.table[FallbackModel]
}

// Cost returns the USD cost of a call.
func (p Pricing) Cost(model string, u models.Usage) float64 {
	return p.Lookup(model).Cost(u.PromptTokens, u.CompletionTokens)
}

// Estimate approximates a call's cost before it is made, assuming four
// characters per prompt token and a full completion.
func (p Pricing) Estimate(model string, promptChars, maxTokens int) float64 {
	return p.Lookup(model).Cost(promptChars/4, maxTokens)
}
