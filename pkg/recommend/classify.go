package recommend

import (
	"errors"

	"github.com/pario-ai/stylist/pkg/budget"
	"github.com/pario-ai/stylist/pkg/llm"
	"github.com/pario-ai/stylist/pkg/prompt"
)

// ErrEmptyRequest is returned for a blank styling request.
var ErrEmptyRequest = prompt.ErrEmptyRequest

// Category is a user-displayable failure class.
type Category string

const (
	CategoryEmptyRequest        Category = "empty_request"
	CategoryBudgetExceeded      Category = "budget_exceeded"
	CategoryRateLimited         Category = "rate_limited"
	CategoryTimeout             Category = "timeout"
	CategoryProviderRateLimited Category = "provider_rate_limited"
	CategoryProviderError       Category = "provider_error"
	CategorySchemaMismatch      Category = "schema_mismatch"
	CategoryNoValidItems        Category = "no_valid_items"
	CategoryLedgerUnavailable   Category = "ledger_unavailable"
	CategoryInternal            Category = "internal"
)

// Classify maps an error from Suggest to its category. Order matters: a
// ledger failure wrapped around another error still fails closed.
func Classify(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyRequest):
		return CategoryEmptyRequest
	case errors.Is(err, budget.ErrLedgerUnavailable):
		return CategoryLedgerUnavailable
	case errors.Is(err, budget.ErrBudgetExceeded):
		return CategoryBudgetExceeded
	case errors.Is(err, budget.ErrRateLimited):
		return CategoryRateLimited
	case errors.Is(err, llm.ErrTimeout):
		return CategoryTimeout
	case errors.Is(err, llm.ErrRateLimited):
		return CategoryProviderRateLimited
	case errors.Is(err, llm.ErrProvider), errors.Is(err, llm.ErrMalformed):
		return CategoryProviderError
	case errors.Is(err, ErrSchemaMismatch):
		return CategorySchemaMismatch
	case errors.Is(err, ErrNoValidItems):
		return CategoryNoValidItems
	}
	return CategoryInternal
}

// Retryable reports whether resubmitting the same request may succeed.
// Budget rejections are not: they clear only in the next period.
func (c Category) Retryable() bool {
	switch c {
	case CategoryRateLimited, CategoryTimeout, CategoryProviderRateLimited,
		CategoryProviderError, CategorySchemaMismatch, CategoryLedgerUnavailable:
		return true
	}
	return false
}
