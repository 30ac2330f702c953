package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a failed model call.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindRateLimited Kind = "rate_limited"
	KindProvider    Kind = "provider"
	KindMalformed   Kind = "malformed"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrTimeout     = errors.New("model call timed out")
	ErrRateLimited = errors.New("provider rate limit exceeded")
	ErrProvider    = errors.New("provider error")
	ErrMalformed   = errors.New("malformed provider response")
)

// Error is returned by a Client when no attempt produced a usable response.
type Error struct {
	Kind       Kind
	StatusCode int
	// Attempts is the number of attempts made, including the failing one.
	Attempts int
	// BilledCostUSD is what the provider charged across all attempts. It must
	// still be recorded against the budget.
	BilledCostUSD float64
	Err           error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	return "model call failed: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps the error kind to its sentinel.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindTimeout:
		return target == ErrTimeout
	case KindRateLimited:
		return target == ErrRateLimited
	case KindProvider:
		return target == ErrProvider
	case KindMalformed:
		return target == ErrMalformed
	}
	return false
}

// retryable reports whether another attempt may succeed.
func (e *Error) retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindProvider:
		// Network errors carry no status.
		return e.StatusCode == 0 || e.StatusCode >= 500
	}
	return false
}

// BilledCost extracts the billed cost from a client error, if any.
func BilledCost(err error) float64 {
	var e *Error
	if errors.As(err, &e) {
		return e.BilledCostUSD
	}
	return 0
}
