// Package metrics exposes recommendation, spend and budget metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pario-ai/stylist/pkg/config"
	"github.com/pario-ai/stylist/pkg/models"
)

// Collector owns a private registry and every stylist metric.
// A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	recommendations *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	llmCost         *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
	llmAttempts     *prometheus.CounterVec
	hallucinated    prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	budgetRemaining prometheus.Gauge
	budgetSpent     prometheus.Gauge
}

// NewCollector creates and registers all metrics. A nil registry gets a fresh one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "stylist"
	}

	c := &Collector{
		registry: registry,
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "recommendations_total",
			Help:      "Recommendation requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "recommendation_duration_seconds",
			Help:      "End-to-end recommendation latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "llm_cost_usd_total",
			Help:      "Billed model spend in USD.",
		}, []string{"model", "purpose"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by model calls.",
		}, []string{"model", "purpose"}),
		llmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "llm_attempts_total",
			Help:      "Model call attempts by final result.",
		}, []string{"model", "result"}),
		hallucinated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "hallucinated_slots_total",
			Help:      "Outfit slots dropped because the item id was not in the wardrobe.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		budgetRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "budget_remaining_usd",
			Help:      "Budget left in the current period. Negative after overshoot.",
		}),
		budgetSpent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "budget_spent_usd",
			Help:      "Spend accumulated in the current period.",
		}),
	}

	registry.MustRegister(
		c.recommendations,
		c.duration,
		c.llmCost,
		c.llmTokens,
		c.llmAttempts,
		c.hallucinated,
		c.cacheLookups,
		c.budgetRemaining,
		c.budgetSpent,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordRecommendation counts a finished request.
func (c *Collector) RecordRecommendation(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.recommendations.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordSpend adds a billed model call.
func (c *Collector) RecordSpend(model, purpose string, costUSD float64, tokens int) {
	if c == nil {
		return
	}
	c.llmCost.WithLabelValues(model, purpose).Add(costUSD)
	c.llmTokens.WithLabelValues(model, purpose).Add(float64(tokens))
}

// RecordAttempts counts the attempts a call took.
func (c *Collector) RecordAttempts(model, result string, attempts int) {
	if c == nil || attempts <= 0 {
		return
	}
	c.llmAttempts.WithLabelValues(model, result).Add(float64(attempts))
}

// RecordHallucinated counts dropped slots.
func (c *Collector) RecordHallucinated(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.hallucinated.Add(float64(n))
}

// RecordCache counts a cache lookup.
func (c *Collector) RecordCache(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// SetBudget publishes the latest budget snapshot.
func (c *Collector) SetBudget(s models.UsageStats) {
	if c == nil {
		return
	}
	c.budgetRemaining.Set(s.RemainingBudgetUSD)
	c.budgetSpent.Set(s.MonthlyCostUSD)
}
