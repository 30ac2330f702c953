package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/stylist/pkg/recommend"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

type suggestArgs struct {
	Request  string `json:"request"`
	Season   string `json:"season"`
	Style    string `json:"style"`
	Category string `json:"category"`
}

type limitArgs struct {
	Limit int `json:"limit"`
}

type sinceArgs struct {
	Since string `json:"since"`
}

type tool struct {
	Tool
	enabled func(Deps) bool
	handle  func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult
}

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

var registry = []tool{
	{
		Tool: Tool{
			Name:        "stylist_suggest",
			Description: "Recommend an outfit from the wardrobe for a free-text styling request. Spends model budget.",
			InputSchema: object([]string{"request"}, map[string]any{
				"request":  prop("string", "What the outfit is for, e.g. 'casual date night'"),
				"season":   prop("string", "Only consider items for this season (optional)"),
				"style":    prop("string", "Only consider items with this style (optional)"),
				"category": prop("string", "Only consider items in this category (optional)"),
			}),
		},
		enabled: func(d Deps) bool { return d.Recommender != nil },
		handle:  handleSuggest,
	},
	{
		Tool: Tool{
			Name:        "stylist_usage",
			Description: "Show this month's model spend against the cap and today's request counts.",
			InputSchema: object(nil, map[string]any{}),
		},
		enabled: func(d Deps) bool { return d.Recommender != nil },
		handle:  handleUsage,
	},
	{
		Tool: Tool{
			Name:        "stylist_budget_history",
			Description: "List past monthly budget periods, newest first.",
			InputSchema: object(nil, map[string]any{
				"limit": prop("integer", "Number of periods (optional, default 12)"),
			}),
		},
		enabled: func(d Deps) bool { return d.History != nil },
		handle:  handleHistory,
	},
	{
		Tool: Tool{
			Name:        "stylist_cost_report",
			Description: "Show model spend grouped by model and purpose.",
			InputSchema: object(nil, map[string]any{
				"since": prop("string", "Start date in YYYY-MM-DD format (optional, defaults to start of month)"),
			}),
		},
		enabled: func(d Deps) bool { return d.Usage != nil },
		handle:  handleCostReport,
	},
	{
		Tool: Tool{
			Name:        "stylist_saved_outfits",
			Description: "List saved outfits, newest first.",
			InputSchema: object(nil, map[string]any{}),
		},
		enabled: func(d Deps) bool { return d.Saved != nil },
		handle:  handleSaved,
	},
}

func (s *Server) tools() []Tool {
	var out []Tool
	for _, t := range registry {
		if t.enabled(s.deps) {
			out = append(out, t.Tool)
		}
	}
	return out
}

func (s *Server) call(ctx context.Context, p ToolCallParams) ToolCallResult {
	for _, t := range registry {
		if t.Name == p.Name && t.enabled(s.deps) {
			return t.handle(ctx, s, p.Arguments)
		}
	}
	return toolError("unknown tool: " + p.Name)
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func handleSuggest(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args suggestArgs
	if err := decodeArgs(raw, &args); err != nil {
		return toolError("invalid arguments: " + err.Error())
	}
	rec, err := s.deps.Recommender.Suggest(ctx, recommend.Request{
		Text:   args.Request,
		Filter: wardrobe.Filter{Season: args.Season, Style: args.Style, Category: args.Category},
	})
	if err != nil {
		return toolError(formatFailure(err))
	}
	return text(formatRecommendation(rec))
}

func handleUsage(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.deps.Recommender.Usage(ctx)
	if err != nil {
		return toolError("usage unavailable: " + err.Error())
	}
	return text(formatUsage(stats))
}

func handleHistory(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args limitArgs
	if err := decodeArgs(raw, &args); err != nil {
		return toolError("invalid arguments: " + err.Error())
	}
	entries, err := s.deps.History.History(ctx, args.Limit)
	if err != nil {
		return toolError("history unavailable: " + err.Error())
	}
	return text(formatHistory(entries))
}

func handleCostReport(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args sinceArgs
	if err := decodeArgs(raw, &args); err != nil {
		return toolError("invalid arguments: " + err.Error())
	}
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return toolError("invalid since date (use YYYY-MM-DD)")
		}
		since = t
	}
	rows, err := s.deps.Usage.Summary(ctx, since)
	if err != nil {
		return toolError("report unavailable: " + err.Error())
	}
	return text(formatSummary(rows))
}

func handleSaved(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	list, err := s.deps.Saved.List(ctx)
	if err != nil {
		return toolError("saved outfits unavailable: " + err.Error())
	}
	return text(formatSaved(list))
}
