package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pario-ai/stylist/pkg/models"
)

// DemoModel is the model name reported by DemoClient.
const DemoModel = "demo-mode"

// DemoClient answers offline at zero cost. JSON requests get the first top
// and first bottom from the request's items with medium confidence.
type DemoClient struct{}

// Model returns DemoModel.
func (DemoClient) Model() string { return DemoModel }

type demoSlot struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// Complete builds a canned response.
func (DemoClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindTimeout, Attempts: 1, Err: err}
	}
	if !req.JSON {
		return &Response{Content: "Everyday Classic", Model: DemoModel, Attempts: 1}, nil
	}

	outfit := map[string]any{
		"description":  "A simple pairing from your wardrobe.",
		"styling_tips": "Keep it simple and comfortable. Accessorize minimally.",
		"confidence":   "medium",
	}
	var top, bottom *models.ClothingItemRef
	for i := range req.Items {
		it := &req.Items[i]
		switch it.Category.Role() {
		case models.RoleTop:
			if top == nil {
				top = it
			}
		case models.RoleBottom:
			if bottom == nil {
				bottom = it
			}
		}
	}
	if top != nil {
		outfit["top"] = demoSlot{ID: top.ID, Reason: fmt.Sprintf("Easy %s %s for the occasion", or(top.Style, "casual"), or(top.ClothingType, "top"))}
	}
	if bottom != nil {
		outfit["bottom"] = demoSlot{ID: bottom.ID, Reason: fmt.Sprintf("Comfortable %s %s", or(bottom.Color, "neutral"), or(bottom.ClothingType, "bottom"))}
	}

	content, err := json.Marshal(map[string]any{
		"outfit":       outfit,
		"alternatives": []any{},
		"confidence":   "medium",
	})
	if err != nil {
		return nil, fmt.Errorf("encode demo response: %w", err)
	}
	return &Response{Content: string(content), Model: DemoModel, Attempts: 1}, nil
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
