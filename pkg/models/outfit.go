package models

import "strings"

// Confidence is the model's self-assessed fit of a recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence normalizes a raw label. Unknown values map to low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Downgrade lowers the confidence by one level, stopping at low.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// OutfitSlot pairs a wardrobe item with the reason it was chosen.
type OutfitSlot struct {
	Role   Role            `json:"role"`
	Item   ClothingItemRef `json:"item"`
	Reason string          `json:"reason"`
}

// Outfit is the slot mapping plus the stylist's notes.
type Outfit struct {
	Top         *OutfitSlot  `json:"top,omitempty"`
	Bottom      *OutfitSlot  `json:"bottom,omitempty"`
	Additional  []OutfitSlot `json:"additional,omitempty"`
	Description string       `json:"description"`
	StylingTips string       `json:"styling_tips"`
}

// Slots returns every filled slot, top and bottom first.
func (o Outfit) Slots() []OutfitSlot {
	var slots []OutfitSlot
	if o.Top != nil {
		slots = append(slots, *o.Top)
	}
	if o.Bottom != nil {
		slots = append(slots, *o.Bottom)
	}
	return append(slots, o.Additional...)
}

// ItemIDs returns the ids of every item referenced by the outfit.
func (o Outfit) ItemIDs() []int64 {
	slots := o.Slots()
	ids := make([]int64, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.Item.ID)
	}
	return ids
}

// Alternative is a secondary top/bottom pairing suggested by the model.
type Alternative struct {
	Top    *ClothingItemRef `json:"top,omitempty"`
	Bottom *ClothingItemRef `json:"bottom,omitempty"`
	Reason string           `json:"reason"`
}

// RecommendationMetadata reports what the recommendation cost.
type RecommendationMetadata struct {
	RequestID     string     `json:"request_id"`
	Model         string     `json:"model"`
	CostUSD       float64    `json:"cost_usd"`
	BilledCostUSD float64    `json:"billed_cost_usd"`
	TokensUsed    int        `json:"tokens_used"`
	Attempts      int        `json:"attempts"`
	Cached        bool       `json:"cached"`
	Truncated     bool       `json:"wardrobe_truncated,omitempty"`
	UsageStats    UsageStats `json:"usage_stats"`
}

// OutfitRecommendation is the assembled, validated result of one request.
type OutfitRecommendation struct {
	RequestFulfilled bool                   `json:"request_fulfilled"`
	Outfit           Outfit                 `json:"outfit"`
	Alternatives     []Alternative          `json:"alternatives"`
	Confidence       Confidence             `json:"confidence"`
	Metadata         RecommendationMetadata `json:"metadata"`
}
