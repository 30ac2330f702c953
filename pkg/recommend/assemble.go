package recommend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pario-ai/stylist/pkg/llm"
	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

var (
	// ErrSchemaMismatch is returned when the model output is not the expected JSON shape.
	ErrSchemaMismatch = errors.New("model response does not match the outfit schema")
	// ErrNoValidItems is returned when no outfit slot references a wardrobe item.
	ErrNoValidItems = errors.New("no recommended item exists in the wardrobe")
)

// itemID accepts a JSON number or a numeric string. Anything else decodes
// as present but invalid, so the slot is dropped rather than the response.
type itemID struct {
	present bool
	valid   bool
	value   int64
}

func (id *itemID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	id.present = true
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		id.valid, id.value = true, v
		return nil
	}
	// Accept integral floats such as 12.0.
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		id.valid, id.value = true, int64(f)
	}
	return nil
}

type rawSlot struct {
	ID     itemID `json:"id"`
	Reason string `json:"reason"`
}

type rawOutfit struct {
	Top         *rawSlot  `json:"top"`
	Bottom      *rawSlot  `json:"bottom"`
	Additional  []rawSlot `json:"additional"`
	Description string    `json:"description"`
	StylingTips string    `json:"styling_tips"`
	Confidence  string    `json:"confidence"`
}

type rawAlternative struct {
	TopID    itemID `json:"top_id"`
	BottomID itemID `json:"bottom_id"`
	Reason   string `json:"reason"`
}

type rawRecommendation struct {
	Outfit       *rawOutfit       `json:"outfit"`
	Alternatives []rawAlternative `json:"alternatives"`
	Confidence   string           `json:"confidence"`
}

// Report describes what validation removed.
type Report struct {
	// DroppedIDs lists slot ids that were not in the wardrobe, in slot order.
	DroppedIDs []string
	// DroppedAlternatives counts alternatives with neither item resolvable.
	DroppedAlternatives int
	// RawConfidence is the normalized confidence before downgrades.
	RawConfidence models.Confidence
}

// Assemble validates model output against the wardrobe snapshot. Every
// slot in the result references an item from idx. Each slot whose id does
// not resolve is dropped and lowers confidence one level.
func Assemble(content string, idx *wardrobe.Index) (*models.OutfitRecommendation, Report, error) {
	var report Report

	doc := llm.ExtractJSON(content)
	if doc == "" {
		return nil, report, fmt.Errorf("%w: no JSON object in response", ErrSchemaMismatch)
	}
	var raw rawRecommendation
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, report, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if raw.Outfit == nil {
		return nil, report, fmt.Errorf("%w: missing outfit", ErrSchemaMismatch)
	}

	label := raw.Confidence
	if strings.TrimSpace(label) == "" {
		label = raw.Outfit.Confidence
	}
	confidence := models.ParseConfidence(label)
	report.RawConfidence = confidence

	resolve := func(role models.Role, s rawSlot) *models.OutfitSlot {
		if s.ID.valid {
			if it, ok := idx.Lookup(s.ID.value); ok {
				return &models.OutfitSlot{Role: role, Item: it, Reason: strings.TrimSpace(s.Reason)}
			}
		}
		report.DroppedIDs = append(report.DroppedIDs, s.ID.String())
		confidence = confidence.Downgrade()
		return nil
	}

	rec := &models.OutfitRecommendation{
		RequestFulfilled: true,
		Outfit: models.Outfit{
			Description: strings.TrimSpace(raw.Outfit.Description),
			StylingTips: strings.TrimSpace(raw.Outfit.StylingTips),
		},
		Alternatives: []models.Alternative{},
	}
	if raw.Outfit.Top != nil {
		rec.Outfit.Top = resolve(models.RoleTop, *raw.Outfit.Top)
	}
	if raw.Outfit.Bottom != nil {
		rec.Outfit.Bottom = resolve(models.RoleBottom, *raw.Outfit.Bottom)
	}
	for _, s := range raw.Outfit.Additional {
		if slot := resolve(models.RoleAdditional, s); slot != nil {
			rec.Outfit.Additional = append(rec.Outfit.Additional, *slot)
		}
	}
	if len(rec.Outfit.Slots()) == 0 {
		return nil, report, ErrNoValidItems
	}
	rec.Confidence = confidence

	for _, a := range raw.Alternatives {
		alt := models.Alternative{Reason: strings.TrimSpace(a.Reason)}
		if it, ok := lookup(idx, a.TopID); ok {
			alt.Top = &it
		}
		if it, ok := lookup(idx, a.BottomID); ok {
			alt.Bottom = &it
		}
		if alt.Top == nil && alt.Bottom == nil {
			report.DroppedAlternatives++
			continue
		}
		rec.Alternatives = append(rec.Alternatives, alt)
	}
	return rec, report, nil
}

func lookup(idx *wardrobe.Index, id itemID) (models.ClothingItemRef, bool) {
	if !id.valid {
		return models.ClothingItemRef{}, false
	}
	return idx.Lookup(id.value)
}

func (id itemID) String() string {
	switch {
	case id.valid:
		return strconv.FormatInt(id.value, 10)
	case id.present:
		return "invalid"
	default:
		return "missing"
	}
}
