// Package prompt renders a styling request and wardrobe snapshot into the
// chat messages sent to the recommendation model.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pario-ai/stylist/pkg/models"
)

// ErrEmptyRequest is returned for a request that is blank after trimming.
var ErrEmptyRequest = errors.New("empty styling request")

// DefaultMaxItems bounds the number of wardrobe items embedded in a prompt.
const DefaultMaxItems = 60

// SystemMessage is sent ahead of every recommendation prompt.
const SystemMessage = "You are a professional fashion stylist. Always respond in valid JSON format."

// Payload is a rendered prompt.
type Payload struct {
	System string
	User   string
	// CandidateIDs lists the item ids embedded in the prompt, in prompt order.
	CandidateIDs []int64
	// Truncated is set when the wardrobe had more than MaxItems items.
	Truncated bool
	// Hash is a hex SHA-256 over the model and both messages.
	Hash string
}

// Messages returns the payload as chat messages.
func (p Payload) Messages() []models.ChatMessage {
	return []models.ChatMessage{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}
}

// Builder renders prompts. The zero value uses DefaultMaxItems.
type Builder struct {
	Model    string
	MaxItems int
}

// Build renders the prompt for one request. The output is a pure function
// of the builder settings, the trimmed request and the items.
func (b Builder) Build(requestText string, items []models.ClothingItemRef) (Payload, error) {
	req := strings.TrimSpace(requestText)
	if req == "" {
		return Payload{}, ErrEmptyRequest
	}

	max := b.MaxItems
	if max <= 0 {
		max = DefaultMaxItems
	}
	kept, truncated := Truncate(items, max)

	var sb strings.Builder
	sb.WriteString("You are a professional fashion stylist helping someone choose an outfit from their wardrobe.\n\n")
	fmt.Fprintf(&sb, "USER REQUEST: %q\n\n", req)
	sb.WriteString("AVAILABLE WARDROBE ITEMS:")
	ids := make([]int64, 0, len(kept))
	for i, it := range kept {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, describe(it))
		ids = append(ids, it.ID)
	}
	if len(kept) == 0 {
		sb.WriteString("\n(none)")
	}
	sb.WriteString("\n\n")
	sb.WriteString(instructions)

	p := Payload{
		System:       SystemMessage,
		User:         sb.String(),
		CandidateIDs: ids,
		Truncated:    truncated,
	}
	p.Hash = hash(b.Model, p.System, p.User)
	return p, nil
}

func describe(it models.ClothingItemRef) string {
	s := fmt.Sprintf("[%s] ID:%d", strings.ToUpper(string(it.Category)), it.ID)
	var details []string
	for _, f := range []struct{ label, value string }{
		{"Type", it.ClothingType},
		{"Color", it.Color},
		{"Secondary", it.SecondaryColor},
		{"Pattern", it.Pattern},
		{"Material", it.Material},
		{"Style", it.Style},
		{"Season", it.Season},
		{"Fit", it.Fit},
		{"Name", it.Name},
	} {
		if f.value != "" {
			details = append(details, f.label+": "+f.value)
		}
	}
	if len(details) > 0 {
		s += " - " + strings.Join(details, ", ")
	}
	return s
}

const instructions = `YOUR TASK:
1. Select the best outfit combination that matches the user's request
2. Consider season, color coordination, style coherence and occasion
3. Choose items that work well together
4. Provide styling tips

RESPOND IN THIS EXACT JSON FORMAT:
{
  "outfit": {
    "top": {"id": <item_id>, "reason": "brief reason"},
    "bottom": {"id": <item_id>, "reason": "brief reason"},
    "additional": [{"id": <item_id>, "reason": "brief reason"}],
    "description": "1-2 sentence outfit description",
    "styling_tips": "2-3 practical styling tips"
  },
  "alternatives": [
    {"top_id": <id>, "bottom_id": <id>, "reason": "why this is a good alternative"}
  ],
  "confidence": "high/medium/low based on wardrobe fit"
}

RULES:
- Only use IDs from the wardrobe above
- If no good match exists, suggest the closest option with lower confidence
- Keep responses concise but helpful`

func hash(model string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(model))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Truncate keeps at most max items, taking them round-robin across the
// top, bottom and additional roles so every role stays represented. The
// kept items are returned in their original order.
func Truncate(items []models.ClothingItemRef, max int) ([]models.ClothingItemRef, bool) {
	if len(items) <= max {
		return items, false
	}

	roles := []models.Role{models.RoleTop, models.RoleBottom, models.RoleAdditional}
	queues := make(map[models.Role][]int, len(roles))
	for i, it := range items {
		r := it.Category.Role()
		queues[r] = append(queues[r], i)
	}

	keep := make([]bool, len(items))
	n := 0
	for n < max {
		progressed := false
		for _, r := range roles {
			if n == max {
				break
			}
			q := queues[r]
			if len(q) == 0 {
				continue
			}
			keep[q[0]] = true
			queues[r] = q[1:]
			n++
			progressed = true
		}
		if !progressed {
			break
		}
	}

	out := make([]models.ClothingItemRef, 0, max)
	for i, it := range items {
		if keep[i] {
			out = append(out, it)
		}
	}
	return out, true
}
