package outfits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pario-ai/stylist/pkg/models"
)

// ErrInvalidGender is returned for a gender other than female or male.
var ErrInvalidGender = errors.New("gender must be female or male")

// Gateway is the save flow: it names the outfit and persists it.
type Gateway struct {
	store *Store
	namer *Namer
}

// NewGateway combines a store and a namer.
func NewGateway(store *Store, namer *Namer) *Gateway {
	return &Gateway{store: store, namer: namer}
}

// Save persists req and returns the stored outfit with its generated name.
func (g *Gateway) Save(ctx context.Context, req models.SaveRequest) (models.SavedOutfit, error) {
	gender := strings.ToLower(strings.TrimSpace(req.Gender))
	switch gender {
	case "":
		gender = models.GenderFemale
	case models.GenderFemale, models.GenderMale:
	default:
		return models.SavedOutfit{}, fmt.Errorf("%w: %q", ErrInvalidGender, req.Gender)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return models.SavedOutfit{}, fmt.Errorf("encode outfit: %w", err)
	}

	o := models.SavedOutfit{
		Description:     req.Outfit.Description,
		Gender:          gender,
		AdditionalIDs:   []int64{},
		OriginalRequest: req.OriginalRequest,
		OutfitData:      data,
	}
	if req.Outfit.Top != nil {
		id := req.Outfit.Top.Item.ID
		o.TopID = &id
	}
	if req.Outfit.Bottom != nil {
		id := req.Outfit.Bottom.Item.ID
		o.BottomID = &id
	}
	for _, s := range req.Outfit.Additional {
		o.AdditionalIDs = append(o.AdditionalIDs, s.Item.ID)
	}
	if g.namer != nil {
		o.Name = g.namer.Name(ctx, req.OriginalRequest, req.Outfit.Description)
	} else {
		o.Name = FallbackName(g.store.now())
	}
	return g.store.Insert(ctx, o)
}

// List returns saved outfits, newest first.
func (g *Gateway) List(ctx context.Context) ([]models.SavedOutfit, error) {
	return g.store.List(ctx, 0)
}

// Delete removes a saved outfit.
func (g *Gateway) Delete(ctx context.Context, id int64) error {
	return g.store.Delete(ctx, id)
}
