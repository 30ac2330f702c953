package models

import (
	"encoding/json"
	"time"
)

// Genders accepted by the save flow.
const (
	GenderFemale = "female"
	GenderMale   = "male"
)

// SaveRequest is the payload handed to the saved-outfit gateway.
type SaveRequest struct {
	Outfit          Outfit `json:"outfit"`
	Gender          string `json:"gender"`
	OriginalRequest string `json:"original_request"`
}

// SavedOutfit is a user-confirmed recommendation.
type SavedOutfit struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Gender          string          `json:"gender"`
	TopID           *int64          `json:"top_id,omitempty"`
	BottomID        *int64          `json:"bottom_id,omitempty"`
	AdditionalIDs   []int64         `json:"additional_ids"`
	OriginalRequest string          `json:"original_request"`
	OutfitData      json.RawMessage `json:"outfit_data"`
	CreatedAt       time.Time       `json:"created_at"`
}
