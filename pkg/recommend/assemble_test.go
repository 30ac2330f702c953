package recommend

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/stylist/pkg/budget"
	"github.com/pario-ai/stylist/pkg/llm"
	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

func index() *wardrobe.Index {
	return wardrobe.Build(closet())
}

func TestAssembleIDForms(t *testing.T) {
	for _, raw := range []string{`1`, `"1"`, `" 1 "`, `1.0`} {
		t.Run(raw, func(t *testing.T) {
			content := fmt.Sprintf(`{"outfit":{"top":{"id":%s,"reason":"r"}},"confidence":"high"}`, raw)
			rec, _, err := Assemble(content, index())
			require.NoError(t, err)
			require.NotNil(t, rec.Outfit.Top)
			assert.Equal(t, int64(1), rec.Outfit.Top.Item.ID)
			assert.Equal(t, models.ConfidenceHigh, rec.Confidence)
		})
	}
}

func TestAssembleDegradation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.Confidence
		dropped []string
	}{
		{
			name:    "none dropped",
			content: `{"outfit":{"top":{"id":1},"bottom":{"id":2}},"confidence":"high"}`,
			want:    models.ConfidenceHigh,
		},
		{
			name:    "one dropped",
			content: `{"outfit":{"top":{"id":1},"bottom":{"id":77}},"confidence":"high"}`,
			want:    models.ConfidenceMedium,
			dropped: []string{"77"},
		},
		{
			name:    "two dropped floors at low",
			content: `{"outfit":{"top":{"id":1},"bottom":{"id":"x"},"additional":[{"id":null}]},"confidence":"medium"}`,
			want:    models.ConfidenceLow,
			dropped: []string{"invalid", "missing"},
		},
		{
			name:    "unknown label is low",
			content: `{"outfit":{"top":{"id":1}},"confidence":"very sure"}`,
			want:    models.ConfidenceLow,
		},
		{
			name:    "outfit-level confidence",
			content: `{"outfit":{"top":{"id":1},"confidence":"High"}}`,
			want:    models.ConfidenceHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, report, err := Assemble(tt.content, index())
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Confidence)
			assert.Equal(t, tt.dropped, report.DroppedIDs)
		})
	}
}

func TestAssembleNeverReturnsUnknownIDs(t *testing.T) {
	idx := index()
	content := `{"outfit":{"top":{"id":3},"bottom":{"id":404},"additional":[{"id":2},{"id":500}]},
		"alternatives":[{"top_id":900,"bottom_id":901},{"top_id":1,"bottom_id":999}],"confidence":"high"}`
	rec, report, err := Assemble(content, idx)
	require.NoError(t, err)

	for _, id := range rec.Outfit.ItemIDs() {
		_, ok := idx.Lookup(id)
		assert.True(t, ok, "id %d not in wardrobe", id)
	}
	require.Len(t, rec.Alternatives, 1)
	assert.Equal(t, int64(1), rec.Alternatives[0].Top.ID)
	assert.Nil(t, rec.Alternatives[0].Bottom)
	assert.Equal(t, 1, report.DroppedAlternatives)
	assert.Equal(t, models.ConfidenceLow, rec.Confidence)
}

func TestAssembleFencedJSON(t *testing.T) {
	content := "Here you go:\n```json\n{\"outfit\":{\"top\":{\"id\":1,\"reason\":\"bright\",},},\"confidence\":\"medium\"}\n```"
	rec, _, err := Assemble(content, index())
	require.NoError(t, err)
	assert.Equal(t, "bright", rec.Outfit.Top.Reason)
	assert.NotNil(t, rec.Alternatives)
}

func TestAssembleSchemaMismatch(t *testing.T) {
	for _, content := range []string{
		"",
		"I think the red shirt would look great.",
		`{"alternatives":[]}`,
		`{"outfit":"red shirt"}`,
		`[1,2,3]`,
	} {
		_, _, err := Assemble(content, index())
		assert.ErrorIs(t, err, ErrSchemaMismatch, "content %q", content)
	}
}

func TestAssembleNoValidItems(t *testing.T) {
	_, report, err := Assemble(`{"outfit":{"top":{"id":8},"bottom":{"id":9}},"confidence":"high"}`, index())
	require.ErrorIs(t, err, ErrNoValidItems)
	assert.Equal(t, []string{"8", "9"}, report.DroppedIDs)

	_, _, err = Assemble(`{"outfit":{"top":{"id":1}}}`, wardrobe.Build(nil))
	assert.ErrorIs(t, err, ErrNoValidItems)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{nil, ""},
		{ErrEmptyRequest, CategoryEmptyRequest},
		{&budget.RejectedError{CapUSD: 5}, CategoryBudgetExceeded},
		{&budget.LimitError{Window: budget.WindowHourly, Limit: 10, Count: 10}, CategoryRateLimited},
		{fmt.Errorf("check: %w", budget.ErrLedgerUnavailable), CategoryLedgerUnavailable},
		{&llm.Error{Kind: llm.KindTimeout}, CategoryTimeout},
		{&llm.Error{Kind: llm.KindRateLimited, StatusCode: 429}, CategoryProviderRateLimited},
		{&llm.Error{Kind: llm.KindProvider, StatusCode: 503}, CategoryProviderError},
		{&llm.Error{Kind: llm.KindMalformed}, CategoryProviderError},
		{fmt.Errorf("%w: bad", ErrSchemaMismatch), CategorySchemaMismatch},
		{ErrNoValidItems, CategoryNoValidItems},
		{errors.New("boom"), CategoryInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestAssembleBracesInProse(t *testing.T) {
	content := `Note {x}: {"outfit":{"top":{"id":1,"reason":"pops"}},"confidence":"high"} Enjoy {it}!`
	rec, _, err := Assemble(content, index())
	require.NoError(t, err)
	require.NotNil(t, rec.Outfit.Top)
	assert.Equal(t, "pops", rec.Outfit.Top.Reason)
}
