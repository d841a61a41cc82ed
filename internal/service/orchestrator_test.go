package service

import (
	"context"
	"testing"

	"renterchat/internal/model"
	"renterchat/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func prefSet(values map[model.Field]string) model.PreferenceSet {
	set := model.PreferenceSet{}
	for f, v := range values {
		set[f] = model.Preference{Field: f, Value: v, Confidence: 1}
	}
	return set
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	return NewOrchestrator(newTestRegistry(t, newTestRepository(t)), nil, zaptest.NewLogger(t))
}

func TestOrchestrator_GatherAllIntents(t *testing.T) {
	o := newTestOrchestrator(t)

	results := o.Gather(context.Background(),
		intents(IntentPricing, IntentPetPolicy, IntentAvailability),
		prefSet(map[model.Field]string{
			model.FieldCommunity:  "oak-valley",
			model.FieldBedrooms:   "2",
			model.FieldPetType:    "cat",
			model.FieldMoveInDate: "2025-08-01",
		}))

	require.Len(t, results, 3)
	assert.Equal(t, model.ToolCheckAvailability, results[0].Call.Name)
	assert.Equal(t, model.ToolCheckPetPolicy, results[1].Call.Name)
	assert.Equal(t, model.ToolGetPricing, results[2].Call.Name)
	for _, r := range results {
		assert.Equal(t, model.ToolStatusOK, r.Status, r.Reason)
		assert.NotEmpty(t, r.Call.ID)
	}

	quote, ok := results[2].Payload.(*tools.PricingResult)
	require.True(t, ok)
	assert.Equal(t, "204", quote.UnitID)
}

func TestOrchestrator_MissingArgumentsShortCircuit(t *testing.T) {
	o := newTestOrchestrator(t)

	results := o.Gather(context.Background(),
		intents(IntentAvailability, IntentPetPolicy, IntentPricing),
		prefSet(map[model.Field]string{model.FieldCommunity: "sunset-ridge"}))

	require.Len(t, results, 3)
	assert.Equal(t, []model.Field{model.FieldBedrooms}, results[0].Missing)
	assert.Equal(t, []model.Field{model.FieldPetType}, results[1].Missing)
	assert.Equal(t, []model.Field{model.FieldMoveInDate}, results[2].Missing)
	for _, r := range results {
		assert.Equal(t, model.ToolStatusInsufficientInformation, r.Status)
		assert.Empty(t, r.Call.ID, "short-circuited calls never reach the registry")
	}
}

func TestOrchestrator_FailuresAreIsolated(t *testing.T) {
	o := newTestOrchestrator(t)

	results := o.Gather(context.Background(),
		intents(IntentPetPolicy, IntentPricing),
		prefSet(map[model.Field]string{
			model.FieldCommunity:  "sunset-ridge",
			model.FieldPetType:    "dog",
			model.FieldUnitID:     "99Z",
			model.FieldMoveInDate: "2025-07-20",
		}))

	require.Len(t, results, 2)
	assert.Equal(t, model.ToolStatusOK, results[0].Status)
	assert.Equal(t, model.ToolStatusNotFound, results[1].Status)
}

func TestOrchestrator_PricingWithNoMatchingUnits(t *testing.T) {
	o := newTestOrchestrator(t)

	results := o.Gather(context.Background(), intents(IntentPricing), prefSet(map[model.Field]string{
		model.FieldCommunity:  "sunset-ridge",
		model.FieldBedrooms:   "3",
		model.FieldMoveInDate: "2025-07-20",
	}))

	require.Len(t, results, 1)
	assert.Equal(t, model.ToolGetPricing, results[0].Call.Name)
	assert.Equal(t, model.ToolStatusInsufficientInformation, results[0].Status)
	assert.Equal(t, []model.Field{model.FieldUnitID}, results[0].Missing)
}

func TestOrchestrator_Invoke(t *testing.T) {
	o := newTestOrchestrator(t)

	res := o.Invoke(context.Background(), model.ToolCheckAvailability, map[string]any{"community_id": "oak-valley", "bedrooms": 0})
	require.Equal(t, model.ToolStatusOK, res.Status)
	avail := res.Payload.(*tools.AvailabilityResult)
	assert.Equal(t, "305", avail.Units[0].UnitID)

	res = o.Invoke(context.Background(), "book_tour", nil)
	assert.Equal(t, model.ToolStatusError, res.Status)
}

func TestJoinWords(t *testing.T) {
	assert.Equal(t, "", joinWords(nil))
	assert.Equal(t, "a", joinWords([]string{"a"}))
	assert.Equal(t, "a and b", joinWords([]string{"a", "b"}))
	assert.Equal(t, "a, b and c", joinWords([]string{"a", "b", "c"}))
}
