package service

import (
	"context"
	"errors"
	"testing"

	"renterchat/internal/matcher/matchertest"
	"renterchat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAssistant struct {
	prefs *AssistedPreferences
	err   error
	calls int
}

func (s *stubAssistant) ExtractPreferences(context.Context, string) (*AssistedPreferences, error) {
	s.calls++
	return s.prefs, s.err
}

func values(prefs []model.Preference) map[model.Field]string {
	out := map[model.Field]string{}
	for _, p := range prefs {
		out[p.Field] = p.Value
	}
	return out
}

func TestExtractor_Extract(t *testing.T) {
	extractor, _ := newTestExtractor(t, newTestRepository(t))

	tests := []struct {
		name    string
		message string
		want    map[model.Field]string
	}{
		{
			name:    "bedrooms and pet",
			message: "I'm looking for a 2-bedroom and I have two cats",
			want:    map[model.Field]string{model.FieldBedrooms: "2", model.FieldPetType: "cat"},
		},
		{
			name:    "studio with budget in thousands",
			message: "Any studio under 1.5k?",
			want:    map[model.Field]string{model.FieldBedrooms: "0", model.FieldBudget: "1500"},
		},
		{
			name:    "community by full name and iso date",
			message: "Is anything open at Riverside Commons on 2025-10-01?",
			want:    map[model.Field]string{model.FieldCommunity: "riverside-commons", model.FieldMoveInDate: "2025-10-01"},
		},
		{
			name:    "community alias without suffix",
			message: "what does sunset ridge charge for unit 12b",
			want:    map[model.Field]string{model.FieldCommunity: "sunset-ridge", model.FieldUnitID: "12B"},
		},
		{
			name:    "month without a year rolls forward",
			message: "We want to move in March",
			want:    map[model.Field]string{model.FieldMoveInDate: "2026-03-01"},
		},
		{
			name:    "month and day this year",
			message: "moving August 15th, budget of $2,400",
			want:    map[model.Field]string{model.FieldMoveInDate: "2025-08-15", model.FieldBudget: "2400"},
		},
		{
			name:    "may as a verb is not a date",
			message: "This may sound odd, but do you allow dogs?",
			want:    map[model.Field]string{model.FieldPetType: "dog"},
		},
		{
			name:    "may as a month next to a move",
			message: "We're moving next May",
			want:    map[model.Field]string{model.FieldMoveInDate: "2026-05-01"},
		},
		{
			name:    "word number of bedrooms",
			message: "three bedrooms please",
			want:    map[model.Field]string{model.FieldBedrooms: "3"},
		},
		{
			name:    "impossible date is dropped",
			message: "moving 2025-02-30",
			want:    map[model.Field]string{},
		},
		{
			name:    "nothing to extract",
			message: "Hi, thanks for your help!",
			want:    map[model.Field]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractor.Extract(context.Background(), tt.message, nil)
			assert.Equal(t, tt.want, values(got))
			for _, p := range got {
				assert.NoError(t, model.ValidateValue(p.Field, p.Value))
			}
		})
	}
}

func TestExtractor_FuzzyPetConfidence(t *testing.T) {
	extractor, _ := newTestExtractor(t, newTestRepository(t))

	got := extractor.Extract(context.Background(), "Can I have a hamster?", nil)
	require.Len(t, got, 1)
	assert.Equal(t, model.FieldPetType, got[0].Field)
	assert.Equal(t, "small_pets", got[0].Value)
	assert.InDelta(t, matchertest.HamsterScore, got[0].Confidence, 0.01)

	// Exact catalog words win over fuzzy ones and score 1.0
	got = extractor.Extract(context.Background(), "I have a hamster and a dog", nil)
	require.Len(t, got, 1)
	assert.Equal(t, "dog", got[0].Value)
	assert.Equal(t, ConfidenceExact, got[0].Confidence)
}

func TestExtractor_FieldOrderIsStable(t *testing.T) {
	extractor, _ := newTestExtractor(t, newTestRepository(t))

	got := extractor.Extract(context.Background(), "2 bed at Oak Valley with my dog from 2025-09-01, $2,000 max", nil)
	fields := make([]model.Field, len(got))
	for i, p := range got {
		fields[i] = p.Field
	}
	assert.Equal(t, []model.Field{
		model.FieldCommunity, model.FieldMoveInDate, model.FieldBedrooms, model.FieldPetType, model.FieldBudget,
	}, fields)
}

func TestExtractor_Assisted(t *testing.T) {
	bedrooms := 1
	assistant := &stubAssistant{prefs: &AssistedPreferences{
		Community: "oak valley",
		Bedrooms:  &bedrooms,
		PetType:   "hamster",
	}}
	extractor, _ := newTestExtractor(t, newTestRepository(t), WithAssistant(assistant))

	got := extractor.Extract(context.Background(), "something cozy near the park", nil)
	assert.Equal(t, 1, assistant.calls)

	byField := map[model.Field]model.Preference{}
	for _, p := range got {
		byField[p.Field] = p
	}
	assert.Equal(t, "oak-valley", byField[model.FieldCommunity].Value)
	assert.Equal(t, ConfidenceAssisted, byField[model.FieldCommunity].Confidence)
	assert.Equal(t, "1", byField[model.FieldBedrooms].Value)
	assert.Equal(t, "small_pets", byField[model.FieldPetType].Value)
	assert.InDelta(t, matchertest.HamsterScore, byField[model.FieldPetType].Confidence, 0.01)

	// Heuristic hits at 1.0 beat the assistant's 0.8
	got = extractor.Extract(context.Background(), "a studio please", nil)
	assert.Equal(t, "0", values(got)[model.FieldBedrooms])
}

func TestExtractor_AssistantFailureIsSilent(t *testing.T) {
	assistant := &stubAssistant{err: errors.New("model offline")}
	extractor, _ := newTestExtractor(t, newTestRepository(t), WithAssistant(assistant))

	got := extractor.Extract(context.Background(), "2 bedrooms", nil)
	assert.Equal(t, map[model.Field]string{model.FieldBedrooms: "2"}, values(got))
}

func TestExtractor_ResolveHints(t *testing.T) {
	extractor, _ := newTestExtractor(t, newTestRepository(t))

	got := extractor.ResolveHints(context.Background(), []model.Preference{
		{Field: model.FieldCommunity, Value: "oak valley", Confidence: 1},
		{Field: model.FieldBedrooms, Value: "2", Confidence: 1},
		{Field: model.FieldPetType, Value: "hamster", Confidence: 1},
	})
	require.Len(t, got, 3)
	assert.Equal(t, "oak-valley", got[0].Value)
	assert.Equal(t, ConfidenceExact, got[0].Confidence)
	assert.Equal(t, "2", got[1].Value)
	assert.Equal(t, "small_pets", got[2].Value)
	assert.InDelta(t, matchertest.HamsterScore, got[2].Confidence, 0.01)

	// Unknown community ids pass through for the tools to reject; pet
	// hints nothing resolves are dropped
	got = extractor.ResolveHints(context.Background(), []model.Preference{
		{Field: model.FieldCommunity, Value: "atlantis", Confidence: 1},
		{Field: model.FieldPetType, Value: "dragon", Confidence: 1},
	})
	require.Len(t, got, 1)
	assert.Equal(t, model.Preference{Field: model.FieldCommunity, Value: "atlantis", Confidence: 1}, got[0])
}
