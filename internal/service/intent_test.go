package service

import (
	"testing"

	"renterchat/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestDetectIntents(t *testing.T) {
	tests := []struct {
		name    string
		message string
		delta   []model.Preference
		want    []Intent
	}{
		{
			name:    "availability question",
			message: "Do you have any 2 bedrooms available?",
			want:    []Intent{IntentAvailability},
		},
		{
			name:    "inflected pet keyword",
			message: "Are pets allowed?",
			want:    []Intent{IntentPetPolicy},
		},
		{
			name:    "pricing with punctuation",
			message: "How much is rent, per month?",
			want:    []Intent{IntentPricing},
		},
		{
			name:    "several intents in gather order",
			message: "What specials do you have on studios, and can I bring my pet?",
			want:    []Intent{IntentAvailability, IntentPetPolicy, IntentPricing},
		},
		{
			name:    "pet implied by extraction",
			message: "I have a hamster",
			delta:   []model.Preference{{Field: model.FieldPetType, Value: "small_pets", Confidence: 0.78}},
			want:    []Intent{IntentPetPolicy},
		},
		{
			name:    "budget implies pricing",
			message: "Around 2k",
			delta:   []model.Preference{{Field: model.FieldBudget, Value: "2000", Confidence: 1}},
			want:    []Intent{IntentPricing},
		},
		{
			name:    "short keyword needs a whole word",
			message: "Is it a good fit for parents?",
			want:    nil,
		},
		{
			name:    "small talk",
			message: "Hello there!",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectIntents(tt.message, tt.delta)
			assert.Equal(t, tt.want, got.List())
			assert.Equal(t, len(tt.want) == 0, got.Empty())
		})
	}
}
