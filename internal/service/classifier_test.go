package service

import (
	"testing"
	"time"

	"renterchat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_DecisionDrivesAction(t *testing.T) {
	c := NewClassifier(2, 14, time.UTC, testClock)

	// Reply wording cannot override a policy decision
	reply := "Let me connect you with a leasing specialist."
	action, _ := c.Classify(reply, Decision{Kind: DecisionAsk})
	assert.Equal(t, model.ActionAskClarification, action)

	action, when := c.Classify("Thanks!", Decision{Kind: DecisionReadyForTour})
	assert.Equal(t, model.ActionProposeTour, action)
	require.NotNil(t, when)

	action, when = c.Classify("Would you like to schedule a tour?", Decision{Kind: DecisionHandoff})
	assert.Equal(t, model.ActionHandoffHuman, action)
	assert.Nil(t, when)
}

func TestClassifier_PhraseFallback(t *testing.T) {
	c := NewClassifier(2, 14, time.UTC, testClock)
	proceed := Decision{Kind: DecisionProceed}

	tests := []struct {
		name  string
		reply string
		want  model.Action
	}{
		{"handoff outranks tour", "This is complex, would you like to schedule a tour or talk to a specialist?", model.ActionHandoffHuman},
		{"tour phrase", "Unit 12B is ready. Would you like to see it this week?", model.ActionProposeTour},
		{"clarify phrase", "Could you tell me your budget?", model.ActionAskClarification},
		{"case insensitive", "SCHEDULE A TOUR today!", model.ActionProposeTour},
		{"default", "Cats are welcome.", model.ActionAskClarification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, _ := c.Classify(tt.reply, proceed)
			assert.Equal(t, tt.want, action)
		})
	}
}

func TestClassifier_ProposedTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	c := NewClassifier(2, 14, loc, testClock)
	_, when := c.Classify("See you soon", Decision{Kind: DecisionReadyForTour})
	require.NotNil(t, when)
	assert.Equal(t, time.Date(2025, 6, 12, 14, 0, 0, 0, loc), *when)

	// A time the reply already offered wins over the default slot
	_, when = c.Classify("I can do 2025-06-13T10:30:00-05:00, does that work?", Decision{Kind: DecisionReadyForTour})
	require.NotNil(t, when)
	assert.True(t, when.Equal(time.Date(2025, 6, 13, 15, 30, 0, 0, time.UTC)))
}
