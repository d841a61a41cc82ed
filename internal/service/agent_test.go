package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"renterchat/internal/matcher/matchertest"
	"renterchat/internal/model"
	"renterchat/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingComposer struct{ err error }

func (c failingComposer) Compose(context.Context, *ReplyContext) (string, error) { return "", c.err }
func (c failingComposer) Name() string                                           { return "failing" }

// slowComposer blocks until its context is done
type slowComposer struct{}

func (slowComposer) Compose(ctx context.Context, _ *ReplyContext) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
func (slowComposer) Name() string { return "slow" }

// brokenStreamComposer streams part of a reply and then fails
type brokenStreamComposer struct{}

func (brokenStreamComposer) Compose(context.Context, *ReplyContext) (string, error) {
	return "", errors.New("stream reset")
}

func (brokenStreamComposer) ComposeStream(_ context.Context, _ *ReplyContext, onDelta func(string) error) (string, error) {
	if err := onDelta("Cats are "); err != nil {
		return "", err
	}
	return "", errors.New("stream reset")
}

func (brokenStreamComposer) Name() string { return "broken-stream" }

func TestAgent_HamsterResolvesToSmallPets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	resp, err := f.agent.Reply(ctx, &model.ChatRequest{
		ClientID:    "renter-1",
		Message:     "Can I have a hamster?",
		CommunityID: "sunset-ridge",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "small pets are welcome at Sunset Ridge Apartments")

	mem, err := f.store.Get(ctx, "renter-1")
	require.NoError(t, err)
	pet, ok := mem.Preferences.Get(model.FieldPetType)
	require.True(t, ok)
	assert.Equal(t, "small_pets", pet.Value)
	assert.InDelta(t, matchertest.HamsterScore, pet.Confidence, 0.01)

	results := f.invoker.Results()
	require.Len(t, results, 1)
	assert.Equal(t, model.ToolCheckPetPolicy, results[0].Call.Name)
	assert.Equal(t, "small_pets", results[0].Call.Arguments["pet_type"])
	assert.Equal(t, model.ToolStatusOK, results[0].Status)
}

func TestAgent_AsksForCommunityFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	resp, err := f.agent.Reply(ctx, &model.ChatRequest{
		ClientID: "renter-2",
		Message:  "I'm looking for a 2-bedroom and I have two cats",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionAskClarification, resp.Action)
	assert.Nil(t, resp.ProposedTime)
	assert.Equal(t, fieldQuestions[model.FieldCommunity], resp.Reply)
	assert.Empty(t, f.invoker.Results(), "no tools run before the community is known")

	mem, err := f.store.Get(ctx, "renter-2")
	require.NoError(t, err)
	assert.Equal(t, "2", mem.Preferences.Value(model.FieldBedrooms))
	assert.Equal(t, "cat", mem.Preferences.Value(model.FieldPetType))
	assert.False(t, mem.Preferences.Known(model.FieldCommunity, 0.6))
	require.Len(t, mem.Turns, 2)
	assert.Equal(t, model.TurnKindClarification, mem.Turns[1].Kind)
}

func TestAgent_AsksForCommunityBeforeAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	resp, err := f.agent.Reply(ctx, &model.ChatRequest{
		ClientID: "renter-2b",
		Message:  "Is a 2-bedroom available and do you allow cats?",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionAskClarification, resp.Action)
	assert.Equal(t, fieldQuestions[model.FieldCommunity], resp.Reply)
	assert.Empty(t, f.invoker.Results())

	mem, err := f.store.Get(ctx, "renter-2b")
	require.NoError(t, err)
	assert.Equal(t, "2", mem.Preferences.Value(model.FieldBedrooms))
	assert.Equal(t, "cat", mem.Preferences.Value(model.FieldPetType))
}

func TestAgent_HintsAreResolvedBeforeTools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	resp, err := f.agent.Reply(ctx, &model.ChatRequest{
		ClientID:    "renter-hints",
		Message:     "Is that okay?",
		CommunityID: "Sunset Ridge",
		Preferences: &model.PreferenceHints{PetType: "dogs"},
	})
	require.NoError(t, err)
	assert.NotContains(t, resp.Reply, "not defined")

	results := f.invoker.Results()
	require.Len(t, results, 1)
	assert.Equal(t, model.ToolCheckPetPolicy, results[0].Call.Name)
	assert.Equal(t, "sunset-ridge", results[0].Call.Arguments["community_id"])
	assert.Equal(t, "dog", results[0].Call.Arguments["pet_type"])
	require.Equal(t, model.ToolStatusOK, results[0].Status)
	policy, ok := results[0].Payload.(*tools.PetPolicyResult)
	require.True(t, ok)
	assert.True(t, policy.Allowed)

	mem, err := f.store.Get(ctx, "renter-hints")
	require.NoError(t, err)
	assert.Equal(t, "dog", mem.Preferences.Value(model.FieldPetType))
	assert.Equal(t, "sunset-ridge", mem.Preferences.Value(model.FieldCommunity))
}

func TestAgent_ProposesTourAfterTwoAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.agent.Reply(ctx, &model.ChatRequest{
		ClientID:    "renter-3",
		Message:     "Do you allow cats?",
		CommunityID: "sunset-ridge",
	})
	require.NoError(t, err)
	assert.NotEqual(t, model.ActionProposeTour, first.Action)

	second, err := f.agent.Reply(ctx, &model.ChatRequest{ClientID: "renter-3", Message: "What about dogs?"})
	require.NoError(t, err)
	assert.NotEqual(t, model.ActionProposeTour, second.Action)

	mem, err := f.store.Get(ctx, "renter-3")
	require.NoError(t, err)
	assert.Equal(t, 2, mem.SubstantiveTurns())

	third, err := f.agent.Reply(ctx, &model.ChatRequest{ClientID: "renter-3", Message: "I'd like to move in on 2025-07-20"})
	require.NoError(t, err)
	assert.Equal(t, model.ActionProposeTour, third.Action)
	require.NotNil(t, third.ProposedTime)
	assert.Equal(t, time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC), *third.ProposedTime)
	assert.Contains(t, third.Reply, "schedule a tour")
}

func TestAgent_UnknownCommunityHandsOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	resp, err := f.agent.Reply(ctx, &model.ChatRequest{
		ClientID:    "renter-4",
		Message:     "Do you allow dogs?",
		CommunityID: "atlantis",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionHandoffHuman, resp.Action)

	results := f.invoker.Results()
	require.Len(t, results, 1)
	assert.Equal(t, model.ToolStatusNotFound, results[0].Status)

	mem, err := f.store.Get(ctx, "renter-4")
	require.NoError(t, err)
	require.Len(t, mem.Turns, 2, "the turn completes despite the failed lookup")
	assert.Equal(t, model.TurnKindHandoff, mem.Turns[1].Kind)
	assert.Equal(t, model.ActionHandoffHuman, mem.Turns[1].Action)
}

func TestAgent_ComposerFailureApologizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingComposer{err: errors.New("upstream 503")})

	resp, err := f.agent.Reply(ctx, &model.ChatRequest{
		Message:     "Do you allow cats?",
		Lead:        &model.Lead{Name: "Jane Doe", Email: "Jane@Example.com"},
		CommunityID: "sunset-ridge",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionHandoffHuman, resp.Action)
	assert.Equal(t, "Jane, "+FallbackReply, resp.Reply)

	// The lead email doubles as the client id
	mem, err := f.store.Get(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, mem.Lead)
	assert.Equal(t, "Jane Doe", mem.Lead.Name)
	assert.Equal(t, "cat", mem.Preferences.Value(model.FieldPetType))
}

func TestAgent_ComposeTimeoutHandsOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	logger := zaptest.NewLogger(t)
	agent := NewAgent(
		f.store,
		f.extractor,
		NewPolicy(0.6, 2),
		NewOrchestrator(f.invoker, nil, logger),
		slowComposer{},
		NewClassifier(2, 14, time.UTC, testClock),
		logger,
		WithComposeTimeout(20*time.Millisecond),
	)

	resp, err := agent.Reply(ctx, &model.ChatRequest{ClientID: "renter-slow", Message: "Do you allow dogs?", CommunityID: "oak-valley"})
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, resp.Reply)
	assert.Equal(t, model.ActionHandoffHuman, resp.Action)

	// The turn is still recorded
	history, err := f.store.History(ctx, "renter-slow")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestAgent_InvalidEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	tests := []struct {
		name string
		req  *model.ChatRequest
	}{
		{name: "nil request", req: nil},
		{name: "blank message", req: &model.ChatRequest{ClientID: "a", Message: "  "}},
		{name: "no client id", req: &model.ChatRequest{Message: "hello"}},
		{name: "lead without email", req: &model.ChatRequest{Message: "hello", Lead: &model.Lead{Name: "Sam"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.agent.Reply(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Clients, "invalid envelopes never touch the store")
}

func TestAgent_CancelledTurnCommitsNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.agent.Reply(ctx, &model.ChatRequest{ClientID: "renter-5", Message: "Do you allow cats?", CommunityID: "sunset-ridge"})
	require.ErrorIs(t, err, context.Canceled)

	history, err := f.store.History(context.Background(), "renter-5")
	if err == nil {
		assert.Empty(t, history)
	}
	mem, err := f.store.Get(context.Background(), "renter-5")
	if err == nil {
		assert.Empty(t, mem.Preferences)
	}
}

func TestAgent_ReplyStreamDeliversReply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	var deltas []string
	resp, err := f.agent.ReplyStream(ctx, &model.ChatRequest{
		ClientID:    "renter-6",
		Message:     "Any 2 bedroom units available? Moving in 2025-07-20",
		CommunityID: "sunset-ridge",
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, resp.Reply, strings.Join(deltas, ""))
	assert.Contains(t, resp.Reply, "12B")

	results := f.invoker.Results()
	require.Len(t, results, 1)
	avail, ok := results[0].Payload.(*tools.AvailabilityResult)
	require.True(t, ok)
	assert.Equal(t, 2, avail.Count)
}

func TestAgent_PricingPicksBestUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	resp, err := f.agent.Reply(ctx, &model.ChatRequest{
		ClientID:    "renter-7",
		Message:     "How much is rent for a 2 bedroom? Budget $2,200, moving July 20th",
		CommunityID: "sunset-ridge",
	})
	require.NoError(t, err)

	var pricing *tools.PricingResult
	for _, r := range f.invoker.Results() {
		if p, ok := r.Payload.(*tools.PricingResult); ok {
			pricing = p
		}
	}
	require.NotNil(t, pricing, "a quote was produced")
	// 12B is over budget but ready by move-in; 4C is not free until September
	assert.Equal(t, "12B", pricing.UnitID)
	assert.Equal(t, 2160.0, pricing.Pricing.EffectiveRent)
	assert.Contains(t, resp.Reply, "Unit 12B")
	assert.Contains(t, resp.Reply, "$2160/month with current specials")
}

func TestAgent_StreamFailureAfterPartialOutput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, brokenStreamComposer{})

	var deltas []string
	resp, err := f.agent.ReplyStream(ctx, &model.ChatRequest{
		ClientID:    "renter-stream",
		Message:     "Do you allow cats?",
		CommunityID: "sunset-ridge",
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cats are "}, deltas, "the apology is not appended to streamed text")
	assert.Equal(t, FallbackReply, resp.Reply)
	assert.Equal(t, model.ActionHandoffHuman, resp.Action)
}
