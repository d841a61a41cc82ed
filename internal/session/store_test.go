package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"renterchat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(NewMemoryBackend(0))
}

func TestStore_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	mem, err := store.GetOrCreate(ctx, "client-a")
	require.NoError(t, err)
	assert.Equal(t, "client-a", mem.ClientID)
	assert.Empty(t, mem.Turns)
	assert.Empty(t, mem.Preferences)

	_, err = store.GetOrCreate(ctx, "   ")
	assert.ErrorIs(t, err, ErrInvalidClientID)
}

func TestStore_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.MergePreferences(ctx, "A", []model.Preference{
		{Field: model.FieldBedrooms, Value: "2", Confidence: 1},
	})
	require.NoError(t, err)
	_, err = store.AppendTurn(ctx, "A", model.RoleUser, "hello from A")
	require.NoError(t, err)

	b, err := store.GetOrCreate(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, b.Turns)
	assert.Empty(t, b.Preferences)

	_, err = store.MergePreferences(ctx, "B", []model.Preference{
		{Field: model.FieldBedrooms, Value: "3", Confidence: 1},
	})
	require.NoError(t, err)

	a, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "2", a.Preferences.Value(model.FieldBedrooms))
	assert.Len(t, a.Turns, 1)
}

func TestStore_ReturnedMemoryIsACopy(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	mem, err := store.MergePreferences(ctx, "A", []model.Preference{
		{Field: model.FieldPetType, Value: "cat", Confidence: 1},
	})
	require.NoError(t, err)

	mem.Preferences[model.FieldPetType] = model.Preference{Field: model.FieldPetType, Value: "dog", Confidence: 1}

	stored, err := store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "cat", stored.Preferences.Value(model.FieldPetType))
}

func TestStore_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	delta := []model.Preference{{Field: model.FieldCommunity, Value: "oak-valley", Confidence: 0.8}}

	first, err := store.MergePreferences(ctx, "A", delta)
	require.NoError(t, err)
	second, err := store.MergePreferences(ctx, "A", delta)
	require.NoError(t, err)

	assert.Equal(t, first.Preferences, second.Preferences)
	assert.Equal(t, "oak-valley", second.CommunityID)
}

func TestStore_CommitTurn(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	mem, err := store.CommitTurn(ctx, "A", TurnCommit{
		Delta:       []model.Preference{{Field: model.FieldBedrooms, Value: "2", Confidence: 1}},
		Lead:        &model.Lead{Name: "John Doe", Email: "john@example.com"},
		UserText:    "Is a 2-bedroom available?",
		Reply:       "Which community are you interested in?",
		ReplyKind:   model.TurnKindClarification,
		ReplyAction: model.ActionAskClarification,
	})
	require.NoError(t, err)

	require.Len(t, mem.Turns, 2)
	assert.Equal(t, model.RoleUser, mem.Turns[0].Role)
	assert.Equal(t, 0, mem.Turns[0].Index)
	assert.Equal(t, model.RoleAssistant, mem.Turns[1].Role)
	assert.Equal(t, model.ActionAskClarification, mem.Turns[1].Action)
	assert.Equal(t, 0, mem.Preferences[model.FieldBedrooms].Turn)
	assert.Equal(t, "John Doe", mem.Lead.Name)

	mem, err = store.CommitTurn(ctx, "A", TurnCommit{
		Delta:    []model.Preference{{Field: model.FieldBedrooms, Value: "3", Confidence: 1}},
		UserText: "Actually 3 bedrooms",
		Reply:    "Noted.",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Preferences[model.FieldBedrooms].Turn)
	assert.Equal(t, "John Doe", mem.Lead.Name)
}

func TestStore_CommitTurnCancelledWritesNothing(t *testing.T) {
	store := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.CommitTurn(ctx, "A", TurnCommit{
		Delta:    []model.Preference{{Field: model.FieldBedrooms, Value: "2", Confidence: 1}},
		UserText: "hi",
		Reply:    "hello",
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Get(context.Background(), "A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ConcurrentCommitsSameClient(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.CommitTurn(ctx, "shared", TurnCommit{
				UserText: fmt.Sprintf("message %d", i),
				Reply:    fmt.Sprintf("reply %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	mem, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, mem.Turns, workers*2)

	// Each commit lands as an adjacent user/assistant pair
	for i := 0; i < len(mem.Turns); i += 2 {
		assert.Equal(t, model.RoleUser, mem.Turns[i].Role)
		assert.Equal(t, model.RoleAssistant, mem.Turns[i+1].Role)
		assert.Equal(t, mem.Turns[i].Text[len("message "):], mem.Turns[i+1].Text[len("reply "):])
		assert.Equal(t, i, mem.Turns[i].Index)
	}
	assert.Zero(t, store.locks.size())
}

func TestStore_DeleteAndStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	for _, id := range []string{"A", "B"} {
		_, err := store.CommitTurn(ctx, id, TurnCommit{UserText: "hi", Reply: "hello"})
		require.NoError(t, err)
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Clients)
	assert.Equal(t, 4, stats.Turns)
	assert.Equal(t, "memory", stats.Backend)

	require.NoError(t, store.Delete(ctx, "A"))
	assert.ErrorIs(t, store.Delete(ctx, "A"), ErrNotFound)

	_, err = store.History(ctx, "A")
	assert.ErrorIs(t, err, ErrNotFound)

	view, err := store.View(ctx, "B")
	require.NoError(t, err)
	assert.Len(t, view.Turns, 2)
}

func TestMemoryBackend_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	backend := NewMemoryBackend(time.Hour)
	store := NewStore(backend, WithClock(func() time.Time { return now }))

	_, err := store.GetOrCreate(ctx, "A")
	require.NoError(t, err)

	// Expiry follows the store clock, not wall time
	now = now.Add(30 * time.Minute)
	_, err = store.Get(ctx, "A")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)

	_, err = store.Get(ctx, "A")
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err := backend.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
