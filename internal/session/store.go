package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"renterchat/internal/metrics"
	"renterchat/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store owns every ClientMemory. All mutation goes through it and is
// serialized per client id; distinct clients never contend.
type Store struct {
	backend Backend
	locks   *keyLocks
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store over the given backend
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		locks:   newKeyLocks(),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cb, ok := backend.(clockedBackend); ok {
		cb.useClock(s.now)
	}
	return s
}

// TurnCommit is everything one conversation turn writes, applied atomically
type TurnCommit struct {
	Delta       []model.Preference
	Lead        *model.Lead
	UserText    string
	Reply       string
	ReplyKind   model.TurnKind
	ReplyAction model.Action
}

// GetOrCreate returns the client's memory, creating an empty one if needed
func (s *Store) GetOrCreate(ctx context.Context, clientID string) (*model.ClientMemory, error) {
	clientID, err := normalizeID(clientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(clientID)
	defer unlock()

	mem, created, err := s.loadOrNew(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.backend.Save(ctx, mem); err != nil {
			return nil, err
		}
		s.logger.Debug("created client memory", zap.String("client_id", clientID))
	}
	return mem.Clone(), nil
}

// MergePreferences applies the confidence-weighted merge rule to the stored
// preference set. It is the only way preferences change.
func (s *Store) MergePreferences(ctx context.Context, clientID string, delta []model.Preference) (*model.ClientMemory, error) {
	return s.update(ctx, clientID, func(mem *model.ClientMemory) {
		s.applyDelta(mem, delta, mem.NextTurnIndex()-1)
	})
}

// AppendTurn appends one turn to the client's log
func (s *Store) AppendTurn(ctx context.Context, clientID string, role model.Role, text string) (*model.ClientMemory, error) {
	return s.update(ctx, clientID, func(mem *model.ClientMemory) {
		kind := model.TurnKindMessage
		if role == model.RoleAssistant {
			kind = model.TurnKindGeneral
		}
		s.appendTurn(mem, role, text, kind, "")
	})
}

// CommitTurn writes a whole turn (merge, lead, user turn, assistant turn)
// under one lock and one backend write. If ctx is already done nothing is
// written.
func (s *Store) CommitTurn(ctx context.Context, clientID string, commit TurnCommit) (*model.ClientMemory, error) {
	return s.update(ctx, clientID, func(mem *model.ClientMemory) {
		if commit.Lead != nil && commit.Lead.Name != "" {
			lead := *commit.Lead
			mem.Lead = &lead
		}

		userIndex := mem.NextTurnIndex()
		s.appendTurn(mem, model.RoleUser, commit.UserText, model.TurnKindMessage, "")
		s.applyDelta(mem, commit.Delta, userIndex)

		if commit.Reply != "" {
			s.appendTurn(mem, model.RoleAssistant, commit.Reply, commit.ReplyKind, commit.ReplyAction)
		}
	})
}

// Get returns a copy of the stored memory or ErrNotFound
func (s *Store) Get(ctx context.Context, clientID string) (*model.ClientMemory, error) {
	clientID, err := normalizeID(clientID)
	if err != nil {
		return nil, err
	}
	return s.backend.Load(ctx, clientID)
}

// History returns the client's full turn sequence
func (s *Store) History(ctx context.Context, clientID string) ([]model.Turn, error) {
	mem, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return mem.Turns, nil
}

// View returns the audit view of a client's conversation
func (s *Store) View(ctx context.Context, clientID string) (*model.ConversationView, error) {
	mem, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return mem.View(), nil
}

// Delete forgets a client
func (s *Store) Delete(ctx context.Context, clientID string) error {
	clientID, err := normalizeID(clientID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(clientID)
	defer unlock()

	return s.backend.Delete(ctx, clientID)
}

// Stats counts stored clients and turns
func (s *Store) Stats(ctx context.Context) (*model.MemoryStats, error) {
	ids, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.MemoryStats{Backend: s.backend.Name()}
	for _, id := range ids {
		mem, err := s.backend.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		stats.Clients++
		stats.Turns += len(mem.Turns)
	}
	metrics.ActiveSessions.Set(float64(stats.Clients))
	return stats, nil
}

// update runs fn on a private copy and saves it under the client lock
func (s *Store) update(ctx context.Context, clientID string, fn func(mem *model.ClientMemory)) (*model.ClientMemory, error) {
	clientID, err := normalizeID(clientID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(clientID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("turn not committed: %w", err)
	}

	mem, _, err := s.loadOrNew(ctx, clientID)
	if err != nil {
		return nil, err
	}

	fn(mem)
	mem.UpdatedAt = s.now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("turn not committed: %w", err)
	}
	if err := s.backend.Save(ctx, mem); err != nil {
		return nil, err
	}
	return mem.Clone(), nil
}

func (s *Store) loadOrNew(ctx context.Context, clientID string) (*model.ClientMemory, bool, error) {
	mem, err := s.backend.Load(ctx, clientID)
	if err == nil {
		return mem, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	return model.NewClientMemory(clientID, s.now()), true, nil
}

func (s *Store) appendTurn(mem *model.ClientMemory, role model.Role, text string, kind model.TurnKind, action model.Action) {
	mem.Turns = append(mem.Turns, model.Turn{
		ID:        uuid.NewString(),
		Index:     mem.NextTurnIndex(),
		Role:      role,
		Text:      text,
		Kind:      kind,
		Action:    action,
		CreatedAt: s.now(),
	})
}

func (s *Store) applyDelta(mem *model.ClientMemory, delta []model.Preference, turn int) {
	if len(delta) == 0 {
		return
	}
	if turn < 0 {
		turn = 0
	}

	stamped := make([]model.Preference, len(delta))
	for i, p := range delta {
		p.Turn = turn
		stamped[i] = p
	}

	merged, changed := model.MergePreferences(mem.Preferences, stamped)
	mem.Preferences = merged
	if community := merged.Value(model.FieldCommunity); community != "" {
		mem.CommunityID = community
	}

	if len(changed) > 0 {
		s.logger.Debug("merged preferences",
			zap.String("client_id", mem.ClientID),
			zap.Any("changed", changed),
		)
	}
}

func normalizeID(clientID string) (string, error) {
	id := strings.TrimSpace(clientID)
	if id == "" {
		return "", ErrInvalidClientID
	}
	return id, nil
}
