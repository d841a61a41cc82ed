package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"renterchat/internal/metrics"
	"renterchat/internal/model"
	"renterchat/internal/session"

	"go.uber.org/zap"
)

// ErrInvalidEnvelope is returned for requests without a message or without
// any way to identify the client
var ErrInvalidEnvelope = errors.New("invalid request envelope")

// FallbackReply is sent when the reply could not be composed
const FallbackReply = "I apologize, but I'm experiencing technical difficulties. Let me connect you with one of our leasing specialists who can assist you immediately."

// Agent runs one conversation turn end to end
type Agent struct {
	store        *session.Store
	extractor    *Extractor
	policy       *Policy
	orchestrator *Orchestrator
	composer     ReplyComposer
	classifier   *Classifier
	timeout      time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// AgentOption configures an Agent
type AgentOption func(*Agent)

// WithAgentClock overrides the clock passed to composers
func WithAgentClock(now func() time.Time) AgentOption {
	return func(a *Agent) { a.now = now }
}

// WithComposeTimeout bounds reply composition; a timeout counts as a
// composer failure
func WithComposeTimeout(d time.Duration) AgentOption {
	return func(a *Agent) { a.timeout = d }
}

// NewAgent wires the turn pipeline
func NewAgent(
	store *session.Store,
	extractor *Extractor,
	policy *Policy,
	orchestrator *Orchestrator,
	composer ReplyComposer,
	classifier *Classifier,
	logger *zap.Logger,
	opts ...AgentOption,
) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{
		store:        store,
		extractor:    extractor,
		policy:       policy,
		orchestrator: orchestrator,
		composer:     composer,
		classifier:   classifier,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reply answers one message
func (a *Agent) Reply(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	return a.run(ctx, req, nil)
}

// ReplyStream answers one message, sending reply text to onDelta as it is
// produced. The returned response carries the full reply and the action.
func (a *Agent) ReplyStream(ctx context.Context, req *model.ChatRequest, onDelta func(string) error) (*model.ChatResponse, error) {
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	return a.run(ctx, req, onDelta)
}

// turn carries the per-request working state through the pipeline
type turn struct {
	clientID string
	req      *model.ChatRequest
	memory   *model.ClientMemory
	delta    []model.Preference
	intents  IntentSet
	decision Decision
	results  []model.ToolResult
}

func (a *Agent) run(ctx context.Context, req *model.ChatRequest, onDelta func(string) error) (*model.ChatResponse, error) {
	start := time.Now()

	clientID, err := ValidateEnvelope(req)
	if err != nil {
		metrics.InvalidEnvelopes.Inc()
		return nil, err
	}

	mem, err := a.store.GetOrCreate(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}
	t := &turn{clientID: clientID, req: req, memory: mem}

	a.understand(ctx, t)
	a.decide(ctx, t)

	reply, failed := a.compose(ctx, t, onDelta)
	decision := t.decision
	if failed {
		decision.Kind = DecisionHandoff
		decision.Reason = "reply composition failed"
	}
	action, proposed := a.classifier.Classify(reply, decision)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("turn not committed: %w", err)
	}
	_, err = a.store.CommitTurn(ctx, clientID, session.TurnCommit{
		Delta:       t.delta,
		Lead:        req.Lead,
		UserText:    req.Message,
		Reply:       reply,
		ReplyKind:   decision.TurnKind(t.results),
		ReplyAction: action,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit turn: %w", err)
	}

	metrics.TurnsTotal.WithLabelValues(string(action)).Inc()
	a.logger.Info("turn completed",
		zap.String("client_id", clientID),
		zap.String("decision", string(decision.Kind)),
		zap.String("action", string(action)),
		zap.Strings("intents", intentNames(t.intents)),
		zap.Int("tool_results", len(t.results)),
		zap.Duration("duration", time.Since(start)),
	)

	return &model.ChatResponse{Reply: reply, Action: action, ProposedTime: proposed}, nil
}

// understand extracts preferences and intents. Nothing is stored yet: the
// delta is previewed against a copy of memory and committed with the turn.
func (a *Agent) understand(ctx context.Context, t *turn) {
	t.delta = a.extractor.ResolveHints(ctx, t.req.HintPreferences())
	t.delta = append(t.delta, a.extractor.Extract(ctx, t.req.Message, t.memory)...)

	preview, _ := model.MergePreferences(t.memory.Preferences, t.delta)
	t.memory.Preferences = preview
	if t.req.Lead != nil && t.req.Lead.Name != "" {
		t.memory.Lead = t.req.Lead
	}

	t.intents = DetectIntents(t.req.Message, t.delta)
}

func (a *Agent) decide(ctx context.Context, t *turn) {
	t.decision = a.policy.Decide(t.memory, t.intents)

	gather := t.decision.Kind == DecisionProceed ||
		t.decision.Kind == DecisionReadyForTour && !t.intents.Empty()
	if gather {
		t.results = a.orchestrator.Gather(ctx, t.intents, t.memory.Preferences)
		t.decision = a.policy.Review(t.decision, t.results)
	}

	a.logger.Debug("policy decision",
		zap.String("client_id", t.clientID),
		zap.String("kind", string(t.decision.Kind)),
		zap.String("question_field", string(t.decision.QuestionField)),
		zap.Any("missing", t.decision.State.Missing),
		zap.Int("substantive_turns", t.decision.State.SubstantiveTurns),
		zap.String("reason", t.decision.Reason),
	)
}

// compose writes the reply. On provider failure it returns the apology and
// reports failed; the provider error is only logged.
func (a *Agent) compose(ctx context.Context, t *turn, onDelta func(string) error) (string, bool) {
	rc := &ReplyContext{
		ClientID:    t.clientID,
		Lead:        t.memory.Lead,
		Message:     t.req.Message,
		History:     t.memory.Turns,
		Preferences: t.memory.Preferences,
		Decision:    t.decision,
		Results:     t.results,
		Now:         a.now(),
	}

	composeCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		composeCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var (
		reply string
		err   error
	)
	streamed := false
	emit := func(delta string) error {
		streamed = true
		return onDelta(delta)
	}

	streamer, canStream := a.composer.(StreamingComposer)
	switch {
	case onDelta == nil:
		reply, err = a.composer.Compose(composeCtx, rc)
	case canStream:
		reply, err = streamer.ComposeStream(composeCtx, rc, emit)
	default:
		reply, err = a.composer.Compose(composeCtx, rc)
		if err == nil {
			err = emit(reply)
		}
	}
	if err == nil {
		return reply, false
	}

	metrics.LLMFailures.WithLabelValues(a.composer.Name()).Inc()
	a.logger.Error("failed to compose reply",
		zap.String("client_id", t.clientID),
		zap.String("composer", a.composer.Name()),
		zap.Error(err),
	)

	reply = FallbackReply
	if name := rc.Lead.FirstName(); name != "" {
		reply = fmt.Sprintf("%s, %s", name, FallbackReply)
	}
	// After partial output the caller replaces the text with the final reply
	if onDelta != nil && !streamed && ctx.Err() == nil {
		_ = onDelta(reply)
	}
	return reply, true
}

// ValidateEnvelope returns the client id a request resolves to, or
// ErrInvalidEnvelope when the message or every client identifier is missing
func ValidateEnvelope(req *model.ChatRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("%w: empty request", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(req.Message) == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidEnvelope)
	}
	clientID := req.ResolveClientID()
	if clientID == "" {
		return "", fmt.Errorf("%w: client_id or lead email is required", ErrInvalidEnvelope)
	}
	return clientID, nil
}
