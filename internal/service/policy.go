package service

import (
	"renterchat/internal/model"
)

// DecisionKind is what the agent should do with the current turn
type DecisionKind string

const (
	DecisionProceed      DecisionKind = "proceed_with_tools"
	DecisionAsk          DecisionKind = "ask_clarification"
	DecisionReadyForTour DecisionKind = "ready_for_tour"
	DecisionHandoff      DecisionKind = "handoff_human"
)

// DialogueState is derived from memory on every turn and never stored
type DialogueState struct {
	Missing          []model.Field `json:"missing"`
	SubstantiveTurns int           `json:"substantive_turns"`
	ReadyForTour     bool          `json:"ready_for_tour"`
	Intents          []Intent      `json:"intents"`
}

// Decision is the policy outcome for one turn
type Decision struct {
	Kind          DecisionKind  `json:"kind"`
	QuestionField model.Field   `json:"question_field,omitempty"`
	State         DialogueState `json:"state"`
	Reason        string        `json:"reason,omitempty"`
}

// TurnKind maps a decision onto the kind recorded for the assistant turn
func (d Decision) TurnKind(results []model.ToolResult) model.TurnKind {
	switch d.Kind {
	case DecisionAsk:
		return model.TurnKindClarification
	case DecisionReadyForTour:
		return model.TurnKindTour
	case DecisionHandoff:
		return model.TurnKindHandoff
	}
	for _, r := range results {
		if r.OK() {
			return model.TurnKindAnswer
		}
	}
	return model.TurnKindGeneral
}

// Policy decides whether to ask, fetch, or propose a tour
type Policy struct {
	retention float64
	tourTurns int
}

// NewPolicy creates a policy. Fields at or above retention confidence count
// as known; tourTurns substantive answers make a client ready for a tour.
func NewPolicy(retention float64, tourTurns int) *Policy {
	if tourTurns < 1 {
		tourTurns = 2
	}
	return &Policy{retention: retention, tourTurns: tourTurns}
}

// State derives the dialogue state from memory and this turn's intents
func (p *Policy) State(mem *model.ClientMemory, intents IntentSet) DialogueState {
	prefs := mem.Preferences
	state := DialogueState{
		SubstantiveTurns: mem.SubstantiveTurns(),
		Intents:          intents.List(),
	}

	for _, f := range p.required(prefs, intents) {
		if !prefs.Known(f, p.retention) {
			state.Missing = append(state.Missing, f)
		}
	}

	state.ReadyForTour = state.SubstantiveTurns >= p.tourTurns &&
		prefs.Known(model.FieldCommunity, p.retention) &&
		prefs.Known(model.FieldMoveInDate, p.retention)
	return state
}

// Decide applies the question ordering: community first, then tour
// readiness, then move-in date for availability or pricing questions, then
// whatever else the detected intents need.
func (p *Policy) Decide(mem *model.ClientMemory, intents IntentSet) Decision {
	state := p.State(mem, intents)
	prefs := mem.Preferences

	if !prefs.Known(model.FieldCommunity, p.retention) {
		return Decision{Kind: DecisionAsk, QuestionField: model.FieldCommunity, State: state}
	}
	if state.ReadyForTour {
		return Decision{Kind: DecisionReadyForTour, State: state}
	}
	if (intents.Has(IntentAvailability) || intents.Has(IntentPricing)) && !prefs.Known(model.FieldMoveInDate, p.retention) {
		return Decision{Kind: DecisionAsk, QuestionField: model.FieldMoveInDate, State: state}
	}
	if len(state.Missing) > 0 {
		return Decision{Kind: DecisionAsk, QuestionField: state.Missing[0], State: state}
	}
	return Decision{Kind: DecisionProceed, State: state}
}

// Review downgrades a decision to a handoff when every gathered tool failed
// and at least one failure was a catalog miss
func (p *Policy) Review(d Decision, results []model.ToolResult) Decision {
	if d.Kind != DecisionProceed && d.Kind != DecisionReadyForTour {
		return d
	}
	if len(results) == 0 {
		return d
	}

	notFound := false
	for _, r := range results {
		if r.OK() {
			return d
		}
		if r.Status == model.ToolStatusNotFound {
			notFound = true
		}
	}
	if !notFound {
		return d
	}

	d.Kind = DecisionHandoff
	d.QuestionField = ""
	d.Reason = "catalog lookup failed"
	return d
}

// required lists the fields this turn's intents need, in priority order
func (p *Policy) required(prefs model.PreferenceSet, intents IntentSet) []model.Field {
	fields := []model.Field{model.FieldCommunity}
	if intents.Has(IntentAvailability) || intents.Has(IntentPricing) {
		fields = append(fields, model.FieldMoveInDate)
	}
	needsBedrooms := intents.Has(IntentAvailability) ||
		intents.Has(IntentPricing) && !prefs.Known(model.FieldUnitID, p.retention)
	if needsBedrooms {
		fields = append(fields, model.FieldBedrooms)
	}
	if intents.Has(IntentPetPolicy) {
		fields = append(fields, model.FieldPetType)
	}
	return fields
}
