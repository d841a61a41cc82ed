package model

import (
	"strconv"
	"strings"
	"time"
)

// Action is the next-step hint returned to the calling interface
type Action string

const (
	ActionProposeTour      Action = "propose_tour"
	ActionAskClarification Action = "ask_clarification"
	ActionHandoffHuman     Action = "handoff_human"
)

// ChatRequest is the inbound message envelope
type ChatRequest struct {
	ClientID    string           `json:"client_id"`
	Message     string           `json:"message"`
	Lead        *Lead            `json:"lead,omitempty"`
	Preferences *PreferenceHints `json:"preferences,omitempty"`
	CommunityID string           `json:"community_id,omitempty"`
}

// PreferenceHints are explicit values supplied by the caller's form
type PreferenceHints struct {
	Bedrooms *int   `json:"bedrooms,omitempty"`
	MoveIn   string `json:"move_in,omitempty"`
	PetType  string `json:"pet_type,omitempty"`
	Budget   *int   `json:"budget,omitempty"`
}

// ResolveClientID returns the memory key for the request: the explicit
// client id, else the lead's email.
func (r *ChatRequest) ResolveClientID() string {
	if id := strings.TrimSpace(r.ClientID); id != "" {
		return id
	}
	if r.Lead != nil {
		return strings.ToLower(strings.TrimSpace(r.Lead.Email))
	}
	return ""
}

// HintPreferences converts explicit hints into exact-confidence preferences
func (r *ChatRequest) HintPreferences() []Preference {
	var out []Preference

	if id := strings.ToLower(strings.TrimSpace(r.CommunityID)); id != "" {
		out = append(out, Preference{Field: FieldCommunity, Value: id, Confidence: 1.0})
	}

	h := r.Preferences
	if h == nil {
		return out
	}
	if h.Bedrooms != nil {
		out = append(out, Preference{Field: FieldBedrooms, Value: strconv.Itoa(*h.Bedrooms), Confidence: 1.0})
	}
	if h.MoveIn != "" {
		out = append(out, Preference{Field: FieldMoveInDate, Value: strings.TrimSpace(h.MoveIn), Confidence: 1.0})
	}
	if h.PetType != "" {
		out = append(out, Preference{Field: FieldPetType, Value: strings.ToLower(strings.TrimSpace(h.PetType)), Confidence: 1.0})
	}
	if h.Budget != nil {
		out = append(out, Preference{Field: FieldBudget, Value: strconv.Itoa(*h.Budget), Confidence: 1.0})
	}

	return out
}

// ChatResponse is the outbound reply contract
type ChatResponse struct {
	Reply        string     `json:"reply"`
	Action       Action     `json:"action"`
	ProposedTime *time.Time `json:"proposed_time,omitempty"`
}

// MemoryStats summarizes the session store
type MemoryStats struct {
	Clients int    `json:"clients"`
	Turns   int    `json:"turns"`
	Backend string `json:"backend"`
}
