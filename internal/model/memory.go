package model

import "time"

// Role tags who produced a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnKind classifies assistant turns for dialogue bookkeeping
type TurnKind string

const (
	TurnKindMessage       TurnKind = "message" // user turns
	TurnKindAnswer        TurnKind = "answer"
	TurnKindClarification TurnKind = "clarification"
	TurnKindTour          TurnKind = "tour"
	TurnKindHandoff       TurnKind = "handoff"
	TurnKindGeneral       TurnKind = "general"
)

// Substantive reports whether the turn answered a domain question
func (k TurnKind) Substantive() bool {
	return k == TurnKindAnswer || k == TurnKindTour
}

// Turn is one entry of the append-only conversation log
type Turn struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Kind      TurnKind  `json:"kind,omitempty"`
	Action    Action    `json:"action,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Lead identifies the prospective renter
type Lead struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// FirstName returns the first word of the lead's name
func (l *Lead) FirstName() string {
	if l == nil {
		return ""
	}
	for i, r := range l.Name {
		if r == ' ' {
			return l.Name[:i]
		}
	}
	return l.Name
}

// ClientMemory is everything remembered about one client id
type ClientMemory struct {
	ClientID    string        `json:"client_id"`
	Turns       []Turn        `json:"turns"`
	Preferences PreferenceSet `json:"preferences"`
	Lead        *Lead         `json:"lead,omitempty"`
	CommunityID string        `json:"community_id,omitempty"` // Last known community
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewClientMemory creates an empty memory for a client
func NewClientMemory(clientID string, now time.Time) *ClientMemory {
	return &ClientMemory{
		ClientID:    clientID,
		Turns:       []Turn{},
		Preferences: PreferenceSet{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy that shares no mutable state with m
func (m *ClientMemory) Clone() *ClientMemory {
	if m == nil {
		return nil
	}
	out := *m
	out.Turns = append([]Turn(nil), m.Turns...)
	if out.Turns == nil {
		out.Turns = []Turn{}
	}
	out.Preferences = m.Preferences.Clone()
	if m.Lead != nil {
		lead := *m.Lead
		out.Lead = &lead
	}
	return &out
}

// SubstantiveTurns counts assistant turns that answered a domain question
func (m *ClientMemory) SubstantiveTurns() int {
	count := 0
	for _, t := range m.Turns {
		if t.Role == RoleAssistant && t.Kind.Substantive() {
			count++
		}
	}
	return count
}

// NextTurnIndex is the index the next appended turn will get
func (m *ClientMemory) NextTurnIndex() int {
	return len(m.Turns)
}

// TurnView is the audit/display shape of a turn
type TurnView struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Action    Action    `json:"action,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationView exposes a client's history without confidence bookkeeping
type ConversationView struct {
	ClientID    string            `json:"client_id"`
	Lead        *Lead             `json:"lead,omitempty"`
	CommunityID string            `json:"community_id,omitempty"`
	Preferences map[string]string `json:"preferences"`
	Turns       []TurnView        `json:"turns"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// View builds the public conversation view
func (m *ClientMemory) View() *ConversationView {
	turns := make([]TurnView, 0, len(m.Turns))
	for _, t := range m.Turns {
		turns = append(turns, TurnView{
			Role:      t.Role,
			Text:      t.Text,
			Action:    t.Action,
			CreatedAt: t.CreatedAt,
		})
	}

	var lead *Lead
	if m.Lead != nil {
		l := *m.Lead
		lead = &l
	}

	return &ConversationView{
		ClientID:    m.ClientID,
		Lead:        lead,
		CommunityID: m.CommunityID,
		Preferences: m.Preferences.Values(),
		Turns:       turns,
		UpdatedAt:   m.UpdatedAt,
	}
}
