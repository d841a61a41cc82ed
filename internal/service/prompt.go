package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"renterchat/internal/model"
)

const extractionSystemPrompt = `You are a leasing assistant for an apartment operator. Extract the renter's stated preferences from one message.

Extract the following information if present:
- community: name of the apartment community the renter mentions (string, as written)
- move_in_date: desired move-in date as YYYY-MM-DD, only when the renter gives a full date (string)
- bedrooms: number of bedrooms, 0 for a studio (integer)
- pet_type: the kind of pet the renter has, singular (e.g. "dog", "cat", "hamster") (string)
- budget: maximum monthly rent in dollars (integer)
- unit_id: a specific unit number such as "12B" (string)

Important rules:
- Respond ONLY with valid JSON
- If a field is not mentioned, omit it
- Never guess; do not infer values the renter did not state
- For budgets: "2k" = 2000, "$1,850" = 1850

Examples:
Message: "Looking for a 2 bed at Sunset Ridge, I have a cat"
Response: {"community": "Sunset Ridge", "bedrooms": 2, "pet_type": "cat"}

Message: "Can I have a hamster?"
Response: {"pet_type": "hamster"}

Message: "Anything under 2k for a studio moving 2025-09-01?"
Response: {"bedrooms": 0, "budget": 2000, "move_in_date": "2025-09-01"}`

const replySystemPrompt = `You are a friendly, concise leasing assistant for an apartment operator. You help prospective renters with unit availability, pet policies and pricing, and you book tours.

Important rules:
- Only state facts that appear in the tool results; never invent units, prices, fees or policies
- Keep replies under 120 words and plain text (no markdown tables)
- Ask at most one question per reply
- Address the renter by first name when it is known
- If a tool result says "not_found" or "error", say you could not find that information and offer to connect them with a leasing specialist`

// fieldQuestions are the clarification questions asked per missing field
var fieldQuestions = map[model.Field]string{
	model.FieldCommunity:  "Which of our communities are you interested in?",
	model.FieldMoveInDate: "When are you hoping to move in?",
	model.FieldBedrooms:   "How many bedrooms are you looking for?",
	model.FieldPetType:    "What kind of pet do you have?",
	model.FieldBudget:     "What monthly budget do you have in mind?",
	model.FieldUnitID:     "Which unit would you like a quote for?",
}

// BuildSystemPrompt renders the composer system prompt with the directive
// for this turn's decision
func BuildSystemPrompt(rc *ReplyContext) string {
	var b strings.Builder
	b.WriteString(replySystemPrompt)
	b.WriteString("\n\nDirective for this reply:\n")
	b.WriteString(directive(rc))
	return b.String()
}

// BuildUserPrompt renders history, known preferences, tool results and the
// renter's message. historyTurns bounds how many past turns are included.
func BuildUserPrompt(rc *ReplyContext, historyTurns int) string {
	var b strings.Builder

	if name := rc.Lead.FirstName(); name != "" {
		fmt.Fprintf(&b, "Renter first name: %s\n", name)
	}
	fmt.Fprintf(&b, "Today's date: %s\n\n", rc.Now.Format(model.DateLayout))

	history := rc.History
	if historyTurns >= 0 && len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
		b.WriteString("\n")
	}

	if values := knownValues(rc.Preferences); len(values) > 0 {
		b.WriteString("Known preferences:\n")
		for _, kv := range values {
			fmt.Fprintf(&b, "- %s: %s\n", kv[0], kv[1])
		}
		b.WriteString("\n")
	}

	if len(rc.Results) > 0 {
		b.WriteString("Tool results (JSON):\n")
		for _, r := range rc.Results {
			b.WriteString(resultJSON(r))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Renter message:\n%s", rc.Message)
	return b.String()
}

func directive(rc *ReplyContext) string {
	d := rc.Decision
	switch d.Kind {
	case DecisionAsk:
		return fmt.Sprintf("Ask the renter exactly this one question, in your own words: %q Do not answer anything else yet.",
			fieldQuestions[d.QuestionField])
	case DecisionReadyForTour:
		return "Briefly answer using the tool results if any, then invite the renter to schedule a tour. Offer a tour time rather than asking open-ended questions."
	case DecisionHandoff:
		return "Apologize that you could not find what they asked about and tell them you will connect them with a leasing specialist."
	}
	if len(rc.Results) == 0 {
		return "Answer helpfully and ask what they are looking for in a new home."
	}
	return "Answer the renter's question using only the tool results."
}

// knownValues lists set preferences in field priority order
func knownValues(prefs model.PreferenceSet) [][2]string {
	var out [][2]string
	for _, f := range model.Fields {
		if v := prefs.Value(f); v != "" {
			out = append(out, [2]string{string(f), v})
		}
	}
	return out
}

func resultJSON(r model.ToolResult) string {
	view := struct {
		Tool    string           `json:"tool"`
		Status  model.ToolStatus `json:"status"`
		Reason  string           `json:"reason,omitempty"`
		Missing []model.Field    `json:"missing,omitempty"`
		Payload any              `json:"payload,omitempty"`
	}{
		Tool:    r.Call.Name,
		Status:  r.Status,
		Reason:  r.Reason,
		Missing: r.Missing,
		Payload: r.Payload,
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"status":%q}`, r.Call.Name, r.Status)
	}
	return string(data)
}
