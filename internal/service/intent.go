package service

import (
	"strings"

	"renterchat/internal/model"
)

// Intent is a kind of domain question the renter is asking
type Intent string

const (
	IntentAvailability Intent = "availability"
	IntentPetPolicy    Intent = "pet_policy"
	IntentPricing      Intent = "pricing"
)

// intentOrder is the order intents are reported and tools are gathered in
var intentOrder = []Intent{IntentAvailability, IntentPetPolicy, IntentPricing}

// intentKeywords are the phrase families that signal each intent
var intentKeywords = map[Intent][]string{
	IntentAvailability: {
		"available", "availability", "vacant", "vacancy", "vacancies", "opening",
		"any units", "bedroom", "studio", "floor plan", "move in",
	},
	IntentPetPolicy: {
		"pet", "pets", "animal", "allow", "breed",
	},
	IntentPricing: {
		"price", "pricing", "rent", "cost", "how much", "special", "specials", "deal",
		"discount", "fee", "fees", "deposit", "afford", "budget", "per month", "monthly",
	},
}

// IntentSet is the set of intents detected for one message
type IntentSet map[Intent]bool

// Has reports whether the intent is present
func (s IntentSet) Has(i Intent) bool {
	return s[i]
}

// Empty reports whether no intent was detected
func (s IntentSet) Empty() bool {
	return len(s) == 0
}

// List returns the intents in gather order
func (s IntentSet) List() []Intent {
	var out []Intent
	for _, i := range intentOrder {
		if s[i] {
			out = append(out, i)
		}
	}
	return out
}

// DetectIntents scans a message for intent keywords. Extracted values imply
// intents too: a pet implies a pet policy question, a bedroom count an
// availability question and a budget a pricing question.
func DetectIntents(message string, delta []model.Preference) IntentSet {
	set := IntentSet{}
	text := " " + strings.Join(strings.Fields(strings.ToLower(stripPunctuation(message))), " ") + " "

	for _, intent := range intentOrder {
		for _, kw := range intentKeywords[intent] {
			// Keywords of four letters or more also match inflected forms
			// such as "allowed" or "bedrooms"
			if strings.Contains(text, " "+kw+" ") || len(kw) >= 4 && strings.Contains(text, " "+kw) {
				set[intent] = true
				break
			}
		}
	}

	for _, p := range delta {
		switch p.Field {
		case model.FieldPetType:
			set[IntentPetPolicy] = true
		case model.FieldBedrooms:
			set[IntentAvailability] = true
		case model.FieldBudget:
			set[IntentPricing] = true
		}
	}

	return set
}

// Helper functions

// stripPunctuation replaces everything except ASCII letters and digits
// with spaces
func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return ' '
	}, s)
}
