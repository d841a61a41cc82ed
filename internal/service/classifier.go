package service

import (
	"regexp"
	"strings"
	"time"

	"renterchat/internal/model"
)

// Phrase families used when the policy leaves the action open
var (
	handoffPhrases = []string{
		"connect you with",
		"leasing specialist",
		"specialist",
		"complex",
	}
	tourPhrases = []string{
		"schedule a tour",
		"tour available",
		"would you like to see",
		"tour time",
	}
	clarifyPhrases = []string{
		"could you tell me",
		"what are you looking for",
		"more information",
		"help me understand",
	}
)

var rfc3339Pattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})`)

// Classifier tags a finished reply with the next-step action
type Classifier struct {
	leadDays int
	hour     int
	loc      *time.Location
	now      func() time.Time
}

// NewClassifier creates a classifier that proposes tours leadDays ahead at
// hour:00 in loc
func NewClassifier(leadDays, hour int, loc *time.Location, now func() time.Time) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Classifier{leadDays: leadDays, hour: hour, loc: loc, now: now}
}

// Classify returns the action for a reply. The decision fixes the action for
// every kind except proceed, where the reply text is scanned.
func (c *Classifier) Classify(reply string, d Decision) (model.Action, *time.Time) {
	var action model.Action
	switch d.Kind {
	case DecisionReadyForTour:
		action = model.ActionProposeTour
	case DecisionAsk:
		action = model.ActionAskClarification
	case DecisionHandoff:
		action = model.ActionHandoffHuman
	default:
		action = scanAction(reply)
	}

	if action != model.ActionProposeTour {
		return action, nil
	}
	t := c.proposedTime(reply)
	return action, &t
}

func scanAction(reply string) model.Action {
	text := strings.ToLower(reply)
	switch {
	case containsAny(text, handoffPhrases):
		return model.ActionHandoffHuman
	case containsAny(text, tourPhrases):
		return model.ActionProposeTour
	case containsAny(text, clarifyPhrases):
		return model.ActionAskClarification
	}
	return model.ActionAskClarification
}

// proposedTime honors a timestamp the reply already committed to, else
// picks the default slot
func (c *Classifier) proposedTime(reply string) time.Time {
	if m := rfc3339Pattern.FindString(reply); m != "" {
		if t, err := time.Parse(time.RFC3339, m); err == nil {
			return t
		}
	}
	day := c.now().In(c.loc).AddDate(0, 0, c.leadDays)
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, 0, 0, 0, c.loc)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
