package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"renterchat/internal/metrics"
	"renterchat/internal/model"
	"renterchat/internal/tools"

	"go.uber.org/zap"
)

// ReplyContext is everything a composer may use to write one reply
type ReplyContext struct {
	ClientID    string
	Lead        *model.Lead
	Message     string
	History     []model.Turn
	Preferences model.PreferenceSet
	Decision    Decision
	Results     []model.ToolResult
	Now         time.Time
}

// ReplyComposer writes the natural-language reply for a turn
type ReplyComposer interface {
	Compose(ctx context.Context, rc *ReplyContext) (string, error)
	Name() string
}

// StreamingComposer can emit the reply incrementally
type StreamingComposer interface {
	ReplyComposer
	ComposeStream(ctx context.Context, rc *ReplyContext, onDelta func(string) error) (string, error)
}

// StreamCompleter is a TextCompleter that can stream its answer
type StreamCompleter interface {
	TextCompleter
	CompleteStream(ctx context.Context, system, user string, onDelta func(string) error) (string, error)
}

// LLMComposer composes replies with a language model
type LLMComposer struct {
	llm          TextCompleter
	historyTurns int
	logger       *zap.Logger
}

// NewLLMComposer creates a composer over llm
func NewLLMComposer(llm TextCompleter, historyTurns int, logger *zap.Logger) *LLMComposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMComposer{llm: llm, historyTurns: historyTurns, logger: logger}
}

// Name implements ReplyComposer
func (c *LLMComposer) Name() string {
	return c.llm.Name()
}

// Compose implements ReplyComposer
func (c *LLMComposer) Compose(ctx context.Context, rc *ReplyContext) (string, error) {
	start := time.Now()
	reply, err := c.llm.Complete(ctx, BuildSystemPrompt(rc), BuildUserPrompt(rc, c.historyTurns))
	metrics.LLMDuration.WithLabelValues(c.llm.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return cleanReply(reply)
}

// ComposeStream implements StreamingComposer. Providers without streaming
// deliver the whole reply as a single delta.
func (c *LLMComposer) ComposeStream(ctx context.Context, rc *ReplyContext, onDelta func(string) error) (string, error) {
	streamer, ok := c.llm.(StreamCompleter)
	if !ok {
		reply, err := c.Compose(ctx, rc)
		if err != nil {
			return "", err
		}
		if err := onDelta(reply); err != nil {
			return "", err
		}
		return reply, nil
	}

	start := time.Now()
	reply, err := streamer.CompleteStream(ctx, BuildSystemPrompt(rc), BuildUserPrompt(rc, c.historyTurns), onDelta)
	metrics.LLMDuration.WithLabelValues(c.llm.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return cleanReply(reply)
}

func cleanReply(reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty reply from model")
	}
	return reply, nil
}

// TemplateComposer writes deterministic replies from the decision and tool
// results; used when no model provider is configured and in tests
type TemplateComposer struct {
	communityNames map[string]string
}

// NewTemplateComposer creates a template composer; communityNames maps
// community ids to display names
func NewTemplateComposer(communityNames map[string]string) *TemplateComposer {
	if communityNames == nil {
		communityNames = map[string]string{}
	}
	return &TemplateComposer{communityNames: communityNames}
}

// Name implements ReplyComposer
func (c *TemplateComposer) Name() string {
	return "template"
}

// Compose implements ReplyComposer
func (c *TemplateComposer) Compose(_ context.Context, rc *ReplyContext) (string, error) {
	var parts []string
	if name := rc.Lead.FirstName(); name != "" {
		parts = append(parts, fmt.Sprintf("Hi %s!", name))
	}

	switch rc.Decision.Kind {
	case DecisionAsk:
		for _, r := range rc.Results {
			if r.OK() {
				parts = append(parts, c.summarize(r))
			}
		}
		parts = append(parts, fieldQuestions[rc.Decision.QuestionField])
	case DecisionHandoff:
		parts = append(parts,
			"I wasn't able to find that in our current listings.",
			"Let me connect you with one of our leasing specialists who can help.")
	case DecisionReadyForTour:
		for _, r := range rc.Results {
			if r.OK() {
				parts = append(parts, c.summarize(r))
			}
		}
		parts = append(parts, fmt.Sprintf("Would you like to schedule a tour of %s?", c.communityName(rc.Preferences.Value(model.FieldCommunity))))
	default:
		answered := false
		for _, r := range rc.Results {
			if s := c.summarize(r); s != "" {
				parts = append(parts, s)
				answered = answered || r.OK()
			}
		}
		if !answered {
			parts = append(parts, "Could you tell me a bit more about what you're looking for in your next home?")
		}
	}

	return strings.Join(parts, " "), nil
}

func (c *TemplateComposer) summarize(r model.ToolResult) string {
	if !r.OK() {
		switch r.Status {
		case model.ToolStatusNotFound:
			return "I couldn't find that in our listings."
		case model.ToolStatusInsufficientInformation:
			if len(r.Missing) > 0 {
				return fieldQuestions[r.Missing[0]]
			}
		}
		return ""
	}

	switch p := r.Payload.(type) {
	case *tools.AvailabilityResult:
		name := c.communityName(p.CommunityID)
		if !p.Available {
			return fmt.Sprintf("%s has no %s available right now.", name, bedroomLabel(p.Bedrooms, true))
		}
		ids := make([]string, len(p.Units))
		for i, u := range p.Units {
			ids[i] = u.UnitID
		}
		return fmt.Sprintf("%s has %d %s available (%s).", name, p.Count, bedroomLabel(p.Bedrooms, p.Count != 1), strings.Join(ids, ", "))
	case *tools.PetPolicyResult:
		pet := strings.ReplaceAll(p.PetType, "_", " ")
		if !strings.HasSuffix(pet, "s") {
			pet += "s"
		}
		name := c.communityName(p.CommunityID)
		if !p.Allowed {
			if p.Notes != "" {
				return fmt.Sprintf("%s: %s.", name, strings.TrimSuffix(p.Notes, "."))
			}
			return fmt.Sprintf("Unfortunately %s are not allowed at %s.", pet, name)
		}
		s := fmt.Sprintf("Good news, %s are welcome at %s", pet, name)
		var terms []string
		if p.Fee > 0 {
			terms = append(terms, fmt.Sprintf("a $%d fee", p.Fee))
		}
		if p.Deposit > 0 {
			terms = append(terms, fmt.Sprintf("a $%d deposit", p.Deposit))
		}
		if p.MonthlyRent > 0 {
			terms = append(terms, fmt.Sprintf("$%d monthly pet rent", p.MonthlyRent))
		}
		if len(terms) > 0 {
			s += " with " + joinWords(terms)
		}
		return s + "."
	case *tools.PricingResult:
		s := fmt.Sprintf("Unit %s at %s rents for $%.0f/month", p.UnitID, c.communityName(p.CommunityID), p.Pricing.BaseRent)
		if p.Pricing.EffectiveRent < p.Pricing.BaseRent {
			s += fmt.Sprintf(" ($%.0f/month with current specials)", p.Pricing.EffectiveRent)
		}
		s += fmt.Sprintf(", with a $%.0f security deposit.", p.Pricing.SecurityDeposit)
		if len(p.Specials) > 0 {
			names := make([]string, len(p.Specials))
			for i, sp := range p.Specials {
				names[i] = sp.Name
			}
			s += " Specials applied: " + strings.Join(names, ", ") + "."
		}
		return s
	}
	return ""
}

func (c *TemplateComposer) communityName(id string) string {
	if name, ok := c.communityNames[id]; ok {
		return name
	}
	if id == "" {
		return "our community"
	}
	return id
}

func bedroomLabel(n int, plural bool) string {
	unit := "unit"
	if plural {
		unit = "units"
	}
	if n == 0 {
		return "studio " + unit
	}
	return fmt.Sprintf("%d-bedroom %s", n, unit)
}
