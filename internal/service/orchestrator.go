package service

import (
	"context"

	"renterchat/internal/model"
	"renterchat/internal/tools"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ToolInvoker runs a single tool call and always returns a typed result
type ToolInvoker interface {
	Invoke(ctx context.Context, call model.ToolCall) model.ToolResult
}

var _ ToolInvoker = (*tools.Registry)(nil)

// Orchestrator turns detected intents into tool calls
type Orchestrator struct {
	tools  ToolInvoker
	ranker *Ranker
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator over a tool invoker
func NewOrchestrator(invoker ToolInvoker, ranker *Ranker, logger *zap.Logger) *Orchestrator {
	if ranker == nil {
		ranker = NewRanker(0.5, 0.3, 0.2)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{tools: invoker, ranker: ranker, logger: logger}
}

// Invoke runs one named tool
func (o *Orchestrator) Invoke(ctx context.Context, name string, args map[string]any) model.ToolResult {
	return o.tools.Invoke(ctx, model.ToolCall{Name: name, Arguments: args})
}

// Gather runs the tools the intents need. Calls are independent and run
// concurrently; results come back in availability, pet policy, pricing order.
func (o *Orchestrator) Gather(ctx context.Context, intents IntentSet, prefs model.PreferenceSet) []model.ToolResult {
	var plan []func(context.Context) model.ToolResult
	if intents.Has(IntentAvailability) {
		plan = append(plan, func(ctx context.Context) model.ToolResult { return o.availability(ctx, prefs) })
	}
	if intents.Has(IntentPetPolicy) {
		plan = append(plan, func(ctx context.Context) model.ToolResult { return o.petPolicy(ctx, prefs) })
	}
	if intents.Has(IntentPricing) {
		plan = append(plan, func(ctx context.Context) model.ToolResult { return o.pricing(ctx, prefs) })
	}
	if len(plan) == 0 {
		return nil
	}

	results := make([]model.ToolResult, len(plan))
	var g errgroup.Group
	for i, run := range plan {
		i, run := i, run // per-iteration copies (go directive is 1.21)
		g.Go(func() error {
			results[i] = run(ctx)
			return nil
		})
	}
	_ = g.Wait() // calls report failures in their results

	o.logger.Debug("gathered tool results",
		zap.Strings("intents", intentNames(intents)),
		zap.Int("results", len(results)))
	return results
}

func (o *Orchestrator) availability(ctx context.Context, prefs model.PreferenceSet) model.ToolResult {
	bedrooms, ok := prefs.Int(model.FieldBedrooms)
	if missing := missingFields(prefs, ok, model.FieldCommunity, model.FieldBedrooms); len(missing) > 0 {
		return insufficient(model.ToolCheckAvailability, missing)
	}
	return o.Invoke(ctx, model.ToolCheckAvailability, map[string]any{
		"community_id": prefs.Value(model.FieldCommunity),
		"bedrooms":     bedrooms,
	})
}

func (o *Orchestrator) petPolicy(ctx context.Context, prefs model.PreferenceSet) model.ToolResult {
	if missing := missingFields(prefs, true, model.FieldCommunity, model.FieldPetType); len(missing) > 0 {
		return insufficient(model.ToolCheckPetPolicy, missing)
	}
	return o.Invoke(ctx, model.ToolCheckPetPolicy, map[string]any{
		"community_id": prefs.Value(model.FieldCommunity),
		"pet_type":     prefs.Value(model.FieldPetType),
	})
}

// pricing quotes the known unit, or the best-ranked available unit for the
// requested bedroom count when no unit was named
func (o *Orchestrator) pricing(ctx context.Context, prefs model.PreferenceSet) model.ToolResult {
	if missing := missingFields(prefs, true, model.FieldCommunity, model.FieldMoveInDate); len(missing) > 0 {
		return insufficient(model.ToolGetPricing, missing)
	}

	unitID := prefs.Value(model.FieldUnitID)
	if unitID == "" {
		avail := o.availability(ctx, prefs)
		if !avail.OK() {
			avail.Call.Name = model.ToolGetPricing
			return avail
		}
		found, _ := avail.Payload.(*tools.AvailabilityResult)
		if found == nil || len(found.Units) == 0 {
			return model.ToolResult{
				Call:    model.ToolCall{Name: model.ToolGetPricing},
				Status:  model.ToolStatusInsufficientInformation,
				Reason:  "no available unit to quote",
				Missing: []model.Field{model.FieldUnitID},
			}
		}
		ranked := o.ranker.RankUnits(found.Units, CriteriaFromPreferences(prefs))
		unitID = ranked[0].Unit.UnitID
		o.logger.Debug("picked unit for pricing",
			zap.String("unit_id", unitID),
			zap.Float64("score", ranked[0].Score),
			zap.Strings("reasons", ranked[0].MatchedReasons))
	}

	return o.Invoke(ctx, model.ToolGetPricing, map[string]any{
		"community_id": prefs.Value(model.FieldCommunity),
		"unit_id":      unitID,
		"move_in_date": prefs.Value(model.FieldMoveInDate),
	})
}

// missingFields lists required fields absent from prefs; parsed reports
// whether integer fields parsed cleanly
func missingFields(prefs model.PreferenceSet, parsed bool, fields ...model.Field) []model.Field {
	var missing []model.Field
	for _, f := range fields {
		if prefs.Value(f) == "" {
			missing = append(missing, f)
			continue
		}
		if f == model.FieldBedrooms && !parsed {
			missing = append(missing, f)
		}
	}
	return missing
}

func insufficient(tool string, missing []model.Field) model.ToolResult {
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = string(f)
	}
	return model.ToolResult{
		Call:    model.ToolCall{Name: tool},
		Status:  model.ToolStatusInsufficientInformation,
		Reason:  "missing " + joinWords(names),
		Missing: missing,
	}
}

func intentNames(intents IntentSet) []string {
	list := intents.List()
	out := make([]string, len(list))
	for i, in := range list {
		out[i] = string(in)
	}
	return out
}

// joinWords renders a list as "a", "a and b" or "a, b and c"
func joinWords(words []string) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	}
	out := words[0]
	for _, w := range words[1 : len(words)-1] {
		out += ", " + w
	}
	return out + " and " + words[len(words)-1]
}
