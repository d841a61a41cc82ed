package service

import (
	"math"
	"sort"
	"time"

	"renterchat/internal/model"
)

// Match reason constants
const (
	ReasonPriceMatch    = "Price within budget"
	ReasonReadyByMoveIn = "Ready by move-in date"
	ReasonBedroomsMatch = "Bedrooms match"
	ReasonSpacious      = "Largest of the matches"
	ReasonGeneralMatch  = "General match"
)

// RankedUnit is a unit with its score and human-readable reasons
type RankedUnit struct {
	Unit           model.Unit `json:"unit"`
	Score          float64    `json:"score"`
	MatchedReasons []string   `json:"matched_reasons"`
}

// UnitCriteria are the renter preferences units are ranked against
type UnitCriteria struct {
	Budget   *int
	MoveIn   *time.Time
	Bedrooms *int
}

// CriteriaFromPreferences reads ranking criteria out of a preference set
func CriteriaFromPreferences(prefs model.PreferenceSet) UnitCriteria {
	var c UnitCriteria
	if n, ok := prefs.Int(model.FieldBudget); ok {
		c.Budget = &n
	}
	if n, ok := prefs.Int(model.FieldBedrooms); ok {
		c.Bedrooms = &n
	}
	if t, err := time.Parse(model.DateLayout, prefs.Value(model.FieldMoveInDate)); err == nil {
		c.MoveIn = &t
	}
	return c
}

// Ranker handles ranking and scoring of units
type Ranker struct {
	weightPrice  float64
	weightTiming float64
	weightSize   float64
}

// NewRanker creates a new ranker with specified weights
func NewRanker(weightPrice, weightTiming, weightSize float64) *Ranker {
	return &Ranker{
		weightPrice:  weightPrice,
		weightTiming: weightTiming,
		weightSize:   weightSize,
	}
}

// RankUnits scores and ranks units; ties keep catalog order
func (r *Ranker) RankUnits(units []model.Unit, criteria UnitCriteria) []RankedUnit {
	maxSqft := 0
	for _, u := range units {
		if u.Sqft > maxSqft {
			maxSqft = u.Sqft
		}
	}

	results := make([]RankedUnit, 0, len(units))
	for _, u := range units {
		priceScore := r.calculatePriceScore(u.BaseRent, criteria.Budget)
		timingScore := r.calculateTimingScore(u.AvailableDate, criteria.MoveIn)
		sizeScore := 0.5
		if maxSqft > 0 {
			sizeScore = float64(u.Sqft) / float64(maxSqft)
		}

		results = append(results, RankedUnit{
			Unit: u,
			Score: (r.weightPrice * priceScore) +
				(r.weightTiming * timingScore) +
				(r.weightSize * sizeScore),
			MatchedReasons: r.generateMatchedReasons(u, criteria, priceScore, timingScore, sizeScore),
		})
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// calculatePriceScore rewards rent at or under budget; rent over budget
// decays with the overshoot
func (r *Ranker) calculatePriceScore(rent int, budget *int) float64 {
	if budget == nil || *budget <= 0 {
		return 1.0 // Full score if no budget
	}
	if rent <= *budget {
		return 1.0
	}
	over := float64(rent-*budget) / float64(*budget)
	return math.Max(0, 1.0-2*over)
}

// calculateTimingScore is 1 for units ready by the move-in date and decays
// exponentially with each day of wait after it
func (r *Ranker) calculateTimingScore(availableDate string, moveIn *time.Time) float64 {
	if moveIn == nil {
		return 0.5 // Neutral score if no move-in date
	}
	available, err := time.Parse(model.DateLayout, availableDate)
	if err != nil {
		return 0.5
	}

	daysLate := available.Sub(*moveIn).Hours() / 24
	if daysLate <= 0 {
		return 1.0
	}
	// After 7 days: ~0.70, after 30 days: ~0.22
	return math.Exp(-0.05 * daysLate)
}

// generateMatchedReasons generates human-readable reasons for why this unit ranked
func (r *Ranker) generateMatchedReasons(u model.Unit, criteria UnitCriteria, priceScore, timingScore, sizeScore float64) []string {
	reasons := []string{}

	if criteria.Budget != nil && priceScore >= 1.0 {
		reasons = append(reasons, ReasonPriceMatch)
	}
	if criteria.MoveIn != nil && timingScore >= 1.0 {
		reasons = append(reasons, ReasonReadyByMoveIn)
	}
	if criteria.Bedrooms != nil && u.Bedrooms == *criteria.Bedrooms {
		reasons = append(reasons, ReasonBedroomsMatch)
	}
	if sizeScore >= 1.0 {
		reasons = append(reasons, ReasonSpacious)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, ReasonGeneralMatch)
	}
	return reasons
}
