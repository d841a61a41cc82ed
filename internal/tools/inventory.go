package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"renterchat/internal/model"
	"renterchat/internal/repository"

	"go.uber.org/zap"
)

// Fixed leasing terms quoted with every price
const (
	ApplicationFee = 75
	AdminFee       = 150
)

// LeaseTerms are the available lease lengths in months
var LeaseTerms = []int{6, 12, 15}

// CheckAvailabilityInput are the check_availability arguments
type CheckAvailabilityInput struct {
	CommunityID string `json:"community_id" jsonschema:"minLength=1" jsonschema_description:"Community identifier, e.g. sunset-ridge."`
	Bedrooms    int    `json:"bedrooms" jsonschema:"minimum=0,maximum=10" jsonschema_description:"Number of bedrooms; 0 means studio."`
}

// CheckPetPolicyInput are the check_pet_policy arguments
type CheckPetPolicyInput struct {
	CommunityID string `json:"community_id" jsonschema:"minLength=1" jsonschema_description:"Community identifier."`
	PetType     string `json:"pet_type" jsonschema:"pattern=^[a-z0-9_]+$" jsonschema_description:"Canonical pet type such as dog, cat or small_pets."`
}

// GetPricingInput are the get_pricing arguments
type GetPricingInput struct {
	CommunityID string `json:"community_id" jsonschema:"minLength=1" jsonschema_description:"Community identifier."`
	UnitID      string `json:"unit_id" jsonschema:"minLength=1" jsonschema_description:"Unit identifier within the community."`
	MoveInDate  string `json:"move_in_date" jsonschema:"format=date" jsonschema_description:"Move-in date as YYYY-MM-DD."`
}

// AvailabilityResult lists available units matching a bedroom count
type AvailabilityResult struct {
	CommunityID string       `json:"community_id"`
	Bedrooms    int          `json:"bedrooms"`
	Available   bool         `json:"available"`
	Count       int          `json:"count"`
	Units       []model.Unit `json:"units"`
}

// PetPolicyResult is one community's rule for one pet type
type PetPolicyResult struct {
	CommunityID string `json:"community_id"`
	PetType     string `json:"pet_type"`
	model.PetPolicy
}

// PricingBreakdown is the money part of a quote
type PricingBreakdown struct {
	BaseRent        float64 `json:"base_rent"`
	EffectiveRent   float64 `json:"effective_rent"`
	SecurityDeposit float64 `json:"security_deposit"`
	ApplicationFee  int     `json:"application_fee"`
	AdminFee        int     `json:"admin_fee"`
}

// AppliedSpecial is a special that reduced the quote
type AppliedSpecial struct {
	Name     string  `json:"name"`
	Discount float64 `json:"discount"`
	Type     string  `json:"type"` // monthly_discount, first_month_free, move_in_credit
}

// PricingResult is a full quote for one unit and move-in date
type PricingResult struct {
	CommunityID   string           `json:"community_id"`
	UnitID        string           `json:"unit_id"`
	Unit          model.Unit       `json:"unit_details"`
	MoveInDate    string           `json:"move_in_date"`
	Pricing       PricingBreakdown `json:"pricing"`
	Specials      []AppliedSpecial `json:"specials"`
	LeaseTerms    []int            `json:"lease_terms"`
	AvailableDate string           `json:"available_date"`
}

// Inventory answers the three domain questions from a catalog repository
type Inventory struct {
	repo   repository.CatalogRepository
	logger *zap.Logger
}

// NewInventory creates the inventory tools over repo
func NewInventory(repo repository.CatalogRepository, logger *zap.Logger) *Inventory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inventory{repo: repo, logger: logger}
}

// Definitions returns the three domain tools bound to this inventory
func (inv *Inventory) Definitions() []Definition {
	return []Definition{
		{
			Name:        model.ToolCheckAvailability,
			Description: "List available units in a community with the given number of bedrooms.",
			InputSchema: GenerateSchema[CheckAvailabilityInput](),
			Handler:     typed(inv.CheckAvailability),
		},
		{
			Name:        model.ToolCheckPetPolicy,
			Description: "Look up a community's policy, fees and limits for one pet type.",
			InputSchema: GenerateSchema[CheckPetPolicyInput](),
			Handler:     typed(inv.CheckPetPolicy),
		},
		{
			Name:        model.ToolGetPricing,
			Description: "Quote rent, fees and applicable specials for a unit and move-in date.",
			InputSchema: GenerateSchema[GetPricingInput](),
			Handler:     typed(inv.GetPricing),
		},
	}
}

// CheckAvailability returns available units with exactly in.Bedrooms
func (inv *Inventory) CheckAvailability(ctx context.Context, in CheckAvailabilityInput) (*AvailabilityResult, error) {
	units, err := inv.repo.Units(ctx, in.CommunityID)
	if err != nil {
		return nil, err
	}

	result := &AvailabilityResult{CommunityID: in.CommunityID, Bedrooms: in.Bedrooms, Units: []model.Unit{}}
	for _, u := range units {
		if u.Available && u.Bedrooms == in.Bedrooms {
			result.Units = append(result.Units, u)
		}
	}
	result.Count = len(result.Units)
	result.Available = result.Count > 0

	inv.logger.Debug("availability checked",
		zap.String("community_id", in.CommunityID),
		zap.Int("bedrooms", in.Bedrooms),
		zap.Int("count", result.Count),
	)
	return result, nil
}

// CheckPetPolicy returns the policy for a pet type. A pet type the
// community has no rule for is reported as not allowed.
func (inv *Inventory) CheckPetPolicy(ctx context.Context, in CheckPetPolicyInput) (*PetPolicyResult, error) {
	policies, err := inv.repo.PetPolicies(ctx, in.CommunityID)
	if err != nil {
		return nil, err
	}

	result := &PetPolicyResult{CommunityID: in.CommunityID, PetType: in.PetType}
	policy, ok := policies[in.PetType]
	if !ok {
		result.Allowed = false
		result.Notes = fmt.Sprintf("Policy for %s not defined", in.PetType)
		return result, nil
	}
	result.PetPolicy = policy
	return result, nil
}

// GetPricing quotes one unit. Specials apply when they cover the community
// and have not expired by the move-in date; seasonal ("summer") percentage
// specials only cover June through August move-ins.
func (inv *Inventory) GetPricing(ctx context.Context, in GetPricingInput) (*PricingResult, error) {
	moveIn, err := time.Parse(model.DateLayout, in.MoveInDate)
	if err != nil {
		return nil, fmt.Errorf("%w: move_in_date %q", ErrInvalidArgument, in.MoveInDate)
	}

	units, err := inv.repo.Units(ctx, in.CommunityID)
	if err != nil {
		return nil, err
	}
	var unit *model.Unit
	for i := range units {
		if strings.EqualFold(units[i].UnitID, in.UnitID) {
			unit = &units[i]
			break
		}
	}
	if unit == nil {
		return nil, fmt.Errorf("unit %q in %q: %w", in.UnitID, in.CommunityID, repository.ErrNotFound)
	}

	specials, err := inv.repo.Specials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load specials: %w", err)
	}

	base := float64(unit.BaseRent)
	effective := base
	applied := []AppliedSpecial{}
	for _, s := range specials {
		if !s.AppliesTo(in.CommunityID) || expired(s, moveIn) {
			continue
		}
		switch s.DiscountType {
		case "percentage":
			if isSeasonal(s) && (moveIn.Month() < time.June || moveIn.Month() > time.August) {
				continue
			}
			discount := base * s.Amount / 100
			effective -= discount
			applied = append(applied, AppliedSpecial{Name: s.Name, Discount: discount, Type: "monthly_discount"})
		case "first_month_free":
			applied = append(applied, AppliedSpecial{Name: s.Name, Discount: base, Type: "first_month_free"})
		case "flat_discount":
			applied = append(applied, AppliedSpecial{Name: s.Name, Discount: s.Amount, Type: "move_in_credit"})
		}
	}

	return &PricingResult{
		CommunityID: in.CommunityID,
		UnitID:      unit.UnitID,
		Unit:        *unit,
		MoveInDate:  in.MoveInDate,
		Pricing: PricingBreakdown{
			BaseRent:        base,
			EffectiveRent:   effective,
			SecurityDeposit: base,
			ApplicationFee:  ApplicationFee,
			AdminFee:        AdminFee,
		},
		Specials:      applied,
		LeaseTerms:    append([]int(nil), LeaseTerms...),
		AvailableDate: unit.AvailableDate,
	}, nil
}

// Helper functions

func expired(s model.Special, moveIn time.Time) bool {
	if s.Expires == "" {
		return false
	}
	exp, err := time.Parse(model.DateLayout, s.Expires)
	if err != nil {
		return false
	}
	return moveIn.After(exp)
}

func isSeasonal(s model.Special) bool {
	return strings.Contains(strings.ToLower(s.Name), "summer")
}
