package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Community represents an apartment community
type Community struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Location  string    `json:"location,omitempty" db:"location"`
	Amenities JSONArray `json:"amenities,omitempty" db:"amenities"`
}

// Unit represents a rentable unit inside a community
type Unit struct {
	UnitID        string `json:"unit_id" db:"unit_id"`
	Bedrooms      int    `json:"bedrooms" db:"bedrooms"`
	Bathrooms     int    `json:"bathrooms" db:"bathrooms"`
	Sqft          int    `json:"sqft" db:"sqft"`
	Description   string `json:"description,omitempty" db:"description"`
	Floor         int    `json:"floor" db:"floor"`
	AvailableDate string `json:"available_date" db:"available_date"` // YYYY-MM-DD
	BaseRent      int    `json:"base_rent" db:"base_rent"`
	Available     bool   `json:"available" db:"available"`
}

// PetPolicy is the rule set for one pet type at one community
type PetPolicy struct {
	Allowed     bool   `json:"allowed" db:"allowed"`
	Fee         int    `json:"fee,omitempty" db:"fee"`
	Deposit     int    `json:"deposit,omitempty" db:"deposit"`
	MonthlyRent int    `json:"monthly_rent,omitempty" db:"monthly_rent"`
	MaxPets     int    `json:"max_pets,omitempty" db:"max_pets"`
	WeightLimit int    `json:"weight_limit,omitempty" db:"weight_limit"`
	Notes       string `json:"notes,omitempty" db:"notes"`
}

// Special is a leasing promotion
type Special struct {
	Name         string    `json:"name" db:"name"`
	DiscountType string    `json:"discount_type" db:"discount_type"` // percentage, flat_discount, first_month_free
	Amount       float64   `json:"amount" db:"amount"`
	Expires      string    `json:"expires,omitempty" db:"expires"` // YYYY-MM-DD
	Communities  JSONArray `json:"communities,omitempty" db:"communities"`
}

// AppliesTo reports whether the special is restricted to, or open to, a community
func (s Special) AppliesTo(communityID string) bool {
	if len(s.Communities) == 0 {
		return true
	}
	for _, c := range s.Communities {
		if c == communityID {
			return true
		}
	}
	return false
}

// CanonicalCategory is a catalog entry user vocabulary is resolved to
type CanonicalCategory struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Embedding []float32 `json:"-"`
}

// JSONArray represents a JSON array column
type JSONArray []string

// Value implements driver.Valuer interface
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONArray) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONArray source %T", value)
	}
}
