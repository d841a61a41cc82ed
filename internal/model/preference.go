package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Field is the fixed set of preference slots tracked per client
type Field string

const (
	FieldCommunity  Field = "community"
	FieldMoveInDate Field = "move_in_date"
	FieldBedrooms   Field = "bedrooms"
	FieldPetType    Field = "pet_type"
	FieldBudget     Field = "budget"
	FieldUnitID     Field = "unit_id"
)

// Fields lists every preference field in priority order
var Fields = []Field{
	FieldCommunity,
	FieldMoveInDate,
	FieldBedrooms,
	FieldPetType,
	FieldBudget,
	FieldUnitID,
}

// DateLayout is the canonical move-in date format
const DateLayout = "2006-01-02"

var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Preference is a single extracted value with the confidence it was extracted at
type Preference struct {
	Field      Field   `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Turn       int     `json:"turn"` // Index of the user turn that last set it
}

// PreferenceSet holds at most one live value per field
type PreferenceSet map[Field]Preference

// Get returns the stored preference for a field
func (s PreferenceSet) Get(f Field) (Preference, bool) {
	p, ok := s[f]
	return p, ok
}

// Known reports whether the field is set with at least the given confidence
func (s PreferenceSet) Known(f Field, minConfidence float64) bool {
	p, ok := s[f]
	return ok && p.Value != "" && p.Confidence >= minConfidence
}

// Value returns the raw value of a field or ""
func (s PreferenceSet) Value(f Field) string {
	return s[f].Value
}

// Int returns an integer-valued field
func (s PreferenceSet) Int(f Field) (int, bool) {
	p, ok := s[f]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(p.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a deep copy
func (s PreferenceSet) Clone() PreferenceSet {
	out := make(PreferenceSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Values returns field values without confidence bookkeeping
func (s PreferenceSet) Values() map[string]string {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[string(k)] = v.Value
	}
	return out
}

// ValidateValue checks that a value has the shape its field requires
func ValidateValue(f Field, value string) error {
	if value == "" {
		return fmt.Errorf("empty value for %s", f)
	}

	switch f {
	case FieldBedrooms, FieldBudget:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", f, err)
		}
		if n < 0 {
			return fmt.Errorf("%s must not be negative", f)
		}
	case FieldMoveInDate:
		if _, err := time.Parse(DateLayout, value); err != nil {
			return fmt.Errorf("move_in_date must be YYYY-MM-DD: %w", err)
		}
	case FieldCommunity, FieldPetType:
		if !identifierPattern.MatchString(value) {
			return fmt.Errorf("%s must be a canonical identifier, got %q", f, value)
		}
	case FieldUnitID:
		// free-form unit label
	default:
		return fmt.Errorf("unknown preference field %q", f)
	}

	return nil
}

// MergePreferences folds delta into current and returns the new set plus the
// fields whose stored value or confidence changed. current is never modified.
//
// A tuple replaces the stored one when the field is unset or its confidence is
// >= the stored confidence. Re-merging an identical value at the same or lower
// confidence is a no-op, so merges are idempotent and never lower confidence.
// Tuples with confidence outside (0,1] or malformed values are dropped.
func MergePreferences(current PreferenceSet, delta []Preference) (PreferenceSet, []Field) {
	out := current.Clone()
	var changed []Field
	seen := make(map[Field]bool)

	for _, p := range delta {
		if p.Confidence <= 0 || p.Confidence > 1 {
			continue
		}
		if err := ValidateValue(p.Field, p.Value); err != nil {
			continue
		}

		stored, ok := out[p.Field]
		switch {
		case !ok:
		case p.Value == stored.Value && p.Confidence <= stored.Confidence:
			continue
		case p.Confidence < stored.Confidence:
			continue
		}

		out[p.Field] = p
		if !seen[p.Field] {
			seen[p.Field] = true
			changed = append(changed, p.Field)
		}
	}

	return out, changed
}
