package repository

import (
	"context"
	"errors"
	"strings"

	"renterchat/internal/model"
	"renterchat/internal/utils"
)

// ErrNotFound is returned for an unknown community or unit
var ErrNotFound = errors.New("repository: not found")

// CatalogRepository is the read-only apartment catalog the domain tools query
type CatalogRepository interface {
	// Communities lists every community ordered by id
	Communities(ctx context.Context) ([]model.Community, error)
	// Community returns one community or ErrNotFound
	Community(ctx context.Context, id string) (*model.Community, error)
	// Units returns all units of a community or ErrNotFound
	Units(ctx context.Context, communityID string) ([]model.Unit, error)
	// PetPolicies returns a community's policies keyed by canonical pet type,
	// or ErrNotFound for an unknown community
	PetPolicies(ctx context.Context, communityID string) (map[string]model.PetPolicy, error)
	// Specials lists every leasing special
	Specials(ctx context.Context) ([]model.Special, error)
	// PetTypes lists every canonical pet type any community has a policy for
	PetTypes(ctx context.Context) ([]string, error)
}

// CanonicalPetKey maps a pet policy key such as "cats" or "Small Pets" to
// its canonical pet type id
func CanonicalPetKey(key string) string {
	if id, ok := utils.CanonicalPet(key); ok {
		return id
	}
	return strings.ReplaceAll(utils.Singular(utils.NormalizeTerm(key)), " ", "_")
}
