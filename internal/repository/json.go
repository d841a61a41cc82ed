package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"renterchat/internal/model"
)

// CatalogData is the whole catalog held in memory
type CatalogData struct {
	Communities map[string]model.Community
	Units       map[string][]model.Unit
	PetPolicies map[string]map[string]model.PetPolicy
	Specials    []model.Special
}

// JSONRepository serves the catalog from memory, usually loaded from the
// four JSON files in a data directory
type JSONRepository struct {
	data CatalogData
}

// NewJSONRepository loads communities.json, units.json, pet_policies.json
// and specials.json from dir
func NewJSONRepository(dir string) (*JSONRepository, error) {
	var raw struct {
		communities map[string]model.Community
		units       map[string][]model.Unit
		pets        map[string]map[string]model.PetPolicy
		specials    []model.Special
	}

	files := []struct {
		name   string
		target any
	}{
		{"communities.json", &raw.communities},
		{"units.json", &raw.units},
		{"pet_policies.json", &raw.pets},
		{"specials.json", &raw.specials},
	}
	for _, f := range files {
		if err := loadJSONFile(filepath.Join(dir, f.name), f.target); err != nil {
			return nil, err
		}
	}

	return NewStaticRepository(CatalogData{
		Communities: raw.communities,
		Units:       raw.units,
		PetPolicies: raw.pets,
		Specials:    raw.specials,
	}), nil
}

// NewStaticRepository serves the given data. Community ids are filled from
// map keys and pet policy keys are canonicalized.
func NewStaticRepository(data CatalogData) *JSONRepository {
	communities := make(map[string]model.Community, len(data.Communities))
	for id, c := range data.Communities {
		c.ID = id
		communities[id] = c
	}

	pets := make(map[string]map[string]model.PetPolicy, len(data.PetPolicies))
	for community, policies := range data.PetPolicies {
		canon := make(map[string]model.PetPolicy, len(policies))
		for key, p := range policies {
			canon[CanonicalPetKey(key)] = p
		}
		pets[community] = canon
	}

	units := data.Units
	if units == nil {
		units = map[string][]model.Unit{}
	}

	return &JSONRepository{data: CatalogData{
		Communities: communities,
		Units:       units,
		PetPolicies: pets,
		Specials:    data.Specials,
	}}
}

// Communities implements CatalogRepository
func (r *JSONRepository) Communities(_ context.Context) ([]model.Community, error) {
	out := make([]model.Community, 0, len(r.data.Communities))
	for _, c := range r.data.Communities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Community implements CatalogRepository
func (r *JSONRepository) Community(_ context.Context, id string) (*model.Community, error) {
	c, ok := r.data.Communities[id]
	if !ok {
		return nil, fmt.Errorf("community %q: %w", id, ErrNotFound)
	}
	return &c, nil
}

// Units implements CatalogRepository
func (r *JSONRepository) Units(_ context.Context, communityID string) ([]model.Unit, error) {
	if !r.known(communityID) {
		return nil, fmt.Errorf("community %q: %w", communityID, ErrNotFound)
	}
	units := r.data.Units[communityID]
	return append([]model.Unit(nil), units...), nil
}

// PetPolicies implements CatalogRepository
func (r *JSONRepository) PetPolicies(_ context.Context, communityID string) (map[string]model.PetPolicy, error) {
	if !r.known(communityID) {
		return nil, fmt.Errorf("community %q: %w", communityID, ErrNotFound)
	}
	out := make(map[string]model.PetPolicy, len(r.data.PetPolicies[communityID]))
	for k, v := range r.data.PetPolicies[communityID] {
		out[k] = v
	}
	return out, nil
}

// Specials implements CatalogRepository
func (r *JSONRepository) Specials(_ context.Context) ([]model.Special, error) {
	return append([]model.Special(nil), r.data.Specials...), nil
}

// PetTypes implements CatalogRepository
func (r *JSONRepository) PetTypes(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, policies := range r.data.PetPolicies {
		for pet := range policies {
			if !seen[pet] {
				seen[pet] = true
				out = append(out, pet)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// known reports whether a community exists in any of the catalog files
func (r *JSONRepository) known(communityID string) bool {
	if _, ok := r.data.Communities[communityID]; ok {
		return true
	}
	_, ok := r.data.Units[communityID]
	return ok
}

func loadJSONFile(path string, target any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", filepath.Base(path), err)
	}
	return nil
}
