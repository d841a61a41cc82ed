// Package matchertest provides fixed embedders for tests that need
// reproducible similarity scores.
package matchertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"renterchat/internal/matcher"
	"renterchat/internal/utils"
)

// ErrUnknownText is returned for text the embedder has no vector for
var ErrUnknownText = errors.New("matchertest: no vector for text")

// StaticEmbedder returns preset vectors keyed by normalized text
type StaticEmbedder struct {
	Vectors map[string][]float32
	Err     error

	mu    sync.Mutex
	calls int
}

// Embed implements matcher.Embedder
func (e *StaticEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := e.Vectors[utils.NormalizeTerm(t)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownText, t)
		}
		out[i] = vec
	}
	return out, nil
}

// Name implements matcher.Embedder
func (e *StaticEmbedder) Name() string {
	return "static"
}

// Calls reports how many Embed calls were made
func (e *StaticEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// HamsterScore is the cosine similarity PetEmbedder gives "hamster" against
// the small_pets entry
const HamsterScore = 0.78

// PetEmbedder embeds the pet catalog on orthogonal axes. "hamster" sits at
// 0.78 cosine from small_pets and "kitten" at 0.9 from cat; "pet rock" is
// near nothing.
func PetEmbedder() *StaticEmbedder {
	return &StaticEmbedder{Vectors: map[string][]float32{
		"dog":        {1, 0, 0, 0, 0, 0, 0, 0},
		"cat":        {0, 1, 0, 0, 0, 0, 0, 0},
		"bird":       {0, 0, 1, 0, 0, 0, 0, 0},
		"fish":       {0, 0, 0, 1, 0, 0, 0, 0},
		"small pets": {0, 0, 0, 0, 1, 0, 0, 0},
		"hamster":    {0, 0, 0, 0, 0.78, 0.6257795, 0, 0},
		"kitten":     {0, 0.9, 0, 0, 0, 0, 0.4358899, 0},
		"pet rock":   {0, 0, 0, 0, 0.2, 0, 0, 0.9797959},
	}}
}

// PetCatalog builds the standard five-entry pet catalog with PetEmbedder
func PetCatalog(ctx context.Context) (*matcher.Catalog, *StaticEmbedder, error) {
	embedder := PetEmbedder()
	entries := matcher.PetCategories([]string{"dog", "cat", "bird", "fish", "small_pets"})
	catalog, err := matcher.BuildCatalog(ctx, matcher.CatalogPets, embedder, entries, nil)
	return catalog, embedder, err
}
