package matcher

import (
	"context"
	"fmt"
	"sort"

	"renterchat/internal/model"
)

// EmbeddingCache persists catalog embeddings between restarts, keyed by
// catalog name, category id and embedder name
type EmbeddingCache interface {
	LoadEmbeddings(ctx context.Context, catalog, embedder string) (map[string][]float32, error)
	SaveEmbeddings(ctx context.Context, catalog, embedder string, vectors map[string][]float32) error
}

// petLabels are the phrases embedded for each canonical pet type
var petLabels = map[string]string{
	"dog":        "dog",
	"cat":        "cat",
	"bird":       "bird",
	"fish":       "fish",
	"small_pets": "small pets",
	"reptile":    "reptile",
}

// PetCategories builds pet catalog entries for the given canonical ids
func PetCategories(ids []string) []model.CanonicalCategory {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make([]model.CanonicalCategory, 0, len(sorted))
	for _, id := range sorted {
		label, ok := petLabels[id]
		if !ok {
			label = id
		}
		out = append(out, model.CanonicalCategory{ID: id, Label: label})
	}
	return out
}

// CommunityCategories builds community catalog entries labelled by name
func CommunityCategories(communities []model.Community) []model.CanonicalCategory {
	out := make([]model.CanonicalCategory, 0, len(communities))
	for _, c := range communities {
		label := c.Name
		if label == "" {
			label = c.ID
		}
		out = append(out, model.CanonicalCategory{ID: c.ID, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BuildCatalog embeds every entry label once. Vectors already present in
// cache are reused and newly computed ones are written back. A nil embedder
// yields a catalog usable only by string strategies.
func BuildCatalog(ctx context.Context, name string, embedder Embedder, entries []model.CanonicalCategory, cache EmbeddingCache) (*Catalog, error) {
	catalog := &Catalog{Name: name, Entries: make([]model.CanonicalCategory, len(entries))}
	copy(catalog.Entries, entries)
	if embedder == nil || len(entries) == 0 {
		return catalog, nil
	}

	cached := map[string][]float32{}
	if cache != nil {
		loaded, err := cache.LoadEmbeddings(ctx, name, embedder.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to load cached embeddings for %s: %w", name, err)
		}
		cached = loaded
	}

	var missing []int
	var texts []string
	for i, e := range catalog.Entries {
		if vec, ok := cached[e.ID]; ok && len(vec) > 0 {
			catalog.Entries[i].Embedding = vec
			continue
		}
		missing = append(missing, i)
		texts = append(texts, e.Label)
	}
	if len(missing) == 0 {
		return catalog, nil
	}

	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s catalog: %w", name, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d %s entries", len(vecs), len(texts), name)
	}

	fresh := make(map[string][]float32, len(missing))
	for k, i := range missing {
		catalog.Entries[i].Embedding = vecs[k]
		fresh[catalog.Entries[i].ID] = vecs[k]
	}

	if cache != nil {
		if err := cache.SaveEmbeddings(ctx, name, embedder.Name(), fresh); err != nil {
			return nil, fmt.Errorf("failed to save embeddings for %s: %w", name, err)
		}
	}
	return catalog, nil
}
