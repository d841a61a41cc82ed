// Package matcher resolves free user vocabulary to canonical catalog ids.
// Resolution is an ordered chain of strategies sharing one contract: vector
// similarity first, then exact/alias/substring string matching.
package matcher

import (
	"context"
	"strings"
	"sync"

	"renterchat/internal/metrics"
	"renterchat/internal/model"
	"renterchat/internal/utils"

	"go.uber.org/zap"
)

// Catalog names
const (
	CatalogPets        = "pets"
	CatalogCommunities = "communities"
)

// Strategy names reported on a Match
const (
	StrategyVector = "vector"
	StrategyExact  = "exact"
	StrategyAlias  = "alias"
	StrategySubstr = "substring"
)

// Match is a resolved canonical id with its confidence
type Match struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Strategy string  `json:"strategy"`
}

// Catalog is a read-only set of canonical categories for one vocabulary
type Catalog struct {
	Name    string
	Entries []model.CanonicalCategory
}

// IDs returns the canonical ids in catalog order
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Resolver resolves a query against a catalog. ok is false when the
// strategy has no confident answer; resolvers never return errors.
type Resolver interface {
	Resolve(ctx context.Context, query string, catalog *Catalog) (Match, bool)
}

// Chain tries each resolver in order and returns the first match
type Chain []Resolver

// Resolve implements Resolver
func (c Chain) Resolve(ctx context.Context, query string, catalog *Catalog) (Match, bool) {
	if catalog == nil || strings.TrimSpace(query) == "" {
		return Match{}, false
	}
	for _, r := range c {
		if m, ok := r.Resolve(ctx, query, catalog); ok {
			metrics.MatcherResolutions.WithLabelValues(catalog.Name, m.Strategy, "match").Inc()
			return m, true
		}
	}
	metrics.MatcherResolutions.WithLabelValues(catalog.Name, "chain", "miss").Inc()
	return Match{}, false
}

// NewChain builds the standard vector-then-exact chain. A nil embedder
// leaves only the string strategy.
func NewChain(embedder Embedder, threshold float64, logger *zap.Logger) (Chain, *VectorResolver) {
	if embedder == nil {
		return Chain{ExactResolver{}}, nil
	}
	vector := NewVectorResolver(embedder, threshold, logger)
	return Chain{vector, ExactResolver{}}, vector
}

// VectorResolver scores a query against catalog embeddings by cosine
// similarity. Scores at or above the threshold match.
type VectorResolver struct {
	embedder  Embedder
	threshold float64
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewVectorResolver creates a resolver over the given embedder
func NewVectorResolver(embedder Embedder, threshold float64, logger *zap.Logger) *VectorResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorResolver{
		embedder:  embedder,
		threshold: threshold,
		logger:    logger,
		cache:     make(map[string][]float32),
	}
}

// Resolve implements Resolver
func (r *VectorResolver) Resolve(ctx context.Context, query string, catalog *Catalog) (Match, bool) {
	vec, ok := r.queryVector(ctx, query)
	if !ok {
		return Match{}, false
	}

	best := Match{Strategy: StrategyVector, Score: -1}
	for _, entry := range catalog.Entries {
		if len(entry.Embedding) == 0 {
			continue
		}
		score, err := CosineSimilarity(vec, entry.Embedding)
		if err != nil {
			metrics.EmbeddingFailures.Inc()
			r.logger.Warn("embedding dimension mismatch",
				zap.String("catalog", catalog.Name),
				zap.String("entry", entry.ID),
				zap.Error(err),
			)
			return Match{}, false
		}
		// Strict > keeps the earliest entry on ties
		if score > best.Score {
			best.ID = entry.ID
			best.Score = score
		}
	}

	if best.ID == "" || best.Score < r.threshold {
		return Match{}, false
	}
	return best, true
}

// CacheSize reports how many query embeddings are cached
func (r *VectorResolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Reset drops every cached query embedding
func (r *VectorResolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string][]float32)
	r.mu.Unlock()
}

// queryVector returns the cached embedding for the literal query, computing
// it on a miss. Failures are not cached.
func (r *VectorResolver) queryVector(ctx context.Context, query string) ([]float32, bool) {
	r.mu.RLock()
	vec, ok := r.cache[query]
	r.mu.RUnlock()
	if ok {
		return vec, true
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 || len(vecs[0]) == 0 {
		metrics.EmbeddingFailures.Inc()
		r.logger.Warn("query embedding failed, falling back to string matching",
			zap.String("embedder", r.embedder.Name()),
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, false
	}

	r.mu.Lock()
	r.cache[query] = vecs[0]
	r.mu.Unlock()
	return vecs[0], true
}

// ExactResolver matches normalized text against raw ids and labels:
// equality scores 1.0, a known alias 0.9, containment 0.8.
type ExactResolver struct{}

// Resolve implements Resolver
func (ExactResolver) Resolve(_ context.Context, query string, catalog *Catalog) (Match, bool) {
	q := utils.NormalizeTerm(query)
	if q == "" {
		return Match{}, false
	}
	qs := utils.Singular(q)

	for _, entry := range catalog.Entries {
		for _, cand := range candidates(entry) {
			if q == cand || qs == cand || qs == utils.Singular(cand) {
				return Match{ID: entry.ID, Score: 1.0, Strategy: StrategyExact}, true
			}
		}
	}

	if catalog.Name == CatalogPets {
		if id, ok := utils.CanonicalPet(q); ok && hasID(catalog, id) {
			return Match{ID: id, Score: 0.9, Strategy: StrategyAlias}, true
		}
	}

	for _, entry := range catalog.Entries {
		for _, cand := range candidates(entry) {
			if (len(cand) >= 3 && containsPhrase(q, cand)) || (len(q) >= 4 && containsPhrase(cand, q)) {
				return Match{ID: entry.ID, Score: 0.8, Strategy: StrategySubstr}, true
			}
		}
	}

	return Match{}, false
}

// Helper functions

func candidates(entry model.CanonicalCategory) []string {
	out := []string{utils.NormalizeTerm(entry.ID)}
	if label := utils.NormalizeTerm(entry.Label); label != "" && label != out[0] {
		out = append(out, label)
	}
	return out
}

func hasID(catalog *Catalog, id string) bool {
	for _, e := range catalog.Entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs in text on word boundaries
func containsPhrase(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}
