package handler

import (
	"net/http"
	"strings"

	"renterchat/internal/matcher"
	"renterchat/internal/model"
	"renterchat/internal/repository"
	"renterchat/internal/utils"

	"github.com/gin-gonic/gin"
)

// QueryCache is the matcher's memo of query embeddings
type QueryCache interface {
	CacheSize() int
	Reset()
}

// CatalogHandler serves the community catalog and matcher debugging
type CatalogHandler struct {
	repo     repository.CatalogRepository
	resolver matcher.Resolver
	catalogs map[string]*matcher.Catalog
	cache    QueryCache
}

// NewCatalogHandler creates a new catalog handler. catalogs are keyed by
// catalog name (matcher.CatalogPets, matcher.CatalogCommunities).
func NewCatalogHandler(repo repository.CatalogRepository, resolver matcher.Resolver, catalogs ...*matcher.Catalog) *CatalogHandler {
	byName := make(map[string]*matcher.Catalog, len(catalogs))
	for _, cat := range catalogs {
		if cat != nil {
			byName[cat.Name] = cat
		}
	}
	return &CatalogHandler{repo: repo, resolver: resolver, catalogs: byName}
}

// WithQueryCache exposes the vector resolver's query cache on
// /api/matcher/cache. A nil cache (no embedder) is ignored.
func (h *CatalogHandler) WithQueryCache(cache *matcher.VectorResolver) *CatalogHandler {
	if cache != nil {
		h.cache = cache
	}
	return h
}

// Communities handles GET /api/communities?amenity=
func (h *CatalogHandler) Communities(c *gin.Context) {
	communities, err := h.repo.Communities(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list communities: " + err.Error()})
		return
	}

	amenity := strings.TrimSpace(c.Query("amenity"))
	if amenity != "" {
		filtered := communities[:0]
		for _, community := range communities {
			if hasAmenity(community, amenity) {
				filtered = append(filtered, community)
			}
		}
		communities = filtered
	}
	if communities == nil {
		communities = []model.Community{}
	}

	c.JSON(http.StatusOK, model.CommunityListResponse{
		Communities: communities,
		Total:       len(communities),
		Amenity:     amenity,
	})
}

// Resolve handles POST /api/matcher/resolve
func (h *CatalogHandler) Resolve(c *gin.Context) {
	var req model.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	catalog, ok := h.catalogs[req.Catalog]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown catalog. Must be one of: pets, communities"})
		return
	}

	resp := model.ResolveResponse{Catalog: req.Catalog, Query: req.Query}
	if m, ok := h.resolver.Resolve(c.Request.Context(), req.Query, catalog); ok {
		resp.Matched = true
		resp.ID = m.ID
		resp.Score = m.Score
		resp.Strategy = m.Strategy
	}

	c.JSON(http.StatusOK, resp)
}

// CacheStats handles GET /api/matcher/cache
func (h *CatalogHandler) CacheStats(c *gin.Context) {
	size := 0
	if h.cache != nil {
		size = h.cache.CacheSize()
	}
	c.JSON(http.StatusOK, gin.H{"enabled": h.cache != nil, "entries": size})
}

// ResetCache handles DELETE /api/matcher/cache
func (h *CatalogHandler) ResetCache(c *gin.Context) {
	if h.cache != nil {
		h.cache.Reset()
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func hasAmenity(community model.Community, term string) bool {
	for _, a := range community.Amenities {
		if utils.FuzzyMatchAmenity(term, a) {
			return true
		}
	}
	return false
}
