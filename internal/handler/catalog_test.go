package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"renterchat/internal/matcher"
	"renterchat/internal/model"
	"renterchat/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	repo, err := repository.NewJSONRepository("../repository/testdata")
	require.NoError(t, err)
	communities, err := repo.Communities(ctx)
	require.NoError(t, err)
	petTypes, err := repo.PetTypes(ctx)
	require.NoError(t, err)

	pets, err := matcher.BuildCatalog(ctx, matcher.CatalogPets, nil, matcher.PetCategories(petTypes), nil)
	require.NoError(t, err)
	places, err := matcher.BuildCatalog(ctx, matcher.CatalogCommunities, nil, matcher.CommunityCategories(communities), nil)
	require.NoError(t, err)

	chain, _ := matcher.NewChain(nil, 0.6, nil)
	h := NewCatalogHandler(repo, chain, pets, places)

	r := gin.New()
	r.GET("/api/communities", h.Communities)
	r.POST("/api/matcher/resolve", h.Resolve)
	return r
}

func communityIDs(t *testing.T, body []byte) []string {
	t.Helper()
	var resp model.CommunityListResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, len(resp.Communities), resp.Total)
	ids := make([]string, 0, len(resp.Communities))
	for _, c := range resp.Communities {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestCatalogHandler_Communities(t *testing.T) {
	r := newCatalogRouter(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"oak-valley", "riverside-commons", "sunset-ridge"}},
		{"?amenity=gym", []string{"riverside-commons", "sunset-ridge"}},
		{"?amenity=Dog%20Park", []string{"oak-valley"}},
		{"?amenity=helipad", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(r, http.MethodGet, "/api/communities"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, communityIDs(t, w.Body.Bytes()))
		})
	}
}

func TestCatalogHandler_Resolve(t *testing.T) {
	r := newCatalogRouter(t)

	w := postJSON(r, "/api/matcher/resolve", `{"catalog":"communities","query":"riverside"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "riverside-commons", resp.ID)

	w = postJSON(r, "/api/matcher/resolve", `{"catalog":"pets","query":"Cats"}`)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "cat", resp.ID)

	w = postJSON(r, "/api/matcher/resolve", `{"catalog":"pets","query":"dragon"}`)
	resp = model.ResolveResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Matched)
	assert.Empty(t, resp.ID)

	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/api/matcher/resolve", `{"catalog":"units","query":"12B"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/api/matcher/resolve", `{"catalog":"pets"}`).Code)
}

func TestCatalogHandler_QueryCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo, err := repository.NewJSONRepository("../repository/testdata")
	require.NoError(t, err)
	communities, err := repo.Communities(context.Background())
	require.NoError(t, err)
	places, err := matcher.BuildCatalog(context.Background(), matcher.CatalogCommunities, nil, matcher.CommunityCategories(communities), nil)
	require.NoError(t, err)

	chain, vector := matcher.NewChain(matcher.NewLexicalEmbedder(64), 0.6, nil)
	h := NewCatalogHandler(repo, chain, places).WithQueryCache(vector)

	r := gin.New()
	r.POST("/api/matcher/resolve", h.Resolve)
	r.GET("/api/matcher/cache", h.CacheStats)
	r.DELETE("/api/matcher/cache", h.ResetCache)

	// Catalog entries carry no vectors here, so the exact strategy answers,
	// but the query embedding is still cached
	w := postJSON(r, "/api/matcher/resolve", `{"catalog":"communities","query":"Oak Valley"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"oak-valley"`)

	assert.JSONEq(t, `{"enabled":true,"entries":1}`, get(r, http.MethodGet, "/api/matcher/cache").Body.String())
	assert.Equal(t, http.StatusOK, get(r, http.MethodDelete, "/api/matcher/cache").Code)
	assert.JSONEq(t, `{"enabled":true,"entries":0}`, get(r, http.MethodGet, "/api/matcher/cache").Body.String())
}

func TestCatalogHandler_NoQueryCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	chain, vector := matcher.NewChain(nil, 0.6, nil)
	h := NewCatalogHandler(nil, chain).WithQueryCache(vector)

	r := gin.New()
	r.GET("/api/matcher/cache", h.CacheStats)
	assert.JSONEq(t, `{"enabled":false,"entries":0}`, get(r, http.MethodGet, "/api/matcher/cache").Body.String())
}
