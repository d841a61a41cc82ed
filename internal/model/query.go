package model

// ResolveRequest asks the matcher to resolve free text against one catalog
type ResolveRequest struct {
	Catalog string `json:"catalog" binding:"required"` // pets | communities
	Query   string `json:"query" binding:"required"`
}

// ResolveResponse reports the matcher's answer. Matched is false when no
// strategy was confident; ID, Score and Strategy are then empty.
type ResolveResponse struct {
	Catalog  string  `json:"catalog"`
	Query    string  `json:"query"`
	Matched  bool    `json:"matched"`
	ID       string  `json:"id,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Strategy string  `json:"strategy,omitempty"`
}

// CommunityListResponse is the catalog listing returned to the UI
type CommunityListResponse struct {
	Communities []Community `json:"communities"`
	Total       int         `json:"total"`
	Amenity     string      `json:"amenity,omitempty"` // Filter applied, if any
}
