package graph

// SearchDomain selects whether a vector search scores node- or
// edge-attached vectors.
type SearchDomain string

const (
	SearchDomainNode SearchDomain = "node"
	SearchDomainEdge SearchDomain = "edge"
)

// SearchType selects the similarity metric for a vector search.
type SearchType string

const (
	// SearchCosineSimilarity ranks by cosine similarity, higher is better.
	SearchCosineSimilarity SearchType = "cosine_similarity"
	// SearchCosineDistance ranks by 1 - cosine similarity, lower is better.
	SearchCosineDistance SearchType = "cosine_distance"
	// SearchEuclideanDistance ranks by L2 distance, lower is better.
	SearchEuclideanDistance SearchType = "euclidean_distance"
	// SearchDotProduct ranks by inner product, higher is better.
	SearchDotProduct SearchType = "dot_product"
)

// Valid reports whether s is a known search type.
func (s SearchType) Valid() bool {
	switch s {
	case SearchCosineSimilarity, SearchCosineDistance,
		SearchEuclideanDistance, SearchDotProduct:
		return true
	}
	return false
}

// VectorSearchRequest asks for the TopK vectors of one graph closest to
// Embedding under SearchType.
type VectorSearchRequest struct {
	TenantGUID string       `json:"TenantGUID"`
	GraphGUID  string       `json:"GraphGUID"`
	Domain     SearchDomain `json:"Domain"`
	SearchType SearchType   `json:"SearchType"`
	Embedding  []float32    `json:"Embedding"`
	TopK       int          `json:"TopK,omitempty"`
	// MinScore drops results scoring below it (similarity metrics) or
	// above it (distance metrics, where it is a maximum distance).
	MinScore *float64 `json:"MinimumScore,omitempty"`
}

// VectorSearchResult is one ranked match. Score follows the requested
// metric's direction; Distance is always the metric's distance form.
type VectorSearchResult struct {
	VectorGUID string  `json:"VectorGUID"`
	NodeGUID   string  `json:"NodeGUID,omitempty"`
	EdgeGUID   string  `json:"EdgeGUID,omitempty"`
	Score      float64 `json:"Score"`
	Distance   float64 `json:"Distance"`
}
