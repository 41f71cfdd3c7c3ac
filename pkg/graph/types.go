// Package graph defines the Veldt entity model and the contracts shared
// between the repository, the vector index engine, and external callers.
//
// Veldt is a multi-tenant graph database: a Tenant owns Graphs, a Graph
// owns Nodes and Edges, and Nodes/Edges carry Labels, Tags, and embedding
// Vectors. Every entity is scoped to exactly one tenant, and all
// cross-entity references must stay inside that tenant.
//
// Example:
//
//	tenant := &graph.Tenant{Name: "acme", Active: true}
//	g := &graph.Graph{TenantGUID: tenant.GUID, Name: "knowledge"}
//	node := &graph.Node{
//		TenantGUID: tenant.GUID,
//		GraphGUID:  g.GUID,
//		Name:       "alpha",
//		Labels:     []string{"concept"},
//		Tags:       map[string]string{"kind": "demo"},
//	}
//
// Identity and timestamps (CreatedUTC, LastUpdateUTC) are assigned by the
// repository, never by the caller.
package graph

import (
	"time"

	"github.com/google/uuid"
)

// NewGUID returns a fresh globally unique identifier.
func NewGUID() string {
	return uuid.NewString()
}

// Tenant is the top-level isolation boundary. All other entities belong
// to exactly one tenant and are removed when the tenant is force-deleted.
type Tenant struct {
	GUID          string    `json:"GUID" yaml:"guid"`
	Name          string    `json:"Name" yaml:"name"`
	Active        bool      `json:"Active" yaml:"active"`
	CreatedUTC    time.Time `json:"CreatedUtc" yaml:"created_utc"`
	LastUpdateUTC time.Time `json:"LastUpdateUtc" yaml:"last_update_utc"`
}

// User is an account within a tenant, looked up by email or GUID during
// authentication. Email is unique per tenant.
type User struct {
	GUID          string    `json:"GUID"`
	TenantGUID    string    `json:"TenantGUID"`
	FirstName     string    `json:"FirstName"`
	LastName      string    `json:"LastName"`
	Email         string    `json:"Email"`
	Password      string    `json:"Password"`
	Active        bool      `json:"Active"`
	CreatedUTC    time.Time `json:"CreatedUtc"`
	LastUpdateUTC time.Time `json:"LastUpdateUtc"`
}

// Credential is a long-lived delegated authentication handle for a user.
// The bearer token is unique across all tenants.
type Credential struct {
	GUID          string    `json:"GUID"`
	TenantGUID    string    `json:"TenantGUID"`
	UserGUID      string    `json:"UserGUID"`
	Name          string    `json:"Name"`
	BearerToken   string    `json:"BearerToken"`
	Active        bool      `json:"Active"`
	CreatedUTC    time.Time `json:"CreatedUtc"`
	LastUpdateUTC time.Time `json:"LastUpdateUtc"`
}

// VectorIndexType selects the persistence variant of a graph's vector index.
type VectorIndexType string

const (
	// VectorIndexNone disables approximate indexing; searches brute-force.
	VectorIndexNone VectorIndexType = "none"
	// VectorIndexRAM holds the proximity graph only in process memory.
	VectorIndexRAM VectorIndexType = "ram"
	// VectorIndexFile persists the proximity graph to a per-graph store.
	VectorIndexFile VectorIndexType = "file"
)

// VectorIndexConfig is the per-graph vector index configuration. Fixed at
// enable-time; changing it requires an explicit rebuild.
type VectorIndexConfig struct {
	Type           VectorIndexType `json:"Type" yaml:"type"`
	Dimensions     int             `json:"Dimensions" yaml:"dimensions"`
	M              int             `json:"M" yaml:"m"`
	Ef             int             `json:"Ef" yaml:"ef"`
	EfConstruction int             `json:"EfConstruction" yaml:"ef_construction"`
	// Threshold is the minimum indexed vector count before approximate
	// search is consulted; below it searches are exhaustive.
	Threshold int `json:"Threshold" yaml:"threshold"`
	// IndexFile is the on-disk location for the file-backed variant.
	IndexFile string `json:"IndexFile,omitempty" yaml:"index_file,omitempty"`
}

// Graph is a named collection of nodes and edges within a tenant, and the
// unit of vector index configuration.
type Graph struct {
	GUID          string             `json:"GUID"`
	TenantGUID    string             `json:"TenantGUID"`
	Name          string             `json:"Name"`
	VectorIndex   *VectorIndexConfig `json:"VectorIndex,omitempty"`
	Data          map[string]any     `json:"Data,omitempty"`
	CreatedUTC    time.Time          `json:"CreatedUtc"`
	LastUpdateUTC time.Time          `json:"LastUpdateUtc"`
}

// Node is a graph vertex. Labels and Tags enable filtered enumeration;
// Vectors carry embeddings used by the vector index engine.
type Node struct {
	GUID          string            `json:"GUID"`
	TenantGUID    string            `json:"TenantGUID"`
	GraphGUID     string            `json:"GraphGUID"`
	Name          string            `json:"Name"`
	Labels        []string          `json:"Labels,omitempty"`
	Tags          map[string]string `json:"Tags,omitempty"`
	Data          map[string]any    `json:"Data,omitempty"`
	Vectors       []*Vector         `json:"Vectors,omitempty"`
	CreatedUTC    time.Time         `json:"CreatedUtc"`
	LastUpdateUTC time.Time         `json:"LastUpdateUtc"`
}

// Edge is a directed, weighted connection between two nodes of the same
// graph.
type Edge struct {
	GUID          string            `json:"GUID"`
	TenantGUID    string            `json:"TenantGUID"`
	GraphGUID     string            `json:"GraphGUID"`
	FromGUID      string            `json:"From"`
	ToGUID        string            `json:"To"`
	Name          string            `json:"Name"`
	Cost          float64           `json:"Cost"`
	Labels        []string          `json:"Labels,omitempty"`
	Tags          map[string]string `json:"Tags,omitempty"`
	Data          map[string]any    `json:"Data,omitempty"`
	Vectors       []*Vector         `json:"Vectors,omitempty"`
	CreatedUTC    time.Time         `json:"CreatedUtc"`
	LastUpdateUTC time.Time         `json:"LastUpdateUtc"`
}

// LabelMetadata is an auxiliary label row scoped to a tenant and graph,
// optionally attached to a node or edge.
type LabelMetadata struct {
	GUID          string    `json:"GUID"`
	TenantGUID    string    `json:"TenantGUID"`
	GraphGUID     string    `json:"GraphGUID"`
	NodeGUID      string    `json:"NodeGUID,omitempty"`
	EdgeGUID      string    `json:"EdgeGUID,omitempty"`
	Label         string    `json:"Label"`
	CreatedUTC    time.Time `json:"CreatedUtc"`
	LastUpdateUTC time.Time `json:"LastUpdateUtc"`
}

// TagMetadata is an auxiliary key/value row scoped to a tenant and graph,
// optionally attached to a node or edge.
type TagMetadata struct {
	GUID          string    `json:"GUID"`
	TenantGUID    string    `json:"TenantGUID"`
	GraphGUID     string    `json:"GraphGUID"`
	NodeGUID      string    `json:"NodeGUID,omitempty"`
	EdgeGUID      string    `json:"EdgeGUID,omitempty"`
	Key           string    `json:"Key"`
	Value         string    `json:"Value"`
	CreatedUTC    time.Time `json:"CreatedUtc"`
	LastUpdateUTC time.Time `json:"LastUpdateUtc"`
}

// Vector is an embedding attached to a node or edge. Its dimensionality
// must match the owning graph's configured dimensions once any vector
// exists under that graph.
type Vector struct {
	GUID           string    `json:"GUID"`
	TenantGUID     string    `json:"TenantGUID"`
	GraphGUID      string    `json:"GraphGUID"`
	NodeGUID       string    `json:"NodeGUID,omitempty"`
	EdgeGUID       string    `json:"EdgeGUID,omitempty"`
	Model          string    `json:"Model"`
	Dimensionality int       `json:"Dimensionality"`
	Content        string    `json:"Content,omitempty"`
	Embedding      []float32 `json:"Vectors"`
	CreatedUTC     time.Time `json:"CreatedUtc"`
	LastUpdateUTC  time.Time `json:"LastUpdateUtc"`
}
