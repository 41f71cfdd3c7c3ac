// Package veldt is the embedding surface of the database: it opens the
// relational store and the vector index manager together and keeps them
// synchronized across node, edge, and vector lifecycle events.
package veldt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/veldtdb/veldt/pkg/graph"
	"github.com/veldtdb/veldt/pkg/repo"
	"github.com/veldtdb/veldt/pkg/vectorindex"
)

// Options configures an embedded instance.
type Options struct {
	// DatabasePath is the SQLite file location. Required.
	DatabasePath string
	// DataDir holds file-backed index directories when a graph's
	// configuration does not name one explicitly.
	DataDir string
	// DefaultIndex seeds index parameters left zero at enable time.
	DefaultIndex graph.VectorIndexConfig
}

// DB is the embedded database handle. Methods not defined here are
// promoted straight from the repository client; the overrides below add
// vector index maintenance on top of the store mutation.
type DB struct {
	*repo.Client

	opts    Options
	indexes *vectorindex.Manager
}

// Open creates or opens the database at opts.DatabasePath.
func Open(opts Options) (*DB, error) {
	if opts.DatabasePath == "" {
		return nil, fmt.Errorf("%w: database path required", graph.ErrValidation)
	}
	client, err := repo.Open(opts.DatabasePath)
	if err != nil {
		return nil, err
	}
	db := &DB{
		Client:  client,
		opts:    opts,
		indexes: vectorindex.NewManager(),
	}
	if err := db.reopenIndexes(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return db, nil
}

// reopenIndexes re-enables the index of every graph whose stored
// configuration asks for one. RAM variants rebuild from the store;
// file variants reload their Badger directories.
func (db *DB) reopenIndexes(ctx context.Context) error {
	tenants, err := db.Client.ListTenants(ctx)
	if err != nil {
		return err
	}
	for _, tenant := range tenants {
		req := graph.EnumerationRequest{TenantGUID: tenant.GUID, MaxResults: graph.DefaultMaxResults, IncludeData: true}
		for {
			page, err := db.Client.EnumerateGraphs(ctx, req)
			if err != nil {
				return err
			}
			for _, g := range page.Objects {
				if g.VectorIndex == nil || g.VectorIndex.Type == graph.VectorIndexNone {
					continue
				}
				cfg := db.normalizeIndexConfig(g.GUID, *g.VectorIndex)
				if _, err := db.indexes.Enable(ctx, tenant.GUID, g.GUID, cfg, db.Client); err != nil {
					return err
				}
			}
			if page.EndOfResults {
				break
			}
			req.ContinuationToken = page.ContinuationToken
		}
	}
	return nil
}

// Close shuts the index manager down, then the store.
func (db *DB) Close() error {
	indexErr := db.indexes.Close()
	storeErr := db.Client.Close()
	if storeErr != nil {
		return storeErr
	}
	return indexErr
}

func (db *DB) normalizeIndexConfig(graphGUID string, cfg graph.VectorIndexConfig) graph.VectorIndexConfig {
	def := db.opts.DefaultIndex
	if cfg.M <= 0 {
		cfg.M = def.M
	}
	if cfg.Ef <= 0 {
		cfg.Ef = def.Ef
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = def.EfConstruction
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Type == graph.VectorIndexFile && cfg.IndexFile == "" {
		cfg.IndexFile = filepath.Join(db.opts.DataDir, "index", graphGUID)
	}
	return cfg
}

// staleError wraps the index maintenance failure after the store
// mutation has already committed. The relational state stands; the
// graph's index needs a rebuild before indexed search is trusted.
func (db *DB) staleError(tenantGUID, graphGUID string, err error) error {
	if ix := db.indexes.Get(tenantGUID, graphGUID); ix != nil {
		ix.MarkStale()
	}
	log.Printf("veldt: index for graph %s marked stale: %v", graphGUID, err)
	return fmt.Errorf("%w: graph %s: %v", graph.ErrIndexStale, graphGUID, err)
}

// insertIndexed pushes freshly committed vectors into the graph's index
// when one is enabled.
func (db *DB) insertIndexed(tenantGUID, graphGUID string, vectors []*graph.Vector) error {
	ix := db.indexes.Get(tenantGUID, graphGUID)
	if ix == nil {
		return nil
	}
	for _, v := range vectors {
		if err := ix.Insert(v); err != nil {
			return db.staleError(tenantGUID, graphGUID, err)
		}
	}
	return nil
}

func (db *DB) removeIndexed(tenantGUID, graphGUID string, vectorGUIDs []string) error {
	ix := db.indexes.Get(tenantGUID, graphGUID)
	if ix == nil {
		return nil
	}
	for _, guid := range vectorGUIDs {
		if err := ix.Remove(guid); err != nil {
			return db.staleError(tenantGUID, graphGUID, err)
		}
	}
	return nil
}

// CreateNode stores the node and inserts its vectors into the graph's
// index within the same logical operation.
func (db *DB) CreateNode(ctx context.Context, n *graph.Node) (*graph.Node, error) {
	created, err := db.Client.CreateNode(ctx, n)
	if err != nil {
		return nil, err
	}
	if err := db.insertIndexed(created.TenantGUID, created.GraphGUID, created.Vectors); err != nil {
		return created, err
	}
	return created, nil
}

// CreateNodes stores the batch in one transaction, then indexes every
// attached vector.
func (db *DB) CreateNodes(ctx context.Context, nodes []*graph.Node) ([]*graph.Node, error) {
	created, err := db.Client.CreateNodes(ctx, nodes)
	if err != nil {
		return nil, err
	}
	for _, n := range created {
		if err := db.insertIndexed(n.TenantGUID, n.GraphGUID, n.Vectors); err != nil {
			return created, err
		}
	}
	return created, nil
}

// CreateEdge stores the edge and indexes its vectors.
func (db *DB) CreateEdge(ctx context.Context, e *graph.Edge) (*graph.Edge, error) {
	created, err := db.Client.CreateEdge(ctx, e)
	if err != nil {
		return nil, err
	}
	if err := db.insertIndexed(created.TenantGUID, created.GraphGUID, created.Vectors); err != nil {
		return created, err
	}
	return created, nil
}

// CreateEdges stores the batch in one transaction, then indexes every
// attached vector.
func (db *DB) CreateEdges(ctx context.Context, edges []*graph.Edge) ([]*graph.Edge, error) {
	created, err := db.Client.CreateEdges(ctx, edges)
	if err != nil {
		return nil, err
	}
	for _, e := range created {
		if err := db.insertIndexed(e.TenantGUID, e.GraphGUID, e.Vectors); err != nil {
			return created, err
		}
	}
	return created, nil
}

// CreateVector stores the vector row and indexes it.
func (db *DB) CreateVector(ctx context.Context, v *graph.Vector) (*graph.Vector, error) {
	created, err := db.Client.CreateVector(ctx, v)
	if err != nil {
		return nil, err
	}
	if err := db.insertIndexed(created.TenantGUID, created.GraphGUID, []*graph.Vector{created}); err != nil {
		return created, err
	}
	return created, nil
}

// UpdateVector replaces the stored embedding, then reindexes it.
func (db *DB) UpdateVector(ctx context.Context, v *graph.Vector) (*graph.Vector, error) {
	updated, err := db.Client.UpdateVector(ctx, v)
	if err != nil {
		return nil, err
	}
	if err := db.removeIndexed(updated.TenantGUID, updated.GraphGUID, []string{updated.GUID}); err != nil {
		return updated, err
	}
	if err := db.insertIndexed(updated.TenantGUID, updated.GraphGUID, []*graph.Vector{updated}); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteVector removes the row and its index entry.
func (db *DB) DeleteVector(ctx context.Context, tenantGUID, graphGUID, guid string) error {
	if err := db.Client.DeleteVector(ctx, tenantGUID, guid); err != nil {
		return err
	}
	return db.removeIndexed(tenantGUID, graphGUID, []string{guid})
}

// DeleteNode removes the node, its connected edges, and every attached
// vector from both the store and the index.
func (db *DB) DeleteNode(ctx context.Context, tenantGUID, graphGUID, guid string) error {
	vectorGUIDs, err := db.collectNodeVectorGUIDs(ctx, tenantGUID, graphGUID, guid)
	if err != nil {
		return err
	}
	if err := db.Client.DeleteNode(ctx, tenantGUID, graphGUID, guid); err != nil {
		return err
	}
	return db.removeIndexed(tenantGUID, graphGUID, vectorGUIDs)
}

// DeleteNodes removes the batch in one transaction, then clears the
// index entries.
func (db *DB) DeleteNodes(ctx context.Context, tenantGUID, graphGUID string, guids []string) error {
	var vectorGUIDs []string
	for _, guid := range guids {
		owned, err := db.collectNodeVectorGUIDs(ctx, tenantGUID, graphGUID, guid)
		if err != nil {
			return err
		}
		vectorGUIDs = append(vectorGUIDs, owned...)
	}
	if err := db.Client.DeleteNodes(ctx, tenantGUID, graphGUID, guids); err != nil {
		return err
	}
	return db.removeIndexed(tenantGUID, graphGUID, vectorGUIDs)
}

// collectNodeVectorGUIDs gathers the vectors of the node and of every
// edge the cascade will take with it.
func (db *DB) collectNodeVectorGUIDs(ctx context.Context, tenantGUID, graphGUID, nodeGUID string) ([]string, error) {
	var out []string
	vectors, err := db.Client.ReadVectorsForNode(ctx, tenantGUID, graphGUID, nodeGUID)
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		out = append(out, v.GUID)
	}

	edges, err := db.Client.EdgesOfNode(ctx, tenantGUID, graphGUID, nodeGUID)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		edgeVectors, err := db.Client.ReadVectorsForEdge(ctx, tenantGUID, graphGUID, e.GUID)
		if err != nil {
			return nil, err
		}
		for _, v := range edgeVectors {
			out = append(out, v.GUID)
		}
	}
	return out, nil
}

// DeleteEdge removes the edge and its vectors from store and index.
func (db *DB) DeleteEdge(ctx context.Context, tenantGUID, graphGUID, guid string) error {
	vectors, err := db.Client.ReadVectorsForEdge(ctx, tenantGUID, graphGUID, guid)
	if err != nil {
		return err
	}
	if err := db.Client.DeleteEdge(ctx, tenantGUID, graphGUID, guid); err != nil {
		return err
	}
	vectorGUIDs := make([]string, 0, len(vectors))
	for _, v := range vectors {
		vectorGUIDs = append(vectorGUIDs, v.GUID)
	}
	return db.removeIndexed(tenantGUID, graphGUID, vectorGUIDs)
}

// DeleteEdges removes the batch, then clears the index entries.
func (db *DB) DeleteEdges(ctx context.Context, tenantGUID, graphGUID string, guids []string) error {
	var vectorGUIDs []string
	for _, guid := range guids {
		vectors, err := db.Client.ReadVectorsForEdge(ctx, tenantGUID, graphGUID, guid)
		if err != nil {
			return err
		}
		for _, v := range vectors {
			vectorGUIDs = append(vectorGUIDs, v.GUID)
		}
	}
	if err := db.Client.DeleteEdges(ctx, tenantGUID, graphGUID, guids); err != nil {
		return err
	}
	return db.removeIndexed(tenantGUID, graphGUID, vectorGUIDs)
}

// DeleteGraph tears the graph's index down with the graph itself.
func (db *DB) DeleteGraph(ctx context.Context, tenantGUID, guid string, force bool) error {
	if err := db.Client.DeleteGraph(ctx, tenantGUID, guid, force); err != nil {
		return err
	}
	if err := db.indexes.Disable(tenantGUID, guid); err != nil {
		log.Printf("veldt: drop index for deleted graph %s: %v", guid, err)
	}
	return nil
}

// DeleteTenant tears down the indexes of every graph the cascade
// removes.
func (db *DB) DeleteTenant(ctx context.Context, guid string, force bool) error {
	var graphGUIDs []string
	if force {
		req := graph.EnumerationRequest{TenantGUID: guid, MaxResults: graph.DefaultMaxResults}
		for {
			page, err := db.Client.EnumerateGraphs(ctx, req)
			if err != nil {
				if errors.Is(err, graph.ErrNotFound) {
					break
				}
				return err
			}
			for _, g := range page.Objects {
				graphGUIDs = append(graphGUIDs, g.GUID)
			}
			if page.EndOfResults {
				break
			}
			req.ContinuationToken = page.ContinuationToken
		}
	}
	if err := db.Client.DeleteTenant(ctx, guid, force); err != nil {
		return err
	}
	for _, graphGUID := range graphGUIDs {
		if err := db.indexes.Disable(guid, graphGUID); err != nil {
			log.Printf("veldt: drop index for deleted graph %s: %v", graphGUID, err)
		}
	}
	return nil
}

// SearchVectors routes a similarity query to the graph's index when it
// is ready, above threshold, and not stale; otherwise it scans the
// store exhaustively. Both paths rank by the requested metric.
func (db *DB) SearchVectors(ctx context.Context, req *graph.VectorSearchRequest) ([]*graph.VectorSearchResult, error) {
	if req == nil || req.TenantGUID == "" || req.GraphGUID == "" {
		return nil, fmt.Errorf("%w: tenant GUID and graph GUID required", graph.ErrValidation)
	}
	if !req.SearchType.Valid() {
		return nil, fmt.Errorf("%w: unknown search type %q", graph.ErrValidation, req.SearchType)
	}
	if len(req.Embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding required", graph.ErrValidation)
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	if _, err := db.Client.ReadGraph(ctx, req.TenantGUID, req.GraphGUID); err != nil {
		return nil, err
	}

	if ix := db.indexes.Get(req.TenantGUID, req.GraphGUID); ix != nil {
		results, ok, err := ix.Search(req)
		if err != nil {
			return nil, err
		}
		if ok {
			return results, nil
		}
	}
	return vectorindex.BruteForceSearch(ctx, db.Client, req)
}

// EnableVectorIndexing builds an index for the graph and records the
// configuration on the graph row.
func (db *DB) EnableVectorIndexing(ctx context.Context, tenantGUID, graphGUID string, cfg graph.VectorIndexConfig) error {
	if cfg.Type != graph.VectorIndexRAM && cfg.Type != graph.VectorIndexFile {
		return fmt.Errorf("%w: index type must be %q or %q", graph.ErrValidation, graph.VectorIndexRAM, graph.VectorIndexFile)
	}
	g, err := db.Client.ReadGraph(ctx, tenantGUID, graphGUID)
	if err != nil {
		return err
	}

	cfg = db.normalizeIndexConfig(graphGUID, cfg)
	if _, err := db.indexes.Enable(ctx, tenantGUID, graphGUID, cfg, db.Client); err != nil {
		return err
	}

	g.VectorIndex = &cfg
	if _, err := db.Client.UpdateGraph(ctx, g); err != nil {
		return err
	}
	return nil
}

// DisableVectorIndexing tears the graph's index down; searches fall
// back to brute force.
func (db *DB) DisableVectorIndexing(ctx context.Context, tenantGUID, graphGUID string) error {
	g, err := db.Client.ReadGraph(ctx, tenantGUID, graphGUID)
	if err != nil {
		return err
	}
	if err := db.indexes.Disable(tenantGUID, graphGUID); err != nil {
		return err
	}
	g.VectorIndex = &graph.VectorIndexConfig{Type: graph.VectorIndexNone}
	if _, err := db.Client.UpdateGraph(ctx, g); err != nil {
		return err
	}
	return nil
}

// RebuildVectorIndex reconstructs the index from the relational store
// and clears the stale flag. A non-nil cfg replaces the configuration,
// which is the only way to change it after enable.
func (db *DB) RebuildVectorIndex(ctx context.Context, tenantGUID, graphGUID string, cfg *graph.VectorIndexConfig) error {
	g, err := db.Client.ReadGraph(ctx, tenantGUID, graphGUID)
	if err != nil {
		return err
	}
	var next *graph.VectorIndexConfig
	if cfg != nil {
		normalized := db.normalizeIndexConfig(graphGUID, *cfg)
		next = &normalized
	}
	ix, err := db.indexes.Rebuild(ctx, tenantGUID, graphGUID, next, db.Client)
	if err != nil {
		return err
	}
	applied := ix.Config()
	g.VectorIndex = &applied
	if _, err := db.Client.UpdateGraph(ctx, g); err != nil {
		return err
	}
	return nil
}

// GetVectorIndexStatistics snapshots the graph's index. A graph without
// an enabled index reports the disabled state with the store's vector
// count.
func (db *DB) GetVectorIndexStatistics(ctx context.Context, tenantGUID, graphGUID string) (*vectorindex.Statistics, error) {
	if _, err := db.Client.ReadGraph(ctx, tenantGUID, graphGUID); err != nil {
		return nil, err
	}
	if ix := db.indexes.Get(tenantGUID, graphGUID); ix != nil {
		stats := ix.Stats()
		return &stats, nil
	}
	count, err := db.Client.CountVectors(ctx, tenantGUID, graphGUID, "")
	if err != nil {
		return nil, err
	}
	return &vectorindex.Statistics{
		Type:        graph.VectorIndexNone,
		State:       vectorindex.StateDisabled,
		VectorCount: count,
	}, nil
}
