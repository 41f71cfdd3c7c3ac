package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/veldtdb/veldt/pkg/graph"
)

// State is the lifecycle of one graph's index.
type State string

const (
	StateDisabled State = "disabled"
	StateBuilding State = "building"
	StateReady    State = "ready"
)

// Statistics is the observable snapshot of one graph's index.
type Statistics struct {
	Type                 graph.VectorIndexType `json:"Type"`
	State                State                 `json:"State"`
	Stale                bool                  `json:"Stale"`
	Dimensions           int                   `json:"Dimensions"`
	M                    int                   `json:"M"`
	Ef                   int                   `json:"Ef"`
	EfConstruction       int                   `json:"EfConstruction"`
	Threshold            int                   `json:"Threshold"`
	VectorCount          int                   `json:"VectorCount"`
	EstimatedMemoryBytes int64                 `json:"EstimatedMemoryBytes"`
	DiskBytes            int64                 `json:"DiskBytes,omitempty"`
}

// GraphIndex wraps the proximity graph for one entity graph: the state
// machine, the stale flag, the owner map for resolving hits, and the
// persistence store. Insert and remove are mutually exclusive with each
// other and with rebuilds; searches share the read lock.
type GraphIndex struct {
	tenantGUID string
	graphGUID  string

	mu     sync.RWMutex
	state  State
	stale  bool
	config graph.VectorIndexConfig
	hnsw   *hnswGraph
	owners map[string]indexRecord
	store  indexStore
}

func newGraphIndex(tenantGUID, graphGUID string, cfg graph.VectorIndexConfig, store indexStore) *GraphIndex {
	return &GraphIndex{
		tenantGUID: tenantGUID,
		graphGUID:  graphGUID,
		state:      StateDisabled,
		config:     cfg,
		store:      store,
	}
}

func (ix *GraphIndex) hnswConfig() hnswConfig {
	return hnswConfig{
		m:              ix.config.M,
		ef:             ix.config.Ef,
		efConstruction: ix.config.EfConstruction,
	}
}

// loadFromStore rebuilds the in-memory proximity graph from persisted
// records. Used when reopening a file-backed index.
func (ix *GraphIndex) loadFromStore(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.state = StateBuilding
	ix.hnsw = newHNSWGraph(ix.config.Dimensions, ix.hnswConfig())
	ix.owners = make(map[string]indexRecord)

	err := ix.store.load(func(rec indexRecord) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", graph.ErrStorage, err)
		}
		if err := ix.hnsw.insert(rec.VectorGUID, rec.Embedding); err != nil {
			return err
		}
		ix.owners[rec.VectorGUID] = rec
		return nil
	})
	if err != nil {
		ix.state = StateDisabled
		return err
	}
	ix.state = StateReady
	ix.stale = false
	return nil
}

// build populates the index from the given vectors and transitions
// Building -> Ready. Existing contents are discarded first.
func (ix *GraphIndex) build(ctx context.Context, vectors []*graph.Vector) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.state = StateBuilding
	ix.hnsw = newHNSWGraph(ix.config.Dimensions, ix.hnswConfig())
	ix.owners = make(map[string]indexRecord)
	if err := ix.store.clear(); err != nil {
		ix.state = StateDisabled
		return err
	}
	if err := ix.store.putMeta(ix.config); err != nil {
		ix.state = StateDisabled
		return err
	}

	for _, v := range vectors {
		if err := ctx.Err(); err != nil {
			ix.state = StateDisabled
			return fmt.Errorf("%w: %v", graph.ErrStorage, err)
		}
		if err := ix.insertLocked(v); err != nil {
			ix.state = StateDisabled
			return err
		}
	}
	ix.state = StateReady
	ix.stale = false
	return nil
}

// Insert adds one vector to the proximity graph and its store.
func (ix *GraphIndex) Insert(v *graph.Vector) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.state != StateReady {
		return fmt.Errorf("%w: index for graph %s is %s", graph.ErrIndexStale, ix.graphGUID, ix.state)
	}
	return ix.insertLocked(v)
}

func (ix *GraphIndex) insertLocked(v *graph.Vector) error {
	rec := indexRecord{
		VectorGUID: v.GUID,
		NodeGUID:   v.NodeGUID,
		EdgeGUID:   v.EdgeGUID,
		Embedding:  v.Embedding,
	}
	if err := ix.store.put(rec); err != nil {
		return err
	}
	if err := ix.hnsw.insert(v.GUID, v.Embedding); err != nil {
		return err
	}
	ix.owners[v.GUID] = rec
	return nil
}

// Remove unlinks one vector. Idempotent.
func (ix *GraphIndex) Remove(vectorGUID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.state != StateReady {
		return fmt.Errorf("%w: index for graph %s is %s", graph.ErrIndexStale, ix.graphGUID, ix.state)
	}
	if err := ix.store.remove(vectorGUID); err != nil {
		return err
	}
	ix.hnsw.remove(vectorGUID)
	delete(ix.owners, vectorGUID)
	return nil
}

// MarkStale flags the index after a maintenance failure. Indexed search
// is declined until a rebuild clears the flag.
func (ix *GraphIndex) MarkStale() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.stale = true
}

// Stale reports whether the index needs a rebuild.
func (ix *GraphIndex) Stale() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.stale
}

// Config returns the enable-time configuration.
func (ix *GraphIndex) Config() graph.VectorIndexConfig {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.config
}

// Search runs the layered descent plus base-layer beam, then re-ranks
// the beam by the requested metric. ok is false when the index declines
// (not ready, stale, or below the size threshold) and the caller must
// brute-force instead.
func (ix *GraphIndex) Search(req *graph.VectorSearchRequest) (results []*graph.VectorSearchResult, ok bool, err error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.state != StateReady || ix.stale {
		return nil, false, nil
	}
	if ix.hnsw.size() < ix.config.Threshold {
		return nil, false, nil
	}
	if len(req.Embedding) != ix.config.Dimensions {
		return nil, false, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			graph.ErrValidation, len(req.Embedding), ix.config.Dimensions)
	}

	ef := ix.config.Ef
	if req.TopK > ef {
		ef = req.TopK
	}
	candidateIDs := ix.hnsw.candidates(req.Embedding, ef)

	results = make([]*graph.VectorSearchResult, 0, req.TopK)
	for _, id := range candidateIDs {
		rec, found := ix.owners[id]
		if !found {
			continue
		}
		switch req.Domain {
		case graph.SearchDomainNode:
			if rec.NodeGUID == "" {
				continue
			}
		case graph.SearchDomainEdge:
			if rec.EdgeGUID == "" {
				continue
			}
		}
		pair, evalErr := evaluate(req.SearchType, req.Embedding, rec.Embedding)
		if evalErr != nil {
			return nil, false, evalErr
		}
		if !passesMinScore(req.SearchType, req.MinScore, pair.score) {
			continue
		}
		results = append(results, &graph.VectorSearchResult{
			VectorGUID: rec.VectorGUID,
			NodeGUID:   rec.NodeGUID,
			EdgeGUID:   rec.EdgeGUID,
			Score:      pair.score,
			Distance:   pair.distance,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return betterScore(req.SearchType, results[i].Score, results[j].Score)
	})
	if req.TopK > 0 && len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, true, nil
}

// Stats snapshots the index for the statistics surface.
func (ix *GraphIndex) Stats() Statistics {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	count := 0
	if ix.hnsw != nil {
		count = ix.hnsw.size()
	}
	cfg := ix.config
	// Rough accounting: raw + normalized float32 copies plus neighbor
	// list overhead per entry.
	perEntry := int64(cfg.Dimensions)*8 + int64(cfg.M)*2*40
	return Statistics{
		Type:                 cfg.Type,
		State:                ix.state,
		Stale:                ix.stale,
		Dimensions:           cfg.Dimensions,
		M:                    cfg.M,
		Ef:                   cfg.Ef,
		EfConstruction:       cfg.EfConstruction,
		Threshold:            cfg.Threshold,
		VectorCount:          count,
		EstimatedMemoryBytes: int64(count) * perEntry,
		DiskBytes:            ix.store.diskSize(),
	}
}

// disable tears the index down. The store is cleared so a later enable
// starts fresh.
func (ix *GraphIndex) disable() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.state = StateDisabled
	ix.stale = false
	ix.hnsw = nil
	ix.owners = nil
	if err := ix.store.clear(); err != nil {
		return err
	}
	return ix.store.close()
}

func (ix *GraphIndex) close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.state = StateDisabled
	return ix.store.close()
}
