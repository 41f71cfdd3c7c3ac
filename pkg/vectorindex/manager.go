package vectorindex

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/veldtdb/veldt/pkg/graph"
)

// VectorSource streams a graph's vectors out of the relational store.
// The repository client satisfies it.
type VectorSource interface {
	ReadVectorsForGraph(ctx context.Context, tenantGUID, graphGUID string, domain graph.SearchDomain, fn func(*graph.Vector) error) error
}

// Manager owns one GraphIndex per enabled graph, keyed by tenant and
// graph GUID.
type Manager struct {
	mu      sync.RWMutex
	indexes map[string]*GraphIndex
}

func NewManager() *Manager {
	return &Manager{indexes: make(map[string]*GraphIndex)}
}

func indexKey(tenantGUID, graphGUID string) string {
	return tenantGUID + "/" + graphGUID
}

func (m *Manager) openStore(cfg graph.VectorIndexConfig) (indexStore, error) {
	switch cfg.Type {
	case graph.VectorIndexRAM:
		return newRAMStore(), nil
	case graph.VectorIndexFile:
		return newBadgerStore(cfg.IndexFile)
	default:
		return nil, fmt.Errorf("%w: index type %q cannot be enabled", graph.ErrValidation, cfg.Type)
	}
}

// Enable builds (or reopens) the index for a graph. For the file-backed
// variant, persisted records whose stored configuration matches are
// reloaded without touching the relational store; otherwise the index is
// built from source.
func (m *Manager) Enable(ctx context.Context, tenantGUID, graphGUID string, cfg graph.VectorIndexConfig, source VectorSource) (*GraphIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: index dimensions required", graph.ErrValidation)
	}
	if cfg.M <= 0 {
		cfg.M = defaultM
	}
	if cfg.Ef <= 0 {
		cfg.Ef = defaultEf
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = defaultEfConstruction
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := indexKey(tenantGUID, graphGUID)
	if existing, ok := m.indexes[key]; ok {
		if err := existing.close(); err != nil {
			log.Printf("vectorindex: close previous index for %s: %v", graphGUID, err)
		}
		delete(m.indexes, key)
	}

	store, err := m.openStore(cfg)
	if err != nil {
		return nil, err
	}
	ix := newGraphIndex(tenantGUID, graphGUID, cfg, store)

	if cfg.Type == graph.VectorIndexFile {
		stored, err := store.meta()
		if err != nil {
			store.close()
			return nil, err
		}
		if stored != nil && *stored == cfg {
			if err := ix.loadFromStore(ctx); err != nil {
				store.close()
				return nil, err
			}
			m.indexes[key] = ix
			return ix, nil
		}
	}

	if err := m.buildFromSource(ctx, ix, tenantGUID, graphGUID, source); err != nil {
		store.close()
		return nil, err
	}
	m.indexes[key] = ix
	return ix, nil
}

func (m *Manager) buildFromSource(ctx context.Context, ix *GraphIndex, tenantGUID, graphGUID string, source VectorSource) error {
	var vectors []*graph.Vector
	err := source.ReadVectorsForGraph(ctx, tenantGUID, graphGUID, "", func(v *graph.Vector) error {
		vectors = append(vectors, v)
		return nil
	})
	if err != nil {
		return err
	}
	return ix.build(ctx, vectors)
}

// Get returns the graph's index, or nil when indexing is not enabled.
func (m *Manager) Get(tenantGUID, graphGUID string) *GraphIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[indexKey(tenantGUID, graphGUID)]
}

// Rebuild reconstructs the index from the relational store and clears
// the stale flag. When cfg is non-nil the new configuration replaces the
// old one, which is the only way to change it after enable.
func (m *Manager) Rebuild(ctx context.Context, tenantGUID, graphGUID string, cfg *graph.VectorIndexConfig, source VectorSource) (*GraphIndex, error) {
	m.mu.RLock()
	ix := m.indexes[indexKey(tenantGUID, graphGUID)]
	m.mu.RUnlock()
	if ix == nil {
		return nil, fmt.Errorf("%w: no index enabled for graph %s", graph.ErrNotFound, graphGUID)
	}

	next := ix.Config()
	if cfg != nil {
		next = *cfg
	}
	return m.Enable(ctx, tenantGUID, graphGUID, next, source)
}

// Disable tears the graph's index down. Searches fall back to brute
// force permanently until a later enable. Idempotent.
func (m *Manager) Disable(tenantGUID, graphGUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := indexKey(tenantGUID, graphGUID)
	ix, ok := m.indexes[key]
	if !ok {
		return nil
	}
	delete(m.indexes, key)
	return ix.disable()
}

// Close shuts every index down without clearing file-backed stores, so
// they reload on the next open.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for key, ix := range m.indexes {
		if err := ix.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.indexes, key)
	}
	return firstErr
}
