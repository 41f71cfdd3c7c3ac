package vectorindex

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/veldtdb/veldt/pkg/graph"
	"github.com/veldtdb/veldt/pkg/math/vector"
)

// hnswConfig tunes the proximity graph. levelMultiplier defaults to
// 1/ln(M) when zero.
type hnswConfig struct {
	m               int
	ef              int
	efConstruction  int
	levelMultiplier float64
}

const (
	defaultM              = 16
	defaultEf             = 100
	defaultEfConstruction = 200
)

func (c hnswConfig) withDefaults() hnswConfig {
	if c.m <= 0 {
		c.m = defaultM
	}
	if c.ef <= 0 {
		c.ef = defaultEf
	}
	if c.efConstruction <= 0 {
		c.efConstruction = defaultEfConstruction
	}
	if c.levelMultiplier <= 0 {
		c.levelMultiplier = 1.0 / math.Log(float64(c.m))
	}
	return c
}

// hnswEntry is one vector in the proximity graph. normalized is the unit
// form used for graph construction; raw keeps the original embedding for
// metric re-ranking at query time.
type hnswEntry struct {
	id         string
	normalized []float32
	raw        []float32
	level      int
	neighbors  [][]string
}

// hnswGraph is a multi-layer proximity graph built on normalized cosine
// distance. All methods require the caller to hold the owning index's
// lock; the graph itself is not self-synchronizing beyond per-entry
// neighbor updates during insert.
type hnswGraph struct {
	config     hnswConfig
	dimensions int
	mu         sync.RWMutex
	entries    map[string]*hnswEntry
	entryPoint string
	maxLevel   int
	rng        *rand.Rand
}

func newHNSWGraph(dimensions int, config hnswConfig) *hnswGraph {
	return &hnswGraph{
		config:     config.withDefaults(),
		dimensions: dimensions,
		entries:    make(map[string]*hnswEntry),
		rng:        rand.New(rand.NewSource(rand.Int63())),
	}
}

func (g *hnswGraph) size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

func (g *hnswGraph) has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.entries[id]
	return ok
}

func (g *hnswGraph) embedding(id string) []float32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.entries[id]; ok {
		return e.raw
	}
	return nil
}

// insert adds a vector, descending from the entry point and wiring
// M-bounded neighbor lists on every layer at or below the new entry's
// random level.
func (g *hnswGraph) insert(id string, embedding []float32) error {
	if len(embedding) != g.dimensions {
		return fmt.Errorf("%w: embedding has %d dimensions, index expects %d",
			graph.ErrValidation, len(embedding), g.dimensions)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	normalized := vector.Normalize(embedding)
	level := g.randomLevel()

	entry := &hnswEntry{
		id:         id,
		normalized: normalized,
		raw:        embedding,
		level:      level,
		neighbors:  make([][]string, level+1),
	}
	for i := range entry.neighbors {
		entry.neighbors[i] = make([]string, 0, g.config.m)
	}
	g.entries[id] = entry

	if g.entryPoint == "" || len(g.entries) == 1 {
		g.entryPoint = id
		g.maxLevel = level
		return nil
	}

	ep := g.entryPoint
	epLevel := g.entries[ep].level

	for l := epLevel; l > level; l-- {
		ep = g.greedyStep(normalized, ep, l)
	}

	for l := min(level, epLevel); l >= 0; l-- {
		candidates := g.beamSearch(normalized, ep, g.config.efConstruction, l)
		neighbors := g.selectNeighbors(normalized, candidates, g.config.m)
		entry.neighbors[l] = neighbors

		for _, neighborID := range neighbors {
			neighbor := g.entries[neighborID]
			if len(neighbor.neighbors) <= l {
				continue
			}
			if len(neighbor.neighbors[l]) < g.config.m {
				neighbor.neighbors[l] = append(neighbor.neighbors[l], id)
			} else {
				all := append(neighbor.neighbors[l], id)
				neighbor.neighbors[l] = g.selectNeighbors(neighbor.normalized, all, g.config.m)
			}
		}

		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}

	if level > g.maxLevel {
		g.entryPoint = id
		g.maxLevel = level
	}
	return nil
}

// remove unlinks the entry from its neighbors immediately and rescans
// for a replacement entry point when the removed entry held it.
func (g *hnswGraph) remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[id]
	if !ok {
		return
	}

	for l := 0; l <= entry.level; l++ {
		for _, neighborID := range entry.neighbors[l] {
			neighbor, ok := g.entries[neighborID]
			if !ok || len(neighbor.neighbors) <= l {
				continue
			}
			kept := neighbor.neighbors[l][:0]
			for _, nid := range neighbor.neighbors[l] {
				if nid != id {
					kept = append(kept, nid)
				}
			}
			neighbor.neighbors[l] = kept
		}
	}

	delete(g.entries, id)

	if g.entryPoint == id {
		g.entryPoint = ""
		g.maxLevel = -1
		for eid, e := range g.entries {
			if e.level > g.maxLevel {
				g.maxLevel = e.level
				g.entryPoint = eid
			}
		}
		if g.maxLevel == -1 {
			g.maxLevel = 0
		}
	}
}

// candidates runs the layered descent and returns the ef-bounded base
// layer beam, nearest first by normalized cosine distance. The caller
// re-ranks by the requested metric.
func (g *hnswGraph) candidates(query []float32, ef int) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.entries) == 0 || g.entryPoint == "" {
		return nil
	}
	if ef <= 0 {
		ef = g.config.ef
	}

	normalized := vector.Normalize(query)
	ep := g.entryPoint
	for l := g.maxLevel; l > 0; l-- {
		ep = g.greedyStep(normalized, ep, l)
	}
	return g.beamSearch(normalized, ep, ef, 0)
}

func (g *hnswGraph) greedyStep(query []float32, entryID string, level int) string {
	current := entryID
	currentDist := 1.0 - vector.DotProduct(query, g.entries[current].normalized)

	for {
		changed := false
		entry := g.entries[current]
		if len(entry.neighbors) <= level {
			break
		}
		for _, neighborID := range entry.neighbors[level] {
			neighbor, ok := g.entries[neighborID]
			if !ok {
				continue
			}
			dist := 1.0 - vector.DotProduct(query, neighbor.normalized)
			if dist < currentDist {
				current = neighborID
				currentDist = dist
				changed = true
			}
		}
		if !changed {
			return current
		}
	}
	return current
}

func (g *hnswGraph) beamSearch(query []float32, entryID string, ef, level int) []string {
	visited := map[string]bool{entryID: true}

	candidates := &distHeap{}
	heap.Init(candidates)
	results := &distHeap{}
	heap.Init(results)

	entryDist := 1.0 - vector.DotProduct(query, g.entries[entryID].normalized)
	heap.Push(candidates, distItem{id: entryID, dist: entryDist})
	heap.Push(results, distItem{id: entryID, dist: entryDist, isMax: true})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(distItem)

		if results.Len() >= ef {
			furthest := (*results)[0]
			if closest.dist > furthest.dist {
				break
			}
		}

		entry := g.entries[closest.id]
		if len(entry.neighbors) <= level {
			continue
		}
		for _, neighborID := range entry.neighbors[level] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighbor, ok := g.entries[neighborID]
			if !ok {
				continue
			}
			dist := 1.0 - vector.DotProduct(query, neighbor.normalized)
			if results.Len() < ef || dist < (*results)[0].dist {
				heap.Push(candidates, distItem{id: neighborID, dist: dist})
				heap.Push(results, distItem{id: neighborID, dist: dist, isMax: true})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]string, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item := heap.Pop(results).(distItem)
		out[i] = item.id
	}
	return out
}

func (g *hnswGraph) selectNeighbors(query []float32, candidates []string, m int) []string {
	if len(candidates) <= m {
		return candidates
	}

	type distEntry struct {
		id   string
		dist float64
	}
	dists := make([]distEntry, len(candidates))
	for i, cid := range candidates {
		dists[i] = distEntry{
			id:   cid,
			dist: 1.0 - vector.DotProduct(query, g.entries[cid].normalized),
		}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })

	out := make([]string, m)
	for i := 0; i < m; i++ {
		out[i] = dists[i].id
	}
	return out
}

func (g *hnswGraph) randomLevel() int {
	r := g.rng.Float64()
	if r <= 0 {
		r = math.SmallestNonzeroFloat64
	}
	return int(-math.Log(r) * g.config.levelMultiplier)
}

type distItem struct {
	id    string
	dist  float64
	isMax bool
}

type distHeap []distItem

func (h distHeap) Len() int { return len(h) }
func (h distHeap) Less(i, j int) bool {
	if h[i].isMax {
		return h[i].dist > h[j].dist
	}
	return h[i].dist < h[j].dist
}
func (h distHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *distHeap) Push(x any) { *h = append(*h, x.(distItem)) }

func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
