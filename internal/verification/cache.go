package verification

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16
	// hnswCandidates is how many nearest enrollments the index returns for
	// exact re-scoring.
	hnswCandidates = 32
)

// CacheEntry is one student's cached enrollment.
type CacheEntry struct {
	StudentID string
	Embedding []float32
	Version   int64
	Position  int64 // enrollment order, deterministic tie-breaker
}

// EmbeddingCache holds the enrolled face embeddings for one class. Reads are
// concurrent; writes (enrollment invalidation) take a short exclusive lock.
// An HNSW graph accelerates candidate lookup for large rosters; matching
// always re-scores candidates exactly so results stay deterministic.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	graph   *hnsw.Graph[string]
}

// NewEmbeddingCache creates an empty cache.
func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{
		entries: make(map[string]*CacheEntry),
	}
}

// Put stores or replaces a student's embedding. A Put with a version lower
// than the cached one is ignored (a concurrent warm lost the race against a
// fresh enrollment).
func (c *EmbeddingCache) Put(entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[entry.StudentID]; ok && existing.Version > entry.Version {
		return
	}
	c.entries[entry.StudentID] = &entry
	c.rebuildLocked()
}

// Invalidate removes a student's cached embedding. Called whenever a new
// enrollment for that student is committed.
func (c *EmbeddingCache) Invalidate(studentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[studentID]; !ok {
		return
	}
	delete(c.entries, studentID)
	c.rebuildLocked()
}

// Get retrieves a student's cached embedding, nil if absent.
func (c *EmbeddingCache) Get(studentID string) *CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[studentID]
	if !ok {
		return nil
	}
	copied := *entry
	return &copied
}

// Len returns the number of cached enrollments.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns all cached enrollments ordered by enrollment position.
func (c *EmbeddingCache) Snapshot() []CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})
	return entries
}

// Candidates returns the cached enrollments most likely to match the query
// embedding, ordered by enrollment position. For small rosters (or when the
// index holds nothing) it returns the full snapshot; for larger ones it
// narrows via the HNSW graph first.
func (c *EmbeddingCache) Candidates(query []float32) []CacheEntry {
	c.mu.RLock()
	if c.graph == nil || len(c.entries) <= hnswCandidates {
		c.mu.RUnlock()
		return c.Snapshot()
	}

	neighbors := c.graph.Search(query, hnswCandidates)
	entries := make([]CacheEntry, 0, len(neighbors))
	for _, n := range neighbors {
		if e, ok := c.entries[n.Key]; ok {
			entries = append(entries, *e)
		}
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})
	return entries
}

// rebuildLocked rebuilds the HNSW graph from current entries. Caller must
// hold the write lock. Rosters are class-sized so a full rebuild is cheap
// and keeps deletion semantics simple.
func (c *EmbeddingCache) rebuildLocked() {
	if len(c.entries) == 0 {
		c.graph = nil
		return
	}

	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	for _, e := range c.entries {
		if len(e.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(e.StudentID, e.Embedding))
	}
	c.graph = g
}

// String describes the cache for logging.
func (c *EmbeddingCache) String() string {
	return fmt.Sprintf("embedding cache (%d students)", c.Len())
}
