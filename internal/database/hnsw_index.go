package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter for the HNSW graph.
const hnswMaxNeighbors = 16

// EmbeddingIndex wraps an HNSW graph over enrolled templates. It backs the
// duplicate-enrollment check: before adding a new template we search for an
// existing one that is suspiciously close.
type EmbeddingIndex struct {
	graph      *hnsw.Graph[int64]
	idToRecord map[int64]*StudentEmbedding // HNSW node ID -> template
	mu         sync.RWMutex
}

// NewEmbeddingIndex creates a new empty index.
func NewEmbeddingIndex() *EmbeddingIndex {
	return &EmbeddingIndex{
		idToRecord: make(map[int64]*StudentEmbedding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given templates.
func (h *EmbeddingIndex) Build(embeddings []StudentEmbedding) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(embeddings) == 0 {
		h.graph = nil
		h.idToRecord = make(map[int64]*StudentEmbedding)
		return nil
	}

	g := newGraph()
	h.idToRecord = make(map[int64]*StudentEmbedding, len(embeddings))

	for i := range embeddings {
		e := &embeddings[i]
		if len(e.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(e.ID, e.Embedding))
		h.idToRecord[e.ID] = e
	}

	h.graph = g
	return nil
}

// Add inserts a single template into the index.
func (h *EmbeddingIndex) Add(e *StudentEmbedding) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(e.Embedding) == 0 {
		return nil
	}

	if h.graph == nil {
		h.graph = newGraph()
	}

	h.graph.Add(hnsw.MakeNode(e.ID, e.Embedding))
	h.idToRecord[e.ID] = e
	return nil
}

// Search finds the k nearest templates to the query embedding.
// Returns template IDs and their cosine distances.
func (h *EmbeddingIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)

	ids := make([]int64, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))

	for _, n := range neighbors {
		// Deleted templates stay in the graph; filter by map lookup.
		if _, ok := h.idToRecord[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		distances = append(distances, CosineDistance(query, n.Value))
	}

	return ids, distances, nil
}

// Get returns the template for a given ID, or nil.
func (h *EmbeddingIndex) Get(id int64) *StudentEmbedding {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToRecord[id]
}

// Remove drops a template from lookup. The HNSW graph has no true
// deletion; Search filters removed IDs out.
func (h *EmbeddingIndex) Remove(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.idToRecord, id)
}

// Count returns the number of indexed templates.
func (h *EmbeddingIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToRecord)
}
