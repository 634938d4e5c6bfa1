// Package dense implements the dense index client (C2): a vector
// similarity search over trial embeddings. Grounded directly on
// Aman-CERP-amanmcp's internal/store/hnsw.go — the same graph-plus-
// id-map shape, the same normalize-before-insert/search discipline, and
// the same cosine-distance-to-similarity conversion.
package dense

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/clinical-trials-core/internal/core"
)

// ErrDimensionMismatch reports a vector whose length disagrees with the
// index's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dense index: dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// metadata is the sidecar JSON file described in spec §6: ordered nct_ids
// aligned to the graph's insertion keys, the model identity, and the
// vector dimension.
type metadata struct {
	NCTIDs    []string `json:"nct_ids"`
	ModelName string   `json:"model_name"`
	Dimension int      `json:"dimension"`
}

// Result is a single dense hit, per C2's contract in spec §4.2.
type Result struct {
	NCTID      string
	Similarity float64
}

// Index wraps an hnsw.Graph[uint64] over unit-normalized float32
// vectors. It is loaded once from two offline-produced artifacts and
// shared read-only thereafter (spec §5's "shareable without locking").
// If either artifact is absent or corrupt, Ready() is false and Search
// returns (nil, nil) — never an error, per spec §4.2 and §7's
// DenseNotReady being benign.
type Index struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[uint64]
	keyToNCT  map[uint64]string
	dimension int
	modelName string
	ready     bool
}

// Load reads the graph file and its metadata sidecar, building a ready
// Index. It never returns an error for missing/corrupt artifacts —
// instead it returns a non-nil, not-ready Index, matching the
// orchestrator's "treat not ready as skip-dense" handling in §4.2.
func Load(graphPath, metaPath string) *Index {
	idx := &Index{keyToNCT: map[uint64]string{}}

	metaFile, err := os.Open(metaPath)
	if err != nil {
		return idx
	}
	defer metaFile.Close()

	var meta metadata
	if err := json.NewDecoder(metaFile).Decode(&meta); err != nil {
		return idx
	}

	graphFile, err := os.Open(graphPath)
	if err != nil {
		return idx
	}
	defer graphFile.Close()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	reader := bufio.NewReader(graphFile)
	if err := graph.Import(reader); err != nil {
		return idx
	}

	for i, nctID := range meta.NCTIDs {
		idx.keyToNCT[uint64(i)] = nctID
	}

	idx.graph = graph
	idx.dimension = meta.Dimension
	idx.modelName = meta.ModelName
	idx.ready = true
	return idx
}

// NewInMemory builds a ready, in-memory Index directly from vectors —
// used by tests and by any embedder that builds its dense index at
// process start rather than loading offline artifacts.
func NewInMemory(dimension int, modelName string, ids []string, vectors [][]float32) (*Index, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("dense index: ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	keyToNCT := map[uint64]string{}
	for i, id := range ids {
		if len(vectors[i]) != dimension {
			return nil, ErrDimensionMismatch{Expected: dimension, Got: len(vectors[i])}
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)
		key := uint64(i)
		graph.Add(hnsw.MakeNode(key, vec))
		keyToNCT[key] = id
	}

	return &Index{
		graph:     graph,
		keyToNCT:  keyToNCT,
		dimension: dimension,
		modelName: modelName,
		ready:     true,
	}, nil
}

// Ready reports whether the index loaded successfully and can serve
// queries.
func (idx *Index) Ready() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

// ModelName returns the encoder model identity the index was built
// against, so callers can validate an Encoder matches.
func (idx *Index) ModelName() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.modelName
}

// Search returns the top-k nearest neighbors to a unit-norm query vector
// as (nct_id, cosine_similarity) pairs, per spec §4.2's contract. When
// the index is not ready, it returns (nil, nil) — not an error.
func (idx *Index) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapCancellation(ctx, err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.ready {
		return nil, nil
	}
	if len(vector) != idx.dimension {
		return nil, ErrDimensionMismatch{Expected: idx.dimension, Got: len(vector)}
	}
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeVectorInPlace(query)

	nodes := idx.graph.Search(query, k)
	results := make([]Result, 0, len(nodes))
	for _, node := range nodes {
		nctID, ok := idx.keyToNCT[node.Key]
		if !ok {
			continue
		}
		distance := idx.graph.Distance(query, node.Value)
		results = append(results, Result{
			NCTID:      nctID,
			Similarity: distanceToScore(distance),
		})
	}
	return results, nil
}

// normalizeVectorInPlace scales v to unit length.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts cosine distance (1 - cos, range [0,2]) back
// to cosine similarity (range [-1,1]).
func distanceToScore(distance float32) float64 {
	return 1.0 - float64(distance)
}
