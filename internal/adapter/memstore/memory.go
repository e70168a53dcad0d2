package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"rolerag/internal/domain"
	"rolerag/internal/port"
)

// MemoryIndex is a port.Index that lives only in process memory. It backs
// ephemeral servers and tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]domain.Chunk
	vectors   map[string][]float32
	stats     domain.IndexStats
}

func NewMemoryIndex(model string, dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		chunks:    make(map[string]domain.Chunk),
		vectors:   make(map[string][]float32),
		stats:     domain.IndexStats{Model: model, Dimension: dimension, ByDepartment: map[string]int{}},
	}
}

type memWriter struct {
	dimension int
	chunks    map[string]domain.Chunk
	vectors   map[string][]float32
}

func (w *memWriter) Upsert(chunk domain.Chunk, vector []float32) error {
	if chunk.ID == "" || chunk.Department == "" {
		return fmt.Errorf("chunk must have an ID and a department tag")
	}
	if len(vector) != w.dimension {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", w.dimension, len(vector))
	}
	w.chunks[chunk.ID] = chunk
	w.vectors[chunk.ID] = vector
	return nil
}

func (s *MemoryIndex) Rebuild(ctx context.Context, fn func(w port.IndexWriter) error) error {
	w := &memWriter{
		dimension: s.dimension,
		chunks:    make(map[string]domain.Chunk),
		vectors:   make(map[string][]float32),
	}
	if err := fn(w); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	byDept := make(map[string]int)
	for _, c := range w.chunks {
		byDept[c.Department]++
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = w.chunks
	s.vectors = w.vectors
	s.stats.Chunks = len(w.chunks)
	s.stats.ByDepartment = byDept
	s.stats.BuiltAt = time.Now().UTC()
	return nil
}

func (s *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter *port.Filter) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d", domain.ErrIndexUnavailable, s.dimension, len(query))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.ScoredChunk
	for id, c := range s.chunks {
		if !filter.Matches(c.Department) {
			continue
		}
		results = append(results, domain.ScoredChunk{Chunk: c, Score: cosine(query, s.vectors[id])})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryIndex) Stats() domain.IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.ByDepartment = make(map[string]int, len(s.stats.ByDepartment))
	for d, n := range s.stats.ByDepartment {
		stats.ByDepartment[d] = n
	}
	return stats
}

func (s *MemoryIndex) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
