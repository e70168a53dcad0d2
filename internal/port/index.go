package port

import (
	"context"

	"rolerag/internal/domain"
)

// Filter restricts search candidates by department tag. A single value is an
// equality match, several values are a membership match. A nil *Filter means
// no restriction.
type Filter struct {
	Departments []string
}

// Matches reports whether a chunk tagged department passes the filter.
func (f *Filter) Matches(department string) bool {
	if f == nil {
		return true
	}
	for _, d := range f.Departments {
		if d == department {
			return true
		}
	}
	return false
}

// IndexWriter receives chunks during a rebuild.
type IndexWriter interface {
	Upsert(chunk domain.Chunk, vector []float32) error
}

// Index is the nearest-neighbour store over chunk embeddings.
type Index interface {
	// Search returns up to k chunks passing filter, by descending similarity.
	Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]domain.ScoredChunk, error)

	// Rebuild replaces the whole index with what fn writes. Readers see
	// either the old or the new contents; if fn fails the old index stays.
	Rebuild(ctx context.Context, fn func(w IndexWriter) error) error

	Stats() domain.IndexStats

	Close() error
}
